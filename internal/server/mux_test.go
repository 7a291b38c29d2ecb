// internal/server/mux_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tripdocs/tripdocs-entry-go/internal/entry"
	"github.com/tripdocs/tripdocs-entry-go/internal/jwks"
	"github.com/tripdocs/tripdocs-entry-go/internal/model"
	"github.com/tripdocs/tripdocs-entry-go/internal/schema"
	"github.com/tripdocs/tripdocs-entry-go/internal/storage"
	"github.com/tripdocs/tripdocs-entry-go/internal/submission"
)

const (
	testIssuer   = "https://auth.tripdocs.test"
	testAudience = "tripdocs-app"
)

type stubPublisher struct{}

func (stubPublisher) PublishStatusChanged(ctx context.Context, e model.EntryRecord, from model.EntryStatus) error {
	return nil
}
func (stubPublisher) PublishSubmissionResult(ctx context.Context, c model.DigitalArrivalCard) error {
	return nil
}
func (stubPublisher) PublishSnapshotCreated(ctx context.Context, rec model.SnapshotRecord) error {
	return nil
}
func (stubPublisher) Close() error { return nil }

type stubSubmitter struct {
	result submission.Result
	err    error
}

func (s *stubSubmitter) Submit(ctx context.Context, req submission.Request) (submission.Result, error) {
	if s.err != nil {
		return submission.Result{}, s.err
	}
	return s.result, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubSubmitter) {
	t.Helper()
	v, err := schema.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	sub := &stubSubmitter{result: submission.Result{ArrCardNo: "TH-0001", QRRef: "cards/qr1.png", PDFRef: "cards/c1.pdf"}}
	store := storage.NewMemory()
	svc := entry.NewService(store, stubPublisher{}, v, sub, 24*time.Hour)

	mux, debouncer := NewMux(store, svc, testIssuer, testAudience, Options{
		JWKSClient:       jwks.NewTestClient(),
		AutosaveDebounce: 20 * time.Millisecond,
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		debouncer.Close(context.Background())
		srv.Close()
	})
	return srv, sub
}

// bearerToken signs a throwaway HS256 token; the test JWKS client skips
// signature verification and only checks the claims.
func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func completeSections() map[string]any {
	return map[string]any{
		"passport": map[string]any{"fields": map[string]any{
			"passportNumber": "AA1234567", "fullName": "ANNA LEE", "nationality": "SGP",
			"dateOfBirth": "1990-04-12", "expiryDate": "2031-01-01",
		}},
		"personalInfo": map[string]any{"fields": map[string]any{
			"occupation": "engineer", "provinceCity": "Singapore", "countryRegion": "SG",
			"phoneNumber": "81234567", "email": "anna@example.com", "gender": "F",
		}},
		"travel": map[string]any{"fields": map[string]any{
			"travelPurpose": "tourism", "traveledCountries": []string{"SG"},
			"arrival":       map[string]any{"flightNumber": "TG-404", "date": "2031-01-05"},
			"departure":     map[string]any{"flightNumber": "TG-405", "date": "2031-01-12"},
			"accommodation": map[string]any{"type": "hotel", "address": "1 Beach Rd"},
			"visaNumber":    "V123",
		}},
		"fundItems": []map[string]any{{"fields": map[string]any{
			"type": "cash", "amount": 2500.0, "currency": "THB",
		}}},
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status %d", path, resp.StatusCode)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, srv, "POST", "/v1/entry", "", map[string]any{"destinationId": "th"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d want 401", resp.StatusCode)
	}
	if errorCode(body) != "ENTRY_AUTHN" {
		t.Errorf("code %q want ENTRY_AUTHN", errorCode(body))
	}
}

func TestWrongIssuerRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "https://somewhere-else.test", "aud": testAudience, "sub": "user-1",
	})
	signed, _ := token.SignedString([]byte("test-secret"))

	resp, body := doJSON(t, srv, "GET", "/v1/entry", signed, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d want 401", resp.StatusCode)
	}
	if errorCode(body) != "ENTRY_JWT_INVALID" {
		t.Errorf("code %q want ENTRY_JWT_INVALID", errorCode(body))
	}
}

func TestCreateAndGetEntry(t *testing.T) {
	srv, _ := newTestServer(t)
	token := bearerToken(t, "user-1")

	resp, body := doJSON(t, srv, "POST", "/v1/entry", token, map[string]any{"destinationId": "th"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %v", resp.StatusCode, body)
	}
	created := data(body)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("no entry id in %v", created)
	}
	if created["status"] != "incomplete" {
		t.Errorf("status %v want incomplete", created["status"])
	}

	resp, body = doJSON(t, srv, "GET", "/v1/entry/"+id, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status %d", resp.StatusCode)
	}
	if data(body)["id"] != id {
		t.Errorf("round trip id mismatch: %v", data(body))
	}
}

func TestForeignEntryIsForbidden(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := doJSON(t, srv, "POST", "/v1/entry", bearerToken(t, "user-1"), map[string]any{"destinationId": "th"})
	id, _ := data(body)["id"].(string)

	resp, body := doJSON(t, srv, "GET", "/v1/entry/"+id, bearerToken(t, "user-2"), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d want 403", resp.StatusCode)
	}
	if errorCode(body) != "ENTRY_USER_MISMATCH" {
		t.Errorf("code %q want ENTRY_USER_MISMATCH", errorCode(body))
	}
}

func TestUnknownEntryIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, srv, "GET", "/v1/entry/no-such-id", bearerToken(t, "user-1"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d want 404", resp.StatusCode)
	}
	if errorCode(body) != "ENTRY_NOT_FOUND" {
		t.Errorf("code %q want ENTRY_NOT_FOUND", errorCode(body))
	}
}

func TestFullLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	token := bearerToken(t, "user-1")

	_, body := doJSON(t, srv, "POST", "/v1/entry", token, map[string]any{"destinationId": "th"})
	id, _ := data(body)["id"].(string)

	resp, body := doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/sections", id), token, completeSections())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sections status %d: %v", resp.StatusCode, body)
	}
	saved := data(body)
	if e, ok := saved["entry"].(map[string]any); !ok || e["status"] != "incomplete" {
		t.Fatalf("promotion only happens via the ready endpoint: %v", saved["entry"])
	}

	resp, body = doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/ready", id), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready status %d: %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/submit", id), token,
		map[string]any{"cardType": "tdac", "method": "app"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %v", resp.StatusCode, body)
	}
	issued := data(body)
	if issued["arrCardNo"] != "TH-0001" || issued["status"] != "success" {
		t.Errorf("issued card: %v", issued)
	}

	// Submitted entries are read-only.
	resp, body = doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/sections", id), token, completeSections())
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("edit after submit status %d want 409", resp.StatusCode)
	}
	if errorCode(body) != "ENTRY_READ_ONLY" {
		t.Errorf("code %q want ENTRY_READ_ONLY", errorCode(body))
	}

	// Supersede then archive; archive cuts a snapshot.
	resp, _ = doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/supersede", id), token,
		map[string]any{"reason": "traveler data changed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("supersede status %d", resp.StatusCode)
	}
	resp, body = doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/archive", id), token,
		map[string]any{"reason": "trip cancelled"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archive status %d: %v", resp.StatusCode, body)
	}
	if data(body)["status"] != "archived" {
		t.Errorf("archive result: %v", data(body))
	}

	resp, body = doJSON(t, srv, "GET", fmt.Sprintf("/v1/entry/%s/snapshots", id), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshots status %d", resp.StatusCode)
	}
	snaps, _ := body["data"].([]any)
	if len(snaps) != 1 {
		t.Errorf("want one archive snapshot, got %d", len(snaps))
	}
}

func TestSubmitUpstreamFailureIs502(t *testing.T) {
	srv, sub := newTestServer(t)
	token := bearerToken(t, "user-1")

	_, body := doJSON(t, srv, "POST", "/v1/entry", token, map[string]any{"destinationId": "th"})
	id, _ := data(body)["id"].(string)
	doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/sections", id), token, completeSections())

	sub.err = &submission.UpstreamError{StatusCode: 422, Details: map[string]any{"field": "visaNumber"}}
	resp, body := doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/submit", id), token,
		map[string]any{"cardType": "tdac"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status %d want 502: %v", resp.StatusCode, body)
	}
	if errorCode(body) != "ENTRY_SUBMISSION_FAILED" {
		t.Errorf("code %q want ENTRY_SUBMISSION_FAILED", errorCode(body))
	}
	// The failed attempt lands in the card history.
	resp, body = doJSON(t, srv, "GET", fmt.Sprintf("/v1/entry/%s/cards?type=tdac", id), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cards status %d", resp.StatusCode)
	}
	cards, _ := body["data"].([]any)
	if len(cards) != 1 {
		t.Fatalf("want one failed card, got %d", len(cards))
	}
	if c, _ := cards[0].(map[string]any); c["status"] != "failed" {
		t.Errorf("card: %v", cards[0])
	}
}

func TestAllInvalidSectionsRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	token := bearerToken(t, "user-1")

	_, body := doJSON(t, srv, "POST", "/v1/entry", token, map[string]any{"destinationId": "th"})
	id, _ := data(body)["id"].(string)

	resp, body := doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/sections", id), token, map[string]any{
		"passport": map[string]any{"fields": map[string]any{"dateOfBirth": "12/04/1990"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d want 400: %v", resp.StatusCode, body)
	}
	if errorCode(body) != "ENTRY_SCHEMA_REJECT" {
		t.Errorf("code %q want ENTRY_SCHEMA_REJECT", errorCode(body))
	}
}

func TestAutosaveFlushedOnRead(t *testing.T) {
	srv, _ := newTestServer(t)
	token := bearerToken(t, "user-1")

	_, body := doJSON(t, srv, "POST", "/v1/entry", token, map[string]any{"destinationId": "th"})
	id, _ := data(body)["id"].(string)

	resp, body := doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/autosave", id), token, map[string]any{
		"passport": map[string]any{"fields": map[string]any{"fullName": "ANNA LEE"}},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("autosave status %d want 202: %v", resp.StatusCode, body)
	}

	// A read flushes the buffer, so the edit is visible immediately.
	resp, body = doJSON(t, srv, "GET", "/v1/entry/"+id, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status %d", resp.StatusCode)
	}
	if pid, _ := data(body)["passportId"].(string); pid == "" {
		t.Errorf("buffered save should be flushed before the read: %v", data(body))
	}
}

func TestLatestCardQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	token := bearerToken(t, "user-1")

	_, body := doJSON(t, srv, "POST", "/v1/entry", token, map[string]any{"destinationId": "th"})
	id, _ := data(body)["id"].(string)
	doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/sections", id), token, completeSections())
	doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/ready", id), token, nil)
	doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/submit", id), token,
		map[string]any{"cardType": "tdac", "method": "app"})

	resp, body := doJSON(t, srv, "GET", fmt.Sprintf("/v1/entry/%s/cards?type=tdac&latest=true", id), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("latest status %d: %v", resp.StatusCode, body)
	}
	if data(body)["arrCardNo"] != "TH-0001" {
		t.Errorf("latest card: %v", data(body))
	}

	// latest=true without a type is rejected.
	resp, body = doJSON(t, srv, "GET", fmt.Sprintf("/v1/entry/%s/cards?latest=true", id), token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing type status %d want 400", resp.StatusCode)
	}
	if errorCode(body) != "ENTRY_VALIDATION" {
		t.Errorf("code %q want ENTRY_VALIDATION", errorCode(body))
	}

	// After supersession there is no live card to present.
	doJSON(t, srv, "POST", fmt.Sprintf("/v1/entry/%s/supersede", id), token,
		map[string]any{"reason": "traveler data changed"})
	resp, body = doJSON(t, srv, "GET", fmt.Sprintf("/v1/entry/%s/cards?type=tdac&latest=true", id), token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("superseded latest status %d want 404: %v", resp.StatusCode, body)
	}
	if errorCode(body) != "ENTRY_NOT_FOUND" {
		t.Errorf("code %q want ENTRY_NOT_FOUND", errorCode(body))
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	srv, _ := newTestServer(t)
	token := bearerToken(t, "user-1")

	req, _ := http.NewRequest("GET", srv.URL+"/v1/entry", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Correlation-Id", "corr-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-Id"); got != "corr-123" {
		t.Errorf("correlation id %q want corr-123", got)
	}
}
