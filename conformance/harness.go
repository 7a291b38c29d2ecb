// Package conformance provides a black-box test harness for verifying entry
// service compliance. It drives a full traveler lifecycle over HTTP the same
// way a mobile client would.
package conformance

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
	"github.com/tripdocs/tripdocs-entry-go/internal/event"
	"github.com/tripdocs/tripdocs-entry-go/internal/jwks"
	"github.com/tripdocs/tripdocs-entry-go/internal/model"
	"github.com/tripdocs/tripdocs-entry-go/internal/schema"
	"github.com/tripdocs/tripdocs-entry-go/internal/server"
	"github.com/tripdocs/tripdocs-entry-go/internal/storage"
	"github.com/tripdocs/tripdocs-entry-go/internal/submission"
)

// Harness wraps an in-process entry service behind a test HTTP server.
type Harness struct {
	server   *httptest.Server
	store    storage.Store
	pub      event.Publisher
	autosave *entry.Debouncer

	issuer   string
	audience string
}

// Config holds configuration for the conformance test harness.
type Config struct {
	// JWTIssuer is the expected JWT issuer
	JWTIssuer string

	// JWTAudience is the expected JWT audience
	JWTAudience string

	// SubmissionResult is what the stubbed arrival-card upstream returns
	SubmissionResult submission.Result
}

// stubSubmitter plays the arrival-card upstream.
type stubSubmitter struct {
	result submission.Result
}

func (s *stubSubmitter) Submit(ctx context.Context, req submission.Request) (submission.Result, error) {
	return s.result, nil
}

// noopPublisher is a no-op implementation of event.Publisher for testing.
type noopPublisher struct{}

func (n *noopPublisher) PublishStatusChanged(ctx context.Context, e model.EntryRecord, from model.EntryStatus) error {
	return nil
}

func (n *noopPublisher) PublishSubmissionResult(ctx context.Context, card model.DigitalArrivalCard) error {
	return nil
}

func (n *noopPublisher) PublishSnapshotCreated(ctx context.Context, rec model.SnapshotRecord) error {
	return nil
}

func (n *noopPublisher) Close() error { return nil }

// NewHarness creates a new conformance test harness.
func NewHarness(cfg Config) (*Harness, error) {
	store := storage.NewMemory()
	pub := &noopPublisher{}

	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema validator: %w", err)
	}

	sub := &stubSubmitter{result: cfg.SubmissionResult}
	if sub.result.ArrCardNo == "" {
		sub.result = submission.Result{ArrCardNo: "CF-0001", QRRef: "cards/cf-qr.png", PDFRef: "cards/cf.pdf"}
	}

	svc := entry.NewService(store, pub, validator, sub, 24*time.Hour)

	mux, autosave := server.NewMux(store, svc, cfg.JWTIssuer, cfg.JWTAudience, server.Options{
		JWKSClient:       jwks.NewTestClient(),
		AutosaveDebounce: 20 * time.Millisecond,
	})

	return &Harness{
		server:   httptest.NewServer(mux),
		store:    store,
		pub:      pub,
		autosave: autosave,
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
	}, nil
}

// URL returns the base URL of the test server.
func (h *Harness) URL() string {
	return h.server.URL
}

// Close shuts down the test server and cleans up resources.
func (h *Harness) Close() {
	h.autosave.Close(context.Background())
	h.server.Close()
	_ = h.pub.Close()
}

// Token signs a throwaway traveler token accepted by the test JWKS client.
func (h *Harness) Token(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": h.issuer,
		"aud": h.audience,
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	return token.SignedString([]byte("conformance-secret"))
}

// call performs one authenticated JSON request and decodes the envelope.
func (h *Harness) call(method, path, token string, body any) (int, map[string]any, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, nil, err
		}
	}
	req, err := http.NewRequest(method, h.URL()+path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded, nil
}

// RunConformanceTests runs the full suite against the implementation.
func (h *Harness) RunConformanceTests(t *testing.T) {
	t.Run("HealthEndpoints", h.testHealthEndpoints)
	t.Run("AuthRequired", h.testAuthRequired)
	t.Run("TravelerLifecycle", h.testTravelerLifecycle)
	t.Run("SchemaRejection", h.testSchemaRejection)
}

// testHealthEndpoints tests the health check endpoints.
func (h *Harness) testHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(h.URL() + path)
		if err != nil {
			t.Fatalf("failed to GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200 for %s, got %d", path, resp.StatusCode)
		}
	}
}

// testAuthRequired verifies every data endpoint rejects anonymous callers.
func (h *Harness) testAuthRequired(t *testing.T) {
	status, body, err := h.call("GET", "/v1/entry", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d (%v)", status, body)
	}
}

// testTravelerLifecycle drives create -> save -> ready -> submit -> supersede
// -> resubmit -> archive end to end.
func (h *Harness) testTravelerLifecycle(t *testing.T) {
	token, err := h.Token("conformance-user")
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	status, body, err := h.call("POST", "/v1/entry", token, map[string]any{"destinationId": "th"})
	if err != nil || status != http.StatusCreated {
		t.Fatalf("create entry: status %d err %v (%v)", status, err, body)
	}
	data := body["data"].(map[string]any)
	id := data["id"].(string)

	sections := map[string]any{
		"passport": map[string]any{"fields": map[string]any{
			"passportNumber": "CF1234567", "fullName": "CON FORMANCE", "nationality": "SGP",
			"dateOfBirth": "1985-06-20", "expiryDate": "2032-01-01",
		}},
		"personalInfo": map[string]any{"fields": map[string]any{
			"occupation": "tester", "provinceCity": "Singapore", "countryRegion": "SG",
			"phoneNumber": "81230000", "email": "cf@example.com", "gender": "X",
		}},
		"travel": map[string]any{"fields": map[string]any{
			"travelPurpose": "tourism", "traveledCountries": []string{"SG"},
			"arrival":       map[string]any{"flightNumber": "CF-100", "date": "2032-02-01"},
			"departure":     map[string]any{"flightNumber": "CF-101", "date": "2032-02-08"},
			"accommodation": map[string]any{"type": "hotel", "address": "99 Test Way"},
			"visaNumber":    "V999",
		}},
		"fundItems": []map[string]any{{"fields": map[string]any{
			"type": "bank_balance", "amount": 8000.0, "currency": "SGD",
		}}},
	}
	status, body, _ = h.call("POST", "/v1/entry/"+id+"/sections", token, sections)
	if status != http.StatusOK {
		t.Fatalf("save sections: status %d (%v)", status, body)
	}

	status, body, _ = h.call("POST", "/v1/entry/"+id+"/ready", token, nil)
	if status != http.StatusOK {
		t.Fatalf("mark ready: status %d (%v)", status, body)
	}
	if got := body["data"].(map[string]any)["status"]; got != "ready" {
		t.Fatalf("expected ready, got %v", got)
	}

	status, body, _ = h.call("POST", "/v1/entry/"+id+"/submit", token,
		map[string]any{"cardType": "tdac", "method": "app"})
	if status != http.StatusOK {
		t.Fatalf("submit: status %d (%v)", status, body)
	}
	card := body["data"].(map[string]any)
	if card["status"] != "success" {
		t.Fatalf("expected a successful card, got %v", card)
	}

	status, body, _ = h.call("POST", "/v1/entry/"+id+"/supersede", token,
		map[string]any{"reason": "flight changed"})
	if status != http.StatusOK {
		t.Fatalf("supersede: status %d (%v)", status, body)
	}

	status, body, _ = h.call("POST", "/v1/entry/"+id+"/submit", token,
		map[string]any{"cardType": "tdac", "method": "app"})
	if status != http.StatusOK {
		t.Fatalf("resubmit: status %d (%v)", status, body)
	}

	// History must keep both attempts, newest first, with the old one superseded.
	status, body, _ = h.call("GET", "/v1/entry/"+id+"/cards?type=tdac", token, nil)
	if status != http.StatusOK {
		t.Fatalf("cards: status %d (%v)", status, body)
	}
	cards := body["data"].([]any)
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards in history, got %d", len(cards))
	}
	oldest := cards[1].(map[string]any)
	if oldest["isSuperseded"] != true {
		t.Errorf("prior card should be superseded: %v", oldest)
	}

	status, body, _ = h.call("POST", "/v1/entry/"+id+"/archive", token,
		map[string]any{"reason": "trip complete"})
	if status != http.StatusOK {
		t.Fatalf("archive: status %d (%v)", status, body)
	}

	status, body, _ = h.call("GET", "/v1/entry/"+id+"/snapshots", token, nil)
	if status != http.StatusOK {
		t.Fatalf("snapshots: status %d (%v)", status, body)
	}
	if snaps := body["data"].([]any); len(snaps) != 1 {
		t.Errorf("archive should freeze exactly one snapshot, got %d", len(snaps))
	}
}

// testSchemaRejection verifies an entirely invalid save is rejected with the
// schema error code.
func (h *Harness) testSchemaRejection(t *testing.T) {
	token, err := h.Token("conformance-user-2")
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	status, body, _ := h.call("POST", "/v1/entry", token, map[string]any{"destinationId": "th"})
	if status != http.StatusCreated {
		t.Fatalf("create entry: status %d (%v)", status, body)
	}
	id := body["data"].(map[string]any)["id"].(string)

	status, body, _ = h.call("POST", "/v1/entry/"+id+"/sections", token, map[string]any{
		"fundItems": []map[string]any{{"fields": map[string]any{"amount": "not-a-number"}}},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for an all-invalid save, got %d (%v)", status, body)
	}
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "ENTRY_SCHEMA_REJECT" {
		t.Errorf("expected ENTRY_SCHEMA_REJECT, got %v", errObj["code"])
	}
}
