// internal/submission/client.go
// Package submission provides a client for the destination arrival-card API.
// The upstream accepts a prepared entry pack and, on success, issues a card
// number plus QR and PDF artifacts. The service treats the upstream as opaque;
// only the issued references are stored.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// Client talks to the arrival-card API of one destination.
type Client struct {
	base string       // Base URL of the arrival-card API
	hc   *http.Client // HTTP client with custom configuration
}

// Request is the pack sent upstream for one submission attempt.
type Request struct {
	EntryID      string              `json:"entryId"`
	CardType     string              `json:"cardType"`
	Method       string              `json:"method"`
	Passport     *model.Passport     `json:"passport,omitempty"`
	PersonalInfo *model.PersonalInfo `json:"personalInfo,omitempty"`
	Travel       *model.TravelInfo   `json:"travel,omitempty"`
	Funds        []model.FundItem    `json:"funds,omitempty"`
}

// Result is the successful outcome of a submission.
type Result struct {
	ArrCardNo string `json:"arrCardNo"` // Issued card number
	QRRef     string `json:"qrRef"`     // Storage reference for the QR artifact
	PDFRef    string `json:"pdfRef"`    // Storage reference for the PDF artifact
}

// UpstreamError carries the structured rejection the arrival-card API returned.
// It is preserved verbatim in the failed card's error details.
type UpstreamError struct {
	StatusCode int            `json:"statusCode"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("arrival-card API rejected submission: status %d", e.StatusCode)
}

// ErrUnavailable is returned when the upstream could not be reached at all.
var ErrUnavailable = errors.New("arrival-card API unavailable")

// New creates a submission client. Submission is a heavier call than a lookup
// so the request timeout is generous.
func New(baseURL string) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
	}
	return &Client{
		base: baseURL,
		hc:   &http.Client{Transport: transport, Timeout: 30 * time.Second},
	}
}

// Submit sends the pack upstream. A non-2xx response becomes an *UpstreamError
// so callers can persist the structured details on the failed card.
func (c *Client) Submit(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.base+"/v1/arrival-cards", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var result Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return Result{}, fmt.Errorf("decode submission result: %w", err)
		}
		return result, nil
	}

	upErr := &UpstreamError{StatusCode: resp.StatusCode}
	// Best effort: the upstream usually explains the rejection as JSON.
	var details map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&details); err == nil {
		upErr.Details = details
	}
	return Result{}, upErr
}
