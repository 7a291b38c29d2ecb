// internal/event/nats.go
// Package event provides NATS JetStream implementation for event publishing.
// Status changes, submission outcomes and snapshot cuts are streamed so other
// services (notifications, analytics, audit) can react without polling.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// Publisher defines the event publishing operations used by the entry service.
type Publisher interface {
	// Status events
	PublishStatusChanged(ctx context.Context, entry model.EntryRecord, from model.EntryStatus) error

	// Submission events
	PublishSubmissionResult(ctx context.Context, card model.DigitalArrivalCard) error

	// Snapshot events
	PublishSnapshotCreated(ctx context.Context, rec model.SnapshotRecord) error

	// Close closes the publisher connection
	Close() error
}

// noop is used when NATS is not configured. The service keeps working without
// event streaming.
type noop struct{}

func (n *noop) Close() error { return nil }

func (n *noop) PublishStatusChanged(ctx context.Context, entry model.EntryRecord, from model.EntryStatus) error {
	return nil
}

func (n *noop) PublishSubmissionResult(ctx context.Context, card model.DigitalArrivalCard) error {
	return nil
}

func (n *noop) PublishSnapshotCreated(ctx context.Context, rec model.SnapshotRecord) error {
	return nil
}

// natsPub is the NATS JetStream implementation of Publisher.
type natsPub struct {
	nc *nats.Conn            // NATS connection
	js nats.JetStreamContext // JetStream context for stream operations

	// Deduplication: entry status flaps (autosave recomputing metrics) would
	// otherwise flood the stream with identical transitions.
	statusDedup map[string]time.Time // entry id + status -> last publish time
	mutex       sync.RWMutex
}

// NewPublisherFromEnv creates a publisher based on the ENTRY_NATS_URL
// environment variable. When NATS is unset or unreachable it falls back to a
// no-op publisher rather than failing startup.
func NewPublisherFromEnv() Publisher {
	url := os.Getenv("ENTRY_NATS_URL")
	if url == "" {
		return &noop{}
	}

	nc, err := nats.Connect(url)
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return &noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	if err := initStreams(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	return &natsPub{
		nc:          nc,
		js:          js,
		statusDedup: make(map[string]time.Time),
	}
}

// initStreams creates the TD_ENTRIES and TD_SNAPSHOTS streams.
func initStreams(js nats.JetStreamContext) error {
	// Entry lifecycle and submission events
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "TD_ENTRIES",
		Subjects:  []string{"entry.status.*", "entry.submission.*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create TD_ENTRIES stream: %w", err)
	}

	// Snapshot cut events, kept longer since downstream archival consumes them
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      "TD_SNAPSHOTS",
		Subjects:  []string{"entry.snapshot.*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create TD_SNAPSHOTS stream: %w", err)
	}

	return nil
}

// EventEnvelope is the standard wrapper for every published event.
type EventEnvelope struct {
	Type          string      `json:"type"`          // Event type identifier
	Version       string      `json:"version"`       // Event schema version
	OccurredAt    time.Time   `json:"occurredAt"`    // When the event occurred
	CorrelationID string      `json:"correlationId"` // Correlation ID for tracing
	Payload       interface{} `json:"payload"`       // Event-specific data
}

// Close closes the NATS connection.
func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// shouldDedup reports whether the key was published within the 2-minute window.
func (p *natsPub) shouldDedup(key string) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if lastTime, exists := p.statusDedup[key]; exists {
		return time.Since(lastTime) < 2*time.Minute
	}
	return false
}

// updateDedup records a publish time and evicts stale entries.
func (p *natsPub) updateDedup(key string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	cutoff := time.Now().Add(-5 * time.Minute)
	for k, t := range p.statusDedup {
		if t.Before(cutoff) {
			delete(p.statusDedup, k)
		}
	}
	p.statusDedup[key] = time.Now()
}

// publish wraps the payload in the standard envelope and sends it.
func (p *natsPub) publish(subject, eventType string, payload any) error {
	envelope := EventEnvelope{
		Type:          eventType,
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       payload,
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, b)
	return err
}

// statusChangedPayload carries the transition itself alongside the aggregate.
type statusChangedPayload struct {
	Entry model.EntryRecord `json:"entry"`
	From  model.EntryStatus `json:"from"`
	To    model.EntryStatus `json:"to"`
}

// PublishStatusChanged publishes one lifecycle transition of an entry.
// Identical (entry, status) pairs inside the dedup window are dropped.
func (p *natsPub) PublishStatusChanged(ctx context.Context, entry model.EntryRecord, from model.EntryStatus) error {
	key := entry.ID + ":" + string(entry.Status)
	if p.shouldDedup(key) {
		return nil
	}

	subject := fmt.Sprintf("entry.status.%s", entry.Status)
	if err := p.publish(subject, subject, statusChangedPayload{Entry: entry, From: from, To: entry.Status}); err != nil {
		return err
	}

	p.updateDedup(key)
	return nil
}

// PublishSubmissionResult publishes the outcome of one submission attempt.
// Attempts are unique by card id so no dedup applies.
func (p *natsPub) PublishSubmissionResult(ctx context.Context, card model.DigitalArrivalCard) error {
	subject := fmt.Sprintf("entry.submission.%s", card.Status)
	return p.publish(subject, subject, card)
}

// PublishSnapshotCreated publishes a snapshot cut event.
func (p *natsPub) PublishSnapshotCreated(ctx context.Context, rec model.SnapshotRecord) error {
	subject := "entry.snapshot.created"
	return p.publish(subject, subject, rec)
}
