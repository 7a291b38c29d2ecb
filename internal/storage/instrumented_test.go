// internal/storage/instrumented_test.go
package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tripdocs/tripdocs-entry-go/internal/metrics"
	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// The metrics registry is process-global, so counts are asserted as deltas.
func TestInstrumentedCountsOperations(t *testing.T) {
	ctx := context.Background()
	store := NewInstrumented(NewMemory())
	m := metrics.NewMetrics()

	saveOK := testutil.ToFloat64(m.StorageOperationTotal.WithLabelValues("save_entry", "ok"))
	getOK := testutil.ToFloat64(m.StorageOperationTotal.WithLabelValues("get_entry", "ok"))

	entry := model.EntryRecord{ID: "entry-1", UserID: "user-1", DestinationID: "th", Status: model.EntryStatusIncomplete}
	if err := store.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}
	got, err := store.GetEntry(ctx, "entry-1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.ID != "entry-1" {
		t.Errorf("round trip id %q", got.ID)
	}

	if d := testutil.ToFloat64(m.StorageOperationTotal.WithLabelValues("save_entry", "ok")) - saveOK; d != 1 {
		t.Errorf("save_entry ok delta %v want 1", d)
	}
	if d := testutil.ToFloat64(m.StorageOperationTotal.WithLabelValues("get_entry", "ok")) - getOK; d != 1 {
		t.Errorf("get_entry ok delta %v want 1", d)
	}
}

func TestInstrumentedCountsMissAsOK(t *testing.T) {
	ctx := context.Background()
	store := NewInstrumented(NewMemory())
	m := metrics.NewMetrics()

	getOK := testutil.ToFloat64(m.StorageOperationTotal.WithLabelValues("get_entry", "ok"))
	getErr := testutil.ToFloat64(m.StorageOperationTotal.WithLabelValues("get_entry", "error"))

	if _, err := store.GetEntry(ctx, "no-such-entry"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetEntry: got %v want ErrNotFound", err)
	}

	if d := testutil.ToFloat64(m.StorageOperationTotal.WithLabelValues("get_entry", "ok")) - getOK; d != 1 {
		t.Errorf("get_entry ok delta %v want 1", d)
	}
	if d := testutil.ToFloat64(m.StorageOperationTotal.WithLabelValues("get_entry", "error")) - getErr; d != 0 {
		t.Errorf("get_entry error delta %v want 0", d)
	}
}
