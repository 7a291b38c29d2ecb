// internal/storage/instrumented.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tripdocs/tripdocs-entry-go/internal/metrics"
	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// instrumented wraps a Store and records an operation counter and duration
// histogram per call. ErrNotFound counts as "ok": a miss is a normal answer,
// not a backend failure.
type instrumented struct {
	next Store
	m    *metrics.Metrics
}

// NewInstrumented decorates a Store with Prometheus operation metrics.
func NewInstrumented(next Store) Store {
	return &instrumented{next: next, m: metrics.NewMetrics()}
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	s.m.StorageOperationTotal.WithLabelValues(op, status).Inc()
	s.m.StorageOperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func (s *instrumented) SaveEntry(ctx context.Context, entry model.EntryRecord) error {
	start := time.Now()
	err := s.next.SaveEntry(ctx, entry)
	s.observe("save_entry", start, err)
	return err
}

func (s *instrumented) GetEntry(ctx context.Context, id string) (*model.EntryRecord, error) {
	start := time.Now()
	rec, err := s.next.GetEntry(ctx, id)
	s.observe("get_entry", start, err)
	return rec, err
}

func (s *instrumented) ListEntriesByUser(ctx context.Context, userID string) ([]model.EntryRecord, error) {
	start := time.Now()
	recs, err := s.next.ListEntriesByUser(ctx, userID)
	s.observe("list_entries_by_user", start, err)
	return recs, err
}

func (s *instrumented) ListEntriesByStatus(ctx context.Context, status model.EntryStatus) ([]model.EntryRecord, error) {
	start := time.Now()
	recs, err := s.next.ListEntriesByStatus(ctx, status)
	s.observe("list_entries_by_status", start, err)
	return recs, err
}

func (s *instrumented) SavePassport(ctx context.Context, p model.Passport) error {
	start := time.Now()
	err := s.next.SavePassport(ctx, p)
	s.observe("save_passport", start, err)
	return err
}

func (s *instrumented) GetPassport(ctx context.Context, id string) (*model.Passport, error) {
	start := time.Now()
	rec, err := s.next.GetPassport(ctx, id)
	s.observe("get_passport", start, err)
	return rec, err
}

func (s *instrumented) GetPrimaryPassport(ctx context.Context, userID string) (*model.Passport, error) {
	start := time.Now()
	rec, err := s.next.GetPrimaryPassport(ctx, userID)
	s.observe("get_primary_passport", start, err)
	return rec, err
}

func (s *instrumented) SavePersonalInfo(ctx context.Context, pi model.PersonalInfo) error {
	start := time.Now()
	err := s.next.SavePersonalInfo(ctx, pi)
	s.observe("save_personal_info", start, err)
	return err
}

func (s *instrumented) GetPersonalInfo(ctx context.Context, id string) (*model.PersonalInfo, error) {
	start := time.Now()
	rec, err := s.next.GetPersonalInfo(ctx, id)
	s.observe("get_personal_info", start, err)
	return rec, err
}

func (s *instrumented) SaveTravelInfo(ctx context.Context, t model.TravelInfo) error {
	start := time.Now()
	err := s.next.SaveTravelInfo(ctx, t)
	s.observe("save_travel_info", start, err)
	return err
}

func (s *instrumented) GetTravelInfo(ctx context.Context, id string) (*model.TravelInfo, error) {
	start := time.Now()
	rec, err := s.next.GetTravelInfo(ctx, id)
	s.observe("get_travel_info", start, err)
	return rec, err
}

func (s *instrumented) SaveFundItem(ctx context.Context, f model.FundItem) error {
	start := time.Now()
	err := s.next.SaveFundItem(ctx, f)
	s.observe("save_fund_item", start, err)
	return err
}

func (s *instrumented) GetFundItem(ctx context.Context, id string) (*model.FundItem, error) {
	start := time.Now()
	rec, err := s.next.GetFundItem(ctx, id)
	s.observe("get_fund_item", start, err)
	return rec, err
}

func (s *instrumented) ListFundItemsByUser(ctx context.Context, userID string) ([]model.FundItem, error) {
	start := time.Now()
	recs, err := s.next.ListFundItemsByUser(ctx, userID)
	s.observe("list_fund_items_by_user", start, err)
	return recs, err
}

func (s *instrumented) DeleteFundItem(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.DeleteFundItem(ctx, id)
	s.observe("delete_fund_item", start, err)
	return err
}

func (s *instrumented) AppendCard(ctx context.Context, card model.DigitalArrivalCard) error {
	start := time.Now()
	err := s.next.AppendCard(ctx, card)
	s.observe("append_card", start, err)
	return err
}

func (s *instrumented) GetCard(ctx context.Context, id string) (*model.DigitalArrivalCard, error) {
	start := time.Now()
	rec, err := s.next.GetCard(ctx, id)
	s.observe("get_card", start, err)
	return rec, err
}

func (s *instrumented) UpdateCard(ctx context.Context, card model.DigitalArrivalCard) error {
	start := time.Now()
	err := s.next.UpdateCard(ctx, card)
	s.observe("update_card", start, err)
	return err
}

func (s *instrumented) ListCardsByEntry(ctx context.Context, entryID, cardType string) ([]model.DigitalArrivalCard, error) {
	start := time.Now()
	recs, err := s.next.ListCardsByEntry(ctx, entryID, cardType)
	s.observe("list_cards_by_entry", start, err)
	return recs, err
}

func (s *instrumented) SaveSnapshot(ctx context.Context, rec model.SnapshotRecord) error {
	start := time.Now()
	err := s.next.SaveSnapshot(ctx, rec)
	s.observe("save_snapshot", start, err)
	return err
}

func (s *instrumented) GetSnapshot(ctx context.Context, id string) (*model.SnapshotRecord, error) {
	start := time.Now()
	rec, err := s.next.GetSnapshot(ctx, id)
	s.observe("get_snapshot", start, err)
	return rec, err
}

func (s *instrumented) ListSnapshotsByEntry(ctx context.Context, entryID string) ([]model.SnapshotRecord, error) {
	start := time.Now()
	recs, err := s.next.ListSnapshotsByEntry(ctx, entryID)
	s.observe("list_snapshots_by_entry", start, err)
	return recs, err
}
