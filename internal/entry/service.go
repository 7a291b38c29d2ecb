// internal/entry/service.go
// Package entry implements the preparation lifecycle: progressive section
// saves, completion recomputation, readiness, submission, superseding,
// expiry and archival. All lifecycle writes funnel through this service so
// the transition table and the completion metrics stay consistent.
package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tripdocs/tripdocs-entry-go/internal/card"
	"github.com/tripdocs/tripdocs-entry-go/internal/completion"
	"github.com/tripdocs/tripdocs-entry-go/internal/event"
	"github.com/tripdocs/tripdocs-entry-go/internal/merge"
	"github.com/tripdocs/tripdocs-entry-go/internal/metrics"
	"github.com/tripdocs/tripdocs-entry-go/internal/model"
	"github.com/tripdocs/tripdocs-entry-go/internal/schema"
	"github.com/tripdocs/tripdocs-entry-go/internal/snapshot"
	"github.com/tripdocs/tripdocs-entry-go/internal/storage"
	"github.com/tripdocs/tripdocs-entry-go/internal/submission"
)

// Sentinel errors the HTTP layer maps onto response codes.
var (
	ErrUserMismatch      = errors.New("entry owned by a different user")
	ErrNotEditable       = errors.New("entry is read-only in its current status")
	ErrNotReady          = errors.New("entry is not ready for submission")
	ErrInvalidTransition = errors.New("illegal status transition")
	ErrAllSectionsFailed = errors.New("no section could be saved")
	ErrSubmissionFailed  = errors.New("arrival-card submission failed")
)

// Submitter is the slice of the submission client the service needs.
type Submitter interface {
	Submit(ctx context.Context, req submission.Request) (submission.Result, error)
}

// Service coordinates storage, events, card history, validation and the
// upstream submitter for one destination-agnostic entry lifecycle.
type Service struct {
	store     storage.Store
	pub       event.Publisher
	cards     *card.Log
	validator *schema.Validator
	submitter Submitter
	metrics   *metrics.Metrics

	arrivalGrace time.Duration    // how long past arrival before expiry
	now          func() time.Time // injectable for tests
}

// NewService wires a Service. submitter may be nil when no upstream is
// configured; Submit then fails cleanly.
func NewService(store storage.Store, pub event.Publisher, validator *schema.Validator, submitter Submitter, arrivalGrace time.Duration) *Service {
	return &Service{
		store:        store,
		pub:          pub,
		cards:        card.NewLog(store),
		validator:    validator,
		submitter:    submitter,
		metrics:      metrics.NewMetrics(),
		arrivalGrace: arrivalGrace,
		now:          time.Now,
	}
}

// Cards exposes the card log for read paths.
func (s *Service) Cards() *card.Log { return s.cards }

// CreateEntry opens a new preparation for a destination. The section records
// are created lazily on first save.
func (s *Service) CreateEntry(ctx context.Context, userID, destinationID string) (*model.EntryRecord, error) {
	if destinationID == "" {
		return nil, fmt.Errorf("destination id is required")
	}
	now := s.now().UTC()
	e := model.EntryRecord{
		ID:            uuid.New().String(),
		UserID:        userID,
		DestinationID: destinationID,
		Completion:    completion.Calculate(nil, nil, nil, nil),
		Status:        model.EntryStatusIncomplete,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := s.store.SaveEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("save entry: %w", err)
	}
	if err := s.pub.PublishStatusChanged(ctx, e, ""); err != nil {
		slog.Warn("publish status event failed", "entryId", e.ID, "error", err)
	}
	return &e, nil
}

// GetEntry loads an entry and enforces ownership.
func (s *Service) GetEntry(ctx context.Context, userID, entryID string) (*model.EntryRecord, error) {
	e, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, ErrUserMismatch
	}
	return e, nil
}

// ListEntries returns the user's preparations, newest-updated first.
func (s *Service) ListEntries(ctx context.Context, userID string) ([]model.EntryRecord, error) {
	return s.store.ListEntriesByUser(ctx, userID)
}

// sections is the loaded set of records an entry references. Absent records
// stay nil; completion treats nil as missing.
type sections struct {
	passport *model.Passport
	personal *model.PersonalInfo
	travel   *model.TravelInfo
	funds    []model.FundItem
}

// loadSections fetches everything the entry references, tolerating records
// that were never created.
func (s *Service) loadSections(ctx context.Context, e *model.EntryRecord) (sections, error) {
	var sec sections
	var err error
	if e.PassportID != "" {
		if sec.passport, err = s.store.GetPassport(ctx, e.PassportID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return sec, err
		}
	}
	if e.PersonalInfoID != "" {
		if sec.personal, err = s.store.GetPersonalInfo(ctx, e.PersonalInfoID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return sec, err
		}
	}
	if e.TravelInfoID != "" {
		if sec.travel, err = s.store.GetTravelInfo(ctx, e.TravelInfoID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return sec, err
		}
	}
	for _, id := range e.FundItemIDs {
		f, err := s.store.GetFundItem(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return sec, err
		}
		sec.funds = append(sec.funds, *f)
	}
	return sec, nil
}

// recompute refreshes the completion metrics from the loaded sections and
// persists the entry. A ready entry whose data fell below complete is demoted
// back to incomplete; promotion to ready only ever happens via MarkAsReady.
func (s *Service) recompute(ctx context.Context, e *model.EntryRecord, sec sections) error {
	e.Completion = completion.Calculate(sec.passport, sec.personal, sec.funds, sec.travel)
	e.LastUpdatedAt = s.now().UTC()

	if e.Status == model.EntryStatusReady && !e.IsReadyForSubmission() {
		from := e.Status
		e.Status = model.EntryStatusIncomplete
		s.metrics.StatusTransitionTotal.WithLabelValues(string(from), string(e.Status)).Inc()
		if err := s.store.SaveEntry(ctx, *e); err != nil {
			return err
		}
		if err := s.pub.PublishStatusChanged(ctx, *e, from); err != nil {
			slog.Warn("publish status event failed", "entryId", e.ID, "error", err)
		}
		return nil
	}
	return s.store.SaveEntry(ctx, *e)
}

// transition moves an entry to a new status through the transition table,
// persists it and emits the status event. Repeating a transition the entry is
// already in is an error unless the table explicitly allows it (archived).
func (s *Service) transition(ctx context.Context, e *model.EntryRecord, to model.EntryStatus) error {
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, to)
	}
	if e.Status == to {
		return nil
	}
	from := e.Status
	e.Status = to
	e.LastUpdatedAt = s.now().UTC()
	if err := s.store.SaveEntry(ctx, *e); err != nil {
		e.Status = from
		return fmt.Errorf("save entry: %w", err)
	}
	s.metrics.StatusTransitionTotal.WithLabelValues(string(from), string(to)).Inc()
	if err := s.pub.PublishStatusChanged(ctx, *e, from); err != nil {
		slog.Warn("publish status event failed", "entryId", e.ID, "error", err)
	}
	return nil
}

// SaveSections applies one buffered save across any subset of sections.
// Each sub-save validates, merges and persists independently; the call as a
// whole fails only when every attempted sub-save failed. Completion metrics
// are recomputed once at the end.
func (s *Service) SaveSections(ctx context.Context, userID, entryID string, req model.SaveSectionsRequest) (*model.SaveSectionsResult, error) {
	e, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if !e.IsEditable() {
		return nil, ErrNotEditable
	}

	now := s.now().UTC()
	result := &model.SaveSectionsResult{}
	attempted := 0

	if req.Passport != nil {
		attempted++
		result.Outcomes = append(result.Outcomes, s.savePassport(ctx, e, *req.Passport, now))
	}
	if req.PersonalInfo != nil {
		attempted++
		result.Outcomes = append(result.Outcomes, s.savePersonalInfo(ctx, e, *req.PersonalInfo, now))
	}
	if req.Travel != nil {
		attempted++
		result.Outcomes = append(result.Outcomes, s.saveTravel(ctx, e, *req.Travel, now))
	}
	for _, fp := range req.FundItems {
		attempted++
		result.Outcomes = append(result.Outcomes, s.saveFundItem(ctx, e, fp, now))
	}

	for _, o := range result.Outcomes {
		status := "ok"
		if !o.Saved {
			status = "error"
		}
		s.metrics.SectionSaveTotal.WithLabelValues(o.Section, status).Inc()
	}

	if attempted > 0 && !result.AnySaved() {
		return result, ErrAllSectionsFailed
	}

	sec, err := s.loadSections(ctx, e)
	if err != nil {
		return result, fmt.Errorf("load sections: %w", err)
	}
	if err := s.recompute(ctx, e, sec); err != nil {
		return result, fmt.Errorf("recompute: %w", err)
	}
	result.Entry = e
	result.Missing = completion.MissingFields(sec.passport, sec.personal, sec.funds, sec.travel)
	return result, nil
}

// validate runs the payload through the section schema and records the metric.
func (s *Service) validate(section string, fields map[string]any) []string {
	violations, err := s.validator.Validate(section, fields)
	status := "ok"
	if err != nil {
		status = "error"
		violations = []string{err.Error()}
	} else if len(violations) > 0 {
		status = "reject"
	}
	s.metrics.SchemaValidationTotal.WithLabelValues(section, status).Inc()
	return violations
}

func (s *Service) savePassport(ctx context.Context, e *model.EntryRecord, p model.SectionPayload, now time.Time) model.SectionOutcome {
	out := model.SectionOutcome{Section: schema.SectionPassport}
	if violations := s.validate(schema.SectionPassport, p.Fields); len(violations) > 0 {
		out.Error = fmt.Sprintf("validation failed: %v", violations)
		return out
	}

	var rec model.Passport
	isNew := e.PassportID == ""
	if isNew {
		rec = model.Passport{ID: uuid.New().String(), UserID: e.UserID, CreatedAt: now, UpdatedAt: now}
	} else {
		loaded, err := s.store.GetPassport(ctx, e.PassportID)
		if err != nil {
			out.Error = fmt.Sprintf("load passport: %v", err)
			return out
		}
		rec = *loaded
	}

	merge.ApplyPassport(&rec, p.Fields, merge.NewTouched(p.Touched), now)
	if err := s.store.SavePassport(ctx, rec); err != nil {
		out.Error = fmt.Sprintf("save passport: %v", err)
		return out
	}
	// Link only once the record exists; a failed first save must not leave a
	// dangling reference on the entry.
	if isNew {
		e.PassportID = rec.ID
	}
	out.Saved = true
	return out
}

func (s *Service) savePersonalInfo(ctx context.Context, e *model.EntryRecord, p model.SectionPayload, now time.Time) model.SectionOutcome {
	out := model.SectionOutcome{Section: schema.SectionPersonalInfo}
	if violations := s.validate(schema.SectionPersonalInfo, p.Fields); len(violations) > 0 {
		out.Error = fmt.Sprintf("validation failed: %v", violations)
		return out
	}

	var rec model.PersonalInfo
	isNew := e.PersonalInfoID == ""
	if isNew {
		rec = model.PersonalInfo{ID: uuid.New().String(), UserID: e.UserID, CreatedAt: now, UpdatedAt: now}
	} else {
		loaded, err := s.store.GetPersonalInfo(ctx, e.PersonalInfoID)
		if err != nil {
			out.Error = fmt.Sprintf("load personal info: %v", err)
			return out
		}
		rec = *loaded
	}

	merge.ApplyPersonalInfo(&rec, p.Fields, merge.NewTouched(p.Touched), now)
	if err := s.store.SavePersonalInfo(ctx, rec); err != nil {
		out.Error = fmt.Sprintf("save personal info: %v", err)
		return out
	}
	if isNew {
		e.PersonalInfoID = rec.ID
	}
	out.Saved = true
	return out
}

func (s *Service) saveTravel(ctx context.Context, e *model.EntryRecord, p model.SectionPayload, now time.Time) model.SectionOutcome {
	out := model.SectionOutcome{Section: schema.SectionTravel}
	if violations := s.validate(schema.SectionTravel, p.Fields); len(violations) > 0 {
		out.Error = fmt.Sprintf("validation failed: %v", violations)
		return out
	}

	var rec model.TravelInfo
	isNew := e.TravelInfoID == ""
	if isNew {
		rec = model.TravelInfo{
			ID: uuid.New().String(), UserID: e.UserID, DestinationID: e.DestinationID,
			Status: model.TravelStatusDraft, CreatedAt: now, UpdatedAt: now,
		}
	} else {
		loaded, err := s.store.GetTravelInfo(ctx, e.TravelInfoID)
		if err != nil {
			out.Error = fmt.Sprintf("load travel info: %v", err)
			return out
		}
		rec = *loaded
	}

	merge.ApplyTravelInfo(&rec, p.Fields, merge.NewTouched(p.Touched), now)

	// Derived status: completed once every tracked travel field is present.
	m := completion.Calculate(nil, nil, nil, &rec)
	if m.Travel.State == model.CategoryStateComplete {
		rec.Status = model.TravelStatusCompleted
	} else {
		rec.Status = model.TravelStatusDraft
	}

	if err := s.store.SaveTravelInfo(ctx, rec); err != nil {
		out.Error = fmt.Sprintf("save travel info: %v", err)
		return out
	}
	if isNew {
		e.TravelInfoID = rec.ID
	}
	out.Saved = true
	return out
}

func (s *Service) saveFundItem(ctx context.Context, e *model.EntryRecord, p model.FundItemPayload, now time.Time) model.SectionOutcome {
	out := model.SectionOutcome{Section: schema.SectionFundItem, ItemID: p.ID}

	if p.Delete {
		if p.ID == "" {
			out.Error = "delete requires an item id"
			return out
		}
		if err := s.store.DeleteFundItem(ctx, p.ID); err != nil {
			out.Error = fmt.Sprintf("delete fund item: %v", err)
			return out
		}
		ids := e.FundItemIDs[:0]
		for _, id := range e.FundItemIDs {
			if id != p.ID {
				ids = append(ids, id)
			}
		}
		e.FundItemIDs = ids
		out.Saved = true
		return out
	}

	if violations := s.validate(schema.SectionFundItem, p.Fields); len(violations) > 0 {
		out.Error = fmt.Sprintf("validation failed: %v", violations)
		return out
	}

	var rec model.FundItem
	isNew := p.ID == ""
	if isNew {
		rec = model.FundItem{ID: uuid.New().String(), UserID: e.UserID, CreatedAt: now, UpdatedAt: now}
		out.ItemID = rec.ID
	} else {
		loaded, err := s.store.GetFundItem(ctx, p.ID)
		if err != nil {
			out.Error = fmt.Sprintf("load fund item: %v", err)
			return out
		}
		rec = *loaded
	}

	merge.ApplyFundItem(&rec, p.Fields, merge.NewTouched(p.Touched), now)
	if err := s.store.SaveFundItem(ctx, rec); err != nil {
		out.Error = fmt.Sprintf("save fund item: %v", err)
		return out
	}
	if isNew {
		e.FundItemIDs = append(e.FundItemIDs, rec.ID)
	}
	out.Saved = true
	return out
}

// MissingFields reports what still blocks each incomplete category.
func (s *Service) MissingFields(ctx context.Context, userID, entryID string) (map[string][]string, error) {
	e, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	sec, err := s.loadSections(ctx, e)
	if err != nil {
		return nil, err
	}
	return completion.MissingFields(sec.passport, sec.personal, sec.funds, sec.travel), nil
}

// MarkAsReady promotes a complete entry to ready. The readiness gate lives
// here: an entry with any incomplete category is rejected.
func (s *Service) MarkAsReady(ctx context.Context, userID, entryID string) (*model.EntryRecord, error) {
	e, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}

	// Recompute first so stale metrics cannot gate the promotion either way.
	sec, err := s.loadSections(ctx, e)
	if err != nil {
		return nil, err
	}
	if err := s.recompute(ctx, e, sec); err != nil {
		return nil, err
	}
	if !e.IsReadyForSubmission() {
		return nil, ErrNotReady
	}
	if err := s.transition(ctx, e, model.EntryStatusReady); err != nil {
		return nil, err
	}
	return e, nil
}

// Submit sends the entry pack to the destination's arrival-card API and
// records the attempt in the card history. On success the entry moves to
// submitted and any prior live card of the same type is superseded.
func (s *Service) Submit(ctx context.Context, userID, entryID string, req model.SubmitRequest) (*model.DigitalArrivalCard, error) {
	if req.CardType == "" {
		return nil, fmt.Errorf("card type is required")
	}
	e, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(e.Status, model.EntryStatusSubmitted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, model.EntryStatusSubmitted)
	}
	if s.submitter == nil {
		return nil, fmt.Errorf("%w: no upstream configured", ErrSubmissionFailed)
	}

	sec, err := s.loadSections(ctx, e)
	if err != nil {
		return nil, err
	}

	prior, err := s.cards.History(ctx, entryID, req.CardType)
	if err != nil {
		return nil, err
	}

	start := s.now()
	result, subErr := s.submitter.Submit(ctx, submission.Request{
		EntryID:      e.ID,
		CardType:     req.CardType,
		Method:       req.Method,
		Passport:     sec.passport,
		PersonalInfo: sec.personal,
		Travel:       sec.travel,
		Funds:        sec.funds,
	})
	elapsed := s.now().Sub(start).Seconds()

	attempt := model.DigitalArrivalCard{
		EntryID:    e.ID,
		CardType:   req.CardType,
		Method:     req.Method,
		RetryCount: len(prior),
	}

	if subErr != nil {
		attempt.Status = model.CardStatusFailed
		var upErr *submission.UpstreamError
		if errors.As(subErr, &upErr) {
			attempt.ErrorDetails = map[string]any{"statusCode": upErr.StatusCode}
			for k, v := range upErr.Details {
				attempt.ErrorDetails[k] = v
			}
		} else {
			attempt.ErrorDetails = map[string]any{"error": subErr.Error()}
		}

		failed, recErr := s.cards.Record(ctx, attempt)
		if recErr != nil {
			slog.Error("record failed submission attempt", "entryId", e.ID, "error", recErr)
		}
		s.metrics.SubmissionTotal.WithLabelValues(req.CardType, "failed").Inc()
		s.metrics.SubmissionDuration.WithLabelValues(req.CardType, "failed").Observe(elapsed)
		if failed != nil {
			if err := s.pub.PublishSubmissionResult(ctx, *failed); err != nil {
				slog.Warn("publish submission event failed", "entryId", e.ID, "error", err)
			}
		}
		return failed, fmt.Errorf("%w: %v", ErrSubmissionFailed, subErr)
	}

	attempt.Status = model.CardStatusSuccess
	attempt.ArrCardNo = result.ArrCardNo
	attempt.QRRef = result.QRRef
	attempt.PDFRef = result.PDFRef

	issued, err := s.cards.Record(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("record card: %w", err)
	}
	s.metrics.SubmissionTotal.WithLabelValues(req.CardType, "success").Inc()
	s.metrics.SubmissionDuration.WithLabelValues(req.CardType, "success").Observe(elapsed)

	if _, err := s.cards.SupersedePrior(ctx, e.ID, req.CardType, issued.ID, "resubmitted"); err != nil {
		slog.Warn("supersede prior cards failed", "entryId", e.ID, "error", err)
	}
	if err := s.transition(ctx, e, model.EntryStatusSubmitted); err != nil {
		return issued, err
	}
	if err := s.pub.PublishSubmissionResult(ctx, *issued); err != nil {
		slog.Warn("publish submission event failed", "entryId", e.ID, "error", err)
	}
	return issued, nil
}

// MarkAsSuperseded invalidates the live card after a data change and moves the
// entry back into the resubmission path.
func (s *Service) MarkAsSuperseded(ctx context.Context, userID, entryID, reason string) (*model.EntryRecord, error) {
	e, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, e, model.EntryStatusSuperseded); err != nil {
		return nil, err
	}

	// Invalidate every live successful card; the entry no longer has a valid one.
	cards, err := s.cards.History(ctx, entryID, "")
	if err != nil {
		return e, err
	}
	for _, c := range cards {
		if c.Status == model.CardStatusSuccess && !c.IsSuperseded {
			if err := s.cards.MarkSuperseded(ctx, c.ID, "", reason); err != nil {
				slog.Warn("mark card superseded failed", "cardId", c.ID, "error", err)
			}
		}
	}
	return e, nil
}

// Archive closes an entry for good and cuts a final snapshot.
func (s *Service) Archive(ctx context.Context, userID, entryID, reason string) (*model.EntryRecord, error) {
	e, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if e.Status == model.EntryStatusArchived {
		// Already closed; do not cut a second snapshot.
		return e, nil
	}
	if err := s.transition(ctx, e, model.EntryStatusArchived); err != nil {
		return nil, err
	}

	meta := map[string]string{}
	if reason != "" {
		meta["archiveReason"] = reason
	}
	if _, err := s.CreateSnapshot(ctx, userID, entryID, snapshot.ReasonArchived, meta); err != nil {
		slog.Warn("archive snapshot failed", "entryId", e.ID, "error", err)
	}
	return e, nil
}

// CreateSnapshot cuts and persists a snapshot of the entry pack.
func (s *Service) CreateSnapshot(ctx context.Context, userID, entryID, reason string, metadata map[string]string) (*model.SnapshotRecord, error) {
	e, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	sec, err := s.loadSections(ctx, e)
	if err != nil {
		return nil, err
	}
	cards, err := s.cards.History(ctx, entryID, "")
	if err != nil {
		return nil, err
	}

	start := s.now()
	snap, err := snapshot.New(snapshot.EntryPack{
		Entry:        *e,
		Passport:     sec.passport,
		PersonalInfo: sec.personal,
		Travel:       sec.travel,
		Funds:        sec.funds,
		Cards:        cards,
	}, reason, metadata)
	if err != nil {
		s.metrics.SnapshotBuildTotal.WithLabelValues(reason, "error").Inc()
		return nil, err
	}

	rec := snap.Record()
	if err := s.store.SaveSnapshot(ctx, rec); err != nil {
		s.metrics.SnapshotBuildTotal.WithLabelValues(reason, "error").Inc()
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	s.metrics.SnapshotBuildTotal.WithLabelValues(reason, "ok").Inc()
	s.metrics.SnapshotBuildDuration.WithLabelValues(reason, "ok").Observe(s.now().Sub(start).Seconds())

	if err := s.pub.PublishSnapshotCreated(ctx, rec); err != nil {
		slog.Warn("publish snapshot event failed", "snapshotId", rec.ID, "error", err)
	}
	return &rec, nil
}

// GetSnapshot loads one snapshot and enforces ownership through its entry.
func (s *Service) GetSnapshot(ctx context.Context, userID, snapshotID string) (*model.SnapshotRecord, error) {
	rec, err := s.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetEntry(ctx, userID, rec.EntryID); err != nil {
		return nil, err
	}
	return rec, nil
}

// ExpireSweep expires every non-terminal entry whose arrival date plus the
// grace period has passed. Returns how many entries were expired. Snapshots
// are cut so the traveler keeps a frozen copy of what they had prepared.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	expired := 0
	for _, status := range []model.EntryStatus{
		model.EntryStatusIncomplete,
		model.EntryStatusReady,
		model.EntryStatusSubmitted,
		model.EntryStatusSuperseded,
	} {
		entries, err := s.store.ListEntriesByStatus(ctx, status)
		if err != nil {
			return expired, err
		}
		for i := range entries {
			e := &entries[i]
			due, err := s.pastArrival(ctx, e)
			if err != nil {
				slog.Warn("expiry check failed", "entryId", e.ID, "error", err)
				continue
			}
			if !due {
				continue
			}
			if err := s.transition(ctx, e, model.EntryStatusExpired); err != nil {
				slog.Warn("expire transition failed", "entryId", e.ID, "error", err)
				continue
			}
			expired++
			if _, err := s.CreateSnapshot(ctx, e.UserID, e.ID, snapshot.ReasonExpired, nil); err != nil {
				slog.Warn("expiry snapshot failed", "entryId", e.ID, "error", err)
			}
		}
	}
	return expired, nil
}

// pastArrival reports whether the entry's arrival date plus grace has passed.
// Entries without a parseable arrival date never expire on their own.
func (s *Service) pastArrival(ctx context.Context, e *model.EntryRecord) (bool, error) {
	if e.TravelInfoID == "" {
		return false, nil
	}
	t, err := s.store.GetTravelInfo(ctx, e.TravelInfoID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if t.Arrival.Date == "" {
		return false, nil
	}
	arrival, err := time.Parse("2006-01-02", t.Arrival.Date)
	if err != nil {
		// Partially typed dates are legal in drafts; skip them.
		return false, nil
	}
	return s.now().UTC().After(arrival.Add(s.arrivalGrace)), nil
}
