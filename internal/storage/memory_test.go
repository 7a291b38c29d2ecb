// internal/storage/memory_test.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

func TestEntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	now := time.Now().UTC().Truncate(time.Second)
	entry := model.EntryRecord{
		ID:             "entry-1",
		UserID:         "user-1",
		DestinationID:  "th",
		PassportID:     "passport-1",
		PersonalInfoID: "profile-1",
		TravelInfoID:   "travel-1",
		FundItemIDs:    []string{"fund-1", "fund-2"},
		Completion: model.CompletionMetrics{
			Passport: model.CategoryMetric{Complete: 5, Total: 5, State: model.CategoryStateComplete},
			Funds:    model.CategoryMetric{Complete: 0, Total: 1, State: model.CategoryStateMissing},
		},
		Status: model.EntryStatusIncomplete,
		Documents: map[string]any{
			"tdac": map[string]any{"shown": true},
		},
		DisplayStatus: map[string]any{"badge": "in_progress"},
		CreatedAt:     now,
		LastUpdatedAt: now,
	}

	if err := store.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}

	got, err := store.GetEntry(ctx, "entry-1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Completion.Passport.Complete != 5 || got.Completion.Passport.State != model.CategoryStateComplete {
		t.Errorf("completion metrics lost: %+v", got.Completion)
	}
	if got.Status != model.EntryStatusIncomplete {
		t.Errorf("status lost: %q", got.Status)
	}
	if len(got.FundItemIDs) != 2 || got.FundItemIDs[1] != "fund-2" {
		t.Errorf("fund item ids lost: %v", got.FundItemIDs)
	}
	if got.DisplayStatus["badge"] != "in_progress" {
		t.Errorf("display status lost: %v", got.DisplayStatus)
	}
	inner, ok := got.Documents["tdac"].(map[string]any)
	if !ok || inner["shown"] != true {
		t.Errorf("documents blob lost: %v", got.Documents)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	store := NewMemory()
	if _, err := store.GetEntry(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v want ErrNotFound", err)
	}
}

// TestDoubleEncodedFieldsDecode tests tolerance for legacy rows where the
// JSON-shaped columns hold string-encoded JSON instead of objects.
func TestDoubleEncodedFieldsDecode(t *testing.T) {
	completion := `{"passport":{"complete":2,"total":5,"state":"partial"}}`
	display := `{"badge":"in_progress"}`
	rawCompletion, _ := json.Marshal(completion)
	rawDisplay, _ := json.Marshal(display)

	raw := []byte(`{
		"id": "entry-legacy",
		"userId": "user-1",
		"destinationId": "th",
		"status": "incomplete",
		"completionMetrics": ` + string(rawCompletion) + `,
		"displayStatus": ` + string(rawDisplay) + `
	}`)

	e, err := decodeEntry(raw)
	if err != nil {
		t.Fatalf("decodeEntry: %v", err)
	}
	if e.Completion.Passport.Complete != 2 || e.Completion.Passport.State != model.CategoryStatePartial {
		t.Errorf("string-encoded completion not decoded: %+v", e.Completion)
	}
	if e.DisplayStatus["badge"] != "in_progress" {
		t.Errorf("string-encoded display status not decoded: %v", e.DisplayStatus)
	}
}

func TestDecodeJSONValueEmptyAndBlank(t *testing.T) {
	var dst map[string]any
	if err := decodeJSONValue(nil, &dst); err != nil {
		t.Errorf("nil raw: %v", err)
	}
	if err := decodeJSONValue([]byte(`""`), &dst); err != nil {
		t.Errorf("blank string: %v", err)
	}
	if dst != nil {
		t.Errorf("blank input should leave dst untouched, got %v", dst)
	}
}

func TestPrimaryPassportDemotion(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	first := model.Passport{ID: "p1", UserID: "user-1", IsPrimary: true}
	second := model.Passport{ID: "p2", UserID: "user-1", IsPrimary: true}
	other := model.Passport{ID: "p3", UserID: "user-2", IsPrimary: true}

	for _, p := range []model.Passport{first, other, second} {
		if err := store.SavePassport(ctx, p); err != nil {
			t.Fatalf("SavePassport(%s): %v", p.ID, err)
		}
	}

	primary, err := store.GetPrimaryPassport(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPrimaryPassport: %v", err)
	}
	if primary.ID != "p2" {
		t.Errorf("got primary %q want p2", primary.ID)
	}

	demoted, err := store.GetPassport(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPassport: %v", err)
	}
	if demoted.IsPrimary {
		t.Errorf("p1 should have been demoted")
	}

	// A different user's primary is untouched.
	otherPrimary, err := store.GetPrimaryPassport(ctx, "user-2")
	if err != nil || otherPrimary.ID != "p3" {
		t.Errorf("user-2 primary: %v %v", otherPrimary, err)
	}
}

func TestFundItemAmountIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	amount := 1000.0
	item := model.FundItem{ID: "f1", UserID: "user-1", Type: model.FundTypeCash, Amount: &amount, Currency: "THB"}
	if err := store.SaveFundItem(ctx, item); err != nil {
		t.Fatalf("SaveFundItem: %v", err)
	}

	// Mutating the caller's float must not leak into the stored record.
	amount = 9999.0
	got, err := store.GetFundItem(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFundItem: %v", err)
	}
	if got.Amount == nil || *got.Amount != 1000.0 {
		t.Errorf("stored amount aliased: %v", got.Amount)
	}
}

func TestAppendCardConflictAndOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	// ULID-shaped ids: lexicographic order is creation order.
	older := model.DigitalArrivalCard{ID: "01HZZZZZZZZZZZZZZZZZZZZZA1", EntryID: "entry-1", CardType: "tdac", Status: model.CardStatusFailed}
	newer := model.DigitalArrivalCard{ID: "01HZZZZZZZZZZZZZZZZZZZZZB2", EntryID: "entry-1", CardType: "tdac", Status: model.CardStatusSuccess}

	if err := store.AppendCard(ctx, older); err != nil {
		t.Fatalf("AppendCard: %v", err)
	}
	if err := store.AppendCard(ctx, newer); err != nil {
		t.Fatalf("AppendCard: %v", err)
	}
	if err := store.AppendCard(ctx, older); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate append: got %v want ErrConflict", err)
	}

	cards, err := store.ListCardsByEntry(ctx, "entry-1", "tdac")
	if err != nil {
		t.Fatalf("ListCardsByEntry: %v", err)
	}
	if len(cards) != 2 || cards[0].ID != newer.ID {
		t.Errorf("expected newest first, got %v", cards)
	}

	// Type filter excludes non-matching cards.
	cards, err = store.ListCardsByEntry(ctx, "entry-1", "other")
	if err != nil || len(cards) != 0 {
		t.Errorf("type filter: got %v %v", cards, err)
	}
}

func TestUpdateCardSupersedeLinkage(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	card := model.DigitalArrivalCard{ID: "c1", EntryID: "entry-1", CardType: "tdac", Status: model.CardStatusSuccess}
	if err := store.AppendCard(ctx, card); err != nil {
		t.Fatalf("AppendCard: %v", err)
	}

	when := time.Now().UTC().Truncate(time.Second)
	card.IsSuperseded = true
	card.SupersededBy = "c2"
	card.SupersededReason = "traveler data changed"
	card.SupersededAt = &when
	if err := store.UpdateCard(ctx, card); err != nil {
		t.Fatalf("UpdateCard: %v", err)
	}

	got, err := store.GetCard(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if !got.IsSuperseded || got.SupersededBy != "c2" || got.SupersededAt == nil {
		t.Errorf("supersede linkage lost: %+v", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	amount := 5000.0
	rec := model.SnapshotRecord{
		ID:      "01J0000000000000000000000A",
		EntryID: "entry-1",
		Reason:  "completed",
		Passport: &model.Passport{
			ID: "p1", FullName: "ANNA LEE", PassportNumber: "AA1234567",
		},
		Funds: []model.FundItem{
			{ID: "f1", Type: model.FundTypeCash, Amount: &amount, Currency: "THB"},
		},
		Completeness: model.SnapshotCompleteness{
			HasPassport: true, HasFunds: true, Percent: 50,
		},
		Metadata:  map[string]string{"trigger": "user"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := store.SaveSnapshot(ctx, rec); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := store.GetSnapshot(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got.Passport == nil || got.Passport.FullName != "ANNA LEE" {
		t.Errorf("passport copy lost: %+v", got.Passport)
	}
	if len(got.Funds) != 1 || got.Funds[0].Amount == nil || *got.Funds[0].Amount != 5000.0 {
		t.Errorf("fund copy lost: %+v", got.Funds)
	}
	if got.Completeness.Percent != 50 {
		t.Errorf("completeness lost: %+v", got.Completeness)
	}

	list, err := store.ListSnapshotsByEntry(ctx, "entry-1")
	if err != nil || len(list) != 1 {
		t.Errorf("ListSnapshotsByEntry: %v %v", list, err)
	}
}

func TestListEntriesByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	for _, e := range []model.EntryRecord{
		{ID: "e1", UserID: "u1", Status: model.EntryStatusSubmitted},
		{ID: "e2", UserID: "u1", Status: model.EntryStatusIncomplete},
		{ID: "e3", UserID: "u2", Status: model.EntryStatusSubmitted},
	} {
		if err := store.SaveEntry(ctx, e); err != nil {
			t.Fatalf("SaveEntry: %v", err)
		}
	}

	submitted, err := store.ListEntriesByStatus(ctx, model.EntryStatusSubmitted)
	if err != nil {
		t.Fatalf("ListEntriesByStatus: %v", err)
	}
	if len(submitted) != 2 {
		t.Errorf("got %d submitted entries want 2", len(submitted))
	}

	mine, err := store.ListEntriesByUser(ctx, "u1")
	if err != nil || len(mine) != 2 {
		t.Errorf("ListEntriesByUser: %v %v", mine, err)
	}
}
