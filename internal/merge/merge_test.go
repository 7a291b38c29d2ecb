// internal/merge/merge_test.go
// Package merge provides unit tests for the non-destructive merge policy.
package merge

import (
	"testing"
	"time"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// TestEmptyStringDoesNotClobber tests the non-destructive merge law: applying
// an update with an empty or whitespace-only value to a non-empty field leaves
// the field unchanged.
func TestEmptyStringDoesNotClobber(t *testing.T) {
	now := time.Now().UTC()
	p := model.Passport{FullName: "ANNA LEE", UpdatedAt: now.Add(-time.Hour)}

	applied := ApplyPassport(&p, map[string]any{"fullName": ""}, nil, now)
	if applied {
		t.Errorf("blank update reported as applied")
	}
	if p.FullName != "ANNA LEE" {
		t.Errorf("field was clobbered: got %q", p.FullName)
	}

	applied = ApplyPassport(&p, map[string]any{"fullName": "   "}, nil, now)
	if applied || p.FullName != "ANNA LEE" {
		t.Errorf("whitespace update clobbered field: got %q", p.FullName)
	}
}

// TestNilValueSkipped tests that explicit JSON nulls never apply.
func TestNilValueSkipped(t *testing.T) {
	now := time.Now().UTC()
	p := model.Passport{Nationality: "THA"}

	if applied := ApplyPassport(&p, map[string]any{"nationality": nil}, nil, now); applied {
		t.Errorf("nil value reported as applied")
	}
	if p.Nationality != "THA" {
		t.Errorf("nil value clobbered field: got %q", p.Nationality)
	}
}

// TestTouchedFieldMayClear tests that an explicitly touched field applies even
// when the incoming value is blank, encoding the user's intentional clear.
func TestTouchedFieldMayClear(t *testing.T) {
	now := time.Now().UTC()
	p := model.Passport{Gender: "F"}

	touched := NewTouched([]string{"gender"})
	if applied := ApplyPassport(&p, map[string]any{"gender": ""}, touched, now); !applied {
		t.Errorf("touched blank update was not applied")
	}
	if p.Gender != "" {
		t.Errorf("touched clear did not take effect: got %q", p.Gender)
	}
}

// TestProtectedFieldsNeverMerge tests that id and createdAt cannot be written
// through the merge path.
func TestProtectedFieldsNeverMerge(t *testing.T) {
	now := time.Now().UTC()
	created := now.Add(-48 * time.Hour)
	p := model.Passport{ID: "pp-1", UserID: "u-1", CreatedAt: created}

	ApplyPassport(&p, map[string]any{
		"id":        "evil",
		"userId":    "someone-else",
		"createdAt": now.Format(time.RFC3339),
	}, NewTouched([]string{"id", "userId", "createdAt"}), now)

	if p.ID != "pp-1" || p.UserID != "u-1" || !p.CreatedAt.Equal(created) {
		t.Errorf("protected field was merged: %+v", p)
	}
}

// TestUpdatedAtRefreshedOnlyWhenApplied tests the UpdatedAt contract.
func TestUpdatedAtRefreshedOnlyWhenApplied(t *testing.T) {
	now := time.Now().UTC()
	old := now.Add(-time.Hour)
	p := model.Passport{PassportNumber: "X123", UpdatedAt: old}

	// Nothing applies: UpdatedAt untouched.
	ApplyPassport(&p, map[string]any{"passportNumber": ""}, nil, now)
	if !p.UpdatedAt.Equal(old) {
		t.Errorf("UpdatedAt refreshed without an applied field")
	}

	// A real value applies: UpdatedAt refreshed.
	ApplyPassport(&p, map[string]any{"passportNumber": "Y456"}, nil, now)
	if !p.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt not refreshed: got %v want %v", p.UpdatedAt, now)
	}
}

// TestValuesAreTrimmed tests that applied strings are stored trimmed.
func TestValuesAreTrimmed(t *testing.T) {
	now := time.Now().UTC()
	pi := model.PersonalInfo{}

	ApplyPersonalInfo(&pi, map[string]any{"email": "  anna@example.com  "}, nil, now)
	if pi.Email != "anna@example.com" {
		t.Errorf("value not trimmed: got %q", pi.Email)
	}
}

// TestBooleanAppliesAsIs tests that booleans apply without an emptiness check.
func TestBooleanAppliesAsIs(t *testing.T) {
	now := time.Now().UTC()
	tr := model.TravelInfo{IsTransitPassenger: true}

	if applied := ApplyTravelInfo(&tr, map[string]any{"isTransitPassenger": false}, nil, now); !applied {
		t.Errorf("boolean update was not applied")
	}
	if tr.IsTransitPassenger {
		t.Errorf("boolean false was not applied")
	}
}

// TestNestedTravelObjectsMerge tests merging into the nested flight legs and
// accommodation block.
func TestNestedTravelObjectsMerge(t *testing.T) {
	now := time.Now().UTC()
	tr := model.TravelInfo{
		Arrival:       model.FlightLeg{FlightNumber: "TG-101"},
		Accommodation: model.Accommodation{HotelName: "Riverside Hotel"},
	}

	ApplyTravelInfo(&tr, map[string]any{
		"arrival":       map[string]any{"flightNumber": "", "date": "2026-09-01"},
		"accommodation": map[string]any{"hotelName": "", "province": "Bangkok"},
	}, nil, now)

	if tr.Arrival.FlightNumber != "TG-101" {
		t.Errorf("nested blank clobbered flight number: got %q", tr.Arrival.FlightNumber)
	}
	if tr.Arrival.Date != "2026-09-01" {
		t.Errorf("nested date not applied: got %q", tr.Arrival.Date)
	}
	if tr.Accommodation.HotelName != "Riverside Hotel" {
		t.Errorf("nested blank clobbered hotel name: got %q", tr.Accommodation.HotelName)
	}
	if tr.Accommodation.Province != "Bangkok" {
		t.Errorf("nested province not applied: got %q", tr.Accommodation.Province)
	}
}

// TestFundAmountApplies tests that JSON numbers apply to the amount pointer.
func TestFundAmountApplies(t *testing.T) {
	now := time.Now().UTC()
	f := model.FundItem{Type: model.FundTypeCash}

	ApplyFundItem(&f, map[string]any{"amount": float64(20000), "currency": "THB"}, nil, now)
	if f.Amount == nil || *f.Amount != 20000 {
		t.Errorf("amount not applied: %+v", f.Amount)
	}
	if f.Currency != "THB" {
		t.Errorf("currency not applied: got %q", f.Currency)
	}
	if !f.HasRequiredFields() {
		t.Errorf("fund item with type+amount+currency should satisfy required fields")
	}
}
