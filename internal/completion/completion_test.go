// internal/completion/completion_test.go
// Package completion provides unit tests for the readiness calculator.
package completion

import (
	"testing"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// fullPassport returns a passport with all five tracked fields filled.
func fullPassport() *model.Passport {
	return &model.Passport{
		PassportNumber: "AA1234567",
		FullName:       "ANNA LEE",
		Nationality:    "SGP",
		DateOfBirth:    "1990-04-12",
		ExpiryDate:     "2031-01-01",
	}
}

// fullPersonal returns a profile with all six tracked fields filled.
func fullPersonal() *model.PersonalInfo {
	return &model.PersonalInfo{
		Occupation:    "engineer",
		ProvinceCity:  "Singapore",
		CountryRegion: "SG",
		PhoneNumber:   "81234567",
		Email:         "anna@example.com",
		Gender:        "F",
	}
}

// fullTravel returns a travel plan with all six tracked fields filled.
func fullTravel() *model.TravelInfo {
	return &model.TravelInfo{
		TravelPurpose: "holiday",
		Arrival:       model.FlightLeg{FlightNumber: "TG-404", Date: "2026-09-01"},
		Departure:     model.FlightLeg{FlightNumber: "TG-405", Date: "2026-09-10"},
		Accommodation: model.Accommodation{Type: "hotel", HotelName: "Riverside Hotel"},
	}
}

// completeFund returns a fund item satisfying the presence gate.
func completeFund() model.FundItem {
	amount := 20000.0
	return model.FundItem{Type: model.FundTypeCash, Amount: &amount, Currency: "THB"}
}

// TestPassportPartialToComplete tests that 3 of 5 passport fields give
// partial {3,5} and filling the remaining 2 flips to complete.
func TestPassportPartialToComplete(t *testing.T) {
	p := &model.Passport{
		PassportNumber: "AA1234567",
		FullName:       "ANNA LEE",
		Nationality:    "SGP",
	}
	m := Calculate(p, nil, nil, nil)
	if m.Passport.Complete != 3 || m.Passport.Total != 5 {
		t.Errorf("got %d/%d want 3/5", m.Passport.Complete, m.Passport.Total)
	}
	if m.Passport.State != model.CategoryStatePartial {
		t.Errorf("got state %q want partial", m.Passport.State)
	}

	p.DateOfBirth = "1990-04-12"
	p.ExpiryDate = "2031-01-01"
	m = Calculate(p, nil, nil, nil)
	if m.Passport.State != model.CategoryStateComplete || m.Passport.Complete != 5 {
		t.Errorf("got %+v want complete 5/5", m.Passport)
	}
}

// TestStateInvariants tests state == complete iff complete == total and
// state == missing iff complete == 0, for every category.
func TestStateInvariants(t *testing.T) {
	m := Calculate(nil, nil, nil, nil)
	for name, c := range map[string]model.CategoryMetric{
		"passport": m.Passport, "personalInfo": m.PersonalInfo,
		"funds": m.Funds, "travel": m.Travel,
	} {
		if c.Complete != 0 || c.State != model.CategoryStateMissing {
			t.Errorf("%s: empty input should be missing, got %+v", name, c)
		}
	}

	m = Calculate(fullPassport(), fullPersonal(), []model.FundItem{completeFund()}, fullTravel())
	for name, c := range map[string]model.CategoryMetric{
		"passport": m.Passport, "personalInfo": m.PersonalInfo,
		"funds": m.Funds, "travel": m.Travel,
	} {
		if c.Complete != c.Total || c.State != model.CategoryStateComplete {
			t.Errorf("%s: full input should be complete, got %+v", name, c)
		}
	}
}

// TestFundsPresenceGate tests that no items is missing; one item lacking
// currency is still missing; adding currency completes the gate; and extra
// items never raise the score beyond 1/1.
func TestFundsPresenceGate(t *testing.T) {
	m := Calculate(nil, nil, nil, nil)
	if m.Funds.Complete != 0 || m.Funds.Total != 1 || m.Funds.State != model.CategoryStateMissing {
		t.Errorf("zero items: got %+v", m.Funds)
	}

	amount := 500.0
	item := model.FundItem{Type: model.FundTypeBankBalance, Amount: &amount}
	m = Calculate(nil, nil, []model.FundItem{item}, nil)
	if m.Funds.State != model.CategoryStateMissing {
		t.Errorf("item without currency: got %+v", m.Funds)
	}

	item.Currency = "USD"
	m = Calculate(nil, nil, []model.FundItem{item, completeFund()}, nil)
	if m.Funds.Complete != 1 || m.Funds.Total != 1 || m.Funds.State != model.CategoryStateComplete {
		t.Errorf("complete item: got %+v", m.Funds)
	}
}

// TestGenderSexAliasFallback tests that the personal-info gender field reads
// the legacy sex alias when gender is absent.
func TestGenderSexAliasFallback(t *testing.T) {
	pi := fullPersonal()
	pi.Gender = ""
	pi.Sex = "F"
	m := Calculate(nil, pi, nil, nil)
	if m.PersonalInfo.State != model.CategoryStateComplete {
		t.Errorf("sex alias not honored: got %+v", m.PersonalInfo)
	}
}

// TestHotelNameFallsBackToAddress tests the canonical travel field set: the
// hotelName slot accepts the accommodation address for non-hotel stays.
func TestHotelNameFallsBackToAddress(t *testing.T) {
	tr := fullTravel()
	tr.Accommodation = model.Accommodation{Type: "private", Address: "12 Soi 4, Bangkok"}
	m := Calculate(nil, nil, nil, tr)
	if m.Travel.State != model.CategoryStateComplete {
		t.Errorf("address fallback not honored: got %+v", m.Travel)
	}
}

// TestWeightedPercent tests the field-weighted aggregate percentage.
func TestWeightedPercent(t *testing.T) {
	// All complete: 18/18 = 100.
	m := Calculate(fullPassport(), fullPersonal(), []model.FundItem{completeFund()}, fullTravel())
	if got := Percent(m); got != 100 {
		t.Errorf("got %d want 100", got)
	}

	// Only funds complete: 1/18 rounds to 6.
	m = Calculate(nil, nil, []model.FundItem{completeFund()}, nil)
	if got := Percent(m); got != 6 {
		t.Errorf("got %d want 6", got)
	}

	// Passport complete only: 5/18 rounds to 28.
	m = Calculate(fullPassport(), nil, nil, nil)
	if got := Percent(m); got != 28 {
		t.Errorf("got %d want 28", got)
	}
}

// TestMissingFieldsReporting tests the per-category missing-field lists.
func TestMissingFieldsReporting(t *testing.T) {
	p := fullPassport()
	p.ExpiryDate = ""
	missing := MissingFields(p, fullPersonal(), nil, nil)

	if got := missing["passport"]; len(got) != 1 || got[0] != "expiryDate" {
		t.Errorf("passport missing list: got %v", got)
	}
	if _, ok := missing["personalInfo"]; ok {
		t.Errorf("complete category should be omitted")
	}
	if got := missing["funds"]; len(got) != 1 || got[0] != "fundItem" {
		t.Errorf("funds missing list: got %v", got)
	}
	if got := missing["travel"]; len(got) != 6 {
		t.Errorf("travel missing list: got %v", got)
	}
}
