// internal/completion/completion.go
// Package completion computes readiness metrics for an entry from its four
// data categories. The calculator is a pure function over the section records;
// it owns the canonical tracked-field lists and the three-state labeling rule.
package completion

import (
	"math"
	"strings"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// Tracked field names, reported back by MissingFields for UI display.
// The travel set is the canonical 6-field variant: hotelName falls back to the
// accommodation address when the stay is not hotel-like.
var (
	passportFields = []string{"passportNumber", "fullName", "nationality", "dateOfBirth", "expiryDate"}
	personalFields = []string{"occupation", "provinceCity", "countryRegion", "phoneNumber", "email", "gender"}
	travelFields   = []string{"travelPurpose", "arrivalDate", "departureDate", "arrivalFlightNumber", "departureFlightNumber", "hotelName"}
)

// has reports whether a user-entered value counts as present.
func has(v string) bool {
	return strings.TrimSpace(v) != ""
}

// passportValues maps tracked passport field names to their current values.
func passportValues(p *model.Passport) map[string]string {
	if p == nil {
		return map[string]string{}
	}
	return map[string]string{
		"passportNumber": p.PassportNumber,
		"fullName":       p.FullName,
		"nationality":    p.Nationality,
		"dateOfBirth":    p.DateOfBirth,
		"expiryDate":     p.ExpiryDate,
	}
}

// personalValues maps tracked profile field names to their current values.
// Gender reads the legacy sex alias when the gender field is blank.
func personalValues(pi *model.PersonalInfo) map[string]string {
	if pi == nil {
		return map[string]string{}
	}
	gender := pi.Gender
	if !has(gender) {
		gender = pi.Sex
	}
	return map[string]string{
		"occupation":    pi.Occupation,
		"provinceCity":  pi.ProvinceCity,
		"countryRegion": pi.CountryRegion,
		"phoneNumber":   pi.PhoneNumber,
		"email":         pi.Email,
		"gender":        gender,
	}
}

// travelValues maps tracked travel field names to their current values.
func travelValues(t *model.TravelInfo) map[string]string {
	if t == nil {
		return map[string]string{}
	}
	hotel := t.Accommodation.HotelName
	if !has(hotel) {
		hotel = t.Accommodation.Address
	}
	return map[string]string{
		"travelPurpose":         t.TravelPurpose,
		"arrivalDate":           t.Arrival.Date,
		"departureDate":         t.Departure.Date,
		"arrivalFlightNumber":   t.Arrival.FlightNumber,
		"departureFlightNumber": t.Departure.FlightNumber,
		"hotelName":             hotel,
	}
}

// metric derives the {complete,total,state} triple from a field-value map.
func metric(order []string, values map[string]string) model.CategoryMetric {
	complete := 0
	for _, name := range order {
		if has(values[name]) {
			complete++
		}
	}
	return model.CategoryMetric{
		Complete: complete,
		Total:    len(order),
		State:    stateFor(complete, len(order)),
	}
}

// stateFor applies the three-state rule: complete iff all, missing iff none.
func stateFor(complete, total int) model.CategoryState {
	switch {
	case complete == 0:
		return model.CategoryStateMissing
	case complete == total:
		return model.CategoryStateComplete
	default:
		return model.CategoryStatePartial
	}
}

// fundsMetric is the binary presence gate for the funds category: one fully
// specified item satisfies it, additional items never raise the score.
func fundsMetric(funds []model.FundItem) model.CategoryMetric {
	for _, f := range funds {
		if f.HasRequiredFields() {
			return model.CategoryMetric{Complete: 1, Total: 1, State: model.CategoryStateComplete}
		}
	}
	return model.CategoryMetric{Complete: 0, Total: 1, State: model.CategoryStateMissing}
}

// Calculate produces the completion metrics for an entry's four categories.
// Nil sections count as entirely missing.
func Calculate(p *model.Passport, pi *model.PersonalInfo, funds []model.FundItem, t *model.TravelInfo) model.CompletionMetrics {
	return model.CompletionMetrics{
		Passport:     metric(passportFields, passportValues(p)),
		PersonalInfo: metric(personalFields, personalValues(pi)),
		Funds:        fundsMetric(funds),
		Travel:       metric(travelFields, travelValues(t)),
	}
}

// Percent returns the aggregate completion percentage, weighted by each
// category's field count: funds (total 1) moves the needle far less than
// passport (total 5).
func Percent(m model.CompletionMetrics) int {
	complete := m.Passport.Complete + m.PersonalInfo.Complete + m.Funds.Complete + m.Travel.Complete
	total := m.Passport.Total + m.PersonalInfo.Total + m.Funds.Total + m.Travel.Total
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(complete) / float64(total) * 100))
}

// MissingFields lists, per category, the tracked field names currently failing
// the presence test. Categories with nothing missing are omitted.
func MissingFields(p *model.Passport, pi *model.PersonalInfo, funds []model.FundItem, t *model.TravelInfo) map[string][]string {
	missing := make(map[string][]string)

	collect := func(category string, order []string, values map[string]string) {
		var names []string
		for _, name := range order {
			if !has(values[name]) {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			missing[category] = names
		}
	}

	collect("passport", passportFields, passportValues(p))
	collect("personalInfo", personalFields, personalValues(pi))
	collect("travel", travelFields, travelValues(t))

	if fundsMetric(funds).Complete == 0 {
		missing["funds"] = []string{"fundItem"}
	}
	return missing
}
