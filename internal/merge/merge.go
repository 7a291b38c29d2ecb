// internal/merge/merge.go
// Package merge implements the non-destructive field merge policy used by
// progressive saves. Incoming partial updates arrive as decoded JSON objects;
// a field is applied only when it carries actual data, so a half-filled form
// can be flushed at any time without clobbering values entered in an earlier
// session.
package merge

import (
	"strings"
	"time"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// Touched is the set of field names the user explicitly interacted with.
// A blank string listed here is treated as an intentional clear rather than
// "no signal" and is applied despite the skip-if-empty rule.
type Touched map[string]bool

// NewTouched builds a Touched set from a list of field names.
func NewTouched(names []string) Touched {
	if len(names) == 0 {
		return nil
	}
	t := make(Touched, len(names))
	for _, n := range names {
		t[n] = true
	}
	return t
}

// protectedFields can never be written through a merge, regardless of the
// incoming payload. Identity and creation time belong to the record itself.
var protectedFields = map[string]bool{
	"id":        true,
	"userId":    true,
	"createdAt": true,
}

// ShouldApplyString reports whether an incoming string value should overwrite
// the current one: nil never applies, and a value that is empty after trimming
// applies only when the field was explicitly touched.
func ShouldApplyString(incoming any, touched bool) bool {
	if incoming == nil {
		return false
	}
	s, ok := incoming.(string)
	if !ok {
		return false
	}
	if strings.TrimSpace(s) == "" {
		return touched
	}
	return true
}

// applyString merges one string field. Returns true when the field was applied.
func applyString(dst *string, fields map[string]any, key string, touched Touched) bool {
	if protectedFields[key] {
		return false
	}
	v, ok := fields[key]
	if !ok {
		return false
	}
	if !ShouldApplyString(v, touched[key]) {
		return false
	}
	*dst = strings.TrimSpace(v.(string))
	return true
}

// applyBool merges one boolean field. Booleans carry no emptiness notion, so
// any non-nil value applies.
func applyBool(dst *bool, fields map[string]any, key string) bool {
	v, ok := fields[key]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		return false
	}
	*dst = b
	return true
}

// applyAmount merges a numeric amount; JSON numbers decode as float64.
func applyAmount(dst **float64, fields map[string]any, key string) bool {
	v, ok := fields[key]
	if !ok || v == nil {
		return false
	}
	f, ok := v.(float64)
	if !ok {
		return false
	}
	*dst = &f
	return true
}

// subObject extracts a nested JSON object, tolerating absent or null values.
func subObject(fields map[string]any, key string) map[string]any {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// ApplyPassport merges an incoming partial update into a passport.
// UpdatedAt is refreshed iff at least one field actually applied.
func ApplyPassport(p *model.Passport, fields map[string]any, touched Touched, now time.Time) bool {
	applied := false
	applied = applyString(&p.PassportNumber, fields, "passportNumber", touched) || applied
	applied = applyString(&p.FullName, fields, "fullName", touched) || applied
	applied = applyString(&p.Nationality, fields, "nationality", touched) || applied
	applied = applyString(&p.Gender, fields, "gender", touched) || applied
	applied = applyString(&p.DateOfBirth, fields, "dateOfBirth", touched) || applied
	applied = applyString(&p.IssueDate, fields, "issueDate", touched) || applied
	applied = applyString(&p.ExpiryDate, fields, "expiryDate", touched) || applied
	applied = applyString(&p.PhotoURI, fields, "photoUri", touched) || applied
	applied = applyBool(&p.IsPrimary, fields, "isPrimary") || applied
	if applied {
		p.UpdatedAt = now
	}
	return applied
}

// ApplyPersonalInfo merges an incoming partial update into a profile.
func ApplyPersonalInfo(pi *model.PersonalInfo, fields map[string]any, touched Touched, now time.Time) bool {
	applied := false
	applied = applyString(&pi.PassportID, fields, "passportId", touched) || applied
	applied = applyString(&pi.Label, fields, "label", touched) || applied
	applied = applyString(&pi.PhoneCode, fields, "phoneCode", touched) || applied
	applied = applyString(&pi.PhoneNumber, fields, "phoneNumber", touched) || applied
	applied = applyString(&pi.Email, fields, "email", touched) || applied
	applied = applyString(&pi.Address, fields, "address", touched) || applied
	applied = applyString(&pi.Occupation, fields, "occupation", touched) || applied
	applied = applyString(&pi.ProvinceCity, fields, "provinceCity", touched) || applied
	applied = applyString(&pi.CountryRegion, fields, "countryRegion", touched) || applied
	applied = applyString(&pi.Gender, fields, "gender", touched) || applied
	applied = applyString(&pi.Sex, fields, "sex", touched) || applied
	applied = applyBool(&pi.IsDefault, fields, "isDefault") || applied
	if applied {
		pi.UpdatedAt = now
	}
	return applied
}

// applyFlightLeg merges a nested flight-leg object.
func applyFlightLeg(leg *model.FlightLeg, fields map[string]any, touched Touched) bool {
	if fields == nil {
		return false
	}
	applied := false
	applied = applyString(&leg.FlightNumber, fields, "flightNumber", touched) || applied
	applied = applyString(&leg.DepartureAirport, fields, "departureAirport", touched) || applied
	applied = applyString(&leg.ArrivalAirport, fields, "arrivalAirport", touched) || applied
	applied = applyString(&leg.Date, fields, "date", touched) || applied
	return applied
}

// applyAccommodation merges the nested accommodation block.
func applyAccommodation(a *model.Accommodation, fields map[string]any, touched Touched) bool {
	if fields == nil {
		return false
	}
	applied := false
	applied = applyString(&a.Type, fields, "type", touched) || applied
	applied = applyString(&a.HotelName, fields, "hotelName", touched) || applied
	applied = applyString(&a.Address, fields, "address", touched) || applied
	applied = applyString(&a.Province, fields, "province", touched) || applied
	applied = applyString(&a.District, fields, "district", touched) || applied
	applied = applyString(&a.SubDistrict, fields, "subDistrict", touched) || applied
	applied = applyString(&a.PostalCode, fields, "postalCode", touched) || applied
	return applied
}

// ApplyTravelInfo merges an incoming partial update into a travel plan,
// including the nested arrival/departure legs and accommodation block.
func ApplyTravelInfo(t *model.TravelInfo, fields map[string]any, touched Touched, now time.Time) bool {
	applied := false
	applied = applyString(&t.TravelPurpose, fields, "travelPurpose", touched) || applied
	applied = applyString(&t.BoardingCountry, fields, "boardingCountry", touched) || applied
	applied = applyString(&t.RecentStayCountry, fields, "recentStayCountry", touched) || applied
	applied = applyString(&t.VisaNumber, fields, "visaNumber", touched) || applied
	applied = applyBool(&t.IsTransitPassenger, fields, "isTransitPassenger") || applied
	applied = applyFlightLeg(&t.Arrival, subObject(fields, "arrival"), touched) || applied
	applied = applyFlightLeg(&t.Departure, subObject(fields, "departure"), touched) || applied
	applied = applyAccommodation(&t.Accommodation, subObject(fields, "accommodation"), touched) || applied
	if applied {
		t.UpdatedAt = now
	}
	return applied
}

// ApplyFundItem merges an incoming partial update into a funding proof.
func ApplyFundItem(f *model.FundItem, fields map[string]any, touched Touched, now time.Time) bool {
	applied := false
	if v, ok := fields["type"]; ok && ShouldApplyString(v, touched["type"]) {
		f.Type = model.FundItemType(strings.TrimSpace(v.(string)))
		applied = true
	}
	applied = applyAmount(&f.Amount, fields, "amount") || applied
	applied = applyString(&f.Currency, fields, "currency", touched) || applied
	applied = applyString(&f.Details, fields, "details", touched) || applied
	applied = applyString(&f.PhotoURI, fields, "photoUri", touched) || applied
	if applied {
		f.UpdatedAt = now
	}
	return applied
}
