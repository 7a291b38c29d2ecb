// internal/schema/validator.go
// Package schema provides JSON schema validation for incoming section
// payloads. Payloads are checked before the merge runs so malformed input
// never reaches the stored records.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Section names accepted by the validator.
const (
	SectionPassport     = "passport"
	SectionPersonalInfo = "personalInfo"
	SectionTravel       = "travel"
	SectionFundItem     = "fundItem"
)

// SupportedSections lists the payload kinds that can be validated.
var SupportedSections = map[string]bool{
	SectionPassport:     true,
	SectionPersonalInfo: true,
	SectionTravel:       true,
	SectionFundItem:     true,
}

// Validator validates section payloads against JSON schemas. Fields are
// individually optional everywhere since data arrives incrementally; the
// schemas constrain shape and format, not presence.
type Validator struct {
	schemas map[string]*gojsonschema.Schema // Section name -> compiled schema
}

// NewValidator creates a validator with all section schemas compiled.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	if err := v.loadSchemas(); err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	return v, nil
}

// loadSchemas compiles the schema for each section. ISO dates are validated
// loosely (pattern, not calendar) because partially typed dates are legal
// while the user is still editing.
func (v *Validator) loadSchemas() error {
	isoDate := `"pattern":"^[0-9]{4}(-[0-9]{2}(-[0-9]{2})?)?$"`

	passportSchema := `{"type":"object","additionalProperties":true,"properties":{
		"passportNumber":{"type":["string","null"],"maxLength":20},
		"fullName":{"type":["string","null"],"maxLength":128},
		"nationality":{"type":["string","null"],"maxLength":64},
		"gender":{"type":["string","null"],"maxLength":16},
		"dateOfBirth":{"type":["string","null"],` + isoDate + `},
		"issueDate":{"type":["string","null"],` + isoDate + `},
		"expiryDate":{"type":["string","null"],` + isoDate + `},
		"photoUri":{"type":["string","null"],"maxLength":512},
		"isPrimary":{"type":["boolean","null"]}}}`
	if err := v.loadSchema(SectionPassport, passportSchema); err != nil {
		return fmt.Errorf("failed to load passport schema: %w", err)
	}

	personalSchema := `{"type":"object","additionalProperties":true,"properties":{
		"label":{"type":["string","null"],"maxLength":64},
		"isDefault":{"type":["boolean","null"]},
		"phoneCode":{"type":["string","null"],"maxLength":8},
		"phoneNumber":{"type":["string","null"],"maxLength":32},
		"email":{"type":["string","null"],"maxLength":128},
		"address":{"type":["string","null"],"maxLength":256},
		"occupation":{"type":["string","null"],"maxLength":64},
		"provinceCity":{"type":["string","null"],"maxLength":64},
		"countryRegion":{"type":["string","null"],"maxLength":64},
		"gender":{"type":["string","null"],"maxLength":16},
		"sex":{"type":["string","null"],"maxLength":16}}}`
	if err := v.loadSchema(SectionPersonalInfo, personalSchema); err != nil {
		return fmt.Errorf("failed to load personal info schema: %w", err)
	}

	flightLeg := `{"type":["object","null"],"additionalProperties":true,"properties":{
		"flightNumber":{"type":["string","null"],"maxLength":16},
		"departureAirport":{"type":["string","null"],"maxLength":64},
		"arrivalAirport":{"type":["string","null"],"maxLength":64},
		"date":{"type":["string","null"],` + isoDate + `}}}`
	travelSchema := `{"type":"object","additionalProperties":true,"properties":{
		"travelPurpose":{"type":["string","null"],"maxLength":64},
		"boardingCountry":{"type":["string","null"],"maxLength":64},
		"recentStayCountry":{"type":["string","null"],"maxLength":64},
		"visaNumber":{"type":["string","null"],"maxLength":32},
		"arrival":` + flightLeg + `,
		"departure":` + flightLeg + `,
		"accommodation":{"type":["object","null"],"additionalProperties":true},
		"isTransitPassenger":{"type":["boolean","null"]}}}`
	if err := v.loadSchema(SectionTravel, travelSchema); err != nil {
		return fmt.Errorf("failed to load travel schema: %w", err)
	}

	fundSchema := `{"type":"object","additionalProperties":true,"properties":{
		"type":{"type":["string","null"],"enum":["credit_card","cash","bank_balance","investment","other",null]},
		"amount":{"type":["number","null"],"minimum":0},
		"currency":{"type":["string","null"],"maxLength":8},
		"details":{"type":["string","null"],"maxLength":256},
		"photoUri":{"type":["string","null"],"maxLength":512}}}`
	if err := v.loadSchema(SectionFundItem, fundSchema); err != nil {
		return fmt.Errorf("failed to load fund item schema: %w", err)
	}

	return nil
}

// loadSchema compiles a single schema string.
func (v *Validator) loadSchema(section, schemaJSON string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", section, err)
	}
	v.schemas[section] = schema
	return nil
}

// Validate checks a section payload. It returns the human-readable list of
// violations; an empty list means the payload is acceptable. A non-nil error
// means validation itself could not run.
func (v *Validator) Validate(section string, fields map[string]any) ([]string, error) {
	if !SupportedSections[section] {
		return nil, fmt.Errorf("unsupported section: %s", section)
	}
	schema, exists := v.schemas[section]
	if !exists {
		return nil, fmt.Errorf("schema not found for section: %s", section)
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return violations, nil
}
