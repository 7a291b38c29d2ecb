// internal/model/entry.go
// Package model defines the data structures used throughout the entry service.
// These structures represent the core domain objects for passports, traveler
// profiles, travel plans, funding proofs and the entry aggregate itself.
package model

import (
	"time"
)

// EntryStatus is the lifecycle state of an entry preparation.
// Transitions between states are validated by the entry package; the values
// here are also what gets persisted and shown on the wire.
type EntryStatus string

const (
	EntryStatusIncomplete EntryStatus = "incomplete" // Some required data is still missing
	EntryStatusReady      EntryStatus = "ready"      // All four categories complete, not yet submitted
	EntryStatusSubmitted  EntryStatus = "submitted"  // A card was successfully issued for this entry
	EntryStatusSuperseded EntryStatus = "superseded" // Data changed after issuance; card invalidated
	EntryStatusExpired    EntryStatus = "expired"    // Arrival window has passed
	EntryStatusArchived   EntryStatus = "archived"   // Terminal; kept for history only
)

// CategoryState is the three-state completion label for one data category.
type CategoryState string

const (
	CategoryStateMissing  CategoryState = "missing"  // Zero tracked fields filled
	CategoryStatePartial  CategoryState = "partial"  // Some but not all fields filled
	CategoryStateComplete CategoryState = "complete" // Every tracked field filled
)

// CategoryMetric counts satisfied required fields for one category.
type CategoryMetric struct {
	Complete int           `json:"complete"` // Number of satisfied fields/conditions
	Total    int           `json:"total"`    // Number of tracked fields/conditions
	State    CategoryState `json:"state"`    // Derived three-state label
}

// CompletionMetrics holds one metric per data category. The four categories
// carry different field counts, so the aggregate percentage is field-weighted
// rather than category-weighted.
type CompletionMetrics struct {
	Passport     CategoryMetric `json:"passport"`
	PersonalInfo CategoryMetric `json:"personalInfo"`
	Funds        CategoryMetric `json:"funds"`
	Travel       CategoryMetric `json:"travel"`
}

// Passport represents one travel document owned by a user.
// At most one passport per user carries the primary flag; the rest are
// addressable by id. Field values arrive incrementally (OCR or manual entry),
// so everything except identity fields may be blank at any point in time.
type Passport struct {
	ID             string    `json:"id" db:"id"`                          // Unique passport identifier
	UserID         string    `json:"userId" db:"user_id"`                 // Owning user
	PassportNumber string    `json:"passportNumber" db:"passport_number"` // Document number
	FullName       string    `json:"fullName" db:"full_name"`             // Name as printed in the document
	Nationality    string    `json:"nationality" db:"nationality"`        // ISO country or nationality label
	Gender         string    `json:"gender" db:"gender"`                  // Gender as printed in the document
	DateOfBirth    string    `json:"dateOfBirth" db:"date_of_birth"`      // ISO date, may be partially typed
	IssueDate      string    `json:"issueDate" db:"issue_date"`           // ISO date
	ExpiryDate     string    `json:"expiryDate" db:"expiry_date"`         // ISO date
	PhotoURI       string    `json:"photoUri" db:"photo_uri"`             // Reference to the document photo
	IsPrimary      bool      `json:"isPrimary" db:"is_primary"`           // Primary document flag
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`           // When the passport was created
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`           // Refreshed on every applied merge
}

// PersonalInfo is one contact/demographic profile for a user. A user may keep
// several labeled profiles (e.g. different residency countries); the default
// one carries IsDefault.
type PersonalInfo struct {
	ID            string    `json:"id" db:"id"`                        // Unique profile identifier
	UserID        string    `json:"userId" db:"user_id"`               // Owning user
	PassportID    string    `json:"passportId,omitempty" db:"passport_id"` // Optional link to a specific passport
	Label         string    `json:"label" db:"label"`                  // User-facing profile name
	IsDefault     bool      `json:"isDefault" db:"is_default"`         // Default profile flag
	PhoneCode     string    `json:"phoneCode" db:"phone_code"`         // International dialing code
	PhoneNumber   string    `json:"phoneNumber" db:"phone_number"`     // Contact phone
	Email         string    `json:"email" db:"email"`                  // Contact email
	Address       string    `json:"address" db:"address"`              // Street address
	Occupation    string    `json:"occupation" db:"occupation"`        // Occupation
	ProvinceCity  string    `json:"provinceCity" db:"province_city"`   // Province or city of residence
	CountryRegion string    `json:"countryRegion" db:"country_region"` // Country/region of residence
	Gender        string    `json:"gender" db:"gender"`                // Self-reported gender
	Sex           string    `json:"sex,omitempty" db:"sex"`            // Legacy alias; read when Gender is blank
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// TravelStatus is the derived completion state of a travel plan.
type TravelStatus string

const (
	TravelStatusDraft     TravelStatus = "draft"     // Required travel fields not yet all present
	TravelStatusCompleted TravelStatus = "completed" // All required travel fields present
)

// FlightLeg captures one flight segment of a trip.
type FlightLeg struct {
	FlightNumber     string `json:"flightNumber" db:"flight_number"`         // e.g. TG-123
	DepartureAirport string `json:"departureAirport" db:"departure_airport"` // IATA code or name
	ArrivalAirport   string `json:"arrivalAirport" db:"arrival_airport"`     // IATA code or name
	Date             string `json:"date" db:"date"`                          // ISO date of the leg
}

// Accommodation describes where the traveler stays. Depending on Type either
// the hotel fields or the address breakdown fields are relevant.
type Accommodation struct {
	Type        string `json:"type" db:"type"`                // hotel, private, guesthouse, ...
	HotelName   string `json:"hotelName" db:"hotel_name"`     // Hotel name when Type is hotel-like
	Address     string `json:"address" db:"address"`          // Free-text address fallback
	Province    string `json:"province" db:"province"`        // Administrative area
	District    string `json:"district" db:"district"`        //
	SubDistrict string `json:"subDistrict" db:"sub_district"` //
	PostalCode  string `json:"postalCode" db:"postal_code"`   //
}

// TravelInfo is one trip: a single row per (user, destination).
type TravelInfo struct {
	ID                 string        `json:"id" db:"id"`                                  // Unique travel identifier
	UserID             string        `json:"userId" db:"user_id"`                         // Owning user
	DestinationID      string        `json:"destinationId" db:"destination_id"`           // Destination flow (e.g. th, hk)
	TravelPurpose      string        `json:"travelPurpose" db:"travel_purpose"`           // Purpose of visit
	BoardingCountry    string        `json:"boardingCountry" db:"boarding_country"`       // Country boarded from
	RecentStayCountry  string        `json:"recentStayCountry" db:"recent_stay_country"`  // Recent-stay declaration
	VisaNumber         string        `json:"visaNumber,omitempty" db:"visa_number"`       // Optional visa number
	Arrival            FlightLeg     `json:"arrival" db:"-"`                              // Inbound flight leg
	Departure          FlightLeg     `json:"departure" db:"-"`                            // Outbound flight leg
	Accommodation      Accommodation `json:"accommodation" db:"-"`                        // Stay details
	IsTransitPassenger bool          `json:"isTransitPassenger" db:"is_transit_passenger"` // Transit flag
	Status             TravelStatus  `json:"status" db:"status"`                          // Derived draft/completed
	CreatedAt          time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time     `json:"updatedAt" db:"updated_at"`
}

// FundItemType enumerates the accepted kinds of funding proof.
type FundItemType string

const (
	FundTypeCreditCard  FundItemType = "credit_card"
	FundTypeCash        FundItemType = "cash"
	FundTypeBankBalance FundItemType = "bank_balance"
	FundTypeInvestment  FundItemType = "investment"
	FundTypeOther       FundItemType = "other"
)

// FundItem is a single funding-proof record. Amount is a pointer so that
// "not entered yet" is distinguishable from an explicit zero.
type FundItem struct {
	ID        string       `json:"id" db:"id"`               // Unique fund item identifier
	UserID    string       `json:"userId" db:"user_id"`      // Owning user
	Type      FundItemType `json:"type" db:"type"`           // Kind of proof
	Amount    *float64     `json:"amount" db:"amount"`       // Declared amount, nil until entered
	Currency  string       `json:"currency" db:"currency"`   // ISO currency code
	Details   string       `json:"details" db:"details"`     // Free-text notes
	PhotoURI  string       `json:"photoUri" db:"photo_uri"`  // Optional proof photo reference
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time    `json:"updatedAt" db:"updated_at"`
}

// HasRequiredFields reports whether the item counts toward the funds category:
// type, amount and currency must all be present.
func (f FundItem) HasRequiredFields() bool {
	return f.Type != "" && f.Amount != nil && f.Currency != ""
}

// EntryRecord is the aggregate root of one travel-document preparation.
// It references the section records by id, owns the completion metrics and the
// lifecycle status, and round-trips opaque UI blobs (Documents, DisplayStatus)
// through storage untouched.
type EntryRecord struct {
	ID             string            `json:"id" db:"id"`                         // Unique entry identifier
	UserID         string            `json:"userId" db:"user_id"`                // Owning user
	DestinationID  string            `json:"destinationId" db:"destination_id"`  // Destination flow
	PassportID     string            `json:"passportId" db:"passport_id"`        // Linked passport
	PersonalInfoID string            `json:"personalInfoId" db:"personal_info_id"` // Linked profile
	TravelInfoID   string            `json:"travelInfoId" db:"travel_info_id"`   // Linked travel plan
	FundItemIDs    []string          `json:"fundItemIds" db:"fund_item_ids"`     // Linked funding proofs
	Completion     CompletionMetrics `json:"completionMetrics" db:"completion_metrics"` // Per-category readiness
	Status         EntryStatus       `json:"status" db:"status"`                 // Lifecycle state
	Documents      map[string]any    `json:"documents" db:"documents"`           // Opaque UI blob, persisted as-is
	DisplayStatus  map[string]any    `json:"displayStatus" db:"display_status"`  // Opaque UI blob, persisted as-is
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
	LastUpdatedAt  time.Time         `json:"lastUpdatedAt" db:"last_updated_at"` // Refreshed on every transition/save
}

// IsReadyForSubmission reports whether every category is complete.
// This is the single readiness definition; MarkAsReady enforces it.
func (e EntryRecord) IsReadyForSubmission() bool {
	return e.Completion.Passport.State == CategoryStateComplete &&
		e.Completion.PersonalInfo.State == CategoryStateComplete &&
		e.Completion.Funds.State == CategoryStateComplete &&
		e.Completion.Travel.State == CategoryStateComplete
}

// IsEditable reports whether the user may still change section data.
// Submitted, expired and archived entries are read-only.
func (e EntryRecord) IsEditable() bool {
	switch e.Status {
	case EntryStatusIncomplete, EntryStatusReady, EntryStatusSuperseded:
		return true
	}
	return false
}

// RequiresResubmission is true exactly when an issued card was invalidated by
// a later edit and the entry must go through submission again.
func (e EntryRecord) RequiresResubmission() bool {
	return e.Status == EntryStatusSuperseded
}

// CardStatus is the outcome of one submission attempt.
type CardStatus string

const (
	CardStatusPending CardStatus = "pending"
	CardStatusSuccess CardStatus = "success"
	CardStatusFailed  CardStatus = "failed"
)

// DigitalArrivalCard is one append-only submission attempt for an entry and
// card type. History is never deleted; a later successful card marks earlier
// ones superseded via the linkage fields.
type DigitalArrivalCard struct {
	ID               string         `json:"id" db:"id"`                             // ULID, time-ordered
	EntryID          string         `json:"entryId" db:"entry_id"`                  // Owning entry
	CardType         string         `json:"cardType" db:"card_type"`                // e.g. tdac
	ArrCardNo        string         `json:"arrCardNo,omitempty" db:"arr_card_no"`   // Issued card number
	QRRef            string         `json:"qrRef,omitempty" db:"qr_ref"`            // QR artifact reference
	PDFRef           string         `json:"pdfRef,omitempty" db:"pdf_ref"`          // PDF artifact reference
	Method           string         `json:"method" db:"method"`                     // Submission method
	Status           CardStatus     `json:"status" db:"status"`                     // pending/success/failed
	RetryCount       int            `json:"retryCount" db:"retry_count"`            // Attempts so far
	ErrorDetails     map[string]any `json:"errorDetails,omitempty" db:"error_details"` // Structured failure info
	IsSuperseded     bool           `json:"isSuperseded" db:"is_superseded"`        // Invalidated by a later card
	SupersededBy     string         `json:"supersededBy,omitempty" db:"superseded_by"` // Card id that replaced this one
	SupersededReason string         `json:"supersededReason,omitempty" db:"superseded_reason"`
	SupersededAt     *time.Time     `json:"supersededAt,omitempty" db:"superseded_at"`
	CreatedAt        time.Time      `json:"createdAt" db:"created_at"`
}

// SnapshotRecord is the persisted form of an entry-pack snapshot. The snapshot
// package wraps it in an immutable value type; storage only ever sees this
// plain record.
type SnapshotRecord struct {
	ID           string               `json:"id" db:"id"`                     // ULID, time-ordered
	EntryID      string               `json:"entryId" db:"entry_id"`          // Source entry
	Reason       string               `json:"reason" db:"reason"`             // completed/expired/archived
	Passport     *Passport            `json:"passport,omitempty"`             // Copied section data
	PersonalInfo *PersonalInfo        `json:"personalInfo,omitempty"`         //
	Travel       *TravelInfo          `json:"travel,omitempty"`               //
	Funds        []FundItem           `json:"funds,omitempty"`                //
	Submission   *DigitalArrivalCard  `json:"submission,omitempty"`           // Representative card at snapshot time
	Completeness SnapshotCompleteness `json:"completenessIndicator"`          // Coarse per-category booleans
	PhotoManifest []PhotoCopy         `json:"photoManifest,omitempty"`        // Fund photo copy pipeline state
	Encryption   *EncryptionInfo      `json:"encryptionInfo,omitempty"`       // Set once the pack is encrypted
	Metadata     map[string]string    `json:"metadata,omitempty"`             // Caller-supplied context
	CreatedAt    time.Time            `json:"createdAt" db:"created_at"`
}

// SnapshotCompleteness is the coarse, boolean-per-category indicator stored on
// snapshots. Deliberately simpler than CompletionMetrics.
type SnapshotCompleteness struct {
	HasPassport     bool `json:"hasPassport"`
	HasPersonalInfo bool `json:"hasPersonalInfo"`
	HasFunds        bool `json:"hasFunds"`
	HasTravel       bool `json:"hasTravel"`
	Percent         int  `json:"percent"` // completed categories / 4 * 100
}

// PhotoCopyStage tracks a fund-item photo through the snapshot copy pipeline.
type PhotoCopyStage string

const (
	PhotoCopyPending   PhotoCopyStage = "pending"   // Manifest entry created, copy not started
	PhotoCopyCopied    PhotoCopyStage = "copied"    // Object copied into the snapshot prefix
	PhotoCopyEncrypted PhotoCopyStage = "encrypted" // Copy encrypted at rest
	PhotoCopyFailed    PhotoCopyStage = "failed"    // Copy or encryption failed
)

// PhotoCopy is one entry in a snapshot's photo manifest.
type PhotoCopy struct {
	FundItemID string         `json:"fundItemId"` // Source fund item
	SourceURI  string         `json:"sourceUri"`  // Original photo reference
	CopyURI    string         `json:"copyUri,omitempty"` // Snapshot-owned copy once made
	Stage      PhotoCopyStage `json:"stage"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// EncryptionInfo records how a snapshot's pack was encrypted.
type EncryptionInfo struct {
	Algorithm   string    `json:"algorithm"`
	KeyRef      string    `json:"keyRef"`
	EncryptedAt time.Time `json:"encryptedAt"`
}
