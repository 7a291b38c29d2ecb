// internal/model/requests.go
// Request and response shapes for the entry HTTP surface. Section payloads
// carry raw field maps plus the list of fields the user explicitly touched,
// which is what allows deliberate clears to pass the merge policy.
package model

// SectionPayload is one section's partial update. Fields holds the raw values
// keyed by JSON field name; Touched names the fields the user explicitly
// edited, including ones cleared to empty.
type SectionPayload struct {
	Fields  map[string]any `json:"fields"`
	Touched []string       `json:"touched,omitempty"`
}

// FundItemPayload addresses one fund item in a multi-section save. An empty ID
// creates a new item.
type FundItemPayload struct {
	ID      string         `json:"id,omitempty"`
	Fields  map[string]any `json:"fields"`
	Touched []string       `json:"touched,omitempty"`
	Delete  bool           `json:"delete,omitempty"` // Remove the item instead of merging
}

// CreateEntryRequest opens a new preparation for a destination.
type CreateEntryRequest struct {
	DestinationID string `json:"destinationId"`
}

// SaveSectionsRequest is one buffered save across any subset of sections.
type SaveSectionsRequest struct {
	Passport     *SectionPayload   `json:"passport,omitempty"`
	PersonalInfo *SectionPayload   `json:"personalInfo,omitempty"`
	Travel       *SectionPayload   `json:"travel,omitempty"`
	FundItems    []FundItemPayload `json:"fundItems,omitempty"`
}

// SectionOutcome reports one sub-save inside a multi-section save.
type SectionOutcome struct {
	Section string `json:"section"`         // passport, personalInfo, travel, fundItem
	ItemID  string `json:"itemId,omitempty"` // Fund item id when Section is fundItem
	Saved   bool   `json:"saved"`
	Error   string `json:"error,omitempty"` // Human-readable failure when Saved is false
}

// SaveSectionsResult aggregates sub-save outcomes. The save as a whole fails
// only when every attempted sub-save failed.
type SaveSectionsResult struct {
	Outcomes []SectionOutcome  `json:"outcomes"`
	Entry    *EntryRecord      `json:"entry"`
	Missing  map[string][]string `json:"missingFields,omitempty"`
}

// AnySaved reports whether at least one sub-save succeeded.
func (r SaveSectionsResult) AnySaved() bool {
	for _, o := range r.Outcomes {
		if o.Saved {
			return true
		}
	}
	return false
}

// SubmitRequest asks for an arrival-card submission.
type SubmitRequest struct {
	CardType string `json:"cardType"` // e.g. tdac
	Method   string `json:"method"`   // app, web, agent
}

// SupersedeRequest invalidates the current card after a data change.
type SupersedeRequest struct {
	Reason string `json:"reason"`
}

// ArchiveRequest closes an entry for good.
type ArchiveRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SnapshotRequest cuts a snapshot on demand.
type SnapshotRequest struct {
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
