// internal/storage/codec.go
// JSON encoding helpers shared by the storage backends. JSON-shaped fields
// (completion metrics, documents, display status, error details) cross the
// persistence boundary as encoded strings; on the way back in, callers must
// tolerate either an already-parsed object or a string-encoded one, so every
// decode here tries both shapes before failing.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// decodeJSONValue unwraps raw JSONB bytes into dst, handling the
// doubly-encoded case where the column holds a JSON string whose content is
// itself encoded JSON.
func decodeJSONValue(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("undecodable JSON field: %w", err)
	}
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("undecodable string-encoded JSON field: %w", err)
	}
	return nil
}

func encodeEntry(e model.EntryRecord) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(raw []byte) (*model.EntryRecord, error) {
	var row struct {
		model.EntryRecord
		// Shadow the JSON-shaped fields so the defensive decode can run.
		Completion    json.RawMessage `json:"completionMetrics"`
		Documents     json.RawMessage `json:"documents"`
		DisplayStatus json.RawMessage `json:"displayStatus"`
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	e := row.EntryRecord
	if err := decodeJSONValue(row.Completion, &e.Completion); err != nil {
		return nil, fmt.Errorf("decode entry completion metrics: %w", err)
	}
	if err := decodeJSONValue(row.Documents, &e.Documents); err != nil {
		return nil, fmt.Errorf("decode entry documents: %w", err)
	}
	if err := decodeJSONValue(row.DisplayStatus, &e.DisplayStatus); err != nil {
		return nil, fmt.Errorf("decode entry display status: %w", err)
	}
	return &e, nil
}

func encodeCard(c model.DigitalArrivalCard) ([]byte, error) {
	return json.Marshal(c)
}

func decodeCard(raw []byte) (*model.DigitalArrivalCard, error) {
	var row struct {
		model.DigitalArrivalCard
		ErrorDetails json.RawMessage `json:"errorDetails"`
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decode card: %w", err)
	}
	c := row.DigitalArrivalCard
	if err := decodeJSONValue(row.ErrorDetails, &c.ErrorDetails); err != nil {
		return nil, fmt.Errorf("decode card error details: %w", err)
	}
	return &c, nil
}

func encodeSnapshot(s model.SnapshotRecord) ([]byte, error) {
	return json.Marshal(s)
}

func decodeSnapshot(raw []byte) (*model.SnapshotRecord, error) {
	var s model.SnapshotRecord
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}
