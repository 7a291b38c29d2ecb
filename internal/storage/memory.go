// internal/storage/memory.go
// Package storage provides implementations of the Store interface
// for both in-memory and PostgreSQL storage backends.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// Standard errors returned by the storage layer
var (
	ErrNotFound = errors.New("not found") // Returned when a record is not found
	ErrConflict = errors.New("conflict")  // Returned when a record already exists
)

// Store interface defines the persistence operations required by the entry
// service. All Save* methods have upsert semantics: create when absent, update
// when present. This interface is implemented by both in-memory and PostgreSQL
// storage backends.
type Store interface {
	// Entry aggregate operations
	SaveEntry(ctx context.Context, entry model.EntryRecord) error
	GetEntry(ctx context.Context, id string) (*model.EntryRecord, error)
	ListEntriesByUser(ctx context.Context, userID string) ([]model.EntryRecord, error)
	ListEntriesByStatus(ctx context.Context, status model.EntryStatus) ([]model.EntryRecord, error)

	// Passport operations
	SavePassport(ctx context.Context, p model.Passport) error
	GetPassport(ctx context.Context, id string) (*model.Passport, error)
	GetPrimaryPassport(ctx context.Context, userID string) (*model.Passport, error)

	// Personal info operations
	SavePersonalInfo(ctx context.Context, pi model.PersonalInfo) error
	GetPersonalInfo(ctx context.Context, id string) (*model.PersonalInfo, error)

	// Travel info operations
	SaveTravelInfo(ctx context.Context, t model.TravelInfo) error
	GetTravelInfo(ctx context.Context, id string) (*model.TravelInfo, error)

	// Fund item operations
	SaveFundItem(ctx context.Context, f model.FundItem) error
	GetFundItem(ctx context.Context, id string) (*model.FundItem, error)
	ListFundItemsByUser(ctx context.Context, userID string) ([]model.FundItem, error)
	DeleteFundItem(ctx context.Context, id string) error

	// Digital arrival card operations (append-only history plus supersede updates)
	AppendCard(ctx context.Context, card model.DigitalArrivalCard) error
	GetCard(ctx context.Context, id string) (*model.DigitalArrivalCard, error)
	UpdateCard(ctx context.Context, card model.DigitalArrivalCard) error
	ListCardsByEntry(ctx context.Context, entryID, cardType string) ([]model.DigitalArrivalCard, error)

	// Snapshot operations
	SaveSnapshot(ctx context.Context, rec model.SnapshotRecord) error
	GetSnapshot(ctx context.Context, id string) (*model.SnapshotRecord, error)
	ListSnapshotsByEntry(ctx context.Context, entryID string) ([]model.SnapshotRecord, error)
}

// memory implements the Store interface using in-memory maps.
// It's intended for development and testing purposes. Records round-trip
// through the same JSON encoding the Postgres backend uses, so the
// encode/decode contract is exercised in tests too.
type memory struct {
	mu        sync.RWMutex
	entries   map[string][]byte                    // entry id -> encoded record
	passports map[string]*model.Passport           // passport id -> record
	personal  map[string]*model.PersonalInfo       // profile id -> record
	travel    map[string]*model.TravelInfo         // travel id -> record
	funds     map[string]*model.FundItem           // fund item id -> record
	cards     map[string][]byte                    // card id -> encoded record
	snapshots map[string][]byte                    // snapshot id -> encoded record
}

// NewMemory creates a new in-memory storage implementation.
func NewMemory() Store {
	return &memory{
		entries:   make(map[string][]byte),
		passports: make(map[string]*model.Passport),
		personal:  make(map[string]*model.PersonalInfo),
		travel:    make(map[string]*model.TravelInfo),
		funds:     make(map[string]*model.FundItem),
		cards:     make(map[string][]byte),
		snapshots: make(map[string][]byte),
	}
}

func (m *memory) SaveEntry(ctx context.Context, entry model.EntryRecord) error {
	raw, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = raw
	return nil
}

func (m *memory) GetEntry(ctx context.Context, id string) (*model.EntryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, exists := m.entries[id]
	if !exists {
		return nil, ErrNotFound
	}
	return decodeEntry(raw)
}

func (m *memory) ListEntriesByUser(ctx context.Context, userID string) ([]model.EntryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.EntryRecord
	for _, raw := range m.entries {
		e, err := decodeEntry(raw)
		if err != nil {
			return nil, err
		}
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (m *memory) ListEntriesByStatus(ctx context.Context, status model.EntryStatus) ([]model.EntryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.EntryRecord
	for _, raw := range m.entries {
		e, err := decodeEntry(raw)
		if err != nil {
			return nil, err
		}
		if e.Status == status {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out, nil
}

// sortEntries orders newest-updated first for stable listings.
func sortEntries(entries []model.EntryRecord) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastUpdatedAt.Equal(entries[j].LastUpdatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].LastUpdatedAt.After(entries[j].LastUpdatedAt)
	})
}

func (m *memory) SavePassport(ctx context.Context, p model.Passport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A user keeps at most one primary passport; promoting one demotes the rest.
	if p.IsPrimary {
		for _, other := range m.passports {
			if other.UserID == p.UserID && other.ID != p.ID {
				other.IsPrimary = false
			}
		}
	}
	cp := p
	m.passports[p.ID] = &cp
	return nil
}

func (m *memory) GetPassport(ctx context.Context, id string) (*model.Passport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.passports[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memory) GetPrimaryPassport(ctx context.Context, userID string) (*model.Passport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.passports {
		if p.UserID == userID && p.IsPrimary {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memory) SavePersonalInfo(ctx context.Context, pi model.PersonalInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pi.IsDefault {
		for _, other := range m.personal {
			if other.UserID == pi.UserID && other.ID != pi.ID {
				other.IsDefault = false
			}
		}
	}
	cp := pi
	m.personal[pi.ID] = &cp
	return nil
}

func (m *memory) GetPersonalInfo(ctx context.Context, id string) (*model.PersonalInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pi, exists := m.personal[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *pi
	return &cp, nil
}

func (m *memory) SaveTravelInfo(ctx context.Context, t model.TravelInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := t
	m.travel[t.ID] = &cp
	return nil
}

func (m *memory) GetTravelInfo(ctx context.Context, id string) (*model.TravelInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, exists := m.travel[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memory) SaveFundItem(ctx context.Context, f model.FundItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := f
	if f.Amount != nil {
		amount := *f.Amount
		cp.Amount = &amount
	}
	m.funds[f.ID] = &cp
	return nil
}

func (m *memory) GetFundItem(ctx context.Context, id string) (*model.FundItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, exists := m.funds[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *f
	if f.Amount != nil {
		amount := *f.Amount
		cp.Amount = &amount
	}
	return &cp, nil
}

func (m *memory) ListFundItemsByUser(ctx context.Context, userID string) ([]model.FundItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.FundItem
	for _, f := range m.funds {
		if f.UserID != userID {
			continue
		}
		cp := *f
		if f.Amount != nil {
			amount := *f.Amount
			cp.Amount = &amount
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memory) DeleteFundItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.funds[id]; !exists {
		return ErrNotFound
	}
	delete(m.funds, id)
	return nil
}

func (m *memory) AppendCard(ctx context.Context, card model.DigitalArrivalCard) error {
	raw, err := encodeCard(card)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cards[card.ID]; exists {
		return ErrConflict
	}
	m.cards[card.ID] = raw
	return nil
}

func (m *memory) GetCard(ctx context.Context, id string) (*model.DigitalArrivalCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, exists := m.cards[id]
	if !exists {
		return nil, ErrNotFound
	}
	return decodeCard(raw)
}

func (m *memory) UpdateCard(ctx context.Context, card model.DigitalArrivalCard) error {
	raw, err := encodeCard(card)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cards[card.ID]; !exists {
		return ErrNotFound
	}
	m.cards[card.ID] = raw
	return nil
}

func (m *memory) ListCardsByEntry(ctx context.Context, entryID, cardType string) ([]model.DigitalArrivalCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.DigitalArrivalCard
	for _, raw := range m.cards {
		c, err := decodeCard(raw)
		if err != nil {
			return nil, err
		}
		if c.EntryID != entryID {
			continue
		}
		if cardType != "" && c.CardType != cardType {
			continue
		}
		out = append(out, *c)
	}
	// ULID ids sort lexicographically by creation time; newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memory) SaveSnapshot(ctx context.Context, rec model.SnapshotRecord) error {
	raw, err := encodeSnapshot(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[rec.ID] = raw
	return nil
}

func (m *memory) GetSnapshot(ctx context.Context, id string) (*model.SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, exists := m.snapshots[id]
	if !exists {
		return nil, ErrNotFound
	}
	return decodeSnapshot(raw)
}

func (m *memory) ListSnapshotsByEntry(ctx context.Context, entryID string) ([]model.SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.SnapshotRecord
	for _, raw := range m.snapshots {
		s, err := decodeSnapshot(raw)
		if err != nil {
			return nil, err
		}
		if s.EntryID == entryID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
