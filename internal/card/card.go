// internal/card/card.go
// Package card manages the append-only digital arrival card history of an
// entry. Submission attempts are never deleted or rewritten; a later
// successful card invalidates earlier ones through the supersede linkage.
package card

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
	"github.com/tripdocs/tripdocs-entry-go/internal/storage"
)

var (
	// ErrAlreadySuperseded is returned when a card has already been invalidated.
	ErrAlreadySuperseded = errors.New("card already superseded")
	// ErrNoCard is returned when no card matches the lookup.
	ErrNoCard = errors.New("no card found")
)

// Log records and queries the card history for entries. All writes go through
// the Store; the Log itself is stateless and safe for concurrent use.
type Log struct {
	store storage.Store
	now   func() time.Time // injectable for tests
}

// NewLog creates a card log backed by the given store.
func NewLog(store storage.Store) *Log {
	return &Log{store: store, now: time.Now}
}

// newID returns a ULID so card ids sort lexicographically by creation time.
func (l *Log) newID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(l.now()), entropy).String()
}

// Record appends one submission attempt. The id and creation time are assigned
// here; callers fill in the outcome fields (status, card number, artifact
// references or error details).
func (l *Log) Record(ctx context.Context, card model.DigitalArrivalCard) (*model.DigitalArrivalCard, error) {
	if card.EntryID == "" || card.CardType == "" {
		return nil, errors.New("card requires entry id and card type")
	}
	card.ID = l.newID()
	card.CreatedAt = l.now().UTC()
	if card.Status == "" {
		card.Status = model.CardStatusPending
	}
	if err := l.store.AppendCard(ctx, card); err != nil {
		return nil, fmt.Errorf("append card: %w", err)
	}
	return &card, nil
}

// MarkSuperseded invalidates one card, linking it to the card that replaced it.
// Superseding is one-way: a card already superseded stays superseded.
func (l *Log) MarkSuperseded(ctx context.Context, id, byID, reason string) error {
	card, err := l.store.GetCard(ctx, id)
	if err != nil {
		return fmt.Errorf("load card: %w", err)
	}
	if card.IsSuperseded {
		return ErrAlreadySuperseded
	}
	when := l.now().UTC()
	card.IsSuperseded = true
	card.SupersededBy = byID
	card.SupersededReason = reason
	card.SupersededAt = &when
	if err := l.store.UpdateCard(ctx, *card); err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return nil
}

// SupersedePrior invalidates every earlier non-superseded card of the same
// entry and type, linking them to byID. Returns how many cards were marked.
// Used right after a successful resubmission so only the newest card is live.
func (l *Log) SupersedePrior(ctx context.Context, entryID, cardType, byID, reason string) (int, error) {
	cards, err := l.store.ListCardsByEntry(ctx, entryID, cardType)
	if err != nil {
		return 0, fmt.Errorf("list cards: %w", err)
	}
	marked := 0
	for _, c := range cards {
		if c.ID == byID || c.IsSuperseded {
			continue
		}
		if err := l.MarkSuperseded(ctx, c.ID, byID, reason); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

// History returns all cards for an entry, newest first. An empty cardType
// returns every type.
func (l *Log) History(ctx context.Context, entryID, cardType string) ([]model.DigitalArrivalCard, error) {
	return l.store.ListCardsByEntry(ctx, entryID, cardType)
}

// Latest returns the newest card of the given type, or ErrNoCard.
func (l *Log) Latest(ctx context.Context, entryID, cardType string) (*model.DigitalArrivalCard, error) {
	cards, err := l.store.ListCardsByEntry(ctx, entryID, cardType)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, ErrNoCard
	}
	return &cards[0], nil
}

// LatestSuccessful returns the newest non-superseded successful card, the one
// the traveler would present at the border. ErrNoCard when none qualifies.
func (l *Log) LatestSuccessful(ctx context.Context, entryID, cardType string) (*model.DigitalArrivalCard, error) {
	cards, err := l.store.ListCardsByEntry(ctx, entryID, cardType)
	if err != nil {
		return nil, err
	}
	for _, c := range cards {
		if c.Status == model.CardStatusSuccess && !c.IsSuperseded {
			return &c, nil
		}
	}
	return nil, ErrNoCard
}
