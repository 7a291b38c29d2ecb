// internal/snapshot/snapshot.go
// Package snapshot builds immutable entry-pack snapshots. A snapshot freezes
// everything a traveler prepared for one entry at a point in time: section
// data, the representative arrival card, a coarse completeness indicator and
// the fund-photo copy manifest. Once built, a snapshot never changes; the
// With* methods return a new value instead of mutating the receiver.
package snapshot

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// Recognized snapshot reasons. Callers may pass others; these are the ones the
// lifecycle emits on its own.
const (
	ReasonCompleted = "completed"
	ReasonExpired   = "expired"
	ReasonArchived  = "archived"
)

// EntryPack is the material a snapshot is cut from: the aggregate plus fully
// loaded copies of everything it references. Cards carries the submission
// history newest first.
type EntryPack struct {
	Entry        model.EntryRecord
	Passport     *model.Passport
	PersonalInfo *model.PersonalInfo
	Travel       *model.TravelInfo
	Funds        []model.FundItem
	Cards        []model.DigitalArrivalCard
}

// Snapshot is an immutable view over a SnapshotRecord. All fields are
// unexported; accessors return copies so holders cannot reach the frozen data.
type Snapshot struct {
	rec model.SnapshotRecord
}

// New cuts a snapshot from the pack. The id is a ULID so snapshots of the same
// entry sort by creation time. Reason says why the snapshot exists.
func New(pack EntryPack, reason string, metadata map[string]string) (Snapshot, error) {
	if pack.Entry.ID == "" {
		return Snapshot{}, errors.New("snapshot requires an entry")
	}
	if reason == "" {
		return Snapshot{}, errors.New("snapshot requires a reason")
	}

	now := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	rec := model.SnapshotRecord{
		ID:        ulid.MustNew(ulid.Timestamp(now), entropy).String(),
		EntryID:   pack.Entry.ID,
		Reason:    reason,
		CreatedAt: now,
	}

	// Deep-copy the section data so later edits to the live records cannot
	// bleed into the frozen pack.
	if pack.Passport != nil {
		cp := *pack.Passport
		rec.Passport = &cp
	}
	if pack.PersonalInfo != nil {
		cp := *pack.PersonalInfo
		rec.PersonalInfo = &cp
	}
	if pack.Travel != nil {
		cp := *pack.Travel
		rec.Travel = &cp
	}
	for _, f := range pack.Funds {
		cp := f
		if f.Amount != nil {
			amount := *f.Amount
			cp.Amount = &amount
		}
		rec.Funds = append(rec.Funds, cp)
	}

	rec.Submission = representativeCard(pack.Cards)
	rec.Completeness = completeness(pack)
	rec.PhotoManifest = photoManifest(pack.Funds, now)

	if len(metadata) > 0 {
		rec.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			rec.Metadata[k] = v
		}
	}
	return Snapshot{rec: rec}, nil
}

// FromRecord wraps a persisted record back into the immutable view.
func FromRecord(rec model.SnapshotRecord) Snapshot {
	return Snapshot{rec: rec}
}

// representativeCard picks the card the snapshot preserves: the newest
// non-superseded success, falling back to the newest card of any outcome so a
// failed-only history is still visible in the frozen pack.
func representativeCard(cards []model.DigitalArrivalCard) *model.DigitalArrivalCard {
	for _, c := range cards {
		if c.Status == model.CardStatusSuccess && !c.IsSuperseded {
			cp := c
			return &cp
		}
	}
	if len(cards) > 0 {
		cp := cards[0]
		return &cp
	}
	return nil
}

// completeness derives the coarse boolean-per-category indicator. This is
// deliberately simpler than the live completion metrics: presence of a section
// record (and one countable fund item) is enough.
func completeness(pack EntryPack) model.SnapshotCompleteness {
	c := model.SnapshotCompleteness{
		HasPassport:     pack.Passport != nil,
		HasPersonalInfo: pack.PersonalInfo != nil,
		HasTravel:       pack.Travel != nil,
	}
	for _, f := range pack.Funds {
		if f.HasRequiredFields() {
			c.HasFunds = true
			break
		}
	}
	done := 0
	for _, has := range []bool{c.HasPassport, c.HasPersonalInfo, c.HasFunds, c.HasTravel} {
		if has {
			done++
		}
	}
	c.Percent = done * 100 / 4
	return c
}

// photoManifest seeds one pending manifest entry per fund item that carries a
// photo. The copy pipeline advances the stages later via WithPhotoManifest.
func photoManifest(funds []model.FundItem, now time.Time) []model.PhotoCopy {
	var manifest []model.PhotoCopy
	for _, f := range funds {
		if f.PhotoURI == "" {
			continue
		}
		manifest = append(manifest, model.PhotoCopy{
			FundItemID: f.ID,
			SourceURI:  f.PhotoURI,
			Stage:      model.PhotoCopyPending,
			UpdatedAt:  now,
		})
	}
	return manifest
}

// ID returns the snapshot's ULID.
func (s Snapshot) ID() string { return s.rec.ID }

// EntryID returns the source entry id.
func (s Snapshot) EntryID() string { return s.rec.EntryID }

// Reason returns why the snapshot was cut.
func (s Snapshot) Reason() string { return s.rec.Reason }

// CreatedAt returns the snapshot creation time.
func (s Snapshot) CreatedAt() time.Time { return s.rec.CreatedAt }

// Completeness returns the coarse per-category indicator.
func (s Snapshot) Completeness() model.SnapshotCompleteness { return s.rec.Completeness }

// Passport returns a copy of the frozen passport, or nil.
func (s Snapshot) Passport() *model.Passport {
	if s.rec.Passport == nil {
		return nil
	}
	cp := *s.rec.Passport
	return &cp
}

// PersonalInfo returns a copy of the frozen profile, or nil.
func (s Snapshot) PersonalInfo() *model.PersonalInfo {
	if s.rec.PersonalInfo == nil {
		return nil
	}
	cp := *s.rec.PersonalInfo
	return &cp
}

// Travel returns a copy of the frozen travel plan, or nil.
func (s Snapshot) Travel() *model.TravelInfo {
	if s.rec.Travel == nil {
		return nil
	}
	cp := *s.rec.Travel
	return &cp
}

// Funds returns copies of the frozen fund items.
func (s Snapshot) Funds() []model.FundItem {
	out := make([]model.FundItem, 0, len(s.rec.Funds))
	for _, f := range s.rec.Funds {
		cp := f
		if f.Amount != nil {
			amount := *f.Amount
			cp.Amount = &amount
		}
		out = append(out, cp)
	}
	return out
}

// Submission returns a copy of the representative card, or nil.
func (s Snapshot) Submission() *model.DigitalArrivalCard {
	if s.rec.Submission == nil {
		return nil
	}
	cp := *s.rec.Submission
	return &cp
}

// PhotoManifest returns a copy of the photo copy manifest.
func (s Snapshot) PhotoManifest() []model.PhotoCopy {
	out := make([]model.PhotoCopy, len(s.rec.PhotoManifest))
	copy(out, s.rec.PhotoManifest)
	return out
}

// Encryption returns a copy of the encryption info, or nil before encryption.
func (s Snapshot) Encryption() *model.EncryptionInfo {
	if s.rec.Encryption == nil {
		return nil
	}
	cp := *s.rec.Encryption
	return &cp
}

// Metadata returns a copy of the caller-supplied metadata.
func (s Snapshot) Metadata() map[string]string {
	if s.rec.Metadata == nil {
		return nil
	}
	out := make(map[string]string, len(s.rec.Metadata))
	for k, v := range s.rec.Metadata {
		out[k] = v
	}
	return out
}

// WithPhotoManifest returns a new snapshot carrying the updated manifest,
// leaving the receiver untouched. Used by the copy pipeline as stages advance.
func (s Snapshot) WithPhotoManifest(manifest []model.PhotoCopy) Snapshot {
	rec := s.rec
	rec.PhotoManifest = make([]model.PhotoCopy, len(manifest))
	copy(rec.PhotoManifest, manifest)
	return Snapshot{rec: rec}
}

// WithEncryption returns a new snapshot recording how the pack was encrypted.
func (s Snapshot) WithEncryption(info model.EncryptionInfo) Snapshot {
	rec := s.rec
	cp := info
	rec.Encryption = &cp
	return Snapshot{rec: rec}
}

// Record returns the persistable form of the snapshot. The pointer, slice and
// map fields are detached copies, so mutating the returned record cannot reach
// the frozen data.
func (s Snapshot) Record() model.SnapshotRecord {
	rec := s.rec
	rec.Passport = s.Passport()
	rec.PersonalInfo = s.PersonalInfo()
	rec.Travel = s.Travel()
	rec.Funds = s.Funds()
	rec.Submission = s.Submission()
	rec.PhotoManifest = s.PhotoManifest()
	rec.Encryption = s.Encryption()
	rec.Metadata = s.Metadata()
	return rec
}
