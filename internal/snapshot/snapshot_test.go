// internal/snapshot/snapshot_test.go
package snapshot

import (
	"testing"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

func testPack() EntryPack {
	amount := 20000.0
	return EntryPack{
		Entry: model.EntryRecord{ID: "entry-1", UserID: "user-1", Status: model.EntryStatusSubmitted},
		Passport: &model.Passport{
			ID: "p1", FullName: "ANNA LEE", PassportNumber: "AA1234567",
		},
		PersonalInfo: &model.PersonalInfo{ID: "pi1", Email: "anna@example.com"},
		Travel:       &model.TravelInfo{ID: "t1", TravelPurpose: "holiday"},
		Funds: []model.FundItem{
			{ID: "f1", Type: model.FundTypeCash, Amount: &amount, Currency: "THB", PhotoURI: "s3://funds/f1.jpg"},
			{ID: "f2", Type: model.FundTypeOther},
		},
		Cards: []model.DigitalArrivalCard{
			{ID: "c2", EntryID: "entry-1", CardType: "tdac", Status: model.CardStatusSuccess, ArrCardNo: "TH-0002"},
			{ID: "c1", EntryID: "entry-1", CardType: "tdac", Status: model.CardStatusFailed},
		},
	}
}

func TestNewRequiresEntryAndReason(t *testing.T) {
	if _, err := New(EntryPack{}, ReasonCompleted, nil); err == nil {
		t.Errorf("expected error for missing entry")
	}
	if _, err := New(testPack(), "", nil); err == nil {
		t.Errorf("expected error for missing reason")
	}
}

func TestNewFreezesSectionData(t *testing.T) {
	pack := testPack()
	snap, err := New(pack, ReasonCompleted, map[string]string{"trigger": "user"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if snap.ID() == "" || snap.EntryID() != "entry-1" || snap.Reason() != ReasonCompleted {
		t.Errorf("identity fields: %q %q %q", snap.ID(), snap.EntryID(), snap.Reason())
	}

	// Mutating the source pack after the cut must not change the snapshot.
	pack.Passport.FullName = "CHANGED"
	*pack.Funds[0].Amount = 1.0
	if got := snap.Passport(); got.FullName != "ANNA LEE" {
		t.Errorf("passport not frozen: %q", got.FullName)
	}
	if funds := snap.Funds(); *funds[0].Amount != 20000.0 {
		t.Errorf("fund amount not frozen: %v", *funds[0].Amount)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	snap, err := New(testPack(), ReasonCompleted, map[string]string{"trigger": "user"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap.Passport().FullName = "TAMPERED"
	if snap.Passport().FullName != "ANNA LEE" {
		t.Errorf("accessor leaked a reference into the frozen passport")
	}

	funds := snap.Funds()
	*funds[0].Amount = 0
	if *snap.Funds()[0].Amount != 20000.0 {
		t.Errorf("accessor leaked a reference into the frozen funds")
	}

	meta := snap.Metadata()
	meta["trigger"] = "tampered"
	if snap.Metadata()["trigger"] == "tampered" {
		t.Errorf("accessor leaked a reference into the metadata")
	}
}

func TestRepresentativeCardPrefersLiveSuccess(t *testing.T) {
	pack := testPack()
	snap, err := New(pack, ReasonCompleted, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sub := snap.Submission()
	if sub == nil || sub.ID != "c2" || sub.ArrCardNo != "TH-0002" {
		t.Errorf("representative card: %+v", sub)
	}

	// Only failed cards: the newest one is preserved anyway.
	pack.Cards = []model.DigitalArrivalCard{
		{ID: "c9", Status: model.CardStatusFailed},
		{ID: "c8", Status: model.CardStatusFailed},
	}
	snap, err = New(pack, ReasonExpired, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sub := snap.Submission(); sub == nil || sub.ID != "c9" {
		t.Errorf("failed-only fallback: %+v", sub)
	}

	// No cards at all.
	pack.Cards = nil
	snap, _ = New(pack, ReasonExpired, nil)
	if snap.Submission() != nil {
		t.Errorf("expected nil submission with empty history")
	}
}

func TestCompletenessIsCoarse(t *testing.T) {
	pack := testPack()
	snap, _ := New(pack, ReasonCompleted, nil)
	c := snap.Completeness()
	if !c.HasPassport || !c.HasPersonalInfo || !c.HasTravel || !c.HasFunds {
		t.Errorf("all sections present: %+v", c)
	}
	if c.Percent != 100 {
		t.Errorf("got percent %d want 100", c.Percent)
	}

	// An incomplete fund item does not count; a missing travel plan drops 25.
	pack.Funds = []model.FundItem{{ID: "f2", Type: model.FundTypeOther}}
	pack.Travel = nil
	snap, _ = New(pack, ReasonArchived, nil)
	c = snap.Completeness()
	if c.HasFunds || c.HasTravel {
		t.Errorf("got %+v want funds and travel absent", c)
	}
	if c.Percent != 50 {
		t.Errorf("got percent %d want 50", c.Percent)
	}
}

func TestPhotoManifestSeedsPendingEntries(t *testing.T) {
	snap, _ := New(testPack(), ReasonCompleted, nil)
	manifest := snap.PhotoManifest()
	if len(manifest) != 1 {
		t.Fatalf("got %d manifest entries want 1 (only f1 has a photo)", len(manifest))
	}
	entry := manifest[0]
	if entry.FundItemID != "f1" || entry.SourceURI != "s3://funds/f1.jpg" || entry.Stage != model.PhotoCopyPending {
		t.Errorf("manifest entry: %+v", entry)
	}
}

func TestWithMethodsDoNotMutateReceiver(t *testing.T) {
	snap, _ := New(testPack(), ReasonCompleted, nil)

	manifest := snap.PhotoManifest()
	manifest[0].Stage = model.PhotoCopyCopied
	manifest[0].CopyURI = "s3://snapshots/entry-1/f1.jpg"
	advanced := snap.WithPhotoManifest(manifest)

	if snap.PhotoManifest()[0].Stage != model.PhotoCopyPending {
		t.Errorf("receiver mutated by WithPhotoManifest")
	}
	if advanced.PhotoManifest()[0].Stage != model.PhotoCopyCopied {
		t.Errorf("returned snapshot missing the update")
	}

	encrypted := advanced.WithEncryption(model.EncryptionInfo{Algorithm: "aes-256-gcm", KeyRef: "kms://key-1"})
	if advanced.Encryption() != nil {
		t.Errorf("receiver mutated by WithEncryption")
	}
	if enc := encrypted.Encryption(); enc == nil || enc.Algorithm != "aes-256-gcm" {
		t.Errorf("encryption info missing: %+v", enc)
	}
}

func TestRecordReturnsDetachedCopy(t *testing.T) {
	snap, _ := New(testPack(), ReasonCompleted, map[string]string{"trigger": "user"})

	rec := snap.Record()
	rec.Passport.FullName = "TAMPERED"
	rec.PhotoManifest[0].Stage = model.PhotoCopyFailed
	rec.Metadata["trigger"] = "tampered"
	*rec.Funds[0].Amount = 0

	if snap.Passport().FullName != "ANNA LEE" {
		t.Errorf("record leaked a reference into the frozen passport")
	}
	if snap.PhotoManifest()[0].Stage != model.PhotoCopyPending {
		t.Errorf("record leaked a reference into the photo manifest")
	}
	if snap.Metadata()["trigger"] != "user" {
		t.Errorf("record leaked a reference into the metadata")
	}
	if *snap.Funds()[0].Amount != 20000.0 {
		t.Errorf("record leaked a reference into the frozen funds")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	snap, _ := New(testPack(), ReasonCompleted, map[string]string{"trigger": "user"})
	rec := snap.Record()
	back := FromRecord(rec)
	if back.ID() != snap.ID() || back.Reason() != snap.Reason() {
		t.Errorf("round trip lost identity: %q %q", back.ID(), back.Reason())
	}
	if back.Completeness() != snap.Completeness() {
		t.Errorf("round trip lost completeness")
	}
}
