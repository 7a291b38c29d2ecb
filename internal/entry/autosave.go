// internal/entry/autosave.go
// Debounced autosave. Keystroke-level updates are buffered per entry and
// flushed after a quiet period; each new update cancels and reschedules the
// pending flush. Payloads arriving for the same section before the flush are
// merged field-wise so nothing typed in between is lost.
package entry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// Debouncer coalesces section saves per (user, entry) and flushes them through
// the Service after the configured quiet period.
type Debouncer struct {
	svc   *Service
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingSave // entry id -> buffered save
	closed  bool
}

// pendingSave is the buffered state for one entry.
type pendingSave struct {
	userID string
	req    model.SaveSectionsRequest
	timer  *time.Timer
}

// NewDebouncer creates a debouncer flushing through svc after delay.
func NewDebouncer(svc *Service, delay time.Duration) *Debouncer {
	return &Debouncer{
		svc:     svc,
		delay:   delay,
		pending: make(map[string]*pendingSave),
	}
}

// Enqueue buffers a partial save and (re)schedules the flush. Later payloads
// for the same section override earlier ones field-wise; fund item payloads
// accumulate.
func (d *Debouncer) Enqueue(userID, entryID string, req model.SaveSectionsRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	p, exists := d.pending[entryID]
	if !exists {
		p = &pendingSave{userID: userID}
		d.pending[entryID] = p
	}
	mergeRequests(&p.req, req)

	// Cancel-and-reschedule: only silence flushes.
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(d.delay, func() {
		d.flushEntry(entryID)
	})
}

// mergeRequests folds src into dst. Section field maps are merged key-wise and
// touched lists concatenated; the newest value for a key wins.
func mergeRequests(dst *model.SaveSectionsRequest, src model.SaveSectionsRequest) {
	dst.Passport = mergePayload(dst.Passport, src.Passport)
	dst.PersonalInfo = mergePayload(dst.PersonalInfo, src.PersonalInfo)
	dst.Travel = mergePayload(dst.Travel, src.Travel)
	dst.FundItems = append(dst.FundItems, src.FundItems...)
}

func mergePayload(old, incoming *model.SectionPayload) *model.SectionPayload {
	if incoming == nil {
		return old
	}
	if old == nil {
		cp := *incoming
		return &cp
	}
	if old.Fields == nil {
		old.Fields = make(map[string]any, len(incoming.Fields))
	}
	for k, v := range incoming.Fields {
		old.Fields[k] = v
	}
	old.Touched = append(old.Touched, incoming.Touched...)
	return old
}

// flushEntry runs the buffered save for one entry, if still pending.
func (d *Debouncer) flushEntry(entryID string) {
	d.mu.Lock()
	p, exists := d.pending[entryID]
	if !exists {
		d.mu.Unlock()
		return
	}
	delete(d.pending, entryID)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := d.svc.SaveSections(ctx, p.userID, entryID, p.req); err != nil {
		slog.Warn("autosave flush failed", "entryId", entryID, "error", err)
	}
}

// Flush synchronously saves any buffered state for one entry. Called before
// reads that must observe the latest edits (readiness checks, submission).
func (d *Debouncer) Flush(ctx context.Context, entryID string) error {
	d.mu.Lock()
	p, exists := d.pending[entryID]
	if exists {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(d.pending, entryID)
	}
	d.mu.Unlock()

	if !exists {
		return nil
	}
	_, err := d.svc.SaveSections(ctx, p.userID, entryID, p.req)
	return err
}

// Close flushes everything still buffered and stops accepting new saves.
func (d *Debouncer) Close(ctx context.Context) {
	d.mu.Lock()
	d.closed = true
	ids := make([]string, 0, len(d.pending))
	for id, p := range d.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		d.mu.Lock()
		p, exists := d.pending[id]
		delete(d.pending, id)
		d.mu.Unlock()
		if !exists {
			continue
		}
		if _, err := d.svc.SaveSections(ctx, p.userID, id, p.req); err != nil {
			slog.Warn("autosave close flush failed", "entryId", id, "error", err)
		}
	}
}
