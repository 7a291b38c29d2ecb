// internal/entry/status.go
// Entry lifecycle state machine. The table here is the single source of truth
// for which transitions are legal; everything else in the package goes through
// Transition.
package entry

import (
	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// allowedTransitions maps each status to the statuses it may move to.
// Notes:
//   - ready -> incomplete covers demotion when an edit drops a category back
//     below complete.
//   - incomplete -> submitted exists because some destinations accept partial
//     packs through assisted channels; the readiness gate applies to
//     MarkAsReady, not to the transition table.
//   - superseded -> submitted is the resubmission path.
//   - archived is reachable from everywhere, including itself: re-archiving
//     is a no-op rather than an error. Every other self-transition is
//     illegal; repeating a lifecycle action surfaces as an error instead of
//     being coerced into success.
var allowedTransitions = map[model.EntryStatus][]model.EntryStatus{
	model.EntryStatusIncomplete: {
		model.EntryStatusReady,
		model.EntryStatusSubmitted,
		model.EntryStatusExpired,
		model.EntryStatusArchived,
	},
	model.EntryStatusReady: {
		model.EntryStatusIncomplete,
		model.EntryStatusSubmitted,
		model.EntryStatusExpired,
		model.EntryStatusArchived,
	},
	model.EntryStatusSubmitted: {
		model.EntryStatusSuperseded,
		model.EntryStatusExpired,
		model.EntryStatusArchived,
	},
	model.EntryStatusSuperseded: {
		model.EntryStatusSubmitted,
		model.EntryStatusExpired,
		model.EntryStatusArchived,
	},
	model.EntryStatusExpired: {
		model.EntryStatusArchived,
	},
	model.EntryStatusArchived: {
		model.EntryStatusArchived, // terminal; re-archive is a no-op
	},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to model.EntryStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no transition to a different
// status.
func IsTerminal(status model.EntryStatus) bool {
	for _, to := range allowedTransitions[status] {
		if to != status {
			return false
		}
	}
	return true
}
