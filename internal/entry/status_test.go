// internal/entry/status_test.go
package entry

import (
	"testing"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to model.EntryStatus
		ok       bool
	}{
		{model.EntryStatusIncomplete, model.EntryStatusReady, true},
		{model.EntryStatusReady, model.EntryStatusIncomplete, true}, // demotion after edit
		{model.EntryStatusReady, model.EntryStatusSubmitted, true},
		{model.EntryStatusIncomplete, model.EntryStatusSubmitted, true}, // assisted channels
		{model.EntryStatusSubmitted, model.EntryStatusSuperseded, true},
		{model.EntryStatusSuperseded, model.EntryStatusSubmitted, true}, // resubmission
		{model.EntryStatusSubmitted, model.EntryStatusExpired, true},
		{model.EntryStatusExpired, model.EntryStatusArchived, true},

		{model.EntryStatusIncomplete, model.EntryStatusSuperseded, false},
		{model.EntryStatusReady, model.EntryStatusSuperseded, false},
		{model.EntryStatusSubmitted, model.EntryStatusReady, false},
		{model.EntryStatusExpired, model.EntryStatusSubmitted, false},
		{model.EntryStatusArchived, model.EntryStatusIncomplete, false},
		{model.EntryStatusArchived, model.EntryStatusExpired, false},

		// Repeating a transition is illegal, except re-archiving.
		{model.EntryStatusSuperseded, model.EntryStatusSuperseded, false},
		{model.EntryStatusSubmitted, model.EntryStatusSubmitted, false},
		{model.EntryStatusReady, model.EntryStatusReady, false},
		{model.EntryStatusArchived, model.EntryStatusArchived, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestSelfTransitionsRejected(t *testing.T) {
	for _, s := range []model.EntryStatus{
		model.EntryStatusIncomplete, model.EntryStatusReady,
		model.EntryStatusSubmitted, model.EntryStatusSuperseded,
		model.EntryStatusExpired,
	} {
		if CanTransition(s, s) {
			t.Errorf("repeating the %s transition should be illegal", s)
		}
	}
	if !CanTransition(model.EntryStatusArchived, model.EntryStatusArchived) {
		t.Errorf("re-archiving should stay a no-op")
	}
}

func TestArchivedReachableFromEverywhere(t *testing.T) {
	for _, from := range []model.EntryStatus{
		model.EntryStatusIncomplete, model.EntryStatusReady,
		model.EntryStatusSubmitted, model.EntryStatusSuperseded,
		model.EntryStatusExpired,
	} {
		if !CanTransition(from, model.EntryStatusArchived) {
			t.Errorf("archived should be reachable from %s", from)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !IsTerminal(model.EntryStatusArchived) {
		t.Errorf("archived should be terminal")
	}
	for _, s := range []model.EntryStatus{
		model.EntryStatusIncomplete, model.EntryStatusReady,
		model.EntryStatusSubmitted, model.EntryStatusSuperseded,
		model.EntryStatusExpired,
	} {
		if IsTerminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
