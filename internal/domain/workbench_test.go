package domain

import "testing"

func TestWorkbenchStateTransitions(t *testing.T) {
	cases := []struct {
		from, to WorkbenchState
		allowed  bool
	}{
		{StateAwaitLogin, StateAuthorizedIdling, true},
		{StateAwaitLogin, StateUnitAssigned, false},
		{StateAuthorizedIdling, StateGatherComponents, true},
		{StateAuthorizedIdling, StateAwaitLogin, true},
		{StateUnitAssigned, StateStageOngoing, true},
		{StateStageOngoing, StateUnitAssigned, true},
		{StateStageOngoing, StateAwaitLogin, false},
		{StateGatherComponents, StateStageOngoing, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}
