package domain

type WorkbenchState string

const (
	StateAwaitLogin       WorkbenchState = "AwaitLogin"
	StateAuthorizedIdling WorkbenchState = "AuthorizedIdling"
	StateUnitAssigned     WorkbenchState = "UnitAssignedIdling"
	StateGatherComponents WorkbenchState = "GatherComponents"
	StateStageOngoing     WorkbenchState = "ProductionStageOngoing"
)

// StateTransitions is the legal workbench state machine. Anything not listed
// is forbidden.
var StateTransitions = map[WorkbenchState][]WorkbenchState{
	StateAwaitLogin:       {StateAuthorizedIdling},
	StateAuthorizedIdling: {StateUnitAssigned, StateGatherComponents, StateAwaitLogin},
	StateUnitAssigned:     {StateStageOngoing, StateAuthorizedIdling},
	StateGatherComponents: {StateUnitAssigned, StateAuthorizedIdling},
	StateStageOngoing:     {StateUnitAssigned},
}

func (s WorkbenchState) CanTransitionTo(next WorkbenchState) bool {
	for _, allowed := range StateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
