package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorizedOperator = errors.New("operator unauthorized")
	ErrOutOfSequence        = errors.New("stage out of sequence")
	ErrInvalidUnitState     = errors.New("invalid unit state")
	ErrImmutableUnit        = errors.New("unit history is immutable")
	ErrUnitBusy             = errors.New("unit busy")
	ErrIncompleteUnit       = errors.New("unit is not completed")
	ErrStorageIntegrity     = errors.New("storage content address mismatch")
	ErrStateForbidden       = errors.New("workbench state transition forbidden")
	ErrComponentRejected    = errors.New("component cannot be assigned")
	ErrInvalidSchema        = errors.New("invalid production schema")
	ErrNoPendingStages      = errors.New("unit has no pending stages")
)
