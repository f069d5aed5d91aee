package domain

import "time"

// Passport is the externally published artifact for a completed unit: the
// full frozen production history serialized deterministically and content
// hashed. Assembled exactly once per unit, never mutated.
type Passport struct {
	UnitUUID       string
	UnitInternalID string
	ContentHash    string
	Document       []byte
	AssembledAt    time.Time
}
