package domain

import "time"

// StageSession is the persisted "current session" marker for a unit. At most
// one exists per unit; it is acquired by compare-and-set and remains
// authoritative across process restarts.
type StageSession struct {
	UnitInternalID string
	OperatorID     string
	StageID        string
	AcquiredAt     time.Time
}

func (s StageSession) StaleAt(after time.Duration) time.Time {
	return s.AcquiredAt.Add(after)
}
