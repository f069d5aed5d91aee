package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

type UnitStatus string

const (
	UnitStatusProduction UnitStatus = "production"
	UnitStatusBuilt      UnitStatus = "built"
	UnitStatusRevision   UnitStatus = "revision"
	UnitStatusFinalized  UnitStatus = "finalized"
	UnitStatusRevoked    UnitStatus = "revoked"
)

// StageRecord is one production stage of a concrete unit. It is created
// pending when the unit is created, stamped with operator and start time on
// begin, and frozen once ended.
type StageRecord struct {
	ID               string            `json:"id"`
	UnitUUID         string            `json:"parent_unit_uuid"`
	SchemaStageID    string            `json:"schema_stage_id"`
	Name             string            `json:"name"`
	Number           int               `json:"number"`
	OperatorName     string            `json:"employee_name,omitempty"`
	StartedAt        *time.Time        `json:"session_start_time,omitempty"`
	EndedAt          *time.Time        `json:"session_end_time,omitempty"`
	EndedPrematurely bool              `json:"ended_prematurely,omitempty"`
	VideoCIDs        []string          `json:"video_hashes,omitempty"`
	AdditionalInfo   map[string]string `json:"additional_info,omitempty"`
	Completed        bool              `json:"completed"`
	CreatedAt        time.Time         `json:"creation_time"`
}

// UnitListEntry is the projection used by pending-unit listings.
type UnitListEntry struct {
	InternalID string `json:"unit_internal_id"`
	UnitName   string `json:"unit_name"`
}

// Unit is one uniquely identifiable physical production unit.
type Unit struct {
	UUID             string
	InternalID       string
	SchemaID         string
	Schema           ProductionSchema
	Status           UnitStatus
	SerialNumber     string
	Biography        []StageRecord
	Components       []*Unit
	FeaturedInUnitID string
	PassportCID      string
	LedgerTxHash     string
	CreatedAt        time.Time
}

// NewUnit materializes a unit under the given schema with one pending stage
// record per schema stage. Schemas with no stages start out built.
func NewUnit(schema ProductionSchema, now time.Time) *Unit {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	u := &Unit{
		UUID:       id,
		InternalID: internalIDFromUUID(id),
		SchemaID:   schema.SchemaID,
		Schema:     schema,
		Status:     UnitStatusProduction,
		CreatedAt:  now.UTC(),
	}
	for i, stage := range schema.Stages {
		u.Biography = append(u.Biography, StageRecord{
			ID:            strings.ReplaceAll(uuid.NewString(), "-", ""),
			UnitUUID:      id,
			SchemaStageID: stage.StageID,
			Name:          stage.Name,
			Number:        i,
			CreatedAt:     now.UTC(),
		})
	}
	if len(schema.Stages) == 0 {
		u.Status = UnitStatusBuilt
	}
	return u
}

// internalIDFromUUID derives a 13-digit EAN-style code from the unit UUID,
// so barcode scans resolve back to the unit.
func internalIDFromUUID(hexUUID string) string {
	n := new(big.Int)
	n.SetString(hexUUID, 16)
	digits := n.String()
	if len(digits) > 12 {
		digits = digits[:12]
	} else {
		digits = digits + strings.Repeat("0", 12-len(digits))
	}
	return digits + ean13CheckDigit(digits)
}

func ean13CheckDigit(digits12 string) string {
	sum := 0
	for i, r := range digits12 {
		d := int(r - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return fmt.Sprintf("%d", (10-sum%10)%10)
}

// NextPendingStage returns the first stage record not yet completed, or nil.
func (u *Unit) NextPendingStage() *StageRecord {
	for i := range u.Biography {
		if !u.Biography[i].Completed {
			return &u.Biography[i]
		}
	}
	return nil
}

func (u *Unit) Workable() bool {
	return u.Status == UnitStatusProduction || u.Status == UnitStatusRevision
}

// CompletedStages returns the frozen prefix of the biography, in order.
func (u *Unit) CompletedStages() []StageRecord {
	var out []StageRecord
	for _, rec := range u.Biography {
		if rec.Completed {
			out = append(out, rec)
		}
	}
	return out
}

// ComponentsFilled reports whether every required component schema id is
// satisfied by an assigned component unit (or a specialization of it).
func (u *Unit) ComponentsFilled() bool {
	for _, schemaID := range u.Schema.RequiredComponentSchemaIDs {
		if u.componentFor(schemaID) == nil {
			return false
		}
	}
	return true
}

func (u *Unit) componentFor(schemaID string) *Unit {
	for _, c := range u.Components {
		if c.SchemaID == schemaID || c.Schema.ParentSchemaID == schemaID {
			return c
		}
	}
	return nil
}

// AssignedComponents maps each required schema id to the internal id of the
// assigned component, or "" when the slot is still open.
func (u *Unit) AssignedComponents() map[string]string {
	if len(u.Schema.RequiredComponentSchemaIDs) == 0 {
		return nil
	}
	out := make(map[string]string, len(u.Schema.RequiredComponentSchemaIDs))
	for _, schemaID := range u.Schema.RequiredComponentSchemaIDs {
		if c := u.componentFor(schemaID); c != nil {
			out[schemaID] = c.InternalID
		} else {
			out[schemaID] = ""
		}
	}
	return out
}

// AssignComponent attaches a finished component unit to a composite unit.
// The component must be declared by the schema, its slot must be open, it
// must be built, and it must not already be part of another unit.
func (u *Unit) AssignComponent(component *Unit) error {
	if u.ComponentsFilled() {
		return fmt.Errorf("%w: component requirements of unit %s already satisfied", ErrComponentRejected, u.InternalID)
	}
	slot := ""
	for _, schemaID := range u.Schema.RequiredComponentSchemaIDs {
		if component.SchemaID == schemaID || component.Schema.ParentSchemaID == schemaID {
			slot = schemaID
			break
		}
	}
	if slot == "" {
		return fmt.Errorf("%w: schema %s is not a component of %s", ErrComponentRejected, component.SchemaID, u.Schema.UnitName)
	}
	if c := u.componentFor(slot); c != nil {
		return fmt.Errorf("%w: slot %s already holds unit %s", ErrComponentRejected, slot, c.InternalID)
	}
	if component.Status != UnitStatusBuilt && component.Status != UnitStatusFinalized {
		return fmt.Errorf("%w: component %s is not completed (status %s)", ErrComponentRejected, component.InternalID, component.Status)
	}
	if component.FeaturedInUnitID != "" {
		return fmt.Errorf("%w: component %s already used in unit %s", ErrComponentRejected, component.InternalID, component.FeaturedInUnitID)
	}
	u.Components = append(u.Components, component)
	component.FeaturedInUnitID = u.InternalID
	return nil
}

// StartStage stamps the stage record for stageID with operator and start
// time. Only the immediate next pending stage may be started.
func (u *Unit) StartStage(stageID string, operator Employee, info map[string]string, now time.Time) (*StageRecord, error) {
	if !u.Workable() {
		return nil, fmt.Errorf("%w: unit %s has status %s", ErrInvalidUnitState, u.InternalID, u.Status)
	}
	pending := u.NextPendingStage()
	if pending == nil {
		return nil, fmt.Errorf("%w: unit %s", ErrNoPendingStages, u.InternalID)
	}
	if pending.SchemaStageID != stageID {
		return nil, fmt.Errorf("%w: stage %s requested, next pending is %s", ErrOutOfSequence, stageID, pending.SchemaStageID)
	}
	started := now.UTC()
	pending.StartedAt = &started
	pending.OperatorName = operator.Name
	pending.AdditionalInfo = info
	return pending, nil
}

// DiscardStage reverts an in-progress stage record to pending. No-op when
// the stage was never started.
func (u *Unit) DiscardStage() {
	pending := u.NextPendingStage()
	if pending == nil || pending.StartedAt == nil {
		return
	}
	pending.StartedAt = nil
	pending.OperatorName = ""
	pending.AdditionalInfo = nil
}

// EndStage freezes the in-progress stage record. A premature end marks the
// record and inserts a duplicate pending stage right after it, renumbering
// the remainder, so the work is redone before the unit can complete.
// When the last stage completes the unit transitions to built, provided a
// composite unit has all component slots filled.
func (u *Unit) EndStage(videoCIDs []string, info map[string]string, premature bool, now time.Time) error {
	pending := u.NextPendingStage()
	if pending == nil {
		return fmt.Errorf("%w: unit %s", ErrNoPendingStages, u.InternalID)
	}
	if pending.StartedAt == nil {
		return fmt.Errorf("%w: stage %s was never started", ErrInvalidUnitState, pending.SchemaStageID)
	}
	ended := now.UTC()
	pending.EndedAt = &ended

	if premature {
		idx := pending.Number
		u.duplicateStage(pending, ended)
		// The insert can reallocate the biography backing array.
		pending = &u.Biography[idx]
		pending.Name = pending.Name + " (unfinished)"
		pending.EndedPrematurely = true
	}
	if len(videoCIDs) > 0 {
		pending.VideoCIDs = videoCIDs
	}
	if len(info) > 0 {
		merged := make(map[string]string, len(pending.AdditionalInfo)+len(info))
		for k, v := range pending.AdditionalInfo {
			merged[k] = v
		}
		for k, v := range info {
			merged[k] = v
		}
		pending.AdditionalInfo = merged
	}
	pending.Completed = true

	if u.NextPendingStage() == nil {
		if u.Schema.IsComposite() && !u.ComponentsFilled() {
			pending.Completed = false
			pending.EndedAt = nil
			return fmt.Errorf("%w: unit %s is missing required components", ErrInvalidUnitState, u.InternalID)
		}
		u.Status = UnitStatusBuilt
	}
	return nil
}

func (u *Unit) duplicateStage(rec *StageRecord, now time.Time) {
	target := rec.Number + 1
	dup := StageRecord{
		ID:            strings.ReplaceAll(uuid.NewString(), "-", ""),
		UnitUUID:      rec.UnitUUID,
		SchemaStageID: rec.SchemaStageID,
		Name:          rec.Name,
		Number:        target,
		CreatedAt:     now.UTC(),
	}
	u.Biography = append(u.Biography, StageRecord{})
	copy(u.Biography[target+1:], u.Biography[target:])
	u.Biography[target] = dup
	for i := target + 1; i < len(u.Biography); i++ {
		u.Biography[i].Number++
	}
}

// Revoke aborts a unit still in production. Completed history is append-only:
// built and finalized units cannot be revoked through this path.
func (u *Unit) Revoke() error {
	switch u.Status {
	case UnitStatusBuilt, UnitStatusFinalized:
		return fmt.Errorf("%w: unit %s is %s", ErrImmutableUnit, u.InternalID, u.Status)
	case UnitStatusRevoked:
		return nil
	default:
		u.Status = UnitStatusRevoked
		return nil
	}
}

// TotalAssemblyTime sums the duration of all stage sessions. An open session
// counts up to now.
func (u *Unit) TotalAssemblyTime(now time.Time) time.Duration {
	var total time.Duration
	for _, rec := range u.Biography {
		if rec.StartedAt == nil {
			continue
		}
		end := now
		if rec.EndedAt != nil {
			end = *rec.EndedAt
		}
		total += end.Sub(*rec.StartedAt)
	}
	return total
}
