package domain

import "time"

type AuditActorType string

const (
	AuditChainVersion = "workbench_audit_v1"

	AuditActorSystem   AuditActorType = "system"
	AuditActorOperator AuditActorType = "operator"
)

type AuditEventType string

const (
	AuditEventLogIn            AuditEventType = "operator_logged_in"
	AuditEventLogOut           AuditEventType = "operator_logged_out"
	AuditEventUnitCreated      AuditEventType = "unit_created"
	AuditEventStageStarted     AuditEventType = "stage_started"
	AuditEventStageEnded       AuditEventType = "stage_ended"
	AuditEventStageAborted     AuditEventType = "stage_aborted"
	AuditEventUnitRevoked      AuditEventType = "unit_revoked"
	AuditEventComponentAttach  AuditEventType = "component_assigned"
	AuditEventPassportAnchored AuditEventType = "passport_anchored"
)

type AuditTargetType string

const (
	AuditTargetUnit     AuditTargetType = "unit"
	AuditTargetOperator AuditTargetType = "operator"
	AuditTargetPassport AuditTargetType = "passport"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// AuditEvent is one link of the workbench's hash-chained operational log.
// EventHash covers the event fields plus PrevEventHash, so any mutation,
// reordering or gap is detectable by replaying the chain.
type AuditEvent struct {
	ID            string
	Workbench     int
	Seq           int64
	EventType     AuditEventType
	Payload       []byte
	PayloadHash   string
	ActorType     AuditActorType
	ActorID       string
	TargetType    AuditTargetType
	TargetID      string
	Result        AuditResult
	ErrorCode     string
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}
