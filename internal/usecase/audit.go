package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
)

// AuditEmitter appends workbench actions to the hash-chained audit trail.
// Audit failures are logged, never propagated: the trail is evidence, not a
// gate on production work.
type AuditEmitter struct {
	Repo      AuditEventRepository
	Workbench int
	Clock     Clock
}

func (e *AuditEmitter) now() time.Time {
	if e != nil && e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *AuditEmitter) emit(ctx context.Context, event domain.AuditEvent) {
	if e == nil || e.Repo == nil {
		return
	}
	event.Workbench = e.Workbench
	if event.Payload == nil {
		event.Payload = []byte("{}")
	}
	event.PayloadHash = sha256Hex(event.Payload)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now().UTC()
	}
	if _, err := e.Repo.Append(ctx, event); err != nil {
		log.Printf("append audit event %s: %v", event.EventType, err)
	}
}

func (e *AuditEmitter) LoggedIn(ctx context.Context, operator domain.Employee) {
	e.emit(ctx, domain.AuditEvent{
		EventType:  domain.AuditEventLogIn,
		Payload:    payloadJSON(map[string]any{"position": operator.Position}),
		ActorType:  domain.AuditActorOperator,
		ActorID:    operator.ID,
		TargetType: domain.AuditTargetOperator,
		TargetID:   operator.ID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) LoggedOut(ctx context.Context, operator domain.Employee) {
	e.emit(ctx, domain.AuditEvent{
		EventType:  domain.AuditEventLogOut,
		Payload:    payloadJSON(nil),
		ActorType:  domain.AuditActorOperator,
		ActorID:    operator.ID,
		TargetType: domain.AuditTargetOperator,
		TargetID:   operator.ID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) UnitCreated(ctx context.Context, operator domain.Employee, unit *domain.Unit) {
	e.emit(ctx, domain.AuditEvent{
		EventType:  domain.AuditEventUnitCreated,
		Payload:    payloadJSON(map[string]any{"schema_id": unit.SchemaID}),
		ActorType:  domain.AuditActorOperator,
		ActorID:    operator.ID,
		TargetType: domain.AuditTargetUnit,
		TargetID:   unit.InternalID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) UnitRevoked(ctx context.Context, operator domain.Employee, unit *domain.Unit, reason string) {
	e.emit(ctx, domain.AuditEvent{
		EventType:  domain.AuditEventUnitRevoked,
		Payload:    payloadJSON(map[string]any{"reason": reason}),
		ActorType:  domain.AuditActorOperator,
		ActorID:    operator.ID,
		TargetType: domain.AuditTargetUnit,
		TargetID:   unit.InternalID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) ComponentAssigned(ctx context.Context, operator domain.Employee, unit, component *domain.Unit) {
	e.emit(ctx, domain.AuditEvent{
		EventType:  domain.AuditEventComponentAttach,
		Payload:    payloadJSON(map[string]any{"component_internal_id": component.InternalID}),
		ActorType:  domain.AuditActorOperator,
		ActorID:    operator.ID,
		TargetType: domain.AuditTargetUnit,
		TargetID:   unit.InternalID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) StageStarted(ctx context.Context, operator domain.Employee, unit *domain.Unit, stageID string) {
	e.emit(ctx, domain.AuditEvent{
		EventType:  domain.AuditEventStageStarted,
		Payload:    payloadJSON(map[string]any{"stage_id": stageID}),
		ActorType:  domain.AuditActorOperator,
		ActorID:    operator.ID,
		TargetType: domain.AuditTargetUnit,
		TargetID:   unit.InternalID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) StageEnded(ctx context.Context, operator domain.Employee, unit *domain.Unit, stageID string, premature bool) {
	e.emit(ctx, domain.AuditEvent{
		EventType:  domain.AuditEventStageEnded,
		Payload:    payloadJSON(map[string]any{"stage_id": stageID, "premature": premature}),
		ActorType:  domain.AuditActorOperator,
		ActorID:    operator.ID,
		TargetType: domain.AuditTargetUnit,
		TargetID:   unit.InternalID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) StageAborted(ctx context.Context, operator domain.Employee, unit *domain.Unit, stageID, reason string) {
	e.emit(ctx, domain.AuditEvent{
		EventType:  domain.AuditEventStageAborted,
		Payload:    payloadJSON(map[string]any{"stage_id": stageID, "reason": reason}),
		ActorType:  domain.AuditActorOperator,
		ActorID:    operator.ID,
		TargetType: domain.AuditTargetUnit,
		TargetID:   unit.InternalID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) PassportAnchored(ctx context.Context, unitInternalID, contentHash, txHash string, result domain.AuditResult, errorCode string) {
	e.emit(ctx, domain.AuditEvent{
		EventType:  domain.AuditEventPassportAnchored,
		Payload:    payloadJSON(map[string]any{"unit_internal_id": unitInternalID, "tx_hash": txHash}),
		ActorType:  domain.AuditActorSystem,
		TargetType: domain.AuditTargetPassport,
		TargetID:   contentHash,
		Result:     result,
		ErrorCode:  errorCode,
	})
}

// VerifyAuditChain replays the workbench's audit trail and fails on any
// mutation, gap or reordering.
func VerifyAuditChain(ctx context.Context, repo AuditEventRepository, workbench int) error {
	if repo == nil {
		return errors.New("audit repository required")
	}
	events, err := repo.ListByWorkbench(ctx, workbench)
	if err != nil {
		return err
	}
	expectedSeq := int64(1)
	prevHash := ZeroAuditHash()
	for _, event := range events {
		if event.Seq != expectedSeq {
			return fmt.Errorf("audit chain seq mismatch: expected %d got %d", expectedSeq, event.Seq)
		}
		if event.PrevEventHash != prevHash {
			return fmt.Errorf("audit chain prev hash mismatch at seq %d", event.Seq)
		}
		if sha256Hex(event.Payload) != event.PayloadHash {
			return fmt.Errorf("audit chain payload hash mismatch at seq %d", event.Seq)
		}
		expectedHash, err := ChainHash(event)
		if err != nil {
			return fmt.Errorf("audit chain hash compute failed at seq %d: %w", event.Seq, err)
		}
		if expectedHash != event.EventHash {
			return fmt.Errorf("audit chain hash mismatch at seq %d", event.Seq)
		}
		prevHash = event.EventHash
		expectedSeq++
	}
	return nil
}

// ChainHash computes the link hash covering the event fields and the
// previous link.
func ChainHash(event domain.AuditEvent) (string, error) {
	if event.EventType == "" || event.PayloadHash == "" || event.PrevEventHash == "" {
		return "", errors.New("audit event missing chained fields")
	}
	link := map[string]any{
		"version":         domain.AuditChainVersion,
		"workbench":       event.Workbench,
		"seq":             event.Seq,
		"event_type":      string(event.EventType),
		"payload_hash":    event.PayloadHash,
		"actor_type":      string(event.ActorType),
		"actor_id":        event.ActorID,
		"target_type":     string(event.TargetType),
		"target_id":       event.TargetID,
		"result":          string(event.Result),
		"error_code":      event.ErrorCode,
		"prev_event_hash": event.PrevEventHash,
		"created_at":      event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	// encoding/json sorts map keys, which keeps the hashed form stable.
	b, err := json.Marshal(link)
	if err != nil {
		return "", err
	}
	return sha256Hex(b), nil
}

func ZeroAuditHash() string {
	return hex.EncodeToString(make([]byte, sha256.Size))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func payloadJSON(v map[string]any) []byte {
	if v == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
