package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
	"github.com/Testiot539/feec-workbench-daemon/internal/usecase"

	"gorm.io/gorm"
)

type AuditEventRepository struct {
	db *gorm.DB
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

// Append assigns the next chain position under a row lock on the workbench
// sequence, links the event to its predecessor and persists it. Concurrent
// appends serialize on the lock, so the chain never forks.
func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	if event.EventType == "" {
		return domain.AuditEvent{}, errors.New("event_type is required")
	}
	if event.ID == "" {
		id, err := newUUID()
		if err != nil {
			return domain.AuditEvent{}, err
		}
		event.ID = id
	}
	if event.Payload == nil {
		event.Payload = []byte("{}")
	}
	if event.PayloadHash == "" {
		sum := sha256.Sum256(event.Payload)
		event.PayloadHash = hex.EncodeToString(sum[:])
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)

	var out domain.AuditEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextAuditSeq(ctx, tx, event.Workbench)
		if err != nil {
			return err
		}
		event.Seq = seq
		event.PrevEventHash = prevHash

		eventHash, err := usecase.ChainHash(event)
		if err != nil {
			return err
		}
		event.EventHash = eventHash

		model := auditEventToModel(event)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = event
		return nil
	})
	if err != nil {
		return domain.AuditEvent{}, err
	}
	return out, nil
}

func (r *AuditEventRepository) ListByWorkbench(ctx context.Context, workbench int) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditEventModel
	if err := r.db.WithContext(ctx).
		Where("workbench = ?", workbench).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		out = append(out, auditEventFromModel(model))
	}
	return out, nil
}

func nextAuditSeq(ctx context.Context, tx *gorm.DB, workbench int) (int64, string, error) {
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO workbench_audit_seq (workbench, seq) VALUES (?, 0) ON CONFLICT (workbench) DO NOTHING",
		workbench,
	).Error; err != nil {
		return 0, "", err
	}

	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM workbench_audit_seq WHERE workbench = ? FOR UPDATE",
		workbench,
	).Scan(&currentSeq).Error; err != nil {
		return 0, "", err
	}
	nextSeq := currentSeq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE workbench_audit_seq SET seq = ? WHERE workbench = ?",
		nextSeq, workbench,
	).Error; err != nil {
		return 0, "", err
	}

	prevHash := usecase.ZeroAuditHash()
	if currentSeq > 0 {
		var prev AuditEventModel
		if err := tx.WithContext(ctx).
			Where("workbench = ? AND seq = ?", workbench, currentSeq).
			Take(&prev).Error; err != nil {
			return 0, "", err
		}
		prevHash = prev.EventHash
	}
	if prevHash == "" {
		return 0, "", fmt.Errorf("missing previous event hash for workbench %d", workbench)
	}
	return nextSeq, prevHash, nil
}

func auditEventToModel(event domain.AuditEvent) AuditEventModel {
	return AuditEventModel{
		ID:            event.ID,
		Workbench:     event.Workbench,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		PayloadJSON:   event.Payload,
		PayloadHash:   event.PayloadHash,
		ActorType:     string(event.ActorType),
		ActorID:       event.ActorID,
		TargetType:    string(event.TargetType),
		TargetID:      event.TargetID,
		Result:        string(event.Result),
		ErrorCode:     event.ErrorCode,
		PrevEventHash: event.PrevEventHash,
		EventHash:     event.EventHash,
		CreatedAt:     event.CreatedAt.UTC(),
	}
}

func auditEventFromModel(model AuditEventModel) domain.AuditEvent {
	return domain.AuditEvent{
		ID:            model.ID,
		Workbench:     model.Workbench,
		Seq:           model.Seq,
		EventType:     domain.AuditEventType(model.EventType),
		Payload:       model.PayloadJSON,
		PayloadHash:   model.PayloadHash,
		ActorType:     domain.AuditActorType(model.ActorType),
		ActorID:       model.ActorID,
		TargetType:    domain.AuditTargetType(model.TargetType),
		TargetID:      model.TargetID,
		Result:        domain.AuditResult(model.Result),
		ErrorCode:     model.ErrorCode,
		PrevEventHash: model.PrevEventHash,
		EventHash:     model.EventHash,
		CreatedAt:     model.CreatedAt.UTC(),
	}
}
