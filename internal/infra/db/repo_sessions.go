package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"

	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Acquire claims the per-unit session marker with a single compare-and-set
// statement: the insert wins an empty slot, the conditional update wins a
// slot whose holder went stale. Anything else loses and sees the current
// holder.
func (r *SessionRepository) Acquire(ctx context.Context, session domain.StageSession, staleBefore time.Time) (domain.StageSession, bool, error) {
	if r.db == nil {
		return domain.StageSession{}, false, errDBUnavailable
	}
	if session.UnitInternalID == "" || session.OperatorID == "" {
		return domain.StageSession{}, false, errors.New("unit and operator are required")
	}

	var claimed StageSessionModel
	err := r.db.WithContext(ctx).Raw(
		`INSERT INTO stage_sessions (unit_internal_id, operator_id, stage_id, acquired_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (unit_internal_id)
		 DO UPDATE SET operator_id = EXCLUDED.operator_id,
		               stage_id = EXCLUDED.stage_id,
		               acquired_at = EXCLUDED.acquired_at
		 WHERE stage_sessions.acquired_at < ?
		 RETURNING unit_internal_id, operator_id, stage_id, acquired_at`,
		session.UnitInternalID, session.OperatorID, session.StageID,
		session.AcquiredAt.UTC(), staleBefore.UTC(),
	).Scan(&claimed).Error
	if err != nil {
		return domain.StageSession{}, false, err
	}
	if claimed.UnitInternalID != "" {
		return sessionFromModel(claimed), true, nil
	}

	// Lost the race. Report the holder so callers can name the conflict.
	holder, err := r.Get(ctx, session.UnitInternalID)
	if err != nil {
		return domain.StageSession{}, false, err
	}
	if holder == nil {
		// Holder released between the CAS and the read. Treat as busy and
		// let the caller retry.
		return domain.StageSession{}, false, fmt.Errorf("%w: unit %s", domain.ErrUnitBusy, session.UnitInternalID)
	}
	return *holder, false, nil
}

func (r *SessionRepository) Release(ctx context.Context, unitInternalID, operatorID string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM stage_sessions WHERE unit_internal_id = ? AND operator_id = ?`,
		unitInternalID, operatorID,
	).Error
}

func (r *SessionRepository) Get(ctx context.Context, unitInternalID string) (*domain.StageSession, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model StageSessionModel
	if err := r.db.WithContext(ctx).
		Where("unit_internal_id = ?", unitInternalID).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	session := sessionFromModel(model)
	return &session, nil
}

func sessionFromModel(model StageSessionModel) domain.StageSession {
	return domain.StageSession{
		UnitInternalID: model.UnitInternalID,
		OperatorID:     model.OperatorID,
		StageID:        model.StageID,
		AcquiredAt:     model.AcquiredAt.UTC(),
	}
}
