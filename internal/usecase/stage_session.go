package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
)

// StageSessionManager serializes stage work per unit. The in-process held
// set is the fast path; the persisted session row acquired by
// compare-and-set stays authoritative across process restarts. Operations
// on different units proceed fully in parallel.
type StageSessionManager struct {
	Units      UnitRepository
	Employees  EmployeeRepository
	Sessions   SessionRepository
	Policy     domain.PolicyEngine
	Publisher  PassportPublisher
	Recorder   Recorder
	Printer    LabelPrinter
	Audit      *AuditEmitter
	Metrics    Metrics
	Clock      Clock
	StaleAfter time.Duration

	// PrintSealTag prints a physical tamper-evident tag when a unit
	// completes its final stage.
	PrintSealTag bool

	mu   sync.Mutex
	held map[string]string // unit internal id -> operator id
}

func (m *StageSessionManager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func (m *StageSessionManager) staleAfter() time.Duration {
	if m.StaleAfter > 0 {
		return m.StaleAfter
	}
	return 30 * time.Minute
}

// Begin authenticates the operator, claims the unit's session lock and
// stamps the stage record. The loser of two racing calls observes
// ErrUnitBusy.
func (m *StageSessionManager) Begin(ctx context.Context, unitInternalID, stageID, operatorToken string, info map[string]string) (domain.StageSession, error) {
	operator, err := m.authenticate(ctx, operatorToken)
	if err != nil {
		return domain.StageSession{}, err
	}

	if !m.claimLocal(unitInternalID, operator.ID) {
		// The held set is only a fast path. The persisted row decides
		// whether the open session may be forcibly reclaimed.
		existing, getErr := m.Sessions.Get(ctx, unitInternalID)
		if getErr != nil || existing == nil || m.now().Before(existing.StaleAt(m.staleAfter())) {
			return domain.StageSession{}, fmt.Errorf("%w: unit %s has an open session", domain.ErrUnitBusy, unitInternalID)
		}
		log.Printf("session on unit %s held by operator %s since %s is stale, reclaiming",
			unitInternalID, existing.OperatorID, existing.AcquiredAt.Format(time.RFC3339))
		m.stealLocal(unitInternalID, operator.ID)
	}
	session, acquired, err := m.Sessions.Acquire(ctx, domain.StageSession{
		UnitInternalID: unitInternalID,
		OperatorID:     operator.ID,
		StageID:        stageID,
		AcquiredAt:     m.now().UTC(),
	}, m.now().Add(-m.staleAfter()))
	if err != nil {
		m.releaseLocal(unitInternalID)
		return domain.StageSession{}, fmt.Errorf("acquire session: %w", err)
	}
	if !acquired {
		m.releaseLocal(unitInternalID)
		return domain.StageSession{}, fmt.Errorf("%w: unit %s locked by operator %s since %s",
			domain.ErrUnitBusy, unitInternalID, session.OperatorID, session.AcquiredAt.Format(time.RFC3339))
	}
	unit, err := m.Units.GetByInternalID(ctx, unitInternalID)
	if err != nil {
		m.release(ctx, unitInternalID, operator.ID)
		return domain.StageSession{}, err
	}
	if err := m.authorizeStage(ctx, operator, unit, stageID); err != nil {
		m.release(ctx, unitInternalID, operator.ID)
		return domain.StageSession{}, err
	}
	rec, err := unit.StartStage(stageID, operator, info, m.now())
	if err != nil {
		m.release(ctx, unitInternalID, operator.ID)
		return domain.StageSession{}, err
	}
	if err := m.Units.Save(ctx, unit); err != nil {
		m.release(ctx, unitInternalID, operator.ID)
		return domain.StageSession{}, fmt.Errorf("persist stage start: %w", err)
	}
	if m.Recorder != nil {
		if err := m.Recorder.StartRecording(ctx, unitInternalID); err != nil {
			log.Printf("recording start for unit %s failed: %v", unitInternalID, err)
		}
	}
	m.Audit.StageStarted(ctx, operator, unit, rec.SchemaStageID)
	return session, nil
}

// End freezes the in-progress stage, releases the lock, and on final-stage
// completion hands the unit to the publisher without blocking the caller.
func (m *StageSessionManager) End(ctx context.Context, unitInternalID string, notes map[string]string, attachments []string, premature bool) error {
	session, err := m.Sessions.Get(ctx, unitInternalID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("%w: no open session on unit %s", domain.ErrInvalidUnitState, unitInternalID)
	}
	unit, err := m.Units.GetByInternalID(ctx, unitInternalID)
	if err != nil {
		return err
	}

	videoCIDs := attachments
	if m.Recorder != nil {
		cids, recErr := m.Recorder.StopRecording(ctx, unitInternalID)
		if recErr != nil {
			log.Printf("recording stop for unit %s failed: %v", unitInternalID, recErr)
		} else {
			videoCIDs = append(videoCIDs, cids...)
		}
	}

	if err := unit.EndStage(videoCIDs, notes, premature, m.now()); err != nil {
		return err
	}
	if err := m.Units.Save(ctx, unit); err != nil {
		return fmt.Errorf("persist stage end: %w", err)
	}
	m.release(ctx, unitInternalID, session.OperatorID)

	operator := domain.Employee{ID: session.OperatorID}
	m.Audit.StageEnded(ctx, operator, unit, session.StageID, premature)
	if m.Metrics != nil {
		m.Metrics.StageCompleted()
	}
	if unit.Status == domain.UnitStatusBuilt {
		if m.Metrics != nil {
			m.Metrics.UnitCompleted()
		}
		if m.PrintSealTag && m.Printer != nil {
			if err := m.Printer.PrintSealTag(ctx, session.OperatorID); err != nil {
				log.Printf("seal tag print for unit %s failed: %v", unitInternalID, err)
			}
		}
		if m.Publisher != nil {
			m.Publisher.Enqueue(unitInternalID)
		}
	}
	return nil
}

// Abort discards the in-progress stage record and releases the lock.
// Idempotent: aborting a unit with no open session is a no-op.
func (m *StageSessionManager) Abort(ctx context.Context, unitInternalID, reason string) error {
	session, err := m.Sessions.Get(ctx, unitInternalID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		m.releaseLocal(unitInternalID)
		return nil
	}
	unit, err := m.Units.GetByInternalID(ctx, unitInternalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.release(ctx, unitInternalID, session.OperatorID)
			return nil
		}
		return err
	}
	unit.DiscardStage()
	if err := m.Units.Save(ctx, unit); err != nil {
		return fmt.Errorf("persist stage abort: %w", err)
	}
	m.release(ctx, unitInternalID, session.OperatorID)
	m.Audit.StageAborted(ctx, domain.Employee{ID: session.OperatorID}, unit, session.StageID, reason)
	return nil
}

func (m *StageSessionManager) authenticate(ctx context.Context, token string) (domain.Employee, error) {
	employee, err := m.Employees.GetByCardToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Employee{}, fmt.Errorf("%w: unknown card token", domain.ErrUnauthorizedOperator)
		}
		return domain.Employee{}, err
	}
	if !employee.Authorized {
		return domain.Employee{}, fmt.Errorf("%w: %s", domain.ErrUnauthorizedOperator, employee.Name)
	}
	return *employee, nil
}

func (m *StageSessionManager) authorizeStage(ctx context.Context, operator domain.Employee, unit *domain.Unit, stageID string) error {
	if m.Policy == nil {
		return nil
	}
	stageType := ""
	if idx := unit.Schema.StageIndex(stageID); idx >= 0 {
		stageType = unit.Schema.Stages[idx].Type
	}
	result, err := m.Policy.Evaluate(ctx, domain.PolicyInput{
		OperatorID:       operator.ID,
		OperatorPosition: operator.Position,
		SchemaID:         unit.SchemaID,
		StageID:          stageID,
		StageType:        stageType,
	})
	if err != nil {
		return fmt.Errorf("evaluate stage policy: %w", err)
	}
	if !result.Allow {
		return fmt.Errorf("%w: policy denied stage %s for position %q", domain.ErrUnauthorizedOperator, stageID, operator.Position)
	}
	return nil
}

func (m *StageSessionManager) claimLocal(unitInternalID, operatorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = make(map[string]string)
	}
	if _, busy := m.held[unitInternalID]; busy {
		return false
	}
	m.held[unitInternalID] = operatorID
	return true
}

func (m *StageSessionManager) stealLocal(unitInternalID, operatorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = make(map[string]string)
	}
	m.held[unitInternalID] = operatorID
}

func (m *StageSessionManager) releaseLocal(unitInternalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, unitInternalID)
}

func (m *StageSessionManager) release(ctx context.Context, unitInternalID, operatorID string) {
	if err := m.Sessions.Release(ctx, unitInternalID, operatorID); err != nil {
		log.Printf("release session on unit %s: %v", unitInternalID, err)
	}
	m.releaseLocal(unitInternalID)
}
