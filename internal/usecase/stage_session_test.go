package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
)

var sessionBase = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func sessionSchema() domain.ProductionSchema {
	return domain.ProductionSchema{
		SchemaID: "schema-pump",
		UnitName: "Pump assembly",
		Stages: []domain.StageTemplate{
			{StageID: "s1", Name: "Solder"},
			{StageID: "s2", Name: "Assemble"},
		},
	}
}

func newSessionManager(t *testing.T, unit *domain.Unit) (*StageSessionManager, *stubUnits, *stubSessions, *stubPublisher) {
	t.Helper()
	units := newStubUnits(unit)
	sessions := newStubSessions()
	publisher := &stubPublisher{}
	m := &StageSessionManager{
		Units: units,
		Employees: &stubEmployees{byToken: map[string]*domain.Employee{
			"card-1": {ID: "emp-1", Name: "Ivan", Position: "assembler", CardToken: "card-1", Authorized: true},
			"card-2": {ID: "emp-2", Name: "Petr", Position: "assembler", CardToken: "card-2", Authorized: true},
			"card-3": {ID: "emp-3", Name: "Gost", Position: "visitor", CardToken: "card-3", Authorized: false},
		}},
		Sessions:  sessions,
		Publisher: publisher,
		Audit:     &AuditEmitter{Repo: &memAuditRepo{}, Workbench: 1},
		Metrics:   &stubMetrics{},
		Clock:     func() time.Time { return sessionBase },
	}
	return m, units, sessions, publisher
}

func TestBeginEndCompletesUnitAndPublishesOnce(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, sessions, publisher := newSessionManager(t, unit)
	ctx := context.Background()

	for _, stageID := range []string{"s1", "s2"} {
		if _, err := m.Begin(ctx, unit.InternalID, stageID, "card-1", nil); err != nil {
			t.Fatalf("Begin(%s): %v", stageID, err)
		}
		if err := m.End(ctx, unit.InternalID, nil, nil, false); err != nil {
			t.Fatalf("End(%s): %v", stageID, err)
		}
	}
	if unit.Status != domain.UnitStatusBuilt {
		t.Fatalf("unit status = %s, want built", unit.Status)
	}
	if got := publisher.list(); len(got) != 1 || got[0] != unit.InternalID {
		t.Fatalf("published = %v, want exactly [%s]", got, unit.InternalID)
	}
	if held, _ := sessions.Get(ctx, unit.InternalID); held != nil {
		t.Fatalf("session still held after final End: %+v", held)
	}
}

func TestEndPrintsSealTagOnCompletion(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, _, _ := newSessionManager(t, unit)
	sealPrinter := &stubPrinter{}
	m.Printer = sealPrinter
	m.PrintSealTag = true
	ctx := context.Background()

	for _, stageID := range []string{"s1", "s2"} {
		if _, err := m.Begin(ctx, unit.InternalID, stageID, "card-1", nil); err != nil {
			t.Fatalf("Begin(%s): %v", stageID, err)
		}
		if err := m.End(ctx, unit.InternalID, nil, nil, false); err != nil {
			t.Fatalf("End(%s): %v", stageID, err)
		}
	}
	if len(sealPrinter.sealTags) != 1 || sealPrinter.sealTags[0] != "emp-1" {
		t.Fatalf("seal tags = %v, want one for emp-1", sealPrinter.sealTags)
	}
}

func TestBeginRejectsUnknownAndUnauthorizedCards(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, _, _ := newSessionManager(t, unit)
	ctx := context.Background()

	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-unknown", nil); !errors.Is(err, domain.ErrUnauthorizedOperator) {
		t.Fatalf("unknown card: err = %v, want ErrUnauthorizedOperator", err)
	}
	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-3", nil); !errors.Is(err, domain.ErrUnauthorizedOperator) {
		t.Fatalf("deactivated card: err = %v, want ErrUnauthorizedOperator", err)
	}
}

func TestBeginPolicyDenied(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, sessions, _ := newSessionManager(t, unit)
	m.Policy = denyPolicy{}
	ctx := context.Background()

	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-1", nil); !errors.Is(err, domain.ErrUnauthorizedOperator) {
		t.Fatalf("err = %v, want ErrUnauthorizedOperator", err)
	}
	if held, _ := sessions.Get(ctx, unit.InternalID); held != nil {
		t.Fatalf("session not released after policy denial: %+v", held)
	}
	if unit.Biography[0].StartedAt != nil {
		t.Fatal("stage record stamped despite policy denial")
	}
}

func TestBeginWhileHeldReturnsUnitBusy(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, _, _ := newSessionManager(t, unit)
	ctx := context.Background()

	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-1", nil); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-2", nil); !errors.Is(err, domain.ErrUnitBusy) {
		t.Fatalf("second Begin: err = %v, want ErrUnitBusy", err)
	}
}

func TestBeginRaceHasExactlyOneWinner(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, _, _ := newSessionManager(t, unit)
	ctx := context.Background()

	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, busy := 0, 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Begin(ctx, unit.InternalID, "s1", "card-1", nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrUnitBusy):
				busy++
			default:
				t.Errorf("unexpected Begin error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || busy != racers-1 {
		t.Fatalf("wins = %d, busy = %d, want 1 and %d", wins, busy, racers-1)
	}
}

func TestBeginReclaimsStaleSession(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, sessions, _ := newSessionManager(t, unit)
	m.StaleAfter = 30 * time.Minute
	ctx := context.Background()

	// Session left behind by a crashed process: present in the store but
	// unknown to this manager instance.
	sessions.sessions[unit.InternalID] = domain.StageSession{
		UnitInternalID: unit.InternalID,
		OperatorID:     "emp-2",
		StageID:        "s1",
		AcquiredAt:     sessionBase.Add(-2 * time.Hour),
	}
	session, err := m.Begin(ctx, unit.InternalID, "s1", "card-1", nil)
	if err != nil {
		t.Fatalf("Begin over stale session: %v", err)
	}
	if session.OperatorID != "emp-1" {
		t.Fatalf("session operator = %s, want emp-1", session.OperatorID)
	}
}

func TestBeginReclaimsStaleSessionHeldInProcess(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, _, _ := newSessionManager(t, unit)
	m.StaleAfter = 30 * time.Minute
	now := sessionBase
	m.Clock = func() time.Time { return now }
	ctx := context.Background()

	// First client begins a stage and never ends it, leaving both the
	// held set and the persisted row occupied.
	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-1", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-2", nil); !errors.Is(err, domain.ErrUnitBusy) {
		t.Fatalf("err = %v, want ErrUnitBusy before the timeout", err)
	}

	now = sessionBase.Add(2 * time.Hour)
	session, err := m.Begin(ctx, unit.InternalID, "s1", "card-2", nil)
	if err != nil {
		t.Fatalf("Begin past stale timeout: %v", err)
	}
	if session.OperatorID != "emp-2" {
		t.Fatalf("session operator = %s, want emp-2", session.OperatorID)
	}
}

func TestEndWithoutSessionIsInvalidState(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, _, _ := newSessionManager(t, unit)

	if err := m.End(context.Background(), unit.InternalID, nil, nil, false); !errors.Is(err, domain.ErrInvalidUnitState) {
		t.Fatalf("err = %v, want ErrInvalidUnitState", err)
	}
}

func TestEndPrematureDoesNotPublish(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, _, publisher := newSessionManager(t, unit)
	ctx := context.Background()

	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-1", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.End(ctx, unit.InternalID, nil, nil, true); err != nil {
		t.Fatalf("End premature: %v", err)
	}
	if unit.Status != domain.UnitStatusProduction {
		t.Fatalf("unit status = %s, want production", unit.Status)
	}
	if got := publisher.list(); len(got) != 0 {
		t.Fatalf("published = %v, want none", got)
	}
	// The redo copy of s1 must be the next pending stage.
	next := unit.NextPendingStage()
	if next == nil || next.SchemaStageID != "s1" {
		t.Fatalf("next pending = %+v, want redo of s1", next)
	}
}

func TestEndAttachesRecordingCIDs(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, _, _ := newSessionManager(t, unit)
	recorder := &stubRecorder{cids: []string{"QmVideo1"}}
	m.Recorder = recorder
	ctx := context.Background()

	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-1", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.End(ctx, unit.InternalID, nil, []string{"QmManual"}, false); err != nil {
		t.Fatalf("End: %v", err)
	}
	rec := unit.Biography[0]
	if len(rec.VideoCIDs) != 2 || rec.VideoCIDs[0] != "QmManual" || rec.VideoCIDs[1] != "QmVideo1" {
		t.Fatalf("video cids = %v", rec.VideoCIDs)
	}
	if len(recorder.started) != 1 || len(recorder.stopped) != 1 {
		t.Fatalf("recorder calls: started %v stopped %v", recorder.started, recorder.stopped)
	}
}

func TestAbortIsIdempotent(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, sessions, _ := newSessionManager(t, unit)
	ctx := context.Background()

	// No open session: a no-op.
	if err := m.Abort(ctx, unit.InternalID, "misfire"); err != nil {
		t.Fatalf("Abort without session: %v", err)
	}

	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-1", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Abort(ctx, unit.InternalID, "wrong unit"); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if unit.Biography[0].StartedAt != nil || unit.Biography[0].OperatorName != "" {
		t.Fatalf("stage record not reverted: %+v", unit.Biography[0])
	}
	if held, _ := sessions.Get(ctx, unit.InternalID); held != nil {
		t.Fatalf("session still held after abort: %+v", held)
	}
	if err := m.Abort(ctx, unit.InternalID, "again"); err != nil {
		t.Fatalf("second Abort: %v", err)
	}

	// The unit can be picked up again.
	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-2", nil); err != nil {
		t.Fatalf("Begin after abort: %v", err)
	}
}

func TestBeginOutOfSequenceReleasesSession(t *testing.T) {
	unit := domain.NewUnit(sessionSchema(), sessionBase)
	m, _, sessions, _ := newSessionManager(t, unit)
	ctx := context.Background()

	if _, err := m.Begin(ctx, unit.InternalID, "s2", "card-1", nil); !errors.Is(err, domain.ErrOutOfSequence) {
		t.Fatalf("err = %v, want ErrOutOfSequence", err)
	}
	if held, _ := sessions.Get(ctx, unit.InternalID); held != nil {
		t.Fatalf("session not released after failed Begin: %+v", held)
	}
	if _, err := m.Begin(ctx, unit.InternalID, "s1", "card-1", nil); err != nil {
		t.Fatalf("Begin after failed attempt: %v", err)
	}
}
