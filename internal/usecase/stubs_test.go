package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
)

type stubUnits struct {
	mu      sync.Mutex
	units   map[string]*domain.Unit
	saves   int
	failGet error
}

func newStubUnits(units ...*domain.Unit) *stubUnits {
	s := &stubUnits{units: make(map[string]*domain.Unit)}
	for _, u := range units {
		s.units[u.InternalID] = u
	}
	return s
}

func (s *stubUnits) GetByInternalID(_ context.Context, internalID string) (*domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	unit, ok := s.units[internalID]
	if !ok {
		return nil, fmt.Errorf("%w: unit %s", domain.ErrNotFound, internalID)
	}
	return unit, nil
}

func (s *stubUnits) Create(_ context.Context, unit *domain.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.InternalID] = unit
	return nil
}

func (s *stubUnits) Save(_ context.Context, unit *domain.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.units[unit.InternalID] = unit
	return nil
}

func (s *stubUnits) ListByStatus(_ context.Context, status domain.UnitStatus) ([]domain.UnitListEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.UnitListEntry
	for _, u := range s.units {
		if u.Status == status {
			out = append(out, domain.UnitListEntry{InternalID: u.InternalID, UnitName: u.Schema.UnitName})
		}
	}
	return out, nil
}

func (s *stubUnits) SetPassportCID(_ context.Context, internalID, cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.units[internalID]; ok {
		u.PassportCID = cid
		return nil
	}
	return domain.ErrNotFound
}

func (s *stubUnits) SetLedgerTxHash(_ context.Context, internalID, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.units[internalID]; ok {
		u.LedgerTxHash = txHash
		return nil
	}
	return domain.ErrNotFound
}

type stubEmployees struct {
	byToken map[string]*domain.Employee
}

func (s *stubEmployees) GetByCardToken(_ context.Context, token string) (*domain.Employee, error) {
	employee, ok := s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("%w: no employee for card token", domain.ErrNotFound)
	}
	return employee, nil
}

type stubSchemas struct {
	byID map[string]domain.ProductionSchema
}

func (s *stubSchemas) GetByID(_ context.Context, schemaID string) (*domain.ProductionSchema, error) {
	schema, ok := s.byID[schemaID]
	if !ok {
		return nil, fmt.Errorf("%w: schema %s", domain.ErrNotFound, schemaID)
	}
	return &schema, nil
}

func (s *stubSchemas) List(_ context.Context) ([]domain.ProductionSchema, error) {
	var out []domain.ProductionSchema
	for _, schema := range s.byID {
		out = append(out, schema)
	}
	return out, nil
}

func (s *stubSchemas) Upsert(_ context.Context, schema domain.ProductionSchema) error {
	if s.byID == nil {
		s.byID = make(map[string]domain.ProductionSchema)
	}
	s.byID[schema.SchemaID] = schema
	return nil
}

// stubSessions mirrors the Postgres compare-and-set semantics in memory.
type stubSessions struct {
	mu       sync.Mutex
	sessions map[string]domain.StageSession
}

func newStubSessions() *stubSessions {
	return &stubSessions{sessions: make(map[string]domain.StageSession)}
}

func (s *stubSessions) Acquire(_ context.Context, session domain.StageSession, staleBefore time.Time) (domain.StageSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, held := s.sessions[session.UnitInternalID]
	if held && !existing.AcquiredAt.Before(staleBefore) {
		return existing, false, nil
	}
	s.sessions[session.UnitInternalID] = session
	return session, true, nil
}

func (s *stubSessions) Release(_ context.Context, unitInternalID, operatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[unitInternalID]; ok && existing.OperatorID == operatorID {
		delete(s.sessions, unitInternalID)
	}
	return nil
}

func (s *stubSessions) Get(_ context.Context, unitInternalID string) (*domain.StageSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[unitInternalID]; ok {
		return &existing, nil
	}
	return nil, nil
}

// memAuditRepo chains events in memory the way the Postgres repository
// does, which makes it usable for chain verification tests.
type memAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *memAuditRepo) Append(_ context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = fmt.Sprintf("event-%d", len(r.events)+1)
	event.Seq = int64(len(r.events) + 1)
	if event.Payload == nil {
		event.Payload = []byte("{}")
	}
	if event.PayloadHash == "" {
		event.PayloadHash = sha256Hex(event.Payload)
	}
	if len(r.events) == 0 {
		event.PrevEventHash = ZeroAuditHash()
	} else {
		event.PrevEventHash = r.events[len(r.events)-1].EventHash
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)
	hash, err := ChainHash(event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.EventHash = hash
	r.events = append(r.events, event)
	return event, nil
}

func (r *memAuditRepo) ListByWorkbench(_ context.Context, workbench int) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEvent, len(r.events))
	copy(out, r.events)
	return out, nil
}

type stubPublisher struct {
	mu       sync.Mutex
	enqueued []string
}

func (p *stubPublisher) Enqueue(unitInternalID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueued = append(p.enqueued, unitInternalID)
}

func (p *stubPublisher) list() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.enqueued))
	copy(out, p.enqueued)
	return out
}

type stubRecorder struct {
	mu      sync.Mutex
	started []string
	stopped []string
	cids    []string
}

func (r *stubRecorder) StartRecording(_ context.Context, unitInternalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, unitInternalID)
	return nil
}

func (r *stubRecorder) StopRecording(_ context.Context, unitInternalID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, unitInternalID)
	return r.cids, nil
}

type stubPrinter struct {
	mu       sync.Mutex
	barcodes []string
	qrs      []string
	sealTags []string
	fail     error
}

func (p *stubPrinter) PrintBarcode(_ context.Context, internalID, annotation string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.barcodes = append(p.barcodes, internalID)
	return nil
}

func (p *stubPrinter) PrintQR(_ context.Context, url, annotation string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.qrs = append(p.qrs, url)
	return nil
}

func (p *stubPrinter) PrintSealTag(_ context.Context, operatorToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sealTags = append(p.sealTags, operatorToken)
	return nil
}

type stubMetrics struct {
	mu             sync.Mutex
	unitsCreated   int
	stagesDone     int
	unitsCompleted int
	anchored       int
	errors         map[string]int
}

func (m *stubMetrics) UnitCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unitsCreated++
}

func (m *stubMetrics) StageCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stagesDone++
}

func (m *stubMetrics) UnitCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unitsCompleted++
}

func (m *stubMetrics) PassportAnchored() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anchored++
}

func (m *stubMetrics) ErrorObserved(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = make(map[string]int)
	}
	m.errors[kind]++
}

type denyPolicy struct{}

func (denyPolicy) Evaluate(context.Context, domain.PolicyInput) (domain.PolicyResult, error) {
	return domain.PolicyResult{Allow: false, Reasons: []string{"position not allowed"}}, nil
}
