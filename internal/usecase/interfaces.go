package usecase

import (
	"context"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
)

type Clock func() time.Time

type SchemaRepository interface {
	GetByID(ctx context.Context, schemaID string) (*domain.ProductionSchema, error)
	List(ctx context.Context) ([]domain.ProductionSchema, error)
	Upsert(ctx context.Context, schema domain.ProductionSchema) error
}

type EmployeeRepository interface {
	GetByCardToken(ctx context.Context, token string) (*domain.Employee, error)
}

type UnitRepository interface {
	// GetByInternalID loads the unit with its biography in stage order and
	// its component units resolved recursively.
	GetByInternalID(ctx context.Context, internalID string) (*domain.Unit, error)
	Create(ctx context.Context, unit *domain.Unit) error
	// Save persists unit status, fields and biography. Completed stage
	// records are appended, never rewritten.
	Save(ctx context.Context, unit *domain.Unit) error
	ListByStatus(ctx context.Context, status domain.UnitStatus) ([]domain.UnitListEntry, error)
	SetPassportCID(ctx context.Context, internalID, cid string) error
	SetLedgerTxHash(ctx context.Context, internalID, txHash string) error
}

type SessionRepository interface {
	// Acquire atomically claims the per-unit session marker. A held marker
	// older than staleBefore is reclaimed. Returns the winning session and
	// whether this call acquired it.
	Acquire(ctx context.Context, session domain.StageSession, staleBefore time.Time) (domain.StageSession, bool, error)
	Release(ctx context.Context, unitInternalID, operatorID string) error
	Get(ctx context.Context, unitInternalID string) (*domain.StageSession, error)
}

type AuditEventRepository interface {
	// Append assigns Seq, PrevEventHash and EventHash under the chain head
	// and persists the event.
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByWorkbench(ctx context.Context, workbench int) ([]domain.AuditEvent, error)
}

// PassportPublisher decouples stage completion from anchoring: End returns
// to the operator immediately, publication runs in the background.
type PassportPublisher interface {
	Enqueue(unitInternalID string)
}

// LabelPrinter and Recorder are fire-and-forget collaborators. Failures are
// logged by the caller and never fail a state transition.
type LabelPrinter interface {
	PrintBarcode(ctx context.Context, internalID, annotation string) error
	PrintQR(ctx context.Context, url, annotation string) error
	PrintSealTag(ctx context.Context, operatorToken string) error
}

type Recorder interface {
	StartRecording(ctx context.Context, unitInternalID string) error
	// StopRecording returns the content addresses of published footage.
	StopRecording(ctx context.Context, unitInternalID string) ([]string, error)
}

type Metrics interface {
	UnitCreated()
	StageCompleted()
	UnitCompleted()
	PassportAnchored()
	ErrorObserved(kind string)
}
