package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
)

// UnitRegistry creates units, attaches components and answers unit/schema
// lookups. Stage work on a unit goes through the StageSessionManager.
type UnitRegistry struct {
	Schemas SchemaRepository
	Units   UnitRepository
	Audit   *AuditEmitter
	Printer LabelPrinter
	Metrics Metrics
	Clock   Clock
}

func (r *UnitRegistry) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// CreateUnit materializes a new unit under the schema and persists it. The
// barcode label print is best effort.
func (r *UnitRegistry) CreateUnit(ctx context.Context, schemaID string, operator domain.Employee) (*domain.Unit, error) {
	schema, err := r.Schemas.GetByID(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	unit := domain.NewUnit(*schema, r.now())
	if err := r.Units.Create(ctx, unit); err != nil {
		return nil, fmt.Errorf("persist unit: %w", err)
	}
	if r.Printer != nil {
		if err := r.Printer.PrintBarcode(ctx, unit.InternalID, schema.PrintName()); err != nil {
			log.Printf("barcode print for unit %s failed: %v", unit.InternalID, err)
		}
	}
	if r.Metrics != nil {
		r.Metrics.UnitCreated()
	}
	r.Audit.UnitCreated(ctx, operator, unit)
	return unit, nil
}

// AssignComponent attaches a completed component unit to a composite unit.
func (r *UnitRegistry) AssignComponent(ctx context.Context, unitInternalID, componentInternalID string, operator domain.Employee) error {
	unit, err := r.Units.GetByInternalID(ctx, unitInternalID)
	if err != nil {
		return err
	}
	component, err := r.Units.GetByInternalID(ctx, componentInternalID)
	if err != nil {
		return err
	}
	if err := unit.AssignComponent(component); err != nil {
		return err
	}
	if err := r.Units.Save(ctx, component); err != nil {
		return fmt.Errorf("persist component: %w", err)
	}
	if err := r.Units.Save(ctx, unit); err != nil {
		return fmt.Errorf("persist unit: %w", err)
	}
	r.Audit.ComponentAssigned(ctx, operator, unit, component)
	return nil
}

// Revoke aborts a unit still in production. Completed units are immutable.
func (r *UnitRegistry) Revoke(ctx context.Context, unitInternalID, reason string, operator domain.Employee) error {
	unit, err := r.Units.GetByInternalID(ctx, unitInternalID)
	if err != nil {
		return err
	}
	if err := unit.Revoke(); err != nil {
		return err
	}
	if err := r.Units.Save(ctx, unit); err != nil {
		return fmt.Errorf("persist unit: %w", err)
	}
	r.Audit.UnitRevoked(ctx, operator, unit, reason)
	return nil
}

func (r *UnitRegistry) GetUnit(ctx context.Context, unitInternalID string) (*domain.Unit, error) {
	return r.Units.GetByInternalID(ctx, unitInternalID)
}

// ListPending lists units still workable on the shop floor.
func (r *UnitRegistry) ListPending(ctx context.Context) ([]domain.UnitListEntry, error) {
	production, err := r.Units.ListByStatus(ctx, domain.UnitStatusProduction)
	if err != nil {
		return nil, err
	}
	revision, err := r.Units.ListByStatus(ctx, domain.UnitStatusRevision)
	if err != nil {
		return nil, err
	}
	return append(production, revision...), nil
}

func (r *UnitRegistry) GetSchema(ctx context.Context, schemaID string) (*domain.ProductionSchema, error) {
	return r.Schemas.GetByID(ctx, schemaID)
}

func (r *UnitRegistry) ListSchemas(ctx context.Context) ([]domain.ProductionSchema, error) {
	return r.Schemas.List(ctx)
}

// SaveSchema validates a schema definition and stores it, replacing any
// previous version under the same id. Units already in production keep the
// stage sequence they were created with.
func (r *UnitRegistry) SaveSchema(ctx context.Context, schema domain.ProductionSchema) error {
	if schema.SchemaID == "" || schema.UnitName == "" {
		return fmt.Errorf("%w: schema id and unit name are required", domain.ErrInvalidSchema)
	}
	if len(schema.Stages) == 0 {
		return fmt.Errorf("%w: schema %s has no production stages", domain.ErrInvalidSchema, schema.SchemaID)
	}
	seen := make(map[string]struct{}, len(schema.Stages))
	for _, stage := range schema.Stages {
		if stage.StageID == "" {
			return fmt.Errorf("%w: schema %s has a stage without an id", domain.ErrInvalidSchema, schema.SchemaID)
		}
		if _, dup := seen[stage.StageID]; dup {
			return fmt.Errorf("%w: schema %s declares stage %s twice", domain.ErrInvalidSchema, schema.SchemaID, stage.StageID)
		}
		seen[stage.StageID] = struct{}{}
	}
	return r.Schemas.Upsert(ctx, schema)
}
