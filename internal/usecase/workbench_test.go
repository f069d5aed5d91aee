package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
)

func newTestWorkbench(t *testing.T) (*Workbench, *stubUnits, *stubPublisher) {
	t.Helper()
	employees := &stubEmployees{byToken: map[string]*domain.Employee{
		"card-1": {ID: "emp-1", Name: "Ivan", Position: "assembler", CardToken: "card-1", Authorized: true},
	}}
	units := newStubUnits()
	publisher := &stubPublisher{}
	audit := &AuditEmitter{Repo: &memAuditRepo{}, Workbench: 1}
	clock := func() time.Time { return sessionBase }
	registry := &UnitRegistry{
		Schemas: &stubSchemas{byID: map[string]domain.ProductionSchema{
			"schema-pump": sessionSchema(),
		}},
		Units:   units,
		Audit:   audit,
		Metrics: &stubMetrics{},
		Clock:   clock,
	}
	sessions := &StageSessionManager{
		Units:     units,
		Employees: employees,
		Sessions:  newStubSessions(),
		Publisher: publisher,
		Audit:     audit,
		Metrics:   &stubMetrics{},
		Clock:     clock,
	}
	return NewWorkbench(1, registry, sessions, employees, audit), units, publisher
}

func TestWorkbenchFullProductionFlow(t *testing.T) {
	w, _, publisher := newTestWorkbench(t)
	ctx := context.Background()

	if _, err := w.LogIn(ctx, "card-1"); err != nil {
		t.Fatalf("LogIn: %v", err)
	}
	if got := w.Status(); got.State != domain.StateAuthorizedIdling || !got.EmployeeLoggedIn {
		t.Fatalf("status after login = %+v", got)
	}

	unit, err := w.CreateUnit(ctx, "schema-pump")
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}
	if err := w.AssignUnit(ctx, unit.InternalID); err != nil {
		t.Fatalf("AssignUnit: %v", err)
	}
	if got := w.Status(); got.State != domain.StateUnitAssigned || got.UnitInternalID != unit.InternalID {
		t.Fatalf("status after assign = %+v", got)
	}

	for range sessionSchema().Stages {
		if err := w.StartOperation(ctx, nil); err != nil {
			t.Fatalf("StartOperation: %v", err)
		}
		if got := w.Status(); !got.OperationOngoing {
			t.Fatalf("status during operation = %+v", got)
		}
		if err := w.EndOperation(ctx, nil, false); err != nil {
			t.Fatalf("EndOperation: %v", err)
		}
	}
	if got := w.Status(); got.UnitStatus != string(domain.UnitStatusBuilt) {
		t.Fatalf("unit status = %s, want built", got.UnitStatus)
	}
	if got := publisher.list(); len(got) != 1 {
		t.Fatalf("published = %v, want one entry", got)
	}

	if err := w.RemoveUnit(ctx); err != nil {
		t.Fatalf("RemoveUnit: %v", err)
	}
	if err := w.LogOut(ctx); err != nil {
		t.Fatalf("LogOut: %v", err)
	}
	if got := w.Status(); got.State != domain.StateAwaitLogin || got.EmployeeLoggedIn {
		t.Fatalf("status after logout = %+v", got)
	}
}

func TestWorkbenchStateGuards(t *testing.T) {
	w, _, _ := newTestWorkbench(t)
	ctx := context.Background()

	if _, err := w.CreateUnit(ctx, "schema-pump"); !errors.Is(err, domain.ErrStateForbidden) {
		t.Fatalf("CreateUnit before login: err = %v, want ErrStateForbidden", err)
	}
	if err := w.StartOperation(ctx, nil); !errors.Is(err, domain.ErrStateForbidden) {
		t.Fatalf("StartOperation before login: err = %v, want ErrStateForbidden", err)
	}
	if err := w.LogOut(ctx); !errors.Is(err, domain.ErrStateForbidden) {
		t.Fatalf("LogOut before login: err = %v, want ErrStateForbidden", err)
	}

	if _, err := w.LogIn(ctx, "card-1"); err != nil {
		t.Fatalf("LogIn: %v", err)
	}
	if _, err := w.LogIn(ctx, "card-1"); !errors.Is(err, domain.ErrStateForbidden) {
		t.Fatalf("double LogIn: err = %v, want ErrStateForbidden", err)
	}
	if err := w.EndOperation(ctx, nil, false); !errors.Is(err, domain.ErrStateForbidden) {
		t.Fatalf("EndOperation with nothing ongoing: err = %v, want ErrStateForbidden", err)
	}
	if err := w.AssignUnit(ctx, "0000000000000"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("AssignUnit unknown: err = %v, want ErrNotFound", err)
	}
}

func TestWorkbenchLogOutClearsAssignedUnit(t *testing.T) {
	w, _, _ := newTestWorkbench(t)
	ctx := context.Background()

	if _, err := w.LogIn(ctx, "card-1"); err != nil {
		t.Fatalf("LogIn: %v", err)
	}
	unit, err := w.CreateUnit(ctx, "schema-pump")
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}
	if err := w.AssignUnit(ctx, unit.InternalID); err != nil {
		t.Fatalf("AssignUnit: %v", err)
	}
	if err := w.LogOut(ctx); err != nil {
		t.Fatalf("LogOut with unit assigned: %v", err)
	}
	if got := w.Status(); got.State != domain.StateAwaitLogin || got.UnitInternalID != "" {
		t.Fatalf("status after logout = %+v", got)
	}
}

func TestWorkbenchComponentGathering(t *testing.T) {
	w, units, _ := newTestWorkbench(t)
	registrySchemas := w.Registry.Schemas.(*stubSchemas)
	registrySchemas.byID["schema-motor"] = domain.ProductionSchema{
		SchemaID:       "schema-motor",
		UnitName:       "Motor",
		ParentSchemaID: "schema-motor-family",
	}
	registrySchemas.byID["schema-drive"] = domain.ProductionSchema{
		SchemaID:                   "schema-drive",
		UnitName:                   "Drive assembly",
		Type:                       domain.SchemaTypeComposite,
		Stages:                     []domain.StageTemplate{{StageID: "d1", Name: "Mate halves"}},
		RequiredComponentSchemaIDs: []string{"schema-motor-family"},
	}
	ctx := context.Background()

	if _, err := w.LogIn(ctx, "card-1"); err != nil {
		t.Fatalf("LogIn: %v", err)
	}
	component, err := w.CreateUnit(ctx, "schema-motor")
	if err != nil {
		t.Fatalf("create component: %v", err)
	}
	composite, err := w.CreateUnit(ctx, "schema-drive")
	if err != nil {
		t.Fatalf("create composite: %v", err)
	}
	if err := w.AssignUnit(ctx, composite.InternalID); err != nil {
		t.Fatalf("AssignUnit: %v", err)
	}
	if got := w.Status(); got.State != domain.StateGatherComponents {
		t.Fatalf("state = %s, want gather_components", got.State)
	}
	if err := w.StartOperation(ctx, nil); !errors.Is(err, domain.ErrStateForbidden) {
		t.Fatalf("StartOperation while gathering: err = %v, want ErrStateForbidden", err)
	}
	if err := w.AssignComponent(ctx, component.InternalID); err != nil {
		t.Fatalf("AssignComponent: %v", err)
	}
	if got := w.Status(); got.State != domain.StateUnitAssigned {
		t.Fatalf("state = %s, want unit_assigned", got.State)
	}
	if saved, _ := units.GetByInternalID(ctx, component.InternalID); saved.FeaturedInUnitID != composite.InternalID {
		t.Fatalf("component featured in = %q, want %s", saved.FeaturedInUnitID, composite.InternalID)
	}
}
