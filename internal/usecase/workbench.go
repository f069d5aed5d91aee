package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
)

// Workbench is the daemon's view of one physical workplace: the operator
// logged in at it, the unit on the table and the current state. It fronts
// the UnitRegistry and StageSessionManager for the HTTP API and the HID
// event stream.
type Workbench struct {
	Number    int
	Registry  *UnitRegistry
	Sessions  *StageSessionManager
	Employees EmployeeRepository
	Audit     *AuditEmitter

	mu       sync.Mutex
	state    domain.WorkbenchState
	employee *domain.Employee
	unit     *domain.Unit
}

type WorkbenchStatus struct {
	State            domain.WorkbenchState `json:"state"`
	EmployeeLoggedIn bool                  `json:"employee_logged_in"`
	EmployeeName     string                `json:"employee_name,omitempty"`
	EmployeePosition string                `json:"employee_position,omitempty"`
	OperationOngoing bool                  `json:"operation_ongoing"`
	UnitInternalID   string                `json:"unit_internal_id,omitempty"`
	UnitStatus       string                `json:"unit_status,omitempty"`
	UnitBiography    []string              `json:"unit_biography,omitempty"`
	UnitComponents   map[string]string     `json:"unit_components,omitempty"`
}

func NewWorkbench(number int, registry *UnitRegistry, sessions *StageSessionManager, employees EmployeeRepository, audit *AuditEmitter) *Workbench {
	return &Workbench{
		Number:    number,
		Registry:  registry,
		Sessions:  sessions,
		Employees: employees,
		Audit:     audit,
		state:     domain.StateAwaitLogin,
	}
}

func (w *Workbench) Status() WorkbenchStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	status := WorkbenchStatus{
		State:            w.state,
		EmployeeLoggedIn: w.employee != nil,
		OperationOngoing: w.state == domain.StateStageOngoing,
	}
	if w.employee != nil {
		status.EmployeeName = w.employee.Name
		status.EmployeePosition = w.employee.Position
	}
	if w.unit != nil {
		status.UnitInternalID = w.unit.InternalID
		status.UnitStatus = string(w.unit.Status)
		for _, rec := range w.unit.CompletedStages() {
			status.UnitBiography = append(status.UnitBiography, rec.Name)
		}
		status.UnitComponents = w.unit.AssignedComponents()
	}
	return status
}

func (w *Workbench) switchState(next domain.WorkbenchState) error {
	if !w.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrStateForbidden, w.state, next)
	}
	log.Printf("workbench %d state changed: %s -> %s", w.Number, w.state, next)
	w.state = next
	return nil
}

// LogIn authorizes the operator whose card produced the token.
func (w *Workbench) LogIn(ctx context.Context, cardToken string) (*domain.Employee, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.CanTransitionTo(domain.StateAuthorizedIdling) {
		return nil, fmt.Errorf("%w: cannot log in from state %s", domain.ErrStateForbidden, w.state)
	}
	employee, err := w.Employees.GetByCardToken(ctx, cardToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown card token", domain.ErrUnauthorizedOperator)
		}
		return nil, err
	}
	if !employee.Authorized {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorizedOperator, employee.Name)
	}
	w.employee = employee
	if err := w.switchState(domain.StateAuthorizedIdling); err != nil {
		return nil, err
	}
	w.Audit.LoggedIn(ctx, *employee)
	return employee, nil
}

func (w *Workbench) LogOut(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == domain.StateUnitAssigned || w.state == domain.StateGatherComponents {
		if err := w.removeUnitLocked(); err != nil {
			return err
		}
	}
	if !w.state.CanTransitionTo(domain.StateAwaitLogin) {
		return fmt.Errorf("%w: cannot log out from state %s", domain.ErrStateForbidden, w.state)
	}
	if w.employee == nil {
		return fmt.Errorf("%w: nobody is logged in", domain.ErrStateForbidden)
	}
	operator := *w.employee
	w.employee = nil
	if err := w.switchState(domain.StateAwaitLogin); err != nil {
		return err
	}
	w.Audit.LoggedOut(ctx, operator)
	return nil
}

// CreateUnit makes a new unit under the schema and leaves it on the shelf,
// not on the table.
func (w *Workbench) CreateUnit(ctx context.Context, schemaID string) (*domain.Unit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != domain.StateAuthorizedIdling {
		return nil, fmt.Errorf("%w: unit creation requires an idle authorized workbench", domain.ErrStateForbidden)
	}
	return w.Registry.CreateUnit(ctx, schemaID, *w.employee)
}

// AssignUnit puts a unit on the table. A composite unit with open component
// slots sends the workbench into component gathering.
func (w *Workbench) AssignUnit(ctx context.Context, unitInternalID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	unit, err := w.Registry.GetUnit(ctx, unitInternalID)
	if err != nil {
		return err
	}
	// A freshly built unit whose passport is not yet published may come
	// back to the table for publication bookkeeping.
	override := unit.Status == domain.UnitStatusBuilt && unit.PassportCID == ""
	if !override && !unit.Workable() {
		return fmt.Errorf("%w: unit %s has status %s", domain.ErrInvalidUnitState, unit.InternalID, unit.Status)
	}
	if !unit.ComponentsFilled() {
		if err := w.switchState(domain.StateGatherComponents); err != nil {
			return err
		}
	} else {
		if err := w.switchState(domain.StateUnitAssigned); err != nil {
			return err
		}
	}
	w.unit = unit
	return nil
}

func (w *Workbench) RemoveUnit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removeUnitLocked()
}

func (w *Workbench) removeUnitLocked() error {
	if w.unit == nil {
		return fmt.Errorf("%w: no unit is assigned to the workbench", domain.ErrInvalidUnitState)
	}
	if err := w.switchState(domain.StateAuthorizedIdling); err != nil {
		return err
	}
	w.unit = nil
	return nil
}

// AssignComponent attaches a component while gathering; once every slot is
// filled the workbench returns to unit-assigned idling.
func (w *Workbench) AssignComponent(ctx context.Context, componentInternalID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != domain.StateGatherComponents || w.unit == nil {
		return fmt.Errorf("%w: component gathering is not active", domain.ErrStateForbidden)
	}
	if err := w.Registry.AssignComponent(ctx, w.unit.InternalID, componentInternalID, *w.employee); err != nil {
		return err
	}
	unit, err := w.Registry.GetUnit(ctx, w.unit.InternalID)
	if err != nil {
		return err
	}
	w.unit = unit
	if unit.ComponentsFilled() {
		return w.switchState(domain.StateUnitAssigned)
	}
	return nil
}

// StartOperation begins the unit's next pending stage for the logged-in
// operator.
func (w *Workbench) StartOperation(ctx context.Context, info map[string]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.CanTransitionTo(domain.StateStageOngoing) {
		return fmt.Errorf("%w: cannot start an operation from state %s", domain.ErrStateForbidden, w.state)
	}
	if w.unit == nil {
		return fmt.Errorf("%w: no unit is assigned to the workbench", domain.ErrInvalidUnitState)
	}
	if w.employee == nil {
		return fmt.Errorf("%w: nobody is logged in", domain.ErrUnauthorizedOperator)
	}
	pending := w.unit.NextPendingStage()
	if pending == nil {
		return fmt.Errorf("%w: unit %s", domain.ErrNoPendingStages, w.unit.InternalID)
	}
	if _, err := w.Sessions.Begin(ctx, w.unit.InternalID, pending.SchemaStageID, w.employee.CardToken, info); err != nil {
		return err
	}
	unit, err := w.Registry.GetUnit(ctx, w.unit.InternalID)
	if err == nil {
		w.unit = unit
	}
	return w.switchState(domain.StateStageOngoing)
}

// EndOperation wraps up the ongoing stage. A premature end records the
// stage as unfinished and schedules it to be redone.
func (w *Workbench) EndOperation(ctx context.Context, info map[string]string, premature bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.CanTransitionTo(domain.StateUnitAssigned) {
		return fmt.Errorf("%w: no operation is ongoing", domain.ErrStateForbidden)
	}
	if w.unit == nil {
		return fmt.Errorf("%w: no unit is assigned to the workbench", domain.ErrInvalidUnitState)
	}
	if err := w.Sessions.End(ctx, w.unit.InternalID, info, nil, premature); err != nil {
		return err
	}
	unit, err := w.Registry.GetUnit(ctx, w.unit.InternalID)
	if err == nil {
		w.unit = unit
	}
	return w.switchState(domain.StateUnitAssigned)
}

// Shutdown unwinds whatever is in flight: an ongoing stage ends
// prematurely, the table is cleared and the operator logged out.
func (w *Workbench) Shutdown(ctx context.Context) {
	if w.Status().OperationOngoing {
		if err := w.EndOperation(ctx, map[string]string{"ended_reason": "workbench shutdown"}, true); err != nil {
			log.Printf("workbench %d shutdown: end operation: %v", w.Number, err)
		}
	}
	status := w.Status()
	if status.State == domain.StateUnitAssigned || status.State == domain.StateGatherComponents {
		if err := w.RemoveUnit(ctx); err != nil {
			log.Printf("workbench %d shutdown: remove unit: %v", w.Number, err)
		}
	}
	if w.Status().State == domain.StateAuthorizedIdling {
		if err := w.LogOut(ctx); err != nil {
			log.Printf("workbench %d shutdown: log out: %v", w.Number, err)
		}
	}
}
