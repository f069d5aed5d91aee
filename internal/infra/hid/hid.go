// Package hid maps raw input events from the workbench peripherals (RFID
// card reader, barcode scanner) onto workbench actions. Events arrive over
// HTTP from the reader daemon running next to the hardware.
package hid

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
	"github.com/Testiot539/feec-workbench-daemon/internal/usecase"
)

const (
	SourceRFIDReader    = "rfid_reader"
	SourceBarcodeReader = "barcode_reader"
)

type Event struct {
	Source string `json:"source"`
	Value  string `json:"value"`
}

type Dispatcher struct {
	Workbench *usecase.Workbench
}

// Dispatch routes one peripheral event. A card swipe toggles the session:
// log in when idle, log out otherwise. A barcode scan means "put this unit
// on the table", or "attach this component" while gathering.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if event.Value == "" {
		return errors.New("empty event value")
	}
	switch event.Source {
	case SourceRFIDReader:
		return d.handleCard(ctx, event.Value)
	case SourceBarcodeReader:
		return d.handleBarcode(ctx, event.Value)
	default:
		return fmt.Errorf("unknown event source %q", event.Source)
	}
}

func (d *Dispatcher) handleCard(ctx context.Context, token string) error {
	status := d.Workbench.Status()
	if !status.EmployeeLoggedIn {
		employee, err := d.Workbench.LogIn(ctx, token)
		if err != nil {
			return err
		}
		log.Printf("operator %s logged in by card", employee.Name)
		return nil
	}
	return d.Workbench.LogOut(ctx)
}

func (d *Dispatcher) handleBarcode(ctx context.Context, internalID string) error {
	status := d.Workbench.Status()
	switch status.State {
	case domain.StateAwaitLogin:
		return fmt.Errorf("%w: scan ignored, nobody is logged in", domain.ErrStateForbidden)
	case domain.StateGatherComponents:
		return d.Workbench.AssignComponent(ctx, internalID)
	case domain.StateAuthorizedIdling:
		return d.Workbench.AssignUnit(ctx, internalID)
	case domain.StateUnitAssigned:
		// Scanning a different unit swaps the table contents.
		if status.UnitInternalID == internalID {
			return nil
		}
		if err := d.Workbench.RemoveUnit(ctx); err != nil {
			return err
		}
		return d.Workbench.AssignUnit(ctx, internalID)
	default:
		return fmt.Errorf("%w: scan ignored during an ongoing operation", domain.ErrStateForbidden)
	}
}
