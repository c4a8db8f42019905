package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/prettyneat-io/pumpfleet/internal/domain/equipment"
	"github.com/prettyneat-io/pumpfleet/internal/domain/patient"
)

// The methods below apply assignment edits made directly on a unit or a
// patient record. They run inside the caller's transaction.

var (
	_ equipment.AssignmentRouter = (*Engine)(nil)
	_ patient.DeviceLinker       = (*Engine)(nil)
)

// AssignUnit assigns a unit whose assigned patient was edited. Holiday
// assignments take the patient's current return date.
func (e *Engine) AssignUnit(ctx context.Context, unitID, patientID uuid.UUID, role string) error {
	var ret *time.Time
	if role == equipment.RoleHoliday {
		pt, err := e.patients.GetPatient(ctx, patientID)
		if err != nil {
			return err
		}
		ret = pt.HolidayReturnDate
	}
	return e.LinkDevice(ctx, patientID, unitID, role, ret)
}

func (e *Engine) UnassignUnit(ctx context.Context, unitID uuid.UUID) error {
	return e.UnlinkDevice(ctx, unitID)
}

// LinkDevice assigns a unit whose id was written into a patient's device
// pointer.
func (e *Engine) LinkDevice(ctx context.Context, patientID, unitID uuid.UUID, role string, returnDate *time.Time) error {
	return e.observe(ctx, "assign", func() error {
		u, pt, err := e.assign(ctx, AssignParams{
			EquipmentID: unitID,
			PatientID:   patientID,
			Role:        role,
			ReturnDate:  returnDate,
		}, assignOptions{})
		if err != nil {
			return err
		}
		return e.assignNotes(ctx, u, pt)
	})
}

// UnlinkDevice unassigns a unit removed from a patient's device pointer.
// A unit that is no longer assigned is left alone.
func (e *Engine) UnlinkDevice(ctx context.Context, unitID uuid.UUID) error {
	return e.observe(ctx, "unassign", func() error {
		u, err := e.units.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if u.State != equipment.StateAssigned {
			return nil
		}
		if err := e.unassignWithNotes(ctx, u); err != nil {
			return err
		}
		e.transferBestEffort(ctx, u, e.cfg.ReturnLocationID, "Return of SN "+u.SerialNumber)
		return nil
	})
}
