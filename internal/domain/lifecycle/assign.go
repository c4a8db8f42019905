package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prettyneat-io/pumpfleet/internal/domain/activity"
	"github.com/prettyneat-io/pumpfleet/internal/domain/equipment"
	"github.com/prettyneat-io/pumpfleet/internal/domain/patient"
	"github.com/prettyneat-io/pumpfleet/internal/domain/syncguard"
	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
)

// AssignParams describes an assignment. InstallationDate defaults to the
// unit's stored installation date, then the patient's, else today. ReturnDate is required for
// holiday assignments.
type AssignParams struct {
	EquipmentID      uuid.UUID
	PatientID        uuid.UUID
	Role             string
	InstallationDate *time.Time
	ReturnDate       *time.Time
}

type assignOptions struct {
	// bypassEligibility lets an RMA unit with no history become a primary
	// device. Only Replace sets it.
	bypassEligibility bool
}

// Assign hands an available pump to a patient in the given role.
func (e *Engine) Assign(ctx context.Context, p AssignParams) (*equipment.Unit, error) {
	var out *equipment.Unit
	err := e.observe(ctx, "assign", func() error {
		return e.tx.WithinTx(ctx, func(ctx context.Context) error {
			u, pt, err := e.assign(ctx, p, assignOptions{})
			if err != nil {
				return err
			}
			if err := e.assignNotes(ctx, u, pt); err != nil {
				return err
			}
			out = u
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) assign(ctx context.Context, p AssignParams, opts assignOptions) (*equipment.Unit, *patient.Patient, error) {
	if !equipment.ValidRole(p.Role) {
		return nil, nil, apperr.Validation("Invalid role %q.", p.Role)
	}
	u, err := e.units.GetUnit(ctx, p.EquipmentID)
	if err != nil {
		return nil, nil, err
	}
	if !u.IsPumpDevice {
		return nil, nil, apperr.Eligibility("Equipment SN %s is not a pump device.", u.SerialNumber)
	}
	if u.State != equipment.StateAvailable {
		return nil, nil, apperr.State("Equipment SN %s is %s; only available equipment can be assigned.", u.SerialNumber, u.State)
	}
	if u.IsRMADevice && p.Role == equipment.RoleHoliday {
		return nil, nil, apperr.Eligibility("RMA device '%s' cannot be assigned as a holiday pump. "+
			"RMA devices can only be used as replacements for malfunctioning primary devices.", u.SerialNumber)
	}
	if u.IsRMADevice && !opts.bypassEligibility {
		n, err := e.ledger.CountHistorical(ctx, u.ID)
		if err != nil {
			return nil, nil, err
		}
		if n == 0 {
			return nil, nil, apperr.Eligibility("RMA device '%s' cannot be assigned as an initial primary device. "+
				"RMA devices can only be used as replacements for malfunctioning primary devices "+
				"through the 'Replace Device' workflow.", u.SerialNumber)
		}
	}

	pt, err := e.patients.GetPatient(ctx, p.PatientID)
	if err != nil {
		return nil, nil, err
	}
	if pt.IsCompany {
		return nil, nil, apperr.Validation("%s is a company and cannot hold equipment.", pt.Name)
	}
	if err := e.checkRoleFree(ctx, u, pt, p.Role); err != nil {
		return nil, nil, err
	}

	installed := e.today()
	switch {
	case p.InstallationDate != nil:
		installed = equipment.Day(*p.InstallationDate)
	case u.InstallationDate != nil:
		installed = equipment.Day(*u.InstallationDate)
	case pt.InstallationDate != nil:
		installed = equipment.Day(*pt.InstallationDate)
	}
	if p.Role == equipment.RoleHoliday {
		if p.ReturnDate == nil {
			return nil, nil, apperr.Validation("A holiday return date is required to assign holiday pump SN %s.", u.SerialNumber)
		}
		if equipment.Day(*p.ReturnDate).Before(installed) {
			return nil, nil, apperr.Validation("The holiday return date cannot be before the installation date.")
		}
	}

	guarded := syncguard.With(ctx)
	role := p.Role
	u.State = equipment.StateAssigned
	u.Role = &role
	u.AssignedPatientID = &pt.ID
	u.InstallationDate = &installed
	if err := e.units.UpdateUnit(guarded, u); err != nil {
		return nil, nil, err
	}

	pt.SetDevicePointer(role, &u.ID)
	if role == equipment.RoleHoliday {
		ret := equipment.Day(*p.ReturnDate)
		pt.HolidayReturnDate = &ret
	} else {
		pt.InstallationDate = &installed
	}
	if err := e.patients.UpdatePatient(guarded, pt); err != nil {
		return nil, nil, err
	}

	if _, err := e.ledger.OpenEntry(ctx, pt.ID, u.ID, role, installed); err != nil {
		return nil, nil, err
	}
	if _, err := e.activity.ResolveForRecord(ctx, activity.RecordEquipment, u.ID); err != nil {
		return nil, nil, err
	}
	return u, pt, nil
}

// checkRoleFree rejects the assignment when the patient already holds a
// device in role.
func (e *Engine) checkRoleFree(ctx context.Context, u *equipment.Unit, pt *patient.Patient, role string) error {
	if held := pt.DevicePointer(role); held != nil && *held != u.ID {
		serial := held.String()
		if other, err := e.units.GetUnit(ctx, *held); err == nil {
			serial = other.SerialNumber
		}
		return roleConflict(pt, role, serial)
	}
	n, err := e.units.CountAssigned(ctx, pt.ID, role, u.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return roleConflict(pt, role, "")
	}
	return nil
}

func roleConflict(pt *patient.Patient, role, serial string) error {
	label := roleLabel(role)
	held := ""
	if serial != "" {
		held = fmt.Sprintf(" (%s)", serial)
	}
	return apperr.Conflict("Patient %s already has an assigned %s device%s. "+
		"A patient can only have one %s device at a time.", pt.Name, label, held, label)
}

func (e *Engine) assignNotes(ctx context.Context, u *equipment.Unit, pt *patient.Patient) error {
	role := u.RoleValue()
	if err := e.note(ctx, activity.RecordPatient, pt.ID,
		fmt.Sprintf("Device SN %s assigned as %s.", u.SerialNumber, role)); err != nil {
		return err
	}
	return e.note(ctx, activity.RecordEquipment, u.ID,
		fmt.Sprintf("Assigned to Patient ID %s as %s.", pt.InternalID, role))
}

// Unassign returns an assigned pump to stock and closes its ledger entry.
func (e *Engine) Unassign(ctx context.Context, equipmentID uuid.UUID) (*equipment.Unit, error) {
	var out *equipment.Unit
	err := e.observe(ctx, "unassign", func() error {
		return e.tx.WithinTx(ctx, func(ctx context.Context) error {
			u, err := e.units.GetUnit(ctx, equipmentID)
			if err != nil {
				return err
			}
			if err := e.unassignWithNotes(ctx, u); err != nil {
				return err
			}
			e.transferBestEffort(ctx, u, e.cfg.ReturnLocationID, "Return of SN "+u.SerialNumber)
			out, err = e.units.GetUnit(ctx, u.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) unassignWithNotes(ctx context.Context, u *equipment.Unit) error {
	pt, role, err := e.unassign(ctx, u)
	if err != nil {
		return err
	}
	if pt == nil {
		return nil
	}
	patientMsg := fmt.Sprintf("Device SN %s unassigned.", u.SerialNumber)
	unitMsg := fmt.Sprintf("Patient ID %s unassigned", pt.InternalID)
	if role == equipment.RoleHoliday {
		patientMsg = fmt.Sprintf("Holiday Pump SN %s unassigned.", u.SerialNumber)
		unitMsg += " (holiday pump)"
	}
	if err := e.note(ctx, activity.RecordPatient, pt.ID, patientMsg); err != nil {
		return err
	}
	return e.note(ctx, activity.RecordEquipment, u.ID, unitMsg)
}

// unassign clears the assignment of u and its patient. It returns the
// former patient and role; the patient is nil when the unit carried no
// patient reference.
func (e *Engine) unassign(ctx context.Context, u *equipment.Unit) (*patient.Patient, string, error) {
	if u.State != equipment.StateAssigned {
		return nil, "", apperr.State("Equipment SN %s is %s; only assigned equipment can be unassigned.", u.SerialNumber, u.State)
	}
	guarded := syncguard.With(ctx)
	role := u.RoleValue()

	var pt *patient.Patient
	if u.AssignedPatientID != nil {
		var err error
		pt, err = e.patients.GetPatient(ctx, *u.AssignedPatientID)
		if err != nil {
			return nil, "", err
		}
		if _, err := e.ledger.CloseEntry(ctx, pt.ID, u.ID, role); err != nil {
			return nil, "", err
		}
		if held := pt.DevicePointer(role); held != nil && *held == u.ID {
			pt.SetDevicePointer(role, nil)
			if role == equipment.RoleHoliday {
				pt.HolidayReturnDate = nil
			}
			if err := e.patients.UpdatePatient(guarded, pt); err != nil {
				return nil, "", err
			}
		}
	}

	u.ClearAssignment()
	if err := e.units.UpdateUnit(guarded, u); err != nil {
		return nil, "", err
	}
	if _, err := e.activity.ResolveForRecord(ctx, activity.RecordEquipment, u.ID); err != nil {
		return nil, "", err
	}
	return pt, role, nil
}

// Scrap retires a unit for good, unassigning it first when needed.
func (e *Engine) Scrap(ctx context.Context, equipmentID uuid.UUID) (*equipment.Unit, error) {
	var out *equipment.Unit
	err := e.observe(ctx, "scrap", func() error {
		return e.tx.WithinTx(ctx, func(ctx context.Context) error {
			u, err := e.units.GetUnit(ctx, equipmentID)
			if err != nil {
				return err
			}
			if u.State == equipment.StateScrapped {
				return apperr.State("Equipment SN %s is already scrapped.", u.SerialNumber)
			}
			if u.State == equipment.StateAssigned {
				pt, _, err := e.unassign(ctx, u)
				if err != nil {
					return err
				}
				if pt != nil {
					if err := e.note(ctx, activity.RecordPatient, pt.ID,
						fmt.Sprintf("Device SN %s scrapped", u.SerialNumber)); err != nil {
						return err
					}
				}
			}
			u.State = equipment.StateScrapped
			if err := e.units.UpdateUnit(syncguard.With(ctx), u); err != nil {
				return err
			}
			if err := e.note(ctx, activity.RecordEquipment, u.ID, "Device scrapped."); err != nil {
				return err
			}
			e.transferBestEffort(ctx, u, e.cfg.ScrapLocationID, "Scrap of SN "+u.SerialNumber)
			out, err = e.units.GetUnit(ctx, u.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
