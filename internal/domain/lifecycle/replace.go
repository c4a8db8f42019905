package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/prettyneat-io/pumpfleet/internal/domain/activity"
	"github.com/prettyneat-io/pumpfleet/internal/domain/equipment"
	"github.com/prettyneat-io/pumpfleet/internal/domain/syncguard"
	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
)

const (
	ReasonMalfunction = "malfunction"
	ReasonDamage      = "damage"
	ReasonOther       = "other"
)

var reasonLabels = map[string]string{
	ReasonMalfunction: "Malfunction",
	ReasonDamage:      "Damage",
	ReasonOther:       "Other",
}

type ReplaceParams struct {
	OldID  uuid.UUID
	NewID  uuid.UUID
	Reason string
	Notes  string
}

type ReplaceResult struct {
	Old *equipment.Unit `json:"old"`
	New *equipment.Unit `json:"new"`
}

// Replace swaps a patient's primary pump for an available RMA unit. Every
// precondition is checked before anything is written.
func (e *Engine) Replace(ctx context.Context, p ReplaceParams) (*ReplaceResult, error) {
	var out *ReplaceResult
	err := e.observe(ctx, "replace", func() error {
		return e.tx.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.replace(ctx, p)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) replace(ctx context.Context, p ReplaceParams) (*ReplaceResult, error) {
	reason, ok := reasonLabels[p.Reason]
	if !ok {
		return nil, apperr.Validation("Invalid replacement reason %q.", p.Reason)
	}
	if p.OldID == p.NewID {
		return nil, apperr.Validation("A device cannot replace itself.")
	}

	old, err := e.units.GetUnit(ctx, p.OldID)
	if err != nil {
		return nil, err
	}
	if !old.IsPumpDevice {
		return nil, apperr.Eligibility("The current device SN %s is not a pump device.", old.SerialNumber)
	}
	if old.RoleValue() == equipment.RoleHoliday {
		return nil, apperr.Policy("Device replacement is only available for primary devices. " +
			"Holiday pumps cannot be replaced through this workflow.")
	}
	if old.State != equipment.StateAssigned || old.AssignedPatientID == nil {
		return nil, apperr.State("Device replacement is only available for devices that are currently assigned to a patient.")
	}
	if old.RoleValue() != equipment.RolePrimary {
		return nil, apperr.Policy("Device replacement is only available for primary devices.")
	}

	repl, err := e.units.GetUnit(ctx, p.NewID)
	if err != nil {
		return nil, err
	}
	if !repl.IsRMADevice || !repl.IsPumpDevice {
		return nil, apperr.Eligibility("Only RMA replacement devices can be used for device replacement; SN %s is not one.", repl.SerialNumber)
	}
	if repl.State != equipment.StateAvailable {
		return nil, apperr.State("The replacement device '%s' is not available. Current state: %s", repl.SerialNumber, repl.State)
	}

	pt, err := e.patients.GetPatient(ctx, *old.AssignedPatientID)
	if err != nil {
		return nil, err
	}
	guarded := syncguard.With(ctx)

	if _, err := e.ledger.CloseEntry(ctx, pt.ID, old.ID, equipment.RolePrimary); err != nil {
		return nil, err
	}
	old.ClearAssignment()
	if err := e.units.UpdateUnit(guarded, old); err != nil {
		return nil, err
	}
	pt.PrimaryDeviceID = nil
	if err := e.patients.UpdatePatient(guarded, pt); err != nil {
		return nil, err
	}

	today := e.today()
	repl, pt, err = e.assign(ctx, AssignParams{
		EquipmentID:      repl.ID,
		PatientID:        pt.ID,
		Role:             equipment.RolePrimary,
		InstallationDate: &today,
	}, assignOptions{bypassEligibility: true})
	if err != nil {
		return nil, err
	}
	if _, err := e.activity.ResolveForRecord(ctx, activity.RecordEquipment, old.ID); err != nil {
		return nil, err
	}

	notes := ""
	if n := strings.TrimSpace(p.Notes); n != "" {
		notes = " Notes: " + n
	}
	if err := e.note(ctx, activity.RecordPatient, pt.ID, fmt.Sprintf(
		"Primary device SN %s replaced with RMA device SN %s. Reason: %s.%s",
		old.SerialNumber, repl.SerialNumber, reason, notes)); err != nil {
		return nil, err
	}
	if err := e.note(ctx, activity.RecordEquipment, old.ID, fmt.Sprintf(
		"Replaced for Patient ID %s. Reason: %s.%s", pt.InternalID, reason, notes)); err != nil {
		return nil, err
	}
	if err := e.note(ctx, activity.RecordEquipment, repl.ID, fmt.Sprintf(
		"Assigned to Patient ID %s as replacement for SN %s.", pt.InternalID, old.SerialNumber)); err != nil {
		return nil, err
	}

	e.transferBestEffort(ctx, old, e.cfg.ReturnLocationID, "Return of SN "+old.SerialNumber)

	if old, err = e.units.GetUnit(ctx, old.ID); err != nil {
		return nil, err
	}
	if repl, err = e.units.GetUnit(ctx, repl.ID); err != nil {
		return nil, err
	}
	return &ReplaceResult{Old: old, New: repl}, nil
}
