// Package lifecycle drives pump units through assignment, unassignment,
// scrapping and RMA replacement, keeping units, patients, the assignment
// ledger and reminders consistent inside one transaction.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prettyneat-io/pumpfleet/internal/config"
	"github.com/prettyneat-io/pumpfleet/internal/domain/activity"
	"github.com/prettyneat-io/pumpfleet/internal/domain/equipment"
	"github.com/prettyneat-io/pumpfleet/internal/domain/inventory"
	"github.com/prettyneat-io/pumpfleet/internal/domain/patient"
	"github.com/prettyneat-io/pumpfleet/internal/platform/db"
	"github.com/prettyneat-io/pumpfleet/internal/platform/locker"
	"github.com/prettyneat-io/pumpfleet/internal/platform/metrics"
)

// UnitStore is satisfied by *equipment.Service.
type UnitStore interface {
	GetUnit(ctx context.Context, id uuid.UUID) (*equipment.Unit, error)
	UpdateUnit(ctx context.Context, u *equipment.Unit) error
	CountAssigned(ctx context.Context, patientID uuid.UUID, role string, excludeID uuid.UUID) (int, error)
	DueForReplacement(ctx context.Context, from, to time.Time) ([]*equipment.Unit, error)
}

// PatientStore is satisfied by *patient.Service.
type PatientStore interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	UpdatePatient(ctx context.Context, p *patient.Patient) error
}

// Ledger is satisfied by *ledger.Service.
type Ledger interface {
	OpenEntry(ctx context.Context, patientID, equipmentID uuid.UUID, role string, installed time.Time) (bool, error)
	CloseEntry(ctx context.Context, patientID, equipmentID uuid.UUID, role string) (bool, error)
	CountHistorical(ctx context.Context, equipmentID uuid.UUID) (int, error)
}

// Activity is satisfied by *activity.Service.
type Activity interface {
	Post(ctx context.Context, recordType string, recordID uuid.UUID, body string) (*activity.Note, error)
	CreateReminder(ctx context.Context, r *activity.Reminder) error
	HasOpenReminder(ctx context.Context, recordType string, recordID uuid.UUID, kind string) (bool, error)
	ResolveForRecord(ctx context.Context, recordType string, recordID uuid.UUID) (int, error)
}

// Transferrer is satisfied by *inventory.Service.
type Transferrer interface {
	Transfer(ctx context.Context, equipmentID, to uuid.UUID, reference string) (*inventory.Movement, error)
}

const (
	sweepLockKey = "replacement-alerts"
	sweepLockTTL = 10 * time.Minute
)

type Engine struct {
	tx        db.TxRunner
	units     UnitStore
	patients  PatientStore
	ledger    Ledger
	activity  Activity
	inventory Transferrer
	locker    locker.Locker
	metrics   metrics.Recorder
	cfg       config.Pumps
	logger    zerolog.Logger
	now       func() time.Time
}

// Deps groups the collaborators of an Engine.
type Deps struct {
	Tx        db.TxRunner
	Units     UnitStore
	Patients  PatientStore
	Ledger    Ledger
	Activity  Activity
	Inventory Transferrer
	Locker    locker.Locker
	Metrics   metrics.Recorder
}

func NewEngine(d Deps, cfg config.Pumps, logger zerolog.Logger) *Engine {
	e := &Engine{
		tx:        d.Tx,
		units:     d.Units,
		patients:  d.Patients,
		ledger:    d.Ledger,
		activity:  d.Activity,
		inventory: d.Inventory,
		locker:    d.Locker,
		metrics:   d.Metrics,
		cfg:       cfg,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
		now:       time.Now,
	}
	if e.locker == nil {
		e.locker = locker.NewLocal()
	}
	if e.metrics == nil {
		e.metrics = metrics.Noop{}
	}
	return e
}

func (e *Engine) today() time.Time { return equipment.Day(e.now()) }

// observe records the outcome and duration of op.
func (e *Engine) observe(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	e.metrics.Observe(ctx, op, err == nil, time.Since(start))
	if err != nil {
		e.logger.Debug().Err(err).Str("op", op).Msg("lifecycle operation rejected")
	}
	return err
}

// transferBestEffort moves the unit to the configured location inside a
// savepoint. Failures are logged and never abort the caller.
func (e *Engine) transferBestEffort(ctx context.Context, u *equipment.Unit, locationID, reference string) {
	if e.inventory == nil || locationID == "" {
		return
	}
	to, err := uuid.Parse(locationID)
	if err != nil {
		e.logger.Warn().Str("location_id", locationID).Msg("configured location id is not a uuid; skipping transfer")
		return
	}
	err = e.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := e.inventory.Transfer(ctx, u.ID, to, reference)
		return err
	})
	if err != nil {
		e.logger.Warn().Err(err).
			Str("serial", u.SerialNumber).
			Str("location_id", locationID).
			Msg("equipment transfer failed")
	}
}

func (e *Engine) note(ctx context.Context, recordType string, id uuid.UUID, body string) error {
	_, err := e.activity.Post(ctx, recordType, id, body)
	return err
}

func roleLabel(role string) string {
	if role == equipment.RoleHoliday {
		return "Holiday Pump"
	}
	return "Primary"
}
