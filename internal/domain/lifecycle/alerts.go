package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/prettyneat-io/pumpfleet/internal/domain/activity"
	"github.com/prettyneat-io/pumpfleet/internal/domain/equipment"
)

// CheckReplacementAlerts opens a replacement_due reminder for every
// assigned pump whose replacement date falls within the alert window and
// that has no open one yet. It returns the number of reminders created.
// When another process holds the sweep lease it does nothing.
func (e *Engine) CheckReplacementAlerts(ctx context.Context) (int, error) {
	created := 0
	err := e.observe(ctx, "replacement_sweep", func() error {
		release, ok, err := e.locker.TryAcquire(ctx, sweepLockKey, sweepLockTTL)
		if err != nil {
			return err
		}
		if !ok {
			e.logger.Info().Msg("replacement sweep already running elsewhere; skipping")
			return nil
		}
		defer release(context.WithoutCancel(ctx))

		today := e.today()
		due, err := e.units.DueForReplacement(ctx, today, today.AddDate(0, 0, e.cfg.AlertWindowDays))
		if err != nil {
			return fmt.Errorf("list units due for replacement: %w", err)
		}
		for _, u := range due {
			ok, err := e.remind(ctx, u, today)
			if err != nil {
				e.logger.Error().Err(err).Str("serial", u.SerialNumber).Msg("create replacement reminder")
				continue
			}
			if ok {
				created++
			}
		}
		return nil
	})
	e.metrics.RemindersCreated(created)
	if created > 0 {
		e.logger.Info().Int("created", created).Msg("replacement reminders created")
	}
	return created, err
}

func (e *Engine) remind(ctx context.Context, u *equipment.Unit, today time.Time) (bool, error) {
	if u.State != equipment.StateAssigned || !u.IsPumpDevice || u.ReplacementDate == nil {
		return false, nil
	}
	exists, err := e.activity.HasOpenReminder(ctx, activity.RecordEquipment, u.ID, activity.KindReplacementDue)
	if err != nil || exists {
		return false, err
	}

	name, internalID := "Unknown", "N/A"
	if u.AssignedPatientID != nil {
		if pt, err := e.patients.GetPatient(ctx, *u.AssignedPatientID); err == nil {
			name, internalID = pt.Name, pt.InternalID
		}
	}
	rd := *u.ReplacementDate
	note := fmt.Sprintf("Equipment SN: %s\nPatient: %s (%s)\nAssignment Type: %s\nReplacement Date: %s\nDays Remaining: %d",
		u.SerialNumber, name, internalID, roleLabel(u.RoleValue()),
		rd.Format("2006-01-02"), int(rd.Sub(today).Hours()/24))

	err = e.activity.CreateReminder(ctx, &activity.Reminder{
		RecordType: activity.RecordEquipment,
		RecordID:   u.ID,
		Kind:       activity.KindReplacementDue,
		Summary:    "Replacement date approaching: " + u.SerialNumber,
		Note:       note,
		Deadline:   rd,
		Assignee:   e.cfg.ReminderAssignee,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// RunSweeper runs CheckReplacementAlerts once and then on every tick until
// ctx is cancelled. Call it in a goroutine.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	e.sweepOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepOnce(ctx)
		}
	}
}

func (e *Engine) sweepOnce(ctx context.Context) {
	if _, err := e.CheckReplacementAlerts(ctx); err != nil {
		e.logger.Error().Err(err).Msg("replacement sweep failed")
	}
}
