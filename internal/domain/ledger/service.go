package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
)

// Service keeps the assignment history. Open entries mirror the current
// assignment of each unit.
type Service struct {
	entries Repository
	now     func() time.Time
}

func NewService(entries Repository) *Service {
	return &Service{entries: entries, now: time.Now}
}

func today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OpenEntry records the start of an assignment. It returns false without
// writing when an open entry already exists for the key.
func (s *Service) OpenEntry(ctx context.Context, patientID, equipmentID uuid.UUID, role string, installed time.Time) (bool, error) {
	_, err := s.entries.FindOpen(ctx, patientID, equipmentID, role)
	if err == nil {
		return false, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return false, err
	}
	e := &Entry{
		PatientID:        patientID,
		EquipmentID:      equipmentID,
		Role:             role,
		InstallationDate: today(installed),
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return false, err
	}
	return true, nil
}

// CloseEntry stamps today's date on the most recent open entry for the
// key. Entries installed in the future close on their installation date.
// It returns false when there is nothing to close.
func (s *Service) CloseEntry(ctx context.Context, patientID, equipmentID uuid.UUID, role string) (bool, error) {
	e, err := s.entries.FindOpen(ctx, patientID, equipmentID, role)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closed := today(s.now())
	if closed.Before(e.InstallationDate) {
		closed = e.InstallationDate
	}
	if err := s.entries.Close(ctx, e.ID, closed); err != nil {
		return false, err
	}
	return true, nil
}

// CountHistorical returns how many entries were ever recorded for the unit,
// open or closed.
func (s *Service) CountHistorical(ctx context.Context, equipmentID uuid.UUID) (int, error) {
	return s.entries.CountByEquipment(ctx, equipmentID)
}

// History lists entries for a patient or a unit, newest installation first.
func (s *Service) History(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	if f.PatientID == nil && f.EquipmentID == nil {
		return nil, 0, apperr.Validation("Either patient_id or equipment_id is required.")
	}
	return s.entries.List(ctx, f, limit, offset)
}
