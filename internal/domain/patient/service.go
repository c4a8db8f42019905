package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prettyneat-io/pumpfleet/internal/domain/syncguard"
	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/db"
	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
)

const internalIDAttempts = 3

// DeviceLinker applies device pointer edits made directly on a patient. It
// is implemented by the lifecycle engine.
type DeviceLinker interface {
	LinkDevice(ctx context.Context, patientID, unitID uuid.UUID, role string, returnDate *time.Time) error
	UnlinkDevice(ctx context.Context, unitID uuid.UUID) error
}

type Service struct {
	patients    Repository
	tx          db.TxRunner
	linker      DeviceLinker
	phoneRegion string
	now         func() time.Time
}

func NewService(patients Repository, tx db.TxRunner, phoneRegion string) *Service {
	return &Service{patients: patients, tx: tx, phoneRegion: phoneRegion, now: time.Now}
}

// SetDeviceLinker attaches the linker used for unguarded pointer edits.
// Without one such edits are rejected.
func (s *Service) SetDeviceLinker(l DeviceLinker) {
	s.linker = l
}

func (s *Service) validate(p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.Validation("Patient name is required.")
	}
	if p.IsCompany {
		return apperr.Validation("Companies cannot be marked as patients.")
	}
	if p.Phone != nil {
		phone := validation.NormalizePhone(*p.Phone, s.phoneRegion)
		p.Phone = &phone
	}
	return nil
}

func validateHoliday(p *Patient) error {
	if p.HolidayDeviceID != nil && p.HolidayReturnDate == nil {
		return apperr.Validation("Patient %s: a holiday return date is required while a holiday pump is assigned.", p.displayID())
	}
	return nil
}

func (p *Patient) displayID() string {
	if p.InternalID != "" {
		return p.InternalID
	}
	return p.Name
}

// NextInternalID returns the next YYYY-NNN id for the current year.
func (s *Service) NextInternalID(ctx context.Context) (string, error) {
	year := s.now().Year()
	seq, err := s.patients.MaxInternalSeq(ctx, year)
	if err != nil {
		return "", err
	}
	return FormatInternalID(year, seq+1), nil
}

// CreatePatient assigns the internal id and stores the patient. Device
// pointers on the input are linked through the DeviceLinker afterwards.
func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.validate(p); err != nil {
		return err
	}
	wantPrimary, wantHoliday := p.PrimaryDeviceID, p.HolidayDeviceID
	p.PrimaryDeviceID, p.HolidayDeviceID = nil, nil
	if (wantPrimary != nil || wantHoliday != nil) && s.linker == nil {
		return apperr.Validation("Device assignment is not available.")
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.insert(ctx, p); err != nil {
			return err
		}
		if wantPrimary == nil && wantHoliday == nil {
			return nil
		}
		if wantPrimary != nil {
			if err := s.linker.LinkDevice(ctx, p.ID, *wantPrimary, "primary", nil); err != nil {
				return err
			}
		}
		if wantHoliday != nil {
			if err := s.linker.LinkDevice(ctx, p.ID, *wantHoliday, "holiday", p.HolidayReturnDate); err != nil {
				return err
			}
		}
		return s.reload(ctx, p)
	})
}

func (s *Service) insert(ctx context.Context, p *Patient) error {
	for attempt := 0; ; attempt++ {
		id, err := s.NextInternalID(ctx)
		if err != nil {
			return err
		}
		p.InternalID = id
		err = s.patients.Create(ctx, p)
		if !errors.Is(err, errInternalIDTaken) {
			return err
		}
		if attempt+1 == internalIDAttempts {
			return apperr.Conflict("Could not allocate a patient id, please retry.")
		}
	}
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByInternalID(ctx context.Context, internalID string) (*Patient, error) {
	return s.patients.GetByInternalID(ctx, strings.TrimSpace(internalID))
}

// UpdatePatient persists p. Under a sync guard the device pointers are
// written as given. Otherwise a changed primary or holiday pointer is routed
// through the DeviceLinker so equipment and ledger follow.
func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	existing, err := s.patients.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.InternalID = existing.InternalID
	p.CreatedAt = existing.CreatedAt
	if err := s.validate(p); err != nil {
		return err
	}
	if syncguard.Active(ctx) {
		if err := validateHoliday(p); err != nil {
			return err
		}
		return s.patients.Update(ctx, p)
	}

	type change struct {
		role     string
		from, to *uuid.UUID
	}
	var changes []change
	if !sameID(existing.PrimaryDeviceID, p.PrimaryDeviceID) {
		changes = append(changes, change{"primary", existing.PrimaryDeviceID, p.PrimaryDeviceID})
	}
	if !sameID(existing.HolidayDeviceID, p.HolidayDeviceID) {
		changes = append(changes, change{"holiday", existing.HolidayDeviceID, p.HolidayDeviceID})
	}
	if p.HolidayDeviceID != nil && p.HolidayReturnDate == nil {
		p.HolidayReturnDate = existing.HolidayReturnDate
	}
	returnDate := p.HolidayReturnDate

	p.PrimaryDeviceID = existing.PrimaryDeviceID
	p.HolidayDeviceID = existing.HolidayDeviceID
	if len(changes) == 0 {
		if err := validateHoliday(p); err != nil {
			return err
		}
		return s.patients.Update(ctx, p)
	}
	if s.linker == nil {
		return apperr.Validation("Device assignment is not available.")
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		for _, c := range changes {
			if c.from != nil {
				if err := s.linker.UnlinkDevice(ctx, *c.from); err != nil {
					return err
				}
			}
			if c.to != nil {
				if err := s.linker.LinkDevice(ctx, p.ID, *c.to, c.role, returnDate); err != nil {
					return err
				}
			}
		}
		return s.reload(ctx, p)
	})
}

func (s *Service) reload(ctx context.Context, p *Patient) error {
	fresh, err := s.patients.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *fresh
	return nil
}

// DeletePatient removes a patient holding no devices.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.PrimaryDeviceID != nil || p.HolidayDeviceID != nil {
		return apperr.State("Patient ID %s still holds assigned devices; unassign them first.", p.InternalID)
	}
	return s.patients.Delete(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, params, limit, offset)
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
