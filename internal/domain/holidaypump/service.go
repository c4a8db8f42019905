package holidaypump

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prettyneat-io/pumpfleet/internal/domain/activity"
	"github.com/prettyneat-io/pumpfleet/internal/domain/equipment"
	"github.com/prettyneat-io/pumpfleet/internal/domain/lifecycle"
	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/db"
	"github.com/prettyneat-io/pumpfleet/internal/platform/notification"
	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
)

// UnitLookup resolves the serial a patient types into the form.
type UnitLookup interface {
	GetUnitBySerial(ctx context.Context, serial string) (*equipment.Unit, error)
}

// HolidayAssigner is satisfied by *lifecycle.Engine.
type HolidayAssigner interface {
	Assign(ctx context.Context, p lifecycle.AssignParams) (*equipment.Unit, error)
}

type NotePoster interface {
	Post(ctx context.Context, recordType string, recordID uuid.UUID, body string) (*activity.Note, error)
}

type TemplateMailer interface {
	SendTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) error
}

type Service struct {
	requests    Repository
	units       UnitLookup
	assigner    HolidayAssigner
	notes       NotePoster
	mailer      TemplateMailer
	tx          db.TxRunner
	helpdesk    string
	phoneRegion string
	logger      zerolog.Logger
}

func NewService(requests Repository, units UnitLookup, assigner HolidayAssigner, notes NotePoster,
	mailer TemplateMailer, tx db.TxRunner, helpdesk, phoneRegion string, logger zerolog.Logger) *Service {
	return &Service{
		requests:    requests,
		units:       units,
		assigner:    assigner,
		notes:       notes,
		mailer:      mailer,
		tx:          tx,
		helpdesk:    helpdesk,
		phoneRegion: phoneRegion,
		logger:      logger.With().Str("component", "holidaypump").Logger(),
	}
}

// SubmitInput is what the public form collects.
type SubmitInput struct {
	PatientName     string
	MainPumpSerial  string
	ContactPhone    string
	ContactEmail    string
	TravelStartDate time.Time
	TravelEndDate   time.Time
	Destination     string
	Reason          string
	AdditionalNotes string
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Submit records a pending request against the patient holding the given
// main pump and notifies the helpdesk once the request is stored.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Request, error) {
	serial := strings.TrimSpace(in.MainPumpSerial)
	if in.TravelEndDate.Before(in.TravelStartDate) {
		return nil, apperr.Validation("Travel end date cannot be before the start date.")
	}
	notAssigned := apperr.NotFound("Serial Number '%s' not found or not currently assigned to a patient.", serial)
	u, err := s.units.GetUnitBySerial(ctx, serial)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, notAssigned
	}
	if err != nil {
		return nil, err
	}
	if !u.IsPumpDevice || u.State != equipment.StateAssigned || u.AssignedPatientID == nil {
		return nil, notAssigned
	}

	r := &Request{
		PatientName:     strings.TrimSpace(in.PatientName),
		MainPumpSerial:  u.SerialNumber,
		ContactPhone:    validation.NormalizePhone(in.ContactPhone, s.phoneRegion),
		ContactEmail:    optional(in.ContactEmail),
		TravelStartDate: equipment.Day(in.TravelStartDate),
		TravelEndDate:   equipment.Day(in.TravelEndDate),
		Destination:     strings.TrimSpace(in.Destination),
		Reason:          optional(in.Reason),
		AdditionalNotes: optional(in.AdditionalNotes),
		Status:          StatusPending,
		PatientID:       u.AssignedPatientID,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Create(ctx, r); err != nil {
			return err
		}
		if _, err := s.notes.Post(ctx, activity.RecordHolidayRequest, r.ID,
			fmt.Sprintf("Holiday pump request %s submitted via the website.", r.Reference)); err != nil {
			return err
		}
		db.AfterCommit(ctx, func() { s.notifyHelpdesk(ctx, r) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Service) notifyHelpdesk(ctx context.Context, r *Request) {
	if s.mailer == nil || s.helpdesk == "" {
		return
	}
	data := map[string]string{
		"reference":    r.Reference,
		"patient_name": r.PatientName,
		"serial":       r.MainPumpSerial,
		"travel_start": r.TravelStartDate.Format("2006-01-02"),
		"travel_end":   r.TravelEndDate.Format("2006-01-02"),
		"destination":  r.Destination,
		"phone":        r.ContactPhone,
		"email":        deref(r.ContactEmail),
		"reason":       deref(r.Reason),
		"notes":        deref(r.AdditionalNotes),
	}
	if err := s.mailer.SendTemplate(ctx, notification.TemplateHolidayPumpRequest, data, s.helpdesk); err != nil {
		s.logger.Warn().Err(err).Str("reference", r.Reference).Msg("helpdesk notification failed")
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.requests.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Request, int, error) {
	return s.requests.List(ctx, status, limit, offset)
}

// Approve lends holidayPumpID to the request's patient for the travel
// period.
func (s *Service) Approve(ctx context.Context, id, holidayPumpID uuid.UUID) (*Request, error) {
	var out *Request
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.pending(ctx, id)
		if err != nil {
			return err
		}
		if r.PatientID == nil {
			return apperr.Validation("Request %s is not linked to a patient.", r.Reference)
		}
		start, end := r.TravelStartDate, r.TravelEndDate
		u, err := s.assigner.Assign(ctx, lifecycle.AssignParams{
			EquipmentID:      holidayPumpID,
			PatientID:        *r.PatientID,
			Role:             equipment.RoleHoliday,
			InstallationDate: &start,
			ReturnDate:       &end,
		})
		if err != nil {
			return err
		}
		r.Status = StatusApproved
		r.HolidayPumpID = &u.ID
		if err := s.requests.Update(ctx, r); err != nil {
			return err
		}
		if _, err := s.notes.Post(ctx, activity.RecordHolidayRequest, r.ID,
			fmt.Sprintf("Approved. Holiday pump SN %s assigned.", u.SerialNumber)); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Request, error) {
	var out *Request
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.pending(ctx, id)
		if err != nil {
			return err
		}
		r.Status = StatusRejected
		if err := s.requests.Update(ctx, r); err != nil {
			return err
		}
		if _, err := s.notes.Post(ctx, activity.RecordHolidayRequest, r.ID, "Rejected."); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) pending(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, apperr.State("Request %s is already %s.", r.Reference, r.Status)
	}
	return r, nil
}
