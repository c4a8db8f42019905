package equipment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prettyneat-io/pumpfleet/internal/domain/syncguard"
	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/db"
)

// AssignmentRouter applies assignment edits made directly on a unit. It is
// implemented by the lifecycle engine.
type AssignmentRouter interface {
	AssignUnit(ctx context.Context, unitID, patientID uuid.UUID, role string) error
	UnassignUnit(ctx context.Context, unitID uuid.UUID) error
}

type Service struct {
	products        ProductRepository
	units           UnitRepository
	tx              db.TxRunner
	router          AssignmentRouter
	alertWindowDays int
	now             func() time.Time
}

func NewService(products ProductRepository, units UnitRepository, tx db.TxRunner, alertWindowDays int) *Service {
	return &Service{
		products:        products,
		units:           units,
		tx:              tx,
		alertWindowDays: alertWindowDays,
		now:             time.Now,
	}
}

// SetAssignmentRouter attaches the router used for unguarded assignment
// edits. Without one such edits are rejected.
func (s *Service) SetAssignmentRouter(r AssignmentRouter) {
	s.router = r
}

func (s *Service) today() time.Time { return Day(s.now()) }

// -- Products --

var validPumpKinds = map[string]bool{PumpKindGlucose: true, PumpKindInsulin: true}

func validateProduct(p *Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.Validation("Product name is required.")
	}
	if p.PumpKind != nil && !validPumpKinds[*p.PumpKind] {
		return apperr.Validation("Invalid pump kind %q.", *p.PumpKind)
	}
	if p.PumpKind != nil && !p.IsPumpProduct {
		return apperr.Validation("Pump kind can only be set on pump products.")
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, p *Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	return s.products.Create(ctx, p)
}

func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// UpdateProduct changes the product. Existing units keep the flags they
// were created with.
func (s *Service) UpdateProduct(ctx context.Context, p *Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	if _, err := s.products.GetByID(ctx, p.ID); err != nil {
		return err
	}
	return s.products.Update(ctx, p)
}

func (s *Service) ListProducts(ctx context.Context, limit, offset int) ([]*Product, int, error) {
	return s.products.List(ctx, limit, offset)
}

// -- Units --

// CreateUnit registers a unit as available stock. A unit submitted with an
// assigned patient is created first and then assigned through the router.
func (s *Service) CreateUnit(ctx context.Context, u *Unit) error {
	u.SerialNumber = strings.TrimSpace(u.SerialNumber)
	if u.SerialNumber == "" {
		return apperr.Validation("Serial number is required.")
	}
	if u.State != "" && u.State != StateAvailable {
		return apperr.Validation("New equipment must start as available.")
	}
	if u.LifespanYears < 0 {
		return apperr.Validation("Lifespan must be a positive number of years.")
	}
	if u.LifespanYears == 0 {
		u.LifespanYears = DefaultLifespanYears
	}
	product, err := s.products.GetByID(ctx, u.ProductID)
	if err != nil {
		return err
	}
	if existing, err := s.units.GetBySerial(ctx, u.SerialNumber); err == nil {
		return apperr.Conflict("Serial number %s already exists.", existing.SerialNumber)
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return err
	}

	u.IsPumpDevice = product.IsPumpProduct
	u.IsRMADevice = product.IsRMAProduct
	wantPatient, wantRole := u.AssignedPatientID, u.RoleValue()
	u.ClearAssignment()
	u.Derive(s.today(), s.alertWindowDays)

	if wantPatient == nil {
		return s.units.Create(ctx, u)
	}
	if s.router == nil {
		return apperr.Validation("Assignment changes are not available.")
	}
	if wantRole == "" {
		wantRole = RolePrimary
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.units.Create(ctx, u); err != nil {
			return err
		}
		if err := s.router.AssignUnit(ctx, u.ID, *wantPatient, wantRole); err != nil {
			return err
		}
		return s.reload(ctx, u)
	})
}

func (s *Service) GetUnit(ctx context.Context, id uuid.UUID) (*Unit, error) {
	u, err := s.units.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Derive(s.today(), s.alertWindowDays)
	return u, nil
}

// GetUnitBySerial looks a unit up by case-insensitive exact serial match.
func (s *Service) GetUnitBySerial(ctx context.Context, serial string) (*Unit, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, apperr.Validation("Serial number is required.")
	}
	u, err := s.units.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	u.Derive(s.today(), s.alertWindowDays)
	return u, nil
}

// UpdateUnit persists u. Under a sync guard the write is stored as given.
// Otherwise state, product and classification are kept from the stored
// unit, and a changed patient or role is routed through Unassign/Assign.
func (s *Service) UpdateUnit(ctx context.Context, u *Unit) error {
	existing, err := s.units.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	if syncguard.Active(ctx) {
		return s.save(ctx, u)
	}

	u.SerialNumber = strings.TrimSpace(u.SerialNumber)
	if u.SerialNumber == "" {
		return apperr.Validation("Serial number is required.")
	}
	if !strings.EqualFold(u.SerialNumber, existing.SerialNumber) {
		if other, err := s.units.GetBySerial(ctx, u.SerialNumber); err == nil && other.ID != u.ID {
			return apperr.Conflict("Serial number %s already exists.", other.SerialNumber)
		} else if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return err
		}
	}
	if u.State != "" && u.State != existing.State {
		return apperr.Validation("Equipment state changes go through the assign, unassign and scrap operations.")
	}
	if u.LifespanYears < 0 {
		return apperr.Validation("Lifespan must be a positive number of years.")
	}
	if u.LifespanYears == 0 {
		u.LifespanYears = existing.LifespanYears
	}
	u.ProductID = existing.ProductID
	u.IsPumpDevice = existing.IsPumpDevice
	u.IsRMADevice = existing.IsRMADevice
	u.CreatedAt = existing.CreatedAt

	wantPatient, wantRole := u.AssignedPatientID, u.RoleValue()
	if wantPatient != nil && wantRole == "" {
		wantRole = existing.RoleValue()
		if wantRole == "" {
			wantRole = RolePrimary
		}
	}
	changed := !sameID(existing.AssignedPatientID, wantPatient) ||
		(wantPatient != nil && wantRole != existing.RoleValue())

	u.State = existing.State
	u.Role = existing.Role
	u.AssignedPatientID = existing.AssignedPatientID
	if !changed {
		return s.save(ctx, u)
	}
	if s.router == nil {
		return apperr.Validation("Assignment changes are not available.")
	}
	if wantRole != "" && !ValidRole(wantRole) {
		return apperr.Validation("Invalid role %q.", wantRole)
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.save(ctx, u); err != nil {
			return err
		}
		if existing.State == StateAssigned {
			if err := s.router.UnassignUnit(ctx, u.ID); err != nil {
				return err
			}
		}
		if wantPatient != nil {
			if err := s.router.AssignUnit(ctx, u.ID, *wantPatient, wantRole); err != nil {
				return err
			}
		}
		return s.reload(ctx, u)
	})
}

func (s *Service) save(ctx context.Context, u *Unit) error {
	u.Derive(s.today(), s.alertWindowDays)
	return s.units.Update(ctx, u)
}

func (s *Service) reload(ctx context.Context, u *Unit) error {
	fresh, err := s.GetUnit(ctx, u.ID)
	if err != nil {
		return err
	}
	*u = *fresh
	return nil
}

// DeleteUnit removes a unit that is not currently assigned.
func (s *Service) DeleteUnit(ctx context.Context, id uuid.UUID) error {
	u, err := s.units.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.State == StateAssigned {
		return apperr.State("Equipment SN %s is assigned; unassign it before deleting.", u.SerialNumber)
	}
	return s.units.Delete(ctx, id)
}

func (s *Service) SearchUnits(ctx context.Context, params SearchParams, limit, offset int) ([]*Unit, int, error) {
	items, total, err := s.units.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, u := range items {
		u.Derive(s.today(), s.alertWindowDays)
	}
	return items, total, nil
}

// CountAssigned counts units other than excludeID assigned to the patient
// in role.
func (s *Service) CountAssigned(ctx context.Context, patientID uuid.UUID, role string, excludeID uuid.UUID) (int, error) {
	return s.units.CountAssigned(ctx, patientID, role, excludeID)
}

// DueForReplacement returns assigned pumps whose replacement date lies in
// [from, to].
func (s *Service) DueForReplacement(ctx context.Context, from, to time.Time) ([]*Unit, error) {
	items, err := s.units.ListDueForReplacement(ctx, Day(from), Day(to))
	if err != nil {
		return nil, err
	}
	for _, u := range items {
		u.Derive(s.today(), s.alertWindowDays)
	}
	return items, nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
