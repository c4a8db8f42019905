package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/prettyneat-io/pumpfleet/internal/domain/equipment"
	"github.com/prettyneat-io/pumpfleet/internal/domain/syncguard"
	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/db"
)

// UnitStore reads and writes equipment units. Satisfied by
// *equipment.Service.
type UnitStore interface {
	GetUnit(ctx context.Context, id uuid.UUID) (*equipment.Unit, error)
	UpdateUnit(ctx context.Context, u *equipment.Unit) error
}

type Service struct {
	locations LocationRepository
	movements MovementRepository
	units     UnitStore
	tx        db.TxRunner
}

func NewService(locations LocationRepository, movements MovementRepository, units UnitStore, tx db.TxRunner) *Service {
	return &Service{locations: locations, movements: movements, units: units, tx: tx}
}

func (s *Service) CreateLocation(ctx context.Context, l *Location) error {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return apperr.Validation("Location name is required.")
	}
	if l.Usage == "" {
		l.Usage = UsageInternal
	}
	if l.Usage != UsageInternal && l.Usage != UsageScrap {
		return apperr.Validation("Invalid location usage %q.", l.Usage)
	}
	return s.locations.Create(ctx, l)
}

func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (*Location, error) {
	return s.locations.GetByID(ctx, id)
}

func (s *Service) ListLocations(ctx context.Context, usage string, limit, offset int) ([]*Location, int, error) {
	return s.locations.List(ctx, usage, limit, offset)
}

// Transfer moves a unit into the destination location and records the
// movement. Moving a unit to the location it already sits in is a no-op
// and returns nil.
func (s *Service) Transfer(ctx context.Context, equipmentID, to uuid.UUID, reference string) (*Movement, error) {
	var moved *Movement
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		dest, err := s.locations.GetByID(ctx, to)
		if err != nil {
			return err
		}
		u, err := s.units.GetUnit(ctx, equipmentID)
		if err != nil {
			return err
		}
		if u.LocationID != nil && *u.LocationID == dest.ID {
			return nil
		}
		if u.State == equipment.StateScrapped && dest.Usage != UsageScrap {
			return apperr.State("Equipment SN %s is scrapped and can only be moved to a scrap location.", u.SerialNumber)
		}
		m := &Movement{
			EquipmentID:    u.ID,
			FromLocationID: u.LocationID,
			ToLocationID:   dest.ID,
			Reference:      strings.TrimSpace(reference),
		}
		if m.Reference == "" {
			m.Reference = "Transfer of SN " + u.SerialNumber
		}
		if err := s.movements.Create(ctx, m); err != nil {
			return err
		}
		u.LocationID = &dest.ID
		if err := s.units.UpdateUnit(syncguard.With(ctx), u); err != nil {
			return err
		}
		moved = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

func (s *Service) ListMovements(ctx context.Context, equipmentID uuid.UUID, limit, offset int) ([]*Movement, int, error) {
	return s.movements.ListByEquipment(ctx, equipmentID, limit, offset)
}
