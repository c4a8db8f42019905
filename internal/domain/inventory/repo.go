package inventory

import (
	"context"

	"github.com/google/uuid"
)

type LocationRepository interface {
	Create(ctx context.Context, l *Location) error
	GetByID(ctx context.Context, id uuid.UUID) (*Location, error)
	List(ctx context.Context, usage string, limit, offset int) ([]*Location, int, error)
}

type MovementRepository interface {
	Create(ctx context.Context, m *Movement) error
	ListByEquipment(ctx context.Context, equipmentID uuid.UUID, limit, offset int) ([]*Movement, int, error)
}
