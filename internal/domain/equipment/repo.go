package equipment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	Update(ctx context.Context, p *Product) error
	List(ctx context.Context, limit, offset int) ([]*Product, int, error)
}

type UnitRepository interface {
	Create(ctx context.Context, u *Unit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Unit, error)
	// GetBySerial matches the serial number case-insensitively.
	GetBySerial(ctx context.Context, serial string) (*Unit, error)
	Update(ctx context.Context, u *Unit) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Unit, int, error)
	// CountAssigned counts units assigned to the patient in role, ignoring
	// excludeID.
	CountAssigned(ctx context.Context, patientID uuid.UUID, role string, excludeID uuid.UUID) (int, error)
	// ListDueForReplacement returns assigned pump units whose replacement
	// date falls within [from, to].
	ListDueForReplacement(ctx context.Context, from, to time.Time) ([]*Unit, error)
}
