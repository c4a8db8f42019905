package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// errInternalIDTaken is returned by Create when a concurrent insert took
// the generated internal id.
var errInternalIDTaken = errors.New("patient internal id already taken")

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByInternalID(ctx context.Context, internalID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error)
	// MaxInternalSeq returns the highest NNN used for year, or 0.
	MaxInternalSeq(ctx context.Context, year int) (int, error)
}
