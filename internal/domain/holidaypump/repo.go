package holidaypump

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create stores r and assigns its ID and Reference.
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	Update(ctx context.Context, r *Request) error
	List(ctx context.Context, status string, limit, offset int) ([]*Request, int, error)
}
