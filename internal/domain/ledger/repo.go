package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	// FindOpen returns the most recent open entry for the key.
	FindOpen(ctx context.Context, patientID, equipmentID uuid.UUID, role string) (*Entry, error)
	Close(ctx context.Context, id uuid.UUID, on time.Time) error
	CountByEquipment(ctx context.Context, equipmentID uuid.UUID) (int, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}
