package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type NoteRepository interface {
	Create(ctx context.Context, n *Note) error
	ListByRecord(ctx context.Context, recordType string, recordID uuid.UUID, limit, offset int) ([]*Note, int, error)
}

type ReminderRepository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)
	HasOpen(ctx context.Context, recordType string, recordID uuid.UUID, kind string) (bool, error)
	// ResolveOpen marks every open reminder on the record done and returns
	// the resolved reminders.
	ResolveOpen(ctx context.Context, recordType string, recordID uuid.UUID, at time.Time) ([]*Reminder, error)
	MarkDone(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, f ReminderFilter, limit, offset int) ([]*Reminder, int, error)
}
