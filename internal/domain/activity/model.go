package activity

import (
	"time"

	"github.com/google/uuid"
)

// Record types that carry notes and reminders.
const (
	RecordPatient        = "patient"
	RecordEquipment      = "equipment"
	RecordHolidayRequest = "holiday_pump_request"
)

const (
	KindReplacementDue = "replacement_due"

	ReminderStatusOpen = "open"
	ReminderStatusDone = "done"
)

// Live feed event types. Reminder events go to TopicReminders, notes to the
// record's own topic.
const (
	TopicReminders        = "reminders"
	EventNoteCreated      = "note.created"
	EventReminderCreated  = "reminder.created"
	EventReminderResolved = "reminder.resolved"
)

var validRecordTypes = map[string]bool{
	RecordPatient: true, RecordEquipment: true, RecordHolidayRequest: true,
}

// ValidRecordType reports whether notes can be attached to recordType.
func ValidRecordType(recordType string) bool { return validRecordTypes[recordType] }

// Note is an append-only audit entry attached to a record.
type Note struct {
	ID         uuid.UUID `db:"id" json:"id"`
	RecordType string    `db:"record_type" json:"record_type"`
	RecordID   uuid.UUID `db:"record_id" json:"record_id"`
	Body       string    `db:"body" json:"body"`
	Author     string    `db:"author" json:"author"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Reminder is a dated to-do attached to a record and addressed to a user
// or group.
type Reminder struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	RecordType string     `db:"record_type" json:"record_type"`
	RecordID   uuid.UUID  `db:"record_id" json:"record_id"`
	Kind       string     `db:"kind" json:"kind"`
	Summary    string     `db:"summary" json:"summary"`
	Note       string     `db:"note" json:"note,omitempty"`
	Deadline   time.Time  `db:"deadline" json:"deadline"`
	Assignee   string     `db:"assignee" json:"assignee"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsOpen reports whether the reminder still needs attention.
func (r *Reminder) IsOpen() bool { return r.Status == ReminderStatusOpen }

// ReminderFilter narrows ListReminders. Zero values match everything.
type ReminderFilter struct {
	Assignee   string
	Status     string
	RecordType string
	RecordID   *uuid.UUID
}
