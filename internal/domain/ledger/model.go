package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Entry records one period during which a patient held a unit in a role.
// A nil ReplacementDate marks the entry as open.
type Entry struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	EquipmentID      uuid.UUID  `db:"equipment_id" json:"equipment_id"`
	Role             string     `db:"role" json:"role"`
	InstallationDate time.Time  `db:"installation_date" json:"installation_date"`
	ReplacementDate  *time.Time `db:"replacement_date" json:"replacement_date,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

func (e *Entry) IsOpen() bool { return e.ReplacementDate == nil }

// Filter narrows History. At least one of the ids is required.
type Filter struct {
	PatientID   *uuid.UUID
	EquipmentID *uuid.UUID
}
