package holidaypump

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Request is a patient's application for a loan pump while travelling.
type Request struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Reference       string     `db:"reference" json:"reference"`
	PatientName     string     `db:"patient_name" json:"patient_name"`
	MainPumpSerial  string     `db:"main_pump_serial" json:"main_pump_serial"`
	ContactPhone    string     `db:"contact_phone" json:"contact_phone"`
	ContactEmail    *string    `db:"contact_email" json:"contact_email,omitempty"`
	TravelStartDate time.Time  `db:"travel_start_date" json:"travel_start_date"`
	TravelEndDate   time.Time  `db:"travel_end_date" json:"travel_end_date"`
	Destination     string     `db:"destination" json:"destination"`
	Reason          *string    `db:"reason" json:"reason,omitempty"`
	AdditionalNotes *string    `db:"additional_notes" json:"additional_notes,omitempty"`
	Status          string     `db:"status" json:"status"`
	PatientID       *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	HolidayPumpID   *uuid.UUID `db:"holiday_pump_id" json:"holiday_pump_id,omitempty"`
	SubmittedAt     time.Time  `db:"submitted_at" json:"submitted_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// FormatReference renders a sequence value as HPR/00001.
func FormatReference(seq int64) string {
	return fmt.Sprintf("HPR/%05d", seq)
}
