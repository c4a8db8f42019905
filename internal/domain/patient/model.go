package patient

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient is an individual holding pump equipment. PrimaryDeviceID and
// HolidayDeviceID mirror the open assignment ledger entries.
type Patient struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	InternalID         string     `db:"internal_id" json:"internal_id"`
	Name               string     `db:"name" json:"name"`
	IsCompany          bool       `db:"is_company" json:"is_company"`
	DateOfBirth        *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	IDNumber           *string    `db:"id_number" json:"id_number,omitempty"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	Email              *string    `db:"email" json:"email,omitempty"`
	Locality           *string    `db:"locality" json:"locality,omitempty"`
	TrainingLocationID *uuid.UUID `db:"training_location_id" json:"training_location_id,omitempty"`
	PrimaryDeviceID    *uuid.UUID `db:"primary_device_id" json:"primary_device_id,omitempty"`
	HolidayDeviceID    *uuid.UUID `db:"holiday_device_id" json:"holiday_device_id,omitempty"`
	HolidayReturnDate  *time.Time `db:"holiday_return_date" json:"holiday_return_date,omitempty"`
	InstallationDate   *time.Time `db:"installation_date" json:"installation_date,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// DevicePointer returns the device held in role ("primary" or "holiday").
func (p *Patient) DevicePointer(role string) *uuid.UUID {
	if role == "holiday" {
		return p.HolidayDeviceID
	}
	return p.PrimaryDeviceID
}

// SetDevicePointer sets the device held in role.
func (p *Patient) SetDevicePointer(role string, id *uuid.UUID) {
	if role == "holiday" {
		p.HolidayDeviceID = id
		return
	}
	p.PrimaryDeviceID = id
}

// FormatInternalID renders the YYYY-NNN patient id.
func FormatInternalID(year, seq int) string {
	return fmt.Sprintf("%d-%03d", year, seq)
}

// ParseInternalID splits a YYYY-NNN id into its year and sequence.
func ParseInternalID(id string) (year, seq int, ok bool) {
	y, s, found := strings.Cut(id, "-")
	if !found || len(y) != 4 || len(s) < 3 {
		return 0, 0, false
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.Atoi(s)
	if err != nil || seq <= 0 {
		return 0, 0, false
	}
	return year, seq, true
}

// SearchParams filters patient searches. Query matches the name or the
// internal id.
type SearchParams struct {
	Query              string
	Locality           string
	TrainingLocationID *uuid.UUID
}
