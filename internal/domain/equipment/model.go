package equipment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StateAvailable = "available"
	StateAssigned  = "assigned"
	StateScrapped  = "scrapped"

	RolePrimary = "primary"
	RoleHoliday = "holiday"

	PumpKindGlucose = "glucose"
	PumpKindInsulin = "insulin"

	DefaultLifespanYears = 4
)

// ValidRole reports whether role is an assignment role.
func ValidRole(role string) bool { return role == RolePrimary || role == RoleHoliday }

// Product classifies equipment units. Units copy the pump and RMA flags
// when they are created.
type Product struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	IsPumpProduct bool      `db:"is_pump_product" json:"is_pump_product"`
	IsRMAProduct  bool      `db:"is_rma_product" json:"is_rma_product"`
	PumpKind      *string   `db:"pump_kind" json:"pump_kind,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Unit is a serial-numbered piece of equipment.
type Unit struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	SerialNumber      string     `db:"serial_number" json:"serial_number"`
	ProductID         uuid.UUID  `db:"product_id" json:"product_id"`
	IsPumpDevice      bool       `db:"is_pump_device" json:"is_pump_device"`
	IsRMADevice       bool       `db:"is_rma_device" json:"is_rma_device"`
	State             string     `db:"state" json:"state"`
	Role              *string    `db:"role" json:"role,omitempty"`
	AssignedPatientID *uuid.UUID `db:"assigned_patient_id" json:"assigned_patient_id,omitempty"`
	InstallationDate  *time.Time `db:"installation_date" json:"installation_date,omitempty"`
	LifespanYears     int        `db:"lifespan_years" json:"lifespan_years"`
	ReplacementDate   *time.Time `db:"replacement_date" json:"replacement_date,omitempty"`
	LocationID        *uuid.UUID `db:"location_id" json:"location_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`

	// ReplacementAlert is computed on read against the configured window.
	ReplacementAlert bool `db:"-" json:"replacement_alert"`
}

// RoleValue returns the assignment role, or "" when unassigned.
func (u *Unit) RoleValue() string {
	if u.Role == nil {
		return ""
	}
	return *u.Role
}

// IsAssignedAs reports whether the unit is assigned in the given role.
func (u *Unit) IsAssignedAs(role string) bool {
	return u.State == StateAssigned && u.RoleValue() == role
}

// ClearAssignment returns the unit to the available pool.
func (u *Unit) ClearAssignment() {
	u.State = StateAvailable
	u.Role = nil
	u.AssignedPatientID = nil
}

// Derive refreshes the replacement date and alert flag.
func (u *Unit) Derive(today time.Time, alertWindowDays int) {
	u.ReplacementDate = nil
	u.ReplacementAlert = false
	if u.InstallationDate == nil {
		return
	}
	years := u.LifespanYears
	if years <= 0 {
		years = DefaultLifespanYears
	}
	rd := ReplacementDate(*u.InstallationDate, years)
	u.ReplacementDate = &rd
	u.ReplacementAlert = !rd.After(Day(today).AddDate(0, 0, alertWindowDays))
}

// ReplacementDate adds years to the installation date. A Feb 29
// anniversary that does not exist falls back to 365 days per year.
func ReplacementDate(installed time.Time, years int) time.Time {
	y, m, d := installed.Date()
	rd := time.Date(y+years, m, d, 0, 0, 0, 0, time.UTC)
	if rd.Month() != m {
		return Day(installed).AddDate(0, 0, 365*years)
	}
	return rd
}

// Day returns t's calendar date as midnight UTC, the form DATE columns
// are scanned into.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SearchParams filters unit searches. Zero values match everything.
type SearchParams struct {
	State             string
	Role              string
	Serial            string
	PatientID         *uuid.UUID
	ProductID         *uuid.UUID
	RMA               *bool
	ReplacementBefore *time.Time
}
