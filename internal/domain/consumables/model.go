package consumables

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusNormal   = "normal"
	StatusWarning  = "warning"
	StatusExceeded = "exceeded"
)

// Allocation is a patient's consumables budget for one calendar month.
type Allocation struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	Month        int       `db:"month" json:"month"`
	Year         int       `db:"year" json:"year"`
	AllocatedQty int       `db:"allocated_qty" json:"allocated_qty"`
	UsedQty      int       `db:"used_qty" json:"used_qty"`
	Threshold    int       `db:"threshold" json:"threshold"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Classify bands usage: normal up to the allocation, warning up to the
// threshold, exceeded beyond it.
func Classify(used, allocated, threshold int) string {
	switch {
	case used <= allocated:
		return StatusNormal
	case used <= threshold:
		return StatusWarning
	default:
		return StatusExceeded
	}
}

func (a *Allocation) refreshStatus() {
	a.Status = Classify(a.UsedQty, a.AllocatedQty, a.Threshold)
}

// Filter narrows allocation listings. Zero values match everything.
type Filter struct {
	PatientID *uuid.UUID
	Year      int
	Month     int
	Status    string
}

// Warning is an advisory shown before saving an allocation. It never
// blocks the write.
type Warning struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
