package inventory

import (
	"time"

	"github.com/google/uuid"
)

const (
	UsageInternal = "internal"
	UsageScrap    = "scrap"
)

// Location is a stock location equipment can be moved into.
type Location struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Usage     string    `db:"usage" json:"usage"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Movement records one transfer of a unit between locations.
type Movement struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	EquipmentID    uuid.UUID  `db:"equipment_id" json:"equipment_id"`
	FromLocationID *uuid.UUID `db:"from_location_id" json:"from_location_id,omitempty"`
	ToLocationID   uuid.UUID  `db:"to_location_id" json:"to_location_id"`
	Reference      string     `db:"reference" json:"reference"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
