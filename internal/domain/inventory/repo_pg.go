package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// -- Location --

type locationRepoPG struct{ pool *pgxpool.Pool }

func NewLocationRepoPG(pool *pgxpool.Pool) LocationRepository {
	return &locationRepoPG{pool: pool}
}

func (r *locationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const locationCols = `id, name, usage, created_at`

func (r *locationRepoPG) Create(ctx context.Context, l *Location) error {
	l.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO inventory_location (id, name, usage) VALUES ($1, $2, $3)
		RETURNING created_at`, l.ID, l.Name, l.Usage).Scan(&l.CreatedAt)
	if db.IsUniqueViolation(err, "inventory_location_name_uniq") {
		return apperr.Conflict("Location %q already exists.", l.Name)
	}
	return err
}

func (r *locationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Location, error) {
	var l Location
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+locationCols+` FROM inventory_location WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.Usage, &l.CreatedAt)
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("Location %s not found.", id)
	}
	return &l, err
}

func (r *locationRepoPG) List(ctx context.Context, usage string, limit, offset int) ([]*Location, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM inventory_location WHERE $1 = '' OR usage = $1`, usage).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+locationCols+` FROM inventory_location
		WHERE $1 = '' OR usage = $1 ORDER BY name LIMIT $2 OFFSET $3`, usage, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Usage, &l.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &l)
	}
	return items, total, rows.Err()
}

// -- Movement --

type movementRepoPG struct{ pool *pgxpool.Pool }

func NewMovementRepoPG(pool *pgxpool.Pool) MovementRepository {
	return &movementRepoPG{pool: pool}
}

func (r *movementRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *movementRepoPG) Create(ctx context.Context, m *Movement) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO stock_movement (id, equipment_id, from_location_id, to_location_id, reference)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		m.ID, m.EquipmentID, m.FromLocationID, m.ToLocationID, m.Reference).Scan(&m.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("Equipment or location for movement %q not found.", m.Reference)
	}
	return err
}

func (r *movementRepoPG) ListByEquipment(ctx context.Context, equipmentID uuid.UUID, limit, offset int) ([]*Movement, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM stock_movement WHERE equipment_id = $1`, equipmentID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, equipment_id, from_location_id, to_location_id, reference, created_at
		FROM stock_movement WHERE equipment_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, equipmentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.EquipmentID, &m.FromLocationID, &m.ToLocationID, &m.Reference, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &m)
	}
	return items, total, rows.Err()
}
