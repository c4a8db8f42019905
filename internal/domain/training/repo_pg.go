package training

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

type locationRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &locationRepoPG{pool: pool}
}

func (r *locationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *locationRepoPG) Create(ctx context.Context, l *Location) error {
	l.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO training_location (id, name, active) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`, l.ID, l.Name, l.Active).Scan(&l.CreatedAt, &l.UpdatedAt)
	if db.IsUniqueViolation(err, "training_location_name_uniq") {
		return apperr.Conflict("Training location %q already exists.", l.Name)
	}
	return err
}

func (r *locationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Location, error) {
	var l Location
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, active, created_at, updated_at FROM training_location WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("Training location %s not found.", id)
	}
	return &l, err
}

func (r *locationRepoPG) Update(ctx context.Context, l *Location) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE training_location SET name = $2, active = $3, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`, l.ID, l.Name, l.Active).Scan(&l.UpdatedAt)
	switch {
	case db.IsNotFound(err):
		return apperr.NotFound("Training location %s not found.", l.ID)
	case db.IsUniqueViolation(err, "training_location_name_uniq"):
		return apperr.Conflict("Training location %q already exists.", l.Name)
	}
	return err
}

func (r *locationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM training_location WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Conflict("Training location %s is referenced by patients; deactivate it instead.", id)
	}
	return err
}

func (r *locationRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Location, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM training_location WHERE active OR NOT $1`, activeOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, active, created_at, updated_at FROM training_location
		WHERE active OR NOT $1 ORDER BY name LIMIT $2 OFFSET $3`, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Active, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &l)
	}
	return items, total, rows.Err()
}
