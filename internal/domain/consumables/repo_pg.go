package consumables

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
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

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const periodConstraint = "consumables_allocation_period_uniq"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const allocationCols = `id, patient_id, month, year, allocated_qty, used_qty, threshold, status, created_at, updated_at`

func scanAllocation(row pgx.Row) (*Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.PatientID, &a.Month, &a.Year, &a.AllocatedQty, &a.UsedQty,
		&a.Threshold, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Allocation) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consumables_allocation (id, patient_id, month, year, allocated_qty, used_qty, threshold, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.Month, a.Year, a.AllocatedQty, a.UsedQty, a.Threshold, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err, periodConstraint):
		return duplicatePeriod()
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("Patient %s not found.", a.PatientID)
	}
	return err
}

func duplicatePeriod() error {
	return apperr.Conflict("An allocation record already exists for this patient in the selected month and year.")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Allocation, error) {
	a, err := scanAllocation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+allocationCols+` FROM consumables_allocation WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("Allocation %s not found.", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, a *Allocation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE consumables_allocation SET
			month = $2, year = $3, allocated_qty = $4, used_qty = $5, threshold = $6, status = $7,
			updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		a.ID, a.Month, a.Year, a.AllocatedQty, a.UsedQty, a.Threshold, a.Status,
	).Scan(&a.UpdatedAt)
	switch {
	case db.IsNotFound(err):
		return apperr.NotFound("Allocation %s not found.", a.ID)
	case db.IsUniqueViolation(err, periodConstraint):
		return duplicatePeriod()
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM consumables_allocation WHERE id = $1`, id)
	return err
}

func applyFilter(b sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.PatientID != nil {
		b = b.Where(sq.Eq{"patient_id": *f.PatientID})
	}
	if f.Year != 0 {
		b = b.Where(sq.Eq{"year": f.Year})
	}
	if f.Month != 0 {
		b = b.Where(sq.Eq{"month": f.Month})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	return b
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Allocation, int, error) {
	countSQL, countArgs, err := applyFilter(psql.Select("COUNT(*)").From("consumables_allocation"), f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build allocation count: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	b := applyFilter(psql.Select(allocationCols).From("consumables_allocation"), f).
		OrderBy("year DESC", "month DESC", "patient_id")
	if limit > 0 {
		b = b.Limit(uint64(limit)).Offset(uint64(offset))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build allocation query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
