package ledger

import (
	"context"
	"fmt"
	"time"

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

const entryCols = `id, patient_id, equipment_id, role, installation_date, replacement_date, created_at`

func (r *repoPG) scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.PatientID, &e.EquipmentID, &e.Role, &e.InstallationDate, &e.ReplacementDate, &e.CreatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO assignment (id, patient_id, equipment_id, role, installation_date, replacement_date)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		e.ID, e.PatientID, e.EquipmentID, e.Role, e.InstallationDate, e.ReplacementDate).Scan(&e.CreatedAt)
	switch {
	case db.IsUniqueViolation(err, "assignment_open_uniq"):
		return apperr.Conflict("An open %s assignment already exists for this patient and equipment.", e.Role)
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("Patient or equipment for the assignment not found.")
	}
	return err
}

func (r *repoPG) FindOpen(ctx context.Context, patientID, equipmentID uuid.UUID, role string) (*Entry, error) {
	e, err := r.scanEntry(r.conn(ctx).QueryRow(ctx, `
		SELECT `+entryCols+` FROM assignment
		WHERE patient_id = $1 AND equipment_id = $2 AND role = $3 AND replacement_date IS NULL
		ORDER BY installation_date DESC, created_at DESC LIMIT 1`, patientID, equipmentID, role))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("No open %s assignment.", role)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repoPG) Close(ctx context.Context, id uuid.UUID, on time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE assignment SET replacement_date = $2 WHERE id = $1 AND replacement_date IS NULL`, id, on)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.State("Assignment %s is already closed.", id)
	}
	return nil
}

func (r *repoPG) CountByEquipment(ctx context.Context, equipmentID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM assignment WHERE equipment_id = $1`, equipmentID).Scan(&n)
	return n, err
}

func applyFilter(b sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.PatientID != nil {
		b = b.Where(sq.Eq{"patient_id": *f.PatientID})
	}
	if f.EquipmentID != nil {
		b = b.Where(sq.Eq{"equipment_id": *f.EquipmentID})
	}
	return b
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	countSQL, countArgs, err := applyFilter(psql.Select("COUNT(*)").From("assignment"), f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build assignment count: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := applyFilter(psql.Select(entryCols).From("assignment"), f).
		OrderBy("installation_date DESC", "created_at DESC").
		Limit(uint64(limit)).Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build assignment query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
