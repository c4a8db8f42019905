package holidaypump

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

const requestCols = `id, reference, patient_name, main_pump_serial, contact_phone, contact_email,
	travel_start_date, travel_end_date, destination, reason, additional_notes, status,
	patient_id, holiday_pump_id, submitted_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.Reference, &r.PatientName, &r.MainPumpSerial, &r.ContactPhone, &r.ContactEmail,
		&r.TravelStartDate, &r.TravelEndDate, &r.Destination, &r.Reason, &r.AdditionalNotes, &r.Status,
		&r.PatientID, &r.HolidayPumpID, &r.SubmittedAt, &r.UpdatedAt)
	return &r, err
}

func (r *repoPG) Create(ctx context.Context, req *Request) error {
	var seq int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('holiday_pump_request_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("next request reference: %w", err)
	}
	req.ID = uuid.New()
	req.Reference = FormatReference(seq)
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO holiday_pump_request (id, reference, patient_name, main_pump_serial, contact_phone,
			contact_email, travel_start_date, travel_end_date, destination, reason, additional_notes,
			status, patient_id, holiday_pump_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING submitted_at, updated_at`,
		req.ID, req.Reference, req.PatientName, req.MainPumpSerial, req.ContactPhone,
		req.ContactEmail, req.TravelStartDate, req.TravelEndDate, req.Destination, req.Reason,
		req.AdditionalNotes, req.Status, req.PatientID, req.HolidayPumpID,
	).Scan(&req.SubmittedAt, &req.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("Linked patient not found.")
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM holiday_pump_request WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("Holiday pump request %s not found.", id)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *repoPG) Update(ctx context.Context, req *Request) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE holiday_pump_request SET status = $2, holiday_pump_id = $3, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		req.ID, req.Status, req.HolidayPumpID,
	).Scan(&req.UpdatedAt)
	if db.IsNotFound(err) {
		return apperr.NotFound("Holiday pump request %s not found.", req.ID)
	}
	return err
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Request, int, error) {
	filter := func(b sq.SelectBuilder) sq.SelectBuilder {
		if status != "" {
			b = b.Where(sq.Eq{"status": status})
		}
		return b
	}
	countSQL, countArgs, err := filter(psql.Select("COUNT(*)").From("holiday_pump_request")).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build request count: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := filter(psql.Select(requestCols).From("holiday_pump_request")).
		OrderBy("submitted_at DESC").
		Limit(uint64(limit)).Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build request query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, req)
	}
	return items, total, rows.Err()
}
