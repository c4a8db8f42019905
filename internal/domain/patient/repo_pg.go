package patient

import (
	"context"
	"fmt"
	"strconv"

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

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, internal_id, name, is_company, date_of_birth, id_number,
	phone, email, locality, training_location_id, primary_device_id,
	holiday_device_id, holiday_return_date, installation_date, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.InternalID, &p.Name, &p.IsCompany, &p.DateOfBirth,
		&p.IDNumber, &p.Phone, &p.Email, &p.Locality, &p.TrainingLocationID,
		&p.PrimaryDeviceID, &p.HolidayDeviceID, &p.HolidayReturnDate,
		&p.InstallationDate, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func mapWriteErr(err error) error {
	switch {
	case db.IsUniqueViolation(err, "patient_internal_id_uniq"):
		return errInternalIDTaken
	case db.IsUniqueViolation(err, "patient_primary_device_uniq"),
		db.IsUniqueViolation(err, "patient_holiday_device_uniq"):
		return apperr.Conflict("Device is already linked to another patient.")
	}
	return err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, internal_id, name, is_company, date_of_birth, id_number,
			phone, email, locality, training_location_id, primary_device_id,
			holiday_device_id, holiday_return_date, installation_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		p.ID, p.InternalID, p.Name, p.IsCompany, p.DateOfBirth, p.IDNumber,
		p.Phone, p.Email, p.Locality, p.TrainingLocationID, p.PrimaryDeviceID,
		p.HolidayDeviceID, p.HolidayReturnDate, p.InstallationDate).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapWriteErr(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("Patient %s not found.", id)
	}
	return p, err
}

func (r *patientRepoPG) GetByInternalID(ctx context.Context, internalID string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE internal_id = $1`, internalID))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("Patient ID %s not found.", internalID)
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET name = $2, is_company = $3, date_of_birth = $4, id_number = $5,
			phone = $6, email = $7, locality = $8, training_location_id = $9,
			primary_device_id = $10, holiday_device_id = $11, holiday_return_date = $12,
			installation_date = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.IsCompany, p.DateOfBirth, p.IDNumber, p.Phone, p.Email,
		p.Locality, p.TrainingLocationID, p.PrimaryDeviceID, p.HolidayDeviceID,
		p.HolidayReturnDate, p.InstallationDate).Scan(&p.UpdatedAt)
	if db.IsNotFound(err) {
		return apperr.NotFound("Patient %s not found.", p.ID)
	}
	return mapWriteErr(err)
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Conflict("Patient %s has assignment history and cannot be deleted.", id)
	}
	return err
}

func applyPatientFilter(b sq.SelectBuilder, p SearchParams) sq.SelectBuilder {
	if p.Query != "" {
		b = b.Where(sq.Or{
			sq.ILike{"name": "%" + p.Query + "%"},
			sq.ILike{"internal_id": p.Query + "%"},
		})
	}
	if p.Locality != "" {
		b = b.Where(sq.ILike{"locality": p.Locality})
	}
	if p.TrainingLocationID != nil {
		b = b.Where(sq.Eq{"training_location_id": *p.TrainingLocationID})
	}
	return b
}

func (r *patientRepoPG) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	countSQL, countArgs, err := applyPatientFilter(psql.Select("COUNT(*)").From("patient"), params).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build patient count: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query, args, err := applyPatientFilter(psql.Select(patientCols).From("patient"), params).
		OrderBy("internal_id DESC").
		Limit(uint64(limit)).Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build patient query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) MaxInternalSeq(ctx context.Context, year int) (int, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(split_part(internal_id, '-', 2)::int), 0)
		FROM patient WHERE internal_id LIKE $1`, strconv.Itoa(year)+"-%").Scan(&seq)
	return seq, err
}
