package equipment

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

const (
	serialUniq      = "equipment_unit_serial_uniq"
	patientRoleUniq = "equipment_unit_patient_role_uniq"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// -- Products --

type productRepoPG struct{ pool *pgxpool.Pool }

func NewProductRepoPG(pool *pgxpool.Pool) ProductRepository {
	return &productRepoPG{pool: pool}
}

func (r *productRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const productCols = `id, name, is_pump_product, is_rma_product, pump_kind, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.IsPumpProduct, &p.IsRMAProduct, &p.PumpKind, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *productRepoPG) Create(ctx context.Context, p *Product) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO product (id, name, is_pump_product, is_rma_product, pump_kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.IsPumpProduct, p.IsRMAProduct, p.PumpKind).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *productRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := scanProduct(r.conn(ctx).QueryRow(ctx, `SELECT `+productCols+` FROM product WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("Product %s not found.", id)
	}
	return p, err
}

func (r *productRepoPG) Update(ctx context.Context, p *Product) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE product SET name = $2, is_pump_product = $3, is_rma_product = $4,
			pump_kind = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.IsPumpProduct, p.IsRMAProduct, p.PumpKind).Scan(&p.UpdatedAt)
}

func (r *productRepoPG) List(ctx context.Context, limit, offset int) ([]*Product, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM product`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+productCols+` FROM product ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// -- Units --

type unitRepoPG struct{ pool *pgxpool.Pool }

func NewUnitRepoPG(pool *pgxpool.Pool) UnitRepository {
	return &unitRepoPG{pool: pool}
}

func (r *unitRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const unitCols = `id, serial_number, product_id, is_pump_device, is_rma_device,
	state, role, assigned_patient_id, installation_date, lifespan_years,
	replacement_date, location_id, created_at, updated_at`

func scanUnit(row pgx.Row) (*Unit, error) {
	var u Unit
	err := row.Scan(&u.ID, &u.SerialNumber, &u.ProductID, &u.IsPumpDevice,
		&u.IsRMADevice, &u.State, &u.Role, &u.AssignedPatientID,
		&u.InstallationDate, &u.LifespanYears, &u.ReplacementDate,
		&u.LocationID, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func mapUnitWriteErr(err error, u *Unit) error {
	switch {
	case db.IsUniqueViolation(err, serialUniq):
		return apperr.Conflict("Serial number %s already exists.", u.SerialNumber)
	case db.IsUniqueViolation(err, patientRoleUniq):
		return apperr.Conflict("Patient %s already has a %s device assigned.", u.AssignedPatientID, u.RoleValue())
	}
	return err
}

func (r *unitRepoPG) Create(ctx context.Context, u *Unit) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO equipment_unit (id, serial_number, product_id, is_pump_device,
			is_rma_device, state, role, assigned_patient_id, installation_date,
			lifespan_years, replacement_date, location_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		u.ID, u.SerialNumber, u.ProductID, u.IsPumpDevice, u.IsRMADevice,
		u.State, u.Role, u.AssignedPatientID, u.InstallationDate,
		u.LifespanYears, u.ReplacementDate, u.LocationID).Scan(&u.CreatedAt, &u.UpdatedAt)
	return mapUnitWriteErr(err, u)
}

func (r *unitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Unit, error) {
	u, err := scanUnit(r.conn(ctx).QueryRow(ctx, `SELECT `+unitCols+` FROM equipment_unit WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("Equipment %s not found.", id)
	}
	return u, err
}

func (r *unitRepoPG) GetBySerial(ctx context.Context, serial string) (*Unit, error) {
	u, err := scanUnit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+unitCols+` FROM equipment_unit WHERE lower(serial_number) = lower($1)`, serial))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("Serial Number '%s' not found.", serial)
	}
	return u, err
}

func (r *unitRepoPG) Update(ctx context.Context, u *Unit) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE equipment_unit SET serial_number = $2, state = $3, role = $4,
			assigned_patient_id = $5, installation_date = $6, lifespan_years = $7,
			replacement_date = $8, location_id = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.SerialNumber, u.State, u.Role, u.AssignedPatientID,
		u.InstallationDate, u.LifespanYears, u.ReplacementDate, u.LocationID).Scan(&u.UpdatedAt)
	if db.IsNotFound(err) {
		return apperr.NotFound("Equipment %s not found.", u.ID)
	}
	return mapUnitWriteErr(err, u)
}

func (r *unitRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM equipment_unit WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Conflict("Equipment %s has assignment history and cannot be deleted.", id)
	}
	return err
}

func applyUnitFilter(b sq.SelectBuilder, p SearchParams) sq.SelectBuilder {
	if p.State != "" {
		b = b.Where(sq.Eq{"state": p.State})
	}
	if p.Role != "" {
		b = b.Where(sq.Eq{"role": p.Role})
	}
	if p.Serial != "" {
		b = b.Where(sq.ILike{"serial_number": "%" + p.Serial + "%"})
	}
	if p.PatientID != nil {
		b = b.Where(sq.Eq{"assigned_patient_id": *p.PatientID})
	}
	if p.ProductID != nil {
		b = b.Where(sq.Eq{"product_id": *p.ProductID})
	}
	if p.RMA != nil {
		b = b.Where(sq.Eq{"is_rma_device": *p.RMA})
	}
	if p.ReplacementBefore != nil {
		b = b.Where(sq.LtOrEq{"replacement_date": *p.ReplacementBefore})
	}
	return b
}

func (r *unitRepoPG) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Unit, int, error) {
	countSQL, countArgs, err := applyUnitFilter(psql.Select("COUNT(*)").From("equipment_unit"), params).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build unit count: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := applyUnitFilter(psql.Select(unitCols).From("equipment_unit"), params).
		OrderBy("serial_number").
		Limit(uint64(limit)).Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build unit query: %w", err)
	}
	items, err := r.queryUnits(ctx, query, args...)
	return items, total, err
}

func (r *unitRepoPG) queryUnits(ctx context.Context, query string, args ...interface{}) ([]*Unit, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *unitRepoPG) CountAssigned(ctx context.Context, patientID uuid.UUID, role string, excludeID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM equipment_unit
		WHERE state = 'assigned' AND assigned_patient_id = $1 AND role = $2 AND id <> $3`,
		patientID, role, excludeID).Scan(&n)
	return n, err
}

func (r *unitRepoPG) ListDueForReplacement(ctx context.Context, from, to time.Time) ([]*Unit, error) {
	return r.queryUnits(ctx, `
		SELECT `+unitCols+` FROM equipment_unit
		WHERE state = 'assigned' AND is_pump_device
			AND replacement_date BETWEEN $1 AND $2
		ORDER BY replacement_date, serial_number`, from, to)
}
