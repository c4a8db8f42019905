package activity

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

// -- Notes --

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository {
	return &noteRepoPG{pool: pool}
}

func (r *noteRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *noteRepoPG) Create(ctx context.Context, n *Note) error {
	n.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO note (id, record_type, record_id, body, author)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		n.ID, n.RecordType, n.RecordID, n.Body, n.Author).Scan(&n.CreatedAt)
}

func (r *noteRepoPG) ListByRecord(ctx context.Context, recordType string, recordID uuid.UUID, limit, offset int) ([]*Note, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM note WHERE record_type = $1 AND record_id = $2`,
		recordType, recordID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, record_type, record_id, body, author, created_at
		FROM note WHERE record_type = $1 AND record_id = $2
		ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`,
		recordType, recordID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.RecordType, &n.RecordID, &n.Body, &n.Author, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &n)
	}
	return items, total, rows.Err()
}

// -- Reminders --

type reminderRepoPG struct{ pool *pgxpool.Pool }

func NewReminderRepoPG(pool *pgxpool.Pool) ReminderRepository {
	return &reminderRepoPG{pool: pool}
}

func (r *reminderRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reminderCols = `id, record_type, record_id, kind, summary, note, deadline,
	assignee, status, created_at, resolved_at`

func scanReminder(row pgx.Row) (*Reminder, error) {
	var m Reminder
	err := row.Scan(&m.ID, &m.RecordType, &m.RecordID, &m.Kind, &m.Summary,
		&m.Note, &m.Deadline, &m.Assignee, &m.Status, &m.CreatedAt, &m.ResolvedAt)
	return &m, err
}

func (r *reminderRepoPG) Create(ctx context.Context, m *Reminder) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reminder (id, record_type, record_id, kind, summary, note, deadline, assignee, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		m.ID, m.RecordType, m.RecordID, m.Kind, m.Summary, m.Note, m.Deadline,
		m.Assignee, m.Status).Scan(&m.CreatedAt)
	if db.IsUniqueViolation(err, "reminder_open_uniq") {
		return apperr.Conflict("An open %s reminder already exists for %s %s.", m.Kind, m.RecordType, m.RecordID)
	}
	return err
}

func (r *reminderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	m, err := scanReminder(r.conn(ctx).QueryRow(ctx, `SELECT `+reminderCols+` FROM reminder WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("Reminder %s not found.", id)
	}
	return m, err
}

func (r *reminderRepoPG) HasOpen(ctx context.Context, recordType string, recordID uuid.UUID, kind string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reminder
			WHERE record_type = $1 AND record_id = $2 AND kind = $3 AND status = 'open'
		)`, recordType, recordID, kind).Scan(&exists)
	return exists, err
}

func (r *reminderRepoPG) ResolveOpen(ctx context.Context, recordType string, recordID uuid.UUID, at time.Time) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE reminder SET status = 'done', resolved_at = $3
		WHERE record_type = $1 AND record_id = $2 AND status = 'open'
		RETURNING `+reminderCols, recordType, recordID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Reminder
	for rows.Next() {
		m, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *reminderRepoPG) MarkDone(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE reminder SET status = 'done', resolved_at = $2 WHERE id = $1 AND status = 'open'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.State("Reminder %s is not open.", id)
	}
	return nil
}

func applyReminderFilter(b sq.SelectBuilder, f ReminderFilter) sq.SelectBuilder {
	if f.Assignee != "" {
		b = b.Where(sq.Eq{"assignee": f.Assignee})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if f.RecordType != "" {
		b = b.Where(sq.Eq{"record_type": f.RecordType})
	}
	if f.RecordID != nil {
		b = b.Where(sq.Eq{"record_id": *f.RecordID})
	}
	return b
}

func (r *reminderRepoPG) List(ctx context.Context, f ReminderFilter, limit, offset int) ([]*Reminder, int, error) {
	countSQL, countArgs, err := applyReminderFilter(psql.Select("COUNT(*)").From("reminder"), f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build reminder count: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := applyReminderFilter(psql.Select(reminderCols).From("reminder"), f).
		OrderBy("deadline", "id").
		Limit(uint64(limit)).Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build reminder query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Reminder
	for rows.Next() {
		m, err := scanReminder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
