package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/pulse/internal/db"
)

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = errors.New("report not found")

// ListFilter controls which reports are returned by List.
type ListFilter struct {
	CompanyID string
	Status    Status
	Limit     int
}

// Store persists reports and their sections.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new report row without sections.
func (s *Store) Create(ctx context.Context, r *Report) error {
	if r.ID == "" {
		r.ID = db.NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, company_id, department_id, type, status, period_start, period_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CompanyID, r.DepartmentID, string(r.Type), string(r.Status),
		db.FormatDay(r.PeriodStart), db.FormatDay(r.PeriodEnd), db.FormatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}
	return nil
}

// SetStatus moves a report to status if it is currently in from.
func (s *Store) SetStatus(ctx context.Context, id string, from, to Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reports SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("updating report status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("report %s is not %s", id, from)
	}
	return nil
}

// Complete stores the sections of a generating report and marks it
// completed in one transaction.
func (s *Store) Complete(ctx context.Context, r *Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM report_sections WHERE report_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clearing report sections: %w", err)
	}
	for _, sec := range r.Sections {
		data := string(sec.StructuredData)
		if data == "" {
			data = "{}"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO report_sections (report_id, position, type, title, content, structured_data)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, sec.Order, string(sec.Type), sec.Title, sec.Content, data); err != nil {
			return fmt.Errorf("inserting report section: %w", err)
		}
	}

	var generated any
	if r.GeneratedAt != nil {
		generated = db.FormatTime(*r.GeneratedAt)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE reports SET status = ?, generation_duration_ms = ?, generated_at = ?, error = ''
		WHERE id = ? AND status = ?`,
		string(StatusCompleted), r.GenerationDurationMs, generated, r.ID, string(StatusGenerating))
	if err != nil {
		return fmt.Errorf("completing report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("report %s is not %s", r.ID, StatusGenerating)
	}
	return tx.Commit()
}

// Fail marks a report failed with the given message.
func (s *Store) Fail(ctx context.Context, id, message string, durationMs int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reports SET status = ?, error = ?, generation_duration_ms = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(StatusFailed), message, durationMs, id, string(StatusPending), string(StatusGenerating))
	if err != nil {
		return fmt.Errorf("failing report: %w", err)
	}
	return nil
}

// ArchiveCompletedBefore archives completed reports generated before cutoff
// and returns how many changed.
func (s *Store) ArchiveCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET status = ?
		WHERE status = ? AND generated_at IS NOT NULL AND generated_at < ?`,
		string(StatusArchived), string(StatusCompleted), db.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("archiving reports: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const reportColumns = `id, company_id, department_id, type, status, period_start, period_end,
	generation_duration_ms, error, created_at, generated_at`

// Get returns a report with its sections.
func (s *Store) Get(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, type, title, content, structured_data FROM report_sections
		WHERE report_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying report sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sec Section
		var typ, data string
		if err := rows.Scan(&sec.Order, &typ, &sec.Title, &sec.Content, &data); err != nil {
			return nil, fmt.Errorf("scanning report section: %w", err)
		}
		sec.Type = SectionType(typ)
		sec.StructuredData = []byte(data)
		r.Sections = append(r.Sections, sec)
	}
	return r, rows.Err()
}

// List returns reports without sections, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`
	var args []any
	if filter.CompanyID != "" {
		query += " AND company_id = ?"
		args = append(args, filter.CompanyID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (*Report, error) {
	var r Report
	var typ, status, start, end, created string
	var generated sql.NullString
	if err := sc.Scan(&r.ID, &r.CompanyID, &r.DepartmentID, &typ, &status, &start, &end,
		&r.GenerationDurationMs, &r.Error, &created, &generated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning report: %w", err)
	}
	r.Type = Type(typ)
	r.Status = Status(status)

	var err error
	if r.PeriodStart, err = time.Parse(db.DayLayout, start); err != nil {
		return nil, fmt.Errorf("parsing period start %q: %w", start, err)
	}
	if r.PeriodEnd, err = time.Parse(db.DayLayout, end); err != nil {
		return nil, fmt.Errorf("parsing period end %q: %w", end, err)
	}
	if r.CreatedAt, err = db.ParseTime(created); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
	}
	if generated.Valid {
		t, err := db.ParseTime(generated.String)
		if err != nil {
			return nil, fmt.Errorf("parsing generated_at %q: %w", generated.String, err)
		}
		r.GeneratedAt = &t
	}
	return &r, nil
}
