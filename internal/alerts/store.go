package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/pulse/internal/db"
)

// ErrNotFound is returned when an alert does not exist.
var ErrNotFound = errors.New("alert not found")

// ListFilter controls which alerts are returned by List.
type ListFilter struct {
	Delivered *bool
	UserID    string
	Limit     int
}

// Store is the alert outbox.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new alert. Empty ID and CreatedAt are filled in.
func (s *Store) Create(ctx context.Context, a *RiskAlert) error {
	if a.ID == "" {
		a.ID = db.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_alerts (id, user_id, user_name, trusted_email, message_excerpt, risk_level,
			reason, context, topic, delivered, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.UserName, a.TrustedEmail, a.MessageExcerpt, a.RiskLevel,
		a.Reason, a.Context, a.Topic, boolInt(a.Delivered), a.Attempts, db.FormatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting risk alert: %w", err)
	}
	return nil
}

const alertColumns = `id, user_id, user_name, trusted_email, message_excerpt, risk_level,
	reason, context, topic, delivered, attempts, created_at`

// GetByID retrieves a single alert.
func (s *Store) GetByID(ctx context.Context, id string) (*RiskAlert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM risk_alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// List returns alerts matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]RiskAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM risk_alerts WHERE 1=1`
	var args []any
	if filter.Delivered != nil {
		query += " AND delivered = ?"
		args = append(args, boolInt(*filter.Delivered))
	}
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return s.query(ctx, query, args...)
}

// Pending returns undelivered alerts, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]RiskAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, `SELECT `+alertColumns+` FROM risk_alerts
		WHERE delivered = 0 ORDER BY created_at, id LIMIT ?`, limit)
}

// RecordAttempt counts one publish attempt and marks the alert delivered
// when it succeeded.
func (s *Store) RecordAttempt(ctx context.Context, id string, delivered bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE risk_alerts SET attempts = attempts + 1, delivered = MAX(delivered, ?) WHERE id = ?`,
		boolInt(delivered), id)
	if err != nil {
		return fmt.Errorf("recording alert attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]RiskAlert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying risk alerts: %w", err)
	}
	defer rows.Close()

	var out []RiskAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(sc scanner) (*RiskAlert, error) {
	var a RiskAlert
	var delivered int
	var created string
	if err := sc.Scan(&a.ID, &a.UserID, &a.UserName, &a.TrustedEmail, &a.MessageExcerpt, &a.RiskLevel,
		&a.Reason, &a.Context, &a.Topic, &delivered, &a.Attempts, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning risk alert: %w", err)
	}
	a.Delivered = delivered != 0
	t, err := db.ParseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parsing alert timestamp %q: %w", created, err)
	}
	a.CreatedAt = t
	return &a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
