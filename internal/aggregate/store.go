package aggregate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/pulse/internal/db"
)

// ErrNotFound is returned when no aggregate exists for a scope and day.
var ErrNotFound = errors.New("aggregate not found")

// Store persists daily aggregates and keyword trends.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Upsert writes agg, replacing any row for the same scope and day.
func (s *Store) Upsert(ctx context.Context, agg DailyAggregate) error {
	keywords, err := json.Marshal(agg.TopKeywords)
	if err != nil {
		return fmt.Errorf("marshalling top keywords: %w", err)
	}
	triggers, err := json.Marshal(agg.TopTriggers)
	if err != nil {
		return fmt.Errorf("marshalling top triggers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_aggregates (scope, scope_id, day, average_stress, average_intensity,
			active_user_count, conversation_count, risk_alert_count, signal_count,
			top_keywords, top_triggers, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, scope_id, day) DO UPDATE SET
			average_stress = excluded.average_stress,
			average_intensity = excluded.average_intensity,
			active_user_count = excluded.active_user_count,
			conversation_count = excluded.conversation_count,
			risk_alert_count = excluded.risk_alert_count,
			signal_count = excluded.signal_count,
			top_keywords = excluded.top_keywords,
			top_triggers = excluded.top_triggers,
			updated_at = excluded.updated_at`,
		string(agg.Scope), agg.ScopeID, agg.Day, agg.AverageStress, agg.AverageIntensity,
		agg.ActiveUserCount, agg.ConversationCount, agg.RiskAlertCount, agg.SignalCount,
		string(keywords), string(triggers), db.FormatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upserting %s aggregate %s/%s: %w", agg.Scope, agg.ScopeID, agg.Day, err)
	}
	return nil
}

const aggregateColumns = `scope, scope_id, day, average_stress, average_intensity,
	active_user_count, conversation_count, risk_alert_count, signal_count, top_keywords, top_triggers`

// Get returns the aggregate for one scope and day.
func (s *Store) Get(ctx context.Context, scope Scope, scopeID, day string) (*DailyAggregate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+aggregateColumns+` FROM daily_aggregates
		WHERE scope = ? AND scope_id = ? AND day = ?`, string(scope), scopeID, day)
	agg, err := scanAggregate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return agg, err
}

// Range returns the aggregates of a scope from first to last inclusive,
// ordered by day.
func (s *Store) Range(ctx context.Context, scope Scope, scopeID string, first, last time.Time) ([]DailyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+aggregateColumns+` FROM daily_aggregates
		WHERE scope = ? AND scope_id = ? AND day >= ? AND day <= ? ORDER BY day`,
		string(scope), scopeID, db.FormatDay(first), db.FormatDay(last))
	if err != nil {
		return nil, fmt.Errorf("querying aggregates: %w", err)
	}
	defer rows.Close()

	var out []DailyAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *agg)
	}
	return out, rows.Err()
}

// CompanyRange returns a company's aggregates over a period.
func (s *Store) CompanyRange(ctx context.Context, companyID string, first, last time.Time) ([]DailyAggregate, error) {
	return s.Range(ctx, ScopeCompany, companyID, first, last)
}

// DepartmentRange returns a department's aggregates over a period.
func (s *Store) DepartmentRange(ctx context.Context, departmentID string, first, last time.Time) ([]DailyAggregate, error) {
	return s.Range(ctx, ScopeDepartment, departmentID, first, last)
}

// ReplaceTrends swaps a company's trend rows for a day in one transaction.
func (s *Store) ReplaceTrends(ctx context.Context, companyID, day string, trends []Trend) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM keyword_trends WHERE company_id = ? AND day = ?`, companyID, day); err != nil {
		return fmt.Errorf("clearing keyword trends: %w", err)
	}
	for _, t := range trends {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO keyword_trends (company_id, day, kind, term, count, rank) VALUES (?, ?, ?, ?, ?, ?)`,
			companyID, day, string(t.Kind), t.Term, t.Count, t.Rank); err != nil {
			return fmt.Errorf("inserting keyword trend: %w", err)
		}
	}
	return tx.Commit()
}

// Trends returns a company's trend rows for a day, by kind then rank.
func (s *Store) Trends(ctx context.Context, companyID, day string) ([]Trend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id, day, kind, term, count, rank FROM keyword_trends
		WHERE company_id = ? AND day = ? ORDER BY kind, rank`, companyID, day)
	if err != nil {
		return nil, fmt.Errorf("querying keyword trends: %w", err)
	}
	defer rows.Close()

	var out []Trend
	for rows.Next() {
		var t Trend
		var kind string
		if err := rows.Scan(&t.CompanyID, &t.Day, &kind, &t.Term, &t.Count, &t.Rank); err != nil {
			return nil, fmt.Errorf("scanning keyword trend: %w", err)
		}
		t.Kind = TrendKind(kind)
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAggregate(sc scanner) (*DailyAggregate, error) {
	var agg DailyAggregate
	var scope, keywords, triggers string
	if err := sc.Scan(&scope, &agg.ScopeID, &agg.Day, &agg.AverageStress, &agg.AverageIntensity,
		&agg.ActiveUserCount, &agg.ConversationCount, &agg.RiskAlertCount, &agg.SignalCount,
		&keywords, &triggers); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning aggregate: %w", err)
	}
	agg.Scope = Scope(scope)
	if err := json.Unmarshal([]byte(keywords), &agg.TopKeywords); err != nil {
		return nil, fmt.Errorf("unmarshalling top keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(triggers), &agg.TopTriggers); err != nil {
		return nil, fmt.Errorf("unmarshalling top triggers: %w", err)
	}
	return &agg, nil
}
