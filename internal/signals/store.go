package signals

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ziadkadry99/pulse/internal/db"
)

// Store persists extracted signals. Calendar days are computed in the
// store's location.
type Store struct {
	db  *db.DB
	loc *time.Location
}

// NewStore creates a Store backed by the given database. A nil location
// means UTC.
func NewStore(database *db.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: database, loc: loc}
}

// Location returns the location used to assign signals to days.
func (s *Store) Location() *time.Location {
	return s.loc
}

// SaveEmotion appends an emotion signal. An empty ID is generated.
func (s *Store) SaveEmotion(ctx context.Context, sig *EmotionSignal) error {
	if sig.ID == "" {
		sig.ID = db.NewID()
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}
	triggers, err := json.Marshal(nonNil(sig.Triggers))
	if err != nil {
		return fmt.Errorf("marshalling triggers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emotion_signals (id, user_id, company_id, department_id, conversation_id, ts, day,
			primary_emotion, intensity, stress_level, risk_level, risk_reason, triggers, context_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.UserID, sig.CompanyID, sig.DepartmentID, sig.ConversationID,
		db.FormatTime(sig.Timestamp), db.FormatDay(sig.Timestamp.In(s.loc)),
		sig.PrimaryEmotion, sig.Intensity, sig.StressLevel, sig.RiskLevel, sig.RiskReason,
		string(triggers), sig.ContextSummary,
	)
	if err != nil {
		return fmt.Errorf("inserting emotion signal: %w", err)
	}
	return nil
}

// SaveMemories appends memory candidates in one transaction.
func (s *Store) SaveMemories(ctx context.Context, memories []MemoryCandidate) error {
	if len(memories) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range memories {
		if m.ID == "" {
			m.ID = db.NewID()
		}
		tags, err := json.Marshal(nonNil(m.Tags))
		if err != nil {
			return fmt.Errorf("marshalling tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_candidates (id, user_id, kind, content, relevance, tags, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.UserID, string(m.Kind), m.Content, m.Relevance, string(tags), db.FormatTime(time.Now()),
		); err != nil {
			return fmt.Errorf("inserting memory candidate: %w", err)
		}
	}
	return tx.Commit()
}

// SaveTriggers appends trigger candidates in one transaction.
func (s *Store) SaveTriggers(ctx context.Context, triggers []TriggerCandidate) error {
	if len(triggers) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range triggers {
		if t.ID == "" {
			t.ID = db.NewID()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trigger_candidates (id, user_id, kind, description, impact, associated_emotion, context, polarity, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.UserID, string(t.Kind), t.Description, t.Impact, t.AssociatedEmotion, t.Context,
			string(t.Polarity), db.FormatTime(time.Now()),
		); err != nil {
			return fmt.Errorf("inserting trigger candidate: %w", err)
		}
	}
	return tx.Commit()
}

const signalColumns = `id, user_id, company_id, department_id, conversation_id, ts,
	primary_emotion, intensity, stress_level, risk_level, risk_reason, triggers, context_summary`

// ListByDepartment returns the department's signals on day, ordered by
// timestamp then id.
func (s *Store) ListByDepartment(ctx context.Context, departmentID string, day time.Time) ([]EmotionSignal, error) {
	return s.list(ctx, `SELECT `+signalColumns+` FROM emotion_signals
		WHERE department_id = ? AND day = ? ORDER BY ts, id`, departmentID, db.FormatDay(day))
}

// ListByCompany returns the company's signals on day, ordered by timestamp
// then id.
func (s *Store) ListByCompany(ctx context.Context, companyID string, day time.Time) ([]EmotionSignal, error) {
	return s.list(ctx, `SELECT `+signalColumns+` FROM emotion_signals
		WHERE company_id = ? AND day = ? ORDER BY ts, id`, companyID, db.FormatDay(day))
}

// ListByUser returns a user's most recent signals, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]EmotionSignal, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, `SELECT `+signalColumns+` FROM emotion_signals
		WHERE user_id = ? ORDER BY ts DESC, id DESC LIMIT ?`, userID, limit)
}

// DepartmentsWithSignals returns the departments that have signals on day.
func (s *Store) DepartmentsWithSignals(ctx context.Context, day time.Time) ([]string, error) {
	return s.ids(ctx, `SELECT DISTINCT department_id FROM emotion_signals
		WHERE day = ? AND department_id != '' ORDER BY department_id`, db.FormatDay(day))
}

// CompaniesWithSignals returns the companies that have signals on day.
func (s *Store) CompaniesWithSignals(ctx context.Context, day time.Time) ([]string, error) {
	return s.ids(ctx, `SELECT DISTINCT company_id FROM emotion_signals
		WHERE day = ? ORDER BY company_id`, db.FormatDay(day))
}

// CompaniesWithSignalsBetween returns the companies that have signals on
// any day from first to last inclusive.
func (s *Store) CompaniesWithSignalsBetween(ctx context.Context, first, last time.Time) ([]string, error) {
	return s.ids(ctx, `SELECT DISTINCT company_id FROM emotion_signals
		WHERE day >= ? AND day <= ? ORDER BY company_id`, db.FormatDay(first), db.FormatDay(last))
}

// DepartmentsOfCompanyBetween returns the departments of a company that
// have signals on any day from first to last inclusive.
func (s *Store) DepartmentsOfCompanyBetween(ctx context.Context, companyID string, first, last time.Time) ([]string, error) {
	return s.ids(ctx, `SELECT DISTINCT department_id FROM emotion_signals
		WHERE company_id = ? AND day >= ? AND day <= ? AND department_id != ''
		ORDER BY department_id`, companyID, db.FormatDay(first), db.FormatDay(last))
}

// MemoriesByUser returns a user's memory candidates, most relevant first.
func (s *Store) MemoriesByUser(ctx context.Context, userID string) ([]MemoryCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, content, relevance, tags FROM memory_candidates
		WHERE user_id = ? ORDER BY relevance DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying memory candidates: %w", err)
	}
	defer rows.Close()

	var out []MemoryCandidate
	for rows.Next() {
		var m MemoryCandidate
		var kind, tags string
		if err := rows.Scan(&m.ID, &m.UserID, &kind, &m.Content, &m.Relevance, &tags); err != nil {
			return nil, fmt.Errorf("scanning memory candidate: %w", err)
		}
		m.Kind = MemoryKind(kind)
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
			return nil, fmt.Errorf("unmarshalling tags: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]EmotionSignal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying emotion signals: %w", err)
	}
	defer rows.Close()

	var out []EmotionSignal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *Store) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scope ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning scope id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanSignal(rows *sql.Rows) (EmotionSignal, error) {
	var sig EmotionSignal
	var ts, triggers string
	if err := rows.Scan(&sig.ID, &sig.UserID, &sig.CompanyID, &sig.DepartmentID, &sig.ConversationID, &ts,
		&sig.PrimaryEmotion, &sig.Intensity, &sig.StressLevel, &sig.RiskLevel, &sig.RiskReason,
		&triggers, &sig.ContextSummary); err != nil {
		return sig, fmt.Errorf("scanning emotion signal: %w", err)
	}
	t, err := db.ParseTime(ts)
	if err != nil {
		return sig, fmt.Errorf("parsing signal timestamp %q: %w", ts, err)
	}
	sig.Timestamp = t
	if err := json.Unmarshal([]byte(triggers), &sig.Triggers); err != nil {
		return sig, fmt.Errorf("unmarshalling triggers: %w", err)
	}
	return sig, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
