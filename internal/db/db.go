package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with pulse-specific helpers.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
// The pool is pinned to one connection so every query sees the same database.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// TimeLayout is the fixed-width UTC layout used for every timestamp column,
// so lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// DayLayout is the layout of the day columns.
const DayLayout = "2006-01-02"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime. SQLite defaults written
// with strftime carry millisecond precision and are accepted too.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// FormatDay renders the calendar day of t in its own location.
func FormatDay(t time.Time) string {
	return t.Format(DayLayout)
}

// NewID returns a time-ordered unique identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Path returns the on-disk location of the database.
func (d *DB) Path() string { return d.path }

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS emotion_signals (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    company_id TEXT NOT NULL,
    department_id TEXT NOT NULL DEFAULT '',
    conversation_id TEXT NOT NULL DEFAULT '',
    ts TEXT NOT NULL,
    day TEXT NOT NULL,
    primary_emotion TEXT NOT NULL DEFAULT '',
    intensity INTEGER NOT NULL DEFAULT 0,
    stress_level INTEGER NOT NULL DEFAULT 0,
    risk_level INTEGER NOT NULL DEFAULT 0,
    risk_reason TEXT NOT NULL DEFAULT '',
    triggers TEXT NOT NULL DEFAULT '[]',
    context_summary TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_signals_company_day ON emotion_signals(company_id, day);
CREATE INDEX IF NOT EXISTS idx_signals_department_day ON emotion_signals(department_id, day);

CREATE TABLE IF NOT EXISTS memory_candidates (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    content TEXT NOT NULL,
    relevance INTEGER NOT NULL DEFAULT 0,
    tags TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_memories_user ON memory_candidates(user_id);

CREATE TABLE IF NOT EXISTS trigger_candidates (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    description TEXT NOT NULL,
    impact INTEGER NOT NULL DEFAULT 0,
    associated_emotion TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    polarity TEXT NOT NULL DEFAULT 'negative',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_triggers_user ON trigger_candidates(user_id);

CREATE TABLE IF NOT EXISTS daily_aggregates (
    scope TEXT NOT NULL CHECK(scope IN ('department','company')),
    scope_id TEXT NOT NULL,
    day TEXT NOT NULL,
    average_stress REAL NOT NULL DEFAULT 0,
    average_intensity REAL NOT NULL DEFAULT 0,
    active_user_count INTEGER NOT NULL DEFAULT 0,
    conversation_count INTEGER NOT NULL DEFAULT 0,
    risk_alert_count INTEGER NOT NULL DEFAULT 0,
    signal_count INTEGER NOT NULL DEFAULT 0,
    top_keywords TEXT NOT NULL DEFAULT '[]',
    top_triggers TEXT NOT NULL DEFAULT '[]',
    updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    PRIMARY KEY(scope, scope_id, day)
);

CREATE TABLE IF NOT EXISTS keyword_trends (
    company_id TEXT NOT NULL,
    day TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('keyword','trigger')),
    term TEXT NOT NULL,
    count INTEGER NOT NULL,
    rank INTEGER NOT NULL,
    PRIMARY KEY(company_id, day, kind, term)
);

CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL,
    department_id TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('PENDING','GENERATING','COMPLETED','FAILED','ARCHIVED')),
    period_start TEXT NOT NULL,
    period_end TEXT NOT NULL,
    generation_duration_ms INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    generated_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_reports_company ON reports(company_id);
CREATE INDEX IF NOT EXISTS idx_reports_status_generated ON reports(status, generated_at);

CREATE TABLE IF NOT EXISTS report_sections (
    report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    type TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    structured_data TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY(report_id, position)
);

CREATE TABLE IF NOT EXISTS risk_alerts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    user_name TEXT NOT NULL DEFAULT '',
    trusted_email TEXT NOT NULL,
    message_excerpt TEXT NOT NULL DEFAULT '',
    risk_level INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    topic TEXT NOT NULL,
    delivered INTEGER NOT NULL DEFAULT 0,
    attempts INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_alerts_delivered ON risk_alerts(delivered);
`
