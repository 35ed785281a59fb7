// Package repository persists event logs and run results in SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore is the SQLite-backed store for event logs, runs, timing
// samples, incidents and suite snapshots.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens dsn and migrates the schema. File databases are
// opened in WAL mode with a busy timeout unless dsn sets those itself.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	memory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	if !memory {
		dsn = fileDSN(dsn)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to an in-memory database gets its own empty database,
	// and a shared cache reports table locks instead of waiting.
	if memory || strings.Contains(dsn, "cache=shared") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// fileDSN adds WAL journaling, a busy timeout and immediate write
// transactions so concurrent runs and stream readers wait for each other
// instead of failing.
func fileDSN(dsn string) string {
	var extra []string
	if !strings.Contains(dsn, "_journal_mode=") && !strings.Contains(dsn, "_journal=") {
		extra = append(extra, "_journal_mode=WAL")
	}
	if !strings.Contains(dsn, "_busy_timeout=") && !strings.Contains(dsn, "_timeout=") {
		extra = append(extra, "_busy_timeout=5000")
	}
	// Write transactions take the lock up front so they wait on the busy
	// timeout rather than failing when a reader upgrades.
	if !strings.Contains(dsn, "_txlock=") {
		extra = append(extra, "_txlock=immediate")
	}
	if len(extra) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(extra, "&")
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			log_id TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_log ON events(log_id, seq)`,
		`CREATE TABLE IF NOT EXISTS runs (
			test_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			passed INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			steps_passed INTEGER NOT NULL,
			steps_total INTEGER NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			step_results TEXT NOT NULL DEFAULT '[]',
			error TEXT,
			triggered_by TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL,
			PRIMARY KEY (test_id, run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_completed ON runs(test_id, completed_at)`,
		`CREATE TABLE IF NOT EXISTS timing (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			test_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timing_test ON timing(test_id, ts)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			test_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			alert_sent INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_test ON incidents(test_id, id)`,
		`CREATE TABLE IF NOT EXISTS suite_status (
			test_id TEXT PRIMARY KEY,
			last_result TEXT NOT NULL DEFAULT 'pending',
			last_run_at INTEGER
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Columns added after the first schema; older databases lack them.
	if err := s.ensureColumn("runs", "plan", "ALTER TABLE runs ADD COLUMN plan TEXT"); err != nil {
		return err
	}
	if err := s.ensureColumn("runs", "raw_result", "ALTER TABLE runs ADD COLUMN raw_result TEXT"); err != nil {
		return err
	}
	if err := s.ensureColumn("runs", "streaming_url", "ALTER TABLE runs ADD COLUMN streaming_url TEXT"); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
