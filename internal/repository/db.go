// Package repository is the SQLite persistence layer: the jobs ledger, the
// merged profile field store, and their audit trails.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/joseph-ayodele/docufill/internal/common"
)

// Open opens (creating if needed) the ledger database with WAL mode and
// runs the schema migration.
func Open(cfg common.DatabaseConfig) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	busyMS := int(cfg.BusyTimeout.Milliseconds())
	if busyMS <= 0 {
		busyMS = 5000
	}
	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(" + strconv.Itoa(busyMS) + ")"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// HealthCheck pings the database with the caller's deadline.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return common.WrapError(err, "database unreachable")
	}
	return nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id              TEXT PRIMARY KEY,
			dedup_key       TEXT NOT NULL UNIQUE,
			status          TEXT NOT NULL,
			stage           TEXT NOT NULL DEFAULT '',
			category        TEXT NOT NULL,
			retry_count     INTEGER NOT NULL DEFAULT 0,
			needs_review    INTEGER NOT NULL DEFAULT 0,
			reason          TEXT NOT NULL DEFAULT '',
			document        BLOB,
			format          TEXT NOT NULL DEFAULT '',
			target_json     TEXT,
			template_json   TEXT,
			extracted_json  TEXT,
			assessment_json TEXT,
			filled_json     TEXT,
			artifact        BLOB,
			warnings_json   TEXT,
			errors_json     TEXT,
			history_json    TEXT,
			created_at      DATETIME NOT NULL,
			updated_at      DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE TABLE IF NOT EXISTS job_audit (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id     TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			event      TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_audit_job ON job_audit(job_id)`,
		`CREATE TABLE IF NOT EXISTS profile_fields (
			category   TEXT NOT NULL,
			name       TEXT NOT NULL,
			value      TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			source     TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (category, name)
		)`,
		`CREATE TABLE IF NOT EXISTS field_audit (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			category   TEXT NOT NULL,
			name       TEXT NOT NULL,
			old_value  TEXT,
			new_value  TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			source     TEXT NOT NULL,
			applied    INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_field_audit_field ON field_audit(category, name)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}
