package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Single connection avoids SQLITE_BUSY on concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// PruneRuns removes route run history that finished before the retention window.
func (d *DB) PruneRuns(olderThan time.Duration) (int64, error) {
	deadline := time.Now().Add(-olderThan).UTC()
	res, err := d.Exec("DELETE FROM route_runs WHERE finished_at < ?", deadline)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS persistent_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS route_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			route_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			city TEXT,
			origin_lat REAL,
			origin_lon REAL,
			dest_lat REAL,
			dest_lon REAL,
			path_points INTEGER,
			samples INTEGER,
			image_count INTEGER,
			status TEXT,
			error TEXT,
			started_at DATETIME,
			finished_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_route_runs_finished ON route_runs(finished_at);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	return nil
}
