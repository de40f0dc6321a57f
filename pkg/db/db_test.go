package db_test

import (
	"path/filepath"
	"testing"
	"time"

	"streetroll/pkg/db"
)

func TestDB(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "db_test.db")

	d, err := db.Init(path)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if d == nil {
		t.Fatal("Init() returned nil DB")
	}
	d.Close()

	// Reopening runs migrations against an existing schema
	d, err = db.Init(path)
	if err != nil {
		t.Fatalf("second Init() failed: %v", err)
	}
	d.Close()
}

func TestSchema(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "schema.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	rows, err := d.Query("SELECT name FROM pragma_table_info('route_runs')")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatal(err)
		}
		if cols[name] {
			t.Errorf("column %q declared twice", name)
		}
		cols[name] = true
	}
	for _, want := range []string{"route_id", "session_id", "status", "error", "image_count", "finished_at"} {
		if !cols[want] {
			t.Errorf("route_runs lacks column %q", want)
		}
	}
}

func TestPruneRuns(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "prune.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	old := time.Now().Add(-48 * time.Hour).UTC()
	recent := time.Now().UTC()
	for _, ts := range []time.Time{old, recent} {
		if _, err := d.Exec(`INSERT INTO route_runs (route_id, session_id, finished_at) VALUES (?, ?, ?)`, "route-1", "s", ts); err != nil {
			t.Fatal(err)
		}
	}

	n, err := d.PruneRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PruneRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	var left int
	if err := d.QueryRow("SELECT count(*) FROM route_runs").Scan(&left); err != nil {
		t.Fatal(err)
	}
	if left != 1 {
		t.Errorf("remaining rows = %d, want 1", left)
	}
}
