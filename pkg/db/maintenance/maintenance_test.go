package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"streetroll/pkg/db"
	"streetroll/pkg/store"
)

func TestMaintenance(t *testing.T) {
	tempDir := t.TempDir()
	d, err := db.Init(filepath.Join(tempDir, "maint_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	s := store.NewSQLiteStore(d)
	ctx := context.Background()

	insert := func(age time.Duration) {
		_, err := d.Exec("INSERT INTO route_runs (route_id, session_id, finished_at) VALUES (?, ?, ?)",
			"route-1", "s", time.Now().Add(-age).UTC())
		if err != nil {
			t.Fatal(err)
		}
	}
	count := func() int {
		var n int
		if err := d.QueryRow("SELECT count(*) FROM route_runs").Scan(&n); err != nil {
			t.Fatal(err)
		}
		return n
	}

	insert(40 * 24 * time.Hour)
	insert(24 * time.Hour)

	if err := Run(ctx, s, d, 30*24*time.Hour); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := count(); got != 1 {
		t.Errorf("Expected 1 run after pruning, got %d", got)
	}
	if _, ok := s.GetState(ctx, lastPruneStateKey); !ok {
		t.Error("Expected last prune time to be recorded")
	}

	// A second run within the interval is a no-op
	insert(40 * 24 * time.Hour)
	if err := Run(ctx, s, d, 30*24*time.Hour); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := count(); got != 2 {
		t.Errorf("Expected pruning to be skipped, got %d rows", got)
	}
}

func TestMaintenance_Disabled(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "maint_off.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	s := store.NewSQLiteStore(d)
	if err := Run(context.Background(), s, d, 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, ok := s.GetState(context.Background(), lastPruneStateKey); ok {
		t.Error("Disabled retention must not record state")
	}
}
