package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"streetroll/pkg/db"
	"streetroll/pkg/geo"
	"streetroll/pkg/model"
)

func TestSQLiteStore(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	defer d.Close()

	store := NewSQLiteStore(d)
	ctx := context.Background()

	testRuns(t, ctx, store)
	testRunsLimit(t, ctx, store)
	testState(t, ctx, store)
}

func testRuns(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Runs", func(t *testing.T) {
		start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		run := &model.RouteRun{
			RouteID:     "route-1",
			SessionID:   "sess-a",
			City:        "Lyon",
			Origin:      geo.Point{Lat: 45.76, Lon: 4.83},
			Destination: geo.Point{Lat: 45.75, Lon: 4.85},
			PathPoints:  312,
			Samples:     51,
			ImageCount:  37,
			Status:      model.RouteStatusDone,
			StartedAt:   start,
			FinishedAt:  start.Add(40 * time.Second),
		}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		failed := &model.RouteRun{
			RouteID:    "route-2",
			SessionID:  "sess-a",
			City:       "Lyon",
			Status:     model.RouteStatusFailed,
			Error:      "routing: no route",
			StartedAt:  start.Add(time.Minute),
			FinishedAt: start.Add(time.Minute + time.Second),
		}
		if err := store.SaveRun(ctx, failed); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		runs, err := store.RecentRuns(ctx, 10)
		if err != nil {
			t.Fatalf("RecentRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("Expected 2 runs, got %d", len(runs))
		}
		if runs[0].RouteID != "route-2" {
			t.Errorf("Expected newest run first, got %s", runs[0].RouteID)
		}
		if runs[0].Error != "routing: no route" {
			t.Errorf("Error mismatch: %q", runs[0].Error)
		}
		got := runs[1]
		if got.ImageCount != 37 || got.Samples != 51 || got.PathPoints != 312 {
			t.Errorf("Counts mismatch: %+v", got)
		}
		if got.Origin != run.Origin || got.Destination != run.Destination {
			t.Errorf("Endpoints mismatch: %v -> %v", got.Origin, got.Destination)
		}
		if got.Status != model.RouteStatusDone {
			t.Errorf("Status mismatch: %s", got.Status)
		}
		if !got.FinishedAt.Equal(run.FinishedAt) {
			t.Errorf("FinishedAt mismatch: %v vs %v", got.FinishedAt, run.FinishedAt)
		}
	})
}

func testRunsLimit(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("RunsLimit", func(t *testing.T) {
		runs, err := store.RecentRuns(ctx, 1)
		if err != nil {
			t.Fatalf("RecentRuns failed: %v", err)
		}
		if len(runs) != 1 {
			t.Errorf("Expected 1 run, got %d", len(runs))
		}

		runs, err = store.RecentRuns(ctx, 0)
		if err != nil {
			t.Fatalf("RecentRuns failed: %v", err)
		}
		if runs == nil || len(runs) != 0 {
			t.Errorf("Expected empty non-nil slice, got %v", runs)
		}
	})
}

func testState(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("State", func(t *testing.T) {
		if err := store.SetState(ctx, "last_city", "Lyon"); err != nil {
			t.Errorf("SetState failed: %v", err)
		}
		sVal, sHit := store.GetState(ctx, "last_city")
		if !sHit {
			t.Error("Expected state hit")
		}
		if sVal != "Lyon" {
			t.Errorf("Expected 'Lyon', got '%s'", sVal)
		}

		if err := store.DeleteState(ctx, "last_city"); err != nil {
			t.Errorf("DeleteState failed: %v", err)
		}
		if _, hit := store.GetState(ctx, "last_city"); hit {
			t.Error("Expected miss after delete")
		}
	})
}
