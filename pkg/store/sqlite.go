package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"streetroll/pkg/db"
	"streetroll/pkg/model"
)

// Store defines the repository interface.
// Consumers should depend on RunStore or StateStore when possible.
type Store interface {
	RunStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Route Runs ---

func (s *SQLiteStore) SaveRun(ctx context.Context, r *model.RouteRun) error {
	query := `INSERT INTO route_runs
		(route_id, session_id, city, origin_lat, origin_lon, dest_lat, dest_lon, path_points, samples, image_count, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		r.RouteID, r.SessionID, r.City,
		r.Origin.Lat, r.Origin.Lon, r.Destination.Lat, r.Destination.Lon,
		r.PathPoints, r.Samples, r.ImageCount,
		string(r.Status), r.Error,
		r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.RouteID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, most recently finished first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]model.RouteRun, error) {
	if limit <= 0 {
		return []model.RouteRun{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT route_id, session_id, city, origin_lat, origin_lon, dest_lat, dest_lon, path_points, samples, image_count, status, error, started_at, finished_at
		 FROM route_runs ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.RouteRun{}
	for rows.Next() {
		var r model.RouteRun
		var city, status, errText sql.NullString
		var started, finished sql.NullTime
		if err := rows.Scan(
			&r.RouteID, &r.SessionID, &city,
			&r.Origin.Lat, &r.Origin.Lon, &r.Destination.Lat, &r.Destination.Lon,
			&r.PathPoints, &r.Samples, &r.ImageCount,
			&status, &errText, &started, &finished,
		); err != nil {
			return nil, err
		}
		r.City = city.String
		r.Status = model.RouteStatus(status.String)
		r.Error = errText.String
		if started.Valid {
			r.StartedAt = started.Time
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) || err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
