package store

import (
	"context"

	"streetroll/pkg/model"
)

// RunStore handles route run history.
type RunStore interface {
	SaveRun(ctx context.Context, run *model.RouteRun) error
	RecentRuns(ctx context.Context, limit int) ([]model.RouteRun, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
