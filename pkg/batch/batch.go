package batch

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"streetroll/pkg/metrics"
	"streetroll/pkg/model"
	"streetroll/pkg/request"
)

// Defaults for group size and inter-group pacing.
const (
	DefaultSize  = 10
	DefaultPause = 500 * time.Millisecond
)

// Matcher resolves one sampling point to an image, or nil.
type Matcher interface {
	Match(ctx context.Context, p model.SamplingPoint) *model.MatchedImage
}

// Orchestrator runs matcher calls in contiguous groups with a flat pause between groups.
// At most Size calls are in flight at any time.
type Orchestrator struct {
	matcher Matcher
	size    int
	pause   time.Duration
	sleep   request.SleepFunc
	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New creates an Orchestrator. Non-positive size falls back to DefaultSize.
func New(m Matcher, size int, pause time.Duration, mc *metrics.Collector) *Orchestrator {
	if size <= 0 {
		size = DefaultSize
	}
	if pause < 0 {
		pause = 0
	}
	return &Orchestrator{
		matcher: m,
		size:    size,
		pause:   pause,
		sleep:   request.Sleep,
		metrics: mc,
		tracer:  otel.Tracer("streetroll/batch"),
		logger:  slog.With("component", "batch"),
	}
}

// WithSleep replaces the pacing sleep, for simulated time in tests.
func (o *Orchestrator) WithSleep(s request.SleepFunc) *Orchestrator {
	o.sleep = s
	return o
}

// Size returns the group size.
func (o *Orchestrator) Size() int { return o.size }

// FetchBatched lazily yields one result group per batch of points: the group index
// and one entry per point in input order, nil where no image matched.
//
// proceed is consulted before a group starts, on both sides of the pause; returning
// false ends the sequence. A nil proceed always continues. Nothing runs until the
// sequence is ranged over, and breaking out of the range stops further groups.
func (o *Orchestrator) FetchBatched(ctx context.Context, points []model.SamplingPoint, proceed func() bool) iter.Seq2[int, []*model.MatchedImage] {
	if proceed == nil {
		proceed = func() bool { return true }
	}
	return func(yield func(int, []*model.MatchedImage) bool) {
		for g, start := 0, 0; start < len(points); g, start = g+1, start+o.size {
			if !proceed() {
				return
			}
			if g > 0 && o.pause > 0 {
				if err := o.sleep(ctx, o.pause); err != nil {
					return
				}
				if !proceed() {
					return
				}
			}
			if ctx.Err() != nil {
				return
			}

			end := min(start+o.size, len(points))
			results := o.runGroup(ctx, g, points[start:end])
			if !yield(g, results) {
				return
			}
		}
	}
}

// runGroup matches every point of the group concurrently and waits for all of them.
func (o *Orchestrator) runGroup(ctx context.Context, index int, group []model.SamplingPoint) []*model.MatchedImage {
	ctx, span := o.tracer.Start(ctx, "batch.group", trace.WithAttributes(
		attribute.Int("batch.index", index),
		attribute.Int("batch.points", len(group)),
	))
	defer span.End()

	start := time.Now()
	results := make([]*model.MatchedImage, len(group))

	var eg errgroup.Group
	eg.SetLimit(o.size)
	for i := range group {
		eg.Go(func() error {
			results[i] = o.matcher.Match(ctx, group[i])
			return nil
		})
	}
	_ = eg.Wait() // Match never fails

	matched := 0
	for _, r := range results {
		if r != nil {
			matched++
		}
	}
	elapsed := time.Since(start)
	o.metrics.ObserveBatch(elapsed)
	span.SetAttributes(attribute.Int("batch.matched", matched))
	o.logger.Debug("Batch done", "index", index, "points", len(group), "matched", matched, "duration", elapsed)

	return results
}
