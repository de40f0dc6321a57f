package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"streetroll/pkg/aggregator"
	"streetroll/pkg/batch"
	"streetroll/pkg/geo"
	"streetroll/pkg/model"
	"streetroll/pkg/sampler"
)

// DefaultSampleCount is the number of intervals a route path is divided into.
const DefaultSampleCount = 50

// Result summarizes one route fetch. Cancelled reports that the token cut the fetch short.
type Result struct {
	Snapshot  aggregator.Snapshot
	Samples   int
	Cancelled bool
	Duration  time.Duration
}

// Fetcher turns a route path into a deduplicated image list.
type Fetcher struct {
	orch    *batch.Orchestrator
	agg     *aggregator.Aggregator
	samples int
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New creates a Fetcher. Non-positive sampleCount falls back to DefaultSampleCount.
func New(orch *batch.Orchestrator, agg *aggregator.Aggregator, sampleCount int) *Fetcher {
	if sampleCount <= 0 {
		sampleCount = DefaultSampleCount
	}
	return &Fetcher{
		orch:    orch,
		agg:     agg,
		samples: sampleCount,
		tracer:  otel.Tracer("streetroll/pipeline"),
		logger:  slog.With("component", "pipeline"),
	}
}

// FetchRouteImages samples path, matches images batch by batch and aggregates them,
// calling progress once per batch. token may be nil. The final snapshot is also
// returned; an empty path yields an empty result and no progress calls.
func (f *Fetcher) FetchRouteImages(ctx context.Context, routeID string, path []geo.Point, token *aggregator.Token, progress aggregator.ProgressFunc) Result {
	ctx, span := f.tracer.Start(ctx, "pipeline.route", trace.WithAttributes(
		attribute.String("route.id", routeID),
		attribute.Int("route.path_points", len(path)),
	))
	defer span.End()

	start := time.Now()
	points := sampler.GenerateEvenlySpacedPoints(path, f.samples)
	span.SetAttributes(attribute.Int("route.samples", len(points)))

	src := func(proceed func() bool) iter.Seq2[int, []*model.MatchedImage] {
		return f.orch.FetchBatched(ctx, points, proceed)
	}
	snap := f.agg.Accumulate(routeID, src, token, progress)

	res := Result{
		Snapshot:  snap,
		Samples:   len(points),
		Cancelled: snap.Cancelled,
		Duration:  time.Since(start),
	}
	span.SetAttributes(
		attribute.Int("route.images", snap.Count),
		attribute.Bool("route.cancelled", res.Cancelled),
	)
	f.logger.Info("Route images fetched",
		"route", routeID,
		"samples", res.Samples,
		"images", snap.Count,
		"cancelled", res.Cancelled,
		"duration", res.Duration.Round(time.Millisecond))

	return res
}
