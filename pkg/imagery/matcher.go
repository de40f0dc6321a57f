package imagery

import (
	"context"
	"log/slog"
	"time"

	"streetroll/pkg/geo"
	"streetroll/pkg/logging"
	"streetroll/pkg/metrics"
	"streetroll/pkg/model"
	"streetroll/pkg/request"
)

// Scoring weights: one degree of heading mismatch costs as much as 0.0003° of position mismatch.
const (
	angleWeight    = 3.0
	distanceWeight = 10000.0
)

// Options tune candidate search and selection.
type Options struct {
	SearchHalfSide float64 // bbox half side in degrees
	MaxDistance    float64 // degrees, planar
	MaxHeadingDiff float64 // degrees
	Backoff        request.Backoff
}

// DefaultOptions returns the standard search window and 1s/2s/4s throttling schedule.
func DefaultOptions() Options {
	return Options{
		SearchHalfSide: 0.0002,
		MaxDistance:    0.0002,
		MaxHeadingDiff: 30,
		Backoff:        request.Backoff{Base: time.Second, MaxRetries: 3},
	}
}

// Matcher picks the image best aligned with a sampling point.
type Matcher struct {
	src     Searcher
	opts    Options
	sleep   request.SleepFunc
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewMatcher creates a Matcher. m may be nil.
func NewMatcher(src Searcher, opts Options, m *metrics.Collector) *Matcher {
	return &Matcher{
		src:     src,
		opts:    opts,
		sleep:   request.Sleep,
		metrics: m,
		logger:  slog.With("component", "matcher"),
	}
}

// WithSleep replaces the backoff sleep, for simulated time in tests.
func (m *Matcher) WithSleep(s request.SleepFunc) *Matcher {
	m.sleep = s
	return m
}

// Match returns the best candidate for p, or nil if there is none.
// It never fails: throttling is retried per the backoff schedule and every
// other problem, including exhausted retries, yields nil.
func (m *Matcher) Match(ctx context.Context, p model.SamplingPoint) *model.MatchedImage {
	bbox := geo.BoundAround(p.Coord, m.opts.SearchHalfSide)

	for attempt := 0; ; attempt++ {
		candidates, err := m.src.Search(ctx, bbox)
		if err == nil {
			best := SelectBest(p, candidates, m.opts)
			if best == nil {
				m.metrics.ObserveQuery(metrics.OutcomeNone)
			} else {
				m.metrics.ObserveQuery(metrics.OutcomeMatch)
			}
			logging.Trace(m.logger, "Point matched", "point", p.Coord, "candidates", len(candidates), "found", best != nil)
			return best
		}

		if !request.IsTooManyRequests(err) {
			m.metrics.ObserveQuery(metrics.OutcomeError)
			m.logger.Debug("Image query failed", "point", p.Coord, "error", err)
			return nil
		}

		if attempt >= m.opts.Backoff.MaxRetries {
			m.metrics.ObserveQuery(metrics.OutcomeThrottled)
			m.logger.Warn("Rate limited, giving up on point", "point", p.Coord, "attempts", attempt+1)
			return nil
		}

		delay := m.opts.Backoff.Delay(attempt)
		m.logger.Debug("Rate limited, backing off", "point", p.Coord, "attempt", attempt, "delay", delay)
		m.metrics.IncRetry()
		if err := m.sleep(ctx, delay); err != nil {
			m.metrics.ObserveQuery(metrics.OutcomeError)
			return nil
		}
	}
}

// SelectBest applies the candidate filter and returns the lowest scoring survivor, or nil.
// Equal scores prefer the more recent capture; full ties keep the earliest candidate.
func SelectBest(p model.SamplingPoint, candidates []model.ImageCandidate, opts Options) *model.MatchedImage {
	var best *model.MatchedImage
	var bestAt time.Time
	for i := range candidates {
		c := &candidates[i]
		if c.IsPano || c.ThumbnailURL == "" || c.CompassAngle == nil || !c.HasCoord {
			continue
		}
		dist := geo.DegreeDistance(p.Coord, c.Coord)
		if dist > opts.MaxDistance {
			continue
		}
		diff := geo.AngleDiff(*c.CompassAngle, p.Bearing)
		if diff > opts.MaxHeadingDiff {
			continue
		}

		score := diff*angleWeight + dist*distanceWeight
		if best == nil || score < best.Score || (score == best.Score && c.CapturedAt.After(bestAt)) {
			bestAt = c.CapturedAt
			best = &model.MatchedImage{
				ID:           c.ID,
				ThumbnailURL: c.ThumbnailURL,
				Coord:        c.Coord,
				CompassAngle: *c.CompassAngle,
				Score:        score,
			}
		}
	}
	return best
}
