package aggregator

import (
	"iter"
	"log/slog"

	"streetroll/pkg/geo"
	"streetroll/pkg/logging"
	"streetroll/pkg/metrics"
	"streetroll/pkg/model"
)

// Defaults for the per-route cap and minimum spacing between accepted images.
const (
	MaxImagesPerRoute  = 100
	MinImageDistanceKm = 0.03
)

// Snapshot is a complete, independent copy of a route's accepted images.
// Each snapshot replaces the previous one; none is ever mutated after delivery.
type Snapshot struct {
	RouteID   string             `json:"route_id"`
	Images    []model.RouteImage `json:"images"`
	Locations []geo.Point        `json:"locations"`
	Count     int                `json:"count"`
	// Cancelled is set on the final snapshot when the token stopped the fetch
	// before every group was processed.
	Cancelled bool `json:"cancelled,omitempty"`
}

// ProgressFunc receives one snapshot per processed batch.
type ProgressFunc func(Snapshot)

// Source produces result groups. proceed is polled before each group starts.
type Source func(proceed func() bool) iter.Seq2[int, []*model.MatchedImage]

// RouteImageResult holds the images accepted for one route.
// It is owned by a single Accumulate call and never shared.
type RouteImageResult struct {
	RouteID   string
	Images    []model.RouteImage
	Locations []geo.Point

	ids   map[string]struct{}
	index *locationIndex
}

func newResult(routeID string, minDistKm float64) *RouteImageResult {
	return &RouteImageResult{
		RouteID:   routeID,
		Images:    []model.RouteImage{},
		Locations: []geo.Point{},
		ids:       make(map[string]struct{}),
		index:     newLocationIndex(minDistKm),
	}
}

// snapshot copies the current state.
func (r *RouteImageResult) snapshot() Snapshot {
	images := make([]model.RouteImage, len(r.Images))
	copy(images, r.Images)
	locs := make([]geo.Point, len(r.Locations))
	copy(locs, r.Locations)
	return Snapshot{
		RouteID:   r.RouteID,
		Images:    images,
		Locations: locs,
		Count:     len(images),
	}
}

// Options tune acceptance.
type Options struct {
	MaxImages     int
	MinDistanceKm float64
}

// DefaultOptions returns a 100 image cap with 30 m spacing.
func DefaultOptions() Options {
	return Options{MaxImages: MaxImagesPerRoute, MinDistanceKm: MinImageDistanceKm}
}

// Aggregator folds result groups into a deduplicated, capped image list.
type Aggregator struct {
	opts    Options
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates an Aggregator. mc may be nil.
func New(opts Options, mc *metrics.Collector) *Aggregator {
	if opts.MaxImages <= 0 {
		opts.MaxImages = MaxImagesPerRoute
	}
	if opts.MinDistanceKm < 0 {
		opts.MinDistanceKm = 0
	}
	return &Aggregator{
		opts:    opts,
		metrics: mc,
		logger:  slog.With("component", "aggregator"),
	}
}

// Accumulate drives src until it is exhausted, the cap is reached, or token is cancelled,
// calling progress after every processed group. It returns the final snapshot.
// Cancellation takes effect before the next group starts; accepted images are kept.
// A cancel that arrives after the last group has been requested does not mark the result.
func (a *Aggregator) Accumulate(routeID string, src Source, token *Token, progress ProgressFunc) Snapshot {
	res := newResult(routeID, a.opts.MinDistanceKm)

	stopped := false
	proceed := func() bool {
		if len(res.Images) >= a.opts.MaxImages {
			return false
		}
		if token.Cancelled() {
			stopped = true
			return false
		}
		return true
	}

	for g, group := range src(proceed) {
		accepted := 0
		for _, img := range group {
			if len(res.Images) >= a.opts.MaxImages {
				break
			}
			if img == nil {
				continue
			}
			if a.accept(res, img) {
				accepted++
			}
		}
		a.metrics.ObserveAccepted(accepted)
		a.logger.Debug("Group aggregated", "route", routeID, "group", g, "accepted", accepted, "total", len(res.Images))

		if progress != nil {
			progress(res.snapshot())
		}
		if len(res.Images) >= a.opts.MaxImages {
			a.logger.Debug("Image cap reached", "route", routeID, "cap", a.opts.MaxImages)
			break
		}
	}

	final := res.snapshot()
	final.Cancelled = stopped
	return final
}

// accept adds img unless its id was seen or it lies too close to an accepted location.
func (a *Aggregator) accept(res *RouteImageResult, img *model.MatchedImage) bool {
	if _, dup := res.ids[img.ID]; dup {
		a.metrics.ObserveRejected(metrics.RejectDuplicateID)
		logging.Trace(a.logger, "Rejected duplicate id", "route", res.RouteID, "id", img.ID)
		return false
	}
	for _, p := range res.index.near(img.Coord) {
		if geo.DistanceKm(p, img.Coord) < a.opts.MinDistanceKm {
			a.metrics.ObserveRejected(metrics.RejectTooClose)
			logging.Trace(a.logger, "Rejected nearby image", "route", res.RouteID, "id", img.ID)
			return false
		}
	}

	res.ids[img.ID] = struct{}{}
	res.index.add(img.Coord)
	res.Images = append(res.Images, model.RouteImage{ThumbnailURL: img.ThumbnailURL, Coord: img.Coord})
	res.Locations = append(res.Locations, img.Coord)
	return true
}
