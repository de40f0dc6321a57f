package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "streetroll"

// Query outcomes recorded per imagery lookup.
const (
	OutcomeMatch     = "match"
	OutcomeNone      = "none"
	OutcomeThrottled = "throttled"
	OutcomeError     = "error"
)

// Rejection reasons recorded by the aggregator.
const (
	RejectDuplicateID = "duplicate_id"
	RejectTooClose    = "too_close"
)

// Collector bundles the Prometheus metrics of the imagery pipeline and the HTTP API.
// All methods are safe to call on a nil *Collector.
type Collector struct {
	gatherer prometheus.Gatherer

	ProviderQueries *prometheus.CounterVec
	MatchRetries    prometheus.Counter
	ImagesAccepted  prometheus.Counter
	ImagesRejected  *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	RoutesFinished  *prometheus.CounterVec
	RoutesPending   prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers the metrics against reg, defaulting to the global Prometheus registry when nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.ProviderQueries, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "imagery",
		Name:      "queries_total",
		Help:      "Imagery lookups per sampling point, labeled by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.MatchRetries, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "imagery",
		Name:      "retries_total",
		Help:      "Imagery queries repeated after a 429 answer.",
	})); err != nil {
		return nil, err
	}
	if c.ImagesAccepted, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "images_accepted_total",
		Help:      "Images accepted into a route result.",
	})); err != nil {
		return nil, err
	}
	if c.ImagesRejected, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "images_rejected_total",
		Help:      "Matched images dropped by deduplication, labeled by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if c.BatchDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "duration_seconds",
		Help:      "Wall time of one batch of concurrent imagery lookups.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
	})); err != nil {
		return nil, err
	}
	if c.RoutesFinished, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "routes_finished_total",
		Help:      "Routes that reached a final status.",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if c.RoutesPending, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "routes_queued",
		Help:      "Routes waiting for or running their image fetch.",
	})); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests handled, labeled by method, route pattern and status.",
	}, []string{"method", "path", "status"})); err != nil {
		return nil, err
	}
	if c.HTTPDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveQuery records the outcome of one sampling point lookup.
func (c *Collector) ObserveQuery(outcome string) {
	if c == nil {
		return
	}
	c.ProviderQueries.WithLabelValues(outcome).Inc()
}

// IncRetry records one retry after throttling.
func (c *Collector) IncRetry() {
	if c == nil {
		return
	}
	c.MatchRetries.Inc()
}

// ObserveAccepted records n newly accepted images.
func (c *Collector) ObserveAccepted(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ImagesAccepted.Add(float64(n))
}

// ObserveRejected records one rejected image.
func (c *Collector) ObserveRejected(reason string) {
	if c == nil {
		return
	}
	c.ImagesRejected.WithLabelValues(reason).Inc()
}

// ObserveBatch records the duration of one batch.
func (c *Collector) ObserveBatch(d time.Duration) {
	if c == nil {
		return
	}
	c.BatchDuration.Observe(d.Seconds())
}

// RouteFinished records a route reaching a final status.
func (c *Collector) RouteFinished(status string) {
	if c == nil {
		return
	}
	c.RoutesFinished.WithLabelValues(status).Inc()
}

// SetQueued sets the number of routes waiting for or running their fetch.
func (c *Collector) SetQueued(n int) {
	if c == nil {
		return
	}
	c.RoutesPending.Set(float64(n))
}

// ObserveHTTP records one handled API request.
func (c *Collector) ObserveHTTP(method, path string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, path, fmt.Sprint(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// register adds col to reg, reusing an already registered collector of the same type.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
