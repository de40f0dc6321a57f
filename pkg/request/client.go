package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"streetroll/pkg/cache"
	"streetroll/pkg/tracker"
	"streetroll/pkg/version"
)

var (
	defaultUserAgent = fmt.Sprintf("StreetRoll/%s (+https://github.com/streetroll/streetroll)", version.Version)
)

// Limit bounds the traffic sent to one provider.
type Limit struct {
	Workers int           // concurrent requests in flight
	Gap     time.Duration // pause a worker takes after each request
}

var defaultLimit = Limit{Workers: 1, Gap: 100 * time.Millisecond}

// StatusError is returned for any non-2xx provider response.
type StatusError struct {
	StatusCode int
	Provider   string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d (%s)", e.Provider, e.StatusCode, e.URL)
}

// IsTooManyRequests reports whether err carries an HTTP 429 answer.
func IsTooManyRequests(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}

// Client handles HTTP requests with per-provider queuing, caching, and tracking.
// It never retries on its own; callers own their retry policy.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	logger     *slog.Logger
	userAgent  string
	limits     map[string]Limit

	// Queues per provider
	queues map[string]chan job
	mu     sync.Mutex // Protects queues map
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLimit overrides the worker count and gap for a provider.
func WithLimit(provider string, l Limit) Option {
	return func(c *Client) {
		if l.Workers < 1 {
			l.Workers = 1
		}
		c.limits[provider] = l
	}
}

// WithUserAgent replaces the default User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger used for per-request lines.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// job represents a queued request.
type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client. c may be nil when no response is ever cached.
func New(c cache.Cacher, t *tracker.Tracker, opts ...Option) *Client {
	cl := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      c,
		tracker:    t,
		logger:     slog.Default(),
		userAgent:  defaultUserAgent,
		limits:     make(map[string]Limit),
		queues:     make(map[string]chan job),
	}
	if cl.tracker == nil {
		cl.tracker = tracker.New()
	}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

// Tracker returns the usage tracker fed by this client.
func (c *Client) Tracker() *tracker.Tracker {
	return c.tracker
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	// 1. Check Cache (Only if key is provided)
	if cacheKey != "" && c.cache != nil {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
		slog.Debug("Cache Miss", "provider", provider, "key", cacheKey)
	}

	// 2. Enqueue Request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	j := job{req: req, headers: headers, cacheKey: cacheKey, respChan: respChan}

	c.dispatch(provider, j)

	// 3. Wait for Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

func normalizeProvider(host string) string {
	h := host
	if i := strings.LastIndex(h, ":"); i >= 0 && !strings.Contains(h[i:], "]") {
		h = h[:i]
	}
	switch {
	case strings.HasSuffix(h, "mapillary.com"):
		return "mapillary"
	case strings.Contains(h, "osrm"):
		return "osrm"
	case strings.Contains(h, "nominatim"):
		return "nominatim"
	}
	return host
}

func (c *Client) limitFor(provider string) Limit {
	if l, ok := c.limits[provider]; ok {
		return l
	}
	return defaultLimit
}

// dispatch sends the job to the provider's queue, creating the queue and its workers if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		l := c.limitFor(provider)
		q = make(chan job, 100)
		c.queues[provider] = q
		for i := 0; i < l.Workers; i++ {
			go c.worker(provider, l.Gap, q)
		}
	}
	c.mu.Unlock()

	// Blocks while the queue is full, throttling the caller
	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for one provider. A provider has Limit.Workers of them.
func (c *Client) worker(provider string, gap time.Duration, q <-chan job) {
	for j := range q {
		if j.req.Context().Err() != nil {
			slog.Debug("Job dropped from queue (context expired)", "provider", provider, "error", j.req.Context().Err())
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}

		uaMatch := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaMatch = true
			}
		}
		if !uaMatch {
			j.req.Header.Set("User-Agent", c.userAgent)
		}

		body, err := c.execute(provider, j.req)

		if err == nil && j.cacheKey != "" && c.cache != nil {
			if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
				slog.Error("Failed to cache response", "provider", provider, "error", err)
			}
		}

		j.respChan <- jobResult{body: body, err: err}

		if gap > 0 {
			time.Sleep(gap)
		}
	}
}

// execute performs a single attempt and classifies the outcome.
func (c *Client) execute(provider string, req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		c.tracker.TrackAPIFailure(provider)
		c.logger.Warn("Request failed", "provider", provider, "path", req.URL.Path, "error", err)
		return nil, fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()

	c.logger.Info("Request",
		"provider", provider,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			c.tracker.TrackRateLimited(provider)
		} else {
			c.tracker.TrackAPIFailure(provider)
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Provider:   provider,
			URL:        req.URL.Host + req.URL.Path,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.tracker.TrackAPIFailure(provider)
		return nil, fmt.Errorf("%s: read error: %w", provider, err)
	}
	c.tracker.TrackAPISuccess(provider)
	return body, nil
}
