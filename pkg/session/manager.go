package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"streetroll/pkg/aggregator"
	"streetroll/pkg/config"
	"streetroll/pkg/geo"
	"streetroll/pkg/geocode"
	"streetroll/pkg/metrics"
	"streetroll/pkg/model"
	"streetroll/pkg/pipeline"
	"streetroll/pkg/routing"
	"streetroll/pkg/store"
)

var (
	// ErrNoSession is returned when an operation needs an explored city first.
	ErrNoSession = errors.New("no city explored yet")
	// ErrBusy is returned while routes from the previous LoadMore are still unfinished.
	ErrBusy = errors.New("already loading more routes")
)

// addressTimeout bounds the background reverse geocoding of one route's endpoints.
const addressTimeout = 30 * time.Second

// ImageFetcher runs the imagery pipeline for one route.
type ImageFetcher interface {
	FetchRouteImages(ctx context.Context, routeID string, path []geo.Point, token *aggregator.Token, progress aggregator.ProgressFunc) pipeline.Result
}

// Deps are the collaborators of a Manager. Store and Metrics may be nil.
type Deps struct {
	Geocoder geocode.Geocoder
	Router   routing.Router
	Fetcher  ImageFetcher
	Store    store.RunStore
	Config   config.Provider
	Metrics  *metrics.Collector
}

// ExploreResult describes a freshly started session.
type ExploreResult struct {
	SessionID string              `json:"session_id"`
	City      *geocode.CityBounds `json:"city"`
	Routes    []model.RouteInfo   `json:"routes"`
}

// route is the manager's private record of one route.
type route struct {
	info      model.RouteInfo
	token     *aggregator.Token
	detached  bool // removed by Reset; updates are no longer published
	more      bool // added by LoadMore
	startedAt time.Time
}

// Manager owns the routes of the current city and processes them one at a time.
type Manager struct {
	deps   Deps
	logger *slog.Logger

	mu        sync.RWMutex
	sessionID string
	city      *geocode.CityBounds
	routes    []*route
	byID      map[string]*route
	counter   int
	queue     []*route
	rng       *rand.Rand
	subs      map[int]chan model.RouteInfo
	nextSub   int

	moreLeft int // unfinished routes of the last LoadMore
	wake     chan struct{}
	now      func() time.Time
}

// NewManager creates a Manager. Call Run to start processing routes.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:   deps,
		logger: slog.With("component", "session"),
		byID:   make(map[string]*route),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		subs:   make(map[int]chan model.RouteInfo),
		wake:   make(chan struct{}, 1),
		now:    time.Now,
	}
}

// WithRand replaces the endpoint generator, for deterministic tests.
func (m *Manager) WithRand(r *rand.Rand) *Manager {
	m.mu.Lock()
	m.rng = r
	m.mu.Unlock()
	return m
}

// SessionID returns the id of the current session, or "" before the first Explore.
func (m *Manager) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// City returns the current city, or nil.
func (m *Manager) City() *geocode.CityBounds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.city
}

// Explore resolves city, discards the previous session and queues a fresh set of random routes.
// On lookup failure the previous session is left untouched.
func (m *Manager) Explore(ctx context.Context, city string) (*ExploreResult, error) {
	bounds, err := m.deps.Geocoder.CityBounds(ctx, city)
	if err != nil {
		return nil, err
	}

	n := m.deps.Config.InitialRoutes(ctx)

	m.mu.Lock()
	m.resetLocked()
	m.sessionID = uuid.NewString()
	m.city = bounds
	m.counter = 0
	added := m.addRoutesLocked(n)
	res := &ExploreResult{SessionID: m.sessionID, City: bounds, Routes: infos(added)}
	m.mu.Unlock()

	if err := m.deps.Config.SetLastCity(ctx, city); err != nil {
		m.logger.Warn("Failed to remember city", "city", city, "error", err)
	}
	m.logger.Info("Exploring city", "city", bounds.Name, "session", res.SessionID, "routes", n)

	m.started(added)
	return res, nil
}

// LoadMore queues further random routes for the current city. It fails with ErrBusy
// until every route of the previous call has finished.
func (m *Manager) LoadMore(ctx context.Context) ([]model.RouteInfo, error) {
	n := m.deps.Config.MoreRoutes(ctx)

	m.mu.Lock()
	if m.city == nil {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	if m.moreLeft > 0 {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	added := m.addRoutesLocked(n)
	for _, r := range added {
		r.more = true
	}
	m.moreLeft = len(added)
	m.mu.Unlock()

	m.logger.Info("Loading more routes", "routes", n)
	m.started(added)
	return infos(added), nil
}

// Cancel stops a pending or running route. It reports false for unknown or finished routes.
func (m *Manager) Cancel(routeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[routeID]
	if !ok || r.info.Status.Finished() {
		return false
	}
	r.token.Cancel()
	if r.info.Status == model.RouteStatusPending {
		m.dequeueLocked(r)
		r.info.Status = model.RouteStatusCancelled
		m.settledLocked(r)
		m.touchLocked(r)
		m.deps.Metrics.RouteFinished(string(model.RouteStatusCancelled))
	}
	m.logger.Info("Route cancelled", "route", routeID)
	return true
}

// Reset cancels every route and forgets the current city.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.city = nil
	m.sessionID = ""
}

// Routes lists the session's routes in creation order. With minImages > 0,
// finished routes with fewer images are left out.
func (m *Manager) Routes(minImages int) []model.RouteInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.RouteInfo, 0, len(m.routes))
	for _, r := range m.routes {
		if minImages > 0 && r.info.Status.Finished() && r.info.ImageCount < minImages {
			continue
		}
		out = append(out, r.info.Clone())
	}
	return out
}

// Route returns one route by id.
func (m *Manager) Route(id string) (model.RouteInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return model.RouteInfo{}, false
	}
	return r.info.Clone(), true
}

// Subscribe returns a channel receiving a copy of every route change, and a function
// that ends the subscription. Updates are dropped for subscribers that fall behind.
func (m *Manager) Subscribe() (<-chan model.RouteInfo, func()) {
	ch := make(chan model.RouteInfo, 256)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Run processes queued routes strictly one after another until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("Route worker started")
	defer m.logger.Info("Route worker stopped")

	for ctx.Err() == nil {
		if r := m.next(); r != nil {
			m.process(ctx, r)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		}
	}
}

// next pops the oldest queued route and marks it loading.
func (m *Manager) next() *route {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil
	}
	r := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	m.deps.Metrics.SetQueued(len(m.queue))

	r.info.Status = model.RouteStatusLoading
	r.startedAt = m.now()
	m.touchLocked(r)
	return r
}

func (m *Manager) process(ctx context.Context, r *route) {
	id := r.info.ID
	m.logger.Debug("Processing route", "route", id)

	path, err := m.deps.Router.Route(ctx, r.info.Origin, r.info.Destination)
	if err != nil {
		m.logger.Warn("Route geometry failed", "route", id, "error", err)
		m.finish(ctx, r, model.RouteStatusFailed, err.Error(), len(path), 0)
		return
	}

	res := m.deps.Fetcher.FetchRouteImages(ctx, id, path, r.token, func(s aggregator.Snapshot) {
		m.apply(r, s)
	})
	m.apply(r, res.Snapshot)

	status := model.RouteStatusDone
	if res.Cancelled || ctx.Err() != nil {
		status = model.RouteStatusCancelled
	}
	m.finish(ctx, r, status, "", len(path), res.Samples)
}

// apply replaces the route's images with a snapshot.
func (m *Manager) apply(r *route, s aggregator.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.info.Images = s.Images
	r.info.ImageCount = s.Count
	m.touchLocked(r)
}

func (m *Manager) finish(ctx context.Context, r *route, status model.RouteStatus, errText string, pathPoints, samples int) {
	m.mu.Lock()
	r.info.Status = status
	r.info.Error = errText
	m.settledLocked(r)
	m.touchLocked(r)
	run := &model.RouteRun{
		RouteID:     r.info.ID,
		SessionID:   r.info.SessionID,
		City:        r.info.City,
		Origin:      r.info.Origin,
		Destination: r.info.Destination,
		PathPoints:  pathPoints,
		Samples:     samples,
		ImageCount:  r.info.ImageCount,
		Status:      status,
		Error:       errText,
		StartedAt:   r.startedAt,
		FinishedAt:  m.now(),
	}
	m.mu.Unlock()

	m.deps.Metrics.RouteFinished(string(status))
	m.logger.Info("Route finished", "route", run.RouteID, "status", status, "images", run.ImageCount)

	if m.deps.Store == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.deps.Store.SaveRun(saveCtx, run); err != nil {
		m.logger.Error("Failed to record route run", "route", run.RouteID, "error", err)
	}
}

// addRoutesLocked creates n random routes inside the current city and queues them.
func (m *Manager) addRoutesLocked(n int) []*route {
	added := make([]*route, 0, n)
	for i := 0; i < n; i++ {
		m.counter++
		r := &route{
			info: model.RouteInfo{
				ID:          fmt.Sprintf("route-%d", m.counter),
				SessionID:   m.sessionID,
				City:        m.city.Name,
				Origin:      m.randomPointLocked(),
				Destination: m.randomPointLocked(),
				Images:      []model.RouteImage{},
				Status:      model.RouteStatusPending,
			},
			token: aggregator.NewToken(),
		}
		m.routes = append(m.routes, r)
		m.byID[r.info.ID] = r
		m.queue = append(m.queue, r)
		m.touchLocked(r)
		added = append(added, r)
	}
	m.deps.Metrics.SetQueued(len(m.queue))
	return added
}

// randomPointLocked draws a point uniformly from the city's bounding box.
func (m *Manager) randomPointLocked() geo.Point {
	b := m.city.Bound()
	lat := b.Min.Lat() + m.rng.Float64()*(b.Max.Lat()-b.Min.Lat())
	lon := b.Min.Lon() + m.rng.Float64()*(b.Max.Lon()-b.Min.Lon())
	return geo.Point{Lat: lat, Lon: lon}
}

// started wakes the worker and resolves endpoint addresses in the background.
func (m *Manager) started(added []*route) {
	select {
	case m.wake <- struct{}{}:
	default:
	}
	for _, r := range added {
		go m.resolveAddresses(r)
	}
}

func (m *Manager) resolveAddresses(r *route) {
	ctx, cancel := context.WithTimeout(context.Background(), addressTimeout)
	defer cancel()

	m.mu.RLock()
	origin, dest := r.info.Origin, r.info.Destination
	m.mu.RUnlock()

	from := m.deps.Geocoder.ReverseGeocode(ctx, origin)
	to := m.deps.Geocoder.ReverseGeocode(ctx, dest)

	m.mu.Lock()
	defer m.mu.Unlock()
	r.info.OriginAddress = from
	r.info.DestinationAddress = to
	m.touchLocked(r)
}

func (m *Manager) resetLocked() {
	for _, r := range m.routes {
		r.token.Cancel()
		r.detached = true
		if r.info.Status == model.RouteStatusPending {
			r.info.Status = model.RouteStatusCancelled
			m.deps.Metrics.RouteFinished(string(model.RouteStatusCancelled))
		}
	}
	m.routes = nil
	m.byID = make(map[string]*route)
	m.queue = nil
	m.moreLeft = 0
	m.deps.Metrics.SetQueued(0)
}

// settledLocked counts a finished LoadMore route. Detached routes were already
// discounted by resetLocked.
func (m *Manager) settledLocked(r *route) {
	if r.more && !r.detached && m.moreLeft > 0 {
		m.moreLeft--
	}
	r.more = false
}

func (m *Manager) dequeueLocked(r *route) {
	for i, q := range m.queue {
		if q == r {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
	m.deps.Metrics.SetQueued(len(m.queue))
}

// touchLocked stamps the route and publishes a copy to subscribers.
func (m *Manager) touchLocked(r *route) {
	r.info.UpdatedAt = m.now()
	if r.detached {
		return
	}
	info := r.info.Clone()
	for id, ch := range m.subs {
		select {
		case ch <- info:
		default:
			m.logger.Debug("Subscriber lagging, update dropped", "subscriber", id, "route", info.ID)
		}
	}
}

func infos(rs []*route) []model.RouteInfo {
	out := make([]model.RouteInfo, len(rs))
	for i, r := range rs {
		out[i] = r.info.Clone()
	}
	return out
}
