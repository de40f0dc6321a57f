package api

import (
	"context"
	"fmt"
	"sync"

	"streetroll/pkg/geo"
	"streetroll/pkg/geocode"
	"streetroll/pkg/model"
	"streetroll/pkg/session"
)

type mockStore struct {
	mu    sync.Mutex
	state map[string]string
}

func (m *mockStore) GetState(ctx context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.state[key]
	return val, ok
}

func (m *mockStore) SetState(ctx context.Context, key, val string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]string)
	}
	m.state[key] = val
	return nil
}

func (m *mockStore) DeleteState(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, key)
	return nil
}

var testCity = &geocode.CityBounds{Name: "Porto, Portugal", Center: geo.Point{Lat: 41.15, Lon: -8.61}}

type fakeExplorer struct {
	mu         sync.Mutex
	routes     []model.RouteInfo
	exploreErr error
	moreErr    error
	explored   []string
	cancelled  []string
	resets     int
	updates    chan model.RouteInfo
}

func newFakeExplorer(routes ...model.RouteInfo) *fakeExplorer {
	return &fakeExplorer{routes: routes, updates: make(chan model.RouteInfo, 16)}
}

func (f *fakeExplorer) Explore(_ context.Context, city string) (*session.ExploreResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explored = append(f.explored, city)
	if f.exploreErr != nil {
		return nil, f.exploreErr
	}
	f.routes = []model.RouteInfo{
		{ID: "route-1", Status: model.RouteStatusPending},
		{ID: "route-2", Status: model.RouteStatusPending},
	}
	return &session.ExploreResult{SessionID: "sess-1", City: testCity, Routes: f.routes}, nil
}

func (f *fakeExplorer) LoadMore(context.Context) ([]model.RouteInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moreErr != nil {
		return nil, f.moreErr
	}
	r := model.RouteInfo{ID: fmt.Sprintf("route-%d", len(f.routes)+1), Status: model.RouteStatusPending}
	f.routes = append(f.routes, r)
	return []model.RouteInfo{r}, nil
}

func (f *fakeExplorer) Routes(minImages int) []model.RouteInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.RouteInfo{}
	for _, r := range f.routes {
		if minImages > 0 && r.Status.Finished() && r.ImageCount < minImages {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (f *fakeExplorer) Route(id string) (model.RouteInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.routes {
		if r.ID == id {
			return r, true
		}
	}
	return model.RouteInfo{}, false
}

func (f *fakeExplorer) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	for _, r := range f.routes {
		if r.ID == id {
			return !r.Status.Finished()
		}
	}
	return false
}

func (f *fakeExplorer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.routes = nil
}

func (f *fakeExplorer) Subscribe() (<-chan model.RouteInfo, func()) {
	return f.updates, func() {}
}
