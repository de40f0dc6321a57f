package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetroll/pkg/config"
	"streetroll/pkg/metrics"
	"streetroll/pkg/model"
	"streetroll/pkg/tracker"
	"streetroll/pkg/version"
)

type fakeRuns struct {
	runs  []model.RouteRun
	err   error
	limit int
}

func (f *fakeRuns) SaveRun(context.Context, *model.RouteRun) error { return nil }

func (f *fakeRuns) RecentRuns(_ context.Context, limit int) ([]model.RouteRun, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.runs[:min(limit, len(f.runs))], nil
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t, newFakeExplorer(), &mockStore{})

	resp, body := do(t, http.MethodGet, ts.URL+"/health", ``)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	_, body = do(t, http.MethodGet, ts.URL+"/api/version", ``)
	assert.JSONEq(t, `{"version": "`+version.Version+`"}`, string(body))
}

func TestMetricsAndRequestLog(t *testing.T) {
	mc, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	e := newFakeExplorer()
	prov := config.NewProvider(config.DefaultConfig(), nil)
	srv := NewServer("", Handlers{
		Routes:  NewRouteHandler(e, prov),
		Stats:   NewStatsHandler(tracker.New(), e),
		Metrics: mc,
	}, func() {})
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	do(t, http.MethodGet, ts.URL+"/health", ``)
	do(t, http.MethodGet, ts.URL+"/api/routes/route-7", ``)
	do(t, http.MethodGet, ts.URL+"/api/routes/route-8", ``)

	assert.Equal(t, 1.0, testutil.ToFloat64(mc.HTTPRequests.WithLabelValues("GET", "GET /health", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.HTTPRequests.WithLabelValues("GET", "GET /api/routes/{id}", "404")),
		"paths are labelled by pattern")

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", ``)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "streetroll_http_requests_total")
}

func TestStats(t *testing.T) {
	tr := tracker.New()
	tr.TrackCacheHit("nominatim")
	tr.TrackCacheMiss("nominatim")
	tr.TrackAPISuccess("nominatim")
	tr.TrackRateLimited("mapillary")

	e := newFakeExplorer(
		model.RouteInfo{ID: "route-1", Status: model.RouteStatusDone},
		model.RouteInfo{ID: "route-2", Status: model.RouteStatusDone},
		model.RouteInfo{ID: "route-3", Status: model.RouteStatusLoading},
	)
	h := NewStatsHandler(tr, e)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Routes[model.RouteStatusDone])
	assert.Equal(t, 1, got.Routes[model.RouteStatusLoading])
	assert.Equal(t, int64(50), got.Providers["nominatim"].HitRate)
	assert.Equal(t, int64(1), got.Providers["mapillary"].RateLimited)
	assert.Positive(t, got.Server.Goroutines)
}

func TestHistory(t *testing.T) {
	runs := &fakeRuns{runs: []model.RouteRun{{RouteID: "route-2"}, {RouteID: "route-1"}}}
	h := NewHistoryHandler(runs)

	tests := []struct {
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"", http.StatusOK, defaultHistoryLimit},
		{"?limit=1", http.StatusOK, 1},
		{"?limit=100000", http.StatusOK, maxHistoryLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			runs.limit = 0
			w := httptest.NewRecorder()
			h.HandleList(w, httptest.NewRequest("GET", "/api/history"+tt.query, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLimit, runs.limit)
		})
	}

	runs.err = errors.New("database is locked")
	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest("GET", "/api/history", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStream(t *testing.T) {
	e := newFakeExplorer(model.RouteInfo{ID: "route-1", Status: model.RouteStatusLoading})
	ts := newTestServer(t, e, &mockStore{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/routes/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first model.RouteInfo
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "route-1", first.ID, "current routes are sent on connect")

	e.updates <- model.RouteInfo{ID: "route-1", Status: model.RouteStatusDone, ImageCount: 12}

	var update model.RouteInfo
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, model.RouteStatusDone, update.Status)
	assert.Equal(t, 12, update.ImageCount)
}
