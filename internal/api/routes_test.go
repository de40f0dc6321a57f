package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetroll/pkg/config"
	"streetroll/pkg/geocode"
	"streetroll/pkg/model"
	"streetroll/pkg/session"
	"streetroll/pkg/tracker"
)

func newTestServer(t *testing.T, e Explorer, st *mockStore) *httptest.Server {
	t.Helper()
	prov := config.NewProvider(config.DefaultConfig(), st)
	srv := NewServer("", Handlers{
		Routes: NewRouteHandler(e, prov),
		Stream: NewStreamHandler(e),
		Stats:  NewStatsHandler(tracker.New(), e),
		Config: NewConfigHandler(st, prov),
	}, func() {})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestHandleExplore(t *testing.T) {
	e := newFakeExplorer()
	ts := newTestServer(t, e, &mockStore{})

	resp, body := do(t, http.MethodPost, ts.URL+"/api/explore", `{"city": " Porto "}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var got ExploreResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "Porto, Portugal", got.City.Name)
	assert.Equal(t, []string{"route-1", "route-2"}, got.RouteIDs)
	assert.Equal(t, []string{"Porto"}, e.explored)
}

func TestHandleExplore_FallsBackToLastCity(t *testing.T) {
	e := newFakeExplorer()
	st := &mockStore{state: map[string]string{config.KeyLastCity: "Braga"}}
	ts := newTestServer(t, e, st)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/explore", ``)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"Braga"}, e.explored)
}

func TestHandleExplore_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		exploreErr error
		wantStatus int
	}{
		{"InvalidJSON", `{"city":`, nil, http.StatusBadRequest},
		{"MissingCity", `{"city": "  "}`, nil, http.StatusBadRequest},
		{"UnknownCity", `{"city": "Atlantis"}`, fmt.Errorf("%w: Atlantis", geocode.ErrCityNotFound), http.StatusNotFound},
		{"UpstreamDown", `{"city": "Porto"}`, errors.New("geocoding failed: nominatim: 503"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFakeExplorer()
			e.exploreErr = tt.exploreErr
			ts := newTestServer(t, e, &mockStore{})

			resp, body := do(t, http.MethodPost, ts.URL+"/api/explore", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, string(body), `"error"`)
		})
	}
}

func TestHandleMore(t *testing.T) {
	e := newFakeExplorer(model.RouteInfo{ID: "route-1"})
	ts := newTestServer(t, e, &mockStore{})

	resp, body := do(t, http.MethodPost, ts.URL+"/api/routes/more", ``)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"route_ids": ["route-2"]}`, string(body))

	for _, err := range []error{session.ErrNoSession, session.ErrBusy} {
		e.moreErr = err
		resp, _ = do(t, http.MethodPost, ts.URL+"/api/routes/more", ``)
		assert.Equal(t, http.StatusConflict, resp.StatusCode, err.Error())
	}
}

func TestHandleList(t *testing.T) {
	e := newFakeExplorer(
		model.RouteInfo{ID: "route-1", Status: model.RouteStatusDone, ImageCount: 40},
		model.RouteInfo{ID: "route-2", Status: model.RouteStatusDone, ImageCount: 2},
		model.RouteInfo{ID: "route-3", Status: model.RouteStatusLoading, ImageCount: 1},
	)
	ts := newTestServer(t, e, &mockStore{})

	var all, visible []model.RouteInfo
	_, body := do(t, http.MethodGet, ts.URL+"/api/routes", ``)
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 3)

	_, body = do(t, http.MethodGet, ts.URL+"/api/routes?visible=true", ``)
	require.NoError(t, json.Unmarshal(body, &visible))
	require.Len(t, visible, 2)
	assert.Equal(t, "route-1", visible[0].ID)
	assert.Equal(t, "route-3", visible[1].ID)
}

func TestHandleGetAndCancel(t *testing.T) {
	e := newFakeExplorer(
		model.RouteInfo{ID: "route-1", Status: model.RouteStatusLoading},
		model.RouteInfo{ID: "route-2", Status: model.RouteStatusDone},
	)
	ts := newTestServer(t, e, &mockStore{})

	resp, body := do(t, http.MethodGet, ts.URL+"/api/routes/route-1", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got model.RouteInfo
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "route-1", got.ID)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/routes/route-9", ``)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body = do(t, http.MethodPost, ts.URL+"/api/routes/route-1/cancel", ``)
	assert.JSONEq(t, `{"cancelled": true}`, string(body))
	_, body = do(t, http.MethodPost, ts.URL+"/api/routes/route-2/cancel", ``)
	assert.JSONEq(t, `{"cancelled": false}`, string(body))
	assert.Equal(t, []string{"route-1", "route-2"}, e.cancelled)
}

func TestHandleReset(t *testing.T) {
	e := newFakeExplorer(model.RouteInfo{ID: "route-1"})
	ts := newTestServer(t, e, &mockStore{})

	resp, _ := do(t, http.MethodDelete, ts.URL+"/api/routes", ``)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, e.resets)
	assert.Empty(t, e.Routes(0))
}
