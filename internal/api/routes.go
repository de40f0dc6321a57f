package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"streetroll/pkg/config"
	"streetroll/pkg/geocode"
	"streetroll/pkg/model"
	"streetroll/pkg/session"
)

// Explorer is the session surface used by the HTTP layer.
type Explorer interface {
	Explore(ctx context.Context, city string) (*session.ExploreResult, error)
	LoadMore(ctx context.Context) ([]model.RouteInfo, error)
	Routes(minImages int) []model.RouteInfo
	Route(id string) (model.RouteInfo, bool)
	Cancel(routeID string) bool
	Reset()
	Subscribe() (<-chan model.RouteInfo, func())
}

// RouteHandler serves the session and route endpoints.
type RouteHandler struct {
	explorer Explorer
	cfgProv  config.Provider
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(e Explorer, cfg config.Provider) *RouteHandler {
	return &RouteHandler{explorer: e, cfgProv: cfg}
}

// ExploreRequest starts a session for a city. An empty city uses the last explored one.
type ExploreRequest struct {
	City string `json:"city"`
}

// ExploreResponse acknowledges a started session.
type ExploreResponse struct {
	SessionID string              `json:"session_id"`
	City      *geocode.CityBounds `json:"city"`
	RouteIDs  []string            `json:"route_ids"`
}

// HandleExplore resolves the city and queues the initial routes.
func (h *RouteHandler) HandleExplore(w http.ResponseWriter, r *http.Request) {
	var req ExploreRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	city := strings.TrimSpace(req.City)
	if city == "" {
		city = h.cfgProv.LastCity(r.Context())
	}
	if city == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}

	res, err := h.explorer.Explore(r.Context(), city)
	if err != nil {
		if errors.Is(err, geocode.ErrCityNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("Explore failed", "city", city, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, ExploreResponse{
		SessionID: res.SessionID,
		City:      res.City,
		RouteIDs:  routeIDs(res.Routes),
	})
}

// HandleMore queues additional routes for the current city.
func (h *RouteHandler) HandleMore(w http.ResponseWriter, r *http.Request) {
	added, err := h.explorer.LoadMore(r.Context())
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string][]string{"route_ids": routeIDs(added)})
}

// HandleList returns every route, or with ?visible=true only those worth showing.
func (h *RouteHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	minImages := 0
	if r.URL.Query().Get("visible") == "true" {
		minImages = h.cfgProv.MinImagesForDisplay(r.Context())
	}
	writeJSON(w, http.StatusOK, h.explorer.Routes(minImages))
}

// HandleGet returns one route.
func (h *RouteHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	route, ok := h.explorer.Route(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "route not found")
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// HandleCancel stops a pending or running route.
func (h *RouteHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := h.explorer.Cancel(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// HandleReset cancels every route and clears the session.
func (h *RouteHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.explorer.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func routeIDs(routes []model.RouteInfo) []string {
	ids := make([]string, len(routes))
	for i := range routes {
		ids[i] = routes[i].ID
	}
	return ids
}
