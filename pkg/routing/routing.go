package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paulmach/orb/geojson"

	"streetroll/pkg/geo"
	"streetroll/pkg/request"
)

// Router returns the driving path between two points.
type Router interface {
	Route(ctx context.Context, origin, destination geo.Point) ([]geo.Point, error)
}

// Error is an OSRM answer whose code is not "Ok".
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown routing error"
	}
	return fmt.Sprintf("osrm: %s: %s", e.Code, msg)
}

// Client talks to an OSRM route service.
type Client struct {
	rc      *request.Client
	baseURL string
	profile string
	logger  *slog.Logger
}

// NewClient creates an OSRM client. An empty profile means "driving".
func NewClient(rc *request.Client, baseURL, profile string) *Client {
	if profile == "" {
		profile = "driving"
	}
	return &Client{
		rc:      rc,
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		logger:  slog.With("component", "routing"),
	}
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry *geojson.Geometry `json:"geometry"`
		Distance float64           `json:"distance"` // meters
		Duration float64           `json:"duration"` // seconds
	} `json:"routes"`
}

// Route returns the full-resolution path of the first route found.
// No route yields an empty path and a nil error.
func (c *Client) Route(ctx context.Context, origin, destination geo.Point) ([]geo.Point, error) {
	u := fmt.Sprintf("%s/route/v1/%s/%s;%s?overview=full&geometries=geojson",
		c.baseURL, c.profile, coordParam(origin), coordParam(destination))

	body, err := c.rc.Get(ctx, u, "")
	if err != nil {
		return nil, fmt.Errorf("osrm: route request: %w", err)
	}

	var resp routeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("osrm: decode route: %w", err)
	}
	if resp.Code != "Ok" {
		return nil, &Error{Code: resp.Code, Message: resp.Message}
	}
	if len(resp.Routes) == 0 {
		return []geo.Point{}, nil
	}

	r := resp.Routes[0]
	path, err := geo.PathFromGeometry(r.Geometry)
	if err != nil {
		return nil, fmt.Errorf("osrm: route geometry: %w", err)
	}
	if path == nil {
		path = []geo.Point{}
	}
	c.logger.Debug("Route resolved", "points", len(path), "distance_m", r.Distance, "duration_s", r.Duration)
	return path, nil
}

// coordParam formats a point as OSRM's lon,lat pair.
func coordParam(p geo.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat)
}
