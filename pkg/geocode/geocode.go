package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"streetroll/pkg/geo"
	"streetroll/pkg/request"
)

// ErrCityNotFound is returned when the search has no result for a city name.
var ErrCityNotFound = errors.New("city not found")

// DefaultUserAgent identifies the application to Nominatim, which rejects anonymous clients.
const DefaultUserAgent = "StreetRoll/1.0"

// Geocoder resolves city names and street addresses.
type Geocoder interface {
	CityBounds(ctx context.Context, name string) (*CityBounds, error)
	ReverseGeocode(ctx context.Context, p geo.Point) string
}

// CityBounds is a resolved city: its display name, center and bounding box.
type CityBounds struct {
	Name   string    `json:"name"`
	Center geo.Point `json:"center"`
	MinLat float64   `json:"min_lat"`
	MaxLat float64   `json:"max_lat"`
	MinLon float64   `json:"min_lon"`
	MaxLon float64   `json:"max_lon"`
}

// Bound returns the bounding box as an orb.Bound.
func (c *CityBounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{c.MinLon, c.MinLat},
		Max: orb.Point{c.MaxLon, c.MaxLat},
	}
}

// Client queries a Nominatim instance. Responses are cached under the query.
type Client struct {
	rc        *request.Client
	baseURL   string
	userAgent string
	logger    *slog.Logger
}

// NewClient creates a Nominatim client.
func NewClient(rc *request.Client, baseURL, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		rc:        rc,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		logger:    slog.With("component", "geocode"),
	}
}

type searchResult struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	BoundingBox []string `json:"boundingbox"` // minLat, maxLat, minLon, maxLon
}

// CityBounds looks up a city by name.
func (c *Client) CityBounds(ctx context.Context, name string) (*CityBounds, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("addressdetails", "1")
	u := c.baseURL + "/search?" + q.Encode()
	key := "nominatim:search:" + strings.ToLower(strings.TrimSpace(name))

	body, err := c.rc.GetWithHeaders(ctx, u, c.headers(), key)
	if err != nil {
		return nil, fmt.Errorf("geocoding failed: %w", err)
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("geocoding failed: decode: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCityNotFound, name)
	}
	return results[0].bounds()
}

func (r *searchResult) bounds() (*CityBounds, error) {
	if len(r.BoundingBox) != 4 {
		return nil, fmt.Errorf("geocoding failed: bounding box has %d values", len(r.BoundingBox))
	}
	var vals [6]float64
	raw := append([]string{r.Lat, r.Lon}, r.BoundingBox...)
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("geocoding failed: parse %q: %w", s, err)
		}
		vals[i] = v
	}
	return &CityBounds{
		Name:   r.DisplayName,
		Center: geo.Point{Lat: vals[0], Lon: vals[1]},
		MinLat: vals[2],
		MaxLat: vals[3],
		MinLon: vals[4],
		MaxLon: vals[5],
	}, nil
}

type reverseResult struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// ReverseGeocode returns a short street address for p. It never fails: when no
// address can be determined it returns the formatted coordinates.
func (c *Client) ReverseGeocode(ctx context.Context, p geo.Point) string {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', -1, 64))
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	u := c.baseURL + "/reverse?" + q.Encode()
	key := fmt.Sprintf("nominatim:reverse:%.5f,%.5f", p.Lat, p.Lon)

	body, err := c.rc.GetWithHeaders(ctx, u, c.headers(), key)
	if err != nil {
		c.logger.Debug("Reverse geocoding failed", "point", p, "error", err)
		return p.String()
	}

	var res reverseResult
	if err := json.Unmarshal(body, &res); err != nil {
		c.logger.Debug("Reverse geocoding returned malformed body", "point", p, "error", err)
		return p.String()
	}
	if res.Address == nil {
		return p.String()
	}
	if s := ConciseAddress(res.Address, res.DisplayName); s != "" {
		return s
	}
	return p.String()
}

// ConciseAddress builds "street, city" from Nominatim address parts, falling back
// to the first two segments of the display name.
func ConciseAddress(addr map[string]string, displayName string) string {
	var parts []string
	if s := firstOf(addr, "road", "neighbourhood", "suburb"); s != "" {
		parts = append(parts, s)
	}
	if s := firstOf(addr, "city", "town", "village"); s != "" {
		parts = append(parts, s)
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}

	segs := strings.Split(displayName, ",")
	if len(segs) > 2 {
		segs = segs[:2]
	}
	return strings.Join(segs, ",")
}

func firstOf(addr map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := addr[k]; v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) headers() map[string]string {
	return map[string]string{"User-Agent": c.userAgent}
}
