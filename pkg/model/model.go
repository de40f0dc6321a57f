package model

import (
	"time"

	"streetroll/pkg/geo"
)

// SamplingPoint is a position along a route together with the direction of travel there.
type SamplingPoint struct {
	Coord   geo.Point `json:"coord"`
	Bearing float64   `json:"bearing"` // degrees clockwise from north, [0, 360)
}

// ImageCandidate is one row returned by the imagery provider for a bounding-box query.
type ImageCandidate struct {
	ID           string    `json:"id"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Coord        geo.Point `json:"coord"`
	HasCoord     bool      `json:"-"`
	CompassAngle *float64  `json:"compass_angle,omitempty"` // nil when the provider did not compute one
	IsPano       bool      `json:"is_pano"`
	CapturedAt   time.Time `json:"captured_at"`
}

// MatchedImage is the single candidate chosen for a SamplingPoint.
type MatchedImage struct {
	ID           string    `json:"id"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Coord        geo.Point `json:"coord"`
	CompassAngle float64   `json:"compass_angle"`
	Score        float64   `json:"score"`
}

// RouteImage is an accepted image as shown in the slideshow.
type RouteImage struct {
	ThumbnailURL string    `json:"thumbnail_url"`
	Coord        geo.Point `json:"coord"`
}
