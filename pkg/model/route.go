package model

import (
	"time"

	"streetroll/pkg/geo"
)

// RouteStatus is the lifecycle state of a route's image fetch.
type RouteStatus string

const (
	RouteStatusPending   RouteStatus = "pending"
	RouteStatusLoading   RouteStatus = "loading"
	RouteStatusDone      RouteStatus = "done"
	RouteStatusFailed    RouteStatus = "failed"
	RouteStatusCancelled RouteStatus = "cancelled"
)

// Finished reports whether the route will receive no further updates.
func (s RouteStatus) Finished() bool {
	return s == RouteStatusDone || s == RouteStatusFailed || s == RouteStatusCancelled
}

// RouteInfo is the presentation-facing record for one random route.
type RouteInfo struct {
	ID                 string       `json:"id"`
	SessionID          string       `json:"session_id"`
	City               string       `json:"city"`
	Origin             geo.Point    `json:"origin"`
	Destination        geo.Point    `json:"destination"`
	OriginAddress      string       `json:"origin_address,omitempty"`
	DestinationAddress string       `json:"destination_address,omitempty"`
	Images             []RouteImage `json:"images"`
	ImageCount         int          `json:"image_count"`
	Status             RouteStatus  `json:"status"`
	Error              string       `json:"error,omitempty"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Clone returns a deep copy that does not share the image slice.
func (r *RouteInfo) Clone() RouteInfo {
	c := *r
	if r.Images != nil {
		c.Images = make([]RouteImage, len(r.Images))
		copy(c.Images, r.Images)
	}
	return c
}

// RouteRun is the persisted summary of one finished route fetch. Image URLs are not stored.
type RouteRun struct {
	RouteID     string      `json:"route_id"`
	SessionID   string      `json:"session_id"`
	City        string      `json:"city"`
	Origin      geo.Point   `json:"origin"`
	Destination geo.Point   `json:"destination"`
	PathPoints  int         `json:"path_points"`
	Samples     int         `json:"samples"`
	ImageCount  int         `json:"image_count"`
	Status      RouteStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
}
