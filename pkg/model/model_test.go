package model

import (
	"testing"

	"streetroll/pkg/geo"
)

func TestRouteInfoClone(t *testing.T) {
	r := RouteInfo{
		ID:     "route-1",
		Images: []RouteImage{{ThumbnailURL: "a", Coord: geo.Point{Lat: 1, Lon: 2}}},
	}

	c := r.Clone()
	c.Images[0].ThumbnailURL = "changed"

	if r.Images[0].ThumbnailURL != "a" {
		t.Error("Clone shares the image slice with the original")
	}
}

func TestRouteStatusFinished(t *testing.T) {
	tests := []struct {
		status RouteStatus
		want   bool
	}{
		{RouteStatusPending, false},
		{RouteStatusLoading, false},
		{RouteStatusDone, true},
		{RouteStatusFailed, true},
		{RouteStatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Finished(); got != tt.want {
			t.Errorf("%s.Finished() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
