// Package sampler turns a decoded route path into evenly spaced, bearing-aware sampling points.
package sampler

import (
	"streetroll/pkg/geo"
	"streetroll/pkg/model"
)

// DefaultTargetCount is the number of intervals a route is divided into.
const DefaultTargetCount = 50

// GenerateEvenlySpacedPoints walks the path and emits a sample every
// totalLength/targetCount meters, starting at the first vertex. The final
// path vertex is always emitted as the last sample, so a non-degenerate path
// yields exactly targetCount+1 points.
//
// Each sample carries the forward bearing of the segment it lies on. The
// terminal sample reuses the bearing of the last segment with non-zero length.
// Paths with fewer than two points, or with zero total length, yield nil.
func GenerateEvenlySpacedPoints(path []geo.Point, targetCount int) []model.SamplingPoint {
	if len(path) < 2 || targetCount < 1 {
		return nil
	}

	total := geo.PathLength(path)
	if total <= 0 {
		return nil
	}
	interval := total / float64(targetCount)

	points := make([]model.SamplingPoint, 0, targetCount+1)
	next := 0.0   // path distance of the next sample
	walked := 0.0 // path distance at the start of the current segment

	for i := 0; i < len(path)-1 && len(points) < targetCount; i++ {
		a, b := path[i], path[i+1]
		seg := geo.Distance(a, b)
		if seg == 0 {
			continue
		}
		bearing := geo.Bearing(a, b)

		for next < walked+seg && len(points) < targetCount {
			points = append(points, model.SamplingPoint{
				Coord:   geo.Interpolate(a, b, (next-walked)/seg),
				Bearing: bearing,
			})
			next += interval
		}
		walked += seg
	}

	points = append(points, model.SamplingPoint{
		Coord:   path[len(path)-1],
		Bearing: terminalBearing(path),
	})
	return points
}

func terminalBearing(path []geo.Point) float64 {
	for i := len(path) - 1; i > 0; i-- {
		if geo.Distance(path[i-1], path[i]) > 0 {
			return geo.Bearing(path[i-1], path[i])
		}
	}
	return 0
}
