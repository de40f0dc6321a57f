package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Orb converts the point to orb's [lon, lat] order.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// FromOrb converts an orb point back to a Point.
func FromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lon: p.Lon()}
}

// LineString converts a path to an orb.LineString.
func LineString(path []Point) orb.LineString {
	ls := make(orb.LineString, len(path))
	for i, p := range path {
		ls[i] = p.Orb()
	}
	return ls
}

// PathFromLineString converts an orb.LineString to a path.
func PathFromLineString(ls orb.LineString) []Point {
	path := make([]Point, len(ls))
	for i, p := range ls {
		path[i] = FromOrb(p)
	}
	return path
}

// PathFromGeometry extracts a path from a GeoJSON LineString or MultiLineString geometry.
// Parts of a MultiLineString are concatenated in order.
func PathFromGeometry(g *geojson.Geometry) ([]Point, error) {
	if g == nil || g.Coordinates == nil {
		return nil, nil
	}
	switch geom := g.Geometry().(type) {
	case orb.LineString:
		return PathFromLineString(geom), nil
	case orb.MultiLineString:
		var path []Point
		for _, ls := range geom {
			path = append(path, PathFromLineString(ls)...)
		}
		return path, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

// PointFromGeometry extracts a Point from a GeoJSON Point geometry.
func PointFromGeometry(g *geojson.Geometry) (Point, bool) {
	if g == nil || g.Coordinates == nil {
		return Point{}, false
	}
	p, ok := g.Geometry().(orb.Point)
	if !ok {
		return Point{}, false
	}
	return FromOrb(p), true
}

// BoundAround returns the square bound centered on p extending half degrees along each axis.
func BoundAround(p Point, half float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{p.Lon - half, p.Lat - half},
		Max: orb.Point{p.Lon + half, p.Lat + half},
	}
}

// BBoxParam formats a bound as "minLon,minLat,maxLon,maxLat".
func BBoxParam(b orb.Bound) string {
	return fmt.Sprintf("%g,%g,%g,%g", b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat())
}

// PathLength returns the summed haversine length of a path in meters.
func PathLength(path []Point) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}
