package geo

import (
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in meters used by the haversine helpers.
const EarthRadius = 6371000

// Point represents a geographic coordinate in degrees (WGS-84).
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String renders the point the way it is shown when no address is known.
func (p Point) String() string {
	return fmt.Sprintf("%.3f°, %.3f°", p.Lat, p.Lon)
}

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// DistanceKm is Distance expressed in kilometers.
func DistanceKm(p1, p2 Point) float64 {
	return Distance(p1, p2) / 1000.0
}

// DegreeDistance is the planar Euclidean distance between two points measured
// in raw coordinate degrees. It is not a physical distance.
func DegreeDistance(p1, p2 Point) float64 {
	dLat := p2.Lat - p1.Lat
	dLon := p2.Lon - p1.Lon
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// DestinationPoint calculates the destination point from a start point, given distance (in meters) and bearing (in degrees).
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	lat1 := start.Lat * (math.Pi / 180.0)
	lon1 := start.Lon * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(distMeters/EarthRadius) +
		math.Cos(lat1)*math.Sin(distMeters/EarthRadius)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(distMeters/EarthRadius)*math.Cos(lat1),
		math.Cos(distMeters/EarthRadius)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lon: lon2 * (180.0 / math.Pi),
	}
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in degrees, in [0, 360).
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Atan2(y, x)

	b := math.Mod(brng*(180.0/math.Pi)+360.0, 360.0)
	if b >= 360.0 {
		b = 0
	}
	return b
}

// NormalizeAngle normalizes an angle difference to the range [-180, 180].
func NormalizeAngle(angleDeg float64) float64 {
	for angleDeg > 180 {
		angleDeg -= 360
	}
	for angleDeg < -180 {
		angleDeg += 360
	}
	return angleDeg
}

// AngleDiff returns the unsigned smallest difference between two headings, in [0, 180].
func AngleDiff(a, b float64) float64 {
	return math.Abs(NormalizeAngle(math.Mod(a-b, 360.0)))
}

// Interpolate returns the point at fraction f (0..1) along a→b, linear in degree space.
func Interpolate(a, b Point, f float64) Point {
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*f,
		Lon: a.Lon + (b.Lon-a.Lon)*f,
	}
}
