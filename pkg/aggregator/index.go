package aggregator

import (
	"math"

	"github.com/uber/h3-go/v4"

	"streetroll/pkg/geo"
)

// cellResolution is fine enough that a 30 m radius touches only a cell and its ring.
const cellResolution = 9

// cellInradiusKm is a conservative lower bound on the res-9 hexagon inradius.
const cellInradiusKm = 0.1

// locationIndex buckets accepted locations by H3 cell so nearby lookups
// only visit the surrounding rings instead of every accepted point.
type locationIndex struct {
	rings int
	cells map[h3.Cell][]geo.Point
	all   []geo.Point
	loose []geo.Point // points that could not be indexed
}

func newLocationIndex(radiusKm float64) *locationIndex {
	rings := int(math.Ceil(radiusKm / cellInradiusKm))
	if rings < 1 {
		rings = 1
	}
	return &locationIndex{
		rings: rings,
		cells: make(map[h3.Cell][]geo.Point),
	}
}

func (ix *locationIndex) add(p geo.Point) {
	ix.all = append(ix.all, p)
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), cellResolution)
	if err != nil {
		ix.loose = append(ix.loose, p)
		return
	}
	ix.cells[cell] = append(ix.cells[cell], p)
}

// near returns candidates that may lie within the radius of p.
// It falls back to every stored point if p cannot be indexed.
func (ix *locationIndex) near(p geo.Point) []geo.Point {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), cellResolution)
	if err != nil {
		return ix.all
	}
	disk, err := h3.GridDisk(cell, ix.rings)
	if err != nil {
		return ix.all
	}
	out := append([]geo.Point(nil), ix.loose...)
	for _, c := range disk {
		out = append(out, ix.cells[c]...)
	}
	return out
}
