package gtfs

import (
	"math"
	"sort"

	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// cells are about a quarter mile on each side
const spatialCellMiles = 0.25

type cellKey struct {
	lat, lon int
}

// spatialIndex buckets stops into a fixed lat/lon grid so radius queries only
// look at nearby cells
type spatialIndex struct {
	dLat, dLon float64
	cells      map[cellKey][]int
}

func newSpatialIndex(stops []Stop) *spatialIndex {
	refLat := 0.0
	for _, s := range stops {
		refLat += s.Coord.Lat
	}
	if len(stops) > 0 {
		refLat /= float64(len(stops))
	}
	dLat, dLon := utils.MilesToDegrees(refLat, spatialCellMiles)
	si := &spatialIndex{dLat: dLat, dLon: dLon, cells: map[cellKey][]int{}}
	for i, s := range stops {
		k := si.key(s.Coord)
		si.cells[k] = append(si.cells[k], i)
	}
	return si
}

func (si *spatialIndex) key(c utils.Coordinate) cellKey {
	return cellKey{lat: int(math.Floor(c.Lat / si.dLat)), lon: int(math.Floor(c.Lon / si.dLon))}
}

// within returns the handles of stops whose straight-line distance from c is at
// most radiusMiles, in ascending handle order. Walking distance can only be
// longer, so this is a safe prefilter for walk-radius queries.
func (si *spatialIndex) within(stops []Stop, c utils.Coordinate, radiusMiles float64) []int {
	spanLat, _ := utils.MilesToDegrees(c.Lat, radiusMiles)
	// widen the longitude span for the poleward edge of the box
	edgeLat := math.Min(89, math.Abs(c.Lat)+spanLat)
	_, spanLon := utils.MilesToDegrees(edgeLat, radiusMiles)
	lo := si.key(utils.Coordinate{Lat: c.Lat - spanLat, Lon: c.Lon - spanLon})
	hi := si.key(utils.Coordinate{Lat: c.Lat + spanLat, Lon: c.Lon + spanLon})

	var out []int
	for y := lo.lat; y <= hi.lat; y++ {
		for x := lo.lon; x <= hi.lon; x++ {
			for _, s := range si.cells[cellKey{lat: y, lon: x}] {
				if utils.HaversineMiles(c, stops[s].Coord) <= radiusMiles {
					out = append(out, s)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}
