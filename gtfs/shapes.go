package gtfs

import (
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// RideMiles returns the straight-line distance travelled along a trip between
// two call positions, summed stop to stop
func (g *Index) RideMiles(trip, fromPos, toPos int) float64 {
	calls := g.trips[trip].StopTimes
	if fromPos < 0 || toPos >= len(calls) || fromPos >= toPos {
		return 0
	}
	miles := 0.0
	for i := fromPos; i < toPos; i++ {
		miles += utils.HaversineMiles(g.stops[calls[i].Stop].Coord, g.stops[calls[i+1].Stop].Coord)
	}
	return miles
}

// CallAt returns the call at a position of a trip
func (g *Index) CallAt(trip, pos int) StopTime {
	return g.trips[trip].StopTimes[pos]
}
