package gtfs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/slices"

	"github.com/theoremus-urban-solutions/commute-score/utils"
	"github.com/theoremus-urban-solutions/commute-score/walking"
)

// Index stores the schedule of one service day in memory for fast lookups.
// It is built once and read-only afterwards, so it is safe for concurrent use.
type Index struct {
	selector   ServiceSelector
	stops      []Stop
	trips      []Trip
	routes     map[string]Route
	stopIdx    map[string]int   // stop_id -> handle
	tripIdx    map[string]int   // trip_id -> handle
	routeTrips map[string][]int // route_id -> trip handles
	departures [][]Departure    // stop handle -> departures sorted by time
	spatial    *spatialIndex
}

// newIndex derives the lookup tables from stops and trips. Trips must
// already be validated.
func newIndex(sel ServiceSelector, stops []Stop, trips []Trip, routes map[string]Route) *Index {
	g := &Index{
		selector:   sel,
		stops:      stops,
		trips:      trips,
		routes:     routes,
		stopIdx:    make(map[string]int, len(stops)),
		tripIdx:    make(map[string]int, len(trips)),
		routeTrips: map[string][]int{},
		departures: make([][]Departure, len(stops)),
	}
	if g.routes == nil {
		g.routes = map[string]Route{}
	}
	for i, s := range stops {
		g.stopIdx[s.ID] = i
	}
	stopRoutes := make([]map[string]struct{}, len(stops))
	for ti, t := range trips {
		g.tripIdx[t.ID] = ti
		g.routeTrips[t.RouteID] = append(g.routeTrips[t.RouteID], ti)
		for pos, st := range t.StopTimes {
			if stopRoutes[st.Stop] == nil {
				stopRoutes[st.Stop] = map[string]struct{}{}
			}
			stopRoutes[st.Stop][t.RouteID] = struct{}{}
			// nothing can be ridden from the last call
			if pos == len(t.StopTimes)-1 {
				continue
			}
			g.departures[st.Stop] = append(g.departures[st.Stop], Departure{Trip: ti, Pos: pos, Time: st.Departure})
		}
	}
	for s := range g.departures {
		slices.SortFunc(g.departures[s], func(a, b Departure) int {
			switch {
			case a.Time < b.Time:
				return -1
			case a.Time > b.Time:
				return 1
			}
			return a.Trip - b.Trip
		})
		routes := make([]string, 0, len(stopRoutes[s]))
		for r := range stopRoutes[s] {
			routes = append(routes, r)
		}
		sort.Strings(routes)
		g.stops[s].Routes = routes
	}
	g.spatial = newSpatialIndex(stops)
	return g
}

// Build validates the feed restricted to the selected service day and indexes it.
// Recoverable record problems are logged once per kind; integrity violations
// fail the build with ErrDataIntegrity.
func Build(feed *Feed, sel ServiceSelector) (*Index, error) {
	warnings := NewWarningAggregator()
	defer warnings.LogAll(feed.Name)

	services, err := activeServices(feed, sel, warnings)
	if err != nil {
		return nil, err
	}

	routes := make(map[string]Route, len(feed.Routes))
	for _, r := range feed.Routes {
		routes[r.ID] = Route{ID: r.ID, ShortName: r.ShortName, LongName: r.LongName, Type: r.Type}
	}

	// stops.txt: every ID is known, only valid ones are indexed
	knownStops := make(map[string]bool, len(feed.Stops))
	stopHandle := make(map[string]int, len(feed.Stops))
	stations := map[string]bool{}
	stops := make([]Stop, 0, len(feed.Stops))
	for _, s := range feed.Stops {
		knownStops[s.ID] = true
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(s.Lat), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(s.Lon), 64)
		c := utils.Coordinate{Lat: lat, Lon: lon}
		if errLat != nil || errLon != nil || !c.Valid() || (lat == 0 && lon == 0) {
			warnings.Add(WarningStopNoCoordinates, s.ID)
			continue
		}
		if s.Type == "1" {
			stations[s.ID] = true
		}
		stopHandle[s.ID] = len(stops)
		stops = append(stops, Stop{ID: s.ID, Name: s.Name, Coord: c})
	}

	// trips.txt restricted to the active services
	tripRecs := map[string]TripRecord{}
	for _, t := range feed.Trips {
		if !services[t.ServiceID] {
			continue
		}
		if _, ok := routes[t.RouteID]; !ok && len(routes) > 0 {
			warnings.Add(WarningTripUnknownRoute, t.TripID)
		}
		tripRecs[t.TripID] = t
	}
	allTrips := make(map[string]bool, len(feed.Trips))
	for _, t := range feed.Trips {
		allTrips[t.TripID] = true
	}

	// stop_times.txt grouped by trip
	byTrip := map[string][]StopTimeRecord{}
	for _, st := range feed.StopTimes {
		if _, ok := tripRecs[st.TripID]; !ok {
			if !allTrips[st.TripID] {
				warnings.Add(WarningStopTimeNoTrip, st.TripID)
			}
			continue
		}
		if !knownStops[st.StopID] {
			return nil, fmt.Errorf("%w: trip %s references unknown stop %s", ErrDataIntegrity, st.TripID, st.StopID)
		}
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}

	tripIDs := make([]string, 0, len(byTrip))
	for id := range byTrip {
		tripIDs = append(tripIDs, id)
	}
	sort.Strings(tripIDs)

	trips := make([]Trip, 0, len(tripIDs))
	for _, id := range tripIDs {
		trip, err := buildTrip(tripRecs[id], byTrip[id], stopHandle, stations, warnings)
		if err != nil {
			if errors.Is(err, errTripTooShort) {
				warnings.Add(WarningTripTooShort, id)
				continue
			}
			return nil, err
		}
		trips = append(trips, trip)
	}

	idx := newIndex(sel, stops, trips, routes)
	log.Info().
		Str("service_day", sel.String()).
		Int("services", len(services)).
		Int("stops", len(stops)).
		Int("trips", len(trips)).
		Msg("Built schedule index")
	return idx, nil
}

var errTripTooShort = errors.New("trip has fewer than two timed calls")

func buildTrip(rec TripRecord, calls []StopTimeRecord, stopHandle map[string]int, stations map[string]bool, warnings *WarningAggregator) (Trip, error) {
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].StopSequence < calls[j].StopSequence })

	trip := Trip{ID: rec.TripID, RouteID: rec.RouteID, ServiceID: rec.ServiceID, Headsign: rec.Headsign}
	prevSeq := -1
	prevDeparture := -1.0
	for i, st := range calls {
		if i > 0 && st.StopSequence == prevSeq {
			return Trip{}, fmt.Errorf("%w: trip %s repeats stop_sequence %d", ErrDataIntegrity, rec.TripID, st.StopSequence)
		}
		prevSeq = st.StopSequence

		arr, dep, ok, err := parseCallTimes(st)
		if err != nil {
			warnings.Add(WarningStopTimeBadTime, rec.TripID)
			continue
		}
		if !ok {
			// untimed intermediate call, interpolation is not attempted
			continue
		}
		stop, indexed := stopHandle[st.StopID]
		if !indexed {
			warnings.Add(WarningStopTimeSkipped, st.StopID)
			continue
		}
		if stations[st.StopID] {
			warnings.Add(WarningStationNotBoarding, st.StopID)
		}
		if dep < arr {
			return Trip{}, fmt.Errorf("%w: trip %s departs stop %s at %s before arriving at %s",
				ErrDataIntegrity, rec.TripID, st.StopID, utils.FormatClock(dep), utils.FormatClock(arr))
		}
		if arr < prevDeparture {
			return Trip{}, fmt.Errorf("%w: trip %s arrives at stop %s at %s before leaving the previous stop at %s",
				ErrDataIntegrity, rec.TripID, st.StopID, utils.FormatClock(arr), utils.FormatClock(prevDeparture))
		}
		prevDeparture = dep
		trip.StopTimes = append(trip.StopTimes, StopTime{Stop: stop, Arrival: arr, Departure: dep})
	}
	if len(trip.StopTimes) < 2 {
		return Trip{}, errTripTooShort
	}
	return trip, nil
}

// parseCallTimes returns arrival and departure minutes. A call with only one
// of the two uses it for both; a call with neither reports ok=false.
func parseCallTimes(st StopTimeRecord) (arr, dep float64, ok bool, err error) {
	a, d := strings.TrimSpace(st.ArrivalTime), strings.TrimSpace(st.DepartureTime)
	if a == "" && d == "" {
		return 0, 0, false, nil
	}
	if a == "" {
		a = d
	}
	if d == "" {
		d = a
	}
	if arr, err = utils.ParseClock(a); err != nil {
		return 0, 0, false, err
	}
	if dep, err = utils.ParseClock(d); err != nil {
		return 0, 0, false, err
	}
	return arr, dep, true, nil
}

// Accessor methods

func (g *Index) Selector() ServiceSelector { return g.selector }

func (g *Index) Stops() []Stop { return g.stops }

func (g *Index) Trips() []Trip { return g.trips }

func (g *Index) NumStops() int { return len(g.stops) }

func (g *Index) Stop(handle int) Stop { return g.stops[handle] }

func (g *Index) Trip(handle int) Trip { return g.trips[handle] }

func (g *Index) StopHandle(stopID string) (int, bool) {
	h, ok := g.stopIdx[stopID]
	return h, ok
}

func (g *Index) TripHandle(tripID string) (int, bool) {
	h, ok := g.tripIdx[tripID]
	return h, ok
}

func (g *Index) Route(routeID string) Route {
	if r, ok := g.routes[routeID]; ok {
		return r
	}
	return Route{ID: routeID}
}

// TripsForRoute returns the handles of the route's trips on the analyzed day
func (g *Index) TripsForRoute(routeID string) []int { return g.routeTrips[routeID] }

// RoutesForStop returns the sorted route IDs serving a stop
func (g *Index) RoutesForStop(handle int) []string { return g.stops[handle].Routes }

// DeparturesFrom returns departures from the stop with after <= time <= before,
// ascending by time. The result aliases index storage and must not be modified.
func (g *Index) DeparturesFrom(stop int, after, before float64) []Departure {
	deps := g.departures[stop]
	lo := sort.Search(len(deps), func(i int) bool { return deps[i].Time >= after })
	hi := sort.Search(len(deps), func(i int) bool { return deps[i].Time > before })
	if lo >= hi {
		return nil
	}
	return deps[lo:hi]
}

// ArrivalsOnTrip returns the calls of a trip after position pos, in trip order.
// The result aliases index storage and must not be modified.
func (g *Index) ArrivalsOnTrip(trip, pos int) []StopTime {
	calls := g.trips[trip].StopTimes
	if pos+1 >= len(calls) {
		return nil
	}
	return calls[pos+1:]
}

// StopsNear returns the stops whose walking distance from c is within
// radiusMiles, sorted by walking time. Stops with no walking path are omitted.
func (g *Index) StopsNear(ctx context.Context, c utils.Coordinate, radiusMiles float64, est walking.Estimator) ([]StopWalk, error) {
	var out []StopWalk
	for _, s := range g.spatial.within(g.stops, c, radiusMiles) {
		leg, err := est.Walk(ctx, c, g.stops[s].Coord)
		if errors.Is(err, walking.ErrNoPath) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("walk to stop %s: %w", g.stops[s].ID, err)
		}
		if leg.Miles > radiusMiles {
			continue
		}
		out = append(out, StopWalk{Stop: s, Miles: leg.Miles, Minutes: leg.Minutes})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Minutes == out[j].Minutes {
			return out[i].Stop < out[j].Stop
		}
		return out[i].Minutes < out[j].Minutes
	})
	return out, nil
}
