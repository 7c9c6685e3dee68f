package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/theoremus-urban-solutions/commute-score/gtfs"
	"github.com/theoremus-urban-solutions/commute-score/utils"
	"github.com/theoremus-urban-solutions/commute-score/walking"
)

// coordinates are cached at about one metre of precision
const cacheDecimals = 5

// Router answers time-dependent walk/transit queries over a schedule index.
// Stop walk lists are computed lazily and cached, so a Router is meant to be
// shared by every query of a run. Safe for concurrent use.
type Router struct {
	index  *gtfs.Index
	walker walking.Estimator
	opts   Options

	nearby    sync.Map // rounded coordinate -> []gtfs.StopWalk
	transfers sync.Map // stop handle -> []gtfs.StopWalk
}

// NewRouter creates a router
func NewRouter(index *gtfs.Index, walker walking.Estimator, opts Options) *Router {
	return &Router{index: index, walker: walker, opts: opts}
}

// Index returns the schedule index the router plans on
func (r *Router) Index() *gtfs.Index { return r.index }

// Options returns the routing constraints
func (r *Router) Options() Options { return r.opts }

// stopsNear returns the cached walkable stops around c
func (r *Router) stopsNear(ctx context.Context, c utils.Coordinate) ([]gtfs.StopWalk, error) {
	key := c.Rounded(cacheDecimals)
	if v, ok := r.nearby.Load(key); ok {
		return v.([]gtfs.StopWalk), nil
	}
	list, err := r.index.StopsNear(ctx, c, r.opts.MaxWalkToStopMiles, r.walker)
	if err != nil {
		return nil, err
	}
	v, _ := r.nearby.LoadOrStore(key, list)
	return v.([]gtfs.StopWalk), nil
}

// transfersFrom returns the stops reachable on foot from stop for a transfer,
// starting with the stop itself at zero cost
func (r *Router) transfersFrom(ctx context.Context, stop int) ([]gtfs.StopWalk, error) {
	if v, ok := r.transfers.Load(stop); ok {
		return v.([]gtfs.StopWalk), nil
	}
	near, err := r.index.StopsNear(ctx, r.index.Stop(stop).Coord, r.opts.MaxWalkToStopMiles, r.walker)
	if err != nil {
		return nil, err
	}
	list := make([]gtfs.StopWalk, 0, len(near)+1)
	list = append(list, gtfs.StopWalk{Stop: stop})
	for _, n := range near {
		if n.Stop != stop {
			list = append(list, n)
		}
	}
	v, _ := r.transfers.LoadOrStore(stop, list)
	return v.([]gtfs.StopWalk), nil
}

// Egress describes how a destination is reached from the network
type Egress struct {
	Destination utils.Coordinate
	stops       []gtfs.StopWalk
	minutes     []float64 // stop handle -> walk to destination, +Inf when too far
	reaches     []bool    // stop handle -> some trip from it calls at an egress stop later
	minMinutes  float64
}

// Stops returns the egress stops sorted by walking time
func (e *Egress) Stops() []gtfs.StopWalk { return e.stops }

// Egress builds the egress table for a destination. Tables cost a pass over
// every stop time, so callers reuse them across plans to the same place.
func (r *Router) Egress(ctx context.Context, dest utils.Coordinate) (*Egress, error) {
	stops, err := r.stopsNear(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("egress stops: %w", err)
	}
	n := r.index.NumStops()
	e := &Egress{
		Destination: dest,
		stops:       stops,
		minutes:     make([]float64, n),
		reaches:     make([]bool, n),
		minMinutes:  math.Inf(1),
	}
	for i := range e.minutes {
		e.minutes[i] = math.Inf(1)
	}
	for _, s := range stops {
		e.minutes[s.Stop] = s.Minutes
		e.minMinutes = math.Min(e.minMinutes, s.Minutes)
	}
	if len(stops) == 0 {
		return e, nil
	}
	for _, t := range r.index.Trips() {
		later := false
		for i := len(t.StopTimes) - 1; i >= 0; i-- {
			s := t.StopTimes[i].Stop
			if later {
				e.reaches[s] = true
			}
			if !math.IsInf(e.minutes[s], 1) {
				later = true
			}
		}
	}
	return e, nil
}

// Plan prepares everything about an origin/destination pair that does not
// depend on the departure time
func (r *Router) Plan(ctx context.Context, origin, dest utils.Coordinate) (*Plan, error) {
	egress, err := r.Egress(ctx, dest)
	if err != nil {
		return nil, err
	}
	return r.PlanWith(ctx, origin, egress)
}

// PlanWith is Plan with a prebuilt egress table
func (r *Router) PlanWith(ctx context.Context, origin utils.Coordinate, egress *Egress) (*Plan, error) {
	p := &Plan{router: r, origin: origin, egress: egress}

	leg, err := r.walker.Walk(ctx, origin, egress.Destination)
	switch {
	case err == nil:
		p.walk = &leg
	case errors.Is(err, walking.ErrNoPath):
	default:
		return nil, fmt.Errorf("walk-only leg: %w", err)
	}

	if p.access, err = r.stopsNear(ctx, origin); err != nil {
		return nil, fmt.Errorf("access stops: %w", err)
	}
	return p, nil
}

// Route answers a single query
func (r *Router) Route(ctx context.Context, q Query) (Result, error) {
	p, err := r.Plan(ctx, q.Origin, q.Destination)
	if err != nil {
		return Result{}, err
	}
	return p.Route(ctx, q.Depart)
}
