package router

import (
	"context"
	"math"

	"github.com/theoremus-urban-solutions/commute-score/gtfs"
	"github.com/theoremus-urban-solutions/commute-score/utils"
	"github.com/theoremus-urban-solutions/commute-score/walking"
)

// Plan holds the departure-independent state of one origin/destination pair:
// the walk-only leg, access stops sorted by walking time and the egress table.
// Route may be called for any number of departure instants, concurrently.
type Plan struct {
	router *Router
	origin utils.Coordinate
	walk   *walking.Leg // nil when the street network has no path
	access []gtfs.StopWalk
	egress *Egress
}

// Origin returns the plan's origin
func (p *Plan) Origin() utils.Coordinate { return p.origin }

// Destination returns the plan's destination
func (p *Plan) Destination() utils.Coordinate { return p.egress.Destination }

// AccessStops returns the stops walkable from the origin, closest first
func (p *Plan) AccessStops() []gtfs.StopWalk { return p.access }

// candidate is a path found during search; legs are only materialised for the winner
type candidate struct {
	elapsed float64
	kind    Kind

	access  gtfs.StopWalk
	ride1   gtfs.Departure
	alight1 int
	xfer    gtfs.StopWalk
	ride2   gtfs.Departure
	alight2 int
	egress  int
}

// search is the per-instant state of one Route call
type search struct {
	p     *Plan
	ctx   context.Context
	index *gtfs.Index
	opts  Options
	t0    float64
	best  candidate
}

// cannotBeat reports whether any path of at least minKind with elapsed time
// lowerBound is no better than the incumbent
func (s *search) cannotBeat(lowerBound float64, minKind Kind) bool {
	return lowerBound > s.best.elapsed || (lowerBound == s.best.elapsed && s.best.kind <= minKind)
}

// offer records c if it satisfies the trip time bound and beats the incumbent
func (s *search) offer(c candidate) {
	if c.elapsed > s.opts.MaxTripTimeMinutes {
		return
	}
	if c.elapsed < s.best.elapsed || (c.elapsed == s.best.elapsed && c.kind < s.best.kind) {
		s.best = c
	}
}

// Route returns the fastest admissible path departing the origin at depart
// (minutes from the service-day epoch)
func (p *Plan) Route(ctx context.Context, depart float64) (Result, error) {
	s := &search{
		p:     p,
		ctx:   ctx,
		index: p.router.index,
		opts:  p.router.opts,
		t0:    depart,
		best:  candidate{elapsed: math.Inf(1), kind: NoRoute},
	}
	if p.walk != nil {
		s.offer(candidate{elapsed: p.walk.Minutes, kind: WalkOnly})
	}
	if len(p.access) > 0 && len(p.egress.stops) > 0 {
		if err := s.transit(); err != nil {
			return Result{}, err
		}
	}
	return s.result(), nil
}

func (s *search) transit() error {
	e := s.p.egress
	maxTrip := s.opts.MaxTripTimeMinutes
	for _, a := range s.p.access {
		if s.cannotBeat(a.Minutes+e.minMinutes, Direct) {
			break
		}
		bound := math.Min(maxTrip, s.best.elapsed) - e.minMinutes
		for _, d := range s.index.DeparturesFrom(a.Stop, s.t0+a.Minutes, s.t0+bound) {
			if s.cannotBeat(d.Time-s.t0+e.minMinutes, Direct) {
				break
			}
			for k, c := range s.index.ArrivalsOnTrip(d.Trip, d.Pos) {
				atStop := c.Arrival - s.t0
				if s.cannotBeat(atStop+e.minMinutes, Direct) {
					break
				}
				pos := d.Pos + 1 + k
				if walk := e.minutes[c.Stop]; !math.IsInf(walk, 1) {
					s.offer(candidate{
						elapsed: atStop + walk, kind: Direct,
						access: a, ride1: d, alight1: pos, egress: c.Stop,
					})
				}
				if s.opts.MaxTransfers >= 1 {
					if err := s.transfer(a, d, pos, c); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// transfer searches second legs from the call where the first leg alights
func (s *search) transfer(a gtfs.StopWalk, ride1 gtfs.Departure, alight1 int, at gtfs.StopTime) error {
	e := s.p.egress
	if s.cannotBeat(at.Arrival-s.t0+e.minMinutes, OneTransfer) {
		return nil
	}
	neighbors, err := s.p.router.transfersFrom(s.ctx, at.Stop)
	if err != nil {
		return err
	}
	latestByWait := at.Arrival + s.opts.MaxTransferWaitMinutes
	for _, y := range neighbors {
		if !e.reaches[y.Stop] {
			continue
		}
		ready := at.Arrival + y.Minutes
		if s.cannotBeat(ready-s.t0+e.minMinutes, OneTransfer) {
			break
		}
		latest := math.Min(latestByWait, s.t0+math.Min(s.opts.MaxTripTimeMinutes, s.best.elapsed)-e.minMinutes)
		for _, d2 := range s.index.DeparturesFrom(y.Stop, ready, latest) {
			if d2.Trip == ride1.Trip {
				continue
			}
			if s.cannotBeat(d2.Time-s.t0+e.minMinutes, OneTransfer) {
				break
			}
			for k, c2 := range s.index.ArrivalsOnTrip(d2.Trip, d2.Pos) {
				atStop := c2.Arrival - s.t0
				if s.cannotBeat(atStop+e.minMinutes, OneTransfer) {
					break
				}
				if walk := e.minutes[c2.Stop]; !math.IsInf(walk, 1) {
					s.offer(candidate{
						elapsed: atStop + walk, kind: OneTransfer,
						access: a, ride1: ride1, alight1: alight1,
						xfer: y, ride2: d2, alight2: d2.Pos + 1 + k, egress: c2.Stop,
					})
				}
			}
		}
	}
	return nil
}

func (s *search) result() Result {
	b := s.best
	if b.kind == NoRoute {
		return Result{Reachable: false, Depart: s.t0, Kind: NoRoute}
	}
	res := Result{
		Reachable: true,
		Depart:    s.t0,
		Arrival:   s.t0 + b.elapsed,
		Elapsed:   b.elapsed,
		Kind:      b.kind,
	}
	idx := s.index
	stopID := func(h int) string { return idx.Stop(h).ID }

	if b.kind == WalkOnly {
		res.Legs = []Leg{{Mode: LegWalk, Depart: s.t0, Arrive: res.Arrival, Miles: s.p.walk.Miles}}
		return res
	}

	ride := func(d gtfs.Departure, alight int) Leg {
		trip := idx.Trip(d.Trip)
		return Leg{
			Mode:    LegRide,
			From:    stopID(trip.StopTimes[d.Pos].Stop),
			To:      stopID(trip.StopTimes[alight].Stop),
			TripID:  trip.ID,
			RouteID: trip.RouteID,
			Depart:  d.Time,
			Arrive:  trip.StopTimes[alight].Arrival,
			Miles:   idx.RideMiles(d.Trip, d.Pos, alight),
		}
	}

	res.Legs = append(res.Legs, Leg{
		Mode: LegWalk, To: stopID(b.access.Stop),
		Depart: s.t0, Arrive: s.t0 + b.access.Minutes, Miles: b.access.Miles,
	})
	first := ride(b.ride1, b.alight1)
	res.Legs = append(res.Legs, first)
	if b.kind == OneTransfer {
		if b.xfer.Stop != idx.Trip(b.ride1.Trip).StopTimes[b.alight1].Stop {
			res.Legs = append(res.Legs, Leg{
				Mode: LegWalk, From: first.To, To: stopID(b.xfer.Stop),
				Depart: first.Arrive, Arrive: first.Arrive + b.xfer.Minutes, Miles: b.xfer.Miles,
			})
		}
		res.Legs = append(res.Legs, ride(b.ride2, b.alight2))
	}
	last := res.Legs[len(res.Legs)-1]
	egressWalk := s.p.egress.minutes[b.egress]
	res.Legs = append(res.Legs, Leg{
		Mode: LegWalk, From: last.To,
		Depart: last.Arrive, Arrive: last.Arrive + egressWalk, Miles: s.p.egress.milesTo(b.egress),
	})
	return res
}

// milesTo returns the walking distance from an egress stop to the destination
func (e *Egress) milesTo(stop int) float64 {
	for _, s := range e.stops {
		if s.Stop == stop {
			return s.Miles
		}
	}
	return 0
}
