package router_test

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/commute-score/gtfs"
	"github.com/theoremus-urban-solutions/commute-score/internal/testfeed"
	"github.com/theoremus-urban-solutions/commute-score/router"
	"github.com/theoremus-urban-solutions/commute-score/utils"
	"github.com/theoremus-urban-solutions/commute-score/walking"
)

var origin = utils.Coordinate{Lat: 42.3601, Lon: -71.0589}

func at(northFeet, eastFeet float64) utils.Coordinate {
	return utils.OffsetFeet(origin, northFeet, eastFeet)
}

func miles(m float64) float64 { return m * utils.FeetPerMile }

// 3 mph, so a mile is 20 minutes
var walker = walking.NewStraightLine(3, 1)

func defaultOptions() router.Options {
	return router.Options{
		MaxWalkToStopMiles:     1.1,
		MaxTransfers:           1,
		MaxTransferWaitMinutes: 10,
		MaxTripTimeMinutes:     90,
	}
}

// headwayCorridor: origin is a mile south of S1, buses every 15 minutes ride
// S1 -> S2 in 10 minutes, and the destination is 0.2 miles past S2
func headwayCorridor(t *testing.T) (*gtfs.Index, utils.Coordinate) {
	dest := at(miles(5.2), 0)
	idx := testfeed.New().
		Stop("S1", at(miles(1), 0)).
		Stop("S2", at(miles(5), 0)).
		Route("R").
		Headway("R", 360, 540, 15, []string{"S1", "S2"}, []float64{0, 10}).
		Index(t)
	return idx, dest
}

func TestRoute_HeadwayScenario(t *testing.T) {
	idx, dest := headwayCorridor(t)
	r := router.NewRouter(idx, walker, defaultOptions())

	// reach S1 at 06:16, just after the 06:15 bus left
	res, err := r.Route(context.Background(), router.Query{Origin: origin, Destination: dest, Depart: 356})
	require.NoError(t, err)
	require.True(t, res.Reachable)
	assert.Equal(t, router.Direct, res.Kind)
	// 20 walk + 14 wait + 10 ride + 4 walk
	assert.InDelta(t, 48, res.Elapsed, 0.05)
	require.Len(t, res.Legs, 3)
	assert.Equal(t, "S1", res.Legs[1].From)
	assert.Equal(t, "S2", res.Legs[1].To)
	assert.Equal(t, 390.0, res.Legs[1].Depart)
	assert.InDelta(t, res.Arrival, res.Legs[2].Arrive, 1e-9)

	// reach S1 a minute before the 06:15 bus
	res, err = r.Route(context.Background(), router.Query{Origin: origin, Destination: dest, Depart: 354})
	require.NoError(t, err)
	assert.InDelta(t, 35, res.Elapsed, 0.05)
	assert.Equal(t, 375.0, res.Legs[1].Depart)
}

func TestRoute_NeverFasterThanSchedule(t *testing.T) {
	idx, dest := headwayCorridor(t)
	p, err := router.NewRouter(idx, walker, defaultOptions()).Plan(context.Background(), origin, dest)
	require.NoError(t, err)

	for depart := 340.0; depart < 500; depart++ {
		res, err := p.Route(context.Background(), depart)
		require.NoError(t, err)
		require.True(t, res.Reachable, "depart %v", depart)
		assert.GreaterOrEqual(t, res.Elapsed, 34-0.05, "depart %v", depart)
		assert.LessOrEqual(t, res.Elapsed, 34+15+0.05, "depart %v", depart)
	}
}

func TestRoute_WalkOnlyBaseline(t *testing.T) {
	idx, _ := headwayCorridor(t)
	r := router.NewRouter(idx, walker, defaultOptions())

	// 0.3 miles from the origin, transit cannot help
	dest := at(miles(0.3), 0)
	walkLeg, _ := walker.Walk(context.Background(), origin, dest)
	res, err := r.Route(context.Background(), router.Query{Origin: origin, Destination: dest, Depart: 400})
	require.NoError(t, err)
	assert.Equal(t, router.WalkOnly, res.Kind)
	assert.Equal(t, walkLeg.Minutes, res.Elapsed)
	require.Len(t, res.Legs, 1)
	assert.Equal(t, router.LegWalk, res.Legs[0].Mode)
}

func TestRoute_UnreachableBeyondMaxTripTime(t *testing.T) {
	idx, dest := headwayCorridor(t)
	opts := defaultOptions()
	opts.MaxTripTimeMinutes = 30
	r := router.NewRouter(idx, walker, opts)

	res, err := r.Route(context.Background(), router.Query{Origin: origin, Destination: dest, Depart: 356})
	require.NoError(t, err)
	assert.False(t, res.Reachable)
	assert.Equal(t, router.NoRoute, res.Kind)

	// after the last bus nothing but the 104 minute walk is left
	opts.MaxTripTimeMinutes = 90
	r = router.NewRouter(idx, walker, opts)
	res, err = r.Route(context.Background(), router.Query{Origin: origin, Destination: dest, Depart: 600})
	require.NoError(t, err)
	assert.False(t, res.Reachable)
}

// transferFeed: route A runs S1 -> X arriving at 400, route B leaves X (or Y,
// 0.1 miles away) at the given time and reaches S2. Nothing runs direct.
func transferFeed(t *testing.T, secondStop string, secondDepart float64) *gtfs.Index {
	return testfeed.New().
		Stop("S1", at(miles(1), 0)).
		Stop("X", at(miles(1), miles(3))).
		Stop("Y", at(miles(1.1), miles(3))).
		Stop("S2", at(miles(5), miles(3))).
		Trip("a1", "A", testfeed.Call{Stop: "S1", At: 390}, testfeed.Call{Stop: "X", At: 400}).
		Trip("b1", "B", testfeed.Call{Stop: secondStop, At: secondDepart}, testfeed.Call{Stop: "S2", At: secondDepart + 10}).
		Index(t)
}

func TestRoute_TransferWaitBoundary(t *testing.T) {
	dest := at(miles(5.2), miles(3))
	tests := []struct {
		name       string
		stop       string
		depart     float64
		transfers  int
		reachable  bool
		wantLegs   int
		wantMinute float64
	}{
		{name: "wait inside limit", stop: "X", depart: 405, transfers: 1, reachable: true, wantLegs: 4, wantMinute: 419},
		{name: "wait exactly at limit", stop: "X", depart: 410, transfers: 1, reachable: true, wantLegs: 4, wantMinute: 424},
		{name: "wait just over limit", stop: "X", depart: 410.5, transfers: 1, reachable: false},
		{name: "walk to nearby stop counts as wait", stop: "Y", depart: 405, transfers: 1, reachable: true, wantLegs: 5, wantMinute: 419},
		{name: "walk longer than slack", stop: "Y", depart: 401, transfers: 1, reachable: false},
		{name: "transfers disabled", stop: "X", depart: 405, transfers: 0, reachable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			opts.MaxTransfers = tt.transfers
			r := router.NewRouter(transferFeed(t, tt.stop, tt.depart), walker, opts)
			// reach S1 a minute before route A leaves
			res, err := r.Route(context.Background(), router.Query{Origin: origin, Destination: dest, Depart: 369})
			require.NoError(t, err)
			require.Equal(t, tt.reachable, res.Reachable, "result %s", res)
			if !tt.reachable {
				return
			}
			assert.Equal(t, router.OneTransfer, res.Kind)
			assert.Len(t, res.Legs, tt.wantLegs)
			assert.InDelta(t, tt.wantMinute-369, res.Elapsed, 0.05)
		})
	}
}

func TestRoute_TiesPreferFewerTransfers(t *testing.T) {
	dest := at(miles(5.2), 0)
	idx := testfeed.New().
		Stop("S1", at(miles(1), 0)).
		Stop("X", at(miles(3), miles(1))).
		Stop("S2", at(miles(5), 0)).
		Trip("direct", "D", testfeed.Call{Stop: "S1", At: 395}, testfeed.Call{Stop: "S2", At: 410}).
		Trip("first", "A", testfeed.Call{Stop: "S1", At: 390}, testfeed.Call{Stop: "X", At: 398}).
		Trip("second", "B", testfeed.Call{Stop: "X", At: 400}, testfeed.Call{Stop: "S2", At: 410}).
		Index(t)
	r := router.NewRouter(idx, walker, defaultOptions())
	res, err := r.Route(context.Background(), router.Query{Origin: origin, Destination: dest, Depart: 369})
	require.NoError(t, err)
	assert.Equal(t, router.Direct, res.Kind)
	assert.Equal(t, "direct", res.Legs[1].TripID)
}

func TestRoute_PastMidnight(t *testing.T) {
	dest := at(miles(5.2), 0)
	idx := testfeed.New().
		Stop("S1", at(miles(1), 0)).
		Stop("S2", at(miles(5), 0)).
		Trip("owl", "N", testfeed.Call{Stop: "S1", At: 1445}, testfeed.Call{Stop: "S2", At: 1455}).
		Index(t)
	r := router.NewRouter(idx, walker, defaultOptions())
	res, err := r.Route(context.Background(), router.Query{Origin: origin, Destination: dest, Depart: 1420})
	require.NoError(t, err)
	require.True(t, res.Reachable)
	assert.InDelta(t, 1455+4, res.Arrival, 0.05)
}

func TestRoute_NoPathIsUnreachableNotError(t *testing.T) {
	idx, dest := headwayCorridor(t)
	r := router.NewRouter(idx, noPath{}, defaultOptions())
	res, err := r.Route(context.Background(), router.Query{Origin: origin, Destination: dest, Depart: 400})
	require.NoError(t, err)
	assert.False(t, res.Reachable)
}

type noPath struct{}

func (noPath) Walk(context.Context, utils.Coordinate, utils.Coordinate) (walking.Leg, error) {
	return walking.Leg{}, walking.ErrNoPath
}

// bruteForce enumerates every admissible path without pruning
func bruteForce(t *testing.T, idx *gtfs.Index, opts router.Options, from, to utils.Coordinate, t0 float64) (float64, router.Kind) {
	ctx := context.Background()
	bestE, bestK := math.Inf(1), router.NoRoute
	offer := func(e float64, k router.Kind) {
		if e > opts.MaxTripTimeMinutes {
			return
		}
		if e < bestE || (e == bestE && k < bestK) {
			bestE, bestK = e, k
		}
	}
	if leg, err := walker.Walk(ctx, from, to); err == nil {
		offer(leg.Minutes, router.WalkOnly)
	}
	access, err := idx.StopsNear(ctx, from, opts.MaxWalkToStopMiles, walker)
	require.NoError(t, err)
	egressList, err := idx.StopsNear(ctx, to, opts.MaxWalkToStopMiles, walker)
	require.NoError(t, err)
	egress := map[int]float64{}
	for _, e := range egressList {
		egress[e.Stop] = e.Minutes
	}
	for _, a := range access {
		for _, d := range idx.DeparturesFrom(a.Stop, t0+a.Minutes, math.Inf(1)) {
			for _, c := range idx.ArrivalsOnTrip(d.Trip, d.Pos) {
				if w, ok := egress[c.Stop]; ok {
					offer(c.Arrival-t0+w, router.Direct)
				}
				if opts.MaxTransfers < 1 {
					continue
				}
				near, err := idx.StopsNear(ctx, idx.Stop(c.Stop).Coord, opts.MaxWalkToStopMiles, walker)
				require.NoError(t, err)
				neighbors := []gtfs.StopWalk{{Stop: c.Stop}}
				for _, n := range near {
					if n.Stop != c.Stop {
						neighbors = append(neighbors, n)
					}
				}
				for _, y := range neighbors {
					for _, d2 := range idx.DeparturesFrom(y.Stop, c.Arrival+y.Minutes, c.Arrival+opts.MaxTransferWaitMinutes) {
						if d2.Trip == d.Trip {
							continue
						}
						for _, c2 := range idx.ArrivalsOnTrip(d2.Trip, d2.Pos) {
							if w, ok := egress[c2.Stop]; ok {
								offer(c2.Arrival-t0+w, router.OneTransfer)
							}
						}
					}
				}
			}
		}
	}
	return bestE, bestK
}

// randomNetwork lays a 6x6 grid of stops a quarter mile apart and runs
// routes through random stops of it
func randomNetwork(t *testing.T, seed int64) *gtfs.Index {
	rng := rand.New(rand.NewSource(seed))
	b := testfeed.New()
	const n = 6
	id := func(i, j int) string { return fmt.Sprintf("G%d%d", i, j) }
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			b.Stop(id(i, j), at(float64(i)*1320, float64(j)*1320))
		}
	}
	for r := 0; r < 8; r++ {
		var stops []string
		offsets := []float64{0}
		for k, cell := range rng.Perm(n * n)[:7] {
			stops = append(stops, id(cell/n, cell%n))
			if k > 0 {
				offsets = append(offsets, offsets[k-1]+float64(1+rng.Intn(3)))
			}
		}
		headway := float64(5 + rng.Intn(16))
		first := float64(355 + rng.Intn(10))
		b.Headway(fmt.Sprintf("R%d", r), first, 480, headway, stops, offsets)
	}
	return b.Index(t)
}

func TestRoute_MatchesExhaustiveSearch(t *testing.T) {
	ctx := context.Background()
	opts := router.Options{
		MaxWalkToStopMiles:     0.3,
		MaxTransfers:           1,
		MaxTransferWaitMinutes: 8,
		MaxTripTimeMinutes:     40,
	}
	for seed := int64(1); seed <= 4; seed++ {
		idx := randomNetwork(t, seed)
		r := router.NewRouter(idx, walker, opts)
		rng := rand.New(rand.NewSource(seed * 101))
		for pair := 0; pair < 3; pair++ {
			from := at(rng.Float64()*6600, rng.Float64()*6600)
			to := at(rng.Float64()*6600, rng.Float64()*6600)
			p, err := r.Plan(ctx, from, to)
			require.NoError(t, err)
			for t0 := 360.0; t0 < 450; t0 += 3 {
				res, err := p.Route(ctx, t0)
				require.NoError(t, err)
				wantE, wantK := bruteForce(t, idx, opts, from, to, t0)
				if math.IsInf(wantE, 1) {
					assert.False(t, res.Reachable, "seed %d pair %d t0 %v", seed, pair, t0)
					continue
				}
				require.True(t, res.Reachable, "seed %d pair %d t0 %v", seed, pair, t0)
				assert.Equal(t, wantE, res.Elapsed, "seed %d pair %d t0 %v", seed, pair, t0)
				assert.Equal(t, wantK, res.Kind, "seed %d pair %d t0 %v", seed, pair, t0)
			}
		}
	}
}

func TestPlan_ConcurrentRoutesAgree(t *testing.T) {
	idx := randomNetwork(t, 7)
	r := router.NewRouter(idx, walking.NewCached(walker), defaultOptions())
	p, err := r.Plan(context.Background(), at(300, 300), at(6000, 5000))
	require.NoError(t, err)

	want := make([]router.Result, 60)
	for i := range want {
		want[i], err = p.Route(context.Background(), 360+float64(i))
		require.NoError(t, err)
	}
	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := range want {
				got, err := p.Route(context.Background(), 360+float64(i))
				if err != nil || got.Elapsed != want[i].Elapsed || got.Kind != want[i].Kind {
					t.Errorf("concurrent route %d disagrees: %v vs %v", i, got, want[i])
				}
			}
		}()
	}
	for w := 0; w < 4; w++ {
		<-done
	}
}
