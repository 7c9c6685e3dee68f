package walking_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/commute-score/utils"
	"github.com/theoremus-urban-solutions/commute-score/walking"
)

var origin = utils.Coordinate{Lat: 42.3601, Lon: -71.0589}

func TestStraightLine(t *testing.T) {
	est := walking.NewStraightLine(4.0, 1.0)
	oneMileNorth := utils.OffsetFeet(origin, utils.FeetPerMile, 0)

	leg, err := est.Walk(context.Background(), origin, oneMileNorth)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, leg.Miles, 0.001)
	assert.InDelta(t, 15.0, leg.Minutes, 0.02)

	detoured := walking.NewStraightLine(4.0, 1.3)
	leg2, _ := detoured.Walk(context.Background(), origin, oneMileNorth)
	assert.InDelta(t, leg.Miles*1.3, leg2.Miles, 1e-9)

	// deterministic
	leg3, _ := detoured.Walk(context.Background(), origin, oneMileNorth)
	assert.Equal(t, leg2, leg3)
}

// testGraph is a path a-b-c going north in quarter miles plus an island d
func testGraph() (*walking.Graph, []utils.Coordinate) {
	quarter := utils.FeetPerMile / 4
	pts := []utils.Coordinate{
		origin,
		utils.OffsetFeet(origin, quarter, 0),
		utils.OffsetFeet(origin, 2*quarter, 0),
		utils.OffsetFeet(origin, 0, 2*quarter),
	}
	nodes := []walking.NodeRecord{
		{ID: 1, Lat: pts[0].Lat, Lon: pts[0].Lon},
		{ID: 2, Lat: pts[1].Lat, Lon: pts[1].Lon},
		{ID: 3, Lat: pts[2].Lat, Lon: pts[2].Lon},
		{ID: 4, Lat: pts[3].Lat, Lon: pts[3].Lon},
	}
	edges := []walking.EdgeRecord{
		{From: 1, To: 2, LengthM: 402.336},
		{From: 2, To: 3, LengthM: 402.336},
		{From: 3, To: 99, LengthM: 10},
	}
	return walking.NewGraph(nodes, edges, 3.0), pts
}

func TestGraph_ShortestPath(t *testing.T) {
	g, pts := testGraph()
	require.Equal(t, 4, g.NumNodes())

	leg, err := g.Walk(context.Background(), pts[0], pts[2])
	require.NoError(t, err)
	assert.InDelta(t, 0.5, leg.Miles, 1e-6)
	assert.InDelta(t, 10.0, leg.Minutes, 1e-4)

	// symmetric because edges are walkable both ways
	back, err := g.Walk(context.Background(), pts[2], pts[0])
	require.NoError(t, err)
	assert.InDelta(t, leg.Miles, back.Miles, 1e-9)

	same, err := g.Walk(context.Background(), pts[1], pts[1])
	require.NoError(t, err)
	assert.Equal(t, 0.0, same.Miles)
}

func TestGraph_Disconnected(t *testing.T) {
	g, pts := testGraph()
	_, err := g.Walk(context.Background(), pts[0], pts[3])
	assert.ErrorIs(t, err, walking.ErrNoPath)
}

func TestGraph_OffNetwork(t *testing.T) {
	g, pts := testGraph()
	far := utils.OffsetFeet(origin, 10*utils.FeetPerMile, 0)
	_, err := g.Walk(context.Background(), pts[0], far)
	assert.ErrorIs(t, err, walking.ErrOffNetwork)
}

type stubEstimator struct {
	calls atomic.Int32
	leg   walking.Leg
	err   error
	block bool
}

func (s *stubEstimator) Walk(ctx context.Context, _, _ utils.Coordinate) (walking.Leg, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return walking.Leg{}, ctx.Err()
	}
	return s.leg, s.err
}

func TestFallback(t *testing.T) {
	secondary := &stubEstimator{leg: walking.Leg{Miles: 2, Minutes: 30}}
	dest := utils.OffsetFeet(origin, 1000, 0)

	tests := []struct {
		name       string
		primary    *stubEstimator
		wantLeg    walking.Leg
		wantErr    error
		usesSecond bool
	}{
		{name: "primary ok", primary: &stubEstimator{leg: walking.Leg{Miles: 1, Minutes: 15}}, wantLeg: walking.Leg{Miles: 1, Minutes: 15}},
		{name: "primary fails", primary: &stubEstimator{err: errors.New("boom")}, wantLeg: secondary.leg, usesSecond: true},
		{name: "no path is data", primary: &stubEstimator{err: walking.ErrNoPath}, wantErr: walking.ErrNoPath},
		{name: "primary times out", primary: &stubEstimator{block: true}, wantLeg: secondary.leg, usesSecond: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := secondary.calls.Load()
			f := walking.WithFallback(tt.primary, secondary, 20*time.Millisecond)
			leg, err := f.Walk(context.Background(), origin, dest)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantLeg, leg)
			}
			assert.Equal(t, tt.usesSecond, secondary.calls.Load() > before)
		})
	}
}

func TestFallback_CallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	secondary := &stubEstimator{}
	f := walking.WithFallback(&stubEstimator{block: true}, secondary, time.Second)
	_, err := f.Walk(ctx, origin, origin)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), secondary.calls.Load())
}

func TestCached(t *testing.T) {
	inner := &stubEstimator{leg: walking.Leg{Miles: 1, Minutes: 15}}
	c := walking.NewCached(inner)
	dest := utils.OffsetFeet(origin, 1000, 0)

	for i := 0; i < 5; i++ {
		leg, err := c.Walk(context.Background(), origin, dest)
		require.NoError(t, err)
		assert.Equal(t, inner.leg, leg)
	}
	// sub-metre jitter hits the same entry
	jitter := utils.Coordinate{Lat: origin.Lat + 1e-7, Lon: origin.Lon}
	_, _ = c.Walk(context.Background(), jitter, dest)

	assert.Equal(t, int32(1), inner.calls.Load())
	hits, misses := c.Stats()
	assert.Equal(t, int64(5), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCached_NoPathStoredErrorsNot(t *testing.T) {
	noPath := &stubEstimator{err: walking.ErrNoPath}
	c := walking.NewCached(noPath)
	for i := 0; i < 3; i++ {
		_, err := c.Walk(context.Background(), origin, origin)
		assert.ErrorIs(t, err, walking.ErrNoPath)
	}
	assert.Equal(t, int32(1), noPath.calls.Load())

	flaky := &stubEstimator{err: errors.New("timeout")}
	c2 := walking.NewCached(flaky)
	for i := 0; i < 3; i++ {
		_, err := c2.Walk(context.Background(), origin, origin)
		assert.Error(t, err)
	}
	assert.Equal(t, int32(3), flaky.calls.Load())
}
