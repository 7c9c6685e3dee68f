package analyzer_test

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/commute-score/analyzer"
	"github.com/theoremus-urban-solutions/commute-score/internal/testfeed"
	"github.com/theoremus-urban-solutions/commute-score/router"
	"github.com/theoremus-urban-solutions/commute-score/utils"
	"github.com/theoremus-urban-solutions/commute-score/walking"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{"median of even count", []float64{1, 2, 3, 4}, 50, 2.5},
		{"interpolated", []float64{1, 2, 3, 4}, 80, 3.4},
		{"lowest", []float64{1, 2, 3, 4}, 0, 1},
		{"highest", []float64{1, 2, 3, 4}, 100, 4},
		{"single value", []float64{7}, 90, 7},
		{"exact rank", []float64{10, 20, 30, 40, 50}, 75, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, analyzer.Percentile(tt.values, tt.p), 1e-9)
		})
	}
	assert.True(t, math.IsNaN(analyzer.Percentile(nil, 50)))
}

func samples(values []float64, reachable func(i int) bool) []analyzer.Sample {
	out := make([]analyzer.Sample, len(values))
	for i, v := range values {
		out[i] = analyzer.Sample{Depart: 360 + float64(i), Elapsed: v, Reachable: reachable(i)}
	}
	return out
}

func TestSummarize_AllUnreachable(t *testing.T) {
	none := func(int) bool { return false }
	set := analyzer.SampleSet{
		Outbound: samples(make([]float64, 780), none),
		Inbound:  samples(make([]float64, 780), none),
	}
	score, err := analyzer.Summarize(set, 90)
	require.NoError(t, err)
	assert.Equal(t, 1560, score.Samples)
	assert.Equal(t, 0.0, score.ReachableFraction)
	assert.True(t, score.Unreachable())
	for _, v := range []float64{score.Min, score.Median, score.P80, score.P90, score.Max, score.Mean} {
		assert.Equal(t, 90.0, v)
	}
	assert.Equal(t, 0.0, score.StdDev)
	assert.Equal(t, 0, score.Outbound.Reachable)
	assert.Equal(t, 90.0, score.Inbound.Median)
}

func TestSummarize_PercentilesMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := make([]float64, 780)
	for i := range values {
		values[i] = 20 + rng.Float64()*60
	}
	sometimes := func(i int) bool { return i%7 != 0 }
	set := analyzer.SampleSet{Outbound: samples(values, sometimes), Inbound: samples(values, sometimes)}

	score, err := analyzer.Summarize(set, 120)
	require.NoError(t, err)
	ordered := []float64{score.Min}
	for _, p := range analyzer.ReportedPercentiles {
		ordered = append(ordered, score.Percentiles[p])
	}
	ordered = append(ordered, score.Max)
	assert.True(t, sort.Float64sAreSorted(ordered), "percentiles out of order: %v", ordered)
	assert.Equal(t, score.Percentiles[50], score.Median)
	assert.Equal(t, score.Percentiles[80], score.P80)
	assert.Equal(t, 120.0, score.Max)
	assert.InDelta(t, float64(1560-2*112)/1560, score.ReachableFraction, 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	_, err := analyzer.Summarize(analyzer.SampleSet{}, 90)
	assert.ErrorIs(t, err, analyzer.ErrEmptySamples)
}

var home = utils.Coordinate{Lat: 42.3601, Lon: -71.0589}

func at(northMiles float64) utils.Coordinate {
	return utils.OffsetFeet(home, northMiles*utils.FeetPerMile, 0)
}

// corridor runs buses both ways between a stop a mile from home and a stop
// 0.2 miles from work, every 15 minutes during the morning only
func corridor(t *testing.T) (*router.Router, utils.Coordinate) {
	idx := testfeed.New().
		Stop("S1", at(1)).
		Stop("S2", at(5)).
		Headway("N", 360, 540, 15, []string{"S1", "S2"}, []float64{0, 10}).
		Headway("S", 360, 540, 15, []string{"S2", "S1"}, []float64{0, 10}).
		Index(t)
	r := router.NewRouter(idx, walking.NewStraightLine(3, 1), router.Options{
		MaxWalkToStopMiles:     1.1,
		MaxTransfers:           1,
		MaxTransferWaitMinutes: 20,
		MaxTripTimeMinutes:     90,
	})
	return r, at(5.2)
}

func fullDay() analyzer.Options {
	return analyzer.Options{WindowStart: 360, WindowEnd: 1140, Penalty: 90, Workers: 4}
}

func TestAnalyze_SampleCount(t *testing.T) {
	r, work := corridor(t)
	a := analyzer.NewAnalyzer(r, work, fullDay())

	set, err := a.Sample(context.Background(), home)
	require.NoError(t, err)
	require.Len(t, set.Outbound, 780)
	require.Len(t, set.Inbound, 780)
	assert.Equal(t, 1560, set.Len())
	for i, s := range set.Outbound {
		assert.Equal(t, 360+float64(i), s.Depart)
	}
	// buses stop after 09:00, so the afternoon is unreachable both ways
	assert.True(t, set.Outbound[0].Reachable)
	assert.False(t, set.Outbound[700].Reachable)
	assert.True(t, set.Inbound[10].Reachable)
	assert.False(t, set.Inbound[700].Reachable)
}

func TestAnalyze_Idempotent(t *testing.T) {
	r, work := corridor(t)
	a := analyzer.NewAnalyzer(r, work, fullDay())

	first, err := a.Analyze(context.Background(), home)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), home)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, home, first.Coordinate)
	assert.Greater(t, first.ReachableFraction, 0.0)
	assert.Less(t, first.ReachableFraction, 1.0)
	// most of the day is unreachable, so the score sits at the penalty
	assert.Equal(t, 90.0, first.P80)
	assert.GreaterOrEqual(t, first.Min, 34-0.05)
}

func TestAnalyze_MorningOnly(t *testing.T) {
	r, work := corridor(t)
	opts := fullDay()
	opts.WindowEnd = 480
	a := analyzer.NewAnalyzer(r, work, opts)

	score, err := a.Analyze(context.Background(), home)
	require.NoError(t, err)
	assert.Equal(t, 240, score.Samples)
	assert.Equal(t, 1.0, score.ReachableFraction)
	assert.Less(t, score.P80, 50.0)
	assert.Equal(t, 120, score.Outbound.Reachable)
}

func TestAnalyze_UnreachableLocation(t *testing.T) {
	r, work := corridor(t)
	a := analyzer.NewAnalyzer(r, work, fullDay())

	score, err := a.Analyze(context.Background(), at(-20))
	require.NoError(t, err)
	assert.True(t, score.Unreachable())
	assert.Equal(t, 90.0, score.P80)
	assert.Equal(t, 90.0, score.Min)
}

func TestAnalyze_Cancelled(t *testing.T) {
	r, work := corridor(t)
	a := analyzer.NewAnalyzer(r, work, fullDay())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, home)
	assert.ErrorIs(t, err, context.Canceled)
}
