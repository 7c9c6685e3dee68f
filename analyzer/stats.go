package analyzer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// ErrEmptySamples is returned when there is nothing to summarise
var ErrEmptySamples = errors.New("no samples")

// ReportedPercentiles are the percentiles every score carries
var ReportedPercentiles = []int{10, 25, 50, 75, 80, 90, 95}

// Percentile returns the p-th percentile (p in [0,100]) of ascending values,
// interpolating linearly between the closest ranks
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := lo + 1
	if hi >= n {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Summarize reduces a sample set to a location score. The coordinate and
// ring are left for the caller.
func Summarize(set SampleSet, penalty float64) (LocationScore, error) {
	values := set.Values(penalty)
	if len(values) == 0 {
		return LocationScore{}, ErrEmptySamples
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	data := stats.Float64Data(sorted)
	mean, err := stats.Mean(data)
	if err != nil {
		return LocationScore{}, fmt.Errorf("mean: %w", err)
	}
	stdDev, err := stats.StandardDeviationPopulation(data)
	if err != nil {
		return LocationScore{}, fmt.Errorf("standard deviation: %w", err)
	}
	minimum, _ := stats.Min(data)
	maximum, _ := stats.Max(data)

	score := LocationScore{
		Samples:           len(values),
		ReachableFraction: float64(set.Reachable()) / float64(len(values)),
		Min:               minimum,
		Median:            Percentile(sorted, 50),
		P80:               Percentile(sorted, 80),
		P90:               Percentile(sorted, 90),
		Max:               maximum,
		Mean:              mean,
		StdDev:            stdDev,
		Percentiles:       make(map[int]float64, len(ReportedPercentiles)),
		Outbound:          directionStats(set.Outbound, penalty),
		Inbound:           directionStats(set.Inbound, penalty),
	}
	for _, p := range ReportedPercentiles {
		score.Percentiles[p] = Percentile(sorted, float64(p))
	}
	return score, nil
}

func directionStats(samples []Sample, penalty float64) DirectionStats {
	ds := DirectionStats{Samples: len(samples), Reachable: countReachable(samples), Median: math.NaN()}
	if len(samples) == 0 {
		return ds
	}
	median, err := stats.Median(appendValues(nil, samples, penalty))
	if err == nil {
		ds.Median = median
	}
	return ds
}
