package analyzer

import (
	"github.com/theoremus-urban-solutions/commute-score/router"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// Sample is the outcome of one sampled departure
type Sample struct {
	Depart    float64     `json:"depart"`
	Elapsed   float64     `json:"elapsed"`
	Reachable bool        `json:"reachable"`
	Kind      router.Kind `json:"kind"`
}

// SampleSet holds one sample per minute of the window for each direction,
// in sweep order. Unreachable samples are kept, never dropped.
type SampleSet struct {
	Outbound []Sample
	Inbound  []Sample
}

// Len is the total number of samples in both directions
func (s SampleSet) Len() int { return len(s.Outbound) + len(s.Inbound) }

// Values returns every sample's elapsed minutes, outbound first, with
// unreachable samples replaced by penalty
func (s SampleSet) Values(penalty float64) []float64 {
	out := make([]float64, 0, s.Len())
	out = appendValues(out, s.Outbound, penalty)
	return appendValues(out, s.Inbound, penalty)
}

func appendValues(dst []float64, samples []Sample, penalty float64) []float64 {
	for _, sm := range samples {
		if sm.Reachable {
			dst = append(dst, sm.Elapsed)
		} else {
			dst = append(dst, penalty)
		}
	}
	return dst
}

// Reachable counts the reachable samples in both directions
func (s SampleSet) Reachable() int {
	return countReachable(s.Outbound) + countReachable(s.Inbound)
}

func countReachable(samples []Sample) int {
	n := 0
	for _, sm := range samples {
		if sm.Reachable {
			n++
		}
	}
	return n
}

// DirectionStats summarises one direction of travel
type DirectionStats struct {
	Samples   int     `json:"samples"`
	Reachable int     `json:"reachable"`
	Median    float64 `json:"median"`
}

// LocationScore is the commute score of one location. P80 is the primary
// score; all statistics count unreachable samples at the penalty value.
type LocationScore struct {
	Coordinate        utils.Coordinate `json:"coordinate"`
	Ring              int              `json:"ring"`
	Samples           int              `json:"samples"`
	ReachableFraction float64          `json:"reachable_fraction"`
	Min               float64          `json:"min"`
	Median            float64          `json:"median"`
	P80               float64          `json:"p80"`
	P90               float64          `json:"p90"`
	Max               float64          `json:"max"`
	Mean              float64          `json:"mean"`
	StdDev            float64          `json:"std_dev"`
	Percentiles       map[int]float64  `json:"percentiles"`
	Outbound          DirectionStats   `json:"outbound"`
	Inbound           DirectionStats   `json:"inbound"`
}

// Score is the primary commute score, the 80th percentile
func (l LocationScore) Score() float64 { return l.P80 }

// Unreachable reports whether no sample in either direction reached
func (l LocationScore) Unreachable() bool { return l.ReachableFraction == 0 }
