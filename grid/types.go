package grid

import (
	"context"
	"fmt"
	"time"

	"github.com/theoremus-urban-solutions/commute-score/analyzer"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// Status of an evaluated point
type Status string

const (
	StatusOK     Status = "ok"
	StatusNoData Status = "no_data"
)

// StopReason says why expansion ended
type StopReason string

const (
	// StopThreshold: every point of the last ring was over the threshold, unreachable or failed
	StopThreshold StopReason = "threshold_exceeded"
	// StopMaxRings: the configured ring cap was reached
	StopMaxRings StopReason = "max_rings"
	// StopExhausted: the local policy found no point to expand from
	StopExhausted StopReason = "exhausted"
	// StopCancelled: the run was interrupted; only completed rings are kept
	StopCancelled StopReason = "cancelled"
)

// Finished reports whether a grid with this reason can not be continued
func (r StopReason) Finished() bool {
	return r == StopThreshold || r == StopMaxRings || r == StopExhausted
}

// Policy selects which cells the next ring is grown from
type Policy string

const (
	// PolicyRing grows from every cell of the previous ring
	PolicyRing Policy = "ring"
	// PolicyLocal grows only from cells that scored within the threshold
	PolicyLocal Policy = "local"
)

// Point is one evaluated lattice cell
type Point struct {
	Cell       Cell                    `json:"cell"`
	Ring       int                     `json:"ring"`
	Coordinate utils.Coordinate        `json:"coordinate"`
	Status     Status                  `json:"status"`
	Score      *analyzer.LocationScore `json:"score,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// Within reports whether the point scored at or under the threshold
func (p Point) Within(threshold float64) bool {
	return p.Status == StatusOK && !p.Score.Unreachable() && p.Score.P80 <= threshold
}

// PointFailure is a point that could not be evaluated. It is recorded as
// no data and never aborts a run.
type PointFailure struct {
	Cell       Cell
	Coordinate utils.Coordinate
	Err        error
}

func (f *PointFailure) Error() string {
	return fmt.Sprintf("point %s at %s: %v", f.Cell, f.Coordinate, f.Err)
}

func (f *PointFailure) Unwrap() error { return f.Err }

// Grid is the result of an expansion run. Points are appended ring by ring
// and never modified.
type Grid struct {
	RunID            string           `json:"run_id"`
	Destination      utils.Coordinate `json:"destination"`
	SpacingFeet      float64          `json:"spacing_feet"`
	ThresholdMinutes float64          `json:"threshold_minutes"`
	Policy           Policy           `json:"policy"`
	Points           []Point          `json:"points"`
	// Rings is the number of completed rings
	Rings      int        `json:"rings"`
	StopReason StopReason `json:"stop_reason"`
	Started    time.Time  `json:"started"`
	Finished   time.Time  `json:"finished"`
}

// Ring returns the points of one completed ring
func (g *Grid) Ring(n int) []Point {
	var out []Point
	for _, p := range g.Points {
		if p.Ring == n {
			out = append(out, p)
		}
	}
	return out
}

// Failures returns the points without data
func (g *Grid) Failures() []Point {
	var out []Point
	for _, p := range g.Points {
		if p.Status == StatusNoData {
			out = append(out, p)
		}
	}
	return out
}

// RingReport is handed to the progress callback after each ring
type RingReport struct {
	Ring           int
	Points         int
	UnderThreshold int
	Failed         int
	MinP80         float64
	MaxP80         float64
	Elapsed        time.Duration
}

// Scorer evaluates one location
type Scorer interface {
	Analyze(ctx context.Context, location utils.Coordinate) (analyzer.LocationScore, error)
}

// Checkpointer persists completed rings
type Checkpointer interface {
	SaveRing(ctx context.Context, g *Grid, ring int, points []Point) error
}
