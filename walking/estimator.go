package walking

import (
	"context"
	"errors"

	"github.com/theoremus-urban-solutions/commute-score/utils"
)

var (
	// ErrNoPath means the street network has no connection between the two points.
	// It is data, not a failure: callers treat the walk as unreachable.
	ErrNoPath = errors.New("no walking path")
	// ErrOffNetwork is returned when a point is too far from any street node to snap to
	ErrOffNetwork = errors.New("point is off the street network")
)

// Leg is the result of one walk
type Leg struct {
	Miles   float64
	Minutes float64
}

// Estimator returns the walking distance and time between two points.
// Implementations must be deterministic and safe for concurrent use.
type Estimator interface {
	Walk(ctx context.Context, from, to utils.Coordinate) (Leg, error)
}

// MinutesFor converts a distance to walking minutes at the given speed
func MinutesFor(miles, speedMPH float64) float64 {
	return miles / speedMPH * 60
}

// StraightLine estimates walks as great-circle distance scaled by a detour factor
type StraightLine struct {
	SpeedMPH     float64
	DetourFactor float64
}

// NewStraightLine creates a straight-line estimator. A detour factor below 1 is treated as 1.
func NewStraightLine(speedMPH, detourFactor float64) *StraightLine {
	if detourFactor < 1 {
		detourFactor = 1
	}
	return &StraightLine{SpeedMPH: speedMPH, DetourFactor: detourFactor}
}

func (s *StraightLine) Walk(_ context.Context, from, to utils.Coordinate) (Leg, error) {
	miles := utils.HaversineMiles(from, to) * s.DetourFactor
	return Leg{Miles: miles, Minutes: MinutesFor(miles, s.SpeedMPH)}, nil
}
