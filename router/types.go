package router

import (
	"fmt"

	"github.com/theoremus-urban-solutions/commute-score/config"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// Direction of travel relative to the fixed destination
type Direction int

const (
	// Outbound is location to destination
	Outbound Direction = iota
	// Inbound is destination to location
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// Kind classifies a path. Lower kinds win ties on elapsed time.
type Kind int

const (
	WalkOnly Kind = iota
	Direct
	OneTransfer
	NoRoute
)

func (k Kind) String() string {
	switch k {
	case WalkOnly:
		return "walk-only"
	case Direct:
		return "direct"
	case OneTransfer:
		return "one-transfer"
	}
	return "unreachable"
}

// LegMode is how a leg is travelled
type LegMode string

const (
	LegWalk LegMode = "walk"
	LegRide LegMode = "ride"
)

// Leg is one piece of a chosen path. From and To are stop IDs, or empty for
// the query's origin and destination.
type Leg struct {
	Mode    LegMode
	From    string
	To      string
	TripID  string
	RouteID string
	Depart  float64
	Arrive  float64
	Miles   float64
}

// Query asks for the fastest path leaving Origin at Depart
type Query struct {
	Origin      utils.Coordinate
	Destination utils.Coordinate
	Depart      float64
	Direction   Direction
}

// Result is the fastest admissible path for a query, or an unreachable marker
type Result struct {
	Reachable bool
	Depart    float64
	Arrival   float64
	Elapsed   float64
	Kind      Kind
	Legs      []Leg
}

func (r Result) String() string {
	if !r.Reachable {
		return fmt.Sprintf("%s unreachable", utils.FormatClock(r.Depart))
	}
	return fmt.Sprintf("%s -> %s %.1f min %s", utils.FormatClock(r.Depart), utils.FormatClock(r.Arrival), r.Elapsed, r.Kind)
}

// Options are the routing constraints
type Options struct {
	MaxWalkToStopMiles     float64
	MaxTransfers           int
	MaxTransferWaitMinutes float64
	MaxTripTimeMinutes     float64
}

// OptionsFromConfig extracts routing constraints from the application config
func OptionsFromConfig(cfg config.AppConfig) Options {
	return Options{
		MaxWalkToStopMiles:     cfg.MaxWalkToStopMiles,
		MaxTransfers:           cfg.MaxTransfers,
		MaxTransferWaitMinutes: cfg.MaxTransferWaitMinutes,
		MaxTripTimeMinutes:     cfg.MaxTripTimeMinutes,
	}
}
