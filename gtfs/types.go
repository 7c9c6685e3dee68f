package gtfs

import (
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// Stop is a boarding location. Position in Index.Stops() is its handle.
type Stop struct {
	ID     string
	Name   string
	Coord  utils.Coordinate
	Routes []string
}

// StopTime is one scheduled call of a trip, times in minutes from the service-day epoch
type StopTime struct {
	Stop      int
	Arrival   float64
	Departure float64
}

// Trip is a single scheduled vehicle run restricted to the analyzed service day
type Trip struct {
	ID        string
	RouteID   string
	ServiceID string
	Headsign  string
	StopTimes []StopTime
}

// Departure is a trip leaving a stop. Pos is the call's position within the trip.
type Departure struct {
	Trip int
	Pos  int
	Time float64
}

// StopWalk is a stop reachable on foot from some coordinate
type StopWalk struct {
	Stop    int
	Miles   float64
	Minutes float64
}

// Route carries the descriptive fields of routes.txt used in reports
type Route struct {
	ID        string
	ShortName string
	LongName  string
	Type      int
}

// DisplayName returns the short name, falling back to the long name and the ID
func (r Route) DisplayName() string {
	if r.ShortName != "" {
		return r.ShortName
	}
	if r.LongName != "" {
		return r.LongName
	}
	return r.ID
}
