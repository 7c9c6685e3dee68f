package gtfs

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Warning type constants
const (
	WarningStopNoCoordinates  = "stop_no_coordinates"
	WarningStopTimeBadTime    = "stop_time_bad_time"
	WarningStopTimeNoTrip     = "stop_time_unknown_trip"
	WarningStopTimeSkipped    = "stop_time_skipped_stop"
	WarningTripTooShort       = "trip_too_short"
	WarningTripUnknownRoute   = "trip_unknown_route"
	WarningBadCalendarDates   = "calendar_bad_dates"
	WarningBadException       = "calendar_date_bad_exception"
	WarningCalendarDatesOnly  = "calendar_dates_only"
	WarningStationNotBoarding = "station_not_boarding"
)

// warningInfo holds aggregated information about a specific warning type
type warningInfo struct {
	count    int
	examples []string
}

// WarningAggregator collects recoverable feed problems during index build and
// logs one consolidated line per problem type
type WarningAggregator struct {
	mu       sync.Mutex
	warnings map[string]*warningInfo
}

// NewWarningAggregator creates a new warning aggregator
func NewWarningAggregator() *WarningAggregator {
	return &WarningAggregator{
		warnings: make(map[string]*warningInfo),
	}
}

// Add records a warning occurrence with an example ID
func (w *WarningAggregator) Add(warningType, exampleID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.warnings[warningType] == nil {
		w.warnings[warningType] = &warningInfo{
			examples: make([]string, 0, 3),
		}
	}

	info := w.warnings[warningType]
	info.count++

	// Store up to 3 examples
	if len(info.examples) < 3 {
		info.examples = append(info.examples, exampleID)
	}
}

// Count returns the number of occurrences recorded for a warning type
func (w *WarningAggregator) Count(warningType string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if info := w.warnings[warningType]; info != nil {
		return info.count
	}
	return 0
}

// LogAll outputs all collected warnings in consolidated format
func (w *WarningAggregator) LogAll(feedName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	types := make([]string, 0, len(w.warnings))
	for t := range w.warnings {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, warningType := range types {
		info := w.warnings[warningType]
		description, action := describeWarning(warningType)
		log.Warn().
			Str("feed", feedName).
			Str("warning", warningType).
			Int("count", info.count).
			Strs("examples", info.examples).
			Msgf("Feed has %s. %s", description, action)
	}
}

func describeWarning(warningType string) (description, action string) {
	switch warningType {
	case WarningStopNoCoordinates:
		return "stops with missing or invalid coordinates", "Excluding them from the index"
	case WarningStopTimeBadTime:
		return "stop times with unparseable arrival/departure", "Skipping those calls"
	case WarningStopTimeNoTrip:
		return "stop times for trips absent from trips.txt", "Skipping those calls"
	case WarningStopTimeSkipped:
		return "stop times at stops excluded from the index", "Skipping those calls"
	case WarningTripTooShort:
		return "trips with fewer than two timed calls", "Excluding them from the index"
	case WarningTripUnknownRoute:
		return "trips referencing routes absent from routes.txt", "Keeping them with the raw route ID"
	case WarningBadCalendarDates:
		return "calendar rows with invalid start/end dates", "Ignoring those rows"
	case WarningBadException:
		return "calendar_dates rows with an unknown exception_type", "Ignoring those rows"
	case WarningCalendarDatesOnly:
		return "services defined only in calendar_dates.txt", "Set an analysis date to include them"
	case WarningStationNotBoarding:
		return "stop times at parent stations", "Indexing them as ordinary stops"
	}
	return "unknown issue", "Continuing with fallback behavior"
}
