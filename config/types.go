package config

import (
	"time"

	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// DestinationConfig identifies the fixed destination, by address, by coordinate or both
type DestinationConfig struct {
	Address string  `yaml:"address"`
	Lat     float64 `yaml:"lat" validate:"omitempty,latitude"`
	Lon     float64 `yaml:"lon" validate:"omitempty,longitude"`
}

// HasCoordinate reports whether lat/lon were given explicitly
func (d DestinationConfig) HasCoordinate() bool { return d.Lat != 0 || d.Lon != 0 }

// Coordinate returns the configured destination coordinate
func (d DestinationConfig) Coordinate() utils.Coordinate {
	return utils.Coordinate{Lat: d.Lat, Lon: d.Lon}
}

// GTFSConfig contains GTFS static feed configuration
type GTFSConfig struct {
	Path         string `yaml:"path"`
	URL          string `yaml:"url" validate:"omitempty,url"`
	ServiceDay   string `yaml:"service_day" validate:"oneof=weekday saturday sunday"`
	AnalysisDate string `yaml:"analysis_date" validate:"omitempty,datetime=2006-01-02"`
	SnapshotPath string `yaml:"snapshot_path"`
	TimeoutMS    int    `yaml:"timeoutMS" validate:"gte=0"`
}

// WalkingConfig contains walking estimator configuration
type WalkingConfig struct {
	DetourFactor float64 `yaml:"detour_factor" validate:"gte=1"`
	// StreetGraphPath is a directory holding nodes.csv and edges.csv
	StreetGraphPath string `yaml:"street_graph"`
	TimeoutMS       int    `yaml:"timeoutMS" validate:"gte=0"`
}

// GridConfig contains grid expansion configuration
type GridConfig struct {
	Workers         int    `yaml:"workers" validate:"gt=0"`
	SampleWorkers   int    `yaml:"sample_workers" validate:"gte=0"`
	MaxRings        int    `yaml:"max_rings" validate:"gte=0"`
	ExpansionPolicy string `yaml:"expansion_policy" validate:"oneof=ring local"`
	PointTimeoutMS  int    `yaml:"point_timeoutMS" validate:"gte=0"`
	CheckpointPath  string `yaml:"checkpoint_path"`
}

// PointTimeout returns the per-point evaluation budget, zero meaning unbounded
func (g GridConfig) PointTimeout() time.Duration {
	return time.Duration(g.PointTimeoutMS) * time.Millisecond
}

// KnownLocation pins an address to a coordinate so it never reaches the geocoder
type KnownLocation struct {
	Address string  `yaml:"address" validate:"required"`
	Lat     float64 `yaml:"lat" validate:"latitude"`
	Lon     float64 `yaml:"lon" validate:"longitude"`
}

// GeocoderConfig contains geocoding service configuration
type GeocoderConfig struct {
	URL            string          `yaml:"url" validate:"omitempty,url"`
	UserAgent      string          `yaml:"user_agent"`
	TimeoutMS      int             `yaml:"timeoutMS" validate:"gte=0"`
	MaxRetries     int             `yaml:"max_retries" validate:"gte=0"`
	RedisAddress   string          `yaml:"redis_address"`
	CacheTTLHours  int             `yaml:"cache_ttl_hours" validate:"gte=0"`
	KnownLocations []KnownLocation `yaml:"known_locations" validate:"dive"`
}

// OutputConfig contains dataset export paths
type OutputConfig struct {
	JSONPath   string `yaml:"json_path"`
	CSVPath    string `yaml:"csv_path"`
	KMLPath    string `yaml:"kml_path"`
	SQLitePath string `yaml:"sqlite_path"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Destination DestinationConfig `yaml:"destination"`

	WalkingSpeedMPH           float64 `yaml:"walking_speed_mph" validate:"gt=0"`
	MaxWalkToStopMiles        float64 `yaml:"max_walk_to_stop_miles" validate:"gt=0"`
	MaxTransfers              int     `yaml:"max_transfers" validate:"gte=0,lte=1"`
	MaxTransferWaitMinutes    float64 `yaml:"max_transfer_wait_minutes" validate:"gte=0"`
	MaxTripTimeMinutes        float64 `yaml:"max_trip_time_minutes" validate:"gt=0"`
	TimeWindowStart           string  `yaml:"time_window_start" validate:"required"`
	TimeWindowEnd             string  `yaml:"time_window_end" validate:"required"`
	GridSpacingFeet           float64 `yaml:"grid_spacing_feet" validate:"gt=0"`
	MaxTimeThresholdMinutes   float64 `yaml:"max_time_threshold_minutes" validate:"gt=0"`
	UnreachablePenaltyMinutes float64 `yaml:"unreachable_penalty_minutes" validate:"gte=0"`

	GTFS     GTFSConfig     `yaml:"gtfs"`
	Walking  WalkingConfig  `yaml:"walking"`
	Grid     GridConfig     `yaml:"grid"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Output   OutputConfig   `yaml:"output"`
}

// Window returns the parsed sampling window in minutes from the service-day epoch
func (c AppConfig) Window() (start, end float64, err error) {
	if start, err = utils.ParseClock(c.TimeWindowStart); err != nil {
		return 0, 0, err
	}
	if end, err = utils.ParseClock(c.TimeWindowEnd); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Penalty returns the value unreachable samples contribute to statistics
func (c AppConfig) Penalty() float64 {
	if c.UnreachablePenaltyMinutes > 0 {
		return c.UnreachablePenaltyMinutes
	}
	return c.MaxTripTimeMinutes
}
