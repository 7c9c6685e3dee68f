package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for any configuration that fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultPaths are searched in order when no explicit path is given
var DefaultPaths = []string{"config.yml", "config.yaml", "./configs/config.yml"}

// Load reads, defaults and validates a configuration file. An empty path
// tries $COMMUTE_SCORE_CONFIG, then DefaultPaths.
func Load(path string) (AppConfig, error) {
	paths := DefaultPaths
	if env := os.Getenv("COMMUTE_SCORE_CONFIG"); env != "" {
		paths = append([]string{env}, paths...)
	}
	if path != "" {
		paths = []string{path}
	}
	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return AppConfig{}, err
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the defaults and validates the result.
// Keys present in the document win, including explicit zeros.
func Parse(data []byte) (AppConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and the cross-field rules
func Validate(cfg AppConfig) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	start, end, err := cfg.Window()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if end <= start {
		return fmt.Errorf("%w: time window %s-%s is inverted or empty", ErrInvalidConfig, cfg.TimeWindowStart, cfg.TimeWindowEnd)
	}
	if cfg.UnreachablePenaltyMinutes != 0 && cfg.UnreachablePenaltyMinutes < cfg.MaxTripTimeMinutes {
		return fmt.Errorf("%w: unreachable_penalty_minutes %.0f is below max_trip_time_minutes %.0f",
			ErrInvalidConfig, cfg.UnreachablePenaltyMinutes, cfg.MaxTripTimeMinutes)
	}
	if cfg.GTFS.Path != "" && cfg.GTFS.URL != "" {
		return fmt.Errorf("%w: gtfs.path and gtfs.url are mutually exclusive", ErrInvalidConfig)
	}
	return nil
}

// Default returns a configuration populated with the documented defaults
func Default() AppConfig {
	return AppConfig{
		WalkingSpeedMPH:         4.0,
		MaxWalkToStopMiles:      0.5,
		MaxTransfers:            1,
		MaxTransferWaitMinutes:  20,
		MaxTripTimeMinutes:      90,
		TimeWindowStart:         "06:00",
		TimeWindowEnd:           "19:00",
		GridSpacingFeet:         500,
		MaxTimeThresholdMinutes: 60,
		GTFS: GTFSConfig{
			ServiceDay: "weekday",
			TimeoutMS:  60000,
		},
		Walking: WalkingConfig{
			DetourFactor: 1.3,
			TimeoutMS:    2000,
		},
		Grid: GridConfig{
			Workers:         8,
			ExpansionPolicy: "ring",
		},
		Geocoder: GeocoderConfig{
			URL:           "https://nominatim.openstreetmap.org/search",
			UserAgent:     "commute-score",
			TimeoutMS:     10000,
			MaxRetries:    3,
			CacheTTLHours: 24 * 30,
		},
	}
}
