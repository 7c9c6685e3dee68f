package commutescore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/commute-score/config"
	"github.com/theoremus-urban-solutions/commute-score/gtfs"
	"github.com/theoremus-urban-solutions/commute-score/walking"
)

// LoadIndex returns the schedule index for the configured feed and service
// day. A snapshot built for the same service day is used when present;
// otherwise the feed is parsed and, if a snapshot path is set, saved.
func LoadIndex(ctx context.Context, cfg config.GTFSConfig) (*gtfs.Index, error) {
	sel, err := gtfs.ParseServiceSelector(cfg.ServiceDay, cfg.AnalysisDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	if cfg.SnapshotPath != "" {
		index, err := gtfs.DeserializeIndexFromFile(cfg.SnapshotPath)
		switch {
		case err == nil && index.Matches(sel):
			log.Info().Str("path", cfg.SnapshotPath).Int("stops", index.NumStops()).Msg("Loaded schedule snapshot")
			return index, nil
		case err == nil:
			log.Info().Str("snapshot", index.Selector().String()).Str("wanted", sel.String()).Msg("Snapshot is for another service day, rebuilding")
		case errors.Is(err, fs.ErrNotExist):
		default:
			log.Warn().Err(err).Str("path", cfg.SnapshotPath).Msg("Ignoring unreadable snapshot")
		}
	}

	source := cfg.Path
	if source == "" {
		source = cfg.URL
	}
	if source == "" {
		return nil, fmt.Errorf("%w: no gtfs path or url", config.ErrInvalidConfig)
	}
	started := time.Now()
	feed, err := gtfs.NewFetcher(time.Duration(cfg.TimeoutMS)*time.Millisecond).Load(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	index, err := gtfs.Build(feed, sel)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("feed", source).
		Str("service", sel.String()).
		Int("stops", index.NumStops()).
		Int("trips", len(index.Trips())).
		Dur("took", time.Since(started)).
		Msg("Built schedule index")

	if cfg.SnapshotPath != "" {
		if err := gtfs.SerializeIndexToFile(index, cfg.SnapshotPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.SnapshotPath).Msg("Failed to save schedule snapshot")
		}
	}
	return index, nil
}

// NewWalker builds the configured walking estimator: the street graph with a
// straight-line fallback when a graph is configured, straight line alone
// otherwise. Results are memoized.
func NewWalker(cfg config.AppConfig) (walking.Estimator, error) {
	straight := walking.NewStraightLine(cfg.WalkingSpeedMPH, cfg.Walking.DetourFactor)
	if cfg.Walking.StreetGraphPath == "" {
		return walking.NewCached(straight), nil
	}
	dir := cfg.Walking.StreetGraphPath
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("street graph: %w", err)
	}
	graph, err := walking.LoadGraphCSV(filepath.Join(dir, "nodes.csv"), filepath.Join(dir, "edges.csv"), cfg.WalkingSpeedMPH)
	if err != nil {
		return nil, fmt.Errorf("street graph: %w", err)
	}
	log.Info().Str("path", dir).Int("nodes", graph.NumNodes()).Msg("Loaded street graph")
	timeout := time.Duration(cfg.Walking.TimeoutMS) * time.Millisecond
	return walking.NewCached(walking.WithFallback(graph, straight, timeout)), nil
}
