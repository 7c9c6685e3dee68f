package commutescore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/commute-score/analyzer"
	"github.com/theoremus-urban-solutions/commute-score/config"
	"github.com/theoremus-urban-solutions/commute-score/formatter"
	"github.com/theoremus-urban-solutions/commute-score/geocode"
	"github.com/theoremus-urban-solutions/commute-score/grid"
	"github.com/theoremus-urban-solutions/commute-score/gtfs"
	"github.com/theoremus-urban-solutions/commute-score/router"
	"github.com/theoremus-urban-solutions/commute-score/utils"
	"github.com/theoremus-urban-solutions/commute-score/walking"
)

// Engine scores locations against the configured destination
type Engine struct {
	cfg         config.AppConfig
	destination utils.Coordinate
	index       *gtfs.Index
	router      *router.Router
	analyzer    *analyzer.Analyzer
}

// NewEngine loads the schedule and street network and resolves the
// destination, geocoding its address when no coordinate is configured
func NewEngine(ctx context.Context, cfg config.AppConfig, geocoder geocode.Geocoder) (*Engine, error) {
	dest, err := ResolveDestination(ctx, cfg.Destination, geocoder)
	if err != nil {
		return nil, err
	}
	index, err := LoadIndex(ctx, cfg.GTFS)
	if err != nil {
		return nil, err
	}
	walker, err := NewWalker(cfg)
	if err != nil {
		return nil, err
	}
	return NewEngineWith(cfg, dest, index, walker)
}

// NewEngineWith assembles an engine from already loaded parts
func NewEngineWith(cfg config.AppConfig, destination utils.Coordinate, index *gtfs.Index, walker walking.Estimator) (*Engine, error) {
	opts, err := analyzer.OptionsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	r := router.NewRouter(index, walker, router.OptionsFromConfig(cfg))
	return &Engine{
		cfg:         cfg,
		destination: destination,
		index:       index,
		router:      r,
		analyzer:    analyzer.NewAnalyzer(r, destination, opts),
	}, nil
}

// ResolveDestination returns the configured destination coordinate, or
// geocodes its address
func ResolveDestination(ctx context.Context, d config.DestinationConfig, geocoder geocode.Geocoder) (utils.Coordinate, error) {
	if d.HasCoordinate() {
		return d.Coordinate(), nil
	}
	if d.Address == "" {
		return utils.Coordinate{}, fmt.Errorf("%w: destination needs an address or coordinate", config.ErrInvalidConfig)
	}
	if geocoder == nil {
		return utils.Coordinate{}, fmt.Errorf("%w: destination address given without a geocoder", config.ErrInvalidConfig)
	}
	c, err := geocoder.Resolve(ctx, d.Address)
	if err != nil {
		return utils.Coordinate{}, fmt.Errorf("destination: %w", err)
	}
	log.Info().Str("address", d.Address).Str("coordinate", c.String()).Msg("Resolved destination")
	return c, nil
}

// Destination returns the fixed destination
func (e *Engine) Destination() utils.Coordinate { return e.destination }

// Index returns the schedule index
func (e *Engine) Index() *gtfs.Index { return e.index }

// AnalyzeLocation scores one location
func (e *Engine) AnalyzeLocation(ctx context.Context, location utils.Coordinate) (analyzer.LocationScore, error) {
	if !location.Valid() {
		return analyzer.LocationScore{}, fmt.Errorf("invalid coordinate %s", location)
	}
	return e.analyzer.Analyze(ctx, location)
}

// Route answers a single query; Direction picks which end is the origin
func (e *Engine) Route(ctx context.Context, location utils.Coordinate, depart float64, dir router.Direction) (router.Result, error) {
	q := router.Query{Origin: location, Destination: e.destination, Depart: depart, Direction: dir}
	if dir == router.Inbound {
		q.Origin, q.Destination = e.destination, location
	}
	return e.router.Route(ctx, q)
}

// GridOptions tunes a grid run beyond the configuration
type GridOptions struct {
	// OnRing receives progress after each ring
	OnRing func(grid.RingReport)
	// ResumeRunID continues a checkpointed run; "latest" picks the most recent
	ResumeRunID string
}

// GenerateGrid expands the grid around the destination, checkpointing and
// exporting as configured. A cancelled run still exports its completed rings
// and returns the context error.
func (e *Engine) GenerateGrid(ctx context.Context, opts GridOptions) (*grid.Grid, error) {
	gopts := grid.OptionsFromConfig(e.cfg)
	gopts.OnRing = opts.OnRing

	var store *grid.Store
	if path := e.checkpointPath(); path != "" {
		var err error
		if store, err = grid.OpenStore(ctx, path); err != nil {
			return nil, err
		}
		defer store.Close()
		gopts.Checkpoint = store
	}
	controller := grid.NewController(e.analyzer, e.destination, gopts)

	var (
		g   *grid.Grid
		err error
	)
	if opts.ResumeRunID != "" {
		if store == nil {
			return nil, fmt.Errorf("%w: resuming needs grid.checkpoint_path or output.sqlite_path", config.ErrInvalidConfig)
		}
		prior, lerr := e.loadRun(ctx, store, opts.ResumeRunID)
		if lerr != nil {
			return nil, lerr
		}
		g, err = controller.Continue(ctx, prior)
	} else {
		g, err = controller.Run(ctx)
	}
	if g == nil {
		return nil, err
	}

	// the run context may be gone, bookkeeping still has to land
	finishCtx := context.WithoutCancel(ctx)
	if store != nil && g.Rings > 0 {
		if ferr := store.Finish(finishCtx, g); ferr != nil {
			log.Warn().Err(ferr).Str("run", g.RunID).Msg("Failed to record run outcome")
		}
	}
	if xerr := e.export(g); xerr != nil {
		return g, errors.Join(err, xerr)
	}
	return g, err
}

func (e *Engine) checkpointPath() string {
	if e.cfg.Grid.CheckpointPath != "" {
		return e.cfg.Grid.CheckpointPath
	}
	return e.cfg.Output.SQLitePath
}

func (e *Engine) loadRun(ctx context.Context, store *grid.Store, runID string) (*grid.Grid, error) {
	if runID == "latest" {
		var err error
		if runID, err = store.LatestRun(ctx); err != nil {
			return nil, err
		}
	}
	return store.Load(ctx, runID)
}

func (e *Engine) export(g *grid.Grid) error {
	ds := formatter.BuildDataset(g, time.Now())
	b := formatter.NewDatasetBuilder()
	var errs []error
	for _, path := range []string{e.cfg.Output.JSONPath, e.cfg.Output.CSVPath, e.cfg.Output.KMLPath} {
		if path == "" {
			continue
		}
		if err := b.WriteFile(path, ds); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Info().Str("path", path).Int("points", len(ds.Records)).Msg("Wrote dataset")
	}
	return errors.Join(errs...)
}
