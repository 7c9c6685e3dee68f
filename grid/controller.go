package grid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/exp/slices"

	"github.com/theoremus-urban-solutions/commute-score/config"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// Options controls an expansion run
type Options struct {
	SpacingFeet      float64
	ThresholdMinutes float64
	Workers          int
	// MaxRings is the last ring evaluated, 0 for no limit
	MaxRings     int
	Policy       Policy
	PointTimeout time.Duration
	// OnRing is called after each completed ring
	OnRing     func(RingReport)
	Checkpoint Checkpointer
}

// OptionsFromConfig extracts the expansion options from the application config
func OptionsFromConfig(cfg config.AppConfig) Options {
	return Options{
		SpacingFeet:      cfg.GridSpacingFeet,
		ThresholdMinutes: cfg.MaxTimeThresholdMinutes,
		Workers:          cfg.Grid.Workers,
		MaxRings:         cfg.Grid.MaxRings,
		Policy:           Policy(cfg.Grid.ExpansionPolicy),
		PointTimeout:     cfg.Grid.PointTimeout(),
	}
}

// Controller grows a grid of scored points outward from the destination
// until a whole ring is over the threshold
type Controller struct {
	scorer      Scorer
	destination utils.Coordinate
	lattice     Lattice
	opts        Options
}

// NewController creates a controller
func NewController(scorer Scorer, destination utils.Coordinate, opts Options) *Controller {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Policy == "" {
		opts.Policy = PolicyRing
	}
	return &Controller{
		scorer:      scorer,
		destination: destination,
		lattice:     Lattice{Origin: destination, SpacingFeet: opts.SpacingFeet},
		opts:        opts,
	}
}

// Lattice returns the lattice points are placed on
func (c *Controller) Lattice() Lattice { return c.lattice }

// Run expands a new grid. On cancellation the grid of completed rings is
// returned together with the context error.
func (c *Controller) Run(ctx context.Context) (*Grid, error) {
	g := &Grid{
		RunID:            uuid.NewString(),
		Destination:      c.destination,
		SpacingFeet:      c.opts.SpacingFeet,
		ThresholdMinutes: c.opts.ThresholdMinutes,
		Policy:           c.opts.Policy,
		Started:          time.Now().UTC(),
	}
	return c.expand(ctx, g, []Cell{{}}, map[Cell]bool{{}: true})
}

// Continue resumes an interrupted grid from its last completed ring
func (c *Controller) Continue(ctx context.Context, prior *Grid) (*Grid, error) {
	if prior.StopReason.Finished() {
		return prior, nil
	}
	if prior.SpacingFeet != c.opts.SpacingFeet || prior.Destination != c.destination {
		return nil, fmt.Errorf("resume run %s: grid was laid out differently", prior.RunID)
	}
	if prior.ThresholdMinutes != c.opts.ThresholdMinutes || prior.Policy != c.opts.Policy {
		return nil, fmt.Errorf("resume run %s: run stops at %.1f min with %s policy, not %.1f min with %s",
			prior.RunID, prior.ThresholdMinutes, prior.Policy, c.opts.ThresholdMinutes, c.opts.Policy)
	}
	if prior.Rings == 0 {
		g := *prior
		g.Points = nil
		return c.expand(ctx, &g, []Cell{{}}, map[Cell]bool{{}: true})
	}

	g := *prior
	g.Points = append([]Point(nil), prior.Points...)
	g.StopReason = ""
	visited := make(map[Cell]bool, len(g.Points))
	for _, p := range g.Points {
		visited[p.Cell] = true
	}
	last := g.Ring(g.Rings - 1)
	if c.terminal(last) {
		g.StopReason = StopThreshold
		return &g, nil
	}
	frontier := c.next(last, visited)
	if len(frontier) == 0 {
		g.StopReason = StopExhausted
		return &g, nil
	}
	log.Info().Str("run", g.RunID).Int("ring", g.Rings).Msg("Resuming grid")
	return c.expand(ctx, &g, frontier, visited)
}

func (c *Controller) expand(ctx context.Context, g *Grid, frontier []Cell, visited map[Cell]bool) (*Grid, error) {
	for ring := g.Rings; ; ring++ {
		if err := ctx.Err(); err != nil {
			return c.stop(g, StopCancelled), err
		}
		started := time.Now()
		points, err := c.evaluate(ctx, ring, frontier)
		if err != nil {
			log.Warn().Str("run", g.RunID).Int("ring", ring).Err(err).Msg("Ring interrupted, discarding partial results")
			return c.stop(g, StopCancelled), err
		}
		if c.opts.Checkpoint != nil {
			if err := c.opts.Checkpoint.SaveRing(ctx, g, ring, points); err != nil {
				return c.stop(g, StopCancelled), fmt.Errorf("checkpoint ring %d: %w", ring, err)
			}
		}
		g.Points = append(g.Points, points...)
		g.Rings = ring + 1
		c.report(g.RunID, ring, points, time.Since(started))

		switch {
		case c.terminal(points):
			return c.stop(g, StopThreshold), nil
		case c.opts.MaxRings > 0 && ring >= c.opts.MaxRings:
			return c.stop(g, StopMaxRings), nil
		}
		frontier = c.next(points, visited)
		if len(frontier) == 0 {
			return c.stop(g, StopExhausted), nil
		}
	}
}

func (c *Controller) stop(g *Grid, reason StopReason) *Grid {
	g.StopReason = reason
	g.Finished = time.Now().UTC()
	log.Info().
		Str("run", g.RunID).
		Int("rings", g.Rings).
		Int("points", len(g.Points)).
		Str("reason", string(reason)).
		Msg("Grid expansion stopped")
	return g
}

// evaluate scores every cell of a ring. Either every point is returned or
// the ring is abandoned with the context error.
func (c *Controller) evaluate(ctx context.Context, ring int, cells []Cell) ([]Point, error) {
	p := pool.NewWithResults[Point]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(c.opts.Workers)
	for _, cell := range cells {
		cell := cell
		p.Go(func(ctx context.Context) (Point, error) {
			return c.evaluatePoint(ctx, ring, cell)
		})
	}
	points, err := p.Wait()
	if err != nil {
		return nil, err
	}
	slices.SortFunc(points, func(a, b Point) int { return lessCell(a.Cell, b.Cell) })
	return points, nil
}

func (c *Controller) evaluatePoint(ctx context.Context, ring int, cell Cell) (Point, error) {
	pt := Point{Cell: cell, Ring: ring, Coordinate: c.lattice.Coordinate(cell)}
	pctx := ctx
	if c.opts.PointTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, c.opts.PointTimeout)
		defer cancel()
	}
	score, err := c.scorer.Analyze(pctx, pt.Coordinate)
	if err != nil {
		if ctx.Err() != nil {
			return Point{}, ctx.Err()
		}
		failure := &PointFailure{Cell: cell, Coordinate: pt.Coordinate, Err: err}
		log.Warn().Err(failure).Msg("No data for point")
		pt.Status = StatusNoData
		pt.Error = failure.Error()
		return pt, nil
	}
	score.Ring = ring
	pt.Status = StatusOK
	pt.Score = &score
	return pt, nil
}

// terminal is true when no point of the ring is within the threshold
func (c *Controller) terminal(points []Point) bool {
	for _, p := range points {
		if p.Within(c.opts.ThresholdMinutes) {
			return false
		}
	}
	return true
}

// next returns the unvisited neighbours the following ring is made of, and
// marks them visited
func (c *Controller) next(points []Point, visited map[Cell]bool) []Cell {
	var out []Cell
	for _, p := range points {
		if c.opts.Policy == PolicyLocal && !p.Within(c.opts.ThresholdMinutes) {
			continue
		}
		for _, n := range p.Cell.Neighbors() {
			if !visited[n] {
				visited[n] = true
				out = append(out, n)
			}
		}
	}
	slices.SortFunc(out, lessCell)
	return out
}

func (c *Controller) report(runID string, ring int, points []Point, elapsed time.Duration) {
	r := RingReport{Ring: ring, Points: len(points), MinP80: math.Inf(1), MaxP80: math.Inf(-1), Elapsed: elapsed}
	for _, p := range points {
		if p.Status != StatusOK {
			r.Failed++
			continue
		}
		if p.Within(c.opts.ThresholdMinutes) {
			r.UnderThreshold++
		}
		r.MinP80 = math.Min(r.MinP80, p.Score.P80)
		r.MaxP80 = math.Max(r.MaxP80, p.Score.P80)
	}
	if r.Failed == r.Points {
		r.MinP80, r.MaxP80 = math.NaN(), math.NaN()
	}
	log.Info().
		Str("run", runID).
		Int("ring", ring).
		Int("points", r.Points).
		Int("under_threshold", r.UnderThreshold).
		Int("failed", r.Failed).
		Dur("took", elapsed).
		Msg("Ring complete")
	if c.opts.OnRing != nil {
		c.opts.OnRing(r)
	}
}

// IsCancelled reports whether err ended a run early
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
