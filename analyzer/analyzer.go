package analyzer

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/theoremus-urban-solutions/commute-score/config"
	"github.com/theoremus-urban-solutions/commute-score/router"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// minutes routed by one pool task
const chunkMinutes = 60

// Options controls sampling
type Options struct {
	// WindowStart and WindowEnd bound the sampled departures, [start, end)
	WindowStart float64
	WindowEnd   float64
	// Penalty is what an unreachable sample counts as
	Penalty float64
	Workers int
}

// OptionsFromConfig extracts the sampling options from the application config
func OptionsFromConfig(cfg config.AppConfig) (Options, error) {
	start, end, err := cfg.Window()
	if err != nil {
		return Options{}, err
	}
	return Options{
		WindowStart: start,
		WindowEnd:   end,
		Penalty:     cfg.Penalty(),
		Workers:     cfg.Grid.SampleWorkers,
	}, nil
}

// Minutes is the number of samples per direction
func (o Options) Minutes() int {
	return int(math.Ceil(o.WindowEnd - o.WindowStart))
}

// Analyzer scores locations against one fixed destination
type Analyzer struct {
	router      *router.Router
	destination utils.Coordinate
	opts        Options

	egressMu sync.Mutex
	egress   *router.Egress
}

// NewAnalyzer creates an analyzer for the destination
func NewAnalyzer(r *router.Router, destination utils.Coordinate, opts Options) *Analyzer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Analyzer{router: r, destination: destination, opts: opts}
}

// Destination returns the fixed destination
func (a *Analyzer) Destination() utils.Coordinate { return a.destination }

// Options returns the sampling options
func (a *Analyzer) Options() Options { return a.opts }

// destinationEgress is shared by the outbound plan of every location.
// Failures are not cached.
func (a *Analyzer) destinationEgress(ctx context.Context) (*router.Egress, error) {
	a.egressMu.Lock()
	defer a.egressMu.Unlock()
	if a.egress != nil {
		return a.egress, nil
	}
	egress, err := a.router.Egress(ctx, a.destination)
	if err != nil {
		return nil, err
	}
	a.egress = egress
	return egress, nil
}

// Analyze samples a location in both directions and summarises the result
func (a *Analyzer) Analyze(ctx context.Context, location utils.Coordinate) (LocationScore, error) {
	started := time.Now()
	set, err := a.Sample(ctx, location)
	if err != nil {
		return LocationScore{}, err
	}
	score, err := Summarize(set, a.opts.Penalty)
	if err != nil {
		return LocationScore{}, err
	}
	score.Coordinate = location
	log.Debug().
		Str("location", location.String()).
		Float64("p80", score.P80).
		Float64("reachable", score.ReachableFraction).
		Dur("took", time.Since(started)).
		Msg("Analyzed location")
	return score, nil
}

// Sample routes every minute of the window in both directions
func (a *Analyzer) Sample(ctx context.Context, location utils.Coordinate) (SampleSet, error) {
	destEgress, err := a.destinationEgress(ctx)
	if err != nil {
		return SampleSet{}, fmt.Errorf("destination egress: %w", err)
	}
	outbound, err := a.router.PlanWith(ctx, location, destEgress)
	if err != nil {
		return SampleSet{}, fmt.Errorf("outbound plan: %w", err)
	}
	inbound, err := a.router.Plan(ctx, a.destination, location)
	if err != nil {
		return SampleSet{}, fmt.Errorf("inbound plan: %w", err)
	}

	n := a.opts.Minutes()
	set := SampleSet{
		Outbound: make([]Sample, n),
		Inbound:  make([]Sample, n),
	}

	p := pool.New().WithMaxGoroutines(a.opts.Workers).WithContext(ctx).WithCancelOnError()
	for _, dir := range []struct {
		plan  *router.Plan
		slots []Sample
	}{{outbound, set.Outbound}, {inbound, set.Inbound}} {
		for lo := 0; lo < n; lo += chunkMinutes {
			plan, slots, start, end := dir.plan, dir.slots, lo, min(lo+chunkMinutes, n)
			p.Go(func(ctx context.Context) error {
				return a.sweep(ctx, plan, slots, start, end)
			})
		}
	}
	if err := p.Wait(); err != nil {
		return SampleSet{}, err
	}
	return set, nil
}

// sweep fills slots[lo:hi] with the routes departing at successive minutes
func (a *Analyzer) sweep(ctx context.Context, plan *router.Plan, slots []Sample, lo, hi int) error {
	for i := lo; i < hi; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		depart := a.opts.WindowStart + float64(i)
		res, err := plan.Route(ctx, depart)
		if err != nil {
			return fmt.Errorf("route at %s: %w", utils.FormatClock(depart), err)
		}
		slots[i] = Sample{Depart: depart, Elapsed: res.Elapsed, Reachable: res.Reachable, Kind: res.Kind}
	}
	return nil
}
