package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	commutescore "github.com/theoremus-urban-solutions/commute-score"
	"github.com/theoremus-urban-solutions/commute-score/config"
	"github.com/theoremus-urban-solutions/commute-score/geocode"
	"github.com/theoremus-urban-solutions/commute-score/grid"
	"github.com/theoremus-urban-solutions/commute-score/router"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

var locationFlags = []cli.Flag{
	&cli.StringFlag{Name: "at", Usage: "location as lat,lon"},
	&cli.StringFlag{Name: "address", Usage: "location as a street address, geocoded"},
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Score a single location",
		Flags: locationFlags,
		Action: func(c *cli.Context) error {
			return withEngine(c, func(ctx context.Context, e *commutescore.Engine, g geocode.Geocoder) error {
				loc, err := location(ctx, c, g)
				if err != nil {
					return err
				}
				score, err := e.AnalyzeLocation(ctx, loc)
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, score)
			})
		},
	}
}

func routeCommand() *cli.Command {
	return &cli.Command{
		Name:  "route",
		Usage: "Find the fastest trip for one departure",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "depart", Usage: "departure time, HH:MM", Value: "08:00"},
			&cli.BoolFlag{Name: "inbound", Usage: "travel from the destination to the location"},
		}, locationFlags...),
		Action: func(c *cli.Context) error {
			depart, err := utils.ParseClock(c.String("depart"))
			if err != nil {
				return err
			}
			dir := router.Outbound
			if c.Bool("inbound") {
				dir = router.Inbound
			}
			return withEngine(c, func(ctx context.Context, e *commutescore.Engine, g geocode.Geocoder) error {
				loc, err := location(ctx, c, g)
				if err != nil {
					return err
				}
				res, err := e.Route(ctx, loc, depart, dir)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, res)
				for _, leg := range res.Legs {
					fmt.Fprintln(c.App.Writer, formatLeg(leg))
				}
				return nil
			})
		},
	}
}

// formatLeg renders one leg; walks show their distance, rides their route
func formatLeg(leg router.Leg) string {
	detail := leg.RouteID
	if leg.Mode == router.LegWalk {
		detail = utils.PresentableDistance(leg.Miles)
	}
	return fmt.Sprintf("  %-4s %s -> %s %s %s %s",
		leg.Mode, orEnd(leg.From), orEnd(leg.To), utils.FormatClock(leg.Depart), utils.FormatClock(leg.Arrive), detail)
}

func orEnd(stopID string) string {
	if stopID == "" {
		return "*"
	}
	return stopID
}

func gridCommand() *cli.Command {
	return &cli.Command{
		Name:  "grid",
		Usage: "Expand a scored grid around the destination",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "resume", Usage: "continue a checkpointed run by id, or \"latest\""},
		},
		Action: func(c *cli.Context) error {
			return withEngine(c, func(ctx context.Context, e *commutescore.Engine, _ geocode.Geocoder) error {
				g, err := e.GenerateGrid(ctx, commutescore.GridOptions{ResumeRunID: c.String("resume")})
				if g != nil {
					log.Info().
						Str("run", g.RunID).
						Str("reason", string(g.StopReason)).
						Int("rings", g.Rings).
						Int("points", len(g.Points)).
						Int("no_data", len(g.Failures())).
						Msg("Grid finished")
				}
				if grid.IsCancelled(err) {
					log.Warn().Msg("Interrupted, completed rings were kept")
					return nil
				}
				return err
			})
		},
		Subcommands: []*cli.Command{
			{
				Name:  "within",
				Usage: "List checkpointed points whose score is under a threshold",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "run", Value: "latest", Usage: "run id"},
					&cli.Float64Flag{Name: "threshold", Usage: "minutes, defaults to the configured threshold"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					path := cfg.Grid.CheckpointPath
					if path == "" {
						path = cfg.Output.SQLitePath
					}
					if path == "" {
						return fmt.Errorf("%w: no checkpoint store configured", config.ErrInvalidConfig)
					}
					store, err := grid.OpenStore(c.Context, path)
					if err != nil {
						return err
					}
					defer store.Close()

					runID := c.String("run")
					if runID == "latest" {
						if runID, err = store.LatestRun(c.Context); err != nil {
							return err
						}
					}
					threshold := cfg.MaxTimeThresholdMinutes
					if c.IsSet("threshold") {
						threshold = c.Float64("threshold")
					}
					coords, err := store.Within(c.Context, runID, threshold)
					if err != nil {
						return err
					}
					for _, coord := range coords {
						fmt.Fprintln(c.App.Writer, coord)
					}
					return nil
				},
			},
		},
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Manage the schedule index",
		Subcommands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Parse the feed and write the schedule snapshot",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if cfg.GTFS.SnapshotPath == "" {
						return fmt.Errorf("%w: gtfs.snapshot_path is not set", config.ErrInvalidConfig)
					}
					// always rebuild
					if err := os.Remove(cfg.GTFS.SnapshotPath); err != nil && !errors.Is(err, os.ErrNotExist) {
						return err
					}
					_, err = commutescore.LoadIndex(c.Context, cfg.GTFS)
					return err
				},
			},
		},
	}
}

func geocodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "geocode",
		Usage:     "Resolve an address to a coordinate",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			address := strings.Join(c.Args().Slice(), " ")
			if address == "" {
				return cli.ShowSubcommandHelp(c)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			g, closeFn := geocode.FromConfig(cfg.Geocoder)
			defer closeFn()
			coord, err := g.Resolve(c.Context, address)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, coord)
			return nil
		},
	}
}

func loadConfig(c *cli.Context) (config.AppConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// withEngine loads the configuration and engine and runs fn with a context
// cancelled on SIGINT or SIGTERM
func withEngine(c *cli.Context, fn func(ctx context.Context, e *commutescore.Engine, g geocode.Geocoder) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, closeFn := geocode.FromConfig(cfg.Geocoder)
	defer func() {
		if err := closeFn(); err != nil {
			log.Debug().Err(err).Msg("Failed to close geocoder cache")
		}
	}()
	e, err := commutescore.NewEngine(ctx, cfg, g)
	if err != nil {
		return err
	}
	return fn(ctx, e, g)
}

func location(ctx context.Context, c *cli.Context, g geocode.Geocoder) (utils.Coordinate, error) {
	if at := c.String("at"); at != "" {
		return parseCoordinate(at)
	}
	if address := c.String("address"); address != "" {
		return g.Resolve(ctx, address)
	}
	return utils.Coordinate{}, errors.New("one of --at or --address is required")
}

func parseCoordinate(s string) (utils.Coordinate, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return utils.Coordinate{}, fmt.Errorf("invalid coordinate %q, want lat,lon", s)
	}
	var c utils.Coordinate
	var err error
	if c.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return utils.Coordinate{}, fmt.Errorf("invalid latitude in %q", s)
	}
	if c.Lon, err = strconv.ParseFloat(strings.TrimSpace(lon), 64); err != nil {
		return utils.Coordinate{}, fmt.Errorf("invalid longitude in %q", s)
	}
	if !c.Valid() {
		return utils.Coordinate{}, fmt.Errorf("coordinate %q out of range", s)
	}
	return c, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
