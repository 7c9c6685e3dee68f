package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/theoremus-urban-solutions/commute-score/internal"
)

func main() {
	_ = godotenv.Load()
	internal.InitLogging()

	app := &cli.App{
		Name:        "commute-score",
		Usage:       "Score how well transit connects locations to a destination",
		Description: "Samples every departure minute of the analysis window in both directions and reports the 80th percentile trip time",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				EnvVars: []string{"COMMUTE_SCORE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			analyzeCommand(),
			routeCommand(),
			gridCommand(),
			indexCommand(),
			geocodeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}
