package internal

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogging configures the global zerolog logger.
// COMMUTE_SCORE_LOG_FORMAT=JSON switches to structured output and
// COMMUTE_SCORE_DEBUG=YES enables debug level.
func InitLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	// stdout carries command output
	log.Logger = log.Output(os.Stderr)
	if os.Getenv("COMMUTE_SCORE_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if os.Getenv("COMMUTE_SCORE_DEBUG") == "YES" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
