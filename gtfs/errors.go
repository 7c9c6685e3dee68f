package gtfs

import "errors"

var (
	// ErrDataIntegrity marks a feed that cannot be indexed safely. Fatal at build time.
	ErrDataIntegrity = errors.New("gtfs data integrity violation")
	// ErrMissingFile is returned when a required file is absent from the feed archive
	ErrMissingFile = errors.New("gtfs required file missing")
)
