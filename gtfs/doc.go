/*
Package gtfs provides GTFS static feed loading and the schedule index used by
the router.

Only the trips of one service day are indexed. Times are minutes from the
start of that service day and keep counting past 24:00, so a trip leaving at
"25:10:00" departs at minute 1510.

# Basic Usage

Load and index a feed:

	feed, err := gtfs.LoadFeedFile("gtfs.zip")
	if err != nil {
	    log.Fatal().Err(err).Msg("Failed to load feed")
	}
	sel, _ := gtfs.ParseServiceSelector("weekday", "")
	index, err := gtfs.Build(feed, sel)
	if errors.Is(err, gtfs.ErrDataIntegrity) {
	    // the feed is inconsistent and cannot be routed on
	}

Query it:

	// stops within half a mile on foot, closest first
	near, _ := index.StopsNear(ctx, home, 0.5, estimator)

	// departures from a stop between 08:00 and 08:30
	deps := index.DeparturesFrom(near[0].Stop, 480, 510)

	// where the first of those trips goes next
	calls := index.ArrivalsOnTrip(deps[0].Trip, deps[0].Pos)

# Performance: Cache the Index

Building validates every stop time and can take seconds on large feeds.
Snapshots skip parsing and validation:

	_ = gtfs.SerializeIndexToFile(index, "index.gob")
	index, err = gtfs.DeserializeIndexFromFile("index.gob")

# Data Integrity

Build fails with ErrDataIntegrity when a trip goes backwards in time, when a
stop time references a stop absent from stops.txt, when a trip repeats a
stop_sequence, or when one service has overlapping calendar entries.
Recoverable problems such as stops without coordinates are skipped and
summarised in the log once per kind.
*/
package gtfs
