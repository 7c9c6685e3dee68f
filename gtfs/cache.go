package gtfs

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"time"
)

// snapshotVersion changes whenever the snapshot layout does
const snapshotVersion = 1

// snapshot is the persisted form of an Index. Lookup tables are rebuilt on load.
type snapshot struct {
	Version    int
	ServiceDay ServiceDay
	Date       time.Time
	Stops      []Stop
	Trips      []Trip
	Routes     map[string]Route
}

// SerializeIndex encodes an Index to bytes using gob encoding.
// This is useful for disk-based caching to avoid re-parsing and re-validating
// the GTFS feed on every run.
//
// Example:
//
//	index, _ := gtfs.Build(feed, selector)
//	data, err := gtfs.SerializeIndex(index)
//	if err != nil {
//	    // handle error
//	}
//	os.WriteFile("/path/to/cache/index.gob", data, 0644)
func SerializeIndex(index *Index) ([]byte, error) {
	var buf bytes.Buffer
	if err := SerializeIndexToWriter(index, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeIndex decodes an Index from bytes using gob encoding.
//
// Thread safety: The returned index is safe for concurrent read access.
func DeserializeIndex(data []byte) (*Index, error) {
	return DeserializeIndexFromReader(bytes.NewReader(data))
}

// SerializeIndexToFile writes an Index snapshot to a file
func SerializeIndexToFile(index *Index, filepath string) error {
	data, err := SerializeIndex(index)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, data, 0644)
}

// DeserializeIndexFromFile reads an Index snapshot from a file.
//
// Example:
//
//	index, err := gtfs.DeserializeIndexFromFile("/cache/gtfs-index.gob")
//	if err != nil {
//	    // Cache miss or corrupted, rebuild from the feed
//	    index, _ = gtfs.Build(feed, selector)
//	}
func DeserializeIndexFromFile(filepath string) (*Index, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	return DeserializeIndex(data)
}

// SerializeIndexToWriter writes an Index to an io.Writer using gob encoding
func SerializeIndexToWriter(index *Index, w io.Writer) error {
	snap := snapshot{
		Version:    snapshotVersion,
		ServiceDay: index.selector.Day,
		Date:       index.selector.Date,
		Stops:      index.stops,
		Trips:      index.trips,
		Routes:     index.routes,
	}
	if err := gob.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode schedule index: %w", err)
	}
	return nil
}

// DeserializeIndexFromReader reads an Index from an io.Reader using gob encoding
func DeserializeIndexFromReader(r io.Reader) (*Index, error) {
	var snap snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode schedule index: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("schedule index snapshot version %d, want %d", snap.Version, snapshotVersion)
	}
	for _, t := range snap.Trips {
		for _, st := range t.StopTimes {
			if st.Stop < 0 || st.Stop >= len(snap.Stops) {
				return nil, fmt.Errorf("%w: snapshot trip %s references stop handle %d", ErrDataIntegrity, t.ID, st.Stop)
			}
		}
	}
	sel := ServiceSelector{Day: snap.ServiceDay, Date: snap.Date}
	return newIndex(sel, snap.Stops, snap.Trips, snap.Routes), nil
}

// Matches reports whether the index was built for the given selector
func (g *Index) Matches(sel ServiceSelector) bool {
	if !g.selector.Date.IsZero() || !sel.Date.IsZero() {
		return g.selector.Date.Equal(sel.Date)
	}
	return g.selector.Day == sel.Day
}
