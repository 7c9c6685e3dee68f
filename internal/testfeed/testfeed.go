// Package testfeed builds small synthetic GTFS feeds for tests.
package testfeed

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/gocarina/gocsv"

	"github.com/theoremus-urban-solutions/commute-score/gtfs"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// ServiceID is the weekday service every generated trip runs on
const ServiceID = "WK"

// Call is one stop of a generated trip, at minutes from the service-day epoch
type Call struct {
	Stop string
	At   float64
}

// Builder assembles a feed fluently
type Builder struct {
	feed gtfs.Feed
}

// New returns a builder with a Monday-Friday calendar for ServiceID
func New() *Builder {
	b := &Builder{}
	b.feed.Name = "testfeed"
	b.feed.Calendars = []gtfs.CalendarRecord{{
		ServiceID: ServiceID,
		Monday:    1, Tuesday: 1, Wednesday: 1, Thursday: 1, Friday: 1,
		Start: "20240101", End: "20241231",
	}}
	return b
}

// Stop adds a stop
func (b *Builder) Stop(id string, c utils.Coordinate) *Builder {
	b.feed.Stops = append(b.feed.Stops, gtfs.StopRecord{
		ID:   id,
		Name: "Stop " + id,
		Lat:  fmt.Sprintf("%.7f", c.Lat),
		Lon:  fmt.Sprintf("%.7f", c.Lon),
	})
	return b
}

// Route adds a route
func (b *Builder) Route(id string) *Builder {
	b.feed.Routes = append(b.feed.Routes, gtfs.RouteRecord{ID: id, ShortName: id, Type: 3})
	return b
}

// Trip adds a weekday trip; each call arrives and departs at the same minute
func (b *Builder) Trip(id, route string, calls ...Call) *Builder {
	return b.ServiceTrip(id, route, ServiceID, calls...)
}

// ServiceTrip adds a trip on an arbitrary service
func (b *Builder) ServiceTrip(id, route, service string, calls ...Call) *Builder {
	b.feed.Trips = append(b.feed.Trips, gtfs.TripRecord{RouteID: route, ServiceID: service, TripID: id})
	for i, c := range calls {
		clock := utils.FormatClock(c.At)
		b.feed.StopTimes = append(b.feed.StopTimes, gtfs.StopTimeRecord{
			TripID:        id,
			ArrivalTime:   clock,
			DepartureTime: clock,
			StopID:        c.Stop,
			StopSequence:  i + 1,
		})
	}
	return b
}

// Headway adds trips on a route every `every` minutes from first to last
// inclusive. offsets[i] is the running time from stops[0] to stops[i].
func (b *Builder) Headway(route string, first, last, every float64, stops []string, offsets []float64) *Builder {
	n := 0
	for t := first; t <= last; t += every {
		calls := make([]Call, len(stops))
		for i, s := range stops {
			calls[i] = Call{Stop: s, At: t + offsets[i]}
		}
		b.Trip(fmt.Sprintf("%s-%03d", route, n), route, calls...)
		n++
	}
	return b
}

// StopTime appends a raw stop time record
func (b *Builder) StopTime(rec gtfs.StopTimeRecord) *Builder {
	b.feed.StopTimes = append(b.feed.StopTimes, rec)
	return b
}

// Calendar appends a raw calendar record
func (b *Builder) Calendar(rec gtfs.CalendarRecord) *Builder {
	b.feed.Calendars = append(b.feed.Calendars, rec)
	return b
}

// CalendarDate appends a raw calendar_dates record
func (b *Builder) CalendarDate(rec gtfs.CalendarDateRecord) *Builder {
	b.feed.CalendarDates = append(b.feed.CalendarDates, rec)
	return b
}

// Feed returns a copy of the assembled feed
func (b *Builder) Feed() *gtfs.Feed {
	f := b.feed
	return &f
}

// Index builds the weekday index or fails the test
func (b *Builder) Index(t testing.TB) *gtfs.Index {
	t.Helper()
	idx, err := gtfs.Build(b.Feed(), gtfs.ServiceSelector{Day: gtfs.Weekday})
	if err != nil {
		t.Fatalf("Failed to build test index: %v", err)
	}
	return idx
}

// Zip writes the feed as a GTFS archive
func (b *Builder) Zip(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct {
		name    string
		records interface{}
	}{
		{"stops.txt", &b.feed.Stops},
		{"routes.txt", &b.feed.Routes},
		{"trips.txt", &b.feed.Trips},
		{"stop_times.txt", &b.feed.StopTimes},
		{"calendar.txt", &b.feed.Calendars},
	}
	for _, f := range files {
		data, err := gocsv.MarshalBytes(f.records)
		if err != nil {
			t.Fatalf("marshal %s: %v", f.name, err)
		}
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatalf("zip %s: %v", f.name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zip %s: %v", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
