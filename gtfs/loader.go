package gtfs

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
)

type StopRecord struct {
	ID         string `csv:"stop_id"`
	Name       string `csv:"stop_name"`
	Lat        string `csv:"stop_lat"`
	Lon        string `csv:"stop_lon"`
	Type       string `csv:"location_type"`
	ParentID   string `csv:"parent_station"`
	Wheelchair string `csv:"wheelchair_boarding"`
}

type RouteRecord struct {
	ID        string `csv:"route_id"`
	AgencyID  string `csv:"agency_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Type      int    `csv:"route_type"`
}

type TripRecord struct {
	RouteID   string `csv:"route_id"`
	ServiceID string `csv:"service_id"`
	TripID    string `csv:"trip_id"`
	Headsign  string `csv:"trip_headsign"`
	Direction string `csv:"direction_id"`
}

type StopTimeRecord struct {
	TripID        string `csv:"trip_id"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	StopID        string `csv:"stop_id"`
	StopSequence  int    `csv:"stop_sequence"`
}

type CalendarRecord struct {
	ServiceID string `csv:"service_id"`
	Monday    int    `csv:"monday"`
	Tuesday   int    `csv:"tuesday"`
	Wednesday int    `csv:"wednesday"`
	Thursday  int    `csv:"thursday"`
	Friday    int    `csv:"friday"`
	Saturday  int    `csv:"saturday"`
	Sunday    int    `csv:"sunday"`
	Start     string `csv:"start_date"`
	End       string `csv:"end_date"`
}

type CalendarDateRecord struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int    `csv:"exception_type"`
}

// Feed holds the raw records of a GTFS static archive
type Feed struct {
	Name          string
	Stops         []StopRecord
	Routes        []RouteRecord
	Trips         []TripRecord
	StopTimes     []StopTimeRecord
	Calendars     []CalendarRecord
	CalendarDates []CalendarDateRecord
}

var requiredFiles = []string{"stops.txt", "trips.txt", "stop_times.txt"}

// LoadFeedFile parses a GTFS zip from disk
func LoadFeedFile(filePath string) (*Feed, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	feed, err := parseArchive(&zr.Reader)
	if err != nil {
		return nil, err
	}
	feed.Name = path.Base(filePath)
	return feed, nil
}

// ParseFeedBytes parses a GTFS zip held in memory
func ParseFeedBytes(data []byte) (*Feed, error) {
	return ParseFeed(bytes.NewReader(data), int64(len(data)))
}

// ParseFeed parses a GTFS zip from any random-access reader
func ParseFeed(r io.ReaderAt, size int64) (*Feed, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	return parseArchive(zr)
}

func parseArchive(zr *zip.Reader) (*Feed, error) {
	// Allow records with missing trailing columns
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		return r
	})

	feed := &Feed{}
	seen := map[string]bool{}
	for _, f := range zr.File {
		name := strings.ToLower(path.Base(f.Name))
		if err := feed.consumeCSV(name, f); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		seen[name] = true
	}
	for _, name := range requiredFiles {
		if !seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, name)
		}
	}
	if !seen["calendar.txt"] && !seen["calendar_dates.txt"] {
		return nil, fmt.Errorf("%w: calendar.txt or calendar_dates.txt", ErrMissingFile)
	}
	log.Info().
		Int("stops", len(feed.Stops)).
		Int("trips", len(feed.Trips)).
		Int("stop_times", len(feed.StopTimes)).
		Msg("Parsed GTFS feed")
	return feed, nil
}

func (feed *Feed) consumeCSV(name string, f *zip.File) error {
	var destination interface{}
	switch name {
	case "stops.txt":
		destination = &feed.Stops
	case "routes.txt":
		destination = &feed.Routes
	case "trips.txt":
		destination = &feed.Trips
	case "stop_times.txt":
		destination = &feed.StopTimes
	case "calendar.txt":
		destination = &feed.Calendars
	case "calendar_dates.txt":
		destination = &feed.CalendarDates
	default:
		log.Debug().Str("file", name).Msg("Skipping gtfs file")
		return nil
	}
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	if err := gocsv.Unmarshal(skipBOM(r), destination); err != nil && !errors.Is(err, gocsv.ErrEmptyCSVFile) {
		return err
	}
	return nil
}

// skipBOM drops a leading UTF-8 byte order mark, which some exporters write
// and which would otherwise corrupt the first header name.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	return br
}
