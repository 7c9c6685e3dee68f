package formatter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theoremus-urban-solutions/commute-score/analyzer"
	"github.com/theoremus-urban-solutions/commute-score/grid"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

func sampleGrid() *grid.Grid {
	dest := utils.Coordinate{Lat: 42.3601, Lon: -71.0589}
	return &grid.Grid{
		RunID:            "run-1",
		Destination:      dest,
		SpacingFeet:      500,
		ThresholdMinutes: 60,
		Policy:           grid.PolicyRing,
		Rings:            2,
		StopReason:       grid.StopThreshold,
		Points: []grid.Point{
			{Cell: grid.Cell{}, Ring: 0, Coordinate: dest, Status: grid.StatusOK,
				Score: &analyzer.LocationScore{P80: 12.5, P90: 14, Median: 10, Min: 3, Max: 20, ReachableFraction: 1}},
			{Cell: grid.Cell{Row: 1}, Ring: 1, Coordinate: utils.Coordinate{Lat: 42.3615, Lon: -71.0589}, Status: grid.StatusNoData,
				Error: "point (1,0): street network <timeout>"},
		},
	}
}

func TestBuildDataset(t *testing.T) {
	generated := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	ds := BuildDataset(sampleGrid(), generated)

	if ds.Metadata.Points != 2 || ds.Metadata.NoData != 1 {
		t.Fatalf("Expected 2 points with 1 no data, got %+v", ds.Metadata)
	}
	if ds.Metadata.GeneratedAt != "2026-03-02T09:30:00Z" {
		t.Errorf("Unexpected generation time %s", ds.Metadata.GeneratedAt)
	}
	if !ds.Records[0].Score80.Valid || ds.Records[0].Score80.Float != 12.5 {
		t.Errorf("Expected score80 12.5, got %v", ds.Records[0].Score80)
	}
	if ds.Records[1].Score80.Valid || ds.Records[1].Status != grid.StatusNoData {
		t.Errorf("Expected empty no_data record, got %+v", ds.Records[1])
	}

	within := FilterWithin(ds, 15)
	if len(within.Records) != 1 || within.Metadata.Points != 1 {
		t.Errorf("Expected one record within 15 minutes, got %d", len(within.Records))
	}
}

func TestBuildJSON(t *testing.T) {
	ds := BuildDataset(sampleGrid(), time.Now())
	data, err := NewDatasetBuilder().BuildJSON(ds)
	if err != nil {
		t.Fatalf("BuildJSON failed: %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	meta := doc["metadata"].(map[string]interface{})
	if meta["stop_reason"] != "threshold_exceeded" {
		t.Errorf("Expected stop reason in metadata, got %v", meta["stop_reason"])
	}
	points := doc["points"].([]interface{})
	second := points[1].(map[string]interface{})
	if second["score80"] != nil {
		t.Errorf("Expected null score for no_data point, got %v", second["score80"])
	}
	if second["status"] != "no_data" {
		t.Errorf("Expected no_data status, got %v", second["status"])
	}
}

func TestBuildCSV(t *testing.T) {
	data, err := NewDatasetBuilder().BuildCSV(BuildDataset(sampleGrid(), time.Now()))
	if err != nil {
		t.Fatalf("BuildCSV failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "lat,lon,ring,score80,score90,scoreMedian,scoreMin,scoreMax,reachableFraction,status" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if !strings.HasSuffix(lines[2], ",,,,,,no_data") {
		t.Errorf("Expected empty scores on no_data row, got %q", lines[2])
	}
}

func TestBuildKML(t *testing.T) {
	kml := string(NewDatasetBuilder().BuildKML(BuildDataset(sampleGrid(), time.Now())))
	if !strings.Contains(kml, "<coordinates>-71.058900,42.360100</coordinates>") {
		t.Error("Expected longitude-first coordinates")
	}
	if strings.Count(kml, "<Placemark>") != 2 {
		t.Error("Expected one placemark per point")
	}
	if !strings.Contains(kml, "<name>12.5 min</name>") {
		t.Error("Expected score as placemark name")
	}
}

func TestXMLEscape(t *testing.T) {
	if got := xmlEscape(`<a & "b">`); got != "&lt;a &amp; &quot;b&quot;&gt;" {
		t.Errorf("Unexpected escape %q", got)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	ds := BuildDataset(sampleGrid(), time.Now())
	b := NewDatasetBuilder()
	for _, name := range []string{"grid.json", "grid.csv", "grid.kml"} {
		path := filepath.Join(dir, name)
		if err := b.WriteFile(path, ds); err != nil {
			t.Fatalf("WriteFile(%s) failed: %v", name, err)
		}
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Errorf("Expected %s to be written", name)
		}
	}
	if err := b.WriteFile(filepath.Join(dir, "grid.xlsx"), ds); err == nil {
		t.Error("Expected unsupported format error")
	}
}
