package formatter

import (
	"strconv"
	"time"

	"github.com/theoremus-urban-solutions/commute-score/grid"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// Value is a statistic that is absent for points without data. It encodes
// as null in JSON and as an empty CSV field.
type Value struct {
	Float float64
	Valid bool
}

func valueOf(v float64) Value { return Value{Float: v, Valid: true} }

func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float, 'f', -1, 64)
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return []byte(v.String()), nil
}

// MarshalCSV implements gocsv.TypeMarshaller
func (v Value) MarshalCSV() (string, error) { return v.String(), nil }

// Record is one exported grid point
type Record struct {
	Lat               float64     `json:"lat" csv:"lat"`
	Lon               float64     `json:"lon" csv:"lon"`
	Ring              int         `json:"ring" csv:"ring"`
	Score80           Value       `json:"score80" csv:"score80"`
	Score90           Value       `json:"score90" csv:"score90"`
	ScoreMedian       Value       `json:"scoreMedian" csv:"scoreMedian"`
	ScoreMin          Value       `json:"scoreMin" csv:"scoreMin"`
	ScoreMax          Value       `json:"scoreMax" csv:"scoreMax"`
	ReachableFraction Value       `json:"reachableFraction" csv:"reachableFraction"`
	Status            grid.Status `json:"status" csv:"status"`
}

// Metadata describes the run a dataset came from
type Metadata struct {
	RunID            string           `json:"run_id"`
	Destination      utils.Coordinate `json:"destination"`
	SpacingFeet      float64          `json:"spacing_feet"`
	ThresholdMinutes float64          `json:"threshold_minutes"`
	Policy           grid.Policy      `json:"policy"`
	Rings            int              `json:"rings"`
	StopReason       grid.StopReason  `json:"stop_reason"`
	Points           int              `json:"points"`
	NoData           int              `json:"no_data"`
	GeneratedAt      string           `json:"generated_at"`
}

// Dataset is a grid ready for export
type Dataset struct {
	Metadata Metadata `json:"metadata"`
	Records  []Record `json:"points"`
}

// BuildDataset flattens a grid into export records, in ring order
func BuildDataset(g *grid.Grid, generatedAt time.Time) Dataset {
	ds := Dataset{
		Metadata: Metadata{
			RunID:            g.RunID,
			Destination:      g.Destination,
			SpacingFeet:      g.SpacingFeet,
			ThresholdMinutes: g.ThresholdMinutes,
			Policy:           g.Policy,
			Rings:            g.Rings,
			StopReason:       g.StopReason,
			Points:           len(g.Points),
			GeneratedAt:      generatedAt.UTC().Format(time.RFC3339),
		},
		Records: make([]Record, 0, len(g.Points)),
	}
	for _, p := range g.Points {
		rec := Record{Lat: p.Coordinate.Lat, Lon: p.Coordinate.Lon, Ring: p.Ring, Status: p.Status}
		if p.Score != nil {
			s := p.Score
			rec.Score80 = valueOf(s.P80)
			rec.Score90 = valueOf(s.P90)
			rec.ScoreMedian = valueOf(s.Median)
			rec.ScoreMin = valueOf(s.Min)
			rec.ScoreMax = valueOf(s.Max)
			rec.ReachableFraction = valueOf(s.ReachableFraction)
		} else {
			ds.Metadata.NoData++
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds
}

// FilterWithin keeps the records scoring at or under maxScore. Points
// without data are dropped.
func FilterWithin(ds Dataset, maxScore float64) Dataset {
	filtered := Dataset{Metadata: ds.Metadata, Records: []Record{}}
	for _, r := range ds.Records {
		if r.Score80.Valid && r.Score80.Float <= maxScore {
			filtered.Records = append(filtered.Records, r)
		}
	}
	filtered.Metadata.Points = len(filtered.Records)
	filtered.Metadata.NoData = 0
	return filtered
}
