package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
)

type datasetBuilder struct{}

// NewDatasetBuilder creates a builder serializing datasets
func NewDatasetBuilder() *datasetBuilder {
	return &datasetBuilder{}
}

// BuildJSON serializes a dataset with its metadata
func (db *datasetBuilder) BuildJSON(ds Dataset) ([]byte, error) {
	return json.MarshalIndent(ds, "", "  ")
}

// BuildCSV serializes the dataset's records, one row per point
func (db *datasetBuilder) BuildCSV(ds Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := gocsv.Marshal(ds.Records, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the dataset in the format named by the path's extension:
// .json, .csv or .kml
func (db *datasetBuilder) WriteFile(path string, ds Dataset) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err = db.BuildJSON(ds)
	case ".csv":
		data, err = db.BuildCSV(ds)
	case ".kml":
		data = db.BuildKML(ds)
	default:
		return fmt.Errorf("unsupported dataset format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
