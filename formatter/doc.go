// Package formatter exports grid datasets.
//
// This package is organized into:
// - wrapper.go: flattening a grid into records with run metadata, filtering
// - json.go: JSON and CSV serialization, writing by file extension
// - xml.go: KML placemarks with proper escaping
//
// Points without data keep their row with empty scores and status no_data.
package formatter
