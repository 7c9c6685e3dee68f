package formatter

import (
	"strconv"
	"strings"

	"github.com/theoremus-urban-solutions/commute-score/grid"
)

// BuildKML renders the dataset as a KML document with one placemark per point
func (db *datasetBuilder) BuildKML(ds Dataset) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<kml xmlns="http://www.opengis.net/kml/2.2">`)
	b.WriteString("<Document>")
	b.WriteString("<name>")
	b.WriteString(xmlEscape("commute score " + ds.Metadata.RunID))
	b.WriteString("</name>")
	writeMetadataKML(&b, ds.Metadata)
	for _, r := range ds.Records {
		writePlacemarkKML(&b, r)
	}
	b.WriteString("</Document>")
	b.WriteString("</kml>")
	return []byte(b.String())
}

func writeMetadataKML(b *strings.Builder, m Metadata) {
	b.WriteString("<ExtendedData>")
	writeDataKML(b, "destination", m.Destination.String())
	writeDataKML(b, "spacing_feet", formatFloat(m.SpacingFeet))
	writeDataKML(b, "threshold_minutes", formatFloat(m.ThresholdMinutes))
	writeDataKML(b, "rings", strconv.Itoa(m.Rings))
	writeDataKML(b, "stop_reason", string(m.StopReason))
	writeDataKML(b, "generated_at", m.GeneratedAt)
	b.WriteString("</ExtendedData>")
}

func writePlacemarkKML(b *strings.Builder, r Record) {
	b.WriteString("<Placemark>")
	b.WriteString("<name>")
	if r.Score80.Valid {
		b.WriteString(strconv.FormatFloat(r.Score80.Float, 'f', 1, 64))
		b.WriteString(" min")
	} else {
		b.WriteString(xmlEscape(string(grid.StatusNoData)))
	}
	b.WriteString("</name>")
	b.WriteString("<ExtendedData>")
	writeDataKML(b, "ring", strconv.Itoa(r.Ring))
	writeDataKML(b, "status", string(r.Status))
	if r.Score80.Valid {
		writeDataKML(b, "score80", r.Score80.String())
		writeDataKML(b, "score90", r.Score90.String())
		writeDataKML(b, "scoreMedian", r.ScoreMedian.String())
		writeDataKML(b, "reachableFraction", r.ReachableFraction.String())
	}
	b.WriteString("</ExtendedData>")
	// KML orders longitude first
	b.WriteString("<Point><coordinates>")
	b.WriteString(strconv.FormatFloat(r.Lon, 'f', 6, 64))
	b.WriteString(",")
	b.WriteString(strconv.FormatFloat(r.Lat, 'f', 6, 64))
	b.WriteString("</coordinates></Point>")
	b.WriteString("</Placemark>")
}

func writeDataKML(b *strings.Builder, name, value string) {
	b.WriteString(`<Data name="`)
	b.WriteString(xmlEscape(name))
	b.WriteString(`"><value>`)
	b.WriteString(xmlEscape(value))
	b.WriteString("</value></Data>")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(s)
}
