package utils

import (
	"fmt"
	"math"
)

const (
	EarthRadiusKM     = 6371.0
	MilesPerKilometer = 0.621371
	FeetPerMile       = 5280.0
	// degrees of latitude per mile, constant everywhere on the sphere
	latDegreesPerMile = 1 / (EarthRadiusKM * MilesPerKilometer * math.Pi / 180)
)

// Coordinate is a WGS84 point in degrees
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Valid reports whether the coordinate lies within the WGS84 bounds
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180 &&
		!math.IsNaN(c.Lat) && !math.IsNaN(c.Lon)
}

// Rounded returns the coordinate rounded to the given number of decimals
func (c Coordinate) Rounded(decimals int) Coordinate {
	p := math.Pow(10, float64(decimals))
	return Coordinate{Lat: math.Round(c.Lat*p) / p, Lon: math.Round(c.Lon*p) / p}
}

// HaversineKM returns the great-circle distance between two coordinates in kilometers
func HaversineKM(a, b Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKM * c
}

// HaversineMiles returns the great-circle distance between two coordinates in miles
func HaversineMiles(a, b Coordinate) float64 {
	return HaversineKM(a, b) * MilesPerKilometer
}

// OffsetFeet moves a coordinate by the given north/east offsets in feet using an
// equirectangular projection centred on the origin. Accurate for city-scale offsets.
func OffsetFeet(origin Coordinate, northFeet, eastFeet float64) Coordinate {
	northMiles := northFeet / FeetPerMile
	eastMiles := eastFeet / FeetPerMile
	lonDegreesPerMile := latDegreesPerMile / math.Cos(origin.Lat*math.Pi/180)
	return Coordinate{
		Lat: origin.Lat + northMiles*latDegreesPerMile,
		Lon: origin.Lon + eastMiles*lonDegreesPerMile,
	}
}

// MilesToDegrees converts a distance to the latitude and longitude spans it covers near lat
func MilesToDegrees(lat, miles float64) (dLat, dLon float64) {
	dLat = miles * latDegreesPerMile
	dLon = dLat / math.Cos(lat*math.Pi/180)
	return dLat, dLon
}

// PresentableDistance formats a walking distance for display
func PresentableDistance(miles float64) string {
	if miles < 0.1 {
		return fmt.Sprintf("%d ft", int(math.Round(miles*FeetPerMile)))
	}
	return fmt.Sprintf("%.2f mile%s", miles, ternary(miles == 1, "", "s"))
}

func ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}
