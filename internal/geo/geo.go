// Package geo holds the coordinate type and great-circle math shared by the
// motion detectors.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000.0

var ErrInvalidPoint = errors.New("invalid geographic point")

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return fmt.Errorf("%w: non-finite coordinate (%v, %v)", ErrInvalidPoint, p.Lat, p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidPoint, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidPoint, p.Lon)
	}
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// IsZero reports whether p is the null island placeholder used when no fix
// is known.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// MapsURL returns a Google Maps link pointing at p.
func (p Point) MapsURL() string {
	return "https://maps.google.com/?q=" + p.String()
}

// DistanceMeters returns the Haversine distance between a and b in meters.
func DistanceMeters(a, b Point) float64 {
	if a == b {
		return 0
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}
