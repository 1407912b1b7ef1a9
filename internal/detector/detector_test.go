package detector

import (
	"math"
	"time"

	"github.com/mr1hm/go-guardian/internal/geo"
)

var (
	origin = geo.Point{Lat: 48.8566, Lon: 2.3522}
	t0     = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

// metersPerDegreeLat is the meridian arc length of one degree of latitude on
// the Haversine sphere.
var metersPerDegreeLat = geo.EarthRadius * math.Pi / 180

func north(p geo.Point, meters float64) geo.Point {
	return geo.Point{Lat: p.Lat + meters/metersPerDegreeLat, Lon: p.Lon}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
