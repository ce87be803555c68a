package similarity

import (
	"math"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

// EarthRadiusMiles is the mean Earth radius used by HaversineMiles.
const EarthRadiusMiles = 3959.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// NewPoint returns nil unless both coordinates are present.
func NewPoint(lat, lon *float64) *Point {
	if lat == nil || lon == nil {
		return nil
	}
	return &Point{Lat: *lat, Lon: *lon}
}

// HaversineMiles returns the great-circle distance between a and b.
func HaversineMiles(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMiles * c
}

// Geo scores two locations: 0.0 when either is unknown, 1.0 within
// toleranceMiles, and toleranceMiles/distance beyond it.
func Geo(a, b *Point, toleranceMiles float64) (float64, error) {
	if toleranceMiles <= 0 || math.IsNaN(toleranceMiles) {
		return 0, clovererrors.NewInvalidArgumentf("toleranceMiles", "must be greater than 0, got %v", toleranceMiles)
	}
	if a == nil || b == nil {
		return 0.0, nil
	}

	distance := HaversineMiles(*a, *b)
	if distance <= toleranceMiles {
		return 1.0, nil
	}

	return min(1.0, toleranceMiles/distance), nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
