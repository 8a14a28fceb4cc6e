package shops

import (
	"math"

	"github.com/conedex/conedex/internal/app/domain/shop"
)

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundingBox returns a box containing every point within radiusKm of the
// centre. It is a pre-filter; callers still check the exact distance. When
// the circle covers a pole or crosses the antimeridian the longitude range is
// left open, since a single [min, max] range cannot describe it.
func BoundingBox(lat, lng, radiusKm float64) shop.Bounds {
	angular := radiusKm / earthRadiusKm
	dLat := angular * 180 / math.Pi
	b := shop.Bounds{
		MinLat: lat - dLat,
		MaxLat: lat + dLat,
		MinLng: -180,
		MaxLng: 180,
	}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		b.MinLat = math.Max(-90, b.MinLat)
		b.MaxLat = math.Min(90, b.MaxLat)
		return b
	}
	// The pole is outside the circle, so sin(angular) < cos(lat) here.
	dLng := math.Asin(math.Sin(angular)/math.Cos(lat*math.Pi/180)) * 180 / math.Pi
	if lng-dLng < -180 || lng+dLng > 180 {
		return b
	}
	b.MinLng, b.MaxLng = lng-dLng, lng+dLng
	return b
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
