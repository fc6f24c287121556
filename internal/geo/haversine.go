// Package geo holds the great-circle distance used to order rides.
package geo

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"
)

// EarthRadiusKm is the mean Earth radius used by every distance computation.
const EarthRadiusKm = 6371.0

const geohashPrecision = 9

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Distance returns the Haversine great-circle distance between a and b in kilometers.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon) - radians(a.Lon)

	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(h, 1)

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceSQL renders Distance as a PostgreSQL expression between the
// latColumn/lonColumn of each row and the point bound to the positional
// parameters $latArg and $lonArg.
func DistanceSQL(latColumn, lonColumn string, latArg, lonArg int) string {
	userLat := fmt.Sprintf("radians($%d::double precision)", latArg)
	userLon := fmt.Sprintf("radians($%d::double precision)", lonArg)
	rowLat := fmt.Sprintf("radians(%s)", latColumn)
	rowLon := fmt.Sprintf("radians(%s)", lonColumn)

	h := fmt.Sprintf(
		"least(power(sin((%s - %s) / 2), 2) + cos(%s) * cos(%s) * power(sin((%s - %s) / 2), 2), 1)",
		rowLat, userLat, userLat, rowLat, rowLon, userLon,
	)

	return fmt.Sprintf("(%v * 2 * atan2(sqrt(%s), sqrt(1 - %s)))", formatRadius(), h, h)
}

// Geohash encodes a coordinate with nine characters of precision (about 5m).
func Geohash(lat, lon float64) string {
	return geohash.EncodeWithPrecision(lat, lon, geohashPrecision)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func formatRadius() string {
	return fmt.Sprintf("%.1f", EarthRadiusKm)
}
