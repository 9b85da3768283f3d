package geo

import "math"

// EarthRadiusMeters is the mean earth radius used by HaversineDistance.
const EarthRadiusMeters = 6371000.0

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// HaversineDistance returns the great-circle distance between a and b in
// meters. The result is exactly symmetric in its arguments and zero for
// identical points. Non-finite input yields NaN; callers validate upstream.
func HaversineDistance(a, b GeoPoint) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	cosProduct := math.Cos(toRadians(a.Latitude)) * math.Cos(toRadians(b.Latitude))

	h := sinLat*sinLat + cosProduct*sinLon*sinLon
	// rounding can push near-antipodal points just past 1
	h = math.Min(h, 1)

	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Destination returns the point reached by travelling distanceMeters from p
// along the initial bearing (degrees clockwise from north).
func Destination(p GeoPoint, bearingDegrees, distanceMeters float64) GeoPoint {
	lat1 := toRadians(p.Latitude)
	lon1 := toRadians(p.Longitude)
	brng := toRadians(bearingDegrees)
	d := distanceMeters / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	lon := math.Mod(lon2*180/math.Pi+540, 360) - 180
	return GeoPoint{Latitude: lat2 * 180 / math.Pi, Longitude: lon}
}
