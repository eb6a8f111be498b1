package geo

import "math"

const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between two coordinates
// in kilometers.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// Interpolate returns the point at fraction frac along the straight line
// from (lat1, lon1) to (lat2, lon2). frac is clamped to [0, 1]. Linear
// interpolation is accurate enough at city scale.
func Interpolate(lat1, lon1, lat2, lon2, frac float64) (float64, float64) {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return lat1 + (lat2-lat1)*frac, lon1 + (lon2-lon1)*frac
}
