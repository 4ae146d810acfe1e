package lidar

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SphericalToCartesian converts distance (meters), azimuth (degrees) and
// inclination (degrees) into Cartesian sensor-frame coordinates.
// Coordinate convention: X=right, Y=forward, Z=up; azimuth is measured from
// +Y toward +X and inclination is positive above the horizon.
func SphericalToCartesian(distance, azimuthDeg, inclinationDeg float64) r3.Vec {
	azimuthRad := azimuthDeg * math.Pi / 180.0
	inclinationRad := inclinationDeg * math.Pi / 180.0

	cosIncl := math.Cos(inclinationRad)
	return r3.Vec{
		X: distance * cosIncl * math.Sin(azimuthRad),
		Y: distance * cosIncl * math.Cos(azimuthRad),
		Z: distance * math.Sin(inclinationRad),
	}
}

// CartesianToSpherical is the inverse of SphericalToCartesian. The returned
// azimuth is normalised to [0, 360). A zero vector yields all zeros.
func CartesianToSpherical(v r3.Vec) (distance, azimuthDeg, inclinationDeg float64) {
	distance = r3.Norm(v)
	if distance == 0 {
		return 0, 0, 0
	}
	azimuthDeg = NormalizeAzimuth(math.Atan2(v.X, v.Y) * 180.0 / math.Pi)
	inclinationDeg = math.Asin(clamp(v.Z/distance, -1, 1)) * 180.0 / math.Pi
	return distance, azimuthDeg, inclinationDeg
}

// Direction returns the unit vector for an azimuth/inclination pair.
func Direction(azimuthDeg, inclinationDeg float64) r3.Vec {
	return SphericalToCartesian(1, azimuthDeg, inclinationDeg)
}

// NormalizeAzimuth wraps an angle in degrees into [0, 360).
func NormalizeAzimuth(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
