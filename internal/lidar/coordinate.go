package lidar

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// ForeignScanKey is the scan key given to points imported from files that
// carry no timestamp (4-column Cartesian dumps). Native keys are lap
// timestamps and therefore never negative.
const ForeignScanKey = -1.0

// SphericalCoordinate is a single LIDAR return. It is immutable: all fields
// are set at construction and exposed through accessors.
//
// Radius, inclination and azimuth are measured from the emitting laser;
// Point is the world-space hit. For a sensor at the world origin with no
// laser offset, Point == SphericalToCartesian(Radius, Azimuth, Inclination).
type SphericalCoordinate struct {
	radius      float64
	inclination float64
	azimuth     float64
	point       r3.Vec
	laserID     int
	time        float64
	hasAngles   bool
}

// NewSphericalCoordinate builds a measured return. Azimuth is wrapped into
// [0, 360) and a negative radius is clamped to zero.
func NewSphericalCoordinate(radius, inclinationDeg, azimuthDeg float64, point r3.Vec, laserID int, scanTime float64) SphericalCoordinate {
	if radius < 0 {
		radius = 0
	}
	return SphericalCoordinate{
		radius:      radius,
		inclination: inclinationDeg,
		azimuth:     NormalizeAzimuth(azimuthDeg),
		point:       point,
		laserID:     laserID,
		time:        scanTime,
		hasAngles:   true,
	}
}

// NewCartesianCoordinate builds a Cartesian-only coordinate, used for
// imported data that has no measured angles. Radius and angles are derived
// from the point relative to the world origin and HasAngles reports false.
// LaserID is -1.
func NewCartesianCoordinate(point r3.Vec, scanTime float64) SphericalCoordinate {
	r, az, incl := CartesianToSpherical(point)
	return SphericalCoordinate{
		radius:      r,
		inclination: incl,
		azimuth:     az,
		point:       point,
		laserID:     -1,
		time:        scanTime,
	}
}

// Radius returns the measured (or derived) range in meters.
func (c SphericalCoordinate) Radius() float64 { return c.radius }

// Inclination returns the vertical angle in degrees, positive up.
func (c SphericalCoordinate) Inclination() float64 { return c.inclination }

// Azimuth returns the horizontal angle in degrees, in [0, 360).
func (c SphericalCoordinate) Azimuth() float64 { return c.azimuth }

// ToCartesian returns the world-space hit point.
func (c SphericalCoordinate) ToCartesian() r3.Vec { return c.point }

// LaserID returns the id of the laser that produced the return, or -1.
func (c SphericalCoordinate) LaserID() int { return c.laserID }

// Time returns the scan key the coordinate was recorded under.
func (c SphericalCoordinate) Time() float64 { return c.time }

// HasAngles reports whether radius and angles were measured by a laser
// rather than derived from an imported Cartesian point.
func (c SphericalCoordinate) HasAngles() bool { return c.hasAngles }

// WithTime returns a copy of c keyed to a different scan time.
func (c SphericalCoordinate) WithTime(t float64) SphericalCoordinate {
	c.time = t
	return c
}

func (c SphericalCoordinate) String() string {
	if !c.hasAngles {
		return fmt.Sprintf("cart(t=%.3f p=(%.3f,%.3f,%.3f))", c.time, c.point.X, c.point.Y, c.point.Z)
	}
	return fmt.Sprintf("sph(t=%.3f r=%.3f incl=%.2f az=%.2f laser=%d)", c.time, c.radius, c.inclination, c.azimuth, c.laserID)
}
