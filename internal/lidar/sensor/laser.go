package sensor

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Laser is one fixed-elevation emitter on the rotor. It holds no mutable
// state; CastRay reads the owning sensor's current pose and rotor angle, so
// lasers in the same sweep step may be cast concurrently.
type Laser struct {
	sensor        *Sensor
	id            int
	verticalAngle float64
	maxDistance   float64
	offset        float64
}

// ID returns the laser's index on the rotor.
func (l *Laser) ID() int { return l.id }

// VerticalAngle returns the fixed elevation in degrees, positive up.
func (l *Laser) VerticalAngle() float64 { return l.verticalAngle }

// Offset returns the vertical offset of the emitter in meters.
func (l *Laser) Offset() float64 { return l.offset }

// Ray returns the world-space origin and unit direction for the current
// rotor angle.
func (l *Laser) Ray() (origin, dir r3.Vec) {
	return l.sensor.emitter(l.offset, l.verticalAngle)
}

// CastRay performs a single intersection test and returns the hit distance
// and point. A miss reports zero distance and the ray's end point.
func (l *Laser) CastRay() (float64, r3.Vec) {
	d, _, p := l.cast()
	return d, p
}

// cast is CastRay that also reports the ray origin.
func (l *Laser) cast() (distance float64, origin, point r3.Vec) {
	origin, dir := l.Ray()
	hit, ok := l.sensor.env.CastRay(origin, dir, l.maxDistance)
	if !ok {
		return 0, origin, r3.Add(origin, r3.Scale(l.maxDistance, dir))
	}
	return hit.Distance, origin, hit.Point
}

// buildLasers lays out the two banks. The first half of the lasers is the
// lower bank, fanned downward from LowerFOV/2 around LowerNormal; the rest
// is the upper bank around UpperNormal. Bank angles use a pitch-down
// convention and are negated into elevation here.
func buildLasers(s *Sensor, cfg Config) []*Laser {
	n := cfg.LaserCount
	half := n / 2

	upperTotal := cfg.UpperFOV / 2
	lowerTotal := cfg.LowerFOV / 2
	var upperStep, lowerStep float64
	if half > 0 {
		upperStep = cfg.UpperFOV / float64(half)
		lowerStep = cfg.LowerFOV / float64(half)
	}
	offset := cfg.OffsetCm / 100 / 2

	lasers := make([]*Laser, 0, n)
	for i := 0; i < n; i++ {
		l := &Laser{sensor: s, id: i, maxDistance: cfg.MaxDistance}
		if i < half {
			l.verticalAngle = -(lowerTotal + cfg.LowerNormal)
			l.offset = -offset
			lowerTotal -= lowerStep
		} else {
			l.verticalAngle = -(upperTotal - cfg.UpperNormal)
			l.offset = offset
			upperTotal -= upperStep
		}
		lasers = append(lasers, l)
	}
	return lasers
}
