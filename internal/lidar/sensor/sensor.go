// Package sensor simulates a spinning multi-laser rangefinder.
//
// The Sensor is driven by a fixed simulation tick. Each Tick decides, from
// the configured rotation rate and angular step, whether a sweep is due;
// when it is, the rotor advances one or more increments, every laser casts
// a ray into the world.Environment, and the collected returns are published
// synchronously to subscribers as one lidar.ScanBatch.
package sensor

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarsim/internal/lidar"
	"github.com/banshee-data/lidarsim/internal/lidar/world"
	"github.com/banshee-data/lidarsim/internal/monitoring"
)

// State is the sensor lifecycle state.
type State int

const (
	// Idle: no lasers configured; ticks are ignored.
	Idle State = iota
	// Armed: lasers initialised, no sweep fired yet since the last Init.
	Armed
	// Scanning: steady state.
	Scanning
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Scanning:
		return "scanning"
	}
	return "unknown"
}

// Mount supplies the carrier pose (the drone the sensor is bolted to).
type Mount interface {
	Pose() world.Pose
}

// StaticMount is a Mount that never moves.
type StaticMount world.Pose

// Pose implements Mount.
func (m StaticMount) Pose() world.Pose { return world.Pose(m) }

// Stats are cumulative counters since the last Init.
type Stats struct {
	Sweeps  uint64
	Steps   uint64
	Laps    uint64
	Hits    uint64
	Dropped uint64 // misses and self-hits
}

// Ray is a laser's current beam, for preview overlays.
type Ray struct {
	LaserID int
	Origin  r3.Vec
	End     r3.Vec
	Hit     bool
}

// Sensor is the rotating rangefinder. Tick, Init and the publish fan-out
// run on the caller's goroutine; the mutex only guards readers such as the
// monitor's Rays and Stats.
type Sensor struct {
	env   world.Environment
	mount Mount

	mu       sync.Mutex
	cfg      Config
	state    State
	lasers   []*Laser
	subSteps int
	interval float64

	stepsPerLap int
	stepIndex   int
	rotorDeg    float64
	lastUpdate  float64
	lapTime     float64
	hits        []lidar.SphericalCoordinate
	stats       Stats

	scans lidar.Observers[lidar.ScanHandler]
	specs lidar.Observers[lidar.SpecHandler]
}

var _ lidar.Source = (*Sensor)(nil)

// New returns an Idle sensor reading env from the given mount. A nil
// mount is treated as a static mount at the origin.
func New(env world.Environment, mount Mount) *Sensor {
	if mount == nil {
		mount = StaticMount{}
	}
	return &Sensor{env: env, mount: mount}
}

// Init validates cfg and (re)builds the laser array, discarding the
// previous lasers and any partially collected batch. On success the sensor
// is Armed and spec-changed observers are notified.
func (s *Sensor) Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	subSteps, _ := SubSteps(cfg.AngularStepDeg, cfg.FixedDelta)

	s.mu.Lock()
	s.cfg = cfg
	s.lasers = buildLasers(s, cfg)
	s.subSteps = subSteps
	s.interval = SweepInterval(cfg.AngularStepDeg, cfg.RotationRateHz, subSteps)
	s.stepsPerLap = int(math.Round(StepsPerLap(cfg.AngularStepDeg)))
	s.stepIndex = 0
	s.rotorDeg = 0
	s.lastUpdate = 0
	s.lapTime = 0
	s.hits = make([]lidar.SphericalCoordinate, 0, cfg.LaserCount*subSteps)
	s.stats = Stats{}
	s.state = Armed
	s.mu.Unlock()

	monitoring.Opsf("lidar armed: %d lasers, %.3g Hz, step %.4g°, %d sub-steps, sweep every %.4gs",
		cfg.LaserCount, cfg.RotationRateHz, cfg.AngularStepDeg, subSteps, s.interval)

	s.specs.Notify(func(h lidar.SpecHandler) {
		h(cfg.LaserCount, cfg.RotationRateHz, cfg.AngularStepDeg)
	})
	return nil
}

// Tick advances the sensor to simulated time fixedTime (seconds). It fires
// at most one sweep and reports whether it did.
func (s *Sensor) Tick(fixedTime float64) bool {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return false
	}
	if fixedTime-s.lastUpdate <= s.interval {
		s.mu.Unlock()
		return false
	}
	s.lastUpdate = fixedTime
	s.state = Scanning
	s.hits = s.hits[:0]

	for i := 0; i < s.subSteps; i++ {
		s.advance(fixedTime)
		for _, l := range s.lasers {
			d, origin, p := l.cast()
			if d == 0 || d <= s.cfg.MinRange {
				s.stats.Dropped++
				continue
			}
			// Angles are taken in world frame from the emitter to the hit.
			r, az, incl := lidar.CartesianToSpherical(r3.Sub(p, origin))
			s.hits = append(s.hits, lidar.NewSphericalCoordinate(r, incl, az, p, l.id, s.lapTime))
			s.stats.Hits++
		}
	}
	s.stats.Sweeps++
	batch := lidar.ScanBatch{Key: s.lapTime, Points: s.hits}
	rotor := s.rotorDeg
	s.mu.Unlock()

	monitoring.Tracef("sweep t=%.3f key=%.3f rotor=%.2f° returns=%d", fixedTime, batch.Key, rotor, batch.Len())
	s.scans.Notify(func(h lidar.ScanHandler) { h(batch.Key, batch) })
	return true
}

// advance moves the rotor one increment. The angle is derived from an
// integer step index so whole laps return exactly to the start. Caller
// holds s.mu.
func (s *Sensor) advance(fixedTime float64) {
	s.stepIndex++
	if s.stepIndex >= s.stepsPerLap {
		s.stepIndex -= s.stepsPerLap
		s.lapTime = fixedTime
		s.stats.Laps++
	}
	s.rotorDeg = lidar.NormalizeAzimuth(float64(s.stepIndex) * s.cfg.AngularStepDeg)
	s.stats.Steps++
}

// emitter returns the world-space origin and direction for a laser with the
// given vertical offset and elevation at the current rotor angle.
func (s *Sensor) emitter(offset, elevationDeg float64) (origin, dir r3.Vec) {
	pose := s.mount.Pose()
	dir = lidar.Direction(s.rotorDeg, elevationDeg)
	up := r3.Vec{Z: offset}
	if pose.PitchDeg != 0 {
		pitch := r3.NewRotation(pose.PitchDeg*math.Pi/180, r3.Vec{X: 1})
		dir = pitch.Rotate(dir)
		up = pitch.Rotate(up)
	}
	if pose.YawDeg != 0 {
		yaw := r3.NewRotation(-pose.YawDeg*math.Pi/180, r3.Vec{Z: 1})
		dir = yaw.Rotate(dir)
		up = yaw.Rotate(up)
	}
	return r3.Add(pose.Position, up), dir
}

// Subscribe registers a sweep observer.
func (s *Sensor) Subscribe(h lidar.ScanHandler) lidar.Subscription { return s.scans.Add(h) }

// OnSpecChanged registers a specification observer. It is not called
// retroactively; use Spec for the current values.
func (s *Sensor) OnSpecChanged(h lidar.SpecHandler) lidar.Subscription { return s.specs.Add(h) }

// Spec returns the current laser count, rotation rate and angular step.
// An Idle sensor reports zeros.
func (s *Sensor) Spec() (int, float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return 0, 0, 0
	}
	return s.cfg.LaserCount, s.cfg.RotationRateHz, s.cfg.AngularStepDeg
}

// State returns the lifecycle state.
func (s *Sensor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns the active configuration.
func (s *Sensor) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Lasers returns the current laser array. The slice must not be modified.
func (s *Sensor) Lasers() []*Laser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lasers
}

// SubStepCount returns the increments taken per sweep.
func (s *Sensor) SubStepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subSteps
}

// HorizontalAngle returns the rotor angle in degrees, in [0, 360).
func (s *Sensor) HorizontalAngle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotorDeg
}

// LapTime returns the simulated time of the last completed lap.
func (s *Sensor) LapTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lapTime
}

// Stats returns a copy of the counters.
func (s *Sensor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Rays casts every laser at the current rotor angle and returns the beams,
// ending at the hit point or at max distance.
func (s *Sensor) Rays() []Ray {
	s.mu.Lock()
	defer s.mu.Unlock()
	rays := make([]Ray, 0, len(s.lasers))
	for _, l := range s.lasers {
		d, origin, end := l.cast()
		rays = append(rays, Ray{LaserID: l.id, Origin: origin, End: end, Hit: d > 0})
	}
	return rays
}
