package world

import (
	"errors"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarsim/internal/monitoring"
)

// ErrNoSafePose is returned when every spawn attempt overlapped geometry.
// The accompanying Pose is the last attempt and may collide.
var ErrNoSafePose = errors.New("could not find a safe spawn pose")

// Pose is a position plus orientation in degrees.
type Pose struct {
	Position r3.Vec
	PitchDeg float64
	YawDeg   float64
}

// Range is a closed float interval.
type Range struct {
	Min, Max float64
}

func (r Range) sample(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// SpawnOptions controls FindNonCollidingPose. Zero fields take the
// defaults from DefaultSpawnOptions.
type SpawnOptions struct {
	Center    r3.Vec
	Height    Range
	Radius    Range
	Pitch     Range
	Yaw       Range
	Clearance float64
	Attempts  int
}

// DefaultSpawnOptions places the sensor 5 to 15 m up and 2 to 50 m out,
// pitched within ±60° at any yaw, with 2 m clearance over 100 attempts.
func DefaultSpawnOptions() SpawnOptions {
	return SpawnOptions{
		Height:    Range{5, 15},
		Radius:    Range{2, 50},
		Pitch:     Range{-60, 60},
		Yaw:       Range{-180, 180},
		Clearance: 2,
		Attempts:  100,
	}
}

func (o SpawnOptions) withDefaults() SpawnOptions {
	d := DefaultSpawnOptions()
	if o.Height == (Range{}) {
		o.Height = d.Height
	}
	if o.Radius == (Range{}) {
		o.Radius = d.Radius
	}
	if o.Pitch == (Range{}) {
		o.Pitch = d.Pitch
	}
	if o.Yaw == (Range{}) {
		o.Yaw = d.Yaw
	}
	if o.Clearance <= 0 {
		o.Clearance = d.Clearance
	}
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	return o
}

// FindNonCollidingPose samples poses around opts.Center until one has no
// geometry within opts.Clearance. When attempts run out it logs an ops
// diagnostic and returns the last sampled pose together with ErrNoSafePose;
// callers are expected to proceed with that pose.
func FindNonCollidingPose(env Overlapper, rng *rand.Rand, opts SpawnOptions) (Pose, error) {
	opts = opts.withDefaults()
	var pose Pose
	for attempt := 0; attempt < opts.Attempts; attempt++ {
		height := opts.Height.sample(rng)
		radius := opts.Radius.sample(rng)
		// Direction components are drawn independently and not normalised.
		dir := r3.Vec{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1}
		pose = Pose{
			Position: r3.Add(opts.Center, r3.Add(r3.Vec{Z: height}, r3.Scale(radius, dir))),
			PitchDeg: opts.Pitch.sample(rng),
			YawDeg:   opts.Yaw.sample(rng),
		}
		if !env.OverlapSphere(pose.Position, opts.Clearance) {
			return pose, nil
		}
	}
	monitoring.Opsf("spawn: no safe pose after %d attempts, using last attempt at (%.2f, %.2f, %.2f)",
		opts.Attempts, pose.Position.X, pose.Position.Y, pose.Position.Z)
	return pose, ErrNoSafePose
}
