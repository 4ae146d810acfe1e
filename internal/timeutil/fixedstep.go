package timeutil

import (
	"math"
	"time"
)

// DefaultMaxCatchUp bounds how many ticks a single Advance may produce.
const DefaultMaxCatchUp = 50

// FixedStep converts elapsed wall time into a whole number of fixed
// physics ticks. Simulated time is derived from the tick count, so it
// never accumulates rounding error.
type FixedStep struct {
	delta      float64 // seconds per tick
	scale      float64 // simulated seconds per wall second
	maxCatchUp int

	acc     float64
	ticks   int64
	dropped int64

	// base is the simulated time at baseTicks, set when delta changes.
	base      float64
	baseTicks int64
}

// NewFixedStep returns an accumulator for ticks of delta seconds.
// Non-positive scale is treated as 1 and non-positive maxCatchUp as
// DefaultMaxCatchUp.
func NewFixedStep(delta, scale float64, maxCatchUp int) *FixedStep {
	if !(scale > 0) {
		scale = 1
	}
	if maxCatchUp <= 0 {
		maxCatchUp = DefaultMaxCatchUp
	}
	return &FixedStep{delta: delta, scale: scale, maxCatchUp: maxCatchUp}
}

// Advance adds elapsed wall time and returns the fixed times of the ticks
// now due, oldest first. When more than maxCatchUp ticks are due the
// backlog beyond that is discarded and counted in Dropped.
func (f *FixedStep) Advance(elapsed time.Duration) []float64 {
	if elapsed <= 0 || !(f.delta > 0) {
		return nil
	}
	f.acc += elapsed.Seconds() * f.scale
	// Tolerance keeps an exact multiple of delta from falling one tick short.
	n := int(math.Floor(f.acc/f.delta + 1e-9))
	if n <= 0 {
		return nil
	}
	f.acc -= float64(n) * f.delta
	if f.acc < 0 {
		f.acc = 0
	}
	if n > f.maxCatchUp {
		f.dropped += int64(n - f.maxCatchUp)
		n = f.maxCatchUp
	}
	out := make([]float64, n)
	for i := range out {
		f.ticks++
		out[i] = f.Now()
	}
	return out
}

// SetDelta switches to ticks of delta seconds. Simulated time carries on
// from the latest tick and any partial tick already accumulated is
// discarded. Non-positive delta is ignored.
func (f *FixedStep) SetDelta(delta float64) {
	if !(delta > 0) || delta == f.delta {
		return
	}
	f.base = f.Now()
	f.baseTicks = f.ticks
	f.delta = delta
	f.acc = 0
}

// Delta returns the tick duration in seconds.
func (f *FixedStep) Delta() float64 { return f.delta }

// Ticks returns how many ticks have been produced.
func (f *FixedStep) Ticks() int64 { return f.ticks }

// Dropped returns how many ticks were discarded by the catch-up limit.
func (f *FixedStep) Dropped() int64 { return f.dropped }

// Now returns the simulated time of the latest tick.
func (f *FixedStep) Now() float64 {
	return f.base + float64(f.ticks-f.baseTicks)*f.delta
}
