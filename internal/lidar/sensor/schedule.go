package sensor

import (
	"fmt"
	"math"
)

// stepBudgetDivisor caps rotation stepping at one fifth of the physics tick
// rate, leaving the rest of each tick for other physics work.
const stepBudgetDivisor = 5

// StepsPerLap returns how many angular increments make one full rotation.
func StepsPerLap(angularStepDeg float64) float64 {
	return 360 / math.Abs(angularStepDeg)
}

// StepsPossiblePerTick returns the stepping budget for a fixed tick.
func StepsPossiblePerTick(fixedDelta float64) float64 {
	return 1 / fixedDelta / stepBudgetDivisor
}

// SubSteps returns how many angular increments must be taken each time a
// sweep fires. When a lap needs more steps than the tick budget allows the
// count is ceil(needed/possible), then raised to the next divisor of 360 so
// that laps always land on an exact multiple of the step. Counts that
// cannot be rounded to a divisor (above 360) are rejected.
func SubSteps(angularStepDeg, fixedDelta float64) (int, error) {
	needed := StepsPerLap(angularStepDeg)
	possible := StepsPossiblePerTick(fixedDelta)
	if needed <= possible {
		return 1, nil
	}
	// Trim float noise so an exact ratio such as 400/10 stays 40.
	n := int(math.Ceil(needed/possible - 1e-9))
	for n <= 360 && 360%n != 0 {
		n++
	}
	if n > 360 {
		return 0, fmt.Errorf("%w: step %.4g° at tick %.4gs needs %d sub-steps per sweep (max 360)",
			ErrInvalidConfig, angularStepDeg, fixedDelta, int(math.Ceil(needed/possible)))
	}
	return n, nil
}

// SweepInterval is the minimum simulated time between sweeps: the time one
// increment takes at the configured rotation rate, times the sub-steps
// taken per sweep.
func SweepInterval(angularStepDeg, rotationRateHz float64, subSteps int) float64 {
	return (1 / StepsPerLap(angularStepDeg) / rotationRateHz) * float64(subSteps)
}

// dividesFullTurn reports whether step evenly divides 360 degrees.
func dividesFullTurn(step float64) bool {
	if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return false
	}
	n := StepsPerLap(step)
	return math.Abs(n-math.Round(n)) <= 1e-9*math.Max(1, n)
}
