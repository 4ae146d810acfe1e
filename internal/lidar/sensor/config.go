package sensor

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig wraps every configuration rejection from Init.
var ErrInvalidConfig = errors.New("invalid lidar config")

// Config describes a spinning multi-laser rangefinder.
type Config struct {
	LaserCount     int     // number of lasers, split into a lower and an upper bank
	RotationRateHz float64 // full rotations per second
	AngularStepDeg float64 // rotation per increment; must divide 360, sign sets direction
	MaxDistance    float64 // ray length in meters
	UpperFOV       float64 // upper bank spread in degrees
	LowerFOV       float64 // lower bank spread in degrees
	OffsetCm       float64 // vertical separation of the two banks, centimeters
	UpperNormal    float64 // upper bank center-normal in degrees
	LowerNormal    float64 // lower bank center-normal in degrees
	MinRange       float64 // returns at or below this distance are the sensor's own body
	FixedDelta     float64 // physics tick duration in seconds
}

// DefaultConfig returns a 64-laser, 1 Hz, 0.9° configuration.
func DefaultConfig() Config {
	return Config{
		LaserCount:     64,
		RotationRateHz: 1.0,
		AngularStepDeg: 0.9,
		MaxDistance:    120,
		UpperFOV:       10.5,
		LowerFOV:       16,
		OffsetCm:       2.85,
		UpperNormal:    -3.3,
		LowerNormal:    16.9,
		MinRange:       3,
		FixedDelta:     0.02,
	}
}

// Validate checks cfg and returns an ErrInvalidConfig-wrapped error.
func (c Config) Validate() error {
	if c.LaserCount <= 0 {
		return fmt.Errorf("%w: laser count must be positive, got %d", ErrInvalidConfig, c.LaserCount)
	}
	if !(c.RotationRateHz > 0) {
		return fmt.Errorf("%w: rotation rate must be positive, got %v", ErrInvalidConfig, c.RotationRateHz)
	}
	if !dividesFullTurn(c.AngularStepDeg) {
		return fmt.Errorf("%w: angular step %v does not evenly divide 360", ErrInvalidConfig, c.AngularStepDeg)
	}
	if !(c.MaxDistance > 0) {
		return fmt.Errorf("%w: max distance must be positive, got %v", ErrInvalidConfig, c.MaxDistance)
	}
	if !(c.FixedDelta > 0) {
		return fmt.Errorf("%w: fixed delta must be positive, got %v", ErrInvalidConfig, c.FixedDelta)
	}
	if c.MinRange < 0 {
		return fmt.Errorf("%w: min range must be non-negative, got %v", ErrInvalidConfig, c.MinRange)
	}
	if _, err := SubSteps(c.AngularStepDeg, c.FixedDelta); err != nil {
		return err
	}
	return nil
}
