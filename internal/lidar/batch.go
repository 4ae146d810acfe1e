package lidar

// ScanBatch is the set of returns produced by one sweep step across all
// lasers, keyed by the lap timestamp current when the step fired. Batches
// are transient; consumers that retain one must copy it with Clone.
type ScanBatch struct {
	Key    float64
	Points []SphericalCoordinate
}

// Len returns the number of returns in the batch.
func (b ScanBatch) Len() int { return len(b.Points) }

// Clone returns a deep copy of the batch.
func (b ScanBatch) Clone() ScanBatch {
	pts := make([]SphericalCoordinate, len(b.Points))
	copy(pts, b.Points)
	return ScanBatch{Key: b.Key, Points: pts}
}

// ScanHandler receives published sweeps. Handlers run synchronously on the
// publishing goroutine and must not retain batch.Points without cloning.
type ScanHandler func(key float64, batch ScanBatch)

// SpecHandler receives sensor specification changes.
type SpecHandler func(laserCount int, rotationRateHz, angularStepDeg float64)

// Subscription is a handle to a registered observer.
type Subscription interface {
	ID() string
	Cancel()
}

// Source is the read side of a sensor: something that publishes sweeps and
// specification changes. Consumers take a Source at construction.
type Source interface {
	Subscribe(h ScanHandler) Subscription
	OnSpecChanged(h SpecHandler) Subscription
	Spec() (laserCount int, rotationRateHz, angularStepDeg float64)
}
