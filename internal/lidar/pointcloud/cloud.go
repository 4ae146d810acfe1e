// Package pointcloud keeps the most recent sensor returns in a ring of
// fixed-capacity render buffers backed by a reusable record arena.
package pointcloud

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarsim/internal/lidar"
	"github.com/banshee-data/lidarsim/internal/monitoring"
)

// Point-size tiers by maximum points per lap.
const (
	sizeTierSmall = 250000
	sizeTierLarge = 750000
)

// Options configures a Cloud.
type Options struct {
	Buffers   int     // initial buffer count; grows with the sensor spec
	Capacity  int     // per-buffer capacity ceiling
	PointSize float64 // size used until the first spec arrives
}

// DefaultOptions returns 50 buffers of 500 points at size 0.1.
func DefaultOptions() Options {
	return Options{Buffers: 50, Capacity: 500, PointSize: 0.1}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Buffers <= 0 {
		o.Buffers = d.Buffers
	}
	if o.Capacity <= 0 {
		o.Capacity = d.Capacity
	}
	if o.PointSize <= 0 {
		o.PointSize = d.PointSize
	}
	return o
}

// Point is a rendered point as returned by Snapshot.
type Point struct {
	Position r3.Vec
	Radius   float64
	Band     Band
	Size     float64
}

// Stats describes the cloud's occupancy.
type Stats struct {
	Buffers           int
	Capacity          int
	Current           int
	Live              int
	Allocated         int
	Free              int
	PointSize         float64
	MaxPointsPerSweep int
	Playing           bool
}

// Cloud is the rendered point cloud. Ingest runs on the sensor's publishing
// goroutine; readers such as the monitor may call Snapshot concurrently.
type Cloud struct {
	src lidar.Source

	mu        sync.Mutex
	capacity  int
	size      float64
	maxPoints int
	arena     *Arena
	buffers   [][]Handle
	current   int
	playing   bool
	sweepSub  lidar.Subscription
	specSub   lidar.Subscription
}

// NewCloud builds a cloud fed by src and starts it playing. The cloud picks
// up src's current spec and follows later spec changes. A nil src yields a
// cloud that is only fed through Ingest and LoadAll.
func NewCloud(src lidar.Source, opts Options) *Cloud {
	opts = opts.withDefaults()
	c := &Cloud{
		src:      src,
		capacity: opts.Capacity,
		size:     opts.PointSize,
		arena:    NewArena(opts.Buffers * opts.Capacity),
		buffers:  make([][]Handle, opts.Buffers),
	}
	if src != nil {
		c.specSub = src.OnSpecChanged(c.UpdateSpecs)
		if n, rate, step := src.Spec(); n > 0 {
			c.UpdateSpecs(n, rate, step)
		}
	}
	c.Play()
	return c
}

// Ingest adds one sweep batch. The buffer index advances first when the
// current buffer already holds more than the capacity, so a buffer may
// exceed capacity by up to one batch. A selected buffer that is over
// capacity holds stale data from a previous pass and is replaced by the
// batch, recycling its records in place; otherwise the batch is appended.
func (c *Cloud) Ingest(batch lidar.ScanBatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ingestLocked(batch.Points)
}

func (c *Cloud) ingestLocked(points []lidar.SphericalCoordinate) {
	if len(c.buffers[c.current]) > c.capacity {
		c.current = (c.current + 1) % len(c.buffers)
	}
	buf := c.buffers[c.current]

	var stale []Handle
	if len(buf) > c.capacity {
		stale = buf
		buf = buf[:0]
	}
	for i, p := range points {
		var h Handle
		if i < len(stale) {
			h = stale[i]
		} else {
			h = c.arena.Acquire()
		}
		c.fill(c.arena.Get(h), p)
		buf = append(buf, h)
	}
	for i := len(points); i < len(stale); i++ {
		c.arena.Release(stale[i])
	}
	c.buffers[c.current] = buf
}

func (c *Cloud) fill(r *Record, p lidar.SphericalCoordinate) {
	r.Position = p.ToCartesian()
	r.Radius = p.Radius()
	r.Band = BandFor(r.Radius)
	r.Size = c.size
	r.Start = StartLifetime
	r.Remaining = RemainingLifetime
}

// UpdateSpecs resizes for a new sensor specification: the point size
// follows the maximum points per lap, and buffers are added when the lap
// no longer fits. Buffers are never removed.
func (c *Cloud) UpdateSpecs(laserCount int, rotationRateHz, angularStepDeg float64) {
	if laserCount <= 0 || angularStepDeg == 0 {
		return
	}
	maxPoints := int(math.Ceil(360 * float64(laserCount) / math.Abs(angularStepDeg)))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxPoints = maxPoints
	switch {
	case maxPoints < sizeTierSmall:
		c.size = 0.1
	case maxPoints < sizeTierLarge:
		c.size = 0.05
	default:
		c.size = 0.01
	}
	needed := int(math.Ceil(float64(maxPoints) / float64(c.capacity)))
	if needed > len(c.buffers) {
		monitoring.Diagf("point cloud: growing %d -> %d buffers for %d points per lap", len(c.buffers), needed, maxPoints)
		c.buffers = append(c.buffers, make([][]Handle, needed-len(c.buffers))...)
	}
}

// Play subscribes to the source's sweeps. It is a no-op while playing.
func (c *Cloud) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.playing = true
	if c.src != nil {
		c.sweepSub = c.src.Subscribe(c.ingestPlaying)
	}
}

// ingestPlaying is the sweep handler. A publish already in flight when
// Pause runs may still deliver, so the playing flag is rechecked.
func (c *Cloud) ingestPlaying(_ float64, b lidar.ScanBatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.ingestLocked(b.Points)
}

// Pause unsubscribes from sweeps and empties every buffer.
func (c *Cloud) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sweepSub != nil {
		c.sweepSub.Cancel()
		c.sweepSub = nil
	}
	c.playing = false
	c.clearLocked()
}

// Close detaches the cloud from its source.
func (c *Cloud) Close() {
	c.Pause()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.specSub != nil {
		c.specSub.Cancel()
		c.specSub = nil
	}
}

// Clear empties every buffer and rewinds to the first.
func (c *Cloud) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Cloud) clearLocked() {
	for i, buf := range c.buffers {
		for _, h := range buf {
			c.arena.Release(h)
		}
		c.buffers[i] = buf[:0]
	}
	c.current = 0
}

// LoadAll replaces the cloud contents with points, filling buffers to
// capacity in order and adding buffers as needed.
func (c *Cloud) LoadAll(points []lidar.SphericalCoordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	if len(points) == 0 {
		return
	}
	needed := (len(points) + c.capacity - 1) / c.capacity
	if needed > len(c.buffers) {
		c.buffers = append(c.buffers, make([][]Handle, needed-len(c.buffers))...)
	}
	for i := 0; i < needed; i++ {
		end := min((i+1)*c.capacity, len(points))
		buf := c.buffers[i][:0]
		for _, p := range points[i*c.capacity : end] {
			h := c.arena.Acquire()
			c.fill(c.arena.Get(h), p)
			buf = append(buf, h)
		}
		c.buffers[i] = buf
	}
	c.current = needed - 1
	monitoring.Diagf("point cloud: loaded %d points into %d buffers", len(points), needed)
}

// Snapshot copies every live point, oldest buffer index first.
func (c *Cloud) Snapshot() []Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Point, 0, c.arena.Live())
	for _, buf := range c.buffers {
		for _, h := range buf {
			r := c.arena.Get(h)
			out = append(out, Point{Position: r.Position, Radius: r.Radius, Band: r.Band, Size: r.Size})
		}
	}
	return out
}

// CurrentIndex returns the buffer the next batch is checked against.
func (c *Cloud) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// BufferCount returns the number of allocated buffers.
func (c *Cloud) BufferCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffers)
}

// BufferLen returns the number of points in buffer i.
func (c *Cloud) BufferLen(i int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.buffers) {
		return 0
	}
	return len(c.buffers[i])
}

// Len returns the number of live points.
func (c *Cloud) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arena.Live()
}

// PointSize returns the current point size.
func (c *Cloud) PointSize() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns an occupancy summary.
func (c *Cloud) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Buffers:           len(c.buffers),
		Capacity:          c.capacity,
		Current:           c.current,
		Live:              c.arena.Live(),
		Allocated:         c.arena.Allocated(),
		Free:              c.arena.Free(),
		PointSize:         c.size,
		MaxPointsPerSweep: c.maxPoints,
		Playing:           c.playing,
	}
}
