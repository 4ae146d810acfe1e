package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/lidarsim/internal/lidar"
	"github.com/banshee-data/lidarsim/internal/lidar/pointcloud"
	"github.com/banshee-data/lidarsim/internal/lidar/sensor"
	"github.com/banshee-data/lidarsim/internal/lidar/storage"
	"github.com/banshee-data/lidarsim/internal/lidar/stream"
	"github.com/banshee-data/lidarsim/internal/monitoring"
	"github.com/banshee-data/lidarsim/internal/timeutil"
)

// Options configures a Runtime.
type Options struct {
	FrameInterval time.Duration // wall time between frames
	TimeScale     float64       // simulated seconds per wall second
	MaxCatchUp    int           // ticks allowed per frame before backlog is dropped
	Cloud         pointcloud.Options
	Stream        stream.Options
}

func (o Options) withDefaults() Options {
	if o.FrameInterval <= 0 {
		o.FrameInterval = 10 * time.Millisecond
	}
	if !(o.TimeScale > 0) {
		o.TimeScale = 1
	}
	return o
}

// Stats summarises runtime progress.
type Stats struct {
	Frames       int64   `json:"frames"`
	Ticks        int64   `json:"ticks"`
	Sweeps       int64   `json:"sweeps"`
	DroppedTicks int64   `json:"dropped_ticks"`
	SimTime      float64 `json:"sim_time"`
}

// Runtime bundles a sensor with the consumers of its sweeps. The wiring is
// fixed at construction; nothing is looked up through globals.
type Runtime struct {
	Sensor *sensor.Sensor
	Store  *storage.Store
	Cloud  *pointcloud.Cloud
	Hub    *stream.Hub

	clock timeutil.Clock
	opts  Options

	recording lidar.Subscription
	loaded    lidar.Subscription
	specs     lidar.Subscription

	deltaMu   sync.Mutex
	nextDelta float64 // applied by the next Step; 0 when unchanged

	mu     sync.Mutex
	step   *timeutil.FixedStep
	frames int64
	sweeps int64
}

// New attaches a store, a point cloud and a stream hub to s. The fixed
// tick length is taken from the sensor's current configuration and
// follows later re-initialisation. Data loaded into the store replaces
// the cloud contents.
func New(s *sensor.Sensor, clock timeutil.Clock, opts Options) *Runtime {
	opts = opts.withDefaults()
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	delta := s.Config().FixedDelta
	if !(delta > 0) {
		delta = sensor.DefaultConfig().FixedDelta
	}
	r := &Runtime{
		Sensor: s,
		Store:  storage.NewStore(),
		Cloud:  pointcloud.NewCloud(s, opts.Cloud),
		Hub:    stream.NewHub(s, opts.Stream),
		clock:  clock,
		opts:   opts,
		step:   timeutil.NewFixedStep(delta, opts.TimeScale, opts.MaxCatchUp),
	}
	r.recording = r.Store.Attach(s)
	r.loaded = r.Store.OnData(func() { r.Cloud.LoadAll(r.Store.Flatten()) })
	r.specs = s.OnSpecChanged(func(int, float64, float64) {
		if d := s.Config().FixedDelta; d > 0 {
			r.deltaMu.Lock()
			r.nextDelta = d
			r.deltaMu.Unlock()
		}
	})
	return r
}

// applyDelta switches the accumulator to a tick length reported since the
// last frame. Caller holds r.mu.
func (r *Runtime) applyDelta() {
	r.deltaMu.Lock()
	d := r.nextDelta
	r.nextDelta = 0
	r.deltaMu.Unlock()
	if d > 0 && d != r.step.Delta() {
		monitoring.Diagf("runtime: tick length %gs -> %gs", r.step.Delta(), d)
		r.step.SetDelta(d)
	}
}

// Step feeds elapsed wall time through the fixed-step accumulator and
// ticks the sensor for every tick now due. It returns the number of
// sweeps fired.
func (r *Runtime) Step(elapsed time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	r.applyDelta()
	before := r.step.Dropped()
	fired := 0
	for _, t := range r.step.Advance(elapsed) {
		if r.Sensor.Tick(t) {
			fired++
		}
	}
	if dropped := r.step.Dropped() - before; dropped > 0 {
		monitoring.Opsf("runtime: fell behind, dropped %d ticks", dropped)
	}
	r.sweeps += int64(fired)
	return fired
}

// Run steps the sensor once per frame until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.opts.FrameInterval)
	defer ticker.Stop()
	last := r.clock.Now()
	monitoring.Opsf("runtime: started, frame %v, time scale %.3g", r.opts.FrameInterval, r.opts.TimeScale)

	for {
		select {
		case <-ctx.Done():
			st := r.Stats()
			monitoring.Opsf("runtime: stopped after %.2fs simulated, %d sweeps", st.SimTime, st.Sweeps)
			return nil
		case now := <-ticker.C():
			r.Step(now.Sub(last))
			last = now
		}
	}
}

// Stats returns a snapshot of the counters.
func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Frames:       r.frames,
		Ticks:        r.step.Ticks(),
		Sweeps:       r.sweeps,
		DroppedTicks: r.step.Dropped(),
		SimTime:      r.step.Now(),
	}
}

// Close detaches every consumer from the sensor. The store keeps the data
// recorded so far.
func (r *Runtime) Close() {
	r.recording.Cancel()
	r.loaded.Cancel()
	r.specs.Cancel()
	r.Cloud.Close()
	r.Hub.Close()
}
