package sensor

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarsim/internal/lidar"
	"github.com/banshee-data/lidarsim/internal/lidar/world"
)

// wallConfig is a two-laser rig: the upper laser is level, the lower one
// points 45° down, banks share the same origin.
func wallConfig() Config {
	return Config{
		LaserCount:     2,
		RotationRateHz: 1,
		AngularStepDeg: 90,
		MaxDistance:    100,
		UpperFOV:       0,
		LowerFOV:       0,
		OffsetCm:       0,
		UpperNormal:    0,
		LowerNormal:    45,
		MinRange:       3,
		FixedDelta:     0.02,
	}
}

// wallAhead is a 4x1x2 m slab whose near face sits 10 m ahead (+Y).
func wallAhead() *world.Scene {
	return world.NewScene(world.NewBox(r3.Vec{Y: 10.5}, r3.Vec{X: 4, Y: 1, Z: 2}))
}

type capture struct {
	batches []lidar.ScanBatch
}

func (c *capture) handle(key float64, b lidar.ScanBatch) {
	c.batches = append(c.batches, b.Clone())
}

func (c *capture) points() []lidar.SphericalCoordinate {
	var out []lidar.SphericalCoordinate
	for _, b := range c.batches {
		out = append(out, b.Points...)
	}
	return out
}

func runTicks(s *Sensor, from, to int, dt float64) {
	for k := from; k <= to; k++ {
		s.Tick(float64(k) * dt)
	}
}

func TestSensor_WallScenario(t *testing.T) {
	s := New(wallAhead(), nil)
	if err := s.Init(wallConfig()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var c capture
	s.Subscribe(c.handle)

	// One lap at 1 Hz with 90° steps fires every 0.26 s of 0.02 s ticks.
	runTicks(s, 1, 60, 0.02)

	if len(c.batches) != 4 {
		t.Fatalf("sweeps = %d, want 4", len(c.batches))
	}
	for i, b := range c.batches[:3] {
		if b.Len() != 0 {
			t.Errorf("step %d produced %d hits, want 0", i+1, b.Len())
		}
	}
	pts := c.points()
	if len(pts) != 1 {
		t.Fatalf("hits = %d, want 1", len(pts))
	}
	hit := pts[0]
	if math.Abs(hit.Azimuth()) > 1e-9 {
		t.Errorf("azimuth = %v, want 0", hit.Azimuth())
	}
	if math.Abs(hit.Radius()-10) > 1e-9 {
		t.Errorf("radius = %v, want 10", hit.Radius())
	}
	if hit.LaserID() != 1 {
		t.Errorf("laser = %d, want upper laser 1", hit.LaserID())
	}
	if math.Abs(c.batches[3].Key-1.04) > 1e-9 || math.Abs(hit.Time()-1.04) > 1e-9 {
		t.Errorf("lap key = %v (point %v), want 1.04", c.batches[3].Key, hit.Time())
	}
	if got := s.Stats(); got.Laps != 1 || got.Hits != 1 || got.Steps != 4 {
		t.Errorf("stats = %+v, want 1 lap, 1 hit, 4 steps", got)
	}
}

func TestSensor_PointConsistentWithAngles(t *testing.T) {
	scene := world.NewScene(world.NewBox(r3.Vec{}, r3.Vec{X: 40, Y: 40, Z: 40}))
	cfg := DefaultConfig()
	cfg.LaserCount = 8
	cfg.AngularStepDeg = 10
	cfg.OffsetCm = 0
	s := New(scene, nil)
	if err := s.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var c capture
	s.Subscribe(c.handle)
	runTicks(s, 1, 200, cfg.FixedDelta)

	pts := c.points()
	if len(pts) == 0 {
		t.Fatal("expected returns from the enclosing room")
	}
	for _, p := range pts {
		want := lidar.SphericalToCartesian(p.Radius(), p.Azimuth(), p.Inclination())
		if r3.Norm(r3.Sub(want, p.ToCartesian())) > 1e-6 {
			t.Fatalf("%v: point %+v inconsistent with %+v", p, p.ToCartesian(), want)
		}
	}
}

func TestSensor_SelfHitsDropped(t *testing.T) {
	scene := world.NewScene(world.NewBox(r3.Vec{Y: 2.5}, r3.Vec{X: 4, Y: 1, Z: 2}))
	s := New(scene, nil)
	if err := s.Init(wallConfig()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var c capture
	s.Subscribe(c.handle)
	runTicks(s, 1, 60, 0.02)
	if n := len(c.points()); n != 0 {
		t.Errorf("hits within MinRange = %d, want 0", n)
	}
}

func TestSensor_MountYaw(t *testing.T) {
	// Wall on +X; a mount yawed 90° sees it with the rotor at 0.
	scene := world.NewScene(world.NewBox(r3.Vec{X: 10.5}, r3.Vec{X: 1, Y: 4, Z: 2}))
	s := New(scene, StaticMount{YawDeg: 90})
	if err := s.Init(wallConfig()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var c capture
	s.Subscribe(c.handle)
	runTicks(s, 1, 60, 0.02)
	pts := c.points()
	if len(pts) != 1 {
		t.Fatalf("points = %v, want one hit", pts)
	}
	hit := pts[0]
	if math.Abs(hit.Azimuth()-90) > 1e-6 || math.Abs(hit.Inclination()) > 1e-6 {
		t.Errorf("angles az=%v incl=%v, want world-frame 90/0", hit.Azimuth(), hit.Inclination())
	}
	if math.Abs(hit.Radius()-10) > 1e-6 || math.Abs(hit.ToCartesian().X-10) > 1e-6 {
		t.Errorf("radius %v point %+v, want 10 m along +X", hit.Radius(), hit.ToCartesian())
	}
	want := lidar.SphericalToCartesian(hit.Radius(), hit.Azimuth(), hit.Inclination())
	if r3.Norm(r3.Sub(want, hit.ToCartesian())) > 1e-6 {
		t.Errorf("point %+v inconsistent with angles (%+v)", hit.ToCartesian(), want)
	}
}

func TestSensor_PosedMountPointsMatchAngles(t *testing.T) {
	pose := world.Pose{Position: r3.Vec{X: 1, Y: -2, Z: 3}, PitchDeg: 20, YawDeg: 35}
	scene := world.NewScene(world.NewBox(pose.Position, r3.Vec{X: 30, Y: 30, Z: 30}))
	cfg := DefaultConfig()
	cfg.LaserCount = 8
	cfg.AngularStepDeg = 10
	cfg.OffsetCm = 0
	s := New(scene, StaticMount(pose))
	if err := s.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var c capture
	s.Subscribe(c.handle)
	runTicks(s, 1, 200, cfg.FixedDelta)

	pts := c.points()
	if len(pts) == 0 {
		t.Fatal("expected returns from the enclosing room")
	}
	for _, p := range pts {
		want := r3.Add(pose.Position, lidar.SphericalToCartesian(p.Radius(), p.Azimuth(), p.Inclination()))
		if r3.Norm(r3.Sub(want, p.ToCartesian())) > 1e-6 {
			t.Fatalf("%v: point %+v, angles give %+v", p, p.ToCartesian(), want)
		}
	}
}

func TestSensor_NoDrift(t *testing.T) {
	steps := []float64{90, 45, 10, 3, 2, 1, 0.9, 0.5, 0.25, -45, -0.9}
	for _, step := range steps {
		cfg := wallConfig()
		cfg.AngularStepDeg = step
		s := New(world.NewScene(), nil)
		if err := s.Init(cfg); err != nil {
			t.Fatalf("step %v: Init: %v", step, err)
		}
		perLap := int(math.Round(StepsPerLap(step)))
		sub := s.SubStepCount()
		if perLap%sub != 0 {
			t.Fatalf("step %v: %d sub-steps do not divide %d steps per lap", step, sub, perLap)
		}
		sweepsPerLap := perLap / sub

		fired := 0
		for k := 1; fired < 3*sweepsPerLap; k++ {
			if s.Tick(float64(k) * cfg.FixedDelta) {
				fired++
			}
		}
		if got := s.HorizontalAngle(); got != 0 {
			t.Errorf("step %v: angle after 3 laps = %v, want exactly 0", step, got)
		}
		if got := s.Stats().Laps; got != 3 {
			t.Errorf("step %v: laps = %d, want 3", step, got)
		}
	}
}

func TestSensor_SubSteppingPerSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LaserCount = 2
	s := New(world.NewScene(), nil)
	if err := s.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if s.SubStepCount() != 40 {
		t.Fatalf("sub-steps = %d, want 40", s.SubStepCount())
	}
	runTicks(s, 1, 7, cfg.FixedDelta)
	st := s.Stats()
	if st.Sweeps != 1 || st.Steps != 40 {
		t.Errorf("stats = %+v, want 1 sweep of 40 steps", st)
	}
	if got := s.HorizontalAngle(); math.Abs(got-36) > 1e-9 {
		t.Errorf("angle = %v, want 36", got)
	}
}

func TestSensor_IdleIgnoresTicks(t *testing.T) {
	s := New(world.NewScene(), nil)
	if s.State() != Idle {
		t.Fatalf("state = %v, want idle", s.State())
	}
	if s.Tick(10) {
		t.Error("idle sensor fired")
	}
	if n, _, _ := s.Spec(); n != 0 {
		t.Errorf("idle spec laser count = %d, want 0", n)
	}
}

func TestSensor_StateMachine(t *testing.T) {
	s := New(world.NewScene(), nil)
	if err := s.Init(wallConfig()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if s.State() != Armed {
		t.Fatalf("state = %v, want armed", s.State())
	}
	runTicks(s, 1, 20, 0.02)
	if s.State() != Scanning {
		t.Fatalf("state = %v, want scanning", s.State())
	}
	if err := s.Init(wallConfig()); err != nil {
		t.Fatalf("re-Init: %v", err)
	}
	if s.State() != Armed || s.HorizontalAngle() != 0 {
		t.Errorf("after re-Init state=%v angle=%v, want armed at 0", s.State(), s.HorizontalAngle())
	}
}

func TestSensor_ReinitReplacesLasers(t *testing.T) {
	s := New(world.NewScene(), nil)
	cfg := wallConfig()
	if err := s.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	before := s.Lasers()

	cfg.LaserCount = 6
	if err := s.Init(cfg); err != nil {
		t.Fatalf("re-Init: %v", err)
	}
	after := s.Lasers()
	if len(after) != 6 {
		t.Fatalf("lasers = %d, want 6", len(after))
	}
	for _, old := range before {
		for _, l := range after {
			if old == l {
				t.Fatal("re-Init reused a laser from the previous array")
			}
		}
	}
}

func TestSensor_SpecChangedNotifications(t *testing.T) {
	s := New(world.NewScene(), nil)
	type spec struct {
		n          int
		rate, step float64
	}
	var got []spec
	sub := s.OnSpecChanged(func(n int, rate, step float64) {
		got = append(got, spec{n, rate, step})
	})

	cfg := wallConfig()
	if err := s.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	cfg.LaserCount = 4
	cfg.AngularStepDeg = 45
	if err := s.Init(cfg); err != nil {
		t.Fatalf("re-Init: %v", err)
	}
	sub.Cancel()
	if err := s.Init(cfg); err != nil {
		t.Fatalf("third Init: %v", err)
	}

	want := []spec{{2, 1, 90}, {4, 1, 45}}
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, got[i], want[i])
		}
	}
	if n, rate, step := s.Spec(); n != 4 || rate != 1 || step != 45 {
		t.Errorf("Spec() = (%d, %v, %v), want (4, 1, 45)", n, rate, step)
	}
}

func TestSensor_UnsubscribeStopsDelivery(t *testing.T) {
	s := New(wallAhead(), nil)
	if err := s.Init(wallConfig()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	calls := 0
	sub := s.Subscribe(func(float64, lidar.ScanBatch) { calls++ })
	runTicks(s, 1, 13, 0.02)
	sub.Cancel()
	runTicks(s, 14, 60, 0.02)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSensor_InitRejectsBadConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"zero lasers":       func(c *Config) { c.LaserCount = 0 },
		"negative rate":     func(c *Config) { c.RotationRateHz = -1 },
		"zero rate":         func(c *Config) { c.RotationRateHz = 0 },
		"zero step":         func(c *Config) { c.AngularStepDeg = 0 },
		"non divisor step":  func(c *Config) { c.AngularStepDeg = 7 },
		"zero distance":     func(c *Config) { c.MaxDistance = 0 },
		"zero tick":         func(c *Config) { c.FixedDelta = 0 },
		"negative minrange": func(c *Config) { c.MinRange = -1 },
		"too many substeps": func(c *Config) { c.AngularStepDeg = 0.05 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := wallConfig()
			mutate(&cfg)
			s := New(world.NewScene(), nil)
			err := s.Init(cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Init error = %v, want ErrInvalidConfig", err)
			}
			if s.State() != Idle {
				t.Errorf("state = %v after rejected Init, want idle", s.State())
			}
		})
	}
}

func TestBuildLasers_Layout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LaserCount = 4
	s := New(world.NewScene(), nil)
	if err := s.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	want := []struct {
		angle, offset float64
	}{
		{-24.9, -0.01425},
		{-16.9, -0.01425},
		{-8.55, 0.01425},
		{-3.3, 0.01425},
	}
	for i, l := range s.Lasers() {
		if l.ID() != i {
			t.Errorf("laser %d id = %d", i, l.ID())
		}
		if math.Abs(l.VerticalAngle()-want[i].angle) > 1e-9 {
			t.Errorf("laser %d angle = %v, want %v", i, l.VerticalAngle(), want[i].angle)
		}
		if math.Abs(l.Offset()-want[i].offset) > 1e-12 {
			t.Errorf("laser %d offset = %v, want %v", i, l.Offset(), want[i].offset)
		}
	}
}

func TestBuildLasers_SingleLaser(t *testing.T) {
	cfg := wallConfig()
	cfg.LaserCount = 1
	cfg.UpperFOV = 10
	s := New(world.NewScene(), nil)
	if err := s.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ls := s.Lasers()
	if len(ls) != 1 || math.Abs(ls[0].VerticalAngle()-(-5)) > 1e-9 {
		t.Fatalf("single laser angle = %v, want -5", ls[0].VerticalAngle())
	}
}

func TestSensor_Rays(t *testing.T) {
	s := New(wallAhead(), nil)
	if err := s.Init(wallConfig()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	rays := s.Rays()
	if len(rays) != 2 {
		t.Fatalf("rays = %d, want 2", len(rays))
	}
	if rays[0].Hit {
		t.Error("downward laser should miss the wall")
	}
	if !rays[1].Hit || math.Abs(rays[1].End.Y-10) > 1e-9 {
		t.Errorf("level laser ray = %+v, want hit at y=10", rays[1])
	}
}
