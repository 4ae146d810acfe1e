package storage

import (
	"math"
	"sync"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarsim/internal/lidar"
	"github.com/banshee-data/lidarsim/internal/lidar/sensor"
	"github.com/banshee-data/lidarsim/internal/lidar/world"
	"github.com/banshee-data/lidarsim/internal/testutil"
)

func TestStore_RecordNeverOverwrites(t *testing.T) {
	s := NewStore()
	s.Record(1.5, testutil.Batch(1.5, 2, 7))
	before := len(s.Batches(1.5))
	s.Record(1.5, testutil.Batch(1.5, 3, 7))

	got := s.Batches(1.5)
	if len(got) != before+1 {
		t.Fatalf("batches = %d, want %d", len(got), before+1)
	}
	if got[0].Len() != 2 || got[1].Len() != 3 {
		t.Errorf("batch sizes = %d, %d; want 2, 3", got[0].Len(), got[1].Len())
	}
	if s.PointCount() != 5 || s.Len() != 1 {
		t.Errorf("points=%d keys=%d, want 5 and 1", s.PointCount(), s.Len())
	}
}

func TestStore_RecordDropsNaNKey(t *testing.T) {
	s := NewStore()
	s.Record(math.NaN(), testutil.Batch(0, 3, 5))
	s.Record(math.NaN(), testutil.Batch(0, 2, 5))
	s.Record(1, testutil.Batch(1, 1, 5))

	if s.Len() != 1 || s.PointCount() != 1 {
		t.Fatalf("len %d points %d, want 1 key with 1 point", s.Len(), s.PointCount())
	}
	if got := len(s.Flatten()); got != s.PointCount() {
		t.Errorf("Flatten returned %d points, PointCount %d", got, s.PointCount())
	}
}

func TestStore_RecordCopiesBatch(t *testing.T) {
	s := NewStore()
	b := testutil.Batch(0, 2, 7)
	s.Record(0, b)
	b.Points[0] = testutil.Point(0, 99, 0, 0, 0)

	if r := s.Batches(0)[0].Points[0].Radius(); r != 7 {
		t.Errorf("stored radius = %v, want 7 (caller mutation leaked)", r)
	}
}

func TestStore_KeysSortedAndFlatten(t *testing.T) {
	s := NewStore()
	s.Record(3, testutil.Batch(3, 1, 30))
	s.Record(1, testutil.Batch(1, 2, 10))
	s.Record(2, testutil.Batch(2, 1, 20))
	s.Record(1, testutil.Batch(1, 1, 11))

	keys := s.Keys()
	want := []float64{1, 2, 3}
	if len(keys) != 3 || keys[0] != want[0] || keys[1] != want[1] || keys[2] != want[2] {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	var radii []float64
	for _, p := range s.Flatten() {
		radii = append(radii, p.Radius())
	}
	wantR := []float64{10, 10, 11, 20, 30}
	if len(radii) != len(wantR) {
		t.Fatalf("flatten = %v, want %v", radii, wantR)
	}
	for i := range wantR {
		if radii[i] != wantR[i] {
			t.Errorf("flatten[%d] = %v, want %v", i, radii[i], wantR[i])
		}
	}
}

func TestStore_ReplaceAllNotifiesOnce(t *testing.T) {
	s := NewStore()
	s.Record(0, testutil.Batch(0, 4, 7))

	calls := 0
	sub := s.OnData(func() { calls++ })

	s.ReplaceAll(Data{
		lidar.ForeignScanKey: {testutil.Batch(lidar.ForeignScanKey, 2, 3)},
		5:                    {testutil.Batch(5, 1, 3), testutil.Batch(5, 1, 3)},
	})
	if calls != 1 {
		t.Fatalf("notifications = %d, want 1", calls)
	}
	if s.Len() != 2 || s.PointCount() != 4 {
		t.Errorf("keys=%d points=%d, want 2 and 4", s.Len(), s.PointCount())
	}
	if len(s.Batches(0)) != 0 {
		t.Error("old data survived ReplaceAll")
	}

	sub.Cancel()
	s.ReplaceAll(nil)
	if calls != 1 {
		t.Errorf("cancelled observer notified")
	}
	if s.Len() != 0 || s.PointCount() != 0 {
		t.Errorf("ReplaceAll(nil) left %d keys", s.Len())
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.Record(1, testutil.Batch(1, 1, 7))
	snap := s.Snapshot()
	s.Record(1, testutil.Batch(1, 1, 7))
	if len(snap[1]) != 1 {
		t.Errorf("snapshot grew to %d batches", len(snap[1]))
	}
}

func TestStore_AttachToSensor(t *testing.T) {
	scene := world.NewScene(world.NewBox(r3.Vec{}, r3.Vec{X: 50, Y: 50, Z: 50}))
	sen := sensor.New(scene, nil)
	cfg := sensor.DefaultConfig()
	cfg.LaserCount = 4
	cfg.AngularStepDeg = 90
	if err := sen.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s := NewStore()
	sub := s.Attach(sen)
	for k := 1; k <= 60; k++ {
		sen.Tick(float64(k) * cfg.FixedDelta)
	}
	sub.Cancel()

	st := sen.Stats()
	if uint64(s.PointCount()) != st.Hits {
		t.Errorf("stored %d points, sensor reported %d hits", s.PointCount(), st.Hits)
	}
	total := 0
	for _, k := range s.Keys() {
		total += len(s.Batches(k))
	}
	if uint64(total) != st.Sweeps {
		t.Errorf("stored %d batches, sensor fired %d sweeps", total, st.Sweeps)
	}
}

func TestStore_ConcurrentRecord(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Record(float64(i%5), testutil.Batch(0, 1, 7))
				_ = s.Flatten()
			}
		}()
	}
	wg.Wait()
	if s.PointCount() != 800 {
		t.Errorf("points = %d, want 800", s.PointCount())
	}
}
