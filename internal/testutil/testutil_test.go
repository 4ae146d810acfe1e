package testutil

import (
	"errors"
	"math"
	"net/http"
	"testing"

	"github.com/banshee-data/lidarsim/internal/lidar"
)

func TestAssertHelpers(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertNoError(t, nil)
	AssertError(t, errors.New("test error"))
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()

	req := NewTestRequest("GET", "/test")
	if req.Method != "GET" {
		t.Errorf("method = %s, want GET", req.Method)
	}
	if req.URL.Path != "/test" {
		t.Errorf("path = %s, want /test", req.URL.Path)
	}
	if NewTestRecorder() == nil {
		t.Fatal("recorder is nil")
	}
}

func TestFakeSource(t *testing.T) {
	t.Parallel()

	src := NewFakeSource(2, 1, 90)
	var keys []float64
	sub := src.Subscribe(func(key float64, _ lidar.ScanBatch) { keys = append(keys, key) })

	var specs int
	src.OnSpecChanged(func(n int, _, _ float64) { specs = n })

	src.Publish(Batch(1.5, 3, 10))
	src.SetSpec(8, 2, 45)
	sub.Cancel()
	src.Publish(Batch(2.5, 3, 10))

	if len(keys) != 1 || keys[0] != 1.5 {
		t.Errorf("keys = %v, want [1.5]", keys)
	}
	if specs != 8 {
		t.Errorf("spec laser count = %d, want 8", specs)
	}
	if n, rate, step := src.Spec(); n != 8 || rate != 2 || step != 45 {
		t.Errorf("Spec() = (%d, %v, %v)", n, rate, step)
	}
	if src.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", src.Subscribers())
	}
}

func TestBatch(t *testing.T) {
	t.Parallel()

	b := Batch(3, 4, 7)
	if b.Len() != 4 || b.Key != 3 {
		t.Fatalf("batch = %+v", b)
	}
	for _, p := range b.Points {
		if math.Abs(p.Radius()-7) > 1e-12 || p.Time() != 3 {
			t.Errorf("point %v", p)
		}
	}
	if empty := Batch(0, 0, 1); empty.Len() != 0 {
		t.Errorf("empty batch len = %d", empty.Len())
	}
}
