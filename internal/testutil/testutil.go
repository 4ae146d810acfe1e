// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarsim/internal/lidar"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// FakeSource is a lidar.Source driven by hand from tests.
type FakeSource struct {
	mu         sync.Mutex
	laserCount int
	rate, step float64

	scans lidar.Observers[lidar.ScanHandler]
	specs lidar.Observers[lidar.SpecHandler]
}

// NewFakeSource returns a source reporting the given spec.
func NewFakeSource(laserCount int, rate, step float64) *FakeSource {
	return &FakeSource{laserCount: laserCount, rate: rate, step: step}
}

// Subscribe implements lidar.Source.
func (f *FakeSource) Subscribe(h lidar.ScanHandler) lidar.Subscription { return f.scans.Add(h) }

// OnSpecChanged implements lidar.Source.
func (f *FakeSource) OnSpecChanged(h lidar.SpecHandler) lidar.Subscription { return f.specs.Add(h) }

// Spec implements lidar.Source.
func (f *FakeSource) Spec() (int, float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.laserCount, f.rate, f.step
}

// Publish delivers batch to every sweep subscriber.
func (f *FakeSource) Publish(batch lidar.ScanBatch) {
	f.scans.Notify(func(h lidar.ScanHandler) { h(batch.Key, batch) })
}

// SetSpec updates the spec and notifies spec observers.
func (f *FakeSource) SetSpec(laserCount int, rate, step float64) {
	f.mu.Lock()
	f.laserCount, f.rate, f.step = laserCount, rate, step
	f.mu.Unlock()
	f.specs.Notify(func(h lidar.SpecHandler) { h(laserCount, rate, step) })
}

// Subscribers returns the number of live sweep subscriptions.
func (f *FakeSource) Subscribers() int { return f.scans.Len() }

// Batch builds a batch of n coordinates at the given radius, spread around
// the rotor at zero inclination.
func Batch(key float64, n int, radius float64) lidar.ScanBatch {
	pts := make([]lidar.SphericalCoordinate, 0, n)
	for i := 0; i < n; i++ {
		az := float64(i) * 360 / float64(max(n, 1))
		p := lidar.SphericalToCartesian(radius, az, 0)
		pts = append(pts, lidar.NewSphericalCoordinate(radius, 0, az, p, i%2, key))
	}
	return lidar.ScanBatch{Key: key, Points: pts}
}

// Point builds a single coordinate at the origin-relative position of
// (radius, azimuth, inclination).
func Point(key, radius, az, incl float64, laser int) lidar.SphericalCoordinate {
	return lidar.NewSphericalCoordinate(radius, incl, az, lidar.SphericalToCartesian(radius, az, incl), laser, key)
}

// Vec is shorthand for r3.Vec in table tests.
func Vec(x, y, z float64) r3.Vec { return r3.Vec{X: x, Y: y, Z: z} }
