// Package storage holds recorded scans in memory, keyed by scan time.
package storage

import (
	"math"
	"slices"
	"sync"

	"github.com/banshee-data/lidarsim/internal/lidar"
	"github.com/banshee-data/lidarsim/internal/monitoring"
)

// Data maps a scan key to the batches recorded under it, in recording
// order.
type Data map[float64][]lidar.ScanBatch

// PointCount returns the number of coordinates across all batches.
func (d Data) PointCount() int {
	n := 0
	for _, batches := range d {
		for _, b := range batches {
			n += b.Len()
		}
	}
	return n
}

// SortedKeys returns the keys in ascending order.
func (d Data) SortedKeys() []float64 {
	keys := make([]float64, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// DataHandler is notified after the store's contents are replaced.
type DataHandler func()

// Store is the time-keyed scan multimap. Record only ever appends; the
// whole map changes only through ReplaceAll.
type Store struct {
	mu     sync.RWMutex
	data   Data
	points int

	onData lidar.Observers[DataHandler]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: make(Data)}
}

// Record appends a copy of batch under key. A NaN key could never be
// looked up again, so such batches are dropped and logged.
func (s *Store) Record(key float64, batch lidar.ScanBatch) {
	if math.IsNaN(key) {
		monitoring.Opsf("scan store: dropped batch of %d points with NaN key", batch.Len())
		return
	}
	b := batch.Clone()
	b.Key = key
	s.mu.Lock()
	s.data[key] = append(s.data[key], b)
	s.points += b.Len()
	s.mu.Unlock()
}

// Attach records every sweep src publishes until the subscription is
// cancelled.
func (s *Store) Attach(src lidar.Source) lidar.Subscription {
	return src.Subscribe(s.Record)
}

// ReplaceAll swaps in data, which the store takes ownership of, and
// notifies OnData observers once.
func (s *Store) ReplaceAll(data Data) {
	if data == nil {
		data = make(Data)
	}
	points := data.PointCount()
	s.mu.Lock()
	s.data = data
	s.points = points
	s.mu.Unlock()

	monitoring.Diagf("scan store replaced: %d keys, %d points", len(data), points)
	s.onData.Notify(func(h DataHandler) { h() })
}

// OnData registers h to run after every ReplaceAll.
func (s *Store) OnData(h DataHandler) lidar.Subscription {
	return s.onData.Add(h)
}

// Keys returns the recorded keys in ascending order.
func (s *Store) Keys() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.SortedKeys()
}

// Batches returns the batches recorded under key. The returned batches must
// not be modified.
func (s *Store) Batches(key float64) []lidar.ScanBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data[key])
}

// Snapshot returns a copy of the map. Batches are shared and must not be
// modified.
func (s *Store) Snapshot() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Data, len(s.data))
	for k, v := range s.data {
		out[k] = slices.Clone(v)
	}
	return out
}

// Flatten returns every coordinate, keys ascending, batches in recording
// order.
func (s *Store) Flatten() []lidar.SphericalCoordinate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lidar.SphericalCoordinate, 0, s.points)
	for _, k := range s.data.SortedKeys() {
		for _, b := range s.data[k] {
			out = append(out, b.Points...)
		}
	}
	return out
}

// PointCount returns the number of recorded coordinates.
func (s *Store) PointCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points
}

// Len returns the number of distinct keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
