package monitor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/lidarsim/internal/lidar"
	"github.com/banshee-data/lidarsim/internal/monitoring"
	"github.com/banshee-data/lidarsim/internal/timeutil"
)

// StatsSnapshot is the throughput over the last reporting interval.
type StatsSnapshot struct {
	SweepsPerSec float64   `json:"sweeps_per_sec"`
	PointsPerSec float64   `json:"points_per_sec"`
	Timestamp    time.Time `json:"timestamp"`
}

// SweepStats tracks published sweep throughput in wall time.
type SweepStats struct {
	clock timeutil.Clock

	mu        sync.Mutex
	sweeps    int64
	points    int64
	lastReset time.Time
	startTime time.Time
	latest    *StatsSnapshot
}

// NewSweepStats returns a counter reading clock. A nil clock uses the
// wall clock.
func NewSweepStats(clock timeutil.Clock) *SweepStats {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now()
	return &SweepStats{clock: clock, lastReset: now, startTime: now}
}

// Attach counts every sweep src publishes.
func (s *SweepStats) Attach(src lidar.Source) lidar.Subscription {
	return src.Subscribe(func(_ float64, b lidar.ScanBatch) { s.AddSweep(b.Len()) })
}

// AddSweep records one sweep carrying the given number of returns.
func (s *SweepStats) AddSweep(points int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	s.points += int64(points)
}

// GetAndReset returns the counts since the last reset and clears them.
func (s *SweepStats) GetAndReset() (sweeps, points int64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	duration = now.Sub(s.lastReset)
	sweeps, points = s.sweeps, s.points
	s.sweeps, s.points = 0, 0
	s.lastReset = now
	return sweeps, points, duration
}

// LogStats publishes a snapshot for the web interface and logs it to the
// diagnostic stream. Idle intervals leave the previous snapshot in place.
func (s *SweepStats) LogStats() {
	sweeps, points, duration := s.GetAndReset()
	if sweeps == 0 || duration <= 0 {
		return
	}
	snap := &StatsSnapshot{
		SweepsPerSec: float64(sweeps) / duration.Seconds(),
		PointsPerSec: float64(points) / duration.Seconds(),
		Timestamp:    s.clock.Now(),
	}
	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()

	monitoring.Diagf("lidar stats (/sec): %.1f sweeps, %s points",
		snap.SweepsPerSec, FormatWithCommas(int64(snap.PointsPerSec)))
}

// Run calls LogStats every interval until ctx is cancelled.
func (s *SweepStats) Run(ctx context.Context, interval time.Duration) error {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.LogStats()
		}
	}
}

// GetUptime returns the time since the stats were created.
func (s *SweepStats) GetUptime() time.Duration {
	return s.clock.Since(s.startTime)
}

// GetLatestSnapshot returns a copy of the most recent snapshot, or nil.
func (s *SweepStats) GetLatestSnapshot() *StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil
	}
	snap := *s.latest
	return &snap
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	if n < 0 {
		return "-" + FormatWithCommas(-n)
	}
	str := strconv.FormatInt(n, 10)
	if len(str) <= 3 {
		return str
	}
	out := make([]byte, 0, len(str)+len(str)/3)
	for i := range len(str) {
		if i > 0 && (len(str)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, str[i])
	}
	return string(out)
}

func formatMeters(v float64) string { return fmt.Sprintf("%.2f m", v) }
