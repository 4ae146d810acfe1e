package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/lidarsim/internal/testutil"
	"github.com/banshee-data/lidarsim/internal/timeutil"
)

func TestSweepStats_GetAndReset(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	stats := NewSweepStats(clock)
	stats.AddSweep(10)
	stats.AddSweep(5)
	clock.Advance(2 * time.Second)

	sweeps, points, d := stats.GetAndReset()
	if sweeps != 2 || points != 15 || d != 2*time.Second {
		t.Errorf("got %d sweeps, %d points over %v", sweeps, points, d)
	}
	sweeps, points, _ = stats.GetAndReset()
	if sweeps != 0 || points != 0 {
		t.Errorf("counters not reset: %d, %d", sweeps, points)
	}
}

func TestSweepStats_AttachCountsSource(t *testing.T) {
	src := testutil.NewFakeSource(2, 1, 90)
	stats := NewSweepStats(timeutil.NewMockClock(time.Unix(0, 0)))
	sub := stats.Attach(src)

	src.Publish(testutil.Batch(1, 3, 5))
	sub.Cancel()
	src.Publish(testutil.Batch(2, 3, 5))

	sweeps, points, _ := stats.GetAndReset()
	if sweeps != 1 || points != 3 {
		t.Errorf("got %d sweeps, %d points, want 1, 3", sweeps, points)
	}
}

func TestSweepStats_LogStatsSnapshot(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	stats := NewSweepStats(clock)
	if stats.GetLatestSnapshot() != nil {
		t.Fatal("snapshot before any interval")
	}

	stats.AddSweep(100)
	stats.AddSweep(100)
	clock.Advance(time.Second)
	stats.LogStats()

	snap := stats.GetLatestSnapshot()
	if snap == nil {
		t.Fatal("no snapshot after LogStats")
	}
	if snap.SweepsPerSec != 2 || snap.PointsPerSec != 200 {
		t.Errorf("snapshot = %+v", snap)
	}

	// An idle interval keeps the previous snapshot.
	clock.Advance(time.Second)
	stats.LogStats()
	if got := stats.GetLatestSnapshot(); got.PointsPerSec != 200 {
		t.Errorf("idle interval replaced snapshot: %+v", got)
	}
	if stats.GetUptime() != 2*time.Second {
		t.Errorf("uptime = %v", stats.GetUptime())
	}
}

func TestSweepStats_RunLogsOnTicker(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	stats := NewSweepStats(clock)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		stats.Run(ctx, time.Second)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for stats.GetLatestSnapshot() == nil && time.Now().Before(deadline) {
		stats.AddSweep(1)
		clock.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
	cancel()
	wg.Wait()
	if stats.GetLatestSnapshot() == nil {
		t.Fatal("Run never produced a snapshot")
	}
}

func TestSweepStats_ConcurrentAdds(t *testing.T) {
	stats := NewSweepStats(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				stats.AddSweep(2)
			}
		}()
	}
	wg.Wait()
	sweeps, points, _ := stats.GetAndReset()
	if sweeps != 8000 || points != 16000 {
		t.Errorf("got %d sweeps, %d points", sweeps, points)
	}
}

func TestFormatWithCommas(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{25600, "25,600"},
		{1234567, "1,234,567"},
		{-1234, "-1,234"},
	}
	for _, tt := range tests {
		if got := FormatWithCommas(tt.in); got != tt.want {
			t.Errorf("FormatWithCommas(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
