package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/lidarsim/internal/lidar/pointcloud"
	"github.com/banshee-data/lidarsim/internal/lidar/sensor"
	"github.com/banshee-data/lidarsim/internal/lidar/world"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultSimConfig_MatchesPackageDefaults(t *testing.T) {
	cfg := DefaultSimConfig()
	if got, want := cfg.ToSensorConfig(), sensor.DefaultConfig(); got != want {
		t.Errorf("ToSensorConfig() = %+v, want %+v", got, want)
	}
	if got, want := cfg.ToCloudOptions(), pointcloud.DefaultOptions(); got != want {
		t.Errorf("ToCloudOptions() = %+v, want %+v", got, want)
	}
	if got, want := cfg.ToSpawnOptions(), world.DefaultSpawnOptions(); got != want {
		t.Errorf("ToSpawnOptions() = %+v, want %+v", got, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestEmptySimConfig_Getters(t *testing.T) {
	cfg := EmptySimConfig()
	if cfg.GetSeed() != 1 {
		t.Errorf("GetSeed() = %d, want 1", cfg.GetSeed())
	}
	if cfg.GetListenAddr() != ":8082" {
		t.Errorf("GetListenAddr() = %q", cfg.GetListenAddr())
	}
	if cfg.GetScanLogPath() != "" || cfg.GetArchivePath() != "" {
		t.Error("output paths should default to disabled")
	}
	if cfg.GetLoadPath() != "" {
		t.Errorf("GetLoadPath() = %q, want empty", cfg.GetLoadPath())
	}
	if cfg.GetRunDuration() != 0 {
		t.Errorf("GetRunDuration() = %v, want 0", cfg.GetRunDuration())
	}
	if cfg.GetTimeScale() != 1 {
		t.Errorf("GetTimeScale() = %v, want 1", cfg.GetTimeScale())
	}
	if cfg.ToSensorConfig() != sensor.DefaultConfig() {
		t.Error("empty config should produce the default sensor config")
	}
}

func TestLoadSimConfig_JSONPartial(t *testing.T) {
	path := writeConfig(t, "sim.json", `{
  "laser_count": 16,
  "rotation_rate_hz": 10,
  "angular_step_deg": 2,
  "run_duration": "45s",
  "listen_addr": "127.0.0.1:9000"
}`)
	cfg, err := LoadSimConfig(path)
	if err != nil {
		t.Fatalf("LoadSimConfig: %v", err)
	}
	sc := cfg.ToSensorConfig()
	if sc.LaserCount != 16 || sc.RotationRateHz != 10 || sc.AngularStepDeg != 2 {
		t.Errorf("sensor config = %+v", sc)
	}
	if sc.MaxDistance != sensor.DefaultConfig().MaxDistance {
		t.Errorf("unset max_distance = %v, want default", sc.MaxDistance)
	}
	if cfg.GetRunDuration() != 45*time.Second {
		t.Errorf("GetRunDuration() = %v", cfg.GetRunDuration())
	}
	if cfg.GetListenAddr() != "127.0.0.1:9000" {
		t.Errorf("GetListenAddr() = %q", cfg.GetListenAddr())
	}
}

func TestLoadSimConfig_YAML(t *testing.T) {
	for _, name := range []string{"sim.yaml", "sim.yml"} {
		path := writeConfig(t, name, "laser_count: 8\nangular_step_deg: 5\ncloud_capacity: 250\ntime_scale: 2.5\nseed: 42\nload_path: logs/prev.txt\n")
		cfg, err := LoadSimConfig(path)
		if err != nil {
			t.Fatalf("LoadSimConfig(%s): %v", name, err)
		}
		if cfg.ToSensorConfig().LaserCount != 8 || cfg.ToSensorConfig().AngularStepDeg != 5 {
			t.Errorf("%s: sensor config = %+v", name, cfg.ToSensorConfig())
		}
		if cfg.ToCloudOptions().Capacity != 250 {
			t.Errorf("%s: capacity = %d", name, cfg.ToCloudOptions().Capacity)
		}
		if cfg.GetTimeScale() != 2.5 || cfg.GetSeed() != 42 {
			t.Errorf("%s: time scale %v seed %d", name, cfg.GetTimeScale(), cfg.GetSeed())
		}
		if cfg.GetLoadPath() != "logs/prev.txt" {
			t.Errorf("%s: load path %q", name, cfg.GetLoadPath())
		}
	}
}

func TestLoadSimConfig_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "sim.toml", "laser_count = 1", "extension"},
		{"bad json", "sim.json", "{", "failed to parse"},
		{"bad yaml", "sim.yaml", "laser_count: [", "failed to parse"},
		{"bad step", "sim.json", `{"angular_step_deg": 7}`, "does not evenly divide 360"},
		{"zero lasers", "sim.json", `{"laser_count": 0}`, "laser count"},
		{"bad duration", "sim.json", `{"run_duration": "soon"}`, "run_duration"},
		{"time scale", "sim.yaml", "time_scale: 0\n", "time_scale"},
		{"capacity", "sim.json", `{"cloud_capacity": -1}`, "cloud_capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSimConfig(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSimConfig_SensorErrorsWrapSentinel(t *testing.T) {
	_, err := LoadSimConfig(writeConfig(t, "sim.json", `{"rotation_rate_hz": -1}`))
	if !errors.Is(err, sensor.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadSimConfig_TooLarge(t *testing.T) {
	big := `{"listen_addr": "` + strings.Repeat("x", maxFileSize) + `"}`
	_, err := LoadSimConfig(writeConfig(t, "big.json", big))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("err = %v, want size rejection", err)
	}
}

func TestLoadSimConfig_Missing(t *testing.T) {
	_, err := LoadSimConfig(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestMustLoadDefaultConfig_MatchesDefaults(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.ToSensorConfig() != sensor.DefaultConfig() {
		t.Errorf("defaults file sensor config = %+v", cfg.ToSensorConfig())
	}
	if cfg.ToCloudOptions() != pointcloud.DefaultOptions() {
		t.Errorf("defaults file cloud options = %+v", cfg.ToCloudOptions())
	}
	if cfg.GetListenAddr() != DefaultSimConfig().GetListenAddr() {
		t.Errorf("listen addr = %q", cfg.GetListenAddr())
	}
}
