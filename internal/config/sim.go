package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/lidarsim/internal/lidar/pointcloud"
	"github.com/banshee-data/lidarsim/internal/lidar/sensor"
	"github.com/banshee-data/lidarsim/internal/lidar/world"
)

// DefaultConfigPath is the path to the canonical simulator defaults file.
const DefaultConfigPath = "config/lidarsim.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SimConfig is the simulator's file configuration. Every field is optional;
// the Get* accessors fall back to the built-in defaults, so partial files
// are safe.
type SimConfig struct {
	// Sensor
	LaserCount     *int     `json:"laser_count,omitempty" yaml:"laser_count,omitempty"`
	RotationRateHz *float64 `json:"rotation_rate_hz,omitempty" yaml:"rotation_rate_hz,omitempty"`
	AngularStepDeg *float64 `json:"angular_step_deg,omitempty" yaml:"angular_step_deg,omitempty"`
	MaxDistance    *float64 `json:"max_distance,omitempty" yaml:"max_distance,omitempty"`
	UpperFOV       *float64 `json:"upper_fov,omitempty" yaml:"upper_fov,omitempty"`
	LowerFOV       *float64 `json:"lower_fov,omitempty" yaml:"lower_fov,omitempty"`
	OffsetCm       *float64 `json:"offset_cm,omitempty" yaml:"offset_cm,omitempty"`
	UpperNormal    *float64 `json:"upper_normal,omitempty" yaml:"upper_normal,omitempty"`
	LowerNormal    *float64 `json:"lower_normal,omitempty" yaml:"lower_normal,omitempty"`
	MinRange       *float64 `json:"min_range,omitempty" yaml:"min_range,omitempty"`
	FixedDelta     *float64 `json:"fixed_delta,omitempty" yaml:"fixed_delta,omitempty"`

	// Point cloud
	CloudBuffers  *int     `json:"cloud_buffers,omitempty" yaml:"cloud_buffers,omitempty"`
	CloudCapacity *int     `json:"cloud_capacity,omitempty" yaml:"cloud_capacity,omitempty"`
	PointSize     *float64 `json:"point_size,omitempty" yaml:"point_size,omitempty"`

	// Spawn
	SpawnAttempts  *int     `json:"spawn_attempts,omitempty" yaml:"spawn_attempts,omitempty"`
	SpawnClearance *float64 `json:"spawn_clearance,omitempty" yaml:"spawn_clearance,omitempty"`
	Seed           *int64   `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Runtime
	ListenAddr  *string  `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	ScanLogPath *string  `json:"scan_log_path,omitempty" yaml:"scan_log_path,omitempty"`
	LoadPath    *string  `json:"load_path,omitempty" yaml:"load_path,omitempty"` // scan log seeded into the store at startup
	ArchivePath *string  `json:"archive_path,omitempty" yaml:"archive_path,omitempty"`
	RunDuration *string  `json:"run_duration,omitempty" yaml:"run_duration,omitempty"` // duration string like "30s"; empty runs until stopped
	TimeScale   *float64 `json:"time_scale,omitempty" yaml:"time_scale,omitempty"`     // simulated seconds per wall second
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptySimConfig returns a SimConfig with all fields set to nil.
func EmptySimConfig() *SimConfig {
	return &SimConfig{}
}

// DefaultSimConfig returns a SimConfig with every field populated from the
// built-in defaults.
func DefaultSimConfig() *SimConfig {
	s := sensor.DefaultConfig()
	c := pointcloud.DefaultOptions()
	w := world.DefaultSpawnOptions()
	return &SimConfig{
		LaserCount:     ptrInt(s.LaserCount),
		RotationRateHz: ptrFloat64(s.RotationRateHz),
		AngularStepDeg: ptrFloat64(s.AngularStepDeg),
		MaxDistance:    ptrFloat64(s.MaxDistance),
		UpperFOV:       ptrFloat64(s.UpperFOV),
		LowerFOV:       ptrFloat64(s.LowerFOV),
		OffsetCm:       ptrFloat64(s.OffsetCm),
		UpperNormal:    ptrFloat64(s.UpperNormal),
		LowerNormal:    ptrFloat64(s.LowerNormal),
		MinRange:       ptrFloat64(s.MinRange),
		FixedDelta:     ptrFloat64(s.FixedDelta),
		CloudBuffers:   ptrInt(c.Buffers),
		CloudCapacity:  ptrInt(c.Capacity),
		PointSize:      ptrFloat64(c.PointSize),
		SpawnAttempts:  ptrInt(w.Attempts),
		SpawnClearance: ptrFloat64(w.Clearance),
		Seed:           ptrInt64(1),
		ListenAddr:     ptrString(":8082"),
		ScanLogPath:    ptrString(""),
		LoadPath:       ptrString(""),
		ArchivePath:    ptrString(""),
		RunDuration:    ptrString(""),
		TimeScale:      ptrFloat64(1),
	}
}

// LoadSimConfig loads a SimConfig from a .json, .yaml or .yml file.
// Fields omitted from the file keep their defaults.
func LoadSimConfig(path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySimConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent
// directories. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *SimConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadSimConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set. Sensor geometry is validated
// as a whole through ToSensorConfig.
func (c *SimConfig) Validate() error {
	if c.CloudBuffers != nil && *c.CloudBuffers < 0 {
		return fmt.Errorf("cloud_buffers must be non-negative, got %d", *c.CloudBuffers)
	}
	if c.CloudCapacity != nil && *c.CloudCapacity < 0 {
		return fmt.Errorf("cloud_capacity must be non-negative, got %d", *c.CloudCapacity)
	}
	if c.SpawnAttempts != nil && *c.SpawnAttempts < 0 {
		return fmt.Errorf("spawn_attempts must be non-negative, got %d", *c.SpawnAttempts)
	}
	if c.TimeScale != nil && !(*c.TimeScale > 0) {
		return fmt.Errorf("time_scale must be positive, got %v", *c.TimeScale)
	}
	if c.RunDuration != nil && *c.RunDuration != "" {
		if _, err := time.ParseDuration(*c.RunDuration); err != nil {
			return fmt.Errorf("invalid run_duration '%s': %w", *c.RunDuration, err)
		}
	}
	if err := c.ToSensorConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// ToSensorConfig overlays the set sensor fields on sensor.DefaultConfig.
func (c *SimConfig) ToSensorConfig() sensor.Config {
	s := sensor.DefaultConfig()
	setInt(&s.LaserCount, c.LaserCount)
	setFloat(&s.RotationRateHz, c.RotationRateHz)
	setFloat(&s.AngularStepDeg, c.AngularStepDeg)
	setFloat(&s.MaxDistance, c.MaxDistance)
	setFloat(&s.UpperFOV, c.UpperFOV)
	setFloat(&s.LowerFOV, c.LowerFOV)
	setFloat(&s.OffsetCm, c.OffsetCm)
	setFloat(&s.UpperNormal, c.UpperNormal)
	setFloat(&s.LowerNormal, c.LowerNormal)
	setFloat(&s.MinRange, c.MinRange)
	setFloat(&s.FixedDelta, c.FixedDelta)
	return s
}

// ToCloudOptions returns the point cloud options.
func (c *SimConfig) ToCloudOptions() pointcloud.Options {
	o := pointcloud.DefaultOptions()
	setInt(&o.Buffers, c.CloudBuffers)
	setInt(&o.Capacity, c.CloudCapacity)
	setFloat(&o.PointSize, c.PointSize)
	return o
}

// ToSpawnOptions returns the spawn search options.
func (c *SimConfig) ToSpawnOptions() world.SpawnOptions {
	o := world.DefaultSpawnOptions()
	setInt(&o.Attempts, c.SpawnAttempts)
	setFloat(&o.Clearance, c.SpawnClearance)
	return o
}

// GetSeed returns the seed value or the default.
func (c *SimConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetListenAddr returns the listen_addr value or the default.
func (c *SimConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8082"
	}
	return *c.ListenAddr
}

// GetScanLogPath returns the scan_log_path value; empty disables saving.
func (c *SimConfig) GetScanLogPath() string {
	if c.ScanLogPath == nil {
		return ""
	}
	return *c.ScanLogPath
}

// GetLoadPath returns the load_path value; empty starts with an empty store.
func (c *SimConfig) GetLoadPath() string {
	if c.LoadPath == nil {
		return ""
	}
	return *c.LoadPath
}

// GetArchivePath returns the archive_path value; empty disables archiving.
func (c *SimConfig) GetArchivePath() string {
	if c.ArchivePath == nil {
		return ""
	}
	return *c.ArchivePath
}

// GetRunDuration parses RunDuration. Zero means run until stopped.
func (c *SimConfig) GetRunDuration() time.Duration {
	if c.RunDuration == nil || *c.RunDuration == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.RunDuration)
	if err != nil {
		return 0
	}
	return d
}

// GetTimeScale returns the time_scale value or the default.
func (c *SimConfig) GetTimeScale() float64 {
	if c.TimeScale == nil {
		return 1
	}
	return *c.TimeScale
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
