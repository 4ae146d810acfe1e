// Command lidarsim runs the simulated rotating LiDAR against a demo scene,
// serves the live monitor and writes the recording out on shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarsim/internal/config"
	"github.com/banshee-data/lidarsim/internal/fsutil"
	"github.com/banshee-data/lidarsim/internal/lidar/monitor"
	"github.com/banshee-data/lidarsim/internal/lidar/pipeline"
	"github.com/banshee-data/lidarsim/internal/lidar/scanlog"
	"github.com/banshee-data/lidarsim/internal/lidar/sensor"
	sqlite "github.com/banshee-data/lidarsim/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidarsim/internal/lidar/world"
	"github.com/banshee-data/lidarsim/internal/monitoring"
	"github.com/banshee-data/lidarsim/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON or YAML simulator config (default: built-in defaults)")
	listen      = flag.String("listen", "", "HTTP listen address (overrides listen_addr)")
	scanLogOut  = flag.String("out", "", "Scan log written on shutdown (overrides scan_log_path)")
	scanLogIn   = flag.String("load", "", "Scan log loaded into the recording at startup (overrides load_path)")
	dbFile      = flag.String("db", "", "SQLite run archive (overrides archive_path)")
	runFor      = flag.Duration("duration", 0, "Stop after this much wall time (overrides run_duration)")
	timeScale   = flag.Float64("time-scale", 0, "Simulated seconds per wall second (overrides time_scale)")
	seed        = flag.Int64("seed", 0, "Spawn placement seed (overrides seed)")
	label       = flag.String("label", "", "Label for the archived run")
	logInterval = flag.Int("log-interval", 2, "Statistics logging interval in seconds")
	debugLog    = flag.Bool("debug", false, "Enable the diagnostic log stream")
	traceLog    = flag.Bool("trace", false, "Enable the per-sweep trace log stream")
	jsonLog     = flag.Bool("log-json", false, "Emit structured JSON logs on stderr")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("lidarsim"))
		return
	}
	setupLogging()
	defer monitoring.Sync()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	monitoring.Opsf("%s", version.String("lidarsim"))

	if err := run(cfg); err != nil {
		monitoring.Opsf("lidarsim: %v", err)
		monitoring.Sync()
		os.Exit(1)
	}
}

func setupLogging() {
	if *jsonLog {
		logger, err := zap.NewProduction()
		if err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
		monitoring.SetLogger(logger)
		return
	}
	w := monitoring.LogWriters{Ops: os.Stderr}
	if *debugLog {
		w.Diag = os.Stderr
	}
	if *traceLog {
		w.Trace = os.Stderr
	}
	monitoring.SetLogWriters(w)
}

// loadConfig reads the config file, then applies any flags that were set
// explicitly on the command line.
func loadConfig() (*config.SimConfig, error) {
	cfg := config.DefaultSimConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadSimConfig(*configFile); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = listen
		case "out":
			cfg.ScanLogPath = scanLogOut
		case "load":
			cfg.LoadPath = scanLogIn
		case "db":
			cfg.ArchivePath = dbFile
		case "duration":
			d := runFor.String()
			cfg.RunDuration = &d
		case "time-scale":
			cfg.TimeScale = timeScale
		case "seed":
			cfg.Seed = seed
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// demoScene is a ground plane with a few buildings and a water tower.
func demoScene() *world.Scene {
	return world.NewScene(
		world.Ground{Height: 0},
		world.NewBox(r3.Vec{X: 12, Y: 18, Z: 4}, r3.Vec{X: 10, Y: 6, Z: 8}),
		world.NewBox(r3.Vec{X: -20, Y: 5, Z: 3}, r3.Vec{X: 6, Y: 14, Z: 6}),
		world.NewBox(r3.Vec{X: 3, Y: -25, Z: 1.5}, r3.Vec{X: 30, Y: 2, Z: 3}),
		world.NewBox(r3.Vec{X: -8, Y: -6, Z: 0.75}, r3.Vec{X: 4.5, Y: 1.8, Z: 1.5}),
		world.Sphere{Center: r3.Vec{X: 25, Y: -10, Z: 12}, Radius: 4},
	)
}

func run(cfg *config.SimConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := cfg.GetRunDuration(); d > 0 {
		monitoring.Opsf("running for %s", d)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	scene := demoScene()
	rng := rand.New(rand.NewPCG(uint64(cfg.GetSeed()), 0))
	pose, err := world.FindNonCollidingPose(scene, rng, cfg.ToSpawnOptions())
	if err != nil && !errors.Is(err, world.ErrNoSafePose) {
		return fmt.Errorf("spawn: %w", err)
	}
	monitoring.Diagf("sensor pose: position (%.2f, %.2f, %.2f) pitch %.1f yaw %.1f",
		pose.Position.X, pose.Position.Y, pose.Position.Z, pose.PitchDeg, pose.YawDeg)

	s := sensor.New(scene, sensor.StaticMount(pose))
	if err := s.Init(cfg.ToSensorConfig()); err != nil {
		return err
	}
	rt := pipeline.New(s, nil, pipeline.Options{
		TimeScale: cfg.GetTimeScale(),
		Cloud:     cfg.ToCloudOptions(),
	})
	defer rt.Close()

	var archive *sqlite.Archive
	if path := cfg.GetArchivePath(); path != "" {
		if archive, err = sqlite.Open(path); err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer archive.Close()
	}

	stats := monitor.NewSweepStats(nil)
	statsSub := stats.Attach(s)
	defer statsSub.Cancel()

	ws, err := monitor.NewWebServer(monitor.WebServerConfig{
		Address: cfg.GetListenAddr(),
		Runtime: rt,
		Stats:   stats,
		Archive: archive,
	})
	if err != nil {
		return err
	}

	var load *scanlog.LoadTask
	if path := cfg.GetLoadPath(); path != "" {
		if load, err = scanlog.Load(fsutil.OSFileSystem{}, path); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if load != nil {
		g.Go(func() error {
			res, err := load.LoadInto(rt.Store)
			if err != nil {
				monitoring.Opsf("load %s: %v", load.Path(), err)
				return nil
			}
			monitoring.Opsf("loaded %d coordinates from %s", res.Records, load.Path())
			return nil
		})
	}
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error { return stats.Run(gctx, time.Duration(*logInterval)*time.Second) })
	g.Go(func() error { return ws.Start(gctx) })
	runErr := g.Wait()

	st := rt.Stats()
	monitoring.Opsf("stopped after %.2fs simulated: %d sweeps, %d ticks, %d dropped, %s points",
		st.SimTime, st.Sweeps, st.Ticks, st.DroppedTicks, monitor.FormatWithCommas(int64(rt.Store.PointCount())))

	if err := persist(cfg, rt, archive); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// persist writes the recording to the scan log and the archive, whichever
// are configured.
func persist(cfg *config.SimConfig, rt *pipeline.Runtime, archive *sqlite.Archive) error {
	var errs []error
	if path := cfg.GetScanLogPath(); path != "" {
		if _, err := scanlog.Save(fsutil.OSFileSystem{}, path, rt.Store); err != nil {
			errs = append(errs, err)
		}
	}
	if archive != nil {
		data := rt.Store.Snapshot()
		if data.PointCount() == 0 {
			monitoring.Opsf("nothing recorded, skipping archive")
		} else if _, _, err := archive.SaveRun(context.Background(), *label, sqlite.SourceSensor, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
