package monitor

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lidarsim/internal/lidar/pipeline"
	sqlite "github.com/banshee-data/lidarsim/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidarsim/internal/monitoring"
)

//go:embed templates/*.html
var templatesFS embed.FS

// WebServer serves the simulator's status page, JSON API, live stream
// and debug charts.
type WebServer struct {
	address   string
	runtime   *pipeline.Runtime
	stats     *SweepStats
	archive   *sqlite.Archive
	templates TemplateProvider
	server    *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address   string
	Runtime   *pipeline.Runtime
	Stats     *SweepStats
	Archive   *sqlite.Archive  // optional; enables /api/runs and archive admin routes
	Templates TemplateProvider // optional; defaults to the embedded templates
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	if config.Runtime == nil {
		return nil, errors.New("monitor: runtime is required")
	}
	ws := &WebServer{
		address:   config.Address,
		runtime:   config.Runtime,
		stats:     config.Stats,
		archive:   config.Archive,
		templates: config.Templates,
	}
	if ws.stats == nil {
		ws.stats = NewSweepStats(nil)
	}
	if ws.templates == nil {
		ws.templates = NewEmbeddedTemplateProvider(templatesFS, "templates")
	}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws, nil
}

// Handler returns the root handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Opsf("starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	monitoring.Opsf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Opsf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Opsf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Diagf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/rays", ws.handleRays)
	mux.HandleFunc("/api/pointcloud.png", ws.handlePointCloudPNG)
	mux.HandleFunc("/api/cloud/", ws.handleCloudControl)
	mux.Handle("/api/stream", ws.runtime.Hub)
	if ws.archive != nil {
		mux.HandleFunc("/api/runs", ws.handleRuns)
	}

	debug := tsweb.Debugger(mux)
	debug.HandleFunc("pointcloud", "Point cloud scatter (echarts)", ws.handlePointCloudChart)
	debug.HandleFunc("sweeps", "Points per scan key (echarts)", ws.handleSweepChart)
	if ws.archive != nil {
		if err := ws.archive.AttachAdminRoutes(debug); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

// Close shuts down the web server immediately.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
