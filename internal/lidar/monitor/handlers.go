package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lidarsim/internal/httputil"
	"github.com/banshee-data/lidarsim/internal/lidar/pipeline"
	"github.com/banshee-data/lidarsim/internal/lidar/pointcloud"
	"github.com/banshee-data/lidarsim/internal/lidar/sensor"
	sqlite "github.com/banshee-data/lidarsim/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidarsim/internal/lidar/stream"
)

// StatusResponse is the body of /api/stats.
type StatusResponse struct {
	State      string           `json:"state"`
	Spec       stream.Spec      `json:"spec"`
	SubSteps   int              `json:"sub_steps"`
	LapTime    float64          `json:"lap_time"`
	Sensor     sensor.Stats     `json:"sensor"`
	Runtime    pipeline.Stats   `json:"runtime"`
	Cloud      pointcloud.Stats `json:"cloud"`
	Stream     stream.Stats     `json:"stream"`
	ScanKeys   int              `json:"scan_keys"`
	Recorded   int              `json:"recorded_points"`
	Throughput *StatsSnapshot   `json:"throughput,omitempty"`
	Uptime     string           `json:"uptime"`
}

// RayResponse is one laser beam in /api/rays.
type RayResponse struct {
	Laser  int        `json:"laser"`
	Origin [3]float64 `json:"origin"`
	End    [3]float64 `json:"end"`
	Hit    bool       `json:"hit"`
}

func (ws *WebServer) status() StatusResponse {
	s := ws.runtime.Sensor
	n, rate, step := s.Spec()
	return StatusResponse{
		State:      s.State().String(),
		Spec:       stream.Spec{LaserCount: n, RotationRateHz: rate, AngularStepDeg: step},
		SubSteps:   s.SubStepCount(),
		LapTime:    s.LapTime(),
		Sensor:     s.Stats(),
		Runtime:    ws.runtime.Stats(),
		Cloud:      ws.runtime.Cloud.Stats(),
		Stream:     ws.runtime.Hub.Stats(),
		ScanKeys:   ws.runtime.Store.Len(),
		Recorded:   ws.runtime.Store.PointCount(),
		Throughput: ws.stats.GetLatestSnapshot(),
		Uptime:     ws.stats.GetUptime().Round(time.Second).String(),
	}
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "lidarsim", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := struct {
		StatusResponse
		HTTPAddress string
		Archive     bool
	}{
		StatusResponse: ws.status(),
		HTTPAddress:    ws.address,
		Archive:        ws.archive != nil,
	}
	var buf bytes.Buffer
	if err := ws.templates.ExecuteTemplate(&buf, "status.html", data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ws.status())
}

func (ws *WebServer) handleRays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	rays := ws.runtime.Sensor.Rays()
	out := make([]RayResponse, len(rays))
	for i, ray := range rays {
		out[i] = RayResponse{
			Laser:  ray.LaserID,
			Origin: [3]float64{ray.Origin.X, ray.Origin.Y, ray.Origin.Z},
			End:    [3]float64{ray.End.X, ray.End.Y, ray.End.Z},
			Hit:    ray.Hit,
		}
	}
	httputil.WriteJSONOK(w, out)
}

// pixels parses a pixel dimension query parameter into a plot length at
// the PNG canvas's 96 dpi.
func pixels(r *http.Request, name string, def int) vg.Length {
	px := def
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 100 && n <= 4000 {
			px = n
		}
	}
	return vg.Length(px) * vg.Inch / 96
}

func (ws *WebServer) handlePointCloudPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	opts := pointcloud.PlotOptions{
		Width:  pixels(r, "width", 800),
		Height: pixels(r, "height", 800),
	}
	var buf bytes.Buffer
	if err := ws.runtime.Cloud.WritePNG(&buf, opts); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render point cloud: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// handleCloudControl handles POST /api/cloud/{play,pause,clear}.
func (ws *WebServer) handleCloudControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	cloud := ws.runtime.Cloud
	switch action := strings.TrimPrefix(r.URL.Path, "/api/cloud/"); action {
	case "play":
		cloud.Play()
	case "pause":
		cloud.Pause()
	case "clear":
		cloud.Clear()
	case "reload":
		cloud.LoadAll(ws.runtime.Store.Flatten())
	default:
		httputil.NotFound(w, fmt.Sprintf("unknown action %q", action))
		return
	}
	httputil.WriteJSONOK(w, cloud.Stats())
}

// handleRuns lists archived runs (GET) or archives the current recording
// (POST, optional form value "label").
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		runs, err := ws.archive.ListRuns(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if runs == nil {
			runs = []sqlite.Run{}
		}
		httputil.WriteJSONOK(w, runs)
	case http.MethodPost:
		data := ws.runtime.Store.Snapshot()
		if data.PointCount() == 0 {
			httputil.Conflict(w, "nothing recorded yet")
			return
		}
		run, created, err := ws.archive.SaveRun(r.Context(), r.FormValue("label"), sqlite.SourceSensor, data)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		httputil.WriteJSON(w, status, run)
	case http.MethodDelete:
		id := r.URL.Query().Get("run_id")
		if id == "" {
			httputil.BadRequest(w, "missing 'run_id' parameter")
			return
		}
		err := ws.archive.DeleteRun(r.Context(), id)
		if errors.Is(err, sqlite.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}
