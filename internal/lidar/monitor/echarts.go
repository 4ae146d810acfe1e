package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lidarsim/internal/httputil"
	"github.com/banshee-data/lidarsim/internal/lidar/pointcloud"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var bandColors = map[pointcloud.Band]string{
	pointcloud.BandNear: "#ff0000",
	pointcloud.BandMid:  "#ffff00",
	pointcloud.BandFar:  "#00ff00",
}

// maxPointsParam reads the max_points query parameter.
func maxPointsParam(r *http.Request, def int) int {
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			return v
		}
	}
	return def
}

// handlePointCloudChart renders the live point cloud top down (X right,
// Y forward) as an echarts scatter, one series per radius band.
// Query params:
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handlePointCloudChart(w http.ResponseWriter, r *http.Request) {
	points := ws.runtime.Cloud.Snapshot()
	maxPoints := maxPointsParam(r, 8000)

	stride := 1
	if len(points) > maxPoints {
		stride = int(math.Ceil(float64(len(points)) / float64(maxPoints)))
	}

	series := make(map[pointcloud.Band][]opts.ScatterData, 3)
	maxAbs := 0.0
	shown := 0
	for i := 0; i < len(points); i += stride {
		p := points[i]
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(p.Position.X), math.Abs(p.Position.Y)))
		series[p.Band] = append(series[p.Band], opts.ScatterData{
			Value: []interface{}{p.Position.X, p.Position.Y, p.Radius},
		})
		shown++
	}
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LiDAR Point Cloud", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "LiDAR Point Cloud", Subtitle: fmt.Sprintf("points=%d shown=%d stride=%d", len(points), shown, stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	for _, b := range []pointcloud.Band{pointcloud.BandNear, pointcloud.BandMid, pointcloud.BandFar} {
		scatter.AddSeries(b.String(), series[b],
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: bandColors[b]}),
		)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleSweepChart plots the number of recorded returns under each scan
// key, one point per lap.
func (ws *WebServer) handleSweepChart(w http.ResponseWriter, r *http.Request) {
	data := ws.runtime.Store.Snapshot()
	keys := data.SortedKeys()

	xs := make([]string, 0, len(keys))
	ys := make([]opts.LineData, 0, len(keys))
	for _, k := range keys {
		n := 0
		for _, b := range data[k] {
			n += b.Len()
		}
		xs = append(xs, strconv.FormatFloat(k, 'f', 2, 64))
		ys = append(ys, opts.LineData{Value: n})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LiDAR Returns per Lap", Theme: "dark", Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Returns per scan key", Subtitle: fmt.Sprintf("keys=%d points=%d", len(keys), data.PointCount())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "lap time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "returns"}),
	)
	line.SetXAxis(xs).AddSeries("returns", ys)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
