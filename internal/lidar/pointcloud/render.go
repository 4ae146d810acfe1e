package pointcloud

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// PlotOptions sizes a rendered plot.
type PlotOptions struct {
	Title  string
	Width  vg.Length
	Height vg.Length
}

func (o PlotOptions) withDefaults() PlotOptions {
	if o.Title == "" {
		o.Title = "LiDAR point cloud (top down)"
	}
	if o.Width <= 0 {
		o.Width = 8 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 8 * vg.Inch
	}
	return o
}

// NewPlot draws points top down (X right, Y forward), one scatter series
// per radius band.
func NewPlot(points []Point, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	byBand := make(map[Band]plotter.XYs, 3)
	for _, pt := range points {
		byBand[pt.Band] = append(byBand[pt.Band], plotter.XY{X: pt.Position.X, Y: pt.Position.Y})
	}
	for _, b := range []Band{BandNear, BandMid, BandFar} {
		xys := byBand[b]
		if len(xys) == 0 {
			continue
		}
		s, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s scatter: %w", b, err)
		}
		s.GlyphStyle.Color = b.Color()
		s.GlyphStyle.Radius = vg.Points(1)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("%s (%d)", b, len(xys)), s)
	}
	return p, nil
}

// WritePNG renders points as PNG to w.
func WritePNG(w io.Writer, points []Point, opts PlotOptions) error {
	opts = opts.withDefaults()
	p, err := NewPlot(points, opts.Title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(opts.Width, opts.Height, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}

// SavePNG renders points to a PNG file.
func SavePNG(path string, points []Point, opts PlotOptions) error {
	opts = opts.withDefaults()
	p, err := NewPlot(points, opts.Title)
	if err != nil {
		return err
	}
	if err := p.Save(opts.Width, opts.Height, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// WritePNG renders the cloud's current contents.
func (c *Cloud) WritePNG(w io.Writer, opts PlotOptions) error {
	return WritePNG(w, c.Snapshot(), opts)
}
