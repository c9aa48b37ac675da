package visualize

import (
	"errors"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	traceColor      = color.Gray{Y: 128}
	recoveringColor = color.NRGBA{R: 255, G: 215, A: 128}
	brokenColor     = color.NRGBA{R: 220, A: 255}
	anomalyColor    = color.NRGBA{B: 255, A: 40}
)

// GonumPlotter draws charts with gonum/plot. The image format follows the
// file extension.
type GonumPlotter struct {
	Width  vg.Length
	Height vg.Length
}

// NewGonumPlotter returns a plotter producing wide, short trace charts.
func NewGonumPlotter() *GonumPlotter {
	return &GonumPlotter{Width: 25 * vg.Inch, Height: 3 * vg.Inch}
}

// Plot draws the raw trace in grey with recovering, broken and anomalous
// rows marked on top.
func (g *GonumPlotter) Plot(c Chart, path string) error {
	if len(c.Values) == 0 {
		return errors.New("no data points")
	}

	p := plot.New()
	p.Title.Text = c.Channel
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Legend.Top = true

	line, err := plotter.NewLine(points(c, nil))
	if err != nil {
		return err
	}
	line.Color = traceColor
	p.Add(line)

	markers := []struct {
		label string
		rows  []int
		style draw.GlyphStyle
	}{
		{"recovering", c.Recovering, draw.GlyphStyle{Color: recoveringColor, Radius: vg.Points(2.5), Shape: draw.CircleGlyph{}}},
		{"broken", c.Broken, draw.GlyphStyle{Color: brokenColor, Radius: vg.Points(10), Shape: draw.CrossGlyph{}}},
		{"anomaly predicted", c.Anomalous, draw.GlyphStyle{Color: anomalyColor, Radius: vg.Points(2), Shape: draw.CrossGlyph{}}},
	}
	for _, m := range markers {
		if len(m.rows) == 0 {
			continue
		}
		s, err := plotter.NewScatter(points(c, m.rows))
		if err != nil {
			return err
		}
		s.GlyphStyle = m.style
		p.Add(s)
		p.Legend.Add(m.label, s)
	}

	return p.Save(g.Width, g.Height, path)
}

// points returns (unix seconds, value) pairs for rows, or for every row
// when rows is nil.
func points(c Chart, rows []int) plotter.XYs {
	if rows == nil {
		xys := make(plotter.XYs, len(c.Values))
		for i, v := range c.Values {
			xys[i].X = float64(c.Times[i].Unix())
			xys[i].Y = v
		}
		return xys
	}
	xys := make(plotter.XYs, len(rows))
	for i, r := range rows {
		xys[i].X = float64(c.Times[r].Unix())
		xys[i].Y = c.Values[r]
	}
	return xys
}
