package visualization

import (
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Figure size of the stacked PNG
var (
	FigureWidth  = 8 * vg.Inch
	FigureHeight = 7 * vg.Inch
)

// SavePNG draws the objective chart above the diff chart, sharing the time
// axis, and writes a PNG
func (v *Viewer) SavePNG(path string) error {
	lo, hi, ok := v.TimeRange()
	if !ok {
		return fmt.Errorf("no data points to plot")
	}

	objPlot := plot.New()
	objPlot.Title.Text = "Convergence"
	objPlot.Y.Label.Text = "Function value"
	objPlot.Legend.Top = true
	if err := addLines(objPlot, v.objective, true); err != nil {
		return err
	}

	diffPlot := plot.New()
	diffPlot.Y.Label.Text = "beta_ variance"
	diffPlot.X.Label.Text = "Time (s)"
	if err := addLines(diffPlot, v.diff, false); err != nil {
		return err
	}

	for _, p := range []*plot.Plot{objPlot, diffPlot} {
		p.X.Min, p.X.Max = lo, hi
		p.Add(plotter.NewGrid())
	}

	img := vgimg.New(FigureWidth, FigureHeight)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      1,
		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(8),
		PadY:      vg.Points(8),
	}
	canvases := plot.Align([][]*plot.Plot{{objPlot}, {diffPlot}}, tiles, dc)
	objPlot.Draw(canvases[0][0])
	diffPlot.Draw(canvases[1][0])

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create plot file: %w", err)
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write plot: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close plot file: %w", err)
	}
	return nil
}

// addLines adds one coloured line per series; the legend is optional
func addLines(p *plot.Plot, series []Series, legend bool) error {
	for i, s := range series {
		if len(s.X) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(s.X))
		for j := range s.X {
			xys[j].X = s.X[j]
			xys[j].Y = s.Y[j]
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("failed to build line %q: %w", s.Label, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.2)

		p.Add(line)
		if legend {
			p.Legend.Add(s.Label, line)
		}
	}
	return nil
}
