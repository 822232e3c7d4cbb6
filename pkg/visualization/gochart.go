package visualization

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
)

// SaveSVG writes the two charts as separate SVG files next to path,
// suffixed _objective.svg and _diff.svg. It returns the written paths.
func (v *Viewer) SaveSVG(path string) ([]string, error) {
	lo, hi, ok := v.TimeRange()
	if !ok {
		return nil, fmt.Errorf("no data points to plot")
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	charts := []struct {
		suffix string
		yName  string
		series []Series
	}{
		{"_objective.svg", "Function value", v.objective},
		{"_diff.svg", "beta_ variance", v.diff},
	}

	var written []string
	for _, c := range charts {
		out := base + c.suffix
		if err := renderChart(out, c.yName, c.series, lo, hi); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}

func renderChart(path, yName string, series []Series, lo, hi float64) error {
	var chartSeries []chart.Series
	for i, s := range series {
		// go-chart needs at least two points per series
		if len(s.X) < 2 {
			continue
		}
		chartSeries = append(chartSeries, chart.ContinuousSeries{
			Name:    s.Label,
			XValues: s.X,
			YValues: s.Y,
			Style: chart.Style{
				StrokeColor: chart.GetDefaultColor(i),
				StrokeWidth: 2,
			},
		})
	}
	if len(chartSeries) == 0 {
		return fmt.Errorf("no series with enough points for %s", filepath.Base(path))
	}

	graph := chart.Chart{
		Width:  900,
		Height: 400,
		XAxis: chart.XAxis{
			Name:  "Time (s)",
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		YAxis: chart.YAxis{
			Name: yName,
		},
		Series: chartSeries,
	}

	// go-chart rejects a zero-height range, e.g. an all-zero diff
	if yLo, yHi := valueRange(series); yLo == yHi {
		graph.YAxis.Range = &chart.ContinuousRange{Min: yLo - 1, Max: yHi + 1}
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}

	if err := graph.Render(chart.SVG, file); err != nil {
		file.Close()
		return fmt.Errorf("failed to render chart: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close chart file: %w", err)
	}
	return nil
}
