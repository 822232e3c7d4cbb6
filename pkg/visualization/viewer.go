// Package visualization renders the convergence curves of a sweep.
package visualization

import (
	"fmt"
	"math"

	"denoisebench/internal/models"
)

// Backends
const (
	BackendGonum   = "gonum"
	BackendGoChart = "gochart"
)

// Series is one line of a chart
type Series struct {
	Label string
	X     []float64
	Y     []float64
}

// Viewer prepares the convergence curves of a set of runs: the objective
// value and the auxiliary diff, both against time
type Viewer struct {
	objective []Series
	diff      []Series
}

// NewViewer builds the series of every result. The first recorded point of
// each run is skipped (it is measured before any update) and non-finite
// points are dropped.
func NewViewer(results []models.Result) *Viewer {
	v := &Viewer{}
	for _, r := range results {
		label := fmt.Sprintf("Reduction: %g", r.Config.Reduction)
		v.objective = append(v.objective, newSeries(label, r.Trace.Times, r.Trace.Obj))
		v.diff = append(v.diff, newSeries("beta_ variance", r.Trace.Times, r.Trace.Diff))
	}
	return v
}

func newSeries(label string, x, y []float64) Series {
	s := Series{Label: label}
	n := min(len(x), len(y))
	for i := 1; i < n; i++ {
		if isFinite(x[i]) && isFinite(y[i]) {
			s.X = append(s.X, x[i])
			s.Y = append(s.Y, y[i])
		}
	}
	return s
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Objective returns the objective series, one per run
func (v *Viewer) Objective() []Series {
	return v.objective
}

// Diff returns the auxiliary diff series, one per run
func (v *Viewer) Diff() []Series {
	return v.diff
}

// TimeRange returns the time span shared by both charts
func (v *Viewer) TimeRange() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, group := range [][]Series{v.objective, v.diff} {
		for _, s := range group {
			for _, x := range s.X {
				lo = math.Min(lo, x)
				hi = math.Max(hi, x)
			}
		}
	}
	if lo > hi {
		return 0, 0, false
	}
	if lo == hi {
		hi = lo + 1
	}
	return lo, hi, true
}

// valueRange returns the min and max Y over all series
func valueRange(series []Series) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, y := range s.Y {
			lo = math.Min(lo, y)
			hi = math.Max(hi, y)
		}
	}
	return lo, hi
}

// Save renders the charts with the given backend and returns the paths of
// the files written, which differ from path for the go-chart backend
func (v *Viewer) Save(backend, path string) ([]string, error) {
	switch backend {
	case BackendGonum:
		if err := v.SavePNG(path); err != nil {
			return nil, err
		}
		return []string{path}, nil
	case BackendGoChart:
		return v.SaveSVG(path)
	default:
		return nil, fmt.Errorf("unknown plot backend %q", backend)
	}
}
