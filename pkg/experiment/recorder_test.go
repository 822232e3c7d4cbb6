package experiment

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1000, 0)} }

// fakeModel scores instantly but advances the clock to simulate a slow
// measurement
type fakeModel struct {
	clock      *fakeClock
	scoreCost  time.Duration
	score      float64
	scoreErr   error
	components *mat.Dense
	beta       *mat.Dense
	nIter      int
}

func (m *fakeModel) Score(X mat.Matrix) (float64, error) {
	m.clock.advance(m.scoreCost)
	return m.score, m.scoreErr
}

func (m *fakeModel) Components() *mat.Dense { return mat.DenseCopyOf(m.components) }

func (m *fakeModel) Beta() (*mat.Dense, bool) {
	if m.beta == nil {
		return nil, false
	}
	return m.beta, true
}

func (m *fakeModel) NIter() int { return m.nIter }

func TestRecorderExcludesMeasurementTime(t *testing.T) {
	clock := newFakeClock()
	train := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1})
	model := &fakeModel{
		clock:      clock,
		scoreCost:  5 * time.Second,
		score:      2.5,
		components: mat.NewDense(1, 2, []float64{1, 1}),
	}

	rec := newRecorderWithClock(train, zerolog.Nop(), clock.now)
	if rec.Recording() {
		t.Fatal("New recorder should be idle")
	}

	for i := 0; i < 4; i++ {
		clock.advance(time.Second)
		rec.OnProgress(i*10, model)
	}

	if !rec.Recording() {
		t.Fatal("Recorder should be recording after a notification")
	}

	trace := rec.Trace()
	if trace.Len() != 4 || len(trace.Times) != 4 || len(trace.Obj) != 4 || len(trace.Diff) != 4 {
		t.Fatalf("Inconsistent trace lengths: %d/%d/%d/%d",
			len(trace.Iter), len(trace.Times), len(trace.Obj), len(trace.Diff))
	}
	for i, elapsed := range trace.Times {
		if want := float64(i + 1); math.Abs(elapsed-want) > 1e-9 {
			t.Errorf("Point %d: expected %gs excluding measurement, got %g", i, want, elapsed)
		}
		if trace.Iter[i] != i*10 {
			t.Errorf("Point %d: expected iteration %d, got %d", i, i*10, trace.Iter[i])
		}
		if trace.Obj[i] != 2.5 {
			t.Errorf("Point %d: expected objective 2.5, got %g", i, trace.Obj[i])
		}
		if trace.Diff[i] != 0 {
			t.Errorf("Point %d: expected zero diff without reference, got %g", i, trace.Diff[i])
		}
	}
}

func TestRecorderBetaDiff(t *testing.T) {
	clock := newFakeClock()
	train := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1})
	components := mat.NewDense(2, 2, []float64{1, 0, 1, 1})

	// reference = train D^T + 1 everywhere
	var ref mat.Dense
	ref.Mul(train, components.T())
	rows, cols := ref.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			ref.Set(i, j, ref.At(i, j)+1)
		}
	}

	model := &fakeModel{clock: clock, components: components, beta: &ref}
	rec := newRecorderWithClock(train, zerolog.Nop(), clock.now)
	rec.OnProgress(0, model)

	if got := rec.Trace().Diff[0]; math.Abs(got-float64(rows*cols)) > 1e-12 {
		t.Errorf("Expected diff %d, got %g", rows*cols, got)
	}

	model.beta = mat.NewDense(1, 1, nil)
	rec.OnProgress(1, model)
	if got := rec.Trace().Diff[1]; !math.IsNaN(got) {
		t.Errorf("Expected NaN diff for a mismatched reference, got %g", got)
	}
}

func TestRecorderScoreError(t *testing.T) {
	clock := newFakeClock()
	model := &fakeModel{
		clock:      clock,
		scoreErr:   errors.New("boom"),
		components: mat.NewDense(1, 2, []float64{1, 1}),
	}
	rec := newRecorderWithClock(mat.NewDense(1, 2, []float64{1, 2}), zerolog.Nop(), clock.now)
	rec.OnProgress(0, model)

	if obj := rec.Trace().Obj[0]; !math.IsNaN(obj) {
		t.Errorf("Expected NaN objective after a scoring error, got %g", obj)
	}
}

// TestRecorderTraceIsCopy ensures callers cannot alter the recorder state
func TestRecorderTraceIsCopy(t *testing.T) {
	clock := newFakeClock()
	model := &fakeModel{clock: clock, score: 1, components: mat.NewDense(1, 2, []float64{1, 1})}
	rec := newRecorderWithClock(mat.NewDense(1, 2, []float64{1, 2}), zerolog.Nop(), clock.now)
	rec.OnProgress(0, model)

	trace := rec.Trace()
	trace.Obj[0] = 42
	if rec.Trace().Obj[0] != 1 {
		t.Error("Trace should return a copy")
	}
}
