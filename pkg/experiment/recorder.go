package experiment

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"denoisebench/internal/models"
	"denoisebench/pkg/dictfact"
)

// Recorder is the progress observer attached to a single fit. It scores the
// model on the training set at every notification and keeps the resulting
// trace. Time spent scoring is excluded from the recorded times.
//
// A Recorder belongs to one run; it is not safe for concurrent use.
type Recorder struct {
	train mat.Matrix
	log   zerolog.Logger

	// now is the clock, replaceable in tests
	now func() time.Time

	start    time.Time
	measured time.Duration
	trace    models.Trace
}

// NewRecorder creates an idle recorder. The clock starts immediately.
func NewRecorder(train mat.Matrix, log zerolog.Logger) *Recorder {
	return newRecorderWithClock(train, log, time.Now)
}

func newRecorderWithClock(train mat.Matrix, log zerolog.Logger, now func() time.Time) *Recorder {
	return &Recorder{
		train: train,
		log:   log,
		now:   now,
		start: now(),
	}
}

// Recording reports whether at least one point has been recorded
func (r *Recorder) Recording() bool {
	return r.trace.Len() > 0
}

// OnProgress implements dictfact.Callback
func (r *Recorder) OnProgress(iteration int, model dictfact.Model) {
	measureStart := r.now()

	obj, err := model.Score(r.train)
	if err != nil {
		r.log.Error().Err(err).Int("iter", iteration).Msg("failed to score model")
		obj = math.NaN()
	}

	diff := 0.0
	if ref, ok := model.Beta(); ok {
		diff = r.betaDiff(model.Components(), ref)
	}

	end := r.now()
	r.measured += end.Sub(measureStart)
	elapsed := end.Sub(r.start) - r.measured

	r.trace.Append(iteration, elapsed.Seconds(), obj, diff)

	r.log.Debug().
		Int("iter", iteration).
		Float64("obj", obj).
		Float64("diff", diff).
		Dur("elapsed", elapsed).
		Msg("progress")
}

// betaDiff returns ||train D^T - ref||^2
func (r *Recorder) betaDiff(components, ref *mat.Dense) float64 {
	var beta mat.Dense
	beta.Mul(r.train, components.T())

	br, bc := beta.Dims()
	rr, rc := ref.Dims()
	if br != rr || bc != rc {
		r.log.Warn().
			Ints("beta", []int{br, bc}).
			Ints("reference", []int{rr, rc}).
			Msg("reference coefficients do not match the training set")
		return math.NaN()
	}

	beta.Sub(&beta, ref)
	norm := mat.Norm(&beta, 2)
	return norm * norm
}

// Trace returns a copy of the recorded trace
func (r *Recorder) Trace() models.Trace {
	return models.Trace{
		Iter:  append([]int(nil), r.trace.Iter...),
		Times: append([]float64(nil), r.trace.Times...),
		Obj:   append([]float64(nil), r.trace.Obj...),
		Diff:  append([]float64(nil), r.trace.Diff...),
	}
}
