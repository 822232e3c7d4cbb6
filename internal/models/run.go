package models

import (
	"fmt"
	"math"
	"time"
)

// RunConfig represents the hyperparameters of one sweep point.
// It is passed by value and never modified after enumeration.
type RunConfig struct {
	// Replacement draws a fresh random feature subset for every mini-batch
	// instead of cycling through a permutation of the features
	Replacement bool

	// CoupledSubset reuses the code subset when updating the dictionary
	CoupledSubset bool

	// Projection is the atom projection strategy, one of the dictfact
	// Projection constants
	Projection string

	// Reduction is the feature subsampling ratio, >= 1
	Reduction float64

	// MaskedObjective computes codes from the masked estimate of D^T x
	// rather than from its running average
	MaskedObjective bool

	// FullB updates the B statistic on every feature
	FullB bool

	// LearningRate weights the sufficient statistics updates
	LearningRate float64

	// NEpochs is derived from Reduction, see EpochsFor
	NEpochs int
}

// EpochsFor returns the number of passes over the training set used for a
// given reduction factor.
func EpochsFor(reduction float64) int {
	return int(math.Ceil(3 * reduction))
}

// String returns a compact description used in logs
func (c RunConfig) String() string {
	return fmt.Sprintf("reduction=%g projection=%s replacement=%t coupled=%t masked=%t fullB=%t lr=%g epochs=%d",
		c.Reduction, c.Projection, c.Replacement, c.CoupledSubset, c.MaskedObjective, c.FullB, c.LearningRate, c.NEpochs)
}

// Trace is the convergence record of a single fit. All slices have the
// same length; entry i describes the i-th callback invocation.
type Trace struct {
	// Iter is the number of samples seen by the estimator
	Iter []int

	// Times is the wall time since the start of the run in seconds,
	// excluding the time spent computing the trace itself
	Times []float64

	// Obj is the objective value on the training set
	Obj []float64

	// Diff is the squared distance between X D^T and the estimator's
	// running estimate of it (zero when the estimator has none)
	Diff []float64
}

// Len returns the number of recorded points
func (t *Trace) Len() int {
	return len(t.Iter)
}

// Append adds one recorded point
func (t *Trace) Append(iter int, elapsed, obj, diff float64) {
	t.Iter = append(t.Iter, iter)
	t.Times = append(t.Times, elapsed)
	t.Obj = append(t.Obj, obj)
	t.Diff = append(t.Diff, diff)
}

// Result pairs a run configuration with its trace
type Result struct {
	Config RunConfig
	Trace  Trace

	// HeldOutScore is the objective of the fitted model on the held-out set
	HeldOutScore float64

	// Duration is the total wall time of the run, measurement included
	Duration time.Duration
}
