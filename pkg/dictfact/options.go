package dictfact

import (
	"fmt"
)

// Projection strategies for the atom update
const (
	ProjectionPartial = "partial"
	ProjectionFull    = "full"
)

// Options configures a DictMF estimator. Zero values are not meaningful;
// start from DefaultOptions.
type Options struct {
	// NComponents is the number of dictionary atoms
	NComponents int

	// Alpha is the penalty applied to the codes
	Alpha float64

	// L1Ratio is the share of l1 in the code penalty, in [0, 1].
	// With 0 the codes are ridge regressions solved in closed form.
	L1Ratio float64

	// PenL1Ratio is the share of l1 in the atom constraint, in [0, 1]
	PenL1Ratio float64

	// BatchSize is the number of samples per mini-batch
	BatchSize int

	// LearningRate weights the dictionary statistics, in (0, 1].
	// 1 means no forgetting.
	LearningRate float64

	// SampleLearningRate weights the per-sample running average of D^T x
	SampleLearningRate float64

	// Reduction is the feature subsampling ratio (>= 1). Each batch only
	// reads n_features / Reduction features.
	Reduction float64

	// Verbose is the number of log-spaced progress checkpoints at which the
	// callback fires. 0 only fires the final callback.
	Verbose int

	// Projection is ProjectionPartial or ProjectionFull
	Projection string

	// Replacement draws a new random subset per batch; otherwise subsets
	// cycle through a permutation of the features
	Replacement bool

	// CoupledSubset reuses the code subset for the dictionary update
	CoupledSubset bool

	// MaskedObjective computes codes from the current masked estimate of
	// D^T x instead of its running average
	MaskedObjective bool

	// FullB updates the B statistic on every feature
	FullB bool

	// NEpochs is the number of passes over the data
	NEpochs int

	// Backend selects the implementation. "native" is the only one;
	// "python" is accepted for compatibility with existing configurations.
	Backend string

	// Tol and MaxIter bound the coordinate descent used for l1 codes
	Tol     float64
	MaxIter int

	// Seed initialises the estimator's random source
	Seed uint64

	// Callback is notified synchronously during Fit; may be nil
	Callback Callback
}

// DefaultOptions returns the estimator defaults
func DefaultOptions() Options {
	return Options{
		NComponents:        10,
		Alpha:              1,
		L1Ratio:            1,
		PenL1Ratio:         0,
		BatchSize:          10,
		LearningRate:       1,
		SampleLearningRate: 0.76,
		Reduction:          1,
		Verbose:            0,
		Projection:         ProjectionPartial,
		Replacement:        true,
		CoupledSubset:      true,
		MaskedObjective:    false,
		FullB:              false,
		NEpochs:            1,
		Backend:            "native",
		Tol:                1e-2,
		MaxIter:            100,
	}
}

// Validate checks the option ranges
func (o Options) Validate() error {
	switch {
	case o.NComponents <= 0:
		return fmt.Errorf("n_components must be positive, got %d", o.NComponents)
	case o.Alpha < 0:
		return fmt.Errorf("alpha must be non-negative, got %g", o.Alpha)
	case o.L1Ratio < 0 || o.L1Ratio > 1:
		return fmt.Errorf("l1_ratio must be in [0, 1], got %g", o.L1Ratio)
	case o.PenL1Ratio < 0 || o.PenL1Ratio > 1:
		return fmt.Errorf("pen_l1_ratio must be in [0, 1], got %g", o.PenL1Ratio)
	case o.BatchSize <= 0:
		return fmt.Errorf("batch_size must be positive, got %d", o.BatchSize)
	case o.LearningRate <= 0 || o.LearningRate > 1:
		return fmt.Errorf("learning_rate must be in (0, 1], got %g", o.LearningRate)
	case o.SampleLearningRate <= 0:
		return fmt.Errorf("sample_learning_rate must be positive, got %g", o.SampleLearningRate)
	case o.Reduction < 1:
		return fmt.Errorf("reduction must be >= 1, got %g", o.Reduction)
	case o.Verbose < 0:
		return fmt.Errorf("verbose must be non-negative, got %d", o.Verbose)
	case o.NEpochs <= 0:
		return fmt.Errorf("n_epochs must be positive, got %d", o.NEpochs)
	case o.Tol <= 0:
		return fmt.Errorf("tol must be positive, got %g", o.Tol)
	case o.MaxIter <= 0:
		return fmt.Errorf("max_iter must be positive, got %d", o.MaxIter)
	}

	switch o.Projection {
	case ProjectionPartial, ProjectionFull:
	default:
		return fmt.Errorf("unknown projection %q", o.Projection)
	}

	switch o.Backend {
	case "", "native", "python":
	default:
		return fmt.Errorf("unsupported backend %q", o.Backend)
	}

	return nil
}
