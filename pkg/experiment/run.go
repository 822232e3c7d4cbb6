package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"denoisebench/internal/models"
	"denoisebench/pkg/dictfact"
)

// EstimatorSettings are the estimator options shared by every sweep point
type EstimatorSettings struct {
	NComponents int
	Alpha       float64
	L1Ratio     float64
	PenL1Ratio  float64
	BatchSize   int
	Verbose     int
	Backend     string
}

// DefaultEstimatorSettings returns the settings of the reference benchmark
func DefaultEstimatorSettings() EstimatorSettings {
	return EstimatorSettings{
		NComponents: 100,
		Alpha:       1,
		L1Ratio:     0,
		PenL1Ratio:  0.9,
		BatchSize:   10,
		Verbose:     5,
		Backend:     "python",
	}
}

// estimatorOptions combines the shared settings with one run configuration
func estimatorOptions(cfg models.RunConfig, settings EstimatorSettings, seed uint64, cb dictfact.Callback) dictfact.Options {
	opts := dictfact.DefaultOptions()
	opts.NComponents = settings.NComponents
	opts.Alpha = settings.Alpha
	opts.L1Ratio = settings.L1Ratio
	opts.PenL1Ratio = settings.PenL1Ratio
	opts.BatchSize = settings.BatchSize
	opts.Verbose = settings.Verbose
	opts.Backend = settings.Backend

	opts.LearningRate = cfg.LearningRate
	opts.Reduction = cfg.Reduction
	opts.Projection = cfg.Projection
	opts.Replacement = cfg.Replacement
	opts.CoupledSubset = cfg.CoupledSubset
	opts.MaskedObjective = cfg.MaskedObjective
	opts.FullB = cfg.FullB
	opts.NEpochs = cfg.NEpochs

	opts.Seed = seed
	opts.Callback = cb
	return opts
}

// SingleRun fits one estimator on train and returns its trace together with
// the fitted estimator. Errors from the estimator are returned unchanged in
// meaning; there is no recovery.
func SingleRun(ctx context.Context, cfg models.RunConfig, settings EstimatorSettings,
	train, heldOut mat.Matrix, seed uint64, log zerolog.Logger) (models.Result, *dictfact.DictMF, error) {
	startTime := time.Now()

	recorder := NewRecorder(train, log)
	estimator, err := dictfact.New(estimatorOptions(cfg, settings, seed, recorder))
	if err != nil {
		return models.Result{}, nil, err
	}

	if err := estimator.Fit(ctx, train); err != nil {
		return models.Result{}, nil, fmt.Errorf("fit failed: %w", err)
	}

	heldOutScore, err := estimator.Score(heldOut)
	if err != nil {
		return models.Result{}, nil, fmt.Errorf("failed to score held-out set: %w", err)
	}

	result := models.Result{
		Config:       cfg,
		Trace:        recorder.Trace(),
		HeldOutScore: heldOutScore,
		Duration:     time.Since(startTime),
	}

	log.Info().
		Float64("reduction", cfg.Reduction).
		Int("points", result.Trace.Len()).
		Float64("heldOutObj", heldOutScore).
		Dur("duration", result.Duration).
		Msgf("done in %.2fs", result.Duration.Seconds())

	return result, estimator, nil
}
