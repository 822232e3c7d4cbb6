package experiment

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"

	"denoisebench/internal/models"
	"denoisebench/pkg/dictfact"
)

// Grid lists the values of every hyperparameter axis. The sweep runs the
// Cartesian product of all lists.
type Grid struct {
	FullB           []bool
	Replacement     []bool
	MaskedObjective []bool
	Reduction       []float64
	CoupledSubset   []bool
	Projection      []string
	LearningRate    []float64
}

// DefaultGrid varies the reduction only
func DefaultGrid() Grid {
	return Grid{
		FullB:           []bool{false},
		Replacement:     []bool{true},
		MaskedObjective: []bool{false},
		Reduction:       []float64{1, 2, 3, 4},
		CoupledSubset:   []bool{true},
		Projection:      []string{dictfact.ProjectionPartial},
		LearningRate:    []float64{0.9},
	}
}

// Size returns the number of combinations
func (g Grid) Size() int {
	return len(g.FullB) * len(g.Replacement) * len(g.MaskedObjective) * len(g.Reduction) *
		len(g.CoupledSubset) * len(g.Projection) * len(g.LearningRate)
}

// Configs enumerates the combinations. FullB is the outermost axis and
// LearningRate the innermost.
func (g Grid) Configs() []models.RunConfig {
	configs := make([]models.RunConfig, 0, g.Size())
	for _, fullB := range g.FullB {
		for _, replacement := range g.Replacement {
			for _, masked := range g.MaskedObjective {
				for _, reduction := range g.Reduction {
					for _, coupled := range g.CoupledSubset {
						for _, projection := range g.Projection {
							for _, lr := range g.LearningRate {
								configs = append(configs, models.RunConfig{
									Replacement:     replacement,
									CoupledSubset:   coupled,
									Projection:      projection,
									Reduction:       reduction,
									MaskedObjective: masked,
									FullB:           fullB,
									LearningRate:    lr,
									NEpochs:         models.EpochsFor(reduction),
								})
							}
						}
					}
				}
			}
		}
	}
	return configs
}

// SweepParams describes one parallel sweep
type SweepParams struct {
	Configs  []models.RunConfig
	Settings EstimatorSettings

	Train   *mat.Dense
	HeldOut *mat.Dense

	// Workers bounds the number of concurrent runs
	Workers int

	// Seed is offset by the run index to seed each estimator
	Seed uint64
}

// Sweep runs SingleRun for every configuration on a bounded worker pool and
// returns the results in configuration order. The first failing run cancels
// the others and its error is returned; no partial results are kept.
func Sweep(ctx context.Context, params SweepParams, log zerolog.Logger) ([]models.Result, error) {
	if params.Workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", params.Workers)
	}

	results := make([]models.Result, len(params.Configs))
	total := len(params.Configs)
	var completed atomic.Int64

	p := pool.New().
		WithMaxGoroutines(params.Workers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for i, cfg := range params.Configs {
		p.Go(func(ctx context.Context) error {
			// Each run works on its own copy of the data
			train := mat.DenseCopyOf(params.Train)
			heldOut := mat.DenseCopyOf(params.HeldOut)

			runLog := log.With().Int("run", i).Float64("reduction", cfg.Reduction).Logger()
			runLog.Debug().Str("config", cfg.String()).Msg("starting run")

			res, _, err := SingleRun(ctx, cfg, params.Settings, train, heldOut, params.Seed+uint64(i), runLog)
			if err != nil {
				return fmt.Errorf("run %d (%s): %w", i, cfg, err)
			}
			results[i] = res

			done := completed.Add(1)
			log.Info().Msgf("Processing runs: %.1f%% complete", float64(done)/float64(total)*100)
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("sweep failed: %w", err)
	}
	return results, nil
}
