// Package experiment drives the dictionary learning benchmark: it prepares
// the patch dataset, sweeps the estimator hyperparameters in parallel,
// records the convergence of every run and exports the results.
package experiment

import (
	"context"
	"fmt"
	"image"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"denoisebench/internal/logger"
	"denoisebench/internal/models"
	"denoisebench/pkg/config"
	"denoisebench/pkg/imageprep"
	"denoisebench/pkg/visualization"
)

// Params holds everything a benchmark needs
type Params struct {
	// Source is the input image; the built-in sample is used when nil
	Source image.Image

	// Prep controls image preparation and patch extraction
	Prep imageprep.Options

	// Grid lists the hyperparameter values to sweep
	Grid Grid

	// Settings are the estimator options common to all runs
	Settings EstimatorSettings

	// Workers is the number of concurrent runs
	Workers int

	// Seed drives preparation and estimator randomness
	Seed uint64

	// ResultsFile receives the JSON results
	ResultsFile string

	// PlotFile receives the convergence figure, skipped when empty
	PlotFile    string
	PlotBackend string

	// ImageDir receives previews of the prepared images, skipped when empty
	ImageDir string
}

// ParamsFromConfig maps a loaded configuration to benchmark parameters
func ParamsFromConfig(cfg *config.Config) Params {
	params := Params{
		Prep: imageprep.Options{
			DistortEnabled: cfg.Image.Distort.Enabled,
			DistortSigma:   cfg.Image.Distort.Sigma,
			PatchSize:      cfg.Patches.Size,
			Tile:           cfg.Patches.Tile,
			MaxPatches:     cfg.Patches.MaxPatches,
			TrainSize:      cfg.Patches.TrainSize,
		},
		Grid: Grid{
			FullB:           cfg.Sweep.FullB,
			Replacement:     cfg.Sweep.Replacement,
			MaskedObjective: cfg.Sweep.MaskedObjective,
			Reduction:       cfg.Sweep.Reduction,
			CoupledSubset:   cfg.Sweep.CoupledSubset,
			Projection:      cfg.Sweep.Projection,
			LearningRate:    cfg.Sweep.LearningRate,
		},
		Settings: EstimatorSettings{
			NComponents: cfg.Estimator.NComponents,
			Alpha:       cfg.Estimator.Alpha,
			L1Ratio:     cfg.Estimator.L1Ratio,
			PenL1Ratio:  cfg.Estimator.PenL1Ratio,
			BatchSize:   cfg.Estimator.BatchSize,
			Verbose:     cfg.Estimator.Verbose,
			Backend:     cfg.Estimator.Backend,
		},
		Workers:     cfg.Sweep.Workers,
		Seed:        cfg.Seed,
		ResultsFile: cfg.Output.ResultsFile,
		PlotFile:    cfg.Output.PlotFile,
		PlotBackend: cfg.Output.PlotBackend,
	}
	if cfg.Output.SaveImages {
		params.ImageDir = cfg.Output.ImageDir
	}
	return params
}

// Experiment runs the benchmark pipeline:
// 1. Preparing the patch dataset
// 2. Sweeping the hyperparameter grid in parallel
// 3. Writing the results file
// 4. Plotting the convergence curves
type Experiment struct {
	params *Params
	log    zerolog.Logger

	dataset   *imageprep.Dataset
	results   []models.Result
	plotFiles []string
}

// NewExperiment creates a new experiment with the provided parameters
func NewExperiment(params *Params, log zerolog.Logger) *Experiment {
	return &Experiment{
		params: params,
		log:    log,
	}
}

// Process runs the complete pipeline and returns the results in grid order
func (e *Experiment) Process(ctx context.Context) ([]models.Result, error) {
	e.log.Info().Msg("Step 1: Preparing patch dataset...")
	if err := e.prepareDataset(); err != nil {
		return nil, fmt.Errorf("failed to prepare dataset: %w", err)
	}

	e.log.Info().Msg("Step 2: Sweeping hyperparameters...")
	if err := e.runSweep(ctx); err != nil {
		return nil, err
	}

	e.log.Info().Msg("Step 3: Writing results...")
	if err := WriteResults(e.params.ResultsFile, e.results); err != nil {
		return nil, err
	}
	e.log.Info().Str("path", e.params.ResultsFile).Int("runs", len(e.results)).Msg("results written")

	if e.params.PlotFile != "" {
		e.log.Info().Msg("Step 4: Plotting convergence curves...")
		viewer := visualization.NewViewer(e.results)
		written, err := viewer.Save(e.params.PlotBackend, e.params.PlotFile)
		if err != nil {
			return nil, fmt.Errorf("failed to plot results: %w", err)
		}
		e.plotFiles = written
		e.log.Info().Strs("paths", written).Str("backend", e.params.PlotBackend).Msg("plot written")
	}

	return e.results, nil
}

// prepareDataset loads the image and builds the standardised patch sets
func (e *Experiment) prepareDataset() error {
	log := logger.Component(e.log, "imageprep")
	startTime := time.Now()

	opts := e.params.Prep
	opts.Source = e.params.Source
	if opts.DistortEnabled {
		log.Info().Float64("sigma", opts.DistortSigma).Msg("Distorting image...")
	} else {
		log.Info().Msg("Distortion disabled, patches come from the clean image")
	}

	rng := rand.New(rand.NewPCG(e.params.Seed, e.params.Seed))
	dataset, err := imageprep.Prepare(opts, rng)
	if err != nil {
		return err
	}
	e.dataset = dataset

	if dataset.Extracted < opts.MaxPatches {
		log.Warn().
			Int("requested", opts.MaxPatches).
			Int("extracted", dataset.Extracted).
			Msg("patch count clamped to the available positions")
	}
	if n := len(dataset.ConstantFeatures); n > 0 {
		log.Warn().Int("features", n).Msg("constant features left unscaled")
	}

	rows, cols := dataset.Image.Dims()
	nTrain, features := dataset.Train.Dims()
	nHeldOut, _ := dataset.HeldOut.Dims()
	log.Info().
		Ints("image", []int{rows, cols}).
		Int("train", nTrain).
		Int("heldOut", nHeldOut).
		Int("features", features).
		Msgf("done in %.2fs.", time.Since(startTime).Seconds())

	if e.params.ImageDir != "" {
		if err := e.savePreviews(); err != nil {
			log.Warn().Err(err).Msg("failed to save image previews")
		}
	}
	return nil
}

// savePreviews writes the source and distorted images
func (e *Experiment) savePreviews() error {
	if err := os.MkdirAll(e.params.ImageDir, 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := imageprep.SavePreview(e.dataset.Image, filepath.Join(e.params.ImageDir, "source.png")); err != nil {
		return err
	}
	return imageprep.SavePreview(e.dataset.Distorted, filepath.Join(e.params.ImageDir, "distorted.png"))
}

// runSweep fans the grid out over the worker pool
func (e *Experiment) runSweep(ctx context.Context) error {
	configs := e.params.Grid.Configs()
	if len(configs) == 0 {
		return fmt.Errorf("hyperparameter grid is empty")
	}
	e.log.Info().Int("runs", len(configs)).Int("workers", e.params.Workers).Msg("dispatching runs")

	results, err := Sweep(ctx, SweepParams{
		Configs:  configs,
		Settings: e.params.Settings,
		Train:    e.dataset.Train,
		HeldOut:  e.dataset.HeldOut,
		Workers:  e.params.Workers,
		Seed:     e.params.Seed,
	}, logger.Component(e.log, "sweep"))
	if err != nil {
		return err
	}
	e.results = results
	return nil
}

// PlotFiles returns the plot files written by Process
func (e *Experiment) PlotFiles() []string {
	return e.plotFiles
}

// Dataset returns the prepared dataset, nil before Process
func (e *Experiment) Dataset() *imageprep.Dataset {
	return e.dataset
}
