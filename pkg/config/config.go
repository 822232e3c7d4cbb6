// Package config provides configuration loading and management for denoisebench.
// It handles loading configuration from YAML files and provides default values
// that reproduce the reference denoising benchmark.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the experiment configuration loaded from YAML
type Config struct {
	// Image parameters
	Image struct {
		// Path is an optional image file; the built-in sample is used when empty
		Path string `yaml:"path"`

		// Distort controls the synthetic noise added to the right half
		Distort struct {
			// Enabled turns the distortion on. Off by default, in which case
			// the distorted image is an exact copy of the source
			Enabled bool `yaml:"enabled"`

			// Sigma is the standard deviation of the additive Gaussian noise
			Sigma float64 `yaml:"sigma"`
		} `yaml:"distort"`
	} `yaml:"image"`

	// Patch extraction parameters
	Patches struct {
		// Size is the side of the square patches extracted from the image
		Size int `yaml:"size"`

		// Tile is the replication factor applied along both axes
		Tile int `yaml:"tile"`

		// MaxPatches is the number of patches to sample
		MaxPatches int `yaml:"maxPatches"`

		// TrainSize is the index at which patches are split into train/held-out
		TrainSize int `yaml:"trainSize"`
	} `yaml:"patches"`

	// Estimator settings shared by every sweep point
	Estimator struct {
		NComponents int     `yaml:"nComponents"`
		Alpha       float64 `yaml:"alpha"`
		L1Ratio     float64 `yaml:"l1Ratio"`
		PenL1Ratio  float64 `yaml:"penL1Ratio"`
		BatchSize   int     `yaml:"batchSize"`

		// Verbose is the number of progress checkpoints per fit
		Verbose int `yaml:"verbose"`

		Backend string `yaml:"backend"`
	} `yaml:"estimator"`

	// Sweep axes. Every combination of values is run once.
	Sweep struct {
		// Workers is the number of runs executed concurrently
		Workers int `yaml:"workers"`

		FullB           []bool    `yaml:"fullB"`
		Replacement     []bool    `yaml:"replacement"`
		MaskedObjective []bool    `yaml:"maskedObjective"`
		Reduction       []float64 `yaml:"reduction"`
		CoupledSubset   []bool    `yaml:"coupledSubset"`
		Projection      []string  `yaml:"projection"`
		LearningRate    []float64 `yaml:"learningRate"`
	} `yaml:"sweep"`

	// Output parameters
	Output struct {
		// ResultsFile is the JSON file written after the sweep (overwritten)
		ResultsFile string `yaml:"resultsFile"`

		// PlotFile is the convergence figure; empty disables plotting
		PlotFile string `yaml:"plotFile"`

		// PlotBackend selects the renderer: "gonum" or "gochart"
		PlotBackend string `yaml:"plotBackend"`

		// SaveImages writes previews of the prepared images to ImageDir
		SaveImages bool   `yaml:"saveImages"`
		ImageDir   string `yaml:"imageDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Seed drives patch sampling, distortion and every estimator
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Image.Distort.Enabled = false
	cfg.Image.Distort.Sigma = 0.075

	cfg.Patches.Size = 8
	cfg.Patches.Tile = 4
	cfg.Patches.MaxPatches = 4000
	cfg.Patches.TrainSize = 2000

	cfg.Estimator.NComponents = 100
	cfg.Estimator.Alpha = 1
	cfg.Estimator.L1Ratio = 0
	cfg.Estimator.PenL1Ratio = 0.9
	cfg.Estimator.BatchSize = 10
	cfg.Estimator.Verbose = 5
	cfg.Estimator.Backend = "python"

	cfg.Sweep.Workers = 2
	cfg.Sweep.FullB = []bool{false}
	cfg.Sweep.Replacement = []bool{true}
	cfg.Sweep.MaskedObjective = []bool{false}
	cfg.Sweep.Reduction = []float64{1, 2, 3, 4}
	cfg.Sweep.CoupledSubset = []bool{true}
	cfg.Sweep.Projection = []string{"partial"}
	cfg.Sweep.LearningRate = []float64{0.9}

	cfg.Output.ResultsFile = "results.json"
	cfg.Output.PlotFile = "results.png"
	cfg.Output.PlotBackend = "gonum"
	cfg.Output.SaveImages = false
	cfg.Output.ImageDir = "images"
	cfg.Output.Verbose = false

	cfg.Seed = 0

	return cfg
}

// Validate checks the structural settings. Estimator hyperparameters are
// left to the estimator itself.
func (c *Config) Validate() error {
	if c.Patches.Size <= 0 {
		return fmt.Errorf("patches.size must be positive, got %d", c.Patches.Size)
	}
	if c.Patches.Tile <= 0 {
		return fmt.Errorf("patches.tile must be positive, got %d", c.Patches.Tile)
	}
	if c.Patches.MaxPatches <= 0 {
		return fmt.Errorf("patches.maxPatches must be positive, got %d", c.Patches.MaxPatches)
	}
	if c.Patches.TrainSize <= 0 {
		return fmt.Errorf("patches.trainSize must be positive, got %d", c.Patches.TrainSize)
	}
	if c.Sweep.Workers <= 0 {
		return fmt.Errorf("sweep.workers must be positive, got %d", c.Sweep.Workers)
	}
	if c.Output.ResultsFile == "" {
		return fmt.Errorf("output.resultsFile must be set")
	}
	switch c.Output.PlotBackend {
	case "gonum", "gochart":
	default:
		return fmt.Errorf("unknown plot backend %q", c.Output.PlotBackend)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
