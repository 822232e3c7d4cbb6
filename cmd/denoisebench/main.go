package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"denoisebench/internal/logger"
	"denoisebench/pkg/config"
	"denoisebench/pkg/experiment"
	"denoisebench/pkg/imageprep"
)

// cliFlags holds the command line arguments
type cliFlags struct {
	configPath  string
	outputFile  string
	plotFile    string
	workers     int
	seed        uint64
	imagePath   string
	writeConfig string
	verbose     bool
}

// registerFlags defines the command line arguments on fs
func registerFlags(fs *flag.FlagSet) *cliFlags {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "config.yaml", "YAML configuration file (defaults are used when missing)")
	fs.StringVar(&f.outputFile, "output", "", "Results JSON file (overrides the configuration)")
	fs.StringVar(&f.plotFile, "plot", "", "Convergence plot file (overrides the configuration)")
	fs.IntVar(&f.workers, "workers", 0, "Number of concurrent runs (overrides the configuration)")
	fs.Uint64Var(&f.seed, "seed", 0, "Random seed (overrides the configuration)")
	fs.StringVar(&f.imagePath, "image", "", "Image file to extract patches from (built-in sample when empty)")
	fs.StringVar(&f.writeConfig, "write-config", "", "Write the default configuration to this file and exit")
	fs.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	return f
}

// applyOverrides copies the flags explicitly set on the command line into cfg
func applyOverrides(fs *flag.FlagSet, f *cliFlags, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "output":
			cfg.Output.ResultsFile = f.outputFile
		case "plot":
			cfg.Output.PlotFile = f.plotFile
		case "workers":
			cfg.Sweep.Workers = f.workers
		case "seed":
			cfg.Seed = f.seed
		case "image":
			cfg.Image.Path = f.imagePath
		case "verbose":
			cfg.Output.Verbose = f.verbose
		}
	})
}

func main() {
	// Parse command line arguments
	flags := registerFlags(flag.CommandLine)
	flag.Parse()

	if flags.writeConfig != "" {
		if err := config.CreateDefaultConfigFile(flags.writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", flags.writeConfig)
		return
	}

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Command line flags take precedence over the file
	applyOverrides(flag.CommandLine, flags, cfg)

	log := logger.NewConsole(cfg.Output.Verbose)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	fmt.Println("================================")
	fmt.Println("ONLINE DICTIONARY LEARNING: FEATURE SUBSAMPLING BENCHMARK")
	fmt.Println("================================")

	params := experiment.ParamsFromConfig(cfg)
	if cfg.Image.Path != "" {
		img, err := imageprep.LoadImage(cfg.Image.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Image.Path).Msg("failed to load image")
		}
		params.Source = img
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exp := experiment.NewExperiment(&params, log)

	startTime := time.Now()
	results, err := exp.Process(ctx)
	if err != nil {
		stop()
		log.Fatal().Err(err).Msg("benchmark failed")
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nBenchmark completed in %.2f seconds using %d workers\n", processingTime.Seconds(), params.Workers)
	fmt.Printf("Results saved to: %s\n", params.ResultsFile)
	for _, path := range exp.PlotFiles() {
		fmt.Printf("Plot saved to: %s\n", path)
	}

	fmt.Println("\nRuns:")
	for _, res := range results {
		final := 0.0
		if n := res.Trace.Len(); n > 0 {
			final = res.Trace.Obj[n-1]
		}
		fmt.Printf("- reduction %-4g epochs %-3d points %-3d train obj %.4f  held-out obj %.4f  (%.2fs)\n",
			res.Config.Reduction, res.Config.NEpochs, res.Trace.Len(), final, res.HeldOutScore, res.Duration.Seconds())
	}
}
