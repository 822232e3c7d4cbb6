package dictfact

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// progressLog records every callback invocation
type progressLog struct {
	iters  []int
	scores []float64
	train  mat.Matrix
}

func (l *progressLog) OnProgress(iteration int, model Model) {
	l.iters = append(l.iters, iteration)
	score, err := model.Score(l.train)
	if err != nil {
		score = math.NaN()
	}
	l.scores = append(l.scores, score)
}

// syntheticData builds X = A D + noise with a known low-rank structure
func syntheticData(seed uint64, n, p, k int) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	A := mat.NewDense(n, k, randomVector(rng, n*k, 1))
	D := mat.NewDense(k, p, randomVector(rng, k*p, 1))
	var X mat.Dense
	X.Mul(A, D)
	rows, cols := X.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			X.Set(i, j, X.At(i, j)+0.05*rng.NormFloat64())
		}
	}
	return &X
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.NComponents = 4
	opts.Alpha = 0.1
	opts.L1Ratio = 0
	opts.PenL1Ratio = 0.9
	opts.BatchSize = 5
	opts.LearningRate = 0.9
	opts.NEpochs = 4
	opts.Verbose = 4
	opts.Seed = 11
	return opts
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("Default options should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"components", func(o *Options) { o.NComponents = 0 }},
		{"alpha", func(o *Options) { o.Alpha = -1 }},
		{"l1 ratio", func(o *Options) { o.L1Ratio = 1.5 }},
		{"pen l1 ratio", func(o *Options) { o.PenL1Ratio = -0.1 }},
		{"batch size", func(o *Options) { o.BatchSize = 0 }},
		{"learning rate", func(o *Options) { o.LearningRate = 0 }},
		{"sample learning rate", func(o *Options) { o.SampleLearningRate = 0 }},
		{"reduction", func(o *Options) { o.Reduction = 0.5 }},
		{"verbose", func(o *Options) { o.Verbose = -1 }},
		{"epochs", func(o *Options) { o.NEpochs = 0 }},
		{"tol", func(o *Options) { o.Tol = 0 }},
		{"max iter", func(o *Options) { o.MaxIter = 0 }},
		{"projection", func(o *Options) { o.Projection = "none" }},
		{"backend", func(o *Options) { o.Backend = "cython" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			if err := opts.Validate(); err == nil {
				t.Error("Expected validation error")
			}
			if _, err := New(opts); err == nil {
				t.Error("New should reject invalid options")
			}
		})
	}
}

func TestBatchWeight(t *testing.T) {
	if w := batchWeight(10, 10, 0.9); w != 1 {
		t.Errorf("First batch should fully replace the statistics, got %g", w)
	}

	prev := 1.0
	for nIter := 20; nIter <= 200; nIter += 10 {
		w := batchWeight(nIter, 10, 0.9)
		if w <= 0 || w > prev {
			t.Fatalf("Weight at %d should be in (0, %g], got %g", nIter, prev, w)
		}
		prev = w
	}
}

func TestCheckpoints(t *testing.T) {
	points := checkpoints(2000, 3, 10, 5)
	if len(points) != 5 {
		t.Fatalf("Expected 5 checkpoints, got %d", len(points))
	}
	if points[0] != 0 {
		t.Errorf("First checkpoint should be 0, got %d", points[0])
	}
	if !sort.IntsAreSorted(points) {
		t.Errorf("Checkpoints should be increasing: %v", points)
	}
	if last := points[len(points)-1]; last > 2000*3 {
		t.Errorf("Last checkpoint %d beyond the last sample", last)
	}

	if checkpoints(100, 1, 10, 0) != nil {
		t.Error("No checkpoints expected when verbose is 0")
	}
}

func TestFeatureSampler(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))

	t.Run("Full", func(t *testing.T) {
		s := newFeatureSampler(12, true, rng)
		subset := s.yield(1)
		if len(subset) != 12 {
			t.Fatalf("Reduction 1 should read every feature, got %d", len(subset))
		}
	})

	t.Run("Replacement", func(t *testing.T) {
		s := newFeatureSampler(12, true, rng)
		for i := 0; i < 20; i++ {
			subset := s.yield(4)
			if len(subset) != 3 {
				t.Fatalf("Expected subsets of 3, got %d", len(subset))
			}
			if !sort.IntsAreSorted(subset) {
				t.Fatalf("Subset not sorted: %v", subset)
			}
			for j := 1; j < len(subset); j++ {
				if subset[j] == subset[j-1] {
					t.Fatalf("Duplicate feature in %v", subset)
				}
			}
		}
	})

	t.Run("Cycling", func(t *testing.T) {
		s := newFeatureSampler(12, false, rng)
		seen := make(map[int]int)
		for i := 0; i < 4; i++ {
			for _, j := range s.yield(4) {
				seen[j]++
			}
		}
		if len(seen) != 12 {
			t.Errorf("A full cycle should visit every feature, visited %d", len(seen))
		}
		for j, c := range seen {
			if c != 1 {
				t.Errorf("Feature %d visited %d times in one cycle", j, c)
			}
		}
	})
}

// TestFit runs the estimator on low-rank data in every configuration
func TestFit(t *testing.T) {
	X := syntheticData(1, 60, 16, 4)

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"Default", func(o *Options) {}},
		{"Reduced", func(o *Options) { o.Reduction = 2 }},
		{"NoReplacement", func(o *Options) { o.Reduction = 2; o.Replacement = false }},
		{"Decoupled", func(o *Options) { o.Reduction = 2; o.CoupledSubset = false }},
		{"FullProjection", func(o *Options) { o.Reduction = 3; o.Projection = ProjectionFull }},
		{"MaskedFullB", func(o *Options) { o.Reduction = 2; o.MaskedObjective = true; o.FullB = true }},
		{"Lasso", func(o *Options) { o.L1Ratio = 1; o.Alpha = 0.05 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)
			log := &progressLog{train: X}
			opts.Callback = log

			est, err := New(opts)
			if err != nil {
				t.Fatalf("Failed to create estimator: %v", err)
			}
			if err := est.Fit(context.Background(), X); err != nil {
				t.Fatalf("Fit failed: %v", err)
			}

			if len(log.iters) < 2 {
				t.Fatalf("Expected several callbacks, got %d", len(log.iters))
			}
			if !sort.IntsAreSorted(log.iters) {
				t.Errorf("Iterations should be non-decreasing: %v", log.iters)
			}
			if last := log.iters[len(log.iters)-1]; last != 60*opts.NEpochs {
				t.Errorf("Final callback should report %d samples, got %d", 60*opts.NEpochs, last)
			}
			if est.NIter() != 60*opts.NEpochs {
				t.Errorf("Expected %d samples seen, got %d", 60*opts.NEpochs, est.NIter())
			}
			for i, s := range log.scores {
				if math.IsNaN(s) || math.IsInf(s, 0) {
					t.Fatalf("Score %d is not finite", i)
				}
			}
			first, last := log.scores[0], log.scores[len(log.scores)-1]
			if last > first {
				t.Errorf("Objective increased from %g to %g", first, last)
			}

			D := est.Components()
			k, _ := D.Dims()
			for c := 0; c < k; c++ {
				if norm := enetNorm(D.RawRowView(c), opts.PenL1Ratio); norm > 1+1e-6 {
					t.Errorf("Atom %d outside the constraint set: %g", c, norm)
				}
			}

			if _, ok := est.Beta(); !ok {
				t.Error("Fitted estimator should expose beta")
			}
		})
	}
}

func TestFitDeterministic(t *testing.T) {
	X := syntheticData(2, 40, 12, 3)
	opts := testOptions()
	opts.Reduction = 2

	fit := func() *mat.Dense {
		est, err := New(opts)
		if err != nil {
			t.Fatalf("Failed to create estimator: %v", err)
		}
		if err := est.Fit(context.Background(), X); err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		return est.Components()
	}

	if !mat.Equal(fit(), fit()) {
		t.Error("Two fits with the same seed should give the same dictionary")
	}
}

func TestFitErrors(t *testing.T) {
	opts := testOptions()
	est, err := New(opts)
	if err != nil {
		t.Fatalf("Failed to create estimator: %v", err)
	}

	if _, err := est.Transform(mat.NewDense(2, 3, nil)); err == nil {
		t.Error("Transform before Fit should fail")
	}
	if err := est.Fit(context.Background(), mat.NewDense(2, 5, nil)); err == nil {
		t.Error("Fit should require at least n_components samples")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = est.Fit(ctx, syntheticData(3, 30, 8, 2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestScoreDimensionMismatch(t *testing.T) {
	X := syntheticData(4, 30, 8, 2)
	est, err := New(testOptions())
	if err != nil {
		t.Fatalf("Failed to create estimator: %v", err)
	}
	if err := est.Fit(context.Background(), X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if _, err := est.Score(mat.NewDense(3, 7, nil)); err == nil {
		t.Error("Expected a feature count mismatch error")
	}
}
