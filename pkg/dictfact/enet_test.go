package dictfact

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randomVector(rng *rand.Rand, n int, scale float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = scale * rng.NormFloat64()
	}
	return v
}

func TestEnetScale(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, l1Ratio := range []float64{0, 0.5, 0.9, 1} {
		v := randomVector(rng, 20, 3)
		enetScale(v, l1Ratio, 1)
		if got := enetNorm(v, l1Ratio); math.Abs(got-1) > 1e-9 {
			t.Errorf("l1Ratio %g: expected norm 1, got %g", l1Ratio, got)
		}
	}

	zero := make([]float64, 5)
	enetScale(zero, 0.5, 1)
	for _, x := range zero {
		if x != 0 {
			t.Fatal("Zero vector must stay zero")
		}
	}
}

func TestEnetProjection(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))

	for _, l1Ratio := range []float64{0, 0.3, 0.9, 1} {
		v := randomVector(rng, 30, 2)
		dst := make([]float64, len(v))

		enetProjection(dst, v, 1, l1Ratio)
		got := enetNorm(dst, l1Ratio)
		if got > 1+1e-9 {
			t.Errorf("l1Ratio %g: projection outside the ball (%g)", l1Ratio, got)
		}
		if math.Abs(got-1) > 1e-6 {
			t.Errorf("l1Ratio %g: projection of an outside point should hit the boundary, got %g", l1Ratio, got)
		}
	}
}

func TestEnetProjectionInside(t *testing.T) {
	v := []float64{0.1, -0.2, 0.05}
	dst := make([]float64, 3)
	enetProjection(dst, v, 1, 0.5)
	if !floats.Equal(dst, v) {
		t.Errorf("Point inside the ball should be unchanged, got %v", dst)
	}

	enetProjection(dst, v, 0, 0.5)
	for _, x := range dst {
		if x != 0 {
			t.Fatalf("Zero radius should give the zero vector, got %v", dst)
		}
	}
}

// TestEnetProjectionL2 compares the pure l2 case against the closed form
func TestEnetProjectionL2(t *testing.T) {
	v := []float64{3, 4}
	dst := make([]float64, 2)
	enetProjection(dst, v, 1, 0)

	// ||x||^2 <= 1 scales v to unit length
	want := []float64{0.6, 0.8}
	if !floats.EqualApprox(dst, want, 1e-9) {
		t.Errorf("Expected %v, got %v", want, dst)
	}
}

func TestCoordinateDescentMatchesRidge(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	k, p, n := 4, 12, 6

	D := mat.NewDense(k, p, randomVector(rng, k*p, 1))
	X := mat.NewDense(n, p, randomVector(rng, n*p, 1))
	G := mat.NewSymDense(k, nil)
	G.SymOuterK(1, D)
	var dx mat.Dense
	dx.Mul(X, D.T())

	ridge := codeSolver{alpha: 0.5, l1Ratio: 0, tol: 1e-12, maxIter: 5000}
	want := mat.NewDense(n, k, nil)
	if err := ridge.solve(want, G, &dx); err != nil {
		t.Fatalf("Ridge solve failed: %v", err)
	}

	got := mat.NewDense(n, k, nil)
	ridge.coordinateDescent(got, G, &dx)

	if !mat.EqualApprox(got, want, 1e-6) {
		t.Errorf("Coordinate descent disagrees with the closed form:\n%v\n%v",
			mat.Formatted(got), mat.Formatted(want))
	}
}

// TestLassoSparsity checks that a large l1 penalty zeroes the codes
func TestLassoSparsity(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	k, p := 3, 10
	D := mat.NewDense(k, p, randomVector(rng, k*p, 1))
	X := mat.NewDense(2, p, randomVector(rng, 2*p, 1))
	G := mat.NewSymDense(k, nil)
	G.SymOuterK(1, D)
	var dx mat.Dense
	dx.Mul(X, D.T())

	lasso := codeSolver{alpha: 1e6, l1Ratio: 1, tol: 1e-8, maxIter: 100}
	code := mat.NewDense(2, k, nil)
	if err := lasso.solve(code, G, &dx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if mat.Norm(code, 1) != 0 {
		t.Errorf("Expected all-zero codes, got %v", mat.Formatted(code))
	}
}
