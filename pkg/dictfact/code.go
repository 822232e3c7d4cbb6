package dictfact

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// codeSolver computes codes minimising
//
//	1/2 c^T G c - c^T dx + alpha * (r ||c||_1 + (1-r)/2 ||c||_2^2)
//
// for every row dx of Dx, i.e. the elastic-net regression of a sample on the
// dictionary expressed through the Gram matrix G = D D^T and Dx = X D^T.
type codeSolver struct {
	alpha   float64
	l1Ratio float64
	tol     float64
	maxIter int
}

// solve writes the codes into code (rows x k). code is used as warm start
// when the l1 path is taken.
func (s codeSolver) solve(code *mat.Dense, G mat.Symmetric, Dx mat.Matrix) error {
	if s.l1Ratio == 0 {
		return s.ridge(code, G, Dx)
	}
	s.coordinateDescent(code, G, Dx)
	return nil
}

// ridge solves (G + alpha I) c = dx for all rows at once
func (s codeSolver) ridge(code *mat.Dense, G mat.Symmetric, Dx mat.Matrix) error {
	k := G.SymmetricDim()
	A := mat.NewSymDense(k, nil)
	A.CopySym(G)
	for i := 0; i < k; i++ {
		A.SetSym(i, i, A.At(i, i)+s.alpha)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(A); !ok {
		return fmt.Errorf("gram matrix is not positive definite (alpha=%g)", s.alpha)
	}

	// A is symmetric, so code = Dx A^-1 is the transpose of A^-1 Dx^T
	var sol mat.Dense
	if err := chol.SolveTo(&sol, Dx.T()); err != nil {
		return fmt.Errorf("failed to solve for codes: %w", err)
	}
	code.Copy(sol.T())
	return nil
}

// coordinateDescent runs cyclic coordinate descent per row
func (s codeSolver) coordinateDescent(code *mat.Dense, G mat.Symmetric, Dx mat.Matrix) {
	rows, k := code.Dims()
	l1 := s.alpha * s.l1Ratio
	l2 := s.alpha * (1 - s.l1Ratio)
	gc := make([]float64, k)

	for r := 0; r < rows; r++ {
		c := code.RawRowView(r)

		// gc = G c
		for i := 0; i < k; i++ {
			var sum float64
			for j := 0; j < k; j++ {
				sum += G.At(i, j) * c[j]
			}
			gc[i] = sum
		}

		for iter := 0; iter < s.maxIter; iter++ {
			var maxDelta, maxAbs float64
			for j := 0; j < k; j++ {
				gjj := G.At(j, j)
				old := c[j]
				tmp := Dx.At(r, j) - gc[j] + gjj*old

				var next float64
				if denom := gjj + l2; denom > 0 {
					next = math.Copysign(math.Max(math.Abs(tmp)-l1, 0), tmp) / denom
				}
				if delta := next - old; delta != 0 {
					for i := 0; i < k; i++ {
						gc[i] += G.At(i, j) * delta
					}
					c[j] = next
					maxDelta = math.Max(maxDelta, math.Abs(delta))
				}
				maxAbs = math.Max(maxAbs, math.Abs(next))
			}
			if maxAbs == 0 || maxDelta/maxAbs < s.tol {
				break
			}
		}
	}
}
