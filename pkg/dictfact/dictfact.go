// Package dictfact implements online dictionary learning with feature
// subsampling ("masked" matrix factorization).
//
// The estimator factorises X (n_samples x n_features) as X ~ A D where the
// atoms (rows of D) lie in an elastic-net ball and the codes A are
// elastic-net penalised. Samples are streamed in mini-batches and every
// batch only reads a random subset of the features, which makes each
// iteration cheaper by the reduction factor.
//
// References:
//
//	A. Mensch, J. Mairal, B. Thirion, G. Varoquaux.
//	Dictionary Learning for Massive Matrix Factorization. ICML 2016.
package dictfact

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Model is the read-only view of an estimator handed to callbacks
type Model interface {
	// Score returns the objective value on X
	Score(X mat.Matrix) (float64, error)

	// Components returns a copy of the dictionary (n_components x n_features)
	Components() *mat.Dense

	// Beta returns the running estimate of X D^T for the training samples,
	// when the estimator maintains one
	Beta() (*mat.Dense, bool)

	// NIter returns the number of samples seen so far
	NIter() int
}

// Callback observes a fit. OnProgress is called synchronously from Fit, so
// the model must not be retained after the call returns.
type Callback interface {
	OnProgress(iteration int, model Model)
}

// DictMF is a dictionary learning estimator. It is not safe for concurrent
// use; independent runs should use independent instances.
type DictMF struct {
	opts Options
	rng  *rand.Rand

	// components holds the dictionary atoms as rows
	components *mat.Dense

	// sufficient statistics for the dictionary update
	C *mat.Dense
	B *mat.Dense

	// G is the Gram matrix of the dictionary
	G *mat.SymDense

	// code and beta are indexed by training sample
	code *mat.Dense
	beta *mat.Dense

	compNorm    []float64
	nIter       int
	sampleNIter []int
	sampler     *featureSampler
	checkpoints []int
	fitted      bool
}

// New validates the options and returns an unfitted estimator
func New(opts Options) (*DictMF, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid estimator options: %w", err)
	}
	return &DictMF{
		opts: opts,
		rng:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Options returns the options the estimator was built with
func (d *DictMF) Options() Options {
	return d.opts
}

// NIter returns the number of samples seen so far
func (d *DictMF) NIter() int {
	return d.nIter
}

// Components returns a copy of the dictionary, nil before Fit
func (d *DictMF) Components() *mat.Dense {
	if d.components == nil {
		return nil
	}
	return mat.DenseCopyOf(d.components)
}

// Beta returns the per-sample running average of the masked X D^T
// estimates. The returned matrix is owned by the estimator.
func (d *DictMF) Beta() (*mat.Dense, bool) {
	if d.beta == nil {
		return nil, false
	}
	return d.beta, true
}

// Fit learns the dictionary from X. The callback, if any, fires at
// log-spaced sample counts and once after the last batch.
func (d *DictMF) Fit(ctx context.Context, X mat.Matrix) error {
	data := mat.DenseCopyOf(X)
	n, _ := data.Dims()
	if n < d.opts.NComponents {
		return fmt.Errorf("need at least %d samples, got %d", d.opts.NComponents, n)
	}

	d.prepare(data)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < d.opts.NEpochs; epoch++ {
		if epoch > 0 {
			d.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		for start := 0; start < n; start += d.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+d.opts.BatchSize, n)
			if err := d.singleBatchFit(data, order[start:end]); err != nil {
				return fmt.Errorf("epoch %d, batch at %d: %w", epoch, start, err)
			}
		}
	}

	d.fitted = true
	d.notify()
	return nil
}

// prepare initialises the dictionary and the statistics
func (d *DictMF) prepare(X *mat.Dense) {
	n, p := X.Dims()
	k := d.opts.NComponents

	d.components = mat.NewDense(k, p, nil)
	for i, idx := range d.rng.Perm(n)[:k] {
		row := make([]float64, p)
		copy(row, X.RawRowView(idx))
		enetScale(row, d.opts.PenL1Ratio, 1)
		d.components.SetRow(i, row)
	}

	d.C = mat.NewDense(k, k, nil)
	d.B = mat.NewDense(k, p, nil)
	d.G = mat.NewSymDense(k, nil)
	d.G.SymOuterK(1, d.components)

	ones := make([]float64, n*k)
	for i := range ones {
		ones[i] = 1
	}
	d.code = mat.NewDense(n, k, ones)
	d.beta = mat.NewDense(n, k, nil)

	d.compNorm = make([]float64, k)
	d.nIter = 0
	d.sampleNIter = make([]int, n)
	d.sampler = newFeatureSampler(p, d.opts.Replacement, d.rng)
	d.checkpoints = checkpoints(n, d.opts.NEpochs, d.opts.BatchSize, d.opts.Verbose)
	d.fitted = false
}

// checkpoints returns the sample counts at which progress is reported:
// verbose points log-spaced between 0 and n*epochs - batchSize
func checkpoints(n, epochs, batchSize, verbose int) []int {
	if verbose <= 0 {
		return nil
	}
	total := float64(n*epochs) / float64(batchSize)
	logLim := math.Log10(math.Max(total, 1))

	points := make([]int, verbose)
	for i := range points {
		var exp float64
		if verbose > 1 {
			exp = logLim * float64(i) / float64(verbose-1)
		}
		points[i] = int((math.Pow(10, exp) - 1) * float64(batchSize))
	}
	return points
}

func (d *DictMF) notify() {
	if d.opts.Callback != nil {
		d.opts.Callback.OnProgress(d.nIter, d)
	}
}

// singleBatchFit computes the codes of a batch, updates the statistics and
// the dictionary
func (d *DictMF) singleBatchFit(X *mat.Dense, idx []int) error {
	if len(d.checkpoints) > 0 && d.nIter >= d.checkpoints[0] {
		d.checkpoints = d.checkpoints[1:]
		d.notify()
	}

	subset := d.sampler.yield(d.opts.Reduction)

	batchSize := len(idx)
	d.nIter += batchSize
	wSample := make([]float64, batchSize)
	for i, s := range idx {
		d.sampleNIter[s]++
		wSample[i] = math.Pow(float64(d.sampleNIter[s]), -d.opts.SampleLearningRate)
	}
	w := batchWeight(d.nIter, batchSize, d.opts.LearningRate)

	_, p := X.Dims()
	xb := mat.NewDense(batchSize, p, nil)
	for i, s := range idx {
		xb.SetRow(i, X.RawRowView(s))
	}

	code, err := d.computeCode(xb, idx, wSample, subset)
	if err != nil {
		return err
	}

	d.updateC(code, w)

	dictSubset := subset
	if !d.opts.CoupledSubset {
		dictSubset = d.sampler.yield(d.opts.Reduction)
	}
	if d.opts.FullB {
		d.updateB(xb, code, w, nil)
	} else {
		d.updateB(xb, code, w, dictSubset)
	}
	d.updateDict(dictSubset)
	return nil
}

// batchWeight is the combined forgetting weight of a batch ending at
// sample nIter, with per-sample weights t^-learningRate
func batchWeight(nIter, batchSize int, learningRate float64) float64 {
	keep := 1.0
	for i := 0; i < batchSize; i++ {
		t := nIter - i
		if t <= 0 {
			continue
		}
		keep *= 1 - math.Pow(float64(t), -learningRate)
	}
	return 1 - keep
}

// computeCode updates beta for the batch samples and solves for their codes
func (d *DictMF) computeCode(xb *mat.Dense, idx []int, wSample []float64, subset []int) (*mat.Dense, error) {
	batchSize, p := xb.Dims()
	k := d.opts.NComponents
	scale := float64(p) / float64(len(subset))

	// Dx = X_S D_S^T scaled to the full feature count
	xs := gatherCols(xb, subset)
	ds := gatherCols(d.components, subset)
	dx := mat.NewDense(batchSize, k, nil)
	dx.Mul(xs, ds.T())
	dx.Scale(scale, dx)

	for i, s := range idx {
		row := d.beta.RawRowView(s)
		floats.Scale(1-wSample[i], row)
		floats.AddScaled(row, wSample[i], dx.RawRowView(i))
	}

	target := dx
	if !d.opts.MaskedObjective {
		target = mat.NewDense(batchSize, k, nil)
		for i, s := range idx {
			target.SetRow(i, d.beta.RawRowView(s))
		}
	}

	code := mat.NewDense(batchSize, k, nil)
	for i, s := range idx {
		code.SetRow(i, d.code.RawRowView(s))
	}
	if err := d.solver().solve(code, d.G, target); err != nil {
		return nil, err
	}
	for i, s := range idx {
		d.code.SetRow(s, code.RawRowView(i))
	}
	return code, nil
}

func (d *DictMF) solver() codeSolver {
	return codeSolver{
		alpha:   d.opts.Alpha,
		l1Ratio: d.opts.L1Ratio,
		tol:     d.opts.Tol,
		maxIter: d.opts.MaxIter,
	}
}

// updateC performs C <- (1-w) C + w/b A^T A
func (d *DictMF) updateC(code *mat.Dense, w float64) {
	batchSize, _ := code.Dims()
	var cc mat.Dense
	cc.Mul(code.T(), code)
	d.C.Scale(1-w, d.C)
	cc.Scale(w/float64(batchSize), &cc)
	d.C.Add(d.C, &cc)
}

// updateB performs B <- (1-w) B + w/b A^T X on the given columns
// (every column when cols is nil)
func (d *DictMF) updateB(xb, code *mat.Dense, w float64, cols []int) {
	batchSize, _ := code.Dims()
	var cx mat.Dense
	cx.Mul(code.T(), xb)
	cx.Scale(w/float64(batchSize), &cx)

	if cols == nil {
		d.B.Scale(1-w, d.B)
		d.B.Add(d.B, &cx)
		return
	}

	k, _ := d.B.Dims()
	for i := 0; i < k; i++ {
		b := d.B.RawRowView(i)
		c := cx.RawRowView(i)
		for _, j := range cols {
			b[j] = (1-w)*b[j] + c[j]
		}
	}
}

// updateDict runs one block coordinate descent pass over the atoms,
// restricted to the features in subset
func (d *DictMF) updateDict(subset []int) {
	k, p := d.components.Dims()
	s := len(subset)
	l1Ratio := d.opts.PenL1Ratio
	partial := d.opts.Projection == ProjectionPartial
	incremental := partial && float64(s) < float64(p)/2

	ds := gatherCols(d.components, subset)
	if incremental {
		d.G.SymRankK(d.G, -1, ds)
	}

	// gradient = B_S - C D_S
	grad := gatherCols(d.B, subset)
	var cd mat.Dense
	cd.Mul(d.C, ds)
	grad.Sub(grad, &cd)

	atom := make([]float64, s)
	full := make([]float64, p)
	fullProj := make([]float64, p)
	for _, c := range d.rng.Perm(k) {
		dc := ds.RawRowView(c)
		if partial {
			d.compNorm[c] += enetNorm(dc, l1Ratio)
		}

		// add back the contribution of atom c
		for r := 0; r < k; r++ {
			floats.AddScaled(grad.RawRowView(r), d.C.At(r, c), dc)
		}

		if ckk := d.C.At(c, c); ckk > 1e-20 {
			floats.ScaleTo(dc, 1/ckk, grad.RawRowView(c))
		}

		if partial {
			enetProjection(atom, dc, d.compNorm[c], l1Ratio)
			copy(dc, atom)
			d.compNorm[c] -= enetNorm(dc, l1Ratio)
		} else {
			copy(full, d.components.RawRowView(c))
			for i, j := range subset {
				full[j] = dc[i]
			}
			enetProjection(fullProj, full, 1, l1Ratio)
			d.components.SetRow(c, fullProj)
			for i, j := range subset {
				dc[i] = fullProj[j]
			}
		}

		for r := 0; r < k; r++ {
			floats.AddScaled(grad.RawRowView(r), -d.C.At(r, c), dc)
		}
	}

	scatterCols(d.components, ds, subset)

	if incremental {
		d.G.SymRankK(d.G, 1, ds)
	} else {
		d.G.SymOuterK(1, d.components)
	}
}

// Transform returns the codes of X on the current dictionary
func (d *DictMF) Transform(X mat.Matrix) (*mat.Dense, error) {
	if d.components == nil {
		return nil, fmt.Errorf("estimator is not fitted")
	}
	n, p := X.Dims()
	k, pd := d.components.Dims()
	if p != pd {
		return nil, fmt.Errorf("expected %d features, got %d", pd, p)
	}

	G := mat.NewSymDense(k, nil)
	G.SymOuterK(1, d.components)
	dx := mat.NewDense(n, k, nil)
	dx.Mul(X, d.components.T())

	ones := make([]float64, n*k)
	for i := range ones {
		ones[i] = 1
	}
	code := mat.NewDense(n, k, ones)
	if err := d.solver().solve(code, G, dx); err != nil {
		return nil, err
	}
	return code, nil
}

// Score returns the penalised reconstruction objective on X, per sample:
//
//	(1/2 ||X - A D||^2 + alpha (r ||A||_1 + (1-r)/2 ||A||^2)) / n
func (d *DictMF) Score(X mat.Matrix) (float64, error) {
	code, err := d.Transform(X)
	if err != nil {
		return 0, err
	}
	n, _ := X.Dims()

	var resid mat.Dense
	resid.Mul(code, d.components)
	resid.Sub(X, &resid)
	// mat.Norm with 2 is the Frobenius norm
	loss := mat.Norm(&resid, 2)
	loss = loss * loss / 2

	var l1, l2 float64
	rows, _ := code.Dims()
	for i := 0; i < rows; i++ {
		row := code.RawRowView(i)
		l1 += floats.Norm(row, 1)
		l2 += floats.Dot(row, row)
	}
	r := d.opts.L1Ratio
	regul := d.opts.Alpha * (l1*r + (1-r)*l2/2)
	return (loss + regul) / float64(n), nil
}

// gatherCols returns a copy of the given columns of m
func gatherCols(m *mat.Dense, cols []int) *mat.Dense {
	rows, _ := m.Dims()
	out := mat.NewDense(rows, len(cols), nil)
	for i := 0; i < rows; i++ {
		src := m.RawRowView(i)
		dst := out.RawRowView(i)
		for c, j := range cols {
			dst[c] = src[j]
		}
	}
	return out
}

// scatterCols writes the columns of src into the given columns of dst
func scatterCols(dst, src *mat.Dense, cols []int) {
	rows, _ := dst.Dims()
	for i := 0; i < rows; i++ {
		d := dst.RawRowView(i)
		s := src.RawRowView(i)
		for c, j := range cols {
			d[j] = s[c]
		}
	}
}
