package imageprep

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ExtractPatches samples size x size patches from src and returns them as
// the rows of a matrix (row-major flattening).
//
// Top-left corners are drawn uniformly with replacement. When maxPatches is
// at least the number of available positions the count is clamped: every
// position is returned once, in raster order, and rng is not used.
func ExtractPatches(src mat.Matrix, size, maxPatches int, rng *rand.Rand) (*mat.Dense, error) {
	if size <= 0 {
		return nil, fmt.Errorf("patch size must be positive, got %d", size)
	}
	if maxPatches <= 0 {
		return nil, fmt.Errorf("patch count must be positive, got %d", maxPatches)
	}

	rows, cols := src.Dims()
	nH := rows - size + 1
	nW := cols - size + 1
	if nH <= 0 || nW <= 0 {
		return nil, fmt.Errorf("region %dx%d smaller than patch size %d", rows, cols, size)
	}

	available := nH * nW
	count := maxPatches
	if count >= available {
		count = available
	}

	patches := mat.NewDense(count, size*size, nil)
	row := make([]float64, size*size)
	for p := 0; p < count; p++ {
		var top, left int
		if count == available {
			top, left = p/nW, p%nW
		} else {
			top, left = rng.IntN(nH), rng.IntN(nW)
		}

		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				row[y*size+x] = src.At(top+y, left+x)
			}
		}
		patches.SetRow(p, row)
	}

	return patches, nil
}

// Tile enlarges every flattened size x size patch to (size*tile)^2 features
// by block replication: every source pixel becomes a tile x tile block, so
// pixel (y, x) of the tiled patch is pixel (y/tile, x/tile) of the source.
func Tile(patches *mat.Dense, size, tile int) (*mat.Dense, error) {
	n, features := patches.Dims()
	if features != size*size {
		return nil, fmt.Errorf("expected %d features per patch, got %d", size*size, features)
	}
	if tile <= 0 {
		return nil, fmt.Errorf("tile factor must be positive, got %d", tile)
	}

	side := size * tile
	tiled := mat.NewDense(n, side*side, nil)
	out := make([]float64, side*side)
	for p := 0; p < n; p++ {
		in := patches.RawRowView(p)
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				out[y*side+x] = in[(y/tile)*size+x/tile]
			}
		}
		tiled.SetRow(p, out)
	}

	return tiled, nil
}

// Standardize centres every column of data and scales it to unit population
// standard deviation, in place. Constant columns are centred only; their
// indices are returned.
func Standardize(data *mat.Dense) []int {
	_, features := data.Dims()
	var constant []int

	var col []float64
	for j := 0; j < features; j++ {
		col = mat.Col(col, j, data)
		mean, std := stat.PopMeanStdDev(col, nil)
		for i := range col {
			col[i] -= mean
			if std > 0 {
				col[i] /= std
			}
		}
		if std == 0 {
			constant = append(constant, j)
		}
		data.SetCol(j, col)
	}

	return constant
}

// Split cuts data at row index cut. The two halves are copies, in order.
func Split(data mat.Matrix, cut int) (train, heldOut *mat.Dense, err error) {
	n, _ := data.Dims()
	if cut <= 0 || cut >= n {
		return nil, nil, fmt.Errorf("split index %d out of range (0, %d)", cut, n)
	}

	dense := mat.DenseCopyOf(data)
	_, features := dense.Dims()
	train = mat.DenseCopyOf(dense.Slice(0, cut, 0, features))
	heldOut = mat.DenseCopyOf(dense.Slice(cut, n, 0, features))
	return train, heldOut, nil
}
