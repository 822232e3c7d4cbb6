// Package imageprep turns a grayscale image into the standardised patch
// dataset consumed by the dictionary learning runs.
//
// The preparation follows the usual denoising benchmark recipe:
//  1. load an image (the built-in sample unless a file is given)
//  2. normalise intensities to [0,1] and downsample by 2x2 averaging
//  3. optionally distort the right half with Gaussian noise
//  4. extract random patches from the left half, tile and flatten them
//  5. standardise every feature and split train/held-out
package imageprep

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"
)

// Sample image dimensions
const (
	SampleWidth  = 1024
	SampleHeight = 768
)

// SampleImage returns the built-in 8-bit grayscale test scene. The scene is
// generated procedurally and is identical on every call.
func SampleImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, SampleWidth, SampleHeight))

	for y := 0; y < SampleHeight; y++ {
		fy := float64(y) / SampleHeight
		for x := 0; x < SampleWidth; x++ {
			fx := float64(x) / SampleWidth

			// Smooth background with oriented gratings
			v := 0.45 + 0.2*math.Sin(2*math.Pi*(3*fx+2*fy))*math.Cos(2*math.Pi*5*fy)

			// Concentric rings around two centres give curved edges
			for _, c := range [2][2]float64{{0.3, 0.45}, {0.72, 0.6}} {
				dx, dy := fx-c[0], fy-c[1]
				r := math.Sqrt(dx*dx + dy*dy)
				v += 0.15 * math.Cos(60*r) * math.Exp(-5*r)
			}

			// Block texture with sharp straight edges
			if ((x/48)+(y/48))%2 == 0 {
				v += 0.08
			}

			// Fine grain
			v += 0.04 * hashNoise(x, y)

			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(clamp01(v) * 255))})
		}
	}

	return img
}

// hashNoise maps a pixel coordinate to a deterministic value in [-1, 1]
func hashNoise(x, y int) float64 {
	h := uint32(x)*374761393 + uint32(y)*668265263
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return float64(h)/float64(math.MaxUint32)*2 - 1
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// LoadImage opens an image file and converts it to grayscale
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return imaging.Grayscale(img), nil
}

// Normalize converts an image to a matrix of intensities in [0,1]
// (rows are image rows)
func Normalize(img image.Image) *mat.Dense {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := mat.NewDense(height, width, nil)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			result.Set(y, x, float64(g.Y)/255)
		}
	}

	return result
}

// Downsample halves both dimensions by averaging 2x2 blocks. A trailing odd
// row or column is dropped.
func Downsample(m mat.Matrix) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("image %dx%d too small to downsample", rows, cols)
	}

	h, w := rows/2, cols/2
	result := mat.NewDense(h, w, nil)
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			sum := m.At(2*i, 2*j) + m.At(2*i+1, 2*j) + m.At(2*i, 2*j+1) + m.At(2*i+1, 2*j+1)
			result.Set(i, j, sum/4)
		}
	}

	return result, nil
}

// Distort returns a copy of m. When enabled, Gaussian noise with standard
// deviation sigma is added to the right half of the copy.
func Distort(m mat.Matrix, enabled bool, sigma float64, rng *rand.Rand) *mat.Dense {
	distorted := mat.DenseCopyOf(m)
	if !enabled {
		return distorted
	}

	rows, cols := distorted.Dims()
	for i := 0; i < rows; i++ {
		for j := cols / 2; j < cols; j++ {
			distorted.Set(i, j, distorted.At(i, j)+sigma*rng.NormFloat64())
		}
	}

	return distorted
}

// LeftHalf returns a view on the columns [0, cols/2) of m
func LeftHalf(m *mat.Dense) mat.Matrix {
	rows, cols := m.Dims()
	return m.Slice(0, rows, 0, cols/2)
}

// ToImage converts a matrix of intensities back to an 8-bit image,
// clipping values outside [0,1]
func ToImage(m mat.Matrix) *image.Gray {
	rows, cols := m.Dims()
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(clamp01(m.At(y, x)) * 255))})
		}
	}
	return img
}

// SavePreview writes m as an image file; the format follows the extension
func SavePreview(m mat.Matrix, path string) error {
	if err := imaging.Save(ToImage(m), path); err != nil {
		return fmt.Errorf("failed to save preview %s: %w", path, err)
	}
	return nil
}
