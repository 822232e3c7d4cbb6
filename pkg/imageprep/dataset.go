package imageprep

import (
	"fmt"
	"image"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Options controls Prepare
type Options struct {
	// Source is the image to use; SampleImage() when nil
	Source image.Image

	DistortEnabled bool
	DistortSigma   float64

	PatchSize  int
	Tile       int
	MaxPatches int
	TrainSize  int
}

// Dataset holds every intermediate product of the preparation
type Dataset struct {
	// Image is the normalised, downsampled source
	Image *mat.Dense

	// Distorted is the image patches are extracted from
	Distorted *mat.Dense

	// Train and HeldOut are the standardised patch rows
	Train   *mat.Dense
	HeldOut *mat.Dense

	// Extracted is the number of patches actually extracted; it is lower
	// than the requested count when the region has fewer positions
	Extracted int

	// ConstantFeatures lists the zero-variance columns left unscaled
	ConstantFeatures []int
}

// Prepare runs the full preparation. rng is consumed by the distortion and
// then by patch sampling, so a fixed seed gives identical output.
func Prepare(opts Options, rng *rand.Rand) (*Dataset, error) {
	src := opts.Source
	if src == nil {
		src = SampleImage()
	}

	img, err := Downsample(Normalize(src))
	if err != nil {
		return nil, err
	}
	distorted := Distort(img, opts.DistortEnabled, opts.DistortSigma, rng)

	patches, err := ExtractPatches(LeftHalf(distorted), opts.PatchSize, opts.MaxPatches, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to extract patches: %w", err)
	}

	data, err := Tile(patches, opts.PatchSize, opts.Tile)
	if err != nil {
		return nil, fmt.Errorf("failed to tile patches: %w", err)
	}
	constant := Standardize(data)

	train, heldOut, err := Split(data, opts.TrainSize)
	if err != nil {
		return nil, fmt.Errorf("failed to split patches: %w", err)
	}

	extracted, _ := data.Dims()
	return &Dataset{
		Image:            img,
		Distorted:        distorted,
		Train:            train,
		HeldOut:          heldOut,
		Extracted:        extracted,
		ConstantFeatures: constant,
	}, nil
}
