package dictfact

import (
	"math"
	"math/rand/v2"
	"sort"
)

// featureSampler yields the feature subsets read by each mini-batch
type featureSampler struct {
	nFeatures   int
	replacement bool
	rng         *rand.Rand

	// cycling state, used without replacement
	perm []int
	pos  int
}

func newFeatureSampler(nFeatures int, replacement bool, rng *rand.Rand) *featureSampler {
	return &featureSampler{
		nFeatures:   nFeatures,
		replacement: replacement,
		rng:         rng,
	}
}

// subsetSize is the number of features read for a given reduction
func (s *featureSampler) subsetSize(reduction float64) int {
	size := int(math.Round(float64(s.nFeatures) / reduction))
	if size < 1 {
		size = 1
	}
	if size > s.nFeatures {
		size = s.nFeatures
	}
	return size
}

// yield returns a sorted subset of distinct feature indices
func (s *featureSampler) yield(reduction float64) []int {
	size := s.subsetSize(reduction)

	var subset []int
	switch {
	case size == s.nFeatures:
		subset = make([]int, size)
		for i := range subset {
			subset[i] = i
		}
		return subset
	case s.replacement:
		subset = s.rng.Perm(s.nFeatures)[:size]
	default:
		if s.perm == nil || s.pos+size > s.nFeatures {
			s.perm = s.rng.Perm(s.nFeatures)
			s.pos = 0
		}
		subset = append([]int(nil), s.perm[s.pos:s.pos+size]...)
		s.pos += size
	}

	sort.Ints(subset)
	return subset
}
