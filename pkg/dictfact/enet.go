package dictfact

import (
	"math"
)

// enetNorm returns l1Ratio*||v||_1 + (1-l1Ratio)*||v||_2^2.
// The norm is additive over coordinates, which the partial projection
// relies on.
func enetNorm(v []float64, l1Ratio float64) float64 {
	var l1, l2 float64
	for _, x := range v {
		l1 += math.Abs(x)
		l2 += x * x
	}
	return l1Ratio*l1 + (1-l1Ratio)*l2
}

// enetScale rescales v in place so that enetNorm(v) == radius.
// A zero vector is left untouched.
func enetScale(v []float64, l1Ratio, radius float64) {
	var l1, l2 float64
	for _, x := range v {
		l1 += math.Abs(x)
		l2 += x * x
	}
	if l2 == 0 {
		return
	}

	a := l1Ratio * l1
	b := (1 - l1Ratio) * l2
	var scale float64
	if b == 0 {
		scale = radius / a
	} else {
		// b*s^2 + a*s - radius = 0
		scale = (-a + math.Sqrt(a*a+4*b*radius)) / (2 * b)
	}
	for i := range v {
		v[i] *= scale
	}
}

// enetProjection writes into dst the projection of v onto the ball
// {x : enetNorm(x) <= radius}. The projection is a soft threshold followed
// by a shrink, x = S(v, lambda*r) / (1 + 2*lambda*(1-r)), with lambda found
// by bisection.
func enetProjection(dst, v []float64, radius, l1Ratio float64) {
	if radius <= 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	if enetNorm(v, l1Ratio) <= radius {
		copy(dst, v)
		return
	}

	shrink := func(lambda float64) float64 {
		denom := 1 + 2*lambda*(1-l1Ratio)
		thresh := lambda * l1Ratio
		for i, x := range v {
			dst[i] = math.Copysign(math.Max(math.Abs(x)-thresh, 0), x) / denom
		}
		return enetNorm(dst, l1Ratio)
	}

	lo, hi := 0.0, 1.0
	for shrink(hi) > radius {
		lo = hi
		hi *= 2
	}
	for iter := 0; iter < 60; iter++ {
		mid := (lo + hi) / 2
		if shrink(mid) > radius {
			lo = mid
		} else {
			hi = mid
		}
	}

	// Leave dst on the feasible side
	shrink(hi)
}
