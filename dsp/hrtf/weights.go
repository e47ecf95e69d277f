package hrtf

import "math"

// WeightsMaxDirections is the largest set for which integration weights are
// computed; denser sets are treated as uniform.
const WeightsMaxDirections = 1800

const weightSamples = 20000

// IntegrationWeights returns a quadrature weight per direction, summing to
// 4π: the solid angle of the region of the sphere closest to it, estimated
// from a dense Fibonacci sampling.
func IntegrationWeights(azimuth, elevation []float64) []float64 {
	n := len(azimuth)
	if n == 0 {
		return nil
	}

	tree := newDirectionTree(azimuth, elevation)
	counts := make([]int, n)

	golden := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < weightSamples; i++ {
		z := 1 - (2*float64(i)+1)/weightSamples
		r := math.Sqrt(1 - z*z)
		phi := golden * float64(i)
		counts[tree.nearestIndex([3]float64{r * math.Cos(phi), r * math.Sin(phi), z})]++
	}

	out := make([]float64, n)
	for i, c := range counts {
		out[i] = 4 * math.Pi * float64(c) / weightSamples
	}
	return out
}

// UniformWeights returns 4π/n for every direction.
func UniformWeights(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 4 * math.Pi / float64(n)
	}
	return out
}
