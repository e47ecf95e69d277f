package ambisonic

import (
	"math"

	"github.com/cwbudde/algo-binaural/dsp/core"
)

// NumSH is the number of first-order SH channels.
const NumSH = 4

var sqrt3 = math.Sqrt(3)

// UnitVector returns the Cartesian unit vector of a direction.
func UnitVector(azimuth, elevation float64) [3]float64 {
	az := core.DegToRad(azimuth)
	el := core.DegToRad(elevation)
	return [3]float64{
		math.Cos(el) * math.Cos(az),
		math.Cos(el) * math.Sin(az),
		math.Sin(el),
	}
}

// Direction returns azimuth and elevation of a (not necessarily unit) vector.
func Direction(v [3]float64) (azimuth, elevation float64) {
	azimuth = core.RadToDeg(math.Atan2(v[1], v[0]))
	elevation = core.RadToDeg(math.Atan2(v[2], math.Hypot(v[0], v[1])))
	return azimuth, elevation
}

// SH returns the N3D real spherical harmonics of a direction in ACN order.
func SH(azimuth, elevation float64) [NumSH]float64 {
	return shFromVector(UnitVector(azimuth, elevation))
}

func shFromVector(u [3]float64) [NumSH]float64 {
	return [NumSH]float64{1, sqrt3 * u[1], sqrt3 * u[2], sqrt3 * u[0]}
}

// cartesianIndex maps ACN dipole channels 1..3 to the y, z, x axes.
var cartesianIndex = [NumSH]int{-1, 1, 2, 0}
