package ambisonic

import (
	"math"

	"github.com/cwbudde/algo-binaural/dsp/core"
)

// Matrix3 is a 3x3 real rotation matrix acting on column vectors.
type Matrix3 [3][3]float64

// Matrix4 is a 4x4 real matrix acting on ACN SH vectors.
type Matrix4 [NumSH][NumSH]float64

// Identity4 returns the 4x4 identity.
func Identity4() Matrix4 {
	var m Matrix4
	for i := range m {
		m[i][i] = 1
	}
	return m
}

// YawPitchRoll returns the frame rotation for the given angles in radians.
// The matrices rotate the coordinate frame, so a positive yaw moves a frontal
// source towards the right, as needed to compensate a listener's head turn.
// The default order applies roll first, then pitch, then yaw (R = Rz·Ry·Rx);
// rollPitchYaw reverses it (R = Rx·Ry·Rz).
func YawPitchRoll(yaw, pitch, roll float64, rollPitchYaw bool) Matrix3 {
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cr, sr := math.Cos(roll), math.Sin(roll)

	rz := Matrix3{{cy, sy, 0}, {-sy, cy, 0}, {0, 0, 1}}
	ry := Matrix3{{cp, 0, -sp}, {0, 1, 0}, {sp, 0, cp}}
	rx := Matrix3{{1, 0, 0}, {0, cr, sr}, {0, -sr, cr}}

	if rollPitchYaw {
		return rx.Mul(ry).Mul(rz)
	}
	return rz.Mul(ry).Mul(rx)
}

// AlignToFront returns the rotation taking the given direction onto +x.
func AlignToFront(azimuth, elevation float64) Matrix3 {
	return YawPitchRoll(core.DegToRad(azimuth), -core.DegToRad(elevation), 0, true)
}

// Mul returns m·b.
func (m Matrix3) Mul(b Matrix3) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*b[0][j] + m[i][1]*b[1][j] + m[i][2]*b[2][j]
		}
	}
	return out
}

// Apply returns m·v.
func (m Matrix3) Apply(v [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return out
}

// SHRotation returns the first-order SH rotation matching r: it maps the SH
// vector of u onto the SH vector of r·u.
func SHRotation(r Matrix3) Matrix4 {
	var m Matrix4
	m[0][0] = 1
	for a := 1; a < NumSH; a++ {
		for b := 1; b < NumSH; b++ {
			m[a][b] = r[cartesianIndex[a]][cartesianIndex[b]]
		}
	}
	return m
}

// Mul returns m·b.
func (m Matrix4) Mul(b Matrix4) Matrix4 {
	var out Matrix4
	for i := 0; i < NumSH; i++ {
		for j := 0; j < NumSH; j++ {
			var sum float64
			for k := 0; k < NumSH; k++ {
				sum += m[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Apply returns m·x for real SH vectors.
func (m *Matrix4) Apply(x [NumSH]float64) [NumSH]float64 {
	var out [NumSH]float64
	for i := 0; i < NumSH; i++ {
		out[i] = m[i][0]*x[0] + m[i][1]*x[1] + m[i][2]*x[2] + m[i][3]*x[3]
	}
	return out
}

// ApplyComplex returns m·x for subband SH vectors.
func (m *Matrix4) ApplyComplex(x [NumSH]complex128) [NumSH]complex128 {
	var out [NumSH]complex128
	for i := 0; i < NumSH; i++ {
		out[i] = complex(m[i][0], 0)*x[0] + complex(m[i][1], 0)*x[1] +
			complex(m[i][2], 0)*x[2] + complex(m[i][3], 0)*x[3]
	}
	return out
}
