package mixing

// N is the channel count handled by the solver.
const N = 2

// Matrix is a 2x2 complex matrix.
type Matrix [N][N]complex128

// RealMatrix is a 2x2 real matrix.
type RealMatrix [N][N]float64

// Vector is a complex 2-vector.
type Vector [N]complex128

// Identity returns the 2x2 identity.
func Identity() Matrix {
	return Matrix{{1, 0}, {0, 1}}
}

// Mul returns a·b.
func (a Matrix) Mul(b Matrix) Matrix {
	return Matrix{
		{a[0][0]*b[0][0] + a[0][1]*b[1][0], a[0][0]*b[0][1] + a[0][1]*b[1][1]},
		{a[1][0]*b[0][0] + a[1][1]*b[1][0], a[1][0]*b[0][1] + a[1][1]*b[1][1]},
	}
}

// H returns the conjugate transpose.
func (a Matrix) H() Matrix {
	return Matrix{
		{conj(a[0][0]), conj(a[1][0])},
		{conj(a[0][1]), conj(a[1][1])},
	}
}

// Add returns a+b.
func (a Matrix) Add(b Matrix) Matrix {
	return Matrix{
		{a[0][0] + b[0][0], a[0][1] + b[0][1]},
		{a[1][0] + b[1][0], a[1][1] + b[1][1]},
	}
}

// Sub returns a-b.
func (a Matrix) Sub(b Matrix) Matrix {
	return a.Add(b.Scale(-1))
}

// Scale returns s·a.
func (a Matrix) Scale(s float64) Matrix {
	c := complex(s, 0)
	return Matrix{
		{c * a[0][0], c * a[0][1]},
		{c * a[1][0], c * a[1][1]},
	}
}

// Lerp returns (1-t)·a + t·b.
func (a Matrix) Lerp(b Matrix, t float64) Matrix {
	return a.Scale(1 - t).Add(b.Scale(t))
}

// Apply returns a·v.
func (a Matrix) Apply(v Vector) Vector {
	return Vector{
		a[0][0]*v[0] + a[0][1]*v[1],
		a[1][0]*v[0] + a[1][1]*v[1],
	}
}

// Trace returns the real part of the trace.
func (a Matrix) Trace() float64 {
	return real(a[0][0]) + real(a[1][1])
}

// Real returns the element-wise real part.
func (a Matrix) Real() RealMatrix {
	return RealMatrix{
		{real(a[0][0]), real(a[0][1])},
		{real(a[1][0]), real(a[1][1])},
	}
}

// DiagReal returns the real diagonal of a as a complex matrix.
func (a Matrix) DiagReal() Matrix {
	return Matrix{{complex(real(a[0][0]), 0), 0}, {0, complex(real(a[1][1]), 0)}}
}

// Complex converts a real matrix.
func (a RealMatrix) Complex() Matrix {
	return Matrix{
		{complex(a[0][0], 0), complex(a[0][1], 0)},
		{complex(a[1][0], 0), complex(a[1][1], 0)},
	}
}

// Lerp returns (1-t)·a + t·b.
func (a RealMatrix) Lerp(b RealMatrix, t float64) RealMatrix {
	var out RealMatrix
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			out[i][j] = (1-t)*a[i][j] + t*b[i][j]
		}
	}
	return out
}

// Apply returns a·v.
func (a RealMatrix) Apply(v Vector) Vector {
	return Vector{
		complex(a[0][0], 0)*v[0] + complex(a[0][1], 0)*v[1],
		complex(a[1][0], 0)*v[0] + complex(a[1][1], 0)*v[1],
	}
}

// Outer returns Σ v·vᴴ over the given vectors.
func Outer(vs []Vector) Matrix {
	var out Matrix
	for _, v := range vs {
		for i := 0; i < N; i++ {
			for j := 0; j < N; j++ {
				out[i][j] += v[i] * conj(v[j])
			}
		}
	}
	return out
}

func conj(v complex128) complex128 {
	return complex(real(v), -imag(v))
}
