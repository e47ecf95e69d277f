package mixing

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack"
	"gonum.org/v1/gonum/lapack/lapack64"
)

// hermitianEigen decomposes 2x2 Hermitian matrices through their real
// symmetric 4x4 embedding [[Re, -Im], [Im, Re]]. Every eigenvalue of the
// embedding appears twice; one complex eigenvector per pair is kept.
type hermitianEigen struct {
	emb  []float64
	w    []float64
	work []float64
}

const embN = 2 * N

func newHermitianEigen() *hermitianEigen {
	e := &hermitianEigen{
		emb: make([]float64, embN*embN),
		w:   make([]float64, embN),
	}

	query := make([]float64, 1)
	lapack64.Syev(lapack.EVCompute, e.sym(), e.w, query, -1)
	e.work = make([]float64, max(int(query[0]), 3*embN-1))

	return e
}

func (e *hermitianEigen) sym() blas64.Symmetric {
	return blas64.Symmetric{Uplo: blas.Upper, N: embN, Data: e.emb, Stride: embN}
}

// decompose returns eigenvalues in descending order and the matching
// orthonormal eigenvectors as the columns of vecs. Each eigenvector is
// rotated so its largest entry is real and positive.
func (e *hermitianEigen) decompose(a Matrix) (vals [N]float64, vecs Matrix) {
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			re, im := real(a[i][j]), imag(a[i][j])
			e.emb[i*embN+j] = re
			e.emb[(i+N)*embN+j+N] = re
			e.emb[(i+N)*embN+j] = im
			e.emb[i*embN+j+N] = -im
		}
	}

	if !lapack64.Syev(lapack.EVCompute, e.sym(), e.w, e.work, len(e.work)) {
		return [N]float64{real(a[0][0]), real(a[1][1])}, Identity()
	}

	found := 0
	for col := embN - 1; col >= 0 && found < N; col-- {
		var z Vector
		for i := 0; i < N; i++ {
			z[i] = complex(e.emb[i*embN+col], e.emb[(i+N)*embN+col])
		}
		if q, ok := orthonormalise(z, vecs, found); ok {
			setColumn(&vecs, found, q)
			vals[found] = e.w[col]
			found++
		}
	}

	for basis := 0; found < N && basis < N; basis++ {
		var z Vector
		z[basis] = 1
		if q, ok := orthonormalise(z, vecs, found); ok {
			setColumn(&vecs, found, q)
			vals[found] = real(a[basis][basis])
			found++
		}
	}

	for col := 0; col < N; col++ {
		setColumn(&vecs, col, fixPhase(Vector{vecs[0][col], vecs[1][col]}))
	}

	return vals, vecs
}

// fixPhase removes the arbitrary phase of a unit eigenvector.
func fixPhase(v Vector) Vector {
	ref := v[0]
	if cmplx.Abs(v[1]) > cmplx.Abs(v[0]) {
		ref = v[1]
	}
	a := cmplx.Abs(ref)
	if a == 0 {
		return v
	}
	rot := conj(ref) / complex(a, 0)
	return Vector{v[0] * rot, v[1] * rot}
}

// orthonormalise removes the components of z along the first n columns of
// basis and normalises the rest. It fails when little of z remains.
func orthonormalise(z Vector, basis Matrix, n int) (Vector, bool) {
	for k := 0; k < n; k++ {
		var dot complex128
		for i := 0; i < N; i++ {
			dot += conj(basis[i][k]) * z[i]
		}
		for i := 0; i < N; i++ {
			z[i] -= dot * basis[i][k]
		}
	}

	var norm float64
	for i := 0; i < N; i++ {
		norm += real(z[i])*real(z[i]) + imag(z[i])*imag(z[i])
	}
	if norm < 0.25 {
		return z, false
	}

	s := complex(1/math.Sqrt(norm), 0)
	for i := range z {
		z[i] *= s
	}
	return z, true
}

func setColumn(m *Matrix, col int, v Vector) {
	for i := 0; i < N; i++ {
		m[i][col] = v[i]
	}
}
