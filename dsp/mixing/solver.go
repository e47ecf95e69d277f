package mixing

import (
	"fmt"
	"math"
)

// DefaultRegularization bounds the inverse of the input decomposition at
// this fraction of its largest singular value.
const DefaultRegularization = 0.2

// eps guards the divisions of the normalisation and compensation gains.
const eps = 1e-20

// rankFloor is the eigenvalue ratio below which a direction is treated as
// empty. Rounding noise in a rank-1 covariance sits far below it.
const rankFloor = 1e-12

// Option configures a Solver.
type Option func(*Solver) error

// WithRegularization sets the inverse regularisation in [0, 1].
func WithRegularization(reg float64) Option {
	return func(s *Solver) error {
		if reg < 0 || reg > 1 || math.IsNaN(reg) {
			return fmt.Errorf("mixing: regularization must be in [0, 1]: %f", reg)
		}
		s.reg = reg
		return nil
	}
}

// Solver computes optimal mixing matrices. It keeps LAPACK scratch space
// and is not safe for concurrent use.
type Solver struct {
	reg   float64
	eigen *hermitianEigen
}

// NewSolver returns a solver with the default regularisation unless
// overridden.
func NewSolver(opts ...Option) (*Solver, error) {
	s := &Solver{reg: DefaultRegularization}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.eigen = newHermitianEigen()
	return s, nil
}

// Regularization returns the configured regularisation.
func (s *Solver) Regularization() float64 { return s.reg }

// Solve returns the mixing matrix M mapping a signal with covariance cx to
// one with covariance cy while staying close to the prototype q, and the
// residual covariance cy − M·cx·Mᴴ left unmatched. With energyComp the rows
// of M are rescaled so the output channel energies match cy exactly.
func (s *Solver) Solve(cx, cy, q Matrix, energyComp bool) (m, residual Matrix) {
	kx, ux, sx := s.decompose(cx)
	ky, _, _ := s.decompose(cy)

	// Regularised inverse of Kx: diag(1/max(sx, limit))·Uxᴴ.
	limit := math.Max(sx[0], sx[1])*s.reg + 1e-9
	var kxInv Matrix
	for i := 0; i < N; i++ {
		inv := complex(1/math.Max(sx[i], limit), 0)
		for j := 0; j < N; j++ {
			kxInv[i][j] = inv * conj(ux[j][i])
		}
	}

	// Normalise the prototype so its output energies match the target.
	cyProto := q.Mul(cx).Mul(q.H())
	var g Matrix
	for i := 0; i < N; i++ {
		g[i][i] = complex(math.Sqrt(math.Max(real(cy[i][i]), 0)/(real(cyProto[i][i])+eps)), 0)
	}

	w := kx.H().Mul(q.H()).Mul(g).Mul(ky)
	p := s.unitaryFactor(w)

	m = ky.Mul(p).Mul(kxInv)

	if energyComp {
		cyHat := m.Mul(cx).Mul(m.H())
		for i := 0; i < N; i++ {
			gain := complex(math.Sqrt(math.Max(real(cy[i][i]), 0)/(real(cyHat[i][i])+eps)), 0)
			m[i][0] *= gain
			m[i][1] *= gain
		}
	}

	residual = cy.Sub(m.Mul(cx).Mul(m.H()))

	return m, residual
}

// SolveReal solves a real-valued problem without energy compensation and
// returns the real part of the mixing matrix.
func (s *Solver) SolveReal(cx, cy, q RealMatrix) RealMatrix {
	m, _ := s.Solve(cx.Complex(), cy.Complex(), q.Complex(), false)
	return m.Real()
}

// decompose returns K = U·diag(sv) with K·Kᴴ = c (negative eigenvalues
// clamped), the unit eigenvectors U and the singular values sv. An empty
// second direction gets the complement of the first as its eigenvector.
func (s *Solver) decompose(c Matrix) (k, u Matrix, sv [N]float64) {
	vals, vecs := s.eigen.decompose(c)
	floorRank(&vals)
	if vals[0] > 0 && vals[1] == 0 {
		setColumn(&vecs, 1, unitComplement(Vector{vecs[0][0], vecs[1][0]}))
	}

	u = vecs
	for j := 0; j < N; j++ {
		sv[j] = math.Sqrt(vals[j])
		for i := 0; i < N; i++ {
			vecs[i][j] *= complex(sv[j], 0)
		}
	}
	return vecs, u, sv
}

// floorRank clamps negative eigenvalues and zeroes those that are
// negligible next to the largest.
func floorRank(vals *[N]float64) {
	top := math.Max(vals[0], 0)
	for j := range vals {
		if vals[j] <= top*rankFloor {
			vals[j] = 0
		}
	}
}

// unitaryFactor returns P = V·Uᴴ from the SVD W = U·S·Vᴴ. For rank-1 W the
// second singular pair is chosen as the complement of the first, which
// keeps P continuous in W.
func (s *Solver) unitaryFactor(w Matrix) Matrix {
	vals, v := s.eigen.decompose(w.H().Mul(w))
	floorRank(&vals)

	sv0 := math.Sqrt(vals[0])
	if sv0 <= 1e-15 {
		return Identity()
	}

	v0 := Vector{v[0][0], v[1][0]}
	u0 := normalise(scale(w.Apply(v0), 1/sv0))

	var v1, u1 Vector
	if vals[1] > 0 {
		v1 = Vector{v[0][1], v[1][1]}
		u1 = scale(w.Apply(v1), 1/math.Sqrt(vals[1]))
		dot := conj(u0[0])*u1[0] + conj(u0[1])*u1[1]
		u1 = normalise(Vector{u1[0] - dot*u0[0], u1[1] - dot*u0[1]})
	} else {
		v1 = unitComplement(v0)
		u1 = unitComplement(u0)
	}

	var vm, um Matrix
	setColumn(&vm, 0, v0)
	setColumn(&vm, 1, v1)
	setColumn(&um, 0, u0)
	setColumn(&um, 1, u1)

	return vm.Mul(um.H())
}

func unitComplement(v Vector) Vector {
	return normalise(Vector{-conj(v[1]), conj(v[0])})
}

func scale(v Vector, s float64) Vector {
	c := complex(s, 0)
	return Vector{v[0] * c, v[1] * c}
}

func normalise(v Vector) Vector {
	n := math.Sqrt(real(v[0])*real(v[0]) + imag(v[0])*imag(v[0]) + real(v[1])*real(v[1]) + imag(v[1])*imag(v[1]))
	if n == 0 {
		return Vector{1, 0}
	}
	return scale(v, 1/n)
}
