package mixing

import (
	"math"
	"math/cmplx"
	"testing"
)

func requireMatrix(t *testing.T, got, want Matrix, tol float64) {
	t.Helper()
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			if cmplx.Abs(got[i][j]-want[i][j]) > tol {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	}
}

func gram(b Matrix, ridge float64) Matrix {
	return b.Mul(b.H()).Add(Identity().Scale(ridge))
}

func TestHermitianEigenReconstructs(t *testing.T) {
	e := newHermitianEigen()
	tests := []struct {
		name string
		a    Matrix
	}{
		{name: "general", a: gram(Matrix{{1 + 0.5i, -0.3 + 0.2i}, {0.7 - 1i, 0.4}}, 0.1)},
		{name: "diagonal", a: Matrix{{3, 0}, {0, 1}}},
		{name: "scaled-identity", a: Identity().Scale(2.5)},
		{name: "rank-one", a: Outer([]Vector{{1 + 1i, 2 - 0.5i}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals, vecs := e.decompose(tt.a)
			if vals[0] < vals[1]-1e-12 {
				t.Fatalf("eigenvalues not descending: %v", vals)
			}

			var d Matrix
			d[0][0], d[1][1] = complex(vals[0], 0), complex(vals[1], 0)
			requireMatrix(t, vecs.Mul(d).Mul(vecs.H()), tt.a, 1e-10)
			requireMatrix(t, vecs.H().Mul(vecs), Identity(), 1e-10)
		})
	}
}

func TestSolveMatchesTargetCovariance(t *testing.T) {
	s, err := NewSolver()
	if err != nil {
		t.Fatalf("NewSolver() error = %v", err)
	}

	cx := Matrix{{2, 0.3 + 0.4i}, {0.3 - 0.4i, 1.5}}
	cy := Matrix{{0.8, -0.2 + 0.1i}, {-0.2 - 0.1i, 1.1}}

	m, residual := s.Solve(cx, cy, Identity(), false)
	requireMatrix(t, m.Mul(cx).Mul(m.H()), cy, 1e-9)
	requireMatrix(t, residual, Matrix{}, 1e-9)
}

func TestSolveIdentityWhenCovariancesAgree(t *testing.T) {
	s, err := NewSolver()
	if err != nil {
		t.Fatalf("NewSolver() error = %v", err)
	}
	c := Matrix{{1.2, 0.1i}, {-0.1i, 0.9}}
	m, _ := s.Solve(c, c, Identity(), false)
	requireMatrix(t, m, Identity(), 1e-9)
}

func TestSolveRankDeficientInput(t *testing.T) {
	s, err := NewSolver()
	if err != nil {
		t.Fatalf("NewSolver() error = %v", err)
	}

	// Fully coherent input, incoherent target: the solver cannot create
	// decorrelation and reports it as residual.
	cx := Outer([]Vector{{1, 1}})
	cy := Identity()

	m, residual := s.Solve(cx, cy, Identity(), false)
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			if cmplx.IsNaN(m[i][j]) || cmplx.IsInf(m[i][j]) {
				t.Fatalf("non-finite mixing matrix %v", m)
			}
		}
	}
	if residual.Trace() <= 0.1 {
		t.Fatalf("residual trace = %v, want > 0.1", residual.Trace())
	}
	requireMatrix(t, residual.Add(m.Mul(cx).Mul(m.H())), cy, 1e-12)

	mc, _ := s.Solve(cx, cy, Identity(), true)
	out := mc.Mul(cx).Mul(mc.H())
	for i := 0; i < N; i++ {
		if math.Abs(real(out[i][i])-real(cy[i][i])) > 1e-9 {
			t.Fatalf("energy-compensated output energy %d = %v, want %v", i, real(out[i][i]), real(cy[i][i]))
		}
	}
}

func TestSolveRankOneInputIsStable(t *testing.T) {
	s, err := NewSolver()
	if err != nil {
		t.Fatalf("NewSolver() error = %v", err)
	}

	cx := Outer([]Vector{{1 + 1i, 2 - 0.5i}})
	cy := Matrix{{2, 0.3 + 0.1i}, {0.3 - 0.1i, 1}}

	// Rounding-level changes must not move the null space of cx.
	nudged := cx
	nudged[0][1] += 1e-15
	nudged[1][0] += 1e-15

	for _, energyComp := range []bool{false, true} {
		m1, _ := s.Solve(cx, cy, Identity(), energyComp)
		m2, _ := s.Solve(nudged, cy, Identity(), energyComp)
		requireMatrix(t, m2, m1, 1e-9)
	}

	// The same holds when the prototype mixes both channels.
	q := Matrix{{0.8, 0.2i}, {-0.1, 0.9}}
	m1, _ := s.Solve(cx, cy, q, false)
	m2, _ := s.Solve(nudged, cy, q, false)
	requireMatrix(t, m2, m1, 1e-9)
}

func TestUnitaryFactorRankOne(t *testing.T) {
	s, err := NewSolver()
	if err != nil {
		t.Fatalf("NewSolver() error = %v", err)
	}

	w := Outer([]Vector{{0.5 - 1i, 1.5}})
	p := s.unitaryFactor(w)
	requireMatrix(t, p.Mul(p.H()), Identity(), 1e-12)

	nudged := w
	nudged[1][1] += 1e-15
	requireMatrix(t, s.unitaryFactor(nudged), p, 1e-9)
}

func TestSolveSilentInputStaysFinite(t *testing.T) {
	s, err := NewSolver()
	if err != nil {
		t.Fatalf("NewSolver() error = %v", err)
	}
	m, residual := s.Solve(Matrix{}, Matrix{}, Identity(), true)
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			if cmplx.IsNaN(m[i][j]) || cmplx.IsInf(m[i][j]) || cmplx.IsNaN(residual[i][j]) {
				t.Fatalf("non-finite result m=%v residual=%v", m, residual)
			}
		}
	}
}

func TestSolveReal(t *testing.T) {
	s, err := NewSolver()
	if err != nil {
		t.Fatalf("NewSolver() error = %v", err)
	}
	cx := RealMatrix{{1, 0}, {0, 2}}
	cy := RealMatrix{{0.5, 0.1}, {0.1, 0.7}}
	m := s.SolveReal(cx, cy, RealMatrix{{1, 0}, {0, 1}})

	got := m.Complex().Mul(cx.Complex()).Mul(m.Complex().H())
	requireMatrix(t, got, cy.Complex(), 1e-9)
}

func TestRegularizationOption(t *testing.T) {
	if _, err := NewSolver(WithRegularization(-0.1)); err == nil {
		t.Fatal("expected error for negative regularization")
	}
	s, err := NewSolver(WithRegularization(0.01), nil)
	if err != nil {
		t.Fatalf("NewSolver() error = %v", err)
	}
	if s.Regularization() != 0.01 {
		t.Fatalf("Regularization() = %v, want 0.01", s.Regularization())
	}
}

func TestMatrixHelpers(t *testing.T) {
	a := Matrix{{1, 2i}, {3, 4}}
	b := Identity().Scale(2)
	requireMatrix(t, a.Lerp(b, 0), a, 0)
	requireMatrix(t, a.Lerp(b, 1), b, 0)
	requireMatrix(t, a.Sub(a), Matrix{}, 0)

	v := a.Apply(Vector{1, 1i})
	if v != (Vector{1 - 2, 3 + 4i}) {
		t.Fatalf("Apply() = %v", v)
	}

	r := RealMatrix{{1, 2}, {3, 4}}
	if r.Apply(Vector{1, 1}) != (Vector{3, 7}) {
		t.Fatalf("RealMatrix.Apply() = %v", r.Apply(Vector{1, 1}))
	}
	if r.Lerp(RealMatrix{}, 0.5) != (RealMatrix{{0.5, 1}, {1.5, 2}}) {
		t.Fatalf("RealMatrix.Lerp() = %v", r.Lerp(RealMatrix{}, 0.5))
	}
}

func BenchmarkSolve(b *testing.B) {
	s, err := NewSolver()
	if err != nil {
		b.Fatal(err)
	}
	cx := Matrix{{2, 0.3 + 0.4i}, {0.3 - 0.4i, 1.5}}
	cy := Matrix{{0.8, -0.2 + 0.1i}, {-0.2 - 0.1i, 1.1}}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s.Solve(cx, cy, Identity(), false)
	}
}
