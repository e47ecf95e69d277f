package window

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Type identifies a window function.
type Type int

const (
	TypeRectangular Type = iota
	TypeHann
	// TypeSine is the square root of the Hann window. Used for both analysis
	// and synthesis it satisfies w²(n) + w²(n+N/2) = 1 in periodic form.
	TypeSine
	// TypeKaiser is parameterised by WithAlpha (beta).
	TypeKaiser
)

// String returns the window name.
func (t Type) String() string {
	switch t {
	case TypeRectangular:
		return "rectangular"
	case TypeHann:
		return "hann"
	case TypeSine:
		return "sine"
	case TypeKaiser:
		return "kaiser"
	default:
		return "unknown"
	}
}

// Option configures window generation.
type Option func(*config)

type config struct {
	periodic bool
	alpha    float64
}

// WithPeriodic configures periodic form (FFT framing) instead of symmetric form.
func WithPeriodic() Option {
	return func(c *config) {
		c.periodic = true
	}
}

// WithAlpha sets the beta parameter of the Kaiser window.
func WithAlpha(v float64) Option {
	return func(c *config) {
		c.alpha = v
	}
}

// Generate returns window coefficients of the given length.
func Generate(t Type, length int, opts ...Option) []float64 {
	if length <= 0 {
		return nil
	}

	cfg := config{alpha: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	out := make([]float64, length)
	for i := range out {
		out[i] = evalWindow(t, samplePosition(i, length, cfg.periodic), cfg)
	}

	return out
}

// Apply multiplies buf in-place by the selected window.
func Apply(t Type, buf []float64, opts ...Option) {
	if len(buf) == 0 {
		return
	}

	vecmath.MulBlockInPlace(buf, Generate(t, len(buf), opts...))
}

// Hann returns Hann window coefficients.
func Hann(size int, opts ...Option) ([]float64, error) {
	return Generate(TypeHann, size, opts...), validateLength(size)
}

// Kaiser returns Kaiser window coefficients for shape parameter beta.
func Kaiser(size int, beta float64, opts ...Option) ([]float64, error) {
	if beta < 0 {
		return nil, fmt.Errorf("kaiser beta must be >= 0: %f", beta)
	}
	return Generate(TypeKaiser, size, append(opts, WithAlpha(beta))...), validateLength(size)
}

// Sine returns sine (root-Hann) window coefficients.
func Sine(size int, opts ...Option) ([]float64, error) {
	return Generate(TypeSine, size, opts...), validateLength(size)
}

// OverlapAddGain returns the per-sample sum of w(n)·w(n) over all frames
// overlapping at hop spacing. A constant result means analysis and
// synthesis with the same window reconstruct perfectly up to that gain.
func OverlapAddGain(coeffs []float64, hop int) ([]float64, error) {
	if len(coeffs) == 0 {
		return nil, errEmptyCoeffs
	}
	if err := validateHop(hop, len(coeffs)); err != nil {
		return nil, err
	}

	out := make([]float64, hop)
	for i, c := range coeffs {
		out[i%hop] += c * c
	}

	return out, nil
}

// samplePosition maps index i to x in [0, 1].
func samplePosition(i, length int, periodic bool) float64 {
	if length == 1 {
		return 0.5
	}

	den := float64(length - 1)
	if periodic {
		den = float64(length)
	}

	return float64(i) / den
}

func evalWindow(t Type, x float64, cfg config) float64 {
	switch t {
	case TypeHann:
		return 0.5 - 0.5*math.Cos(2*math.Pi*x)
	case TypeSine:
		return math.Sin(math.Pi * x)
	case TypeKaiser:
		return kaiserAt(x, cfg.alpha)
	default:
		return 1
	}
}

func kaiserAt(x, beta float64) float64 {
	if beta <= 0 {
		return 1
	}
	r := 2*x - 1
	return besselI0(beta*math.Sqrt(math.Max(0, 1-r*r))) / besselI0(beta)
}

// besselI0 approximates the modified Bessel function of the first kind,
// order zero (Abramowitz and Stegun 9.8.1/9.8.2).
func besselI0(x float64) float64 {
	ax := math.Abs(x)
	if ax < 3.75 {
		y := x / 3.75
		y *= y
		return 1 + y*(3.5156229+y*(3.0899424+y*(1.2067492+y*(0.2659732+y*(0.0360768+y*0.0045813)))))
	}

	y := 3.75 / ax
	return math.Exp(ax) / math.Sqrt(ax) *
		(0.39894228 + y*(0.01328592+y*(0.00225319+y*(-0.00157565+y*(0.00916281+y*(-0.02057706+y*(0.02635537+y*(-0.01647633+y*0.00392377))))))))
}
