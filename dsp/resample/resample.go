// Package resample converts finite signals such as impulse responses between
// sample rates with a Kaiser-windowed polyphase FIR.
package resample

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-binaural/dsp/window"
)

var (
	// ErrInvalidRatio indicates an invalid up/down ratio.
	ErrInvalidRatio = errors.New("resample: invalid ratio")
	// ErrInvalidRate indicates an invalid input/output sample rate.
	ErrInvalidRate = errors.New("resample: invalid sample rate")
)

// Defaults of the anti-aliasing filter.
const (
	DefaultTapsPerPhase = 32
	DefaultCutoffScale  = 0.92
	DefaultKaiserBeta   = 7.5
	defaultMaxDen       = 4096
)

type config struct {
	tapsPerPhase int
	cutoffScale  float64
	kaiserBeta   float64
	maxDen       int
}

// Option configures the resampler.
type Option func(*config)

// WithTapsPerPhase overrides taps per polyphase branch.
func WithTapsPerPhase(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.tapsPerPhase = n
		}
	}
}

// WithCutoffScale scales the anti-aliasing cutoff; 1 is the Nyquist
// frequency of the lower rate.
func WithCutoffScale(v float64) Option {
	return func(cfg *config) {
		if v > 0 && v <= 1 {
			cfg.cutoffScale = v
		}
	}
}

// WithKaiserBeta overrides the Kaiser window beta.
func WithKaiserBeta(beta float64) Option {
	return func(cfg *config) {
		if beta >= 0 {
			cfg.kaiserBeta = beta
		}
	}
}

// WithMaxDenominator caps the denominator of the rate ratio.
func WithMaxDenominator(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxDen = n
		}
	}
}

// Resampler converts whole signals by the ratio up/down. The filter delay
// is compensated, so output sample m lines up with input time m·down/up.
type Resampler struct {
	up, down int
	// phases[p][i] is prototype tap p+i·up.
	phases [][]float64
	// delay of the prototype in upsampled samples.
	delay int
}

// NewRational creates a resampler for ratio up/down.
func NewRational(up, down int, opts ...Option) (*Resampler, error) {
	if up <= 0 || down <= 0 {
		return nil, fmt.Errorf("%w: %d/%d", ErrInvalidRatio, up, down)
	}

	cfg := config{
		tapsPerPhase: DefaultTapsPerPhase,
		cutoffScale:  DefaultCutoffScale,
		kaiserBeta:   DefaultKaiserBeta,
		maxDen:       defaultMaxDen,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	g := gcd(up, down)
	up /= g
	down /= g

	taps, err := design(up, down, cfg)
	if err != nil {
		return nil, err
	}

	r := &Resampler{
		up:     up,
		down:   down,
		phases: make([][]float64, up),
		delay:  (len(taps) - 1) / 2,
	}
	for p := range r.phases {
		for i := p; i < len(taps); i += up {
			r.phases[p] = append(r.phases[p], taps[i])
		}
	}

	return r, nil
}

// NewForRates creates a resampler from inRate to outRate, approximating the
// ratio by a fraction.
func NewForRates(inRate, outRate float64, opts ...Option) (*Resampler, error) {
	if !validRate(inRate) || !validRate(outRate) {
		return nil, fmt.Errorf("%w: %f -> %f", ErrInvalidRate, inRate, outRate)
	}

	cfg := config{maxDen: defaultMaxDen}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	up, down := approximateRatio(outRate/inRate, cfg.maxDen)
	return NewRational(up, down, opts...)
}

func validRate(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Ratio returns the reduced up/down factors.
func (r *Resampler) Ratio() (up, down int) { return r.up, r.down }

// OutputLen returns the number of samples Apply produces for n inputs.
func (r *Resampler) OutputLen(n int) int {
	if n <= 0 {
		return 0
	}
	return (n*r.up + r.down - 1) / r.down
}

// Apply returns x at the new rate. Sample values keep their amplitude.
func (r *Resampler) Apply(x []float64) []float64 {
	out := make([]float64, r.OutputLen(len(x)))
	for m := range out {
		j := m*r.down + r.delay
		p, n := j%r.up, j/r.up

		var y float64
		for i, c := range r.phases[p] {
			k := n - i
			if k < 0 {
				break
			}
			if k < len(x) {
				y += c * x[k]
			}
		}
		out[m] = y
	}
	return out
}

// Impulse resamples an impulse response so its frequency response is kept
// at the new rate, which scales sample values by down/up.
func (r *Resampler) Impulse(ir []float64) []float64 {
	out := r.Apply(ir)
	scale := float64(r.down) / float64(r.up)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// design returns the windowed-sinc prototype, scaled to a passband gain of
// up so that every polyphase branch has unit DC gain.
func design(up, down int, cfg config) ([]float64, error) {
	if cfg.tapsPerPhase <= 0 {
		return nil, errors.New("resample: taps per phase must be > 0")
	}

	n := cfg.tapsPerPhase * up
	fc := 0.5 / float64(max(up, down)) * cfg.cutoffScale
	if fc <= 0 || fc >= 0.5 {
		return nil, fmt.Errorf("resample: invalid cutoff %.6f", fc)
	}

	taps, err := window.Kaiser(n, cfg.kaiserBeta)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	centre := 0.5 * float64(n-1)
	var sum float64
	for i := range taps {
		taps[i] *= 2 * fc * sinc(2*fc*(float64(i)-centre))
		sum += taps[i]
	}
	if sum == 0 {
		return nil, errors.New("resample: designed zero-sum filter")
	}

	scale := float64(up) / sum
	for i := range taps {
		taps[i] *= scale
	}

	return taps, nil
}

// approximateRatio returns the continued-fraction convergent of v with the
// largest denominator not above maxDen.
func approximateRatio(v float64, maxDen int) (num, den int) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1, 1
	}

	p0, q0 := 1.0, 0.0
	p1, q1 := math.Floor(v), 1.0
	for x := v; x != math.Floor(x); {
		x = 1 / (x - math.Floor(x))
		a := math.Floor(x)
		p2, q2 := a*p1+p0, a*q1+q0
		if q2 > float64(maxDen) {
			break
		}
		p0, q0, p1, q1 = p1, q1, p2, q2
	}

	num, den = int(math.Round(p1)), int(math.Round(q1))
	if num <= 0 || den <= 0 {
		return 1, 1
	}
	g := gcd(num, den)
	return num / g, den / g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func sinc(x float64) float64 {
	if math.Abs(x) < 1e-12 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}
