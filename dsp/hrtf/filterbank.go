package hrtf

import (
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-binaural/dsp/core"
)

// Preprocessing selects the corrections applied to the filterbank.
type Preprocessing int

const (
	PreprocOff Preprocessing = iota
	// PreprocEQ applies diffuse-field equalisation.
	PreprocEQ
	// PreprocPhase replaces the phase with one derived from the ITD.
	PreprocPhase
	// PreprocAll applies both.
	PreprocAll
)

func (p Preprocessing) String() string {
	switch p {
	case PreprocOff:
		return "off"
	case PreprocEQ:
		return "eq"
	case PreprocPhase:
		return "phase"
	case PreprocAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParsePreprocessing parses the String form of a Preprocessing value.
func ParsePreprocessing(s string) (Preprocessing, bool) {
	for p := PreprocOff; p <= PreprocAll; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return PreprocAll, false
}

func (p Preprocessing) eq() bool    { return p == PreprocEQ || p == PreprocAll }
func (p Preprocessing) phase() bool { return p == PreprocPhase || p == PreprocAll }

// diffuseEQFloor keeps the equaliser finite on bands without energy.
const diffuseEQFloor = 1e-12

// Filterbank holds per-band complex HRTF coefficients for every direction
// and ear, their magnitudes and the per-direction ITDs.
type Filterbank struct {
	bands int
	dirs  int

	coeffs []complex128
	mags   []float64
	itds   []float64
}

// NewFilterbank converts the impulse responses of set into coefficients for
// an STFT with the given hop size (bands = hop+1). The band centre
// frequencies are k·fs/(2·hop) of the HRIR sample rate.
func NewFilterbank(set *Set, hop int, itds []float64) (*Filterbank, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if hop <= 0 || hop&(hop-1) != 0 {
		return nil, fmt.Errorf("hrtf: hop size must be a power of two > 0: %d", hop)
	}
	if len(itds) != set.NumDirections() {
		return nil, fmt.Errorf("%w: %d ITDs for %d directions", ErrInvalidSet, len(itds), set.NumDirections())
	}

	size := 2 * hop
	n := nextPow2(max(size, set.Length()))
	stride := n / size

	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("hrtf: failed to create FFT plan: %w", err)
	}

	fb := &Filterbank{
		bands:  hop + 1,
		dirs:   set.NumDirections(),
		itds:   append([]float64(nil), itds...),
		coeffs: make([]complex128, (hop+1)*NumEars*set.NumDirections()),
		mags:   make([]float64, (hop+1)*NumEars*set.NumDirections()),
	}

	spec := make([]complex128, n)
	for d := 0; d < fb.dirs; d++ {
		for ear := 0; ear < NumEars; ear++ {
			loadPadded(spec, set.IRs[d][ear])
			if err := plan.Forward(spec, spec); err != nil {
				return nil, fmt.Errorf("hrtf: forward FFT failed: %w", err)
			}
			for band := 0; band < fb.bands; band++ {
				fb.coeffs[fb.index(band, ear, d)] = spec[band*stride]
			}
		}
	}

	fb.updateMagnitudes()

	return fb, nil
}

// Bands returns the number of frequency bands.
func (f *Filterbank) Bands() int { return f.bands }

// Directions returns the number of directions.
func (f *Filterbank) Directions() int { return f.dirs }

// At returns the coefficient of one band, ear and direction.
func (f *Filterbank) At(band, ear, dir int) complex128 {
	return f.coeffs[f.index(band, ear, dir)]
}

// Mag returns the magnitude of one band, ear and direction.
func (f *Filterbank) Mag(band, ear, dir int) float64 {
	return f.mags[f.index(band, ear, dir)]
}

// ITD returns the interaural time difference of a direction in seconds.
func (f *Filterbank) ITD(dir int) float64 { return f.itds[dir] }

// Row returns the coefficients of one band and ear over all directions.
// The slice aliases the filterbank.
func (f *Filterbank) Row(band, ear int) []complex128 {
	i := f.index(band, ear, 0)
	return f.coeffs[i : i+f.dirs]
}

func (f *Filterbank) index(band, ear, dir int) int {
	return (band*NumEars+ear)*f.dirs + dir
}

// Preprocess applies the selected corrections. freqs holds the centre
// frequency of every band in Hz.
func (f *Filterbank) Preprocess(freqs []float64, mode Preprocessing) error {
	if len(freqs) != f.bands {
		return fmt.Errorf("hrtf: %d frequencies for %d bands", len(freqs), f.bands)
	}

	if mode.eq() {
		for band := 0; band < f.bands; band++ {
			var power float64
			for ear := 0; ear < NumEars; ear++ {
				for _, h := range f.Row(band, ear) {
					power += real(h)*real(h) + imag(h)*imag(h)
				}
			}
			power /= float64(NumEars * f.dirs)
			g := complex(1/math.Sqrt(power+diffuseEQFloor), 0)
			for ear := 0; ear < NumEars; ear++ {
				row := f.Row(band, ear)
				for d := range row {
					row[d] *= g
				}
			}
		}
	}

	if mode.phase() {
		for band := 0; band < f.bands; band++ {
			left, right := f.Row(band, Left), f.Row(band, Right)
			for d := 0; d < f.dirs; d++ {
				ipd := InterauralPhase(freqs[band], f.itds[d])
				s, c := math.Sincos(ipd)
				left[d] = complex(cmplxAbs(left[d])*c, cmplxAbs(left[d])*s)
				right[d] = complex(cmplxAbs(right[d])*c, -cmplxAbs(right[d])*s)
			}
		}
	}

	f.updateMagnitudes()

	return nil
}

// InterauralPhase returns half the wrapped interaural phase difference for
// a frequency and ITD. The left ear takes +IPD and the right ear −IPD.
func InterauralPhase(freq, itd float64) float64 {
	return (core.Mod(2*math.Pi*freq*itd+math.Pi, 2*math.Pi) - math.Pi) / 2
}

// DiffuseCoherence returns the interaural coherence of an isotropic diffuse
// field per band, using quadrature weights per direction (nil for uniform).
func (f *Filterbank) DiffuseCoherence(weights []float64) []float64 {
	out := make([]float64, f.bands)
	for band := range out {
		left, right := f.Row(band, Left), f.Row(band, Right)
		var cross, el, er float64
		for d := 0; d < f.dirs; d++ {
			w := 1.0
			if weights != nil {
				w = weights[d]
			}
			l, r := left[d], right[d]
			cross += w * real(l*conj(r))
			el += w * (real(l)*real(l) + imag(l)*imag(l))
			er += w * (real(r)*real(r) + imag(r)*imag(r))
		}
		out[band] = core.Clamp(cross/(math.Sqrt(el*er)+1e-20), -1, 1)
	}
	return out
}

func (f *Filterbank) updateMagnitudes() {
	re := make([]float64, f.dirs)
	im := make([]float64, f.dirs)
	for band := 0; band < f.bands; band++ {
		for ear := 0; ear < NumEars; ear++ {
			for d, h := range f.Row(band, ear) {
				re[d], im[d] = real(h), imag(h)
			}
			i := f.index(band, ear, 0)
			vecmath.Magnitude(f.mags[i:i+f.dirs], re, im)
		}
	}
}

func cmplxAbs(v complex128) float64 {
	return math.Hypot(real(v), imag(v))
}
