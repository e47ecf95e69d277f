// Package stft implements a multichannel uniform short-time Fourier
// filterbank with perfect reconstruction.
//
// Frames of 2·hop samples are analysed every hop samples. Each call to
// Analyze consumes one hop of a channel and yields hop+1 complex bands; each
// call to Synthesize consumes hop+1 bands and yields one hop of output. With
// unmodified bands the output equals the input delayed by Latency() samples.
package stft

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-binaural/dsp/window"
)

var (
	// ErrChannel is returned for an out-of-range channel index.
	ErrChannel = errors.New("stft: channel out of range")
	// ErrLength is returned when a hop or band slice has the wrong length.
	ErrLength = errors.New("stft: buffer length mismatch")
)

// Option configures a Filterbank.
type Option func(*config)

type config struct {
	windowType window.Type
}

// WithWindow selects the analysis/synthesis window. The squared window must
// overlap-add to a constant at half overlap.
func WithWindow(t window.Type) Option {
	return func(c *config) {
		c.windowType = t
	}
}

// Filterbank is a multichannel STFT analysis/synthesis pair.
type Filterbank struct {
	hop  int
	size int

	window  []float64
	olaGain float64
	plan    *algofft.Plan[complex128]

	analysis  [][]float64 // per input channel, last size samples
	synthesis [][]float64 // per output channel, overlap-add accumulator

	spec  []complex128
	frame []complex128
	work  []float64
}

// New returns a filterbank with the given hop size and channel counts.
func New(hop, inChannels, outChannels int, opts ...Option) (*Filterbank, error) {
	if hop <= 0 || hop&(hop-1) != 0 {
		return nil, fmt.Errorf("stft: hop size must be a power of two > 0: %d", hop)
	}
	if inChannels < 0 || outChannels < 0 || inChannels+outChannels == 0 {
		return nil, fmt.Errorf("stft: invalid channel counts: in=%d out=%d", inChannels, outChannels)
	}

	cfg := config{windowType: window.TypeSine}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	size := 2 * hop
	coeffs := window.Generate(cfg.windowType, size, window.WithPeriodic())
	gain, err := window.OverlapAddGain(coeffs, hop)
	if err != nil {
		return nil, fmt.Errorf("stft: %w", err)
	}
	for _, g := range gain[1:] {
		if math.Abs(g-gain[0]) > 1e-9*math.Max(1, gain[0]) || gain[0] <= 0 {
			return nil, fmt.Errorf("stft: %v window does not reconstruct at hop %d", cfg.windowType, hop)
		}
	}

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("stft: failed to create FFT plan: %w", err)
	}

	f := &Filterbank{
		hop:       hop,
		size:      size,
		window:    coeffs,
		olaGain:   gain[0],
		plan:      plan,
		analysis:  make([][]float64, inChannels),
		synthesis: make([][]float64, outChannels),
		spec:      make([]complex128, size),
		frame:     make([]complex128, size),
		work:      make([]float64, size),
	}
	for ch := range f.analysis {
		f.analysis[ch] = make([]float64, size)
	}
	for ch := range f.synthesis {
		f.synthesis[ch] = make([]float64, size)
	}

	return f, nil
}

// Hop returns the hop size in samples.
func (f *Filterbank) Hop() int { return f.hop }

// Bands returns the number of frequency bands per slot.
func (f *Filterbank) Bands() int { return f.hop + 1 }

// Latency returns the analysis-synthesis delay in samples.
func (f *Filterbank) Latency() int { return f.hop }

// CenterFrequencies returns the centre frequency of every band in Hz.
func (f *Filterbank) CenterFrequencies(sampleRate float64) []float64 {
	out := make([]float64, f.Bands())
	for k := range out {
		out[k] = float64(k) * sampleRate / float64(f.size)
	}
	return out
}

// Analyze pushes one hop of channel ch and writes its Bands() coefficients.
func (f *Filterbank) Analyze(ch int, samples []float64, bands []complex128) error {
	if ch < 0 || ch >= len(f.analysis) {
		return ErrChannel
	}
	if len(samples) != f.hop || len(bands) != f.Bands() {
		return ErrLength
	}

	buf := f.analysis[ch]
	copy(buf, buf[f.hop:])
	copy(buf[f.size-f.hop:], samples)

	vecmath.MulBlock(f.work, buf, f.window)
	for i, x := range f.work {
		f.spec[i] = complex(x, 0)
	}

	if err := f.plan.Forward(f.spec, f.spec); err != nil {
		return fmt.Errorf("stft: forward FFT failed: %w", err)
	}

	copy(bands, f.spec[:f.Bands()])

	return nil
}

// Synthesize consumes Bands() coefficients for output channel ch and writes
// the next hop of time-domain output.
func (f *Filterbank) Synthesize(ch int, bands []complex128, samples []float64) error {
	if ch < 0 || ch >= len(f.synthesis) {
		return ErrChannel
	}
	if len(samples) != f.hop || len(bands) != f.Bands() {
		return ErrLength
	}

	half := f.hop
	copy(f.spec[:half+1], bands)
	f.spec[0] = complex(real(f.spec[0]), 0)
	f.spec[half] = complex(real(f.spec[half]), 0)
	for k := 1; k < half; k++ {
		v := f.spec[k]
		f.spec[f.size-k] = complex(real(v), -imag(v))
	}

	if err := f.plan.Inverse(f.frame, f.spec); err != nil {
		return fmt.Errorf("stft: inverse FFT failed: %w", err)
	}

	acc := f.synthesis[ch]
	scale := 1 / f.olaGain
	for i, v := range f.frame {
		acc[i] += real(v) * f.window[i] * scale
	}

	copy(samples, acc[:f.hop])
	copy(acc, acc[f.hop:])
	for i := f.size - f.hop; i < f.size; i++ {
		acc[i] = 0
	}

	return nil
}

// Reset clears all analysis and synthesis history.
func (f *Filterbank) Reset() {
	for _, buf := range f.analysis {
		for i := range buf {
			buf[i] = 0
		}
	}
	for _, buf := range f.synthesis {
		for i := range buf {
			buf[i] = 0
		}
	}
}
