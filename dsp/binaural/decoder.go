package binaural

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/core"
	"github.com/cwbudde/algo-binaural/dsp/hrtf"
)

const (
	// FrameSize is the number of samples Process expects per call.
	FrameSize = 512
	// HopSize is the time-frequency transform hop.
	HopSize = 128
	// TimeSlots is the number of transform slots per frame.
	TimeSlots = FrameSize / HopSize
	// NumBands is the number of frequency bands.
	NumBands = HopSize + 1
	// NumSH is the number of first-order ambisonic channels.
	NumSH = ambisonic.NumSH
	// NumEars is the number of output channels.
	NumEars = hrtf.NumEars
	// NumDecorFrames is the depth of the decorrelation delays in frames.
	NumDecorFrames = 8
)

// State is the build state of a Decoder.
type State int32

const (
	// StateUninitialized means tables are missing or out of date.
	StateUninitialized State = iota
	// StateBuilding means a build is in progress.
	StateBuilding
	// StateReady means Process renders audio.
	StateReady

	// statePending is StateBuilding with a rebuild requested meanwhile. It
	// is never returned by State.
	statePending
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuilding, statePending:
		return "building"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Decoder is a first-order parametric binaural decoder.
type Decoder struct {
	cfg    config
	logger *slog.Logger

	state       atomic.Int32
	procOngoing atomic.Bool
	closed      atomic.Bool

	// buildMu serialises Build, Configure and Close.
	buildMu    sync.Mutex
	configured bool

	tables atomic.Pointer[tableSet]
	frame  atomic.Pointer[frameState]

	sampleRate atomicFloat
	progress   atomicFloat
	textMu     sync.Mutex
	text       string

	params params
}

// New returns a decoder with default parameters. Tables are built by Build.
func New(opts ...Option) (*Decoder, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	fs, err := newFrameState()
	if err != nil {
		return nil, err
	}

	d := &Decoder{cfg: cfg, logger: cfg.logger}
	d.params.reset()
	d.sampleRate.Store(core.DefaultProcessorConfig().SampleRate)
	d.frame.Store(fs)
	d.setProgress(0, "")

	return d, nil
}

// Close waits for any build and frame in flight and releases the tables.
// Close is idempotent.
func (d *Decoder) Close() error {
	d.closed.Store(true)

	d.buildMu.Lock()
	defer d.buildMu.Unlock()

	d.state.Store(int32(StateUninitialized))
	d.waitIdle()
	d.tables.Store(nil)

	return nil
}

// Configure prepares the decoder for a host sample rate and resets the
// runtime state. The tables are invalidated on the first call and whenever
// the rate changes.
func (d *Decoder) Configure(sampleRate float64) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("binaural: sample rate must be > 0 and finite: %f", sampleRate)
	}

	fs, err := newFrameState()
	if err != nil {
		return err
	}

	d.buildMu.Lock()
	defer d.buildMu.Unlock()

	first := !d.configured
	d.configured = true
	changed := d.sampleRate.Load() != sampleRate
	d.sampleRate.Store(sampleRate)

	d.waitIdle()
	d.frame.Store(fs)
	d.params.rotationStale.Store(true)

	if first || changed {
		d.RequestRebuild()
	}
	d.logger.Debug("binaural decoder configured", "sampleRate", sampleRate, "rebuild", first || changed)

	return nil
}

// RequestRebuild marks the tables out of date. During a build the request
// is recorded and the builder runs exactly once more.
func (d *Decoder) RequestRebuild() {
	for {
		s := State(d.state.Load())
		switch s {
		case StateBuilding:
			if d.state.CompareAndSwap(int32(StateBuilding), int32(statePending)) {
				return
			}
		case statePending:
			return
		default:
			if d.state.CompareAndSwap(int32(s), int32(StateUninitialized)) {
				return
			}
		}
	}
}

// Build runs the configuration pipeline if the tables are out of date and
// returns once they are published. It is a no-op in StateReady.
func (d *Decoder) Build() error {
	d.buildMu.Lock()
	defer d.buildMu.Unlock()

	if d.closed.Load() {
		return ErrClosed
	}
	if !d.state.CompareAndSwap(int32(StateUninitialized), int32(StateBuilding)) {
		return nil
	}

	for {
		if err := d.build(); err != nil {
			d.state.Store(int32(StateUninitialized))
			d.setProgress(0, "")
			return err
		}
		if d.state.CompareAndSwap(int32(StateBuilding), int32(StateReady)) {
			return nil
		}
		// A rebuild was requested while building.
		d.state.Store(int32(StateBuilding))
	}
}

// waitIdle spins until no frame is in flight.
func (d *Decoder) waitIdle() {
	for d.procOngoing.Load() {
		time.Sleep(time.Millisecond)
	}
}

func (d *Decoder) setProgress(fraction float64, text string) {
	d.progress.Store(fraction)
	d.textMu.Lock()
	d.text = text
	d.textMu.Unlock()
}

// State returns the build state.
func (d *Decoder) State() State {
	s := State(d.state.Load())
	if s == statePending {
		return StateBuilding
	}
	return s
}

// Progress returns the build progress in [0, 1].
func (d *Decoder) Progress() float64 { return d.progress.Load() }

// ProgressText returns the current build phase.
func (d *Decoder) ProgressText() string {
	d.textMu.Lock()
	defer d.textMu.Unlock()
	return d.text
}

// Latency returns the processing delay in samples.
func (d *Decoder) Latency() int { return HopSize }

// Bands returns the number of frequency bands.
func (d *Decoder) Bands() int { return NumBands }

// FrameSize returns the number of samples per Process call.
func (d *Decoder) FrameSize() int { return FrameSize }

// NumSHRequired returns the number of input channels used.
func (d *Decoder) NumSHRequired() int { return NumSH }

// NumEars returns the number of output channels produced.
func (d *Decoder) NumEars() int { return NumEars }

// SampleRate returns the host sample rate.
func (d *Decoder) SampleRate() float64 { return d.sampleRate.Load() }

// BandFrequencies returns the centre frequency of every band in Hz at the
// host sample rate.
func (d *Decoder) BandFrequencies() []float64 {
	return bandFrequencies(d.sampleRate.Load())
}

// NumHRIRDirections returns the number of directions of the active HRIR
// set, or 0 before the first build.
func (d *Decoder) NumHRIRDirections() int {
	if t := d.tables.Load(); t != nil {
		return t.hrirDirections
	}
	return 0
}

// HRIRLength returns the impulse length of the active HRIR set.
func (d *Decoder) HRIRLength() int {
	if t := d.tables.Load(); t != nil {
		return t.hrirLength
	}
	return 0
}

// HRIRSampleRate returns the sample rate of the active HRIR set.
func (d *Decoder) HRIRSampleRate() float64 {
	if t := d.tables.Load(); t != nil {
		return t.hrirSampleRate
	}
	return 0
}

func bandFrequencies(sampleRate float64) []float64 {
	out := make([]float64, NumBands)
	for k := range out {
		out[k] = float64(k) * sampleRate / (2 * HopSize)
	}
	return out
}
