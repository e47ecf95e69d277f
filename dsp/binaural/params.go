package binaural

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/core"
	"github.com/cwbudde/algo-binaural/dsp/hrtf"
)

const (
	// DefaultAnalysisLimit is the default analysis ceiling in Hz.
	DefaultAnalysisLimit = 18000.0
	// MinAnalysisLimit and MaxAnalysisLimit bound the analysis ceiling.
	MinAnalysisLimit = 4000.0
	MaxAnalysisLimit = 20000.0

	// DefaultCovarianceAveraging is the default covariance smoothing.
	DefaultCovarianceAveraging = 0.75
	// MaxCovarianceAveraging keeps the smoothing from freezing.
	MaxCovarianceAveraging = 0.999

	// MaxBalance is the upper balance bound; 0 is fully diffuse, 1 neutral
	// and 2 fully direct.
	MaxBalance = 2.0
)

type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 { return math.Float64frombits(f.bits.Load()) }

func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// params holds every user parameter. Scalars are atomics read by the next
// frame; mu serialises compound updates from the control side.
type params struct {
	mu sync.Mutex

	enableCroPaC      atomic.Bool
	balance           [NumBands]atomicFloat
	averaging         atomicFloat
	analysisLimit     atomicFloat
	useDefaultHRIRs   atomic.Bool
	hrirPath          string
	order             atomic.Int32
	norm              atomic.Int32
	diffuseCorrection atomic.Bool
	preprocessing     atomic.Int32

	// Angles are stored in radians with the flip signs already applied.
	enableRotation atomic.Bool
	yaw            atomicFloat
	pitch          atomicFloat
	roll           atomicFloat
	flipYaw        atomic.Bool
	flipPitch      atomic.Bool
	flipRoll       atomic.Bool
	rollPitchYaw   atomic.Bool
	rotationStale  atomic.Bool
}

func (p *params) reset() {
	p.enableCroPaC.Store(true)
	for i := range p.balance {
		p.balance[i].Store(1)
	}
	p.averaging.Store(DefaultCovarianceAveraging)
	p.analysisLimit.Store(DefaultAnalysisLimit)
	p.useDefaultHRIRs.Store(true)
	p.order.Store(int32(ambisonic.OrderACN))
	p.norm.Store(int32(ambisonic.NormSN3D))
	p.preprocessing.Store(int32(hrtf.PreprocAll))
	p.rotationStale.Store(true)
}

// balanceScales splits a balance value into covariance scales for the
// direct and diffuse streams. Values above 1 attenuate the diffuse part,
// values up to 1 the direct part.
func balanceScales(b float64) (direct, diffuse float64) {
	if b > 1 {
		return 1, 2 - b
	}
	return b, 1
}

func signed(flip bool, v float64) float64 {
	if flip {
		return -v
	}
	return v
}

// EnableCroPaC reports whether the parametric mixing stage is active.
func (d *Decoder) EnableCroPaC() bool { return d.params.enableCroPaC.Load() }

// SetEnableCroPaC toggles the parametric mixing stage. When off the decoder
// outputs the linear MagLS decode.
func (d *Decoder) SetEnableCroPaC(enabled bool) { d.params.enableCroPaC.Store(enabled) }

// Balance returns the direct/diffuse balance of one band.
func (d *Decoder) Balance(band int) float64 {
	if band < 0 || band >= NumBands {
		return 0
	}
	return d.params.balance[band].Load()
}

// SetBalance sets the balance of one band, clamped to [0, 2]. Out-of-range
// bands are ignored.
func (d *Decoder) SetBalance(band int, v float64) {
	if band < 0 || band >= NumBands {
		return
	}
	d.params.balance[band].Store(core.Clamp(v, 0, MaxBalance))
}

// BalanceAllBands returns the balance of the first band.
func (d *Decoder) BalanceAllBands() float64 { return d.params.balance[0].Load() }

// SetBalanceAllBands sets the same balance on every band.
func (d *Decoder) SetBalanceAllBands(v float64) {
	v = core.Clamp(v, 0, MaxBalance)
	for i := range d.params.balance {
		d.params.balance[i].Store(v)
	}
}

// BalanceCurve returns the band centre frequencies and their balances.
func (d *Decoder) BalanceCurve() (freqs, values []float64) {
	freqs = d.BandFrequencies()
	values = make([]float64, NumBands)
	for i := range values {
		values[i] = d.params.balance[i].Load()
	}
	return freqs, values
}

// CovarianceAveraging returns the covariance smoothing coefficient.
func (d *Decoder) CovarianceAveraging() float64 { return d.params.averaging.Load() }

// SetCovarianceAveraging sets the covariance smoothing, clamped to
// [0, 0.999].
func (d *Decoder) SetCovarianceAveraging(v float64) {
	d.params.averaging.Store(core.Clamp(v, 0, MaxCovarianceAveraging))
}

// AnalysisLimit returns the analysis ceiling in Hz.
func (d *Decoder) AnalysisLimit() float64 { return d.params.analysisLimit.Load() }

// SetAnalysisLimit sets the frequency above which bands are only
// energy-matched, clamped to [4 kHz, 20 kHz].
func (d *Decoder) SetAnalysisLimit(hz float64) {
	d.params.analysisLimit.Store(core.Clamp(hz, MinAnalysisLimit, MaxAnalysisLimit))
}

// UseDefaultHRIRs reports whether the built-in dataset is selected.
func (d *Decoder) UseDefaultHRIRs() bool { return d.params.useDefaultHRIRs.Load() }

// SetUseDefaultHRIRs selects the built-in dataset or the custom path.
// Switching to the custom set without a path is ignored.
func (d *Decoder) SetUseDefaultHRIRs(enabled bool) {
	d.params.mu.Lock()
	if !enabled && d.params.hrirPath == "" {
		d.params.mu.Unlock()
		return
	}
	changed := d.params.useDefaultHRIRs.Swap(enabled) != enabled
	d.params.mu.Unlock()

	if changed {
		d.RequestRebuild()
	}
}

// HRIRPath returns the custom dataset path.
func (d *Decoder) HRIRPath() string {
	d.params.mu.Lock()
	defer d.params.mu.Unlock()
	return d.params.hrirPath
}

// SetHRIRPath selects a custom dataset and schedules a rebuild.
func (d *Decoder) SetHRIRPath(path string) {
	d.params.mu.Lock()
	d.params.hrirPath = path
	d.params.useDefaultHRIRs.Store(false)
	d.params.mu.Unlock()

	d.RequestRebuild()
}

// ChannelOrder returns the input channel order.
func (d *Decoder) ChannelOrder() ambisonic.ChannelOrder {
	return ambisonic.ChannelOrder(d.params.order.Load())
}

// SetChannelOrder sets the input channel order.
func (d *Decoder) SetChannelOrder(o ambisonic.ChannelOrder) { d.params.order.Store(int32(o)) }

// Normalization returns the input normalisation.
func (d *Decoder) Normalization() ambisonic.Normalization {
	return ambisonic.Normalization(d.params.norm.Load())
}

// SetNormalization sets the input normalisation.
func (d *Decoder) SetNormalization(n ambisonic.Normalization) { d.params.norm.Store(int32(n)) }

// DiffuseCorrection reports whether the decoder is diffuse-field corrected.
func (d *Decoder) DiffuseCorrection() bool { return d.params.diffuseCorrection.Load() }

// SetDiffuseCorrection toggles the diffuse-covariance correction of the
// linear decoder; a change schedules a rebuild.
func (d *Decoder) SetDiffuseCorrection(enabled bool) {
	if d.params.diffuseCorrection.Swap(enabled) != enabled {
		d.RequestRebuild()
	}
}

// HRIRPreprocessing returns the HRTF preprocessing mode.
func (d *Decoder) HRIRPreprocessing() hrtf.Preprocessing {
	return hrtf.Preprocessing(d.params.preprocessing.Load())
}

// SetHRIRPreprocessing sets the HRTF preprocessing mode; a change schedules
// a rebuild.
func (d *Decoder) SetHRIRPreprocessing(mode hrtf.Preprocessing) {
	if hrtf.Preprocessing(d.params.preprocessing.Swap(int32(mode))) != mode {
		d.RequestRebuild()
	}
}

// EnableRotation reports whether the sound-field rotation is active.
func (d *Decoder) EnableRotation() bool { return d.params.enableRotation.Load() }

// SetEnableRotation toggles the sound-field rotation.
func (d *Decoder) SetEnableRotation(enabled bool) {
	d.params.enableRotation.Store(enabled)
	d.params.rotationStale.Store(true)
}

// Yaw returns the yaw angle in degrees.
func (d *Decoder) Yaw() float64 {
	return signed(d.params.flipYaw.Load(), core.RadToDeg(d.params.yaw.Load()))
}

// SetYaw sets the yaw angle in degrees.
func (d *Decoder) SetYaw(deg float64) {
	d.params.mu.Lock()
	defer d.params.mu.Unlock()
	d.params.yaw.Store(signed(d.params.flipYaw.Load(), core.DegToRad(deg)))
	d.params.rotationStale.Store(true)
}

// Pitch returns the pitch angle in degrees.
func (d *Decoder) Pitch() float64 {
	return signed(d.params.flipPitch.Load(), core.RadToDeg(d.params.pitch.Load()))
}

// SetPitch sets the pitch angle in degrees.
func (d *Decoder) SetPitch(deg float64) {
	d.params.mu.Lock()
	defer d.params.mu.Unlock()
	d.params.pitch.Store(signed(d.params.flipPitch.Load(), core.DegToRad(deg)))
	d.params.rotationStale.Store(true)
}

// Roll returns the roll angle in degrees.
func (d *Decoder) Roll() float64 {
	return signed(d.params.flipRoll.Load(), core.RadToDeg(d.params.roll.Load()))
}

// SetRoll sets the roll angle in degrees.
func (d *Decoder) SetRoll(deg float64) {
	d.params.mu.Lock()
	defer d.params.mu.Unlock()
	d.params.roll.Store(signed(d.params.flipRoll.Load(), core.DegToRad(deg)))
	d.params.rotationStale.Store(true)
}

// FlipYaw reports whether the yaw sign is inverted.
func (d *Decoder) FlipYaw() bool { return d.params.flipYaw.Load() }

// SetFlipYaw inverts the yaw sign. Yaw keeps returning the same degrees;
// the applied rotation changes direction.
func (d *Decoder) SetFlipYaw(flip bool) { d.flip(&d.params.flipYaw, &d.params.yaw, flip) }

// FlipPitch reports whether the pitch sign is inverted.
func (d *Decoder) FlipPitch() bool { return d.params.flipPitch.Load() }

// SetFlipPitch inverts the pitch sign.
func (d *Decoder) SetFlipPitch(flip bool) { d.flip(&d.params.flipPitch, &d.params.pitch, flip) }

// FlipRoll reports whether the roll sign is inverted.
func (d *Decoder) FlipRoll() bool { return d.params.flipRoll.Load() }

// SetFlipRoll inverts the roll sign.
func (d *Decoder) SetFlipRoll(flip bool) { d.flip(&d.params.flipRoll, &d.params.roll, flip) }

func (d *Decoder) flip(flag *atomic.Bool, angle *atomicFloat, flip bool) {
	d.params.mu.Lock()
	defer d.params.mu.Unlock()
	if flag.Swap(flip) == flip {
		return
	}
	angle.Store(-angle.Load())
	d.params.rotationStale.Store(true)
}

// RollPitchYawOrder reports whether rotations apply yaw first.
func (d *Decoder) RollPitchYawOrder() bool { return d.params.rollPitchYaw.Load() }

// SetRollPitchYawOrder selects the R = Rx·Ry·Rz rotation order instead of
// the default R = Rz·Ry·Rx.
func (d *Decoder) SetRollPitchYawOrder(enabled bool) {
	d.params.rollPitchYaw.Store(enabled)
	d.params.rotationStale.Store(true)
}

// rotation returns the SH rotation for the current angles.
func (p *params) rotation() ambisonic.Matrix4 {
	r := ambisonic.YawPitchRoll(p.yaw.Load(), p.pitch.Load(), p.roll.Load(), p.rollPitchYaw.Load())
	return ambisonic.SHRotation(r)
}
