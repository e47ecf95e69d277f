package hrtf

import (
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
)

const speedOfSound = 343.0

// SphericalHead synthesises HRIRs from a rigid spherical head model: a
// one-pole/one-zero head-shadow filter per ear (Brown and Duda) combined with
// a Woodworth time-of-arrival per ear.
type SphericalHead struct {
	SampleRate float64
	// Length of each impulse response in samples; must be a power of two.
	Length int
	// Radius of the head in metres.
	Radius float64
	// Grid spacing in degrees. Elevation rings run from -90+ElevationStep to
	// 90-ElevationStep; both poles are added.
	AzimuthStep   float64
	ElevationStep float64
	// BulkDelay added to every response in seconds, keeping it causal.
	BulkDelay float64
}

// DefaultSphericalHead returns the built-in dataset configuration: 48 kHz,
// 256 taps, 8.75 cm radius, 10 degree grid.
func DefaultSphericalHead() SphericalHead {
	return SphericalHead{
		SampleRate:    48000,
		Length:        256,
		Radius:        0.0875,
		AzimuthStep:   10,
		ElevationStep: 10,
		BulkDelay:     0.00075,
	}
}

// Directions returns the measurement grid of the model.
func (h SphericalHead) Directions() (azimuth, elevation []float64) {
	azimuth = append(azimuth, 0)
	elevation = append(elevation, -90)

	rings := int(math.Round(180/h.ElevationStep)) - 1
	perRing := int(math.Round(360 / h.AzimuthStep))
	for r := 1; r <= rings; r++ {
		el := -90 + float64(r)*h.ElevationStep
		for a := 0; a < perRing; a++ {
			azimuth = append(azimuth, -180+float64(a)*h.AzimuthStep)
			elevation = append(elevation, el)
		}
	}

	azimuth = append(azimuth, 0)
	elevation = append(elevation, 90)

	return azimuth, elevation
}

// Load synthesises the HRIR set.
func (h SphericalHead) Load() (*Set, error) {
	if h.SampleRate <= 0 {
		return nil, fmt.Errorf("hrtf: sample rate must be > 0: %f", h.SampleRate)
	}
	if h.Length < 16 || h.Length&(h.Length-1) != 0 {
		return nil, fmt.Errorf("hrtf: spherical head length must be a power of two >= 16: %d", h.Length)
	}
	if h.Radius <= 0 {
		return nil, fmt.Errorf("hrtf: head radius must be > 0: %f", h.Radius)
	}
	if h.AzimuthStep <= 0 || h.AzimuthStep > 120 || h.ElevationStep <= 0 || h.ElevationStep > 90 {
		return nil, fmt.Errorf("hrtf: invalid grid spacing: az=%f el=%f", h.AzimuthStep, h.ElevationStep)
	}

	plan, err := algofft.NewPlan64(h.Length)
	if err != nil {
		return nil, fmt.Errorf("hrtf: failed to create FFT plan: %w", err)
	}

	az, el := h.Directions()
	set := &Set{
		Azimuth:    az,
		Elevation:  el,
		IRs:        make([][NumEars][]float64, len(az)),
		SampleRate: h.SampleRate,
	}

	spec := make([]complex128, h.Length)
	frame := make([]complex128, h.Length)
	earAxis := [NumEars]float64{1, -1}

	for d := range az {
		u := ambisonic.UnitVector(az[d], el[d])
		for ear := 0; ear < NumEars; ear++ {
			theta := math.Acos(math.Max(-1, math.Min(1, earAxis[ear]*u[1])))
			h.earSpectrum(spec, theta)
			if err := plan.Inverse(frame, spec); err != nil {
				return nil, fmt.Errorf("hrtf: inverse FFT failed: %w", err)
			}
			ir := make([]float64, h.Length)
			for i := range ir {
				ir[i] = real(frame[i])
			}
			set.IRs[d][ear] = ir
		}
	}

	return set, nil
}

// earSpectrum fills spec with the Hermitian spectrum of one ear for a
// source at angle theta (radians) from the ear axis.
func (h SphericalHead) earSpectrum(spec []complex128, theta float64) {
	const (
		alphaMin = 0.1
		thetaMin = 5 * math.Pi / 6
	)

	n := len(spec)
	w0 := speedOfSound / h.Radius
	alpha := (1 + alphaMin/2) + (1-alphaMin/2)*math.Cos(theta/thetaMin*math.Pi)
	tau := h.BulkDelay + woodworth(theta, h.Radius)

	for k := 0; k <= n/2; k++ {
		w := 2 * math.Pi * float64(k) * h.SampleRate / float64(n)
		shadow := complex(1, alpha*w/(2*w0)) / complex(1, w/(2*w0))
		phase := -w * tau
		spec[k] = shadow * complex(math.Cos(phase), math.Sin(phase))
	}
	spec[n/2] = complex(real(spec[n/2]), 0)
	for k := 1; k < n/2; k++ {
		spec[n-k] = complex(real(spec[k]), -imag(spec[k]))
	}
}

// woodworth returns the arrival time relative to the head centre for a
// source at angle theta from the ear axis.
func woodworth(theta, radius float64) float64 {
	if theta < math.Pi/2 {
		return -radius / speedOfSound * math.Cos(theta)
	}
	return radius / speedOfSound * (theta - math.Pi/2)
}
