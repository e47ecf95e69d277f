package hrtf

import (
	"fmt"

	algofft "github.com/cwbudde/algo-fft"
)

// itdCutoff limits the cross-correlation to the band where interaural phase
// is dominated by the time difference.
const itdCutoff = 1500.0

// EstimateITDs returns the interaural time difference τR − τL in seconds for
// every direction of set. Sources on the left yield positive values.
func EstimateITDs(set *Set) ([]float64, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	length := set.Length()
	n := nextPow2(2 * length)
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("hrtf: failed to create FFT plan: %w", err)
	}

	left := make([]complex128, n)
	right := make([]complex128, n)
	xcorr := make([]complex128, n)

	kmax := int(itdCutoff * float64(n) / set.SampleRate)
	if kmax >= n/2 {
		kmax = n/2 - 1
	}

	itds := make([]float64, set.NumDirections())
	for d := range itds {
		loadPadded(left, set.IRs[d][Left])
		loadPadded(right, set.IRs[d][Right])
		if err := plan.Forward(left, left); err != nil {
			return nil, fmt.Errorf("hrtf: forward FFT failed: %w", err)
		}
		if err := plan.Forward(right, right); err != nil {
			return nil, fmt.Errorf("hrtf: forward FFT failed: %w", err)
		}

		for k := range xcorr {
			xcorr[k] = 0
		}
		for k := 0; k <= kmax; k++ {
			c := conj(left[k]) * right[k]
			xcorr[k] = c
			if k > 0 {
				xcorr[n-k] = conj(c)
			}
		}

		if err := plan.Inverse(xcorr, xcorr); err != nil {
			return nil, fmt.Errorf("hrtf: inverse FFT failed: %w", err)
		}

		itds[d] = peakLag(xcorr, length-1) / set.SampleRate
	}

	return itds, nil
}

// peakLag returns the lag in samples, refined by parabolic interpolation,
// at which the circular correlation c peaks within ±maxLag.
func peakLag(c []complex128, maxLag int) float64 {
	n := len(c)
	at := func(lag int) float64 { return real(c[(lag+n)%n]) }

	best := 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		if at(lag) > at(best) {
			best = lag
		}
	}

	y0, y1, y2 := at(best-1), at(best), at(best+1)
	den := y0 - 2*y1 + y2
	if den >= 0 {
		return float64(best)
	}

	return float64(best) + 0.5*(y0-y2)/den
}

func loadPadded(dst []complex128, src []float64) {
	for i := range dst {
		if i < len(src) {
			dst[i] = complex(src[i], 0)
		} else {
			dst[i] = 0
		}
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func conj(v complex128) complex128 {
	return complex(real(v), -imag(v))
}
