// Package decor provides the frequency-dependent delay decorrelator and the
// transient shaper used on the residual stream of the binaural renderer.
package decor

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
)

const (
	// minUpperDelay is the smallest upper delay bound in time slots.
	minUpperDelay = 3
	// periodsPerDelay scales the upper delay with the band period: low
	// bands get long delays, high bands short ones.
	periodsPerDelay = 10.0
)

// Delays returns one delay in time slots per band and channel. Delays lie in
// [1, maxDelay]; the upper bound falls with frequency and every channel
// draws independently, so channels of the same band differ.
func Delays(freqs []float64, sampleRate float64, hop, maxDelay, channels int, seed int64) ([][]int, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("decor: sample rate must be > 0: %f", sampleRate)
	}
	if hop <= 0 {
		return nil, fmt.Errorf("decor: hop size must be > 0: %d", hop)
	}
	if maxDelay < minUpperDelay {
		return nil, fmt.Errorf("decor: max delay must be >= %d: %d", minUpperDelay, maxDelay)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("decor: channel count must be > 0: %d", channels)
	}

	rng := rand.New(rand.NewSource(seed))
	slotRate := sampleRate / float64(hop)

	out := make([][]int, len(freqs))
	for band, f := range freqs {
		upper := maxDelay
		if f > 0 {
			upper = int(math.Round(periodsPerDelay / f * slotRate))
		}
		upper = min(max(upper, minUpperDelay), maxDelay)
		lower := max(1, upper/3)

		out[band] = make([]int, channels)
		for ch := range out[band] {
			span := upper - lower + 1
			d := lower + rng.Intn(span)
			if ch < span {
				for slices.Contains(out[band][:ch], d) {
					d = lower + (d-lower+1)%span
				}
			}
			out[band][ch] = d
		}
	}

	return out, nil
}
