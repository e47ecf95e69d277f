package decor

const (
	// DefaultFastDecay is the per-slot decay of the peak envelope.
	DefaultFastDecay = 0.95
	// DefaultSlowDecay is the smoothing of the slow envelope.
	DefaultSlowDecay = 0.995

	shaperFloor = 2e-9
	shaperRatio = 4.0
)

// Shaper attenuates onsets before they reach the decorrelator. A fast peak
// envelope and a slow envelope trailing it are tracked per channel; the gain
// is min(1, 4·slow/fast), so sudden energy jumps are ducked until the slow
// envelope catches up.
type Shaper struct {
	fast, slow float64
	fastDecay  float64
	slowDecay  float64
}

// NewShaper returns a shaper with the default envelope constants.
func NewShaper() *Shaper {
	return &Shaper{fastDecay: DefaultFastDecay, slowDecay: DefaultSlowDecay}
}

// Gain updates the envelopes with the energy of one slot and returns the
// gain to apply to that slot.
func (s *Shaper) Gain(energy float64) float64 {
	s.fast *= s.fastDecay
	if s.fast < energy {
		s.fast = energy
	}
	s.slow = s.slow*s.slowDecay + (1-s.slowDecay)*s.fast
	if s.slow > s.fast {
		s.slow = s.fast
	}
	return min(1, shaperRatio*s.slow/(s.fast+shaperFloor))
}

// Reset clears both envelopes.
func (s *Shaper) Reset() {
	s.fast, s.slow = 0, 0
}
