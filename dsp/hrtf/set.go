package hrtf

import (
	"fmt"
	"math"
)

// NumEars is the number of ears (left, right).
const NumEars = 2

// Left and Right index the ear dimension.
const (
	Left  = 0
	Right = 1
)

// Set is a collection of head-related impulse responses.
type Set struct {
	// Azimuth and Elevation of every measurement in degrees.
	Azimuth   []float64
	Elevation []float64
	// IRs[dir][ear] is the impulse response of one measurement.
	IRs        [][NumEars][]float64
	SampleRate float64
}

// Provider supplies an HRIR set, e.g. a built-in model.
type Provider interface {
	Load() (*Set, error)
}

// Loader reads an HRIR set from a file.
type Loader func(path string) (*Set, error)

// NumDirections returns the number of measurements.
func (s *Set) NumDirections() int { return len(s.Azimuth) }

// Length returns the impulse response length in samples.
func (s *Set) Length() int {
	if len(s.IRs) == 0 {
		return 0
	}
	return len(s.IRs[0][Left])
}

// Validate checks that the set is non-empty and every impulse response has
// the same length.
func (s *Set) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil set", ErrInvalidSet)
	}
	n := len(s.Azimuth)
	if n < minDirections {
		return fmt.Errorf("%w: need at least %d directions, got %d", ErrInvalidSet, minDirections, n)
	}
	if len(s.Elevation) != n || len(s.IRs) != n {
		return fmt.Errorf("%w: %d azimuths, %d elevations, %d responses",
			ErrInvalidSet, n, len(s.Elevation), len(s.IRs))
	}
	if s.SampleRate <= 0 || math.IsNaN(s.SampleRate) || math.IsInf(s.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate must be > 0: %f", ErrInvalidSet, s.SampleRate)
	}

	length := s.Length()
	if length == 0 {
		return fmt.Errorf("%w: empty impulse responses", ErrInvalidSet)
	}
	for d, irs := range s.IRs {
		for ear, ir := range irs {
			if len(ir) != length {
				return fmt.Errorf("%w: direction %d ear %d has length %d, want %d",
					ErrInvalidSet, d, ear, len(ir), length)
			}
		}
		if math.Abs(s.Elevation[d]) > 90 {
			return fmt.Errorf("%w: direction %d elevation out of range: %f", ErrInvalidSet, d, s.Elevation[d])
		}
	}

	return nil
}

// minDirections is the smallest set a first-order decoder can be fitted to.
const minDirections = 4
