package hrtf

import (
	"fmt"

	"github.com/cwbudde/algo-binaural/dsp/resample"
)

// Resample returns a copy of s at the given sample rate. Responses keep
// their frequency response; directions are shared with s.
func (s *Set) Resample(rate float64, opts ...resample.Option) (*Set, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	r, err := resample.NewForRates(s.SampleRate, rate, opts...)
	if err != nil {
		return nil, fmt.Errorf("hrtf: %w", err)
	}

	out := &Set{
		Azimuth:    s.Azimuth,
		Elevation:  s.Elevation,
		IRs:        make([][NumEars][]float64, len(s.IRs)),
		SampleRate: rate,
	}
	for d := range s.IRs {
		for ear := 0; ear < NumEars; ear++ {
			out.IRs[d][ear] = r.Impulse(s.IRs[d][ear])
		}
	}

	return out, nil
}
