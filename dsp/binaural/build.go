package binaural

import (
	"fmt"
	"time"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/decoder"
	"github.com/cwbudde/algo-binaural/dsp/decor"
	"github.com/cwbudde/algo-binaural/dsp/hrtf"
)

// gridFrequency is the geodesic subdivision of the scanning grid.
const gridFrequency = 12

// tableSet holds everything the configuration pipeline precomputes. It is
// immutable once published.
type tableSet struct {
	sampleRate float64
	freqs      []float64

	hrirDirections int
	hrirLength     int
	hrirSampleRate float64

	fb       *hrtf.Filterbank
	interp   *hrtf.InterpTable
	decoders []decoder.Matrix
	grid     *ambisonic.Grid
	// coherence is nil unless diffuse-coherence shaping is enabled.
	coherence []float64
	delays    [][]int
	residual  bool
}

// build runs the configuration pipeline and publishes the result.
func (d *Decoder) build() error {
	start := time.Now()
	d.setProgress(0, "Preparing HRIRs")

	sampleRate := d.sampleRate.Load()
	freqs := bandFrequencies(sampleRate)
	preproc := d.HRIRPreprocessing()
	diffuseCorrection := d.DiffuseCorrection()

	loaded, err := d.loadHRIRs()
	if err != nil {
		return err
	}
	set := loaded
	if d.cfg.resample && set.SampleRate != sampleRate {
		if set, err = loaded.Resample(sampleRate); err != nil {
			return fmt.Errorf("binaural: %w", err)
		}
		d.logger.Debug("resampled HRIRs", "from", loaded.SampleRate, "to", sampleRate)
	}

	itds, err := hrtf.EstimateITDs(set)
	if err != nil {
		return fmt.Errorf("binaural: %w", err)
	}
	fb, err := hrtf.NewFilterbank(set, HopSize, itds)
	if err != nil {
		return fmt.Errorf("binaural: %w", err)
	}
	if err := fb.Preprocess(freqs, preproc); err != nil {
		return fmt.Errorf("binaural: %w", err)
	}
	d.setProgress(0.4, "Preparing HRIRs")

	d.setProgress(0.6, "Computing interpolation table")
	interp, err := hrtf.NewInterpTable(set.Azimuth, set.Elevation,
		hrtf.DefaultAzimuthResolution, hrtf.DefaultElevationResolution)
	if err != nil {
		return fmt.Errorf("binaural: %w", err)
	}

	var weights []float64
	if set.NumDirections() < hrtf.WeightsMaxDirections {
		weights = hrtf.IntegrationWeights(set.Azimuth, set.Elevation)
	}

	var coherence []float64
	if d.cfg.coherence {
		coherence = fb.DiffuseCoherence(weights)
	}

	d.setProgress(0.75, "Computing prototype decoder")
	decoders, err := decoder.MagLS(fb, set.Azimuth, set.Elevation, freqs,
		decoder.WithWeights(weights), decoder.WithDiffuseCorrection(diffuseCorrection))
	if err != nil {
		return fmt.Errorf("binaural: %w", err)
	}

	d.setProgress(0.9, "Computing scanning grid")
	grid, err := ambisonic.NewGrid(gridFrequency)
	if err != nil {
		return fmt.Errorf("binaural: %w", err)
	}

	delays, err := decor.Delays(freqs, sampleRate, HopSize, NumDecorFrames*TimeSlots, NumEars, d.cfg.decorSeed)
	if err != nil {
		return fmt.Errorf("binaural: %w", err)
	}

	t := &tableSet{
		sampleRate:     sampleRate,
		freqs:          freqs,
		hrirDirections: set.NumDirections(),
		hrirLength:     loaded.Length(),
		hrirSampleRate: loaded.SampleRate,
		fb:             fb,
		interp:         interp,
		decoders:       decoders,
		grid:           grid,
		coherence:      coherence,
		delays:         delays,
		residual:       d.cfg.residual,
	}

	d.waitIdle()
	d.tables.Store(t)
	d.setProgress(1, "Done!")

	d.logger.Info("binaural tables built",
		"directions", t.hrirDirections,
		"hrirLength", t.hrirLength,
		"hrirSampleRate", t.hrirSampleRate,
		"sampleRate", sampleRate,
		"duration", time.Since(start))

	return nil
}

// loadHRIRs returns the selected HRIR set. A custom set that fails to load
// or validate is replaced by the default one and the selection reverts.
func (d *Decoder) loadHRIRs() (*hrtf.Set, error) {
	if !d.UseDefaultHRIRs() {
		path := d.HRIRPath()
		set, err := d.cfg.loader(path)
		if err == nil {
			err = set.Validate()
		}
		if err == nil {
			return set, nil
		}

		d.logger.Warn("custom HRIRs unusable, falling back to default", "path", path, "error", err)
		d.params.useDefaultHRIRs.Store(true)
	}

	set, err := d.cfg.provider.Load()
	if err != nil {
		return nil, fmt.Errorf("binaural: default HRIRs: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("binaural: default HRIRs: %w", err)
	}
	return set, nil
}
