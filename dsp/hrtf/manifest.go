package hrtf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cwbudde/algo-binaural/internal/wavio"
)

// Manifest describes an HRIR set stored as one stereo WAV file per
// measurement direction. File paths are relative to the manifest.
//
//	{
//	  "measurements": [
//	    {"azimuth": 0, "elevation": 0, "file": "az0_el0.wav"},
//	    ...
//	  ]
//	}
type Manifest struct {
	Measurements []Measurement `json:"measurements"`
}

// Measurement is one entry of a Manifest.
type Measurement struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	File      string  `json:"file"`
}

// LoadManifest reads a JSON manifest and the WAV files it references.
// It satisfies Loader.
func LoadManifest(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, path, err)
	}
	if len(m.Measurements) == 0 {
		return nil, fmt.Errorf("%w: %s has no measurements", ErrManifest, path)
	}

	dir := filepath.Dir(path)
	set := &Set{
		Azimuth:   make([]float64, len(m.Measurements)),
		Elevation: make([]float64, len(m.Measurements)),
		IRs:       make([][NumEars][]float64, len(m.Measurements)),
	}

	for i, meas := range m.Measurements {
		if meas.File == "" {
			return nil, fmt.Errorf("%w: measurement %d has no file", ErrManifest, i)
		}
		file := meas.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}

		a, err := wavio.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("hrtf: measurement %d: %w", i, err)
		}
		if len(a.Channels) != NumEars {
			return nil, fmt.Errorf("%w: %s has %d channels, want %d", ErrInvalidSet, file, len(a.Channels), NumEars)
		}

		rate := float64(a.SampleRate)
		if i == 0 {
			set.SampleRate = rate
		} else if rate != set.SampleRate {
			return nil, fmt.Errorf("%w: %s sample rate %v differs from %v", ErrInvalidSet, file, rate, set.SampleRate)
		}

		set.Azimuth[i] = meas.Azimuth
		set.Elevation[i] = meas.Elevation
		set.IRs[i] = [NumEars][]float64{a.Channels[Left], a.Channels[Right]}
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}

	return set, nil
}

// WriteManifest stores set as a manifest plus WAV files in dir.
func WriteManifest(dir string, set *Set, bitDepth int) (string, error) {
	if err := set.Validate(); err != nil {
		return "", err
	}

	m := Manifest{Measurements: make([]Measurement, set.NumDirections())}
	for i := range m.Measurements {
		name := fmt.Sprintf("hrir_%04d.wav", i)
		a := &wavio.Audio{
			SampleRate: int(set.SampleRate),
			Channels:   [][]float64{set.IRs[i][Left], set.IRs[i][Right]},
		}
		if err := wavio.WriteFile(filepath.Join(dir, name), a, bitDepth); err != nil {
			return "", err
		}
		m.Measurements[i] = Measurement{Azimuth: set.Azimuth[i], Elevation: set.Elevation[i], File: name}
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}

	return path, nil
}
