// Package wavio reads and writes PCM WAV files as deinterleaved float64
// channels in [-1, 1].
package wavio

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidFile is returned for files that are not readable PCM WAV.
var ErrInvalidFile = errors.New("wavio: invalid wav file")

// Audio is a deinterleaved multichannel signal.
type Audio struct {
	SampleRate int
	Channels   [][]float64
}

// Frames returns the number of samples per channel.
func (a *Audio) Frames() int {
	if len(a.Channels) == 0 {
		return 0
	}
	return len(a.Channels[0])
}

// ReadFile decodes a PCM WAV file.
func ReadFile(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavio: decoding %s: %w", path, err)
	}

	full := audio.IntMaxSignedValue(int(dec.BitDepth))
	if full == 0 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidFile, dec.BitDepth)
	}

	numCh := buf.Format.NumChannels
	frames := len(buf.Data) / numCh
	out := &Audio{
		SampleRate: buf.Format.SampleRate,
		Channels:   make([][]float64, numCh),
	}

	scale := 1 / float64(full)
	for ch := range out.Channels {
		samples := make([]float64, frames)
		for i := range samples {
			samples[i] = float64(buf.Data[i*numCh+ch]) * scale
		}
		out.Channels[ch] = samples
	}

	return out, nil
}

// WriteFile encodes a as integer PCM with the given bit depth (16 or 24).
func WriteFile(path string, a *Audio, bitDepth int) error {
	if bitDepth != 16 && bitDepth != 24 {
		return fmt.Errorf("wavio: unsupported bit depth: %d", bitDepth)
	}
	if len(a.Channels) == 0 || a.SampleRate <= 0 {
		return fmt.Errorf("wavio: nothing to write: channels=%d sampleRate=%d", len(a.Channels), a.SampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	numCh := len(a.Channels)
	frames := a.Frames()
	full := float64(audio.IntMaxSignedValue(bitDepth))

	data := make([]int, frames*numCh)
	for ch, samples := range a.Channels {
		for i := 0; i < frames && i < len(samples); i++ {
			v := math.Max(-1, math.Min(1, samples[i]))
			data[i*numCh+ch] = int(math.Round(v * full))
		}
	}

	enc := wav.NewEncoder(f, a.SampleRate, bitDepth, numCh, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numCh, SampleRate: a.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("wavio: encoding %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("wavio: finalising %s: %w", path, err)
	}

	return f.Close()
}
