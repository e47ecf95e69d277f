package main

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-binaural/dsp/hrtf"
)

func coarseHead() hrtf.SphericalHead {
	h := hrtf.DefaultSphericalHead()
	h.AzimuthStep = 30
	h.ElevationStep = 30
	return h
}

func TestDescribe(t *testing.T) {
	set, err := coarseHead().Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	info, err := describe(set, hrtf.PreprocAll)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}

	if info.directions != 62 {
		t.Fatalf("directions=%d, want 62", info.directions)
	}
	if len(info.freqs) != 129 || len(info.coherence) != 129 {
		t.Fatalf("bands=%d/%d, want 129", len(info.freqs), len(info.coherence))
	}
	if info.freqs[128] != 24000 {
		t.Fatalf("top band=%f, want 24000", info.freqs[128])
	}
	if info.minITD >= 0 || info.maxITD <= 0 {
		t.Fatalf("ITD range %g..%g should straddle zero", info.minITD, info.maxITD)
	}
	if info.coherence[0] < 0.999 {
		t.Fatalf("DC coherence=%f, want ~1", info.coherence[0])
	}
	if info.coherence[100] > info.coherence[0] {
		t.Fatalf("coherence should drop with frequency: %f > %f", info.coherence[100], info.coherence[0])
	}
}

func TestRunPrintsAndExports(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "head")
	opts := options{
		head:     coarseHead(),
		every:    32,
		dirs:     true,
		preproc:  hrtf.PreprocAll,
		export:   dir,
		bitDepth: 24,
	}

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := run(opts, &out, logger); err != nil {
		t.Fatalf("run: %v", err)
	}

	text := out.String()
	for _, want := range []string{"Directions:", "62", "Coherence", "ITD [us]"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}

	set, err := hrtf.LoadManifest(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if set.NumDirections() != 62 || set.Length() != 256 {
		t.Fatalf("exported set has %d directions of length %d", set.NumDirections(), set.Length())
	}
}

func TestRunMissingManifest(t *testing.T) {
	opts := options{path: filepath.Join(t.TempDir(), "missing.json"), every: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := run(opts, io.Discard, logger); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}
