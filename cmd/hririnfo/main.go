// Command hririnfo prints properties of an HRIR set as seen by the binaural
// decoder.
//
// Usage:
//
//	hririnfo [flags]
//
// Without -hrir it describes the built-in spherical head model.
//
// Examples:
//
//	hririnfo
//	hririnfo -hrir sofa/manifest.json -dirs
//	hririnfo -az-step 5 -el-step 5 -every 8
//	hririnfo -export ./head -bits 24
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"text/tabwriter"

	"github.com/cwbudde/algo-binaural/dsp/binaural"
	"github.com/cwbudde/algo-binaural/dsp/hrtf"
)

type options struct {
	path     string
	head     hrtf.SphericalHead
	every    int
	dirs     bool
	preproc  hrtf.Preprocessing
	export   string
	bitDepth int
}

func main() {
	def := hrtf.DefaultSphericalHead()

	path := flag.String("hrir", "", "HRIR manifest (JSON); empty uses the spherical head model")
	azStep := flag.Float64("az-step", def.AzimuthStep, "model azimuth spacing in degrees")
	elStep := flag.Float64("el-step", def.ElevationStep, "model elevation spacing in degrees")
	length := flag.Int("length", def.Length, "model impulse response length (power of two)")
	radius := flag.Float64("radius", def.Radius, "model head radius in metres")
	rate := flag.Float64("rate", def.SampleRate, "model sample rate in Hz")
	every := flag.Int("every", 16, "print every n-th band")
	dirs := flag.Bool("dirs", false, "print the per-direction ITD table")
	preproc := flag.String("preproc", hrtf.PreprocAll.String(), "filterbank preprocessing: off, eq, phase, all")
	export := flag.String("export", "", "write the set as manifest plus WAV files into this directory")
	bits := flag.Int("bits", 24, "bit depth of exported WAV files")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: hririnfo [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Prints directions, ITDs and per-band diffuse-field properties of an HRIR set.\n")
		fmt.Fprintf(os.Stderr, "Without -hrir the built-in spherical head model is used.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hririnfo\n")
		fmt.Fprintf(os.Stderr, "  hririnfo -hrir sofa/manifest.json -dirs\n")
		fmt.Fprintf(os.Stderr, "  hririnfo -az-step 5 -el-step 5 -every 8\n")
		fmt.Fprintf(os.Stderr, "  hririnfo -export ./head -bits 24\n")
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	mode, ok := hrtf.ParsePreprocessing(*preproc)
	if !ok {
		fmt.Fprintf(os.Stderr, "error: unknown preprocessing %q\n", *preproc)
		os.Exit(2)
	}

	head := def
	head.AzimuthStep = *azStep
	head.ElevationStep = *elStep
	head.Length = *length
	head.Radius = *radius
	head.SampleRate = *rate

	opts := options{
		path:     *path,
		head:     head,
		every:    max(*every, 1),
		dirs:     *dirs,
		preproc:  mode,
		export:   *export,
		bitDepth: *bits,
	}

	if err := run(opts, os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, w io.Writer, logger *slog.Logger) error {
	set, err := loadSet(opts)
	if err != nil {
		return err
	}
	logger.Debug("hrir set loaded",
		"directions", set.NumDirections(),
		"length", set.Length(),
		"sampleRate", set.SampleRate)

	info, err := describe(set, opts.preproc)
	if err != nil {
		return err
	}

	if err := printSummary(w, info); err != nil {
		return err
	}
	if err := printBands(w, info, opts.every); err != nil {
		return err
	}
	if opts.dirs {
		if err := printDirections(w, set, info.itds); err != nil {
			return err
		}
	}

	if opts.export != "" {
		if err := os.MkdirAll(opts.export, 0o755); err != nil {
			return err
		}
		manifest, err := hrtf.WriteManifest(opts.export, set, opts.bitDepth)
		if err != nil {
			return err
		}
		logger.Info("exported hrir set", "manifest", manifest, "bits", opts.bitDepth)
	}

	return nil
}

func loadSet(opts options) (*hrtf.Set, error) {
	if opts.path != "" {
		return hrtf.LoadManifest(opts.path)
	}
	return opts.head.Load()
}

// setInfo holds the derived properties of an HRIR set.
type setInfo struct {
	directions int
	length     int
	sampleRate float64

	itds           []float64
	minITD, maxITD float64

	freqs     []float64
	coherence []float64
	// level[band][ear] is the diffuse-field RMS magnitude in dB.
	level [][hrtf.NumEars]float64
}

// describe runs the set through the same filterbank the decoder uses.
func describe(set *hrtf.Set, mode hrtf.Preprocessing) (*setInfo, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	itds, err := hrtf.EstimateITDs(set)
	if err != nil {
		return nil, err
	}

	fb, err := hrtf.NewFilterbank(set, binaural.HopSize, itds)
	if err != nil {
		return nil, err
	}

	info := &setInfo{
		directions: set.NumDirections(),
		length:     set.Length(),
		sampleRate: set.SampleRate,
		itds:       itds,
		minITD:     math.Inf(1),
		maxITD:     math.Inf(-1),
		freqs:      make([]float64, fb.Bands()),
		level:      make([][hrtf.NumEars]float64, fb.Bands()),
	}
	for _, itd := range itds {
		info.minITD = math.Min(info.minITD, itd)
		info.maxITD = math.Max(info.maxITD, itd)
	}
	for band := range info.freqs {
		info.freqs[band] = float64(band) * set.SampleRate / float64(2*binaural.HopSize)
	}

	if err := fb.Preprocess(info.freqs, mode); err != nil {
		return nil, err
	}

	var weights []float64
	if set.NumDirections() < hrtf.WeightsMaxDirections {
		weights = hrtf.IntegrationWeights(set.Azimuth, set.Elevation)
	} else {
		weights = hrtf.UniformWeights(set.NumDirections())
	}
	info.coherence = fb.DiffuseCoherence(weights)

	var wsum float64
	for _, w := range weights {
		wsum += w
	}
	for band := range info.level {
		for ear := 0; ear < hrtf.NumEars; ear++ {
			var power float64
			for d := 0; d < fb.Directions(); d++ {
				m := fb.Mag(band, ear, d)
				power += weights[d] * m * m
			}
			info.level[band][ear] = 10 * math.Log10(power/wsum+1e-20)
		}
	}

	return info, nil
}

func printSummary(w io.Writer, info *setInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		key, value string
	}{
		{"Directions", fmt.Sprintf("%d", info.directions)},
		{"Length", fmt.Sprintf("%d samples", info.length)},
		{"Sample rate", fmt.Sprintf("%.0f Hz", info.sampleRate)},
		{"ITD range", fmt.Sprintf("%.1f .. %.1f us", info.minITD*1e6, info.maxITD*1e6)},
		{"Bands", fmt.Sprintf("%d", len(info.freqs))},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", r.key, r.value); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(tw); err != nil {
		return err
	}
	return tw.Flush()
}

func printBands(w io.Writer, info *setInfo, every int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "Band\tFreq [Hz]\tCoherence\tLeft [dB]\tRight [dB]\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(tw, "----\t---------\t---------\t---------\t----------\n"); err != nil {
		return err
	}
	for band := 0; band < len(info.freqs); band += every {
		if _, err := fmt.Fprintf(tw, "%d\t%.1f\t%.4f\t%.2f\t%.2f\n",
			band,
			info.freqs[band],
			info.coherence[band],
			info.level[band][hrtf.Left],
			info.level[band][hrtf.Right],
		); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(tw); err != nil {
		return err
	}
	return tw.Flush()
}

func printDirections(w io.Writer, set *hrtf.Set, itds []float64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "Index\tAzimuth\tElevation\tITD [us]\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(tw, "-----\t-------\t---------\t--------\n"); err != nil {
		return err
	}
	for d := range set.Azimuth {
		if _, err := fmt.Fprintf(tw, "%d\t%.1f\t%.1f\t%.1f\n", d, set.Azimuth[d], set.Elevation[d], itds[d]*1e6); err != nil {
			return err
		}
	}
	return tw.Flush()
}
