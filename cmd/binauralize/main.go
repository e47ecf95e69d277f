// Command binauralize renders a first-order ambisonic WAV file to binaural
// stereo.
//
// Usage:
//
//	binauralize [flags] -in scene.wav -out binaural.wav
//
// The input needs at least four channels; extra channels are ignored.
// Parameters start from the decoder defaults, then an optional -settings
// file, then any flag given on the command line.
//
// Examples:
//
//	binauralize -in scene.wav -out out.wav
//	binauralize -in scene.wav -out out.wav -order fuma -norm fuma
//	binauralize -in scene.wav -out out.wav -hrir kemar/manifest.json -yaw 90
//	binauralize -in scene.wav -out out.wav -settings preset.json -bits 16 -dither
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/binaural"
	"github.com/cwbudde/algo-binaural/dsp/core"
	"github.com/cwbudde/algo-binaural/dsp/hrtf"
	"github.com/cwbudde/algo-binaural/internal/wavio"
)

const progressInterval = 100 * time.Millisecond

type options struct {
	in, out      string
	settingsIn   string
	settingsOut  string
	bitDepth     int
	dither       bool
	ditherSeed   int64
	gainDB       float64
	keepLatency  bool
	decorSeed    int64
	noResidual   bool
	useCoherence bool
	noResample   bool
	provider     hrtf.Provider

	// overrides run after the settings file.
	overrides []func(*binaural.Decoder)
}

var errUsage = errors.New("usage")

func main() {
	in := flag.String("in", "", "input ambisonic WAV file (4+ channels)")
	out := flag.String("out", "", "output binaural WAV file")
	settingsIn := flag.String("settings", "", "JSON settings file applied before the flags")
	settingsOut := flag.String("save-settings", "", "write the effective settings as JSON")
	bits := flag.Int("bits", 24, "output bit depth: 16 or 24")
	dither := flag.Bool("dither", false, "add TPDF dither before quantisation")
	ditherSeed := flag.Int64("dither-seed", 1, "dither noise seed")
	gain := flag.Float64("gain", 0, "output gain in dB")
	keepLatency := flag.Bool("keep-latency", false, "keep the decoder latency at the start of the output")
	decorSeed := flag.Int64("decor-seed", 1, "decorrelator delay seed")
	noResidual := flag.Bool("no-residual", false, "disable the decorrelated residual stream")
	coherence := flag.Bool("diffuse-coherence", false, "shape the diffuse stream to the HRTF diffuse-field coherence")
	noResample := flag.Bool("no-resample", false, "use HRIRs at their own rate instead of resampling to the input rate")
	verbose := flag.Bool("v", false, "debug logging")

	// Decoder parameters; only flags given on the command line are applied.
	flag.String("hrir", "", "HRIR manifest (JSON); empty uses the built-in head model")
	flag.String("order", "acn", "input channel order: acn, fuma")
	flag.String("norm", "sn3d", "input normalisation: n3d, sn3d, fuma")
	flag.String("preproc", "all", "HRIR preprocessing: off, eq, phase, all")
	flag.Bool("cropac", true, "enable the parametric stage")
	flag.Float64("balance", 1, "diffuse-to-direct balance for all bands, 0..2")
	flag.Float64("averaging", binaural.DefaultCovarianceAveraging, "covariance averaging coefficient, 0..0.999")
	flag.Float64("limit", binaural.DefaultAnalysisLimit, "analysis frequency ceiling in Hz")
	flag.Bool("diffuse-correction", false, "apply diffuse-field covariance correction to the decoder")
	flag.Float64("yaw", 0, "yaw in degrees (enables rotation)")
	flag.Float64("pitch", 0, "pitch in degrees (enables rotation)")
	flag.Float64("roll", 0, "roll in degrees (enables rotation)")
	flag.Bool("rpy", false, "apply rotations in roll-pitch-yaw order")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: binauralize [flags] -in scene.wav -out binaural.wav\n\n")
		fmt.Fprintf(os.Stderr, "Renders a first-order ambisonic recording to binaural stereo.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  binauralize -in scene.wav -out out.wav\n")
		fmt.Fprintf(os.Stderr, "  binauralize -in scene.wav -out out.wav -order fuma -norm fuma\n")
		fmt.Fprintf(os.Stderr, "  binauralize -in scene.wav -out out.wav -hrir kemar/manifest.json -yaw 90\n")
		fmt.Fprintf(os.Stderr, "  binauralize -in scene.wav -out out.wav -settings preset.json -bits 16 -dither\n")
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := options{
		in:           *in,
		out:          *out,
		settingsIn:   *settingsIn,
		settingsOut:  *settingsOut,
		bitDepth:     *bits,
		dither:       *dither,
		ditherSeed:   *ditherSeed,
		gainDB:       *gain,
		keepLatency:  *keepLatency,
		decorSeed:    *decorSeed,
		noResidual:   *noResidual,
		useCoherence: *coherence,
		noResample:   *noResample,
	}

	var parseErr error
	flag.Visit(func(f *flag.Flag) {
		if parseErr != nil {
			return
		}
		set, err := override(f.Name, f.Value.String())
		if err != nil {
			parseErr = err
			return
		}
		if set != nil {
			opts.overrides = append(opts.overrides, set)
		}
	})
	if parseErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", parseErr)
		os.Exit(2)
	}

	if err := run(opts, logger); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// override returns the decoder setter for a command-line flag, or nil for
// flags that are not decoder parameters.
func override(name, value string) (func(*binaural.Decoder), error) {
	switch name {
	case "hrir":
		return func(d *binaural.Decoder) {
			if value == "" {
				d.SetUseDefaultHRIRs(true)
				return
			}
			d.SetHRIRPath(value)
		}, nil
	case "order":
		o, ok := ambisonic.ParseChannelOrder(value)
		if !ok {
			return nil, fmt.Errorf("unknown channel order %q", value)
		}
		return func(d *binaural.Decoder) { d.SetChannelOrder(o) }, nil
	case "norm":
		n, ok := ambisonic.ParseNormalization(value)
		if !ok {
			return nil, fmt.Errorf("unknown normalisation %q", value)
		}
		return func(d *binaural.Decoder) { d.SetNormalization(n) }, nil
	case "preproc":
		p, ok := hrtf.ParsePreprocessing(value)
		if !ok {
			return nil, fmt.Errorf("unknown preprocessing %q", value)
		}
		return func(d *binaural.Decoder) { d.SetHRIRPreprocessing(p) }, nil
	case "cropac", "diffuse-correction", "rpy":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("-%s: %w", name, err)
		}
		switch name {
		case "cropac":
			return func(d *binaural.Decoder) { d.SetEnableCroPaC(b) }, nil
		case "diffuse-correction":
			return func(d *binaural.Decoder) { d.SetDiffuseCorrection(b) }, nil
		default:
			return func(d *binaural.Decoder) { d.SetRollPitchYawOrder(b) }, nil
		}
	case "balance", "averaging", "limit":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("-%s: %w", name, err)
		}
		switch name {
		case "balance":
			return func(d *binaural.Decoder) { d.SetBalanceAllBands(v) }, nil
		case "averaging":
			return func(d *binaural.Decoder) { d.SetCovarianceAveraging(v) }, nil
		default:
			return func(d *binaural.Decoder) { d.SetAnalysisLimit(v) }, nil
		}
	case "yaw", "pitch", "roll":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("-%s: %w", name, err)
		}
		return func(d *binaural.Decoder) {
			d.SetEnableRotation(true)
			switch name {
			case "yaw":
				d.SetYaw(v)
			case "pitch":
				d.SetPitch(v)
			default:
				d.SetRoll(v)
			}
		}, nil
	}
	return nil, nil
}

func run(opts options, logger *slog.Logger) error {
	if opts.in == "" || opts.out == "" {
		return errUsage
	}

	src, err := wavio.ReadFile(opts.in)
	if err != nil {
		return err
	}
	if len(src.Channels) < binaural.NumSH {
		return fmt.Errorf("%s has %d channels, need %d", opts.in, len(src.Channels), binaural.NumSH)
	}
	logger.Info("input",
		"file", opts.in,
		"channels", len(src.Channels),
		"frames", src.Frames(),
		"sampleRate", src.SampleRate)

	d, err := newDecoder(opts, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	cfg := core.ApplyProcessorOptions(
		core.WithSampleRate(float64(src.SampleRate)),
		core.WithFrameSize(d.FrameSize()),
	)
	if err := d.Configure(cfg.SampleRate); err != nil {
		return err
	}
	if err := buildTables(d, logger); err != nil {
		return err
	}

	if opts.settingsOut != "" {
		if err := saveSettings(opts.settingsOut, d.Settings()); err != nil {
			return err
		}
	}

	start := time.Now()
	ears := render(d, src.Channels[:binaural.NumSH], cfg, opts.keepLatency)
	logger.Debug("rendered", "duration", time.Since(start))

	finish(ears, opts)

	dst := &wavio.Audio{SampleRate: src.SampleRate, Channels: ears}
	if err := wavio.WriteFile(opts.out, dst, opts.bitDepth); err != nil {
		return err
	}
	logger.Info("output", "file", opts.out, "frames", dst.Frames(), "bits", opts.bitDepth)

	return nil
}

func newDecoder(opts options, logger *slog.Logger) (*binaural.Decoder, error) {
	decOpts := []binaural.Option{
		binaural.WithLogger(logger),
		binaural.WithResidualStream(!opts.noResidual),
		binaural.WithDiffuseCoherence(opts.useCoherence),
		binaural.WithDecorrelationSeed(opts.decorSeed),
		binaural.WithHRIRResampling(!opts.noResample),
	}
	if opts.provider != nil {
		decOpts = append(decOpts, binaural.WithDefaultHRIRs(opts.provider))
	}

	d, err := binaural.New(decOpts...)
	if err != nil {
		return nil, err
	}

	if opts.settingsIn != "" {
		s, err := loadSettings(opts.settingsIn)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.ApplySettings(s)
	}
	for _, set := range opts.overrides {
		set(d)
	}

	return d, nil
}

// buildTables runs the build in the background and reports its progress.
func buildTables(d *binaural.Decoder, logger *slog.Logger) error {
	done := make(chan error, 1)
	go func() { done <- d.Build() }()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
			logger.Info("decoder ready",
				"directions", d.NumHRIRDirections(),
				"hrirLength", d.HRIRLength(),
				"hrirSampleRate", d.HRIRSampleRate())
			return nil
		case <-ticker.C:
			if text := d.ProgressText(); text != "" && text != last {
				logger.Info("building", "step", text, "progress", fmt.Sprintf("%.0f%%", 100*d.Progress()))
				last = text
			}
		}
	}
}

// render runs every frame of in through d and returns the ear signals.
// Unless keepLatency is set, the output is advanced by the decoder latency
// so it lines up with the input.
func render(d *binaural.Decoder, in [][]float64, cfg core.ProcessorConfig, keepLatency bool) [][]float64 {
	frames := len(in[0])
	skip := 0
	if !keepLatency {
		skip = d.Latency()
	}
	total := frames + skip
	n := cfg.FrameSize

	inBuf := make([][]float64, len(in))
	for ch := range inBuf {
		inBuf[ch] = make([]float64, n)
	}
	outBuf := [][]float64{make([]float64, n), make([]float64, n)}
	ears := [][]float64{make([]float64, 0, total), make([]float64, 0, total)}

	for f := 0; f < cfg.Frames(total); f++ {
		offset := f * n
		for ch := range in {
			if offset < frames {
				core.CopyInto(inBuf[ch], in[ch][offset:])
			} else {
				core.Zero(inBuf[ch])
			}
		}
		d.Process(inBuf, outBuf, n)
		for ear := range ears {
			ears[ear] = append(ears[ear], outBuf[ear]...)
		}
	}

	for ear := range ears {
		ears[ear] = ears[ear][skip:total]
	}
	return ears
}

// finish applies the output gain and optional dither.
func finish(ears [][]float64, opts options) {
	if opts.gainDB != 0 {
		g := core.DBToLinear(opts.gainDB)
		for _, ch := range ears {
			vecmath.ScaleBlockInPlace(ch, g)
		}
	}
	if opts.dither {
		state := vecmath.NewDitherState(opts.ditherSeed)
		lsb := 1 / float64(int(1)<<(opts.bitDepth-1))
		for _, ch := range ears {
			vecmath.AddDitherTPDF(ch, lsb, state)
		}
	}
}

func loadSettings(path string) (binaural.Settings, error) {
	var s binaural.Settings
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func saveSettings(path string, s binaural.Settings) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
