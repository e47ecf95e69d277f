package binaural

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cwbudde/algo-binaural/dsp/hrtf"
)

// Option configures a Decoder at construction time.
type Option func(*config) error

type config struct {
	logger    *slog.Logger
	provider  hrtf.Provider
	loader    hrtf.Loader
	residual  bool
	coherence bool
	resample  bool
	decorSeed int64
}

func defaultConfig() config {
	return config{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		provider:  hrtf.DefaultSphericalHead(),
		loader:    hrtf.LoadManifest,
		residual:  true,
		resample:  true,
		decorSeed: 1,
	}
}

// WithLogger sets the logger used by the non-real-time paths.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) error {
		if logger == nil {
			return fmt.Errorf("binaural: logger must not be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithDefaultHRIRs replaces the built-in spherical-head dataset.
func WithDefaultHRIRs(p hrtf.Provider) Option {
	return func(cfg *config) error {
		if p == nil {
			return fmt.Errorf("binaural: default HRIR provider must not be nil")
		}
		cfg.provider = p
		return nil
	}
}

// WithHRIRLoader sets the loader for custom HRIR paths. The default reads
// JSON manifests with hrtf.LoadManifest.
func WithHRIRLoader(l hrtf.Loader) Option {
	return func(cfg *config) error {
		if l == nil {
			return fmt.Errorf("binaural: HRIR loader must not be nil")
		}
		cfg.loader = l
		return nil
	}
}

// WithResidualStream enables the decorrelated residual stream (default on).
// Without it the mixing solver compensates missing energy instead.
func WithResidualStream(enabled bool) Option {
	return func(cfg *config) error {
		cfg.residual = enabled
		return nil
	}
}

// WithDiffuseCoherence shapes the diffuse target covariance with the
// binaural coherence of the HRTF set (default off).
func WithDiffuseCoherence(enabled bool) Option {
	return func(cfg *config) error {
		cfg.coherence = enabled
		return nil
	}
}

// WithDecorrelationSeed seeds the decorrelation delay schedule.
func WithDecorrelationSeed(seed int64) Option {
	return func(cfg *config) error {
		cfg.decorSeed = seed
		return nil
	}
}

// WithHRIRResampling converts HRIRs to the host sample rate before the
// tables are built (default on). When off, band k of the HRIR filterbank is
// used for band k of the host transform regardless of rate.
func WithHRIRResampling(enabled bool) Option {
	return func(cfg *config) error {
		cfg.resample = enabled
		return nil
	}
}
