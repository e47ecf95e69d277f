package core

// ProcessorConfig defines the host-side stream settings of a frame-based
// processor.
type ProcessorConfig struct {
	SampleRate float64
	FrameSize  int
}

// ProcessorOption mutates a ProcessorConfig.
type ProcessorOption func(*ProcessorConfig)

// DefaultProcessorConfig returns 48 kHz with 512-sample frames.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		SampleRate: 48000,
		FrameSize:  512,
	}
}

// WithSampleRate sets the processing sample rate.
func WithSampleRate(sampleRate float64) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if sampleRate > 0 {
			cfg.SampleRate = sampleRate
		}
	}
}

// WithFrameSize sets the processing frame size.
func WithFrameSize(frameSize int) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if frameSize > 0 {
			cfg.FrameSize = frameSize
		}
	}
}

// ApplyProcessorOptions applies zero or more options to the default config.
func ApplyProcessorOptions(opts ...ProcessorOption) ProcessorConfig {
	cfg := DefaultProcessorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Frames returns the number of whole frames needed to cover n samples.
func (c ProcessorConfig) Frames(n int) int {
	if c.FrameSize <= 0 || n <= 0 {
		return 0
	}
	return (n + c.FrameSize - 1) / c.FrameSize
}
