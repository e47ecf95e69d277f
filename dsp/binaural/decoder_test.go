package binaural

import (
	"errors"
	"math/cmplx"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/hrtf"
)

// testHead is a coarse spherical head that keeps builds fast.
func testHead() hrtf.SphericalHead {
	h := hrtf.DefaultSphericalHead()
	h.AzimuthStep = 20
	h.ElevationStep = 20
	return h
}

const testHeadDirections = 8*18 + 2

func newTestDecoder(t *testing.T, opts ...Option) *Decoder {
	t.Helper()
	d, err := New(append([]Option{WithDefaultHRIRs(testHead())}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newReadyDecoder(t *testing.T, opts ...Option) *Decoder {
	t.Helper()
	d := newTestDecoder(t, opts...)
	if err := d.Configure(48000); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := d.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if d.State() != StateReady {
		t.Fatalf("State() = %v, want ready", d.State())
	}
	return d
}

func TestNewDefaults(t *testing.T) {
	d := newTestDecoder(t)

	if d.State() != StateUninitialized {
		t.Fatalf("State() = %v, want uninitialized", d.State())
	}
	if !d.EnableCroPaC() || d.EnableRotation() || d.DiffuseCorrection() {
		t.Fatal("unexpected default toggles")
	}
	if !d.UseDefaultHRIRs() || d.HRIRPath() != "" {
		t.Fatal("default HRIRs not selected")
	}
	if d.ChannelOrder() != ambisonic.OrderACN || d.Normalization() != ambisonic.NormSN3D {
		t.Fatalf("convention = %v/%v, want acn/sn3d", d.ChannelOrder(), d.Normalization())
	}
	if d.HRIRPreprocessing() != hrtf.PreprocAll {
		t.Fatalf("HRIRPreprocessing() = %v, want all", d.HRIRPreprocessing())
	}
	if d.CovarianceAveraging() != DefaultCovarianceAveraging || d.AnalysisLimit() != DefaultAnalysisLimit {
		t.Fatalf("averaging/limit = %v/%v", d.CovarianceAveraging(), d.AnalysisLimit())
	}
	for band := 0; band < NumBands; band++ {
		if d.Balance(band) != 1 {
			t.Fatalf("Balance(%d) = %v, want 1", band, d.Balance(band))
		}
	}

	if d.Latency() != HopSize || d.Bands() != 129 || d.FrameSize() != 512 {
		t.Fatalf("latency/bands/frame = %d/%d/%d", d.Latency(), d.Bands(), d.FrameSize())
	}
	if d.NumSHRequired() != 4 || d.NumEars() != 2 {
		t.Fatalf("channels = %d/%d", d.NumSHRequired(), d.NumEars())
	}
	if d.SampleRate() != 48000 {
		t.Fatalf("SampleRate() = %v, want 48000", d.SampleRate())
	}
	if f := d.BandFrequencies(); len(f) != NumBands || f[1] != 187.5 || f[NumBands-1] != 24000 {
		t.Fatalf("BandFrequencies() = %v", f)
	}
	if d.NumHRIRDirections() != 0 || d.HRIRLength() != 0 || d.HRIRSampleRate() != 0 {
		t.Fatal("HRIR info before build should be zero")
	}
}

func TestNewRejectsNilOptions(t *testing.T) {
	if _, err := New(WithLogger(nil)); err == nil {
		t.Fatal("expected error for nil logger")
	}
	if _, err := New(WithDefaultHRIRs(nil)); err == nil {
		t.Fatal("expected error for nil provider")
	}
	if _, err := New(WithHRIRLoader(nil)); err == nil {
		t.Fatal("expected error for nil loader")
	}
}

func TestBuildLifecycle(t *testing.T) {
	d := newTestDecoder(t)

	if err := d.Configure(0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if err := d.Configure(48000); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if d.State() != StateUninitialized {
		t.Fatalf("State() after Configure = %v", d.State())
	}

	if err := d.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if d.State() != StateReady || d.Progress() != 1 || d.ProgressText() != "Done!" {
		t.Fatalf("after build: %v %v %q", d.State(), d.Progress(), d.ProgressText())
	}
	if d.NumHRIRDirections() != testHeadDirections || d.HRIRLength() != 256 || d.HRIRSampleRate() != 48000 {
		t.Fatalf("HRIR info = %d/%d/%v", d.NumHRIRDirections(), d.HRIRLength(), d.HRIRSampleRate())
	}

	// Building a ready decoder is a no-op.
	if err := d.Build(); err != nil || d.State() != StateReady {
		t.Fatalf("second Build() = %v, state %v", err, d.State())
	}

	// Same rate keeps the tables.
	if err := d.Configure(48000); err != nil || d.State() != StateReady {
		t.Fatalf("Configure(same) = %v, state %v", err, d.State())
	}
	if err := d.Configure(44100); err != nil || d.State() != StateUninitialized {
		t.Fatalf("Configure(new rate) = %v, state %v", err, d.State())
	}
	if err := d.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if d.BandFrequencies()[128] != 22050 {
		t.Fatalf("top band = %v, want 22050", d.BandFrequencies()[128])
	}

	d.RequestRebuild()
	if d.State() != StateUninitialized {
		t.Fatalf("State() after RequestRebuild = %v", d.State())
	}
}

func TestHRIRResamplingToHostRate(t *testing.T) {
	build := func(opts ...Option) *tableSet {
		d := newTestDecoder(t, opts...)
		if err := d.Configure(44100); err != nil {
			t.Fatalf("Configure() error = %v", err)
		}
		if err := d.Build(); err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		// The reported set is the one that was loaded.
		if d.HRIRSampleRate() != 48000 || d.HRIRLength() != 256 {
			t.Fatalf("HRIR info = %v/%d, want 48000/256", d.HRIRSampleRate(), d.HRIRLength())
		}
		return d.tables.Load()
	}

	resampled := build()
	indexed := build(WithHRIRResampling(false))

	if resampled.fb.Bands() != NumBands || indexed.fb.Bands() != NumBands {
		t.Fatalf("bands = %d/%d", resampled.fb.Bands(), indexed.fb.Bands())
	}
	if resampled.fb.At(100, 0, 1) == indexed.fb.At(100, 0, 1) {
		t.Fatal("resampling had no effect on the filterbank")
	}
	for band := 0; band < NumBands; band++ {
		for dir := 0; dir < resampled.fb.Directions(); dir++ {
			if cmplx.IsNaN(resampled.fb.At(band, 0, dir)) {
				t.Fatalf("NaN coefficient at band %d dir %d", band, dir)
			}
		}
	}
}

func TestRebuildingSetters(t *testing.T) {
	d := newReadyDecoder(t)

	d.SetDiffuseCorrection(false)
	if d.State() != StateReady {
		t.Fatal("unchanged diffuse correction invalidated tables")
	}
	d.SetDiffuseCorrection(true)
	if d.State() != StateUninitialized {
		t.Fatal("diffuse correction change did not invalidate tables")
	}
	if err := d.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	d.SetHRIRPreprocessing(hrtf.PreprocAll)
	if d.State() != StateReady {
		t.Fatal("unchanged preprocessing invalidated tables")
	}
	d.SetHRIRPreprocessing(hrtf.PreprocEQ)
	if d.State() != StateUninitialized {
		t.Fatal("preprocessing change did not invalidate tables")
	}
	if err := d.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Runtime parameters never touch the tables.
	d.SetBalanceAllBands(0.5)
	d.SetAnalysisLimit(8000)
	d.SetCovarianceAveraging(0.5)
	d.SetYaw(45)
	d.SetChannelOrder(ambisonic.OrderFuMa)
	if d.State() != StateReady {
		t.Fatal("runtime parameter invalidated tables")
	}
}

// blockingProvider blocks its first Load until released.
type blockingProvider struct {
	inner   hrtf.Provider
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (p *blockingProvider) Load() (*hrtf.Set, error) {
	if p.calls.Add(1) == 1 {
		close(p.started)
		<-p.release
	}
	return p.inner.Load()
}

func TestRebuildDuringBuildRunsOnce(t *testing.T) {
	p := &blockingProvider{
		inner:   testHead(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	d := newTestDecoder(t, WithDefaultHRIRs(p))

	done := make(chan error, 1)
	go func() { done <- d.Build() }()

	select {
	case <-p.started:
	case <-time.After(10 * time.Second):
		t.Fatal("build did not start")
	}
	if d.State() != StateBuilding {
		t.Fatalf("State() during build = %v", d.State())
	}

	d.RequestRebuild()
	d.RequestRebuild()
	if d.State() != StateBuilding {
		t.Fatalf("State() after request = %v, want building", d.State())
	}
	close(p.release)

	if err := <-done; err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("provider loads = %d, want 2", got)
	}
	if d.State() != StateReady {
		t.Fatalf("State() = %v, want ready", d.State())
	}
}

func TestInvalidHRIRPathFallsBack(t *testing.T) {
	d := newTestDecoder(t)
	d.SetHRIRPath("/nonexistent/hrirs.json")
	if d.UseDefaultHRIRs() {
		t.Fatal("SetHRIRPath did not select the custom set")
	}

	if err := d.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !d.UseDefaultHRIRs() {
		t.Fatal("flag did not revert to default HRIRs")
	}
	if d.State() != StateReady || d.NumHRIRDirections() != testHeadDirections {
		t.Fatalf("state %v, directions %d", d.State(), d.NumHRIRDirections())
	}
	if d.HRIRPath() != "/nonexistent/hrirs.json" {
		t.Fatalf("HRIRPath() = %q", d.HRIRPath())
	}
}

func TestCustomHRIRLoader(t *testing.T) {
	var gotPath string
	loader := func(path string) (*hrtf.Set, error) {
		gotPath = path
		h := hrtf.DefaultSphericalHead()
		h.AzimuthStep = 30
		h.ElevationStep = 30
		return h.Load()
	}
	d := newTestDecoder(t, WithHRIRLoader(loader))
	d.SetHRIRPath("custom.json")

	if err := d.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if gotPath != "custom.json" {
		t.Fatalf("loader path = %q", gotPath)
	}
	if d.UseDefaultHRIRs() || d.NumHRIRDirections() != 5*12+2 {
		t.Fatalf("default=%v directions=%d", d.UseDefaultHRIRs(), d.NumHRIRDirections())
	}

	failing := newTestDecoder(t, WithHRIRLoader(func(string) (*hrtf.Set, error) {
		return nil, hrtf.ErrManifest
	}))
	failing.SetHRIRPath("broken.json")
	if err := failing.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !failing.UseDefaultHRIRs() {
		t.Fatal("failing loader did not fall back")
	}
}

type errProvider struct{}

func (errProvider) Load() (*hrtf.Set, error) { return nil, errors.New("no data") }

func TestBuildFailsWithoutDefaultHRIRs(t *testing.T) {
	d := newTestDecoder(t, WithDefaultHRIRs(errProvider{}))
	if err := d.Build(); err == nil {
		t.Fatal("expected error")
	}
	if d.State() != StateUninitialized {
		t.Fatalf("State() = %v, want uninitialized", d.State())
	}
}

func TestCloseStopsDecoder(t *testing.T) {
	d := newReadyDecoder(t)
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := d.Build(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Build() after Close = %v, want ErrClosed", err)
	}
	if d.State() != StateUninitialized || d.NumHRIRDirections() != 0 {
		t.Fatalf("state %v, directions %d", d.State(), d.NumHRIRDirections())
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUninitialized: "uninitialized",
		StateBuilding:      "building",
		StateReady:         "ready",
		State(42):          "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
