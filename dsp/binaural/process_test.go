package binaural

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/mixing"
	"github.com/cwbudde/algo-binaural/dsp/stft"
	"github.com/cwbudde/algo-binaural/internal/testutil"
)

func makeOutputs(n, length int, fill float64) [][]float64 {
	out := make([][]float64, n)
	for ch := range out {
		out[ch] = make([]float64, length)
		for i := range out[ch] {
			out[ch][i] = fill
		}
	}
	return out
}

// render processes whole frames of in and returns the concatenated ears.
func render(d *Decoder, in [][]float64) [][]float64 {
	frames := len(in[0]) / FrameSize
	out := makeOutputs(NumEars, frames*FrameSize, 0)
	buf := makeOutputs(NumEars, FrameSize, 0)
	for f := 0; f < frames; f++ {
		d.Process(testutil.Block(in, f, FrameSize), buf, FrameSize)
		for ear := range buf {
			copy(out[ear][f*FrameSize:], buf[ear])
		}
	}
	return out
}

// linearDecode renders ACN/SN3D input through the built per-band decoders
// alone, with no covariance matching.
func linearDecode(t *testing.T, d *Decoder, in [][]float64) [][]float64 {
	t.Helper()
	tables := d.tables.Load()
	if tables == nil {
		t.Fatal("decoder has no tables")
	}
	tf, err := stft.New(HopSize, NumSH, NumEars)
	if err != nil {
		t.Fatalf("stft.New() error = %v", err)
	}

	frames := len(in[0]) / FrameSize
	out := makeOutputs(NumEars, frames*FrameSize, 0)
	bands := make([]complex128, NumBands)
	x := make([][NumSH]complex128, NumBands)
	y := make([][NumEars][]complex128, TimeSlots)
	for slot := range y {
		for ear := range y[slot] {
			y[slot][ear] = make([]complex128, NumBands)
		}
	}

	for f := 0; f < frames; f++ {
		block := makeOutputs(NumSH, FrameSize, 0)
		for ch := range block {
			copy(block[ch], in[ch][f*FrameSize:(f+1)*FrameSize])
		}
		ambisonic.ToInternal(block, ambisonic.OrderACN, ambisonic.NormSN3D)

		for slot := 0; slot < TimeSlots; slot++ {
			for ch := 0; ch < NumSH; ch++ {
				if err := tf.Analyze(ch, block[ch][slot*HopSize:(slot+1)*HopSize], bands); err != nil {
					t.Fatalf("Analyze() error = %v", err)
				}
				for band, v := range bands {
					x[band][ch] = v
				}
			}
			for band := range x {
				v := tables.decoders[band].Apply(x[band])
				y[slot][0][band], y[slot][1][band] = v[0], v[1]
			}
			for ear := 0; ear < NumEars; ear++ {
				start := f*FrameSize + slot*HopSize
				if err := tf.Synthesize(ear, y[slot][ear], out[ear][start:start+HopSize]); err != nil {
					t.Fatalf("Synthesize() error = %v", err)
				}
			}
		}
	}
	return out
}

func requireZero(t *testing.T, outputs [][]float64) {
	t.Helper()
	for ch, out := range outputs {
		for i, v := range out {
			if v != 0 {
				t.Fatalf("output %d[%d] = %v, want 0", ch, i, v)
			}
		}
	}
}

func TestProcessSilencesWhenNotReady(t *testing.T) {
	d := newTestDecoder(t)
	in := makeOutputs(NumSH, FrameSize, 0.5)

	out := makeOutputs(3, FrameSize, 1)
	d.Process(in, out, FrameSize)
	requireZero(t, out)
}

func TestProcessWrongFrameSizeZeroesOutputs(t *testing.T) {
	d := newReadyDecoder(t)
	in := makeOutputs(NumSH, FrameSize, 0.5)

	out := makeOutputs(2, 700, 1)
	d.Process(in, out, 256)
	requireZero(t, out)
}

func TestProcessSilentInput(t *testing.T) {
	d := newReadyDecoder(t)
	in := makeOutputs(NumSH, FrameSize, 0)

	for f := 0; f < 6; f++ {
		out := makeOutputs(3, FrameSize, 1)
		d.Process(in, out, FrameSize)
		requireZero(t, out)
	}

	// Missing input channels count as silence.
	out := makeOutputs(2, FrameSize, 1)
	d.Process(nil, out, FrameSize)
	requireZero(t, out)
}

func TestCroPaCDisabledIgnoresBalanceAndLimit(t *testing.T) {
	noise := testutil.DeterministicNoise(3, 0.5, 8*FrameSize)
	in := testutil.PlaneWaveSN3D(noise, 40, 10)
	for i := range in[0] {
		in[0][i] += 0.3 * noise[len(noise)-1-i]
	}

	a := newReadyDecoder(t)
	b := newReadyDecoder(t)
	a.SetEnableCroPaC(false)
	b.SetEnableCroPaC(false)
	b.SetBalanceAllBands(0.2)
	b.SetAnalysisLimit(5000)

	outA, outB := render(a, in), render(b, in)
	for ear := 0; ear < NumEars; ear++ {
		if diff, _ := testutil.MaxAbsDiff(outA[ear], outB[ear]); diff != 0 {
			t.Fatalf("ear %d differs by %v", ear, diff)
		}
		testutil.RequireFinite(t, outA[ear])
	}

	testutil.RequireChannelsNearlyEqual(t, outA, linearDecode(t, a, in), 1e-12)

	c := newReadyDecoder(t)
	outC := render(c, in)
	if diff, _ := testutil.MaxAbsDiff(outA[0], outC[0]); diff == 0 {
		t.Fatal("parametric output equals the linear decode")
	}
}

func TestReenablingCroPaCResumesFromCurrentState(t *testing.T) {
	noise := testutil.DeterministicNoise(9, 0.5, 10*FrameSize)
	in := testutil.PlaneWaveSN3D(noise, -30, 15)
	for i := range in[1] {
		in[1][i] += 0.25 * noise[(i*5)%len(noise)]
	}

	toggled := newReadyDecoder(t)
	always := newReadyDecoder(t)
	toggled.SetEnableCroPaC(false)

	buf := makeOutputs(NumEars, FrameSize, 0)
	frames := len(noise) / FrameSize
	for f := 0; f < frames; f++ {
		if f == frames/2 {
			toggled.SetEnableCroPaC(true)
		}
		block := testutil.Block(in, f, FrameSize)
		toggled.Process(block, buf, FrameSize)
		got := [][]float64{append([]float64(nil), buf[0]...), append([]float64(nil), buf[1]...)}
		always.Process(block, buf, FrameSize)
		if f < frames/2 {
			continue
		}
		for ear := 0; ear < NumEars; ear++ {
			if diff, _ := testutil.MaxAbsDiff(got[ear], buf[ear]); diff != 0 {
				t.Fatalf("frame %d ear %d differs by %v", f, ear, diff)
			}
		}
	}
}

func TestPlaneWaveFromLeftIsLouderLeft(t *testing.T) {
	sine := testutil.DeterministicSine(3000, 48000, 0.5, 12*FrameSize)
	in := testutil.PlaneWaveSN3D(sine, 90, 0)

	for _, cropac := range []bool{true, false} {
		d := newReadyDecoder(t)
		d.SetEnableCroPaC(cropac)

		out := render(d, in)
		tail := 6 * FrameSize
		left, right := testutil.RMS(out[0][tail:]), testutil.RMS(out[1][tail:])
		if left < 1.5*right || left < 1e-3 {
			t.Fatalf("cropac=%v: left %v, right %v", cropac, left, right)
		}
	}
}

func TestProcessFuMaInputMatchesACN(t *testing.T) {
	noise := testutil.DeterministicNoise(11, 0.5, 6*FrameSize)
	acn := testutil.PlaneWaveN3D(noise, -60, 20)

	// FuMa order W, X, Y, Z with W scaled by 1/√2 and dipoles by 1/√3.
	fuma := [][]float64{
		make([]float64, len(noise)), make([]float64, len(noise)),
		make([]float64, len(noise)), make([]float64, len(noise)),
	}
	for i := range noise {
		fuma[0][i] = acn[0][i] / math.Sqrt2
		fuma[1][i] = acn[3][i] / math.Sqrt(3)
		fuma[2][i] = acn[1][i] / math.Sqrt(3)
		fuma[3][i] = acn[2][i] / math.Sqrt(3)
	}

	// The conversion differs from ACN by rounding only. The linear decode
	// passes that through; covariance matching may amplify it by the
	// conditioning of the rank-1 input covariance.
	for _, tc := range []struct {
		cropac bool
		tol    float64
	}{
		{cropac: false, tol: 1e-12},
		{cropac: true, tol: 1e-7},
	} {
		a := newReadyDecoder(t)
		a.SetNormalization(ambisonic.NormN3D)
		a.SetEnableCroPaC(tc.cropac)
		b := newReadyDecoder(t)
		b.SetChannelOrder(ambisonic.OrderFuMa)
		b.SetNormalization(ambisonic.NormFuMa)
		b.SetEnableCroPaC(tc.cropac)

		testutil.RequireChannelsNearlyEqual(t, render(b, fuma), render(a, acn), tc.tol)
	}
}

func TestResidualAndCoherenceVariants(t *testing.T) {
	noise := testutil.DeterministicNoise(5, 0.5, 8*FrameSize)
	in := testutil.PlaneWaveSN3D(noise, 120, -30)
	for i := range in[2] {
		in[2][i] += 0.2 * noise[(i*7)%len(noise)]
	}

	variants := []struct {
		name string
		opts []Option
	}{
		{name: "residual", opts: nil},
		{name: "energy compensation", opts: []Option{WithResidualStream(false)}},
		{name: "diffuse coherence", opts: []Option{WithDiffuseCoherence(true)}},
	}
	for _, v := range variants {
		d := newReadyDecoder(t, v.opts...)
		d.SetDiffuseCorrection(true)
		if err := d.Build(); err != nil {
			t.Fatalf("%s: Build() error = %v", v.name, err)
		}
		out := render(d, in)
		for ear := range out {
			testutil.RequireFinite(t, out[ear])
			if testutil.RMS(out[ear][4*FrameSize:]) == 0 {
				t.Fatalf("%s: ear %d silent", v.name, ear)
			}
		}
	}
}

func TestRotationRecomputedWhenStale(t *testing.T) {
	d := newReadyDecoder(t)
	d.SetEnableRotation(true)
	d.SetYaw(90)

	in := makeOutputs(NumSH, FrameSize, 0)
	out := makeOutputs(NumEars, FrameSize, 0)
	d.Process(in, out, FrameSize)

	if d.params.rotationStale.Load() {
		t.Fatal("rotation still stale after a frame")
	}
	want := ambisonic.SHRotation(ambisonic.YawPitchRoll(math.Pi/2, 0, 0, false))
	got := d.frame.Load().rot
	for i := range want {
		for j := range want[i] {
			if math.Abs(got[i][j]-want[i][j]) > 1e-12 {
				t.Fatalf("rot[%d][%d] = %v, want %v", i, j, got[i][j], want[i][j])
			}
		}
	}
}

func TestRotationFollowsHeadTurn(t *testing.T) {
	// A frontal source with the head turned 90° to the left lands on the
	// right ear.
	sine := testutil.DeterministicSine(3000, 48000, 0.5, 10*FrameSize)
	in := testutil.PlaneWaveSN3D(sine, 0, 0)

	d := newReadyDecoder(t)
	d.SetEnableRotation(true)
	d.SetYaw(90)

	out := render(d, in)
	tail := 5 * FrameSize
	if left, right := testutil.RMS(out[0][tail:]), testutil.RMS(out[1][tail:]); right < 1.5*left {
		t.Fatalf("left %v, right %v", left, right)
	}
}

func TestCovarianceAveragingConverges(t *testing.T) {
	fs, err := newFrameState()
	if err != nil {
		t.Fatalf("newFrameState() error = %v", err)
	}

	x := shSlot{complex(0.5, 0.1), complex(-0.2, 0.3), 0.7, complex(0, -0.4)}
	p := mixing.Vector{complex(0.3, -0.2), complex(0.1, 0.6)}
	for slot := 0; slot < TimeSlots; slot++ {
		fs.x[7][slot] = x
		fs.proto[7][slot] = p
	}
	for i := 0; i < 120; i++ {
		fs.updateCovariances(0.75)
	}

	for i := 0; i < NumSH; i++ {
		for j := 0; j < NumSH; j++ {
			want := TimeSlots * x[i] * cmplx.Conj(x[j])
			if cmplx.Abs(fs.cx[7][i][j]-want) > 1e-9 {
				t.Fatalf("cx[%d][%d] = %v, want %v", i, j, fs.cx[7][i][j], want)
			}
		}
	}
	for i := 0; i < NumEars; i++ {
		for j := 0; j < NumEars; j++ {
			want := TimeSlots * p[i] * cmplx.Conj(p[j])
			if cmplx.Abs(fs.cproto[7][i][j]-want) > 1e-9 {
				t.Fatalf("cproto[%d][%d] = %v, want %v", i, j, fs.cproto[7][i][j], want)
			}
		}
	}
}

func TestMixingInterpolationIsContinuous(t *testing.T) {
	fs, err := newFrameState()
	if err != nil {
		t.Fatalf("newFrameState() error = %v", err)
	}
	tables := &tableSet{residual: false}

	v := mixing.Vector{1, complex(0, 1)}
	for band := 0; band < NumBands; band++ {
		fs.curM[band] = mixing.Identity()
		fs.newM[band] = mixing.Identity().Scale(3)
		for slot := 0; slot < TimeSlots; slot++ {
			fs.proto[band][slot] = v
		}
	}

	fs.mix(tables)
	want := []float64{1.5, 2, 2.5, 3}
	for slot, w := range want {
		if got := fs.bin[10][slot][0]; cmplx.Abs(got-complex(w, 0)) > 1e-12 {
			t.Fatalf("slot %d gain = %v, want %v", slot, got, w)
		}
	}

	// The next frame starts where the previous one ended.
	fs.mix(tables)
	for slot := 0; slot < TimeSlots; slot++ {
		if got := fs.bin[10][slot][1]; cmplx.Abs(got-complex(0, 3)) > 1e-12 {
			t.Fatalf("next frame slot %d = %v, want 3i", slot, got)
		}
	}
}

func TestMatchEnergy(t *testing.T) {
	fs, err := newFrameState()
	if err != nil {
		t.Fatalf("newFrameState() error = %v", err)
	}
	for c := 0; c < NumSH; c++ {
		fs.cx[3][c][c] = 2
	}
	fs.cproto[3] = mixing.Identity().Scale(0.5)
	fs.newMr[3] = mixing.RealMatrix{{1, 1}, {1, 1}}

	fs.matchEnergy(3)
	g := math.Sqrt(2 / (0.5 + protoFloor))
	if math.Abs(real(fs.newM[3][0][0])-g) > 1e-12 || fs.newM[3][0][1] != 0 || fs.newMr[3] != (mixing.RealMatrix{}) {
		t.Fatalf("newM = %v, newMr = %v", fs.newM[3], fs.newMr[3])
	}
}

func TestShapeCoherenceIsHermitian(t *testing.T) {
	cdiff := mixing.Matrix{{2, complex(0.5, 0.2)}, {complex(0.5, -0.2), 1}}
	cproto := mixing.Matrix{{3, 0}, {0, 1}}

	got := shapeCoherence(cdiff, cproto, 0.4)
	h := got.H()
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if cmplx.Abs(got[i][j]-h[i][j]) > 1e-12 {
				t.Fatalf("not Hermitian: %v", got)
			}
		}
	}
	if real(got[0][0]) <= real(got[1][1]) {
		t.Fatalf("ear split not kept: %v", got)
	}
}

func TestProcessCopiesShortInputs(t *testing.T) {
	d := newReadyDecoder(t)
	in := [][]float64{testutil.DeterministicNoise(1, 0.5, 100)}
	out := makeOutputs(NumEars, FrameSize, 0)
	for f := 0; f < 3; f++ {
		d.Process(in, out, FrameSize)
	}
	for ear := range out {
		testutil.RequireFinite(t, out[ear])
	}
}
