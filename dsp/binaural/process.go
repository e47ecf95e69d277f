package binaural

import (
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/core"
	"github.com/cwbudde/algo-binaural/dsp/hrtf"
	"github.com/cwbudde/algo-binaural/dsp/mixing"
)

var sqrt3 = math.Sqrt(3)

// Process renders one frame. inputs holds up to four ambisonic channels
// (missing ones are treated as silent) and outputs receives the left and
// right ear; extra output channels are zeroed. Unless nSamples equals
// FrameSize and the decoder is ready, every output slice is zeroed.
//
// Process never blocks and is the only method safe to call from the audio
// thread.
func (d *Decoder) Process(inputs, outputs [][]float64, nSamples int) {
	d.procOngoing.Store(true)
	defer d.procOngoing.Store(false)

	t := d.tables.Load()
	fs := d.frame.Load()
	if nSamples != FrameSize || State(d.state.Load()) != StateReady || t == nil || fs == nil {
		silence(outputs)
		return
	}

	if !fs.process(t, &d.params, inputs) {
		silence(outputs)
		return
	}

	for ch, out := range outputs {
		if ch < NumEars {
			core.CopyInto(out, fs.out[ch])
		} else {
			core.Zero(out)
		}
	}
}

func silence(outputs [][]float64) {
	for _, out := range outputs {
		core.Zero(out)
	}
}

func (fs *frameState) process(t *tableSet, p *params, inputs [][]float64) bool {
	for ch := 0; ch < NumSH; ch++ {
		if ch < len(inputs) {
			core.CopyInto(fs.in[ch], inputs[ch])
		} else {
			core.Zero(fs.in[ch])
		}
	}
	ambisonic.ToInternal(fs.in, ambisonic.ChannelOrder(p.order.Load()), ambisonic.Normalization(p.norm.Load()))

	for slot := 0; slot < TimeSlots; slot++ {
		for ch := 0; ch < NumSH; ch++ {
			if err := fs.tf.Analyze(ch, fs.in[ch][slot*HopSize:(slot+1)*HopSize], fs.bandBuf); err != nil {
				return false
			}
			for band, v := range fs.bandBuf {
				fs.x[band][slot][ch] = v
			}
		}
	}

	if p.enableRotation.Load() {
		if p.rotationStale.Swap(false) {
			fs.rot = p.rotation()
		}
		for band := range fs.x {
			for slot := range fs.x[band] {
				fs.x[band][slot] = fs.rot.ApplyComplex(fs.x[band][slot])
			}
		}
	}

	fs.decode(t)

	averaging := p.averaging.Load()
	fs.updateCovariances(averaging)

	// The mixing matrices track the input even while the linear decode is
	// output, so re-enabling interpolates from current values.
	limit := p.analysisLimit.Load()
	fs.ensureGrid(t.grid.Len())
	for band := 0; band < NumBands; band++ {
		if t.freqs[band] < limit {
			fs.analyse(t, band, p.balance[band].Load(), averaging)
			fs.solve(t, band)
		} else {
			fs.matchEnergy(band)
		}
	}
	if t.residual {
		fs.shapeTransients()
	}
	fs.mix(t)
	if !p.enableCroPaC.Load() {
		fs.bin = fs.proto
	}

	for slot := 0; slot < TimeSlots; slot++ {
		for ear := 0; ear < NumEars; ear++ {
			for band := range fs.bandBuf {
				fs.bandBuf[band] = fs.bin[band][slot][ear]
			}
			if err := fs.tf.Synthesize(ear, fs.bandBuf, fs.out[ear][slot*HopSize:(slot+1)*HopSize]); err != nil {
				return false
			}
		}
	}

	return true
}

// decode applies the linear decoder and runs the decorrelation delays: the
// delayed slots are read before the new prototype slots are pushed.
func (fs *frameState) decode(t *tableSet) {
	for band := 0; band < NumBands; band++ {
		dec := &t.decoders[band]
		for slot := 0; slot < TimeSlots; slot++ {
			fs.proto[band][slot] = dec.Apply(fs.x[band][slot])
		}
		if !t.residual {
			continue
		}
		for ear := 0; ear < NumEars; ear++ {
			line := fs.lines[band][ear]
			delay := t.delays[band][ear]
			for slot := 0; slot < TimeSlots; slot++ {
				fs.decorr[band][slot][ear] = line.Read(TimeSlots - slot + delay)
			}
			for slot := 0; slot < TimeSlots; slot++ {
				line.Write(fs.proto[band][slot][ear])
			}
		}
	}
}

// updateCovariances smooths the input and prototype covariances:
// C = a·C + (1−a)·X·Xᴴ.
func (fs *frameState) updateCovariances(a float64) {
	ca, cb := complex(a, 0), complex(1-a, 0)
	for band := 0; band < NumBands; band++ {
		var cx [NumSH][NumSH]complex128
		for slot := 0; slot < TimeSlots; slot++ {
			x := &fs.x[band][slot]
			for i := 0; i < NumSH; i++ {
				for j := 0; j < NumSH; j++ {
					cx[i][j] += x[i] * complex(real(x[j]), -imag(x[j]))
				}
			}
		}
		for i := 0; i < NumSH; i++ {
			for j := 0; j < NumSH; j++ {
				fs.cx[band][i][j] = ca*fs.cx[band][i][j] + cb*cx[i][j]
			}
		}

		cp := mixing.Outer(fs.proto[band][:])
		fs.cproto[band] = fs.cproto[band].Scale(a).Add(cp.Scale(1 - a))
	}
}

// steer returns the scanning direction with the largest beam power.
func (fs *frameState) steer(g *ambisonic.Grid, x *shSlot) int {
	vecmath.ScaleBlock(fs.re, g.SH[0], real(x[0]))
	vecmath.ScaleBlock(fs.im, g.SH[0], imag(x[0]))
	for c := 1; c < NumSH; c++ {
		vecmath.ScaleBlock(fs.tmp, g.SH[c], real(x[c]))
		vecmath.AddBlockInPlace(fs.re, fs.tmp)
		vecmath.ScaleBlock(fs.tmp, g.SH[c], imag(x[c]))
		vecmath.AddBlockInPlace(fs.im, fs.tmp)
	}
	vecmath.Power(fs.power, fs.re, fs.im)

	best := 0
	for i, p := range fs.power {
		if p > fs.power[best] {
			best = i
		}
	}
	return best
}

// analyse builds the target covariance of one band from its direct and
// diffuse parts and smooths it into cy.
func (fs *frameState) analyse(t *tableSet, band int, balance, a float64) {
	var direct, diffuse [TimeSlots]mixing.Vector
	dec := &t.decoders[band]

	for slot := 0; slot < TimeSlots; slot++ {
		x := &fs.x[band][slot]
		g := fs.steer(t.grid, x)

		r := t.grid.Align[g].ApplyComplex(*x)
		energy := sqAbs(x[0]) + (sqAbs(x[1])+sqAbs(x[2])+sqAbs(x[3]))/3 + energyFloor
		cross := complex(real(r[0]), -imag(r[0])) * r[3] / complex(sqrt3, 0)
		gain := math.Max(0, 2*real(cross)/energy)

		y := t.grid.Vector(g)
		var beam complex128
		for c := 0; c < NumSH; c++ {
			beam += complex(y[c]/NumSH, 0) * x[c]
		}
		gb := beam * complex(gain, 0)

		h := hrtf.Interpolate(t.fb, t.interp, band, t.freqs[band], t.grid.Azimuth[g], t.grid.Elevation[g])
		direct[slot] = mixing.Vector{h[hrtf.Left] * gb, h[hrtf.Right] * gb}

		var rest shSlot
		for c := 0; c < NumSH; c++ {
			rest[c] = x[c] - complex(y[c], 0)*gb
		}
		diffuse[slot] = dec.Apply(rest)
	}

	dirScale, diffScale := balanceScales(balance)
	cdir := mixing.Outer(direct[:]).Scale(dirScale)
	cdiff := mixing.Outer(diffuse[:]).Scale(diffScale)

	if t.coherence != nil {
		cdiff = shapeCoherence(cdiff, fs.cproto[band], t.coherence[band])
	}

	fs.cy[band] = fs.cy[band].Scale(a).Add(cdir.Add(cdiff).Scale(1 - a))
}

// shapeCoherence imposes the binaural diffuse coherence on a diffuse
// covariance, keeping the ear energy split of the prototype.
func shapeCoherence(cdiff, cproto mixing.Matrix, coherence float64) mixing.Matrix {
	total := real(cproto[0][0]) + real(cproto[1][1]) + protoFloor
	u := mixing.Matrix{
		{complex(real(cproto[0][0])/total, 0), complex(coherence, 0)},
		{complex(coherence, 0), complex(real(cproto[1][1])/total, 0)},
	}
	shaped := u.Mul(cdiff)
	return shaped.Add(shaped.H()).Scale(0.5)
}

func (fs *frameState) solve(t *tableSet, band int) {
	eye := mixing.Identity()
	if !t.residual {
		fs.newM[band], _ = fs.solver.Solve(fs.cproto[band], fs.cy[band], eye, true)
		return
	}

	m, cr := fs.solver.Solve(fs.cproto[band], fs.cy[band], eye, false)
	fs.newM[band] = m
	fs.newMr[band] = fs.solver.SolveReal(fs.cproto[band].DiagReal().Real(), cr.Real(), eye.Real())
}

// matchEnergy sets a diagonal gain that gives the prototype the mean
// energy of the ambisonic input.
func (fs *frameState) matchEnergy(band int) {
	var ex, ep float64
	for c := 0; c < NumSH; c++ {
		ex += real(fs.cx[band][c][c])
	}
	for ear := 0; ear < NumEars; ear++ {
		ep += real(fs.cproto[band][ear][ear])
	}
	ex /= NumSH
	ep = ep/NumEars + protoFloor

	fs.newM[band] = mixing.Identity().Scale(math.Sqrt(ex / ep))
	fs.newMr[band] = mixing.RealMatrix{}
}

// shapeTransients ducks onsets in the second newest frame of every delay
// line, in chronological order.
func (fs *frameState) shapeTransients() {
	for band := 0; band < NumBands; band++ {
		for ear := 0; ear < NumEars; ear++ {
			line, shaper := fs.lines[band][ear], fs.shapers[band][ear]
			for slot := 0; slot < TimeSlots; slot++ {
				delay := 2*TimeSlots - slot
				line.Scale(delay, shaper.Gain(sqAbs(line.Read(delay))))
			}
		}
	}
}

// mix applies the mixing matrices, ramping from the previous frame's
// matrices to the new ones across the slots.
func (fs *frameState) mix(t *tableSet) {
	for band := 0; band < NumBands; band++ {
		for slot := 0; slot < TimeSlots; slot++ {
			r := float64(slot+1) / TimeSlots
			out := fs.curM[band].Lerp(fs.newM[band], r).Apply(fs.proto[band][slot])
			if t.residual {
				res := fs.curMr[band].Lerp(fs.newMr[band], r).Apply(fs.decorr[band][slot])
				out[0] += res[0]
				out[1] += res[1]
			}
			fs.bin[band][slot] = out
		}
	}
	fs.curM = fs.newM
	fs.curMr = fs.newMr
}

func sqAbs(v complex128) float64 {
	return real(v)*real(v) + imag(v)*imag(v)
}
