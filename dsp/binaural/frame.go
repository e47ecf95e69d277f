package binaural

import (
	"fmt"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/decor"
	"github.com/cwbudde/algo-binaural/dsp/delay"
	"github.com/cwbudde/algo-binaural/dsp/mixing"
	"github.com/cwbudde/algo-binaural/dsp/stft"
)

const (
	// energyFloor keeps the directionality gain finite on silence.
	energyFloor = 2.23e-8
	// protoFloor keeps the energy-matching gain finite on silence.
	protoFloor = 2.23e-7
)

// shSlot holds the four SH coefficients of one band and time slot.
type shSlot = [NumSH]complex128

// frameState is the mutable state of the runtime processor. Only Process
// touches it; Configure swaps in a fresh one while no frame is in flight.
type frameState struct {
	tf      *stft.Filterbank
	in      [][]float64
	out     [][]float64
	bandBuf []complex128

	x      [NumBands][TimeSlots]shSlot
	proto  [NumBands][TimeSlots]mixing.Vector
	decorr [NumBands][TimeSlots]mixing.Vector
	bin    [NumBands][TimeSlots]mixing.Vector

	cx     [NumBands][NumSH][NumSH]complex128
	cproto [NumBands]mixing.Matrix
	cy     [NumBands]mixing.Matrix

	curM, newM   [NumBands]mixing.Matrix
	curMr, newMr [NumBands]mixing.RealMatrix

	lines   [NumBands][NumEars]*delay.Line
	shapers [NumBands][NumEars]*decor.Shaper

	rot    ambisonic.Matrix4
	solver *mixing.Solver

	// Power-map scratch, one entry per scanning direction.
	re, im, tmp, power []float64
}

func newFrameState() (*frameState, error) {
	tf, err := stft.New(HopSize, NumSH, NumEars)
	if err != nil {
		return nil, fmt.Errorf("binaural: %w", err)
	}
	solver, err := mixing.NewSolver(mixing.WithRegularization(mixing.DefaultRegularization))
	if err != nil {
		return nil, fmt.Errorf("binaural: %w", err)
	}

	fs := &frameState{
		tf:      tf,
		in:      make([][]float64, NumSH),
		out:     make([][]float64, NumEars),
		bandBuf: make([]complex128, NumBands),
		rot:     ambisonic.Identity4(),
		solver:  solver,
	}
	for ch := range fs.in {
		fs.in[ch] = make([]float64, FrameSize)
	}
	for ch := range fs.out {
		fs.out[ch] = make([]float64, FrameSize)
	}
	for band := 0; band < NumBands; band++ {
		for ear := 0; ear < NumEars; ear++ {
			line, err := delay.New((NumDecorFrames + 1) * TimeSlots)
			if err != nil {
				return nil, fmt.Errorf("binaural: %w", err)
			}
			fs.lines[band][ear] = line
			fs.shapers[band][ear] = decor.NewShaper()
		}
	}
	fs.ensureGrid(10*gridFrequency*gridFrequency + 2)

	return fs, nil
}

func (fs *frameState) ensureGrid(n int) {
	if len(fs.power) == n {
		return
	}
	fs.re = make([]float64, n)
	fs.im = make([]float64, n)
	fs.tmp = make([]float64, n)
	fs.power = make([]float64, n)
}
