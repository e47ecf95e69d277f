// Package decoder designs first-order ambisonic-to-binaural decoding
// matrices from an HRTF filterbank.
package decoder

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/hrtf"
	"github.com/cwbudde/algo-binaural/dsp/mixing"
)

// DefaultCutoff is the frequency above which only HRTF magnitudes are fitted.
const DefaultCutoff = 1500.0

// correctionRegularization keeps the diffuse correction stable on bands
// where the decoded ear signals are nearly identical.
const correctionRegularization = 1e-3

// Matrix decodes the four ACN/N3D channels of one band to the two ears.
type Matrix [hrtf.NumEars][ambisonic.NumSH]complex128

// Apply returns the ear signals for one SH slot.
func (m *Matrix) Apply(x [ambisonic.NumSH]complex128) mixing.Vector {
	var out mixing.Vector
	for ear := 0; ear < hrtf.NumEars; ear++ {
		out[ear] = m[ear][0]*x[0] + m[ear][1]*x[1] + m[ear][2]*x[2] + m[ear][3]*x[3]
	}
	return out
}

// Option configures the decoder design.
type Option func(*config) error

type config struct {
	cutoff            float64
	diffuseCorrection bool
	weights           []float64
}

// WithCutoff sets the magnitude-only fitting frequency in Hz.
func WithCutoff(hz float64) Option {
	return func(c *config) error {
		if hz < 0 || math.IsNaN(hz) {
			return fmt.Errorf("decoder: cutoff must be >= 0: %f", hz)
		}
		c.cutoff = hz
		return nil
	}
}

// WithDiffuseCorrection imposes the diffuse-field covariance of the HRTFs on
// the decoder output.
func WithDiffuseCorrection(enabled bool) Option {
	return func(c *config) error {
		c.diffuseCorrection = enabled
		return nil
	}
}

// WithWeights sets quadrature weights per HRTF direction.
func WithWeights(w []float64) Option {
	return func(c *config) error {
		c.weights = w
		return nil
	}
}

// MagLS designs one decoding matrix per band by weighted least squares over
// the HRTF directions. Above the cutoff the HRTF phase is replaced by the
// phase the previous band's decoder produces, so only magnitudes are fitted.
func MagLS(fb *hrtf.Filterbank, azimuth, elevation, freqs []float64, opts ...Option) ([]Matrix, error) {
	cfg := config{cutoff: DefaultCutoff}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	nDirs := fb.Directions()
	if len(azimuth) != nDirs || len(elevation) != nDirs {
		return nil, fmt.Errorf("decoder: %d/%d directions for a filterbank with %d", len(azimuth), len(elevation), nDirs)
	}
	if len(freqs) != fb.Bands() {
		return nil, fmt.Errorf("decoder: %d frequencies for %d bands", len(freqs), fb.Bands())
	}
	if cfg.weights != nil && len(cfg.weights) != nDirs {
		return nil, fmt.Errorf("decoder: %d weights for %d directions", len(cfg.weights), nDirs)
	}

	w := normalisedWeights(cfg.weights, nDirs)

	y := mat.NewDense(nDirs, ambisonic.NumSH, nil)
	wy := mat.NewDense(nDirs, ambisonic.NumSH, nil)
	for d := 0; d < nDirs; d++ {
		sh := ambisonic.SH(azimuth[d], elevation[d])
		for c, v := range sh {
			y.Set(d, c, v)
			wy.Set(d, c, w[d]*v)
		}
	}

	// gram = Yᵀ·W·Y is the decoder-domain covariance of a diffuse field.
	var gram mat.Dense
	gram.Mul(y.T(), wy)

	ridged := mat.DenseCopyOf(&gram)
	ridge := 1e-9 * mat.Trace(&gram)
	for c := 0; c < ambisonic.NumSH; c++ {
		ridged.Set(c, c, ridged.At(c, c)+ridge)
	}
	var inv mat.Dense
	if err := inv.Inverse(ridged); err != nil {
		return nil, fmt.Errorf("decoder: direction set is degenerate: %w", err)
	}

	// proj maps HRTFs over directions onto decoder coefficients.
	var proj mat.Dense
	proj.Mul(wy, &inv)

	hRe := mat.NewDense(hrtf.NumEars, nDirs, nil)
	hIm := mat.NewDense(hrtf.NumEars, nDirs, nil)
	var dRe, dIm mat.Dense

	out := make([]Matrix, fb.Bands())
	for band := range out {
		magOnly := freqs[band] >= cfg.cutoff && band > 0
		for ear := 0; ear < hrtf.NumEars; ear++ {
			row := fb.Row(band, ear)
			for d, h := range row {
				if magOnly {
					ref := out[band-1].earResponse(ear, y, d)
					h = complex(cmplx.Abs(h), 0) * phasor(ref)
				}
				hRe.Set(ear, d, real(h))
				hIm.Set(ear, d, imag(h))
			}
		}

		dRe.Mul(hRe, &proj)
		dIm.Mul(hIm, &proj)
		for ear := 0; ear < hrtf.NumEars; ear++ {
			for c := 0; c < ambisonic.NumSH; c++ {
				out[band][ear][c] = complex(dRe.At(ear, c), dIm.At(ear, c))
			}
		}
	}

	if cfg.diffuseCorrection {
		if err := correctDiffuse(out, fb, w, &gram); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// earResponse returns the decoded response of one ear for direction d.
func (m *Matrix) earResponse(ear int, y *mat.Dense, d int) complex128 {
	var sum complex128
	for c := 0; c < ambisonic.NumSH; c++ {
		sum += m[ear][c] * complex(y.At(d, c), 0)
	}
	return sum
}

// correctDiffuse rescales every band so the decoded diffuse-field
// covariance D·G·Dᴴ equals the HRTF diffuse-field covariance H·W·Hᴴ.
func correctDiffuse(dec []Matrix, fb *hrtf.Filterbank, w []float64, gram *mat.Dense) error {
	solver, err := mixing.NewSolver(mixing.WithRegularization(correctionRegularization))
	if err != nil {
		return err
	}

	for band := range dec {
		var target mixing.Matrix
		for d := 0; d < fb.Directions(); d++ {
			h := mixing.Vector{fb.At(band, hrtf.Left, d), fb.At(band, hrtf.Right, d)}
			for i := 0; i < hrtf.NumEars; i++ {
				for j := 0; j < hrtf.NumEars; j++ {
					target[i][j] += complex(w[d], 0) * h[i] * cmplx.Conj(h[j])
				}
			}
		}

		var decoded mixing.Matrix
		for i := 0; i < hrtf.NumEars; i++ {
			for j := 0; j < hrtf.NumEars; j++ {
				var sum complex128
				for a := 0; a < ambisonic.NumSH; a++ {
					for b := 0; b < ambisonic.NumSH; b++ {
						sum += dec[band][i][a] * complex(gram.At(a, b), 0) * cmplx.Conj(dec[band][j][b])
					}
				}
				decoded[i][j] = sum
			}
		}

		m, _ := solver.Solve(decoded, target, mixing.Identity(), false)

		var corrected Matrix
		for i := 0; i < hrtf.NumEars; i++ {
			for c := 0; c < ambisonic.NumSH; c++ {
				corrected[i][c] = m[i][0]*dec[band][0][c] + m[i][1]*dec[band][1][c]
			}
		}
		dec[band] = corrected
	}

	return nil
}

func normalisedWeights(w []float64, n int) []float64 {
	out := make([]float64, n)
	var sum float64
	for i := range out {
		out[i] = 1
		if w != nil {
			out[i] = math.Max(w[i], 0)
		}
		sum += out[i]
	}
	if sum == 0 {
		sum = 1
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func phasor(v complex128) complex128 {
	a := cmplx.Abs(v)
	if a == 0 {
		return 1
	}
	return v / complex(a, 0)
}
