package hrtf

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/core"
)

// Default interpolation table resolution in degrees.
const (
	DefaultAzimuthResolution   = 1.0
	DefaultElevationResolution = 4.0
)

// interpCandidates is the number of nearest directions searched for an
// enclosing triangle.
const interpCandidates = 6

// InterpTable maps a regular azimuth/elevation grid onto three measurement
// directions with non-negative weights summing to one.
type InterpTable struct {
	azRes, elRes float64
	numAz, numEl int

	indices [][3]int
	weights [][3]float64
}

// NewInterpTable builds the table for the given measurement directions.
// Each entry uses the smallest enclosing triangle among the nearest
// measurements, weighted by its vector-base gains; entries outside every
// candidate triangle fall back to the nearest measurement.
func NewInterpTable(azimuth, elevation []float64, azRes, elRes float64) (*InterpTable, error) {
	if len(azimuth) < 3 || len(elevation) != len(azimuth) {
		return nil, fmt.Errorf("%w: need at least 3 directions for interpolation, got %d", ErrInvalidSet, len(azimuth))
	}
	if azRes <= 0 || azRes > 90 || elRes <= 0 || elRes > 90 {
		return nil, fmt.Errorf("hrtf: invalid interpolation resolution: az=%f el=%f", azRes, elRes)
	}

	t := &InterpTable{
		azRes: azRes,
		elRes: elRes,
		numAz: int(math.Round(360/azRes)) + 1,
		numEl: int(math.Round(180/elRes)) + 1,
	}
	t.indices = make([][3]int, t.numAz*t.numEl)
	t.weights = make([][3]float64, t.numAz*t.numEl)

	tree := newDirectionTree(azimuth, elevation)
	k := min(interpCandidates, len(azimuth))

	for e := 0; e < t.numEl; e++ {
		el := math.Min(90, -90+float64(e)*elRes)
		for a := 0; a < t.numAz; a++ {
			az := -180 + float64(a)*azRes
			p := ambisonic.UnitVector(az, el)
			i := e*t.numAz + a
			t.indices[i], t.weights[i] = triangleGains(p, tree.nearest(p, k))
		}
	}

	return t, nil
}

// triangleGains picks the tightest candidate triangle enclosing p.
func triangleGains(p [3]float64, cand []neighbour) ([3]int, [3]float64) {
	const (
		minDet   = 1e-9
		gainTol  = -1e-9
		noChoice = math.MaxFloat64
	)

	bestScore := noChoice
	var bestIdx [3]int
	var bestGain [3]float64

	for a := 0; a < len(cand); a++ {
		for b := a + 1; b < len(cand); b++ {
			for c := b + 1; c < len(cand); c++ {
				g, ok := solve3(cand[a].v, cand[b].v, cand[c].v, p, minDet)
				if !ok || g[0] < gainTol || g[1] < gainTol || g[2] < gainTol {
					continue
				}
				score := cand[a].dist + cand[b].dist + cand[c].dist
				if score < bestScore {
					bestScore = score
					bestIdx = [3]int{cand[a].idx, cand[b].idx, cand[c].idx}
					bestGain = g
				}
			}
		}
	}

	if bestScore == noChoice {
		n := cand[0].idx
		return [3]int{n, n, n}, [3]float64{1, 0, 0}
	}

	var sum float64
	for i := range bestGain {
		bestGain[i] = math.Max(0, bestGain[i])
		sum += bestGain[i]
	}
	for i := range bestGain {
		bestGain[i] /= sum
	}

	return bestIdx, bestGain
}

// solve3 returns g with g0·a + g1·b + g2·c = p by Cramer's rule.
func solve3(a, b, c, p [3]float64, minDet float64) ([3]float64, bool) {
	det := triple(a, b, c)
	if math.Abs(det) < minDet {
		return [3]float64{}, false
	}
	return [3]float64{
		triple(p, b, c) / det,
		triple(a, p, c) / det,
		triple(a, b, p) / det,
	}, true
}

// triple returns the scalar triple product a·(b×c).
func triple(a, b, c [3]float64) float64 {
	return a[0]*(b[1]*c[2]-b[2]*c[1]) - a[1]*(b[0]*c[2]-b[2]*c[0]) + a[2]*(b[0]*c[1]-b[1]*c[0])
}

// Len returns the number of table entries.
func (t *InterpTable) Len() int { return len(t.indices) }

// Entry returns the indices and weights of table entry i.
func (t *InterpTable) Entry(i int) ([3]int, [3]float64) {
	return t.indices[i], t.weights[i]
}

// Lookup returns the indices and weights for a direction in degrees.
func (t *InterpTable) Lookup(azimuth, elevation float64) ([3]int, [3]float64) {
	a := int(core.Mod(azimuth+180, 360)/t.azRes + 0.5)
	e := int((elevation+90)/t.elRes + 0.5)
	a = min(max(a, 0), t.numAz-1)
	e = min(max(e, 0), t.numEl-1)
	i := e*t.numAz + a
	return t.indices[i], t.weights[i]
}

// Interpolate returns the left and right HRTF for a direction in one band.
// Magnitudes and ITD are blended with the table weights and the phase is
// rebuilt from the interpolated ITD.
func Interpolate(fb *Filterbank, table *InterpTable, band int, freq, azimuth, elevation float64) [NumEars]complex128 {
	idx, w := table.Lookup(azimuth, elevation)

	var magL, magR, itd float64
	for i := 0; i < 3; i++ {
		magL += w[i] * fb.Mag(band, Left, idx[i])
		magR += w[i] * fb.Mag(band, Right, idx[i])
		itd += w[i] * fb.ITD(idx[i])
	}

	s, c := math.Sincos(InterauralPhase(freq, itd))
	return [NumEars]complex128{
		complex(magL*c, magL*s),
		complex(magR*c, -magR*s),
	}
}
