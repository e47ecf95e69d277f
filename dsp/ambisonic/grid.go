package ambisonic

import (
	"fmt"
	"math"
)

// Grid is a set of scanning directions with their SH vectors and the
// rotations aligning each direction with the front axis.
type Grid struct {
	Azimuth   []float64
	Elevation []float64
	// SH holds the basis per channel: SH[c][i] is channel c of direction i.
	SH [NumSH][]float64
	// Align[i] maps the SH vector of direction i onto that of the front.
	Align []Matrix4
}

// NewGrid builds a geodesic grid by subdividing every icosahedron face
// freq times, giving 10·freq²+2 directions.
func NewGrid(freq int) (*Grid, error) {
	if freq <= 0 {
		return nil, fmt.Errorf("ambisonic: geodesic frequency must be > 0: %d", freq)
	}

	points := geodesic(freq)
	g := &Grid{
		Azimuth:   make([]float64, len(points)),
		Elevation: make([]float64, len(points)),
		Align:     make([]Matrix4, len(points)),
	}
	for c := range g.SH {
		g.SH[c] = make([]float64, len(points))
	}

	for i, p := range points {
		az, el := Direction(p)
		g.Azimuth[i], g.Elevation[i] = az, el
		y := shFromVector(p)
		for c := range g.SH {
			g.SH[c][i] = y[c]
		}
		g.Align[i] = SHRotation(AlignToFront(az, el))
	}

	return g, nil
}

// Len returns the number of directions.
func (g *Grid) Len() int { return len(g.Azimuth) }

// Vector returns the SH vector of direction i.
func (g *Grid) Vector(i int) [NumSH]float64 {
	return [NumSH]float64{g.SH[0][i], g.SH[1][i], g.SH[2][i], g.SH[3][i]}
}

func icosahedron() ([][3]float64, [][3]int) {
	phi := (1 + math.Sqrt(5)) / 2
	verts := [][3]float64{
		{0, 1, phi}, {0, -1, phi}, {0, 1, -phi}, {0, -1, -phi},
		{1, phi, 0}, {-1, phi, 0}, {1, -phi, 0}, {-1, -phi, 0},
		{phi, 0, 1}, {-phi, 0, 1}, {phi, 0, -1}, {-phi, 0, -1},
	}

	adjacent := func(a, b int) bool {
		var d float64
		for k := 0; k < 3; k++ {
			diff := verts[a][k] - verts[b][k]
			d += diff * diff
		}
		return math.Abs(d-4) < 1e-9
	}

	var faces [][3]int
	for a := 0; a < len(verts); a++ {
		for b := a + 1; b < len(verts); b++ {
			if !adjacent(a, b) {
				continue
			}
			for c := b + 1; c < len(verts); c++ {
				if adjacent(a, c) && adjacent(b, c) {
					faces = append(faces, [3]int{a, b, c})
				}
			}
		}
	}

	return verts, faces
}

func geodesic(freq int) [][3]float64 {
	verts, faces := icosahedron()

	points := make([][3]float64, 0, 10*freq*freq+2)

	f := float64(freq)
	for _, face := range faces {
		a, b, c := verts[face[0]], verts[face[1]], verts[face[2]]
		for i := 0; i <= freq; i++ {
			for j := 0; j <= freq-i; j++ {
				u, v := float64(i)/f, float64(j)/f
				var p [3]float64
				for k := 0; k < 3; k++ {
					p[k] = a[k] + u*(b[k]-a[k]) + v*(c[k]-a[k])
				}
				norm := math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])
				for k := range p {
					p[k] /= norm
				}

				if containsPoint(points, p) {
					continue
				}
				points = append(points, p)
			}
		}
	}

	return points
}

func containsPoint(points [][3]float64, p [3]float64) bool {
	const tol = 1e-8
	for _, q := range points {
		d0, d1, d2 := q[0]-p[0], q[1]-p[1], q[2]-p[2]
		if d0*d0+d1*d1+d2*d2 < tol {
			return true
		}
	}
	return false
}
