package hrtf

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
)

// dirPoint is a direction on the unit sphere tagged with its set index.
type dirPoint struct {
	idx int
	v   [3]float64
}

func (p dirPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.v[d] - c.(dirPoint).v[d]
}

func (p dirPoint) Dims() int { return 3 }

// Distance returns the squared chord distance.
func (p dirPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(dirPoint)
	d0, d1, d2 := p.v[0]-q.v[0], p.v[1]-q.v[1], p.v[2]-q.v[2]
	return d0*d0 + d1*d1 + d2*d2
}

type dirPoints []dirPoint

func (p dirPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p dirPoints) Len() int                      { return len(p) }
func (p dirPoints) Pivot(d kdtree.Dim) int        { return plane{dirPoints: p, Dim: d}.Pivot() }
func (p dirPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

type plane struct {
	kdtree.Dim
	dirPoints
}

func (p plane) Less(i, j int) bool { return p.dirPoints[i].v[p.Dim] < p.dirPoints[j].v[p.Dim] }
func (p plane) Pivot() int         { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.dirPoints = p.dirPoints[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.dirPoints[i], p.dirPoints[j] = p.dirPoints[j], p.dirPoints[i]
}

// directionTree indexes a set of directions for nearest-neighbour queries.
type directionTree struct {
	tree *kdtree.Tree
}

func newDirectionTree(azimuth, elevation []float64) *directionTree {
	pts := make(dirPoints, len(azimuth))
	for i := range pts {
		pts[i] = dirPoint{idx: i, v: ambisonic.UnitVector(azimuth[i], elevation[i])}
	}
	return &directionTree{tree: kdtree.New(pts, false)}
}

// neighbour is a query result: set index, unit vector and squared distance.
type neighbour struct {
	dirPoint
	dist float64
}

// nearest returns up to k directions closest to v, nearest first.
func (t *directionTree) nearest(v [3]float64, k int) []neighbour {
	keeper := kdtree.NewNKeeper(k)
	t.tree.NearestSet(keeper, dirPoint{idx: -1, v: v})

	out := make([]neighbour, 0, k)
	for _, c := range keeper.Heap {
		if c.Comparable == nil {
			continue
		}
		out = append(out, neighbour{dirPoint: c.Comparable.(dirPoint), dist: c.Dist})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })

	return out
}

// nearestIndex returns the set index of the direction closest to v.
func (t *directionTree) nearestIndex(v [3]float64) int {
	c, _ := t.tree.Nearest(dirPoint{idx: -1, v: v})
	return c.(dirPoint).idx
}
