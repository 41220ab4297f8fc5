package reconstruct

import (
	"cmp"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// splatPoint is a position in a kd-tree that remembers which slot of the
// indexed slice it came from.
type splatPoint struct {
	pos  [3]float64
	slot int
}

func newSplatPoint(v mgl32.Vec3, slot int) splatPoint {
	return splatPoint{pos: [3]float64{float64(v[0]), float64(v[1]), float64(v[2])}, slot: slot}
}

func (p splatPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.pos[d] - c.(splatPoint).pos[d]
}

func (p splatPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance, as kdtree expects.
func (p splatPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(splatPoint)
	var sum float64
	for i := range p.pos {
		d := p.pos[i] - q.pos[i]
		sum += d * d
	}
	return sum
}

// splatPoints implements kdtree.Interface.
type splatPoints []splatPoint

func (p splatPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p splatPoints) Len() int                              { return len(p) }
func (p splatPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p splatPoints) Pivot(d kdtree.Dim) int                { return plane{points: p, dim: d}.pivot() }

// plane sorts splatPoints along a single dimension.
type plane struct {
	points splatPoints
	dim    kdtree.Dim
}

func (p plane) Len() int           { return len(p.points) }
func (p plane) Less(i, j int) bool { return p.points[i].pos[p.dim] < p.points[j].pos[p.dim] }
func (p plane) Swap(i, j int)      { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], dim: p.dim}
}

func (p plane) pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfRandoms(p, 100))
}

// spatialIndex answers proximity queries over a fixed set of positions,
// reporting matches by their index in the slice the index was built from.
type spatialIndex struct {
	tree *kdtree.Tree
}

func newSpatialIndex(positions []mgl32.Vec3) spatialIndex {
	points := make(splatPoints, len(positions))
	for i, v := range positions {
		points[i] = newSplatPoint(v, i)
	}
	return spatialIndex{tree: kdtree.New(points, false)}
}

// within returns the slots no farther than radius from v, closest first. Slots
// at the same distance are ordered by slot.
func (ix spatialIndex) within(v mgl32.Vec3, radius float64) []int {
	if !(radius >= 0) {
		return nil
	}
	keeper := kdtree.NewDistKeeper(radius * radius)
	ix.tree.NearestSet(keeper, newSplatPoint(v, -1))

	matches := make([]kdtree.ComparableDist, 0, len(keeper.Heap))
	for _, c := range keeper.Heap {
		if c.Comparable != nil {
			matches = append(matches, c)
		}
	}
	slices.SortFunc(matches, func(a, b kdtree.ComparableDist) int {
		return cmp.Or(
			cmp.Compare(a.Dist, b.Dist),
			cmp.Compare(a.Comparable.(splatPoint).slot, b.Comparable.(splatPoint).slot),
		)
	})

	slots := make([]int, len(matches))
	for i, c := range matches {
		slots[i] = c.Comparable.(splatPoint).slot
	}
	return slots
}
