package reconstruct

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/stat"

	"github.com/go-digitaltwin/go-splatscene"
)

// voxelKey addresses a cell of the downsampling grid.
type voxelKey [3]int64

// gridDownsample buckets points into cubic voxels of GridSize and seeds one
// Gaussian per occupied voxel, at the mean of its points. Voxels are emitted in
// the order their first point appears.
func (in Initializer) gridDownsample(points []splatscene.Point) []splatscene.Gaussian {
	size := in.GridSize
	if !(size > 0) || math.IsInf(size, 0) {
		return in.onePerPoint(points)
	}

	index := make(map[voxelKey]int)
	var voxels []*accumulator
	for _, p := range points {
		pos := p.Position()
		key := voxelKey{
			int64(math.Floor(float64(pos[0]) / size)),
			int64(math.Floor(float64(pos[1]) / size)),
			int64(math.Floor(float64(pos[2]) / size)),
		}
		i, ok := index[key]
		if !ok {
			i = len(voxels)
			index[key] = i
			voxels = append(voxels, new(accumulator))
		}
		voxels[i].add(p)
	}

	s := max(in.DefaultScale, float32(size/2))
	out := make([]splatscene.Gaussian, len(voxels))
	for i, v := range voxels {
		out[i] = splatscene.Gaussian{
			Position: v.mean(),
			Rotation: mgl32.QuatIdent(),
			Scale:    mgl32.Vec3{s, s, s},
			Color:    v.color(in.DefaultColor),
			Opacity:  in.DefaultOpacity,
		}
	}
	return out
}

// accumulator gathers the samples of a group of points (a voxel or a cluster)
// for gonum's statistics.
type accumulator struct {
	x, y, z []float64
	r, g, b []float64
}

func (a *accumulator) add(p splatscene.Point) {
	pos := p.Position()
	a.x = append(a.x, float64(pos[0]))
	a.y = append(a.y, float64(pos[1]))
	a.z = append(a.z, float64(pos[2]))
	if c, ok := p.Color(); ok {
		a.r = append(a.r, float64(c[0]))
		a.g = append(a.g, float64(c[1]))
		a.b = append(a.b, float64(c[2]))
	}
}

func (a *accumulator) len() int { return len(a.x) }

// mean returns the centroid of the gathered points.
func (a *accumulator) mean() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(stat.Mean(a.x, nil)),
		float32(stat.Mean(a.y, nil)),
		float32(stat.Mean(a.z, nil)),
	}
}

// color returns the mean color of the gathered points that have one, or def
// when none has.
func (a *accumulator) color(def mgl32.Vec3) mgl32.Vec3 {
	if len(a.r) == 0 {
		return def
	}
	return mgl32.Vec3{
		float32(stat.Mean(a.r, nil)),
		float32(stat.Mean(a.g, nil)),
		float32(stat.Mean(a.b, nil)),
	}
}

// spread returns the per-axis sample standard deviation of the gathered
// points, floored at floor. A single point has no spread.
func (a *accumulator) spread(floor float32) mgl32.Vec3 {
	if a.len() < 2 {
		return mgl32.Vec3{floor, floor, floor}
	}
	return mgl32.Vec3{
		max(float32(stat.StdDev(a.x, nil)), floor),
		max(float32(stat.StdDev(a.y, nil)), floor),
		max(float32(stat.StdDev(a.z, nil)), floor),
	}
}
