package reconstruct

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/go-digitaltwin/go-splatscene"
)

// Cluster labels assigned by dbscan, besides positive cluster numbers.
const (
	unlabelled = 0
	noise      = -1
)

// cluster groups points with DBSCAN and seeds one Gaussian per cluster, at its
// centroid and with its per-axis spread as scale. Points that belong to no
// cluster are seeded individually, so no observation is dropped. Seeds are
// emitted in the order their first point appears.
func (in Initializer) cluster(points []splatscene.Point) []splatscene.Gaussian {
	if !(in.ClusterEps > 0) || math.IsInf(in.ClusterEps, 0) {
		return in.onePerPoint(points)
	}

	positions := make([]mgl32.Vec3, len(points))
	for i, p := range points {
		positions[i] = p.Position()
	}
	labels, clusters := dbscan(positions, in.ClusterEps, max(in.ClusterMinPoints, 1))

	members := make([]accumulator, clusters+1)
	for i, label := range labels {
		if label > 0 {
			members[label].add(points[i])
		}
	}

	var out []splatscene.Gaussian
	emitted := make([]bool, clusters+1)
	for i, label := range labels {
		if label == noise {
			out = append(out, in.seed(points[i]))
			continue
		}
		if emitted[label] {
			continue
		}
		emitted[label] = true
		m := &members[label]
		out = append(out, splatscene.Gaussian{
			Position: m.mean(),
			Rotation: mgl32.QuatIdent(),
			Scale:    m.spread(in.DefaultScale),
			Color:    m.color(in.DefaultColor),
			Opacity:  in.DefaultOpacity,
		})
	}
	return out
}

// dbscan labels each position with a positive cluster number or noise, and
// returns the number of clusters found. A position is a core point when at
// least minPoints positions (itself included) lie within eps of it.
func dbscan(positions []mgl32.Vec3, eps float64, minPoints int) (labels []int, clusters int) {
	ix := newSpatialIndex(positions)
	labels = make([]int, len(positions))
	for i := range positions {
		if labels[i] != unlabelled {
			continue
		}
		neighbours := ix.within(positions[i], eps)
		if len(neighbours) < minPoints {
			labels[i] = noise
			continue
		}

		clusters++
		labels[i] = clusters
		queue := neighbours
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == noise {
				// border point: reachable, but not a core point itself
				labels[j] = clusters
				continue
			}
			if labels[j] != unlabelled {
				continue
			}
			labels[j] = clusters
			if nb := ix.within(positions[j], eps); len(nb) >= minPoints {
				queue = append(queue, nb...)
			}
		}
	}
	return labels, clusters
}
