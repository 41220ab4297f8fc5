package reconstruct

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"github.com/go-digitaltwin/go-splatscene"
)

// Policy selects how an Initializer seeds Gaussians from points.
type Policy int

const (
	// OnePerPoint seeds one isotropic Gaussian per point.
	OnePerPoint Policy = iota
	// GridDownsample seeds one Gaussian per occupied voxel of a regular grid.
	GridDownsample
	// Cluster seeds one Gaussian per density-connected cluster of points, and
	// one per point that belongs to no cluster.
	Cluster
)

var policyNames = [...]string{
	OnePerPoint:    "one-per-point",
	GridDownsample: "grid",
	Cluster:        "cluster",
}

func (p Policy) String() string {
	if p >= 0 && int(p) < len(policyNames) {
		return policyNames[p]
	}
	return "Policy(" + strconv.Itoa(int(p)) + ")"
}

func (p Policy) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(policyNames) {
		return nil, fmt.Errorf("%w %d", ErrUnknownPolicy, int(p))
	}
	return []byte(policyNames[p]), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	for i, name := range policyNames {
		if name == string(text) {
			*p = Policy(i)
			return nil
		}
	}
	return fmt.Errorf("%w %q", ErrUnknownPolicy, text)
}

// ErrUnknownPolicy is returned for a Policy outside the defined constants.
var ErrUnknownPolicy = errors.New("reconstruct: unknown policy")

// An Initializer converts a PointCloud into candidate Gaussians. The zero value
// seeds one Gaussian per point with the smallest scale allowed; most callers
// want Config.Initializer instead.
type Initializer struct {
	Policy            Policy
	DefaultScale      float32
	DefaultOpacity    float32
	DefaultColor      mgl32.Vec3
	GridSize          float64
	ClusterEps        float64
	ClusterMinPoints  int
	ParallelThreshold int
}

// InitStats describes what an Initializer did with a point cloud.
type InitStats struct {
	// Points is the number of points in the cloud.
	Points int
	// Skipped is the number of points dropped for a non-finite position.
	Skipped int
	// Degenerate is the number of seeded Gaussians that needed repair.
	Degenerate int
}

// Initialize seeds Gaussians from cloud according to in.Policy. Every returned
// Gaussian is sanitized, carries a fresh Identity taken from ids, is anchored at
// the cloud's timestamp and counts one observation.
//
// The order of the result follows the order of the points that seeded it, and
// identities are allocated in that order. An unknown Policy fails with
// ErrUnknownPolicy before any identity is allocated.
func (in Initializer) Initialize(cloud splatscene.PointCloud, ids splatscene.IdentityAllocator) ([]splatscene.Gaussian4D, InitStats, error) {
	stats := InitStats{Points: cloud.Len()}
	if _, err := in.Policy.MarshalText(); err != nil {
		return nil, stats, err
	}
	points := make([]splatscene.Point, 0, cloud.Len())
	for _, p := range cloud.All() {
		if !p.IsFinite() {
			stats.Skipped++
			continue
		}
		points = append(points, p)
	}

	var seeds []splatscene.Gaussian
	switch in.Policy {
	case OnePerPoint:
		seeds = in.onePerPoint(points)
	case GridDownsample:
		seeds = in.gridDownsample(points)
	case Cluster:
		seeds = in.cluster(points)
	}

	out := make([]splatscene.Gaussian4D, len(seeds))
	for i, seed := range seeds {
		g, repaired := seed.Sanitize()
		if repaired {
			stats.Degenerate++
		}
		out[i] = splatscene.Gaussian4D{
			Gaussian:     g,
			Identity:     ids.NewIdentity(),
			Anchor:       cloud.Timestamp(),
			Observations: 1,
		}
	}
	return out, stats, nil
}

// onePerPoint converts points independently. Above ParallelThreshold points the
// conversion is split into contiguous chunks, one per processor, so the output
// order is unaffected.
func (in Initializer) onePerPoint(points []splatscene.Point) []splatscene.Gaussian {
	out := make([]splatscene.Gaussian, len(points))
	convert := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = in.seed(points[i])
		}
	}

	if in.ParallelThreshold <= 0 || len(points) <= in.ParallelThreshold {
		convert(0, len(points))
		return out
	}

	procs := runtime.GOMAXPROCS(0)
	chunk := (len(points) + procs - 1) / procs
	var g errgroup.Group
	g.SetLimit(procs)
	for lo := 0; lo < len(points); lo += chunk {
		hi := min(lo+chunk, len(points))
		g.Go(func() error {
			convert(lo, hi)
			return nil
		})
	}
	_ = g.Wait() // conversion never fails
	return out
}

// seed returns the isotropic Gaussian of a single point.
func (in Initializer) seed(p splatscene.Point) splatscene.Gaussian {
	color, ok := p.Color()
	if !ok {
		color = in.DefaultColor
	}
	s := in.DefaultScale
	return splatscene.Gaussian{
		Position: p.Position(),
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{s, s, s},
		Color:    color,
		Opacity:  in.DefaultOpacity,
	}
}
