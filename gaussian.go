package splatscene

import (
	"fmt"
	"math"
	"strconv"

	"github.com/go-gl/mathgl/mgl32"
)

// MinScale is the smallest extent a Gaussian may have along any axis. Scales
// below it (including zero, negative and non-finite values) are clamped up to
// it by Sanitize.
const MinScale float32 = 1e-6

// A Gaussian is a single static 3D splat: an oriented, anisotropic blob with a
// color and an opacity.
//
// Rotation is a unit quaternion; Color channels and Opacity lie in [0, 1]. Use
// Sanitize to repair a Gaussian that violates these constraints.
type Gaussian struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
	Color    mgl32.Vec3
	Opacity  float32
}

// Validate returns a non-nil error if g cannot be repaired by Sanitize, which
// only happens when its position is not finite.
func (g Gaussian) Validate() error {
	if !finiteVec3(g.Position) {
		return fmt.Errorf("%w: non-finite position %v", ErrInvalidGaussian, g.Position)
	}
	return nil
}

// Sanitize returns a copy of g that satisfies the Gaussian constraints, and
// reports whether any attribute had to be repaired.
//
// A zero-length or non-finite rotation becomes the identity rotation; any other
// rotation is normalized without being reported. Scales are clamped to at least
// MinScale, and color and opacity are clamped into [0, 1] (NaN becomes 0 for
// color channels and 1 for opacity).
func (g Gaussian) Sanitize() (Gaussian, bool) {
	repaired := false

	if r, ok := normalizeRotation(g.Rotation); ok {
		g.Rotation = r
	} else {
		g.Rotation = mgl32.QuatIdent()
		repaired = true
	}

	for i := range g.Scale {
		s := g.Scale[i]
		if !(s >= MinScale) || math.IsInf(float64(s), 0) {
			g.Scale[i] = MinScale
			repaired = true
		}
	}

	for i := range g.Color {
		c, ok := clampUnit(g.Color[i], 0)
		g.Color[i] = c
		repaired = repaired || !ok
	}

	o, ok := clampUnit(g.Opacity, 1)
	g.Opacity = o
	repaired = repaired || !ok

	return g, repaired
}

// normalizeRotation returns q scaled to unit length. It reports false if q has
// no usable direction.
func normalizeRotation(q mgl32.Quat) (mgl32.Quat, bool) {
	if !finite32(q.W) || !finiteVec3(q.V) {
		return mgl32.Quat{}, false
	}
	l := q.Len()
	if !(l > 1e-12) || math.IsInf(float64(l), 0) {
		return mgl32.Quat{}, false
	}
	if l == 1 {
		return q, true
	}
	return q.Scale(1 / l), true
}

// clampUnit clamps v into [0, 1], substituting nan for NaN. It reports false
// if v was out of range.
func clampUnit(v, nan float32) (float32, bool) {
	switch {
	case v != v:
		return nan, false
	case v < 0:
		return 0, false
	case v > 1:
		return 1, false
	}
	return v, true
}

func finite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteVec3(v mgl32.Vec3) bool {
	return finite32(v[0]) && finite32(v[1]) && finite32(v[2])
}

func finiteTime(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0)
}

// Identity is a stable handle that links the same physical splat across
// keyframes. The zero Identity is never allocated and is invalid in a
// keyframe.
type Identity uint64

func (id Identity) String() string { return "splat(" + strconv.FormatUint(uint64(id), 10) + ")" }

// IsZero reports whether id is the zero value of the type.
func (id Identity) IsZero() bool { return id == 0 }

// An IdentityAllocator hands out identities that were never handed out before.
// SceneGraph is the canonical implementation.
type IdentityAllocator interface {
	NewIdentity() Identity
}

// A Gaussian4D is a Gaussian placed in time: it is the state of the splat
// Identity at the instant Anchor.
//
// Observations counts the point-cloud observations fused into this state; it
// weighs the splat against new evidence when merging.
type Gaussian4D struct {
	Gaussian
	Identity     Identity
	Anchor       float64
	Observations uint32
}

// EvaluateAt returns the static Gaussian at time t. A single Gaussian4D has no
// motion model of its own, so every t yields the same state; motion between
// keyframes is produced by Interpolate.
func (g Gaussian4D) EvaluateAt(t float64) Gaussian {
	return g.Gaussian
}

// Interpolate blends two states of the same splat at time t, where from and to
// are anchored at their respective keyframe times.
//
// The blend weight w = (t - from.Anchor) / (to.Anchor - from.Anchor) is clamped
// into [0, 1]. Position, scale, color and opacity are blended linearly, while
// rotation follows the shorter spherical arc. At w == 0 the result is exactly
// from's state, and at w == 1 it is exactly to's state.
func Interpolate(from, to Gaussian4D, t float64) Gaussian {
	w := interpolationWeight(t, from.Anchor, to.Anchor)
	switch w {
	case 0:
		return from.Gaussian
	case 1:
		return to.Gaussian
	}
	f := float32(w)

	g := Gaussian{
		Position: lerpVec3(from.Position, to.Position, f),
		Scale:    lerpVec3(from.Scale, to.Scale, f),
		Color:    lerpVec3(from.Color, to.Color, f),
		Opacity:  from.Opacity + (to.Opacity-from.Opacity)*f,
	}
	for i := range g.Scale {
		g.Scale[i] = max(g.Scale[i], MinScale)
	}
	g.Rotation = slerp(from.Rotation, to.Rotation, f)
	return g
}

// interpolationWeight returns where t falls between t0 and t1, clamped into
// [0, 1]. A zero or inverted span yields 0.
func interpolationWeight(t, t0, t1 float64) float64 {
	span := t1 - t0
	if !(span > 0) || math.IsInf(span, 0) {
		return 0
	}
	w := (t - t0) / span
	switch {
	case w != w, w <= 0:
		return 0
	case w >= 1:
		return 1
	}
	return w
}

func lerpVec3(a, b mgl32.Vec3, w float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(w))
}

// slerp interpolates rotations along the shorter arc and always returns a unit
// quaternion.
func slerp(a, b mgl32.Quat, w float32) mgl32.Quat {
	if a == b {
		return a
	}
	q := mgl32.QuatSlerp(a, b, w)
	if r, ok := normalizeRotation(q); ok {
		return r
	}
	return mgl32.QuatIdent()
}
