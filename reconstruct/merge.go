package reconstruct

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/go-digitaltwin/go-splatscene"
)

// fuseInto matches every candidate against the Gaussians of target. A
// candidate within radius of a Gaussian is fused into the nearest one (the
// earlier in identity order on a tie); any other candidate is returned in
// fresh. Candidates are never matched against each other.
//
// It returns the target's Gaussians (fused where matched), the unmatched
// candidates and the number of fusions.
func fuseInto(target splatscene.Keyframe, candidates []splatscene.Gaussian4D, radius float64, maxWeight uint32) (existing, fresh []splatscene.Gaussian4D, fused int) {
	existing = target.Gaussians()
	positions := make([]mgl32.Vec3, len(existing))
	for i, g := range existing {
		positions[i] = g.Position
	}
	ix := newSpatialIndex(positions)

	for _, c := range candidates {
		// within breaks distance ties by slot, independent of the tree's shape.
		if matches := ix.within(c.Position, radius); len(matches) > 0 {
			slot := matches[0]
			existing[slot] = fuse(existing[slot], c, maxWeight)
			fused++
			continue
		}
		fresh = append(fresh, c)
	}
	return existing, fresh, fused
}

// fuse folds the candidate into the splat as a running weighted average. The
// splat weighs as many observations as it has absorbed, capped at maxWeight, and
// the candidate weighs one. Identity and anchor are kept.
func fuse(splat, candidate splatscene.Gaussian4D, maxWeight uint32) splatscene.Gaussian4D {
	n := float32(max(min(splat.Observations, maxWeight), 1))
	w := 1 / (n + 1)

	average := func(old, cand mgl32.Vec3) mgl32.Vec3 {
		return old.Mul(n).Add(cand).Mul(w)
	}
	splat.Position = average(splat.Position, candidate.Position)
	splat.Scale = average(splat.Scale, candidate.Scale)
	splat.Color = average(splat.Color, candidate.Color)
	splat.Opacity = (splat.Opacity*n + candidate.Opacity) * w
	if splat.Rotation != candidate.Rotation {
		splat.Rotation = mgl32.QuatSlerp(splat.Rotation, candidate.Rotation, w)
	}
	if splat.Observations < math.MaxUint32 {
		splat.Observations++
	}
	return splat
}

// inheritIdentities relabels every candidate that lies within radius of a
// Gaussian of reference with that Gaussian's identity, so the splat continues
// across keyframes. Candidates claim in order, each taking its closest
// unclaimed match; an identity is claimed at most once. It returns the number
// of relabelled candidates.
func inheritIdentities(candidates []splatscene.Gaussian4D, reference splatscene.Keyframe, radius float64) int {
	if reference.Len() == 0 {
		return 0
	}
	existing := reference.Gaussians()
	positions := make([]mgl32.Vec3, len(existing))
	for i, g := range existing {
		positions[i] = g.Position
	}
	ix := newSpatialIndex(positions)

	claimed := make([]bool, len(existing))
	carried := 0
	for i := range candidates {
		for _, slot := range ix.within(candidates[i].Position, radius) {
			if claimed[slot] {
				continue
			}
			claimed[slot] = true
			candidates[i].Identity = existing[slot].Identity
			carried++
			break
		}
	}
	return carried
}
