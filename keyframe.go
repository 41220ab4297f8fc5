package splatscene

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
)

// A Keyframe is an immutable snapshot of Gaussians at one instant. Within a
// keyframe each Identity appears at most once, every Gaussian is anchored at
// the keyframe's time, and Gaussians are kept ordered by Identity.
//
// Build keyframes with a KeyframeBuilder or NewKeyframe. The zero value is an
// empty keyframe at time zero.
type Keyframe struct {
	time      float64
	gaussians []Gaussian4D
	hash      KeyframeHash
}

// NewKeyframe returns a keyframe at time t holding the given Gaussians.
//
// Unlike KeyframeBuilder, NewKeyframe is strict: it returns ErrInvalidTimestamp
// for a non-finite t, ErrInvalidGaussian for a zero Identity or a non-finite
// position, and ErrDuplicateIdentity when an Identity repeats. Repairable
// attributes are sanitized silently.
func NewKeyframe(t float64, gaussians ...Gaussian4D) (Keyframe, error) {
	if !finiteTime(t) {
		return Keyframe{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, t)
	}
	sorted := make([]Gaussian4D, len(gaussians))
	for i, g := range gaussians {
		if g.Identity.IsZero() {
			return Keyframe{}, fmt.Errorf("%w: zero identity at index %d", ErrInvalidGaussian, i)
		}
		if err := g.Validate(); err != nil {
			return Keyframe{}, fmt.Errorf("%v: %w", g.Identity, err)
		}
		g.Gaussian, _ = g.Gaussian.Sanitize()
		sorted[i] = g
	}
	slices.SortFunc(sorted, compareIdentity)
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Identity == sorted[i-1].Identity {
			return Keyframe{}, fmt.Errorf("%w: %v", ErrDuplicateIdentity, sorted[i].Identity)
		}
	}
	return newKeyframe(t, sorted), nil
}

// newKeyframe takes ownership of gaussians, which must already be sanitized,
// unique and ordered by Identity.
func newKeyframe(t float64, gaussians []Gaussian4D) Keyframe {
	for i := range gaussians {
		gaussians[i].Anchor = t
		gaussians[i].Observations = max(gaussians[i].Observations, 1)
	}
	k := Keyframe{time: t, gaussians: gaussians}
	k.hash = hashKeyframe(k)
	return k
}

func compareIdentity(a, b Gaussian4D) int { return cmp.Compare(a.Identity, b.Identity) }

func (k Keyframe) Time() float64 { return k.time }
func (k Keyframe) Len() int      { return len(k.gaussians) }

// Hash returns the content address of k, covering its time and every Gaussian.
func (k Keyframe) Hash() KeyframeHash { return k.hash }

// Lookup returns the Gaussian with the given Identity, if k holds one.
func (k Keyframe) Lookup(id Identity) (Gaussian4D, bool) {
	i, ok := slices.BinarySearchFunc(k.gaussians, id, func(g Gaussian4D, id Identity) int {
		return cmp.Compare(g.Identity, id)
	})
	if !ok {
		return Gaussian4D{}, false
	}
	return k.gaussians[i], true
}

// All returns an iterator over the Gaussians of k in Identity order.
func (k Keyframe) All() iter.Seq[Gaussian4D] {
	return slices.Values(k.gaussians)
}

// Gaussians returns a copy of the Gaussians of k in Identity order.
func (k Keyframe) Gaussians() []Gaussian4D {
	return slices.Clone(k.gaussians)
}

// Identities returns the identities held by k in ascending order.
func (k Keyframe) Identities() []Identity {
	ids := make([]Identity, len(k.gaussians))
	for i, g := range k.gaussians {
		ids[i] = g.Identity
	}
	return ids
}

func (k Keyframe) String() string {
	return fmt.Sprintf("keyframe(t=%g, n=%d)", k.time, len(k.gaussians))
}
