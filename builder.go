package splatscene

import (
	"slices"
	"unsafe"
)

// A KeyframeBuilder is used to safely and elegantly build a Keyframe using
// fluent calls.
//
// Unlike NewKeyframe, the builder is lenient: it sanitizes Gaussians as they
// are added and drops those it cannot repair, counting both kinds for the
// caller's diagnostics. Adding an Identity twice keeps the last Gaussian.
//
// The zero value is ready to use.
// Do not copy a non-zero KeyframeBuilder.
type KeyframeBuilder struct {
	gaussians  map[Identity]Gaussian4D
	degenerate int
	rejected   int
	// address of receiver - to detect copies by value.
	// see copyCheck below for details.
	addr *KeyframeBuilder
}

// Build returns a Keyframe at time t holding the accumulated Gaussians, each
// re-anchored at t. The builder is left intact, so further Gaussians may be
// added and built into another keyframe.
//
// Build does not check t; inserting the keyframe into a SceneGraph does.
func (b *KeyframeBuilder) Build(t float64) Keyframe {
	gaussians := make([]Gaussian4D, 0, len(b.gaussians))
	for _, g := range b.gaussians {
		gaussians = append(gaussians, g)
	}
	slices.SortFunc(gaussians, compareIdentity)
	return newKeyframe(t, gaussians)
}

// Reset resets the Builder to be empty.
func (b *KeyframeBuilder) Reset() {
	b.gaussians = nil
	b.degenerate = 0
	b.rejected = 0
	b.addr = nil
}

// Add shall append the given Gaussians to b's Gaussian set.
//
// Gaussians with a zero Identity or a non-finite position are rejected.
// Gaussians with other invalid attributes are repaired and counted as
// degenerate.
func (b *KeyframeBuilder) Add(gaussian ...Gaussian4D) {
	b.copyCheck()
	if b.gaussians == nil {
		b.gaussians = make(map[Identity]Gaussian4D, len(gaussian))
	}
	for _, g := range gaussian {
		if g.Identity.IsZero() || g.Validate() != nil {
			b.rejected++
			continue
		}
		var repaired bool
		g.Gaussian, repaired = g.Gaussian.Sanitize()
		if repaired {
			b.degenerate++
		}
		b.gaussians[g.Identity] = g
	}
}

// Len returns the number of distinct identities accumulated so far.
func (b *KeyframeBuilder) Len() int { return len(b.gaussians) }

// Degenerate returns the number of Gaussians that were repaired on Add.
func (b *KeyframeBuilder) Degenerate() int { return b.degenerate }

// Rejected returns the number of Gaussians dropped on Add.
func (b *KeyframeBuilder) Rejected() int { return b.rejected }

// Hint hints b's map size, if necessary, to guarantee space for n more
// Gaussians. After Hint(n), approximately (depends on map implementation) n
// Gaussians can be added to b without another allocation.
// If n is negative, Hint shall panic.
func (b *KeyframeBuilder) Hint(n int) {
	b.copyCheck()
	if n < 0 {
		panic("splatscene.KeyframeBuilder.Hint: negative count")
	}
	if len(b.gaussians) < n {
		// the calculation (i.e., len = 2*len + extra) is based on strings/builder.go (Builder.Grow)
		gaussians := make(map[Identity]Gaussian4D, 2*len(b.gaussians)+n)
		for id, g := range b.gaussians {
			gaussians[id] = g
		}
		b.gaussians = gaussians
	}
}

// Noescape hides a pointer from escape analysis.
// It is the identity function, but escape analysis does not think the
// output depends on the input.
// Noescape is inlined and currently compiles down to zero instructions.
// USE CAREFULLY!
// This was copied from the runtime; see issues 23382 and 7921 (github.com/golang/go).
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0) //nolint:govet,staticcheck,gosec // copied from the standard library
}

func (b *KeyframeBuilder) copyCheck() {
	if b.addr == nil {
		// This hack works around a failing of Go's escape analysis
		// that was causing b to escape and be heap-allocated.
		// See issue 23382 (github.com/golang/go).
		// once issue 7921 is fixed, this should be reverted to just "b.addr = b".
		b.addr = (*KeyframeBuilder)(noescape(unsafe.Pointer(b)))
	} else if b.addr != b {
		panic("splatscene: illegal use of non-zero KeyframeBuilder copied by value")
	}
}
