package splatscene

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// A Mutation is a function that applies a set of modifications to a scene
// using the given KeyframeWriter and returns a non-nil error if those fail. It
// supports transactional semantics via SceneGraph.Apply: a Mutation that fails
// commits nothing.
//
// See the reconstruct package for the mutations produced by each update
// strategy.
type Mutation func(w KeyframeWriter) error

// KeyframeReader exposes the keyframes of a scene as seen from inside a
// Mutation, including the Mutation's own uncommitted writes.
type KeyframeReader interface {
	// Keyframe returns the keyframe at exactly time t, if there is one.
	Keyframe(t float64) (Keyframe, bool)
	// Nearest returns the keyframe whose time is closest to t. Ties favour the
	// earlier keyframe. It returns false only when there are no keyframes.
	Nearest(t float64) (Keyframe, bool)
	// Before returns the latest keyframe strictly earlier than t.
	Before(t float64) (Keyframe, bool)
	// KeyframeTimes returns the times of all keyframes in ascending order.
	KeyframeTimes() []float64
	// Len returns the number of keyframes.
	Len() int
}

// KeyframeWriter defines the operations a Mutation may use to modify a scene.
type KeyframeWriter interface {
	KeyframeReader

	// InsertKeyframe adds k to the scene. It returns ErrKeyframeConflict if a
	// keyframe already exists at k's time, and ErrInvalidTimestamp if that time
	// is not finite.
	InsertKeyframe(k Keyframe) error

	// ReplaceKeyframe adds k to the scene, superseding any keyframe at k's time
	// wholesale. It reports whether a keyframe was superseded.
	ReplaceKeyframe(k Keyframe) (replaced bool, err error)
}

// stage is a copy-on-write view of a scene's keyframes. Keyframes are
// immutable, so cloning the (time-ordered) slice is enough to isolate a
// Mutation from the committed scene.
type stage struct {
	keyframes []Keyframe
	inserted  []float64
	replaced  []float64
}

func newStage(committed []Keyframe) *stage {
	return &stage{keyframes: slices.Clone(committed)}
}

// search returns the index of the first keyframe not earlier than t, and
// whether that keyframe is exactly at t.
func (s *stage) search(t float64) (int, bool) {
	return searchKeyframes(s.keyframes, t)
}

func searchKeyframes(keyframes []Keyframe, t float64) (int, bool) {
	return slices.BinarySearchFunc(keyframes, t, func(k Keyframe, t float64) int {
		return cmp.Compare(k.time, t)
	})
}

func (s *stage) Keyframe(t float64) (Keyframe, bool) {
	i, ok := s.search(t)
	if !ok {
		return Keyframe{}, false
	}
	return s.keyframes[i], true
}

func (s *stage) Nearest(t float64) (Keyframe, bool) {
	return nearestKeyframe(s.keyframes, t)
}

func nearestKeyframe(keyframes []Keyframe, t float64) (Keyframe, bool) {
	if len(keyframes) == 0 || math.IsNaN(t) {
		return Keyframe{}, false
	}
	i, ok := searchKeyframes(keyframes, t)
	switch {
	case ok:
		return keyframes[i], true
	case i == 0:
		return keyframes[0], true
	case i == len(keyframes):
		return keyframes[i-1], true
	}
	before, after := keyframes[i-1], keyframes[i]
	if after.time-t < t-before.time {
		return after, true
	}
	return before, true
}

func (s *stage) Before(t float64) (Keyframe, bool) {
	i, _ := s.search(t)
	if i == 0 || math.IsNaN(t) {
		return Keyframe{}, false
	}
	return s.keyframes[i-1], true
}

func (s *stage) Len() int { return len(s.keyframes) }

func (s *stage) KeyframeTimes() []float64 {
	return keyframeTimes(s.keyframes)
}

func keyframeTimes(keyframes []Keyframe) []float64 {
	times := make([]float64, len(keyframes))
	for i, k := range keyframes {
		times[i] = k.time
	}
	return times
}

func (s *stage) InsertKeyframe(k Keyframe) error {
	if !finiteTime(k.time) {
		return fmt.Errorf("%w: %v", ErrInvalidTimestamp, k.time)
	}
	i, ok := s.search(k.time)
	if ok {
		return fmt.Errorf("%w: t=%v", ErrKeyframeConflict, k.time)
	}
	s.keyframes = slices.Insert(s.keyframes, i, sealed(k))
	s.inserted = append(s.inserted, k.time)
	return nil
}

func (s *stage) ReplaceKeyframe(k Keyframe) (bool, error) {
	if !finiteTime(k.time) {
		return false, fmt.Errorf("%w: %v", ErrInvalidTimestamp, k.time)
	}
	i, ok := s.search(k.time)
	if !ok {
		s.keyframes = slices.Insert(s.keyframes, i, sealed(k))
		s.inserted = append(s.inserted, k.time)
		return false, nil
	}
	s.keyframes[i] = sealed(k)
	// a keyframe inserted earlier by the same Mutation is still reported as inserted
	if !slices.Contains(s.inserted, k.time) && !slices.Contains(s.replaced, k.time) {
		s.replaced = append(s.replaced, k.time)
	}
	return true, nil
}

// sealed makes sure the zero Keyframe carries a real content address.
func sealed(k Keyframe) Keyframe {
	if k.hash.IsZero() {
		k.hash = hashKeyframe(k)
	}
	return k
}
