package splatscene

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// A SceneGraph is the temporal store of a single scene: a time-ordered set of
// keyframes with at most one keyframe per time.
//
// It is safe for concurrent use. Queries share a read lock and never observe a
// partially applied Mutation; Apply takes the write lock for the duration of
// the Mutation.
type SceneGraph struct {
	id   uuid.UUID
	name string

	mu        sync.RWMutex
	keyframes []Keyframe

	// lastIdentity is the most recently allocated Identity. It only grows, even
	// across Clear, so identities are never reused.
	lastIdentity atomic.Uint64
}

// NewSceneGraph returns an empty scene. The name labels logs and metrics; each
// scene also receives a random ID that distinguishes it in SceneChanged
// notifications.
func NewSceneGraph(name string) *SceneGraph {
	return &SceneGraph{
		id:   uuid.New(),
		name: name,
	}
}

func (s *SceneGraph) ID() uuid.UUID { return s.id }
func (s *SceneGraph) Name() string  { return s.name }

// NewIdentity implements IdentityAllocator. It never returns the zero Identity
// and never returns the same Identity twice for the same scene.
func (s *SceneGraph) NewIdentity() Identity {
	return Identity(s.lastIdentity.Add(1))
}

// Apply applies the Mutation m to the scene atomically: either every write m
// makes is committed, or (when m returns an error) none is, and the scene is
// left exactly as it was.
//
// The returned SceneChanged summarizes the committed writes.
func (s *SceneGraph) Apply(ctx context.Context, m Mutation) (changes SceneChanged, err error) {
	ctx, span := tracer.Start(ctx, "SceneGraph.Apply", trace.WithAttributes(
		attribute.String("scene.name", s.name),
		attribute.Stringer("scene.id", s.id),
	))
	defer span.End()

	defer func(start time.Time) {
		measureApply(ctx, s.name, err == nil, time.Since(start))
	}(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	before := HashKeyframes(s.keyframes)
	st := newStage(s.keyframes)
	if err := m(st); err != nil {
		err := fmt.Errorf("apply mutation: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return SceneChanged{}, err
	}
	s.keyframes = st.keyframes

	changes = SceneChanged{
		SceneID:     s.id,
		SceneBefore: before,
		Inserted:    st.inserted,
		Replaced:    st.replaced,
		SceneAfter:  HashKeyframes(s.keyframes),
		Timestamp:   time.Now().UTC(),
	}
	span.SetAttributes(
		attribute.Int("keyframes.inserted", len(changes.Inserted)),
		attribute.Int("keyframes.replaced", len(changes.Replaced)),
	)
	return changes, nil
}

// GaussiansAt returns the state of the scene at time t, ordered by Identity.
//
//   - With no keyframes (or a NaN t) the result is empty.
//   - At exactly a keyframe's time, that keyframe's Gaussians are returned as
//     stored.
//   - Before the first keyframe or after the last one, the nearest keyframe's
//     Gaussians are returned as stored.
//   - Between two keyframes, every Identity present in both is interpolated;
//     an Identity present in only one of them is returned as stored in that
//     keyframe.
func (s *SceneGraph) GaussiansAt(t float64) []Gaussian {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.keyframes)
	if n == 0 || math.IsNaN(t) {
		return nil
	}
	i, ok := searchKeyframes(s.keyframes, t)
	switch {
	case ok:
		return staticGaussians(s.keyframes[i], t)
	case i == 0:
		return staticGaussians(s.keyframes[0], t)
	case i == n:
		return staticGaussians(s.keyframes[n-1], t)
	}
	return interpolateKeyframes(s.keyframes[i-1], s.keyframes[i], t)
}

func staticGaussians(k Keyframe, t float64) []Gaussian {
	out := make([]Gaussian, len(k.gaussians))
	for i, g := range k.gaussians {
		out[i] = g.EvaluateAt(t)
	}
	return out
}

// interpolateKeyframes merge-walks the identity-ordered Gaussians of two
// adjacent keyframes.
func interpolateKeyframes(before, after Keyframe, t float64) []Gaussian {
	a, b := before.gaussians, after.gaussians
	out := make([]Gaussian, 0, max(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Identity == b[j].Identity:
			out = append(out, Interpolate(a[i], b[j], t))
			i++
			j++
		case a[i].Identity < b[j].Identity:
			out = append(out, a[i].EvaluateAt(t))
			i++
		default:
			out = append(out, b[j].EvaluateAt(t))
			j++
		}
	}
	for ; i < len(a); i++ {
		out = append(out, a[i].EvaluateAt(t))
	}
	for ; j < len(b); j++ {
		out = append(out, b[j].EvaluateAt(t))
	}
	return out
}

// KeyframeTimes returns the times of all keyframes in ascending order.
func (s *SceneGraph) KeyframeTimes() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return keyframeTimes(s.keyframes)
}

// Keyframe returns the keyframe at exactly time t, if there is one.
func (s *SceneGraph) Keyframe(t float64) (Keyframe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := searchKeyframes(s.keyframes, t)
	if !ok {
		return Keyframe{}, false
	}
	return s.keyframes[i], true
}

// NearestKeyframe returns the keyframe closest in time to t (ties favour the
// earlier one).
func (s *SceneGraph) NearestKeyframe(t float64) (Keyframe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nearestKeyframe(s.keyframes, t)
}

// Keyframes returns a snapshot of all keyframes in time order.
func (s *SceneGraph) Keyframes() []Keyframe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.keyframes)
}

func (s *SceneGraph) KeyframeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keyframes)
}

// TimeRange returns the span between the first and the last keyframe. It
// returns false for an empty scene.
func (s *SceneGraph) TimeRange() (TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.keyframes) == 0 {
		return TimeRange{}, false
	}
	return TimeRange{Start: s.keyframes[0].time, End: s.keyframes[len(s.keyframes)-1].time}, true
}

// Hash returns the content address of the scene's current keyframes.
func (s *SceneGraph) Hash() SceneHash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return HashKeyframes(s.keyframes)
}

// Clear removes every keyframe. Identities handed out before Clear are not
// handed out again.
func (s *SceneGraph) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyframes = nil
}

func (s *SceneGraph) String() string {
	return fmt.Sprintf("%s(%s)", s.name, s.id)
}

// A TimeRange is a closed interval of scene time.
type TimeRange struct {
	Start, End float64
}

// Contains reports whether t lies within r, bounds included.
func (r TimeRange) Contains(t float64) bool { return t >= r.Start && t <= r.End }

func (r TimeRange) Duration() float64 { return r.End - r.Start }
