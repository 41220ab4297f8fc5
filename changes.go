package splatscene

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SceneChanged notifies the time-varying scene maintained by a SceneGraph has
// changed. The message contains the keyframes inserted and replaced by a single
// applied Mutation. The state of the scene before the Mutation is hashed as
// SceneBefore; the state right after it is hashed as SceneAfter.
type SceneChanged struct {
	// The scene that changed (see SceneGraph.ID).
	SceneID     uuid.UUID
	SceneBefore SceneHash
	// Times of keyframes that did not exist before, in the order they were
	// written.
	Inserted []float64
	// Times of keyframes that were superseded wholesale.
	Replaced   []float64
	SceneAfter SceneHash
	// The time, in UTC, the change was committed. The information in this
	// message is accurate up to this timestamp, not a moment afterwards.
	Timestamp time.Time
}

// IsEmpty returns true if the notification contains no changes. Meaning, the
// scene had not changed between SceneBefore and SceneAfter.
func (c SceneChanged) IsEmpty() bool {
	return c.SceneAfter == c.SceneBefore
}

// FormatChanges returns a human-readable representation of the changeset.
// The indent string is prepended to each line.
func FormatChanges(changes SceneChanged, indent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, indent+"baseline snapshot: %v\n", changes.SceneBefore)
	for _, t := range changes.Inserted {
		fmt.Fprintf(&b, indent+"+ keyframe t=%g\n", t)
	}
	for _, t := range changes.Replaced {
		fmt.Fprintf(&b, indent+"* keyframe t=%g\n", t)
	}
	fmt.Fprintf(&b, indent+"current snapshot: %v\n", changes.SceneAfter)
	return b.String()
}
