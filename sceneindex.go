package splatscene

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/google/uuid"
	"gocloud.dev/pubsub"
)

// ErrDiscontinuity is returned by SceneIndex.Update for a SceneChanged whose
// SceneBefore does not match the last hash seen for that scene, meaning at least
// one notification was missed or reordered.
var ErrDiscontinuity = errors.New("splatscene: discontinuity in scene changes")

// SceneState is what a SceneIndex knows about a single scene.
type SceneState struct {
	// Hash is the SceneAfter of the last applied notification.
	Hash SceneHash
	// KeyframeTimes holds the times of keyframes inserted since the scene was
	// first seen, in ascending order.
	KeyframeTimes []float64
	// Updated is the commit timestamp of the last applied notification.
	Updated time.Time
}

// SceneIndex is a remote view of scenes, built from the SceneChanged
// notifications an ingester publishes. It only knows about the keyframes
// inserted after it started following a scene.
//
// SceneIndex is safe for concurrent use.
type SceneIndex struct {
	mu     sync.Mutex
	scenes map[uuid.UUID]SceneState
}

// Find returns the last known state of the scene with the given ID. The
// returned state is a copy.
func (x *SceneIndex) Find(id uuid.UUID) (SceneState, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	s, ok := x.scenes[id]
	s.KeyframeTimes = slices.Clone(s.KeyframeTimes)
	return s, ok
}

// Update folds changes into the index. It rejects a notification that does
// not continue the last one seen for the same scene with ErrDiscontinuity, and
// leaves the index unmodified.
func (x *SceneIndex) Update(changes SceneChanged) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	s, known := x.scenes[changes.SceneID]
	if known && s.Hash != changes.SceneBefore {
		return fmt.Errorf("%w: scene %v is at %v, notification continues %v",
			ErrDiscontinuity, changes.SceneID, s.Hash, changes.SceneBefore)
	}

	times := slices.Clone(s.KeyframeTimes)
	for _, t := range changes.Inserted {
		if i, found := slices.BinarySearch(times, t); !found {
			times = slices.Insert(times, i, t)
		}
	}
	if x.scenes == nil {
		x.scenes = make(map[uuid.UUID]SceneState)
	}
	x.scenes[changes.SceneID] = SceneState{Hash: changes.SceneAfter, KeyframeTimes: times, Updated: changes.Timestamp}
	return nil
}

// All iterates over the IDs of every known scene, in no particular order. The
// IDs are snapshotted when All is called.
func (x *SceneIndex) All() iter.Seq[uuid.UUID] {
	x.mu.Lock()
	ids := slices.Collect(maps.Keys(x.scenes))
	x.mu.Unlock()
	return slices.Values(ids)
}

// TrackScenes returns a component.Proc that follows the SceneChanged
// notifications received from source and keeps x up to date.
//
// Notifications are applied sequentially. A discontinuity means the index can
// no longer be trusted, so the procedure stops.
func TrackScenes(x *SceneIndex, source *pubsub.Subscription) component.Proc {
	return func(l *component.L) {
		for l.Continue() {
			msg, err := source.Receive(l.GraceContext())
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				l.Errorf("receive: %v", err)
				continue
			}
			var changes SceneChanged
			dec := gob.NewDecoder(bytes.NewReader(msg.Body))
			if err := dec.Decode(&changes); err != nil {
				l.Fatalf("Failed to unmarshal scene changes; stopping scene tracking: %v", err)
			}
			if err := x.Update(changes); err != nil {
				l.Fatalf("Exiting due to detected discontinuity: %v", err)
			}
			msg.Ack()
		}
	}
}
