package splatscene

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"gocloud.dev/pubsub"

	"github.com/danielorbach/go-component"
)

func TestSceneIndexFollowsChanges(t *testing.T) {
	ctx := context.Background()
	scene := NewSceneGraph("followed")
	var index SceneIndex

	apply := func(m Mutation) {
		t.Helper()
		changes, err := scene.Apply(ctx, m)
		if err != nil {
			t.Fatalf("Apply() failed: %v", err)
		}
		if err := index.Update(changes); err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
	}
	apply(insert(mustKeyframe(t, 2, splat(1, 0, 0, 0))))
	apply(insert(mustKeyframe(t, 0, splat(2, 0, 0, 0)), mustKeyframe(t, 1, splat(3, 0, 0, 0))))
	apply(func(w KeyframeWriter) error {
		_, err := w.ReplaceKeyframe(mustKeyframe(t, 1, splat(4, 1, 0, 0)))
		return err
	})

	got, ok := index.Find(scene.ID())
	if !ok {
		t.Fatalf("Find(%v) found nothing", scene.ID())
	}
	if diff := cmp.Diff([]float64{0, 1, 2}, got.KeyframeTimes); diff != "" {
		t.Errorf("KeyframeTimes mismatch (-want +got):\n%v", diff)
	}
	if got.Hash != scene.Hash() {
		t.Errorf("Hash = %v, want %v", got.Hash, scene.Hash())
	}
	if ids := slices.Collect(index.All()); !slices.Equal(ids, []uuid.UUID{scene.ID()}) {
		t.Errorf("All() = %v, want [%v]", ids, scene.ID())
	}
	if _, ok := index.Find(uuid.New()); ok {
		t.Errorf("Find(unknown scene) reported a match")
	}
}

func TestSceneIndexDiscontinuity(t *testing.T) {
	ctx := context.Background()
	scene := NewSceneGraph("gappy")
	var index SceneIndex

	first, err := scene.Apply(ctx, insert(mustKeyframe(t, 0, splat(1, 0, 0, 0))))
	if err != nil {
		t.Fatalf("Apply(first) failed: %v", err)
	}
	if err := index.Update(first); err != nil {
		t.Fatalf("Update(first) failed: %v", err)
	}
	// The second notification is lost.
	if _, err := scene.Apply(ctx, insert(mustKeyframe(t, 1, splat(1, 0, 0, 0)))); err != nil {
		t.Fatalf("Apply(second) failed: %v", err)
	}
	third, err := scene.Apply(ctx, insert(mustKeyframe(t, 2, splat(1, 0, 0, 0))))
	if err != nil {
		t.Fatalf("Apply(third) failed: %v", err)
	}

	if err := index.Update(third); !errors.Is(err, ErrDiscontinuity) {
		t.Fatalf("Update(third) = %v, want %v", err, ErrDiscontinuity)
	}
	got, _ := index.Find(scene.ID())
	if got.Hash != first.SceneAfter || !slices.Equal(got.KeyframeTimes, []float64{0}) {
		t.Errorf("Find() = %+v, want the state after the first notification", got)
	}
}

// The following example demonstrates keeping a SceneIndex up to date from the
// notifications published by an ingester. This code is for illustration
// purposes only and is not meant to be executed as is.
func ExampleTrackScenes() {
	// Normally, a component is given a linker that is used to open an interest
	// to the appropriate target. For this example, we assume the outcome of that
	// process is stored at the following variable.
	var sceneChanges *pubsub.Subscription

	var index SceneIndex
	component.RunProc(func(l *component.L) {
		l.Fork("track scenes", TrackScenes(&index, sceneChanges))
		l.Go("report", func(l *component.L) {
			for id := range index.All() {
				if s, ok := index.Find(id); ok {
					l.Logf("Scene %v has %d keyframes at %v", id, len(s.KeyframeTimes), s.Hash)
				}
			}
		})
	})
}
