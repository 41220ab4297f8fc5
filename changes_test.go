package splatscene

import (
	"bytes"
	"encoding/gob"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestFormatChanges(t *testing.T) {
	before := HashKeyframes(nil)
	after := HashKeyframes([]Keyframe{mustKeyframe(t, 0, splat(1, 0, 0, 0))})
	changes := SceneChanged{
		SceneBefore: before,
		Inserted:    []float64{0, 2.5},
		Replaced:    []float64{1},
		SceneAfter:  after,
	}

	want := "" +
		"  baseline snapshot: " + before.String() + "\n" +
		"  + keyframe t=0\n" +
		"  + keyframe t=2.5\n" +
		"  * keyframe t=1\n" +
		"  current snapshot: " + after.String() + "\n"
	if diff := cmp.Diff(want, FormatChanges(changes, "  ")); diff != "" {
		t.Errorf("FormatChanges() mismatch (-want +got):\n%s", diff)
	}
}

// SceneChanged is published as a gob message body; its hashes travel in their
// text form.
func TestSceneChangedGob(t *testing.T) {
	want := SceneChanged{
		SceneID:     uuid.New(),
		SceneBefore: HashKeyframes(nil),
		Inserted:    []float64{4},
		SceneAfter:  HashKeyframes([]Keyframe{mustKeyframe(t, 4, splat(1, 0, 0, 0))}),
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(want); err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	var got SceneChanged
	if err := gob.NewDecoder(&b).Decode(&got); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("gob round-trip mismatch (-want +got):\n%s", diff)
	}
}
