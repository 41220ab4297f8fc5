package reconstruct

import (
	"bytes"
	"context"
	"encoding/gob"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/mempubsub"

	"github.com/go-digitaltwin/go-splatscene"
)

// newTestIngester returns an ingester for a fresh scene that publishes to an
// in-memory topic, and a subscription to that topic.
func newTestIngester(t *testing.T, strategy Strategy) (ingester, *pubsub.Subscription) {
	t.Helper()
	ctx := context.Background()
	topic := mempubsub.NewTopic()
	t.Cleanup(func() { _ = topic.Shutdown(ctx) })
	// mempubsub only delivers to subscriptions that exist when a message is sent.
	sub := mempubsub.NewSubscription(topic, time.Minute)
	t.Cleanup(func() { _ = sub.Shutdown(ctx) })

	updater, err := NewUpdater(DefaultConfig())
	if err != nil {
		t.Fatalf("NewUpdater() failed: %v", err)
	}
	in := NewIngester(splatscene.NewSceneGraph("ingest"), updater, strategy, nil, topic).(ingester)
	return in, sub
}

func observationMessage(t *testing.T, cloud splatscene.PointCloud, metadata map[string]string) *pubsub.Message {
	t.Helper()
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(cloud); err != nil {
		t.Fatalf("Encode(PointCloud) failed: %v", err)
	}
	return &pubsub.Message{LoggableID: "test", Body: b.Bytes(), Metadata: metadata}
}

func receiveChange(t *testing.T, sub *pubsub.Subscription) splatscene.SceneChanged {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := sub.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() failed: %v", err)
	}
	msg.Ack()

	var changes splatscene.SceneChanged
	if err := gob.NewDecoder(bytes.NewReader(msg.Body)).Decode(&changes); err != nil {
		t.Fatalf("Decode(SceneChanged) failed: %v", err)
	}
	if got, want := msg.Metadata["sceneID"], changes.SceneID.String(); got != want {
		t.Errorf("sceneID metadata = %q, want %q", got, want)
	}
	return changes
}

// expectSilence fails if sub delivers any message in a short while.
func expectSilence(t *testing.T, sub *pubsub.Subscription) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if msg, err := sub.Receive(ctx); err == nil {
		msg.Ack()
		t.Errorf("received an unexpected message: %s", msg.Body)
	}
}

var discard = slog.New(slog.DiscardHandler)

func TestIngesterPublishesChanges(t *testing.T) {
	ctx := context.Background()
	in, sub := newTestIngester(t, Append)

	cloud := splatscene.NewPointCloud(1.5, splatscene.NewPoint(0, 0, 0), splatscene.NewPoint(1, 0, 0))
	skipped, err := in.handleMessage(ctx, discard, observationMessage(t, cloud, nil))
	if err != nil || skipped {
		t.Fatalf("handleMessage() = %v, %v; want the observation applied", skipped, err)
	}

	changes := receiveChange(t, sub)
	if diff := cmp.Diff([]float64{1.5}, changes.Inserted); diff != "" {
		t.Errorf("Inserted mismatch (-want +got):\n%v", diff)
	}
	if changes.SceneID != in.scene.ID() || changes.SceneAfter != in.scene.Hash() {
		t.Errorf("SceneChanged = %+v, does not describe the scene %v", changes, in.scene)
	}
	if got := len(in.scene.GaussiansAt(1.5)); got != 2 {
		t.Errorf("len(GaussiansAt(1.5)) = %d, want 2", got)
	}
}

func TestIngesterStrategyMetadata(t *testing.T) {
	ctx := context.Background()
	in, sub := newTestIngester(t, Append)

	first := splatscene.NewPointCloud(0, splatscene.NewPoint(0, 0, 0))
	if _, err := in.handleMessage(ctx, discard, observationMessage(t, first, nil)); err != nil {
		t.Fatalf("handleMessage(first) failed: %v", err)
	}
	receiveChange(t, sub)

	// Append would conflict; the metadata asks for Replace instead.
	second := splatscene.NewPointCloud(0, splatscene.NewPoint(5, 0, 0), splatscene.NewPoint(6, 0, 0))
	metadata := map[string]string{StrategyMetadataKey: "replace"}
	skipped, err := in.handleMessage(ctx, discard, observationMessage(t, second, metadata))
	if err != nil || skipped {
		t.Fatalf("handleMessage(second) = %v, %v; want the observation applied", skipped, err)
	}
	changes := receiveChange(t, sub)
	if diff := cmp.Diff([]float64{0}, changes.Replaced); diff != "" {
		t.Errorf("Replaced mismatch (-want +got):\n%v", diff)
	}
	if got := len(in.scene.GaussiansAt(0)); got != 2 {
		t.Errorf("len(GaussiansAt(0)) = %d, want 2", got)
	}
}

func TestIngesterSkipsPoisonMessages(t *testing.T) {
	ctx := context.Background()
	in, sub := newTestIngester(t, Append)

	tests := []struct {
		Name string
		Msg  *pubsub.Message
	}{
		{
			Name: "undecodable",
			Msg:  &pubsub.Message{LoggableID: "garbage", Body: []byte("not a gob")},
		},
		{
			Name: "unknown strategy",
			Msg: observationMessage(t,
				splatscene.NewPointCloud(0, splatscene.NewPoint(0, 0, 0)),
				map[string]string{StrategyMetadataKey: "rewind"},
			),
		},
		{
			Name: "empty cloud",
			Msg:  observationMessage(t, splatscene.NewPointCloud(0), nil),
		},
	}
	for _, tt := range tests {
		skipped, err := in.handleMessage(ctx, discard, tt.Msg)
		if err != nil || !skipped {
			t.Errorf("handleMessage(%s) = %v, %v; want the message skipped", tt.Name, skipped, err)
		}
	}

	expectSilence(t, sub)
	if n := in.scene.KeyframeCount(); n != 0 {
		t.Errorf("KeyframeCount() = %d, want an untouched scene", n)
	}
}

func TestIngesterWithoutSink(t *testing.T) {
	updater, err := NewUpdater(DefaultConfig())
	if err != nil {
		t.Fatalf("NewUpdater() failed: %v", err)
	}
	in := NewIngester(splatscene.NewSceneGraph("quiet"), updater, Merge, nil, nil).(ingester)

	cloud := splatscene.NewPointCloud(0, splatscene.NewPoint(0, 0, 0))
	skipped, err := in.handleMessage(context.Background(), discard, observationMessage(t, cloud, nil))
	if err != nil || skipped {
		t.Fatalf("handleMessage() = %v, %v; want the observation applied", skipped, err)
	}
	if n := in.scene.KeyframeCount(); n != 1 {
		t.Errorf("KeyframeCount() = %d, want 1", n)
	}
}
