package reconstruct

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/pubsub"

	"github.com/go-digitaltwin/go-splatscene"
)

// StrategyMetadataKey is the message metadata key that overrides the
// ingester's default Strategy for a single observation (e.g. "replace").
const StrategyMetadataKey = "strategy"

type ingester struct {
	scene    *splatscene.SceneGraph
	updater  Updater
	strategy Strategy
	source   *pubsub.Subscription
	sink     *pubsub.Topic
}

// NewIngester returns a [component.Procedure] that folds point-cloud
// observations (received from the given source) into scene and publishes a
// notification of every resulting change to the specified sink.
//
// It consumes gob-encoded splatscene.PointCloud messages and produces
// gob-encoded splatscene.SceneChanged messages. Each observation is applied at
// its own timestamp using strategy, unless the message metadata names another
// one under StrategyMetadataKey. A nil sink disables notifications.
//
// Observations that cannot be applied (undecodable, empty, conflicting) are
// logged and acknowledged, so a single bad message cannot stall the stream.
//
// The ingester measures the duration of handling each message and labels each
// measurement record with the scene's name.
func NewIngester(scene *splatscene.SceneGraph, updater Updater, strategy Strategy, source *pubsub.Subscription, sink *pubsub.Topic) component.Procedure {
	return ingester{
		scene:    scene,
		updater:  updater,
		strategy: strategy,
		source:   source,
		sink:     sink,
	}
}

func (in ingester) Exec(l *component.L) {
	logger := component.Logger(l.Context()).With(slog.String("scene", in.scene.Name()))
	for l.Continue() {
		msg, err := in.source.Receive(l.GraceContext())
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return
			}
			// A non-retryable error from the underlying driver; the subscription is
			// unusable from here on.
			l.Fatal(fmt.Errorf("receive: %w", err))
			return
		}

		_, err = in.handleMessage(l.GraceContext(), logger, msg)
		if err != nil {
			// Every change to the scene must be notified before the next observation
			// is applied. Leave the message unacknowledged so it is redelivered, and
			// stop.
			logger.Error("Couldn't handle observation message",
				slog.Any("error", err),
			)
			l.Fatal(fmt.Errorf("handle message %s: %w", msg.LoggableID, err))
			return
		}

		// Acknowledge the message only if the handling process is fully successful, as
		// the service maintains an at-least-once delivery constraint.
		msg.Ack()
	}
}

// handleMessage applies the observation carried by msg and publishes the
// resulting SceneChanged. It returns an error only if publishing fails; an
// observation that cannot be applied is logged and reported as skipped.
func (in ingester) handleMessage(ctx context.Context, logger *slog.Logger, msg *pubsub.Message) (skipped bool, err error) {
	ctx, span := tracer.Start(ctx, "ingester.handleMessage", trace.WithAttributes(
		attribute.String("msg.id", msg.LoggableID),
	))
	defer span.End()

	defer func(start time.Time) {
		measureIngest(ctx, in.scene.Name(), skipped, err == nil, time.Since(start))
	}(time.Now())

	logger = logger.With(slog.String("msg-id", msg.LoggableID))
	logger.Debug("New observation message received, decoding message using gob...")
	var cloud splatscene.PointCloud
	if err := gob.NewDecoder(bytes.NewReader(msg.Body)).Decode(&cloud); err != nil {
		logger.Error("Couldn't decode observation message, message skipped", slog.Any("error", err))
		span.SetStatus(codes.Error, err.Error())
		return true, nil
	}

	strategy := in.strategy
	if name, ok := msg.Metadata[StrategyMetadataKey]; ok {
		strategy, err = ParseStrategy(name)
		if err != nil {
			logger.Error("Observation message requested an unknown strategy, message skipped", slog.Any("error", err))
			span.SetStatus(codes.Error, err.Error())
			return true, nil
		}
	}

	report, err := in.updater.Apply(ctx, strategy, in.scene, cloud, cloud.Timestamp())
	if err != nil {
		logger.Warn("Couldn't apply observation, message skipped", slog.Any("error", err))
		span.SetStatus(codes.Error, err.Error())
		return true, nil
	}
	logger.Info("Observation applied",
		slog.String("strategy", strategy.String()),
		slog.Float64("keyframe-time", report.KeyframeTime),
		slog.Int("added", report.Added),
		slog.Int("fused", report.Fused),
		slog.Int("carried", report.Carried),
	)

	if in.sink == nil {
		return false, nil
	}
	return false, in.notifyChange(ctx, logger, report.Changes)
}

func (in ingester) notifyChange(ctx context.Context, logger *slog.Logger, changes splatscene.SceneChanged) error {
	ctx, span := tracer.Start(ctx, "ingester.notifyChange", trace.WithAttributes(
		attribute.Stringer("scene.hash", changes.SceneAfter),
	))
	defer span.End()

	logger.Debug("Encoding SceneChanged message using gob...")
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(changes); err != nil {
		err := fmt.Errorf("encode gob: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger.Debug("Sending SceneChanged message...")
	// The scene ID is included as metadata so brokers that partition by key keep
	// the notifications of one scene in order.
	msg := &pubsub.Message{Body: b.Bytes(), Metadata: map[string]string{"sceneID": changes.SceneID.String()}}
	if err := in.sink.Send(ctx, msg); err != nil {
		err := fmt.Errorf("send: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.Debug("SceneChanged message sent successfully")
	return nil
}
