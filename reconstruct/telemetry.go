package reconstruct

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/go-splatscene/reconstruct")
var meter = otel.Meter("github.com/go-digitaltwin/go-splatscene/reconstruct")

const (
	// sceneNameKey associates each record with the name of the updated scene.
	sceneNameKey = "scene"
	// strategyKey associates each record with the update Strategy.
	strategyKey = "strategy"
)

// ---- updater.go ----

var (
	// updateDuration measures the duration of a single Updater.Apply, seeding
	// included.
	//
	// Each record is associated with the sceneNameKey and the strategyKey.
	updateDuration metric.Float64Histogram
	// updateFailures measures the number of failed updates.
	//
	// Each record is associated with the sceneNameKey and the strategyKey.
	updateFailures metric.Int64Counter
	// skippedPoints measures the number of points dropped for a non-finite
	// position.
	//
	// Each record is associated with the sceneNameKey.
	skippedPoints metric.Int64Counter
	// degenerateGaussians measures the number of seeded Gaussians that needed
	// repair.
	//
	// Each record is associated with the sceneNameKey.
	degenerateGaussians metric.Int64Counter
)

// ---- ingest.go ----

var (
	// ingestDuration measures the duration of handling a single observation
	// message, including publishing its SceneChanged notification.
	//
	// Each record is associated with the sceneNameKey.
	ingestDuration metric.Float64Histogram
	// ingestFailures measures the number of observation messages that could not
	// be handled and were left unacknowledged.
	//
	// Each record is associated with the sceneNameKey.
	ingestFailures metric.Int64Counter
	// ingestSkipped measures the number of observation messages that were
	// acknowledged without changing the scene (undecodable, unknown strategy or
	// rejected by the Updater).
	//
	// Each record is associated with the sceneNameKey.
	ingestSkipped metric.Int64Counter
)

func init() {
	var err error
	updateDuration, err = meter.Float64Histogram(
		"update.duration",
		metric.WithDescription("The duration of folding a single point cloud into a scene, including seeding its Gaussians."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("reconstruct: failed to init 'update.duration' instrument")
	}

	updateFailures, err = meter.Int64Counter(
		"update.failures",
		metric.WithDescription("The number of updates that have failed and left their scene unchanged."),
	)
	if err != nil {
		panic("reconstruct: failed to init 'update.failures' instrument")
	}

	skippedPoints, err = meter.Int64Counter(
		"update.points.skipped",
		metric.WithDescription("The number of points dropped for a non-finite position."),
	)
	if err != nil {
		panic("reconstruct: failed to init 'update.points.skipped' instrument")
	}

	degenerateGaussians, err = meter.Int64Counter(
		"update.gaussians.degenerate",
		metric.WithDescription("The number of seeded Gaussians whose attributes had to be repaired."),
	)
	if err != nil {
		panic("reconstruct: failed to init 'update.gaussians.degenerate' instrument")
	}

	ingestDuration, err = meter.Float64Histogram(
		"ingest.duration",
		metric.WithDescription("The duration of handling a single observation message, including publishing its SceneChanged notification."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("reconstruct: failed to init 'ingest.duration' instrument")
	}

	ingestFailures, err = meter.Int64Counter(
		"ingest.failures",
		metric.WithDescription("The number of observation messages left unacknowledged because their SceneChanged notification could not be published."),
	)
	if err != nil {
		panic("reconstruct: failed to init 'ingest.failures' instrument")
	}

	ingestSkipped, err = meter.Int64Counter(
		"ingest.skipped",
		metric.WithDescription("The number of observation messages acknowledged without changing the scene."),
	)
	if err != nil {
		panic("reconstruct: failed to init 'ingest.skipped' instrument")
	}
}

// measureUpdate records the duration of a successful update, or counts a failed
// one. Each record is labeled with the scene name and the strategy.
//
// According to [metric] documentation, [metric.WithAttributeSet] should be used
// instead of [metric.WithAttributes] for performance optimization.
func measureUpdate(ctx context.Context, sceneName string, strategy Strategy, succeeded bool, d time.Duration) {
	attrs := attribute.NewSet(
		attribute.String(sceneNameKey, sceneName),
		attribute.String(strategyKey, strategy.String()),
	)
	if succeeded {
		// We use floating-point division here for higher precision (instead of the
		// Millisecond method).
		duration := float64(d) / float64(time.Millisecond)
		updateDuration.Record(ctx, duration, metric.WithAttributeSet(attrs))
	} else {
		updateFailures.Add(ctx, 1, metric.WithAttributeSet(attrs))
	}
}

// measureSeeding counts the unusable samples reported by an Initializer.
func measureSeeding(ctx context.Context, sceneName string, stats InitStats) {
	attrs := attribute.NewSet(attribute.String(sceneNameKey, sceneName))
	if stats.Skipped > 0 {
		skippedPoints.Add(ctx, int64(stats.Skipped), metric.WithAttributeSet(attrs))
	}
	if stats.Degenerate > 0 {
		degenerateGaussians.Add(ctx, int64(stats.Degenerate), metric.WithAttributeSet(attrs))
	}
}

// measureIngest records the duration of an applied message, or counts a
// skipped or failed one. Each record is labeled with the scene name.
func measureIngest(ctx context.Context, sceneName string, skipped, succeeded bool, d time.Duration) {
	attrs := attribute.NewSet(attribute.String(sceneNameKey, sceneName))
	switch {
	case !succeeded:
		ingestFailures.Add(ctx, 1, metric.WithAttributeSet(attrs))
	case skipped:
		ingestSkipped.Add(ctx, 1, metric.WithAttributeSet(attrs))
	default:
		duration := float64(d) / float64(time.Millisecond)
		ingestDuration.Record(ctx, duration, metric.WithAttributeSet(attrs))
	}
}
