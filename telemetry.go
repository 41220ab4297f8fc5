package splatscene

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/go-splatscene")
var meter = otel.Meter("github.com/go-digitaltwin/go-splatscene")

// ---- scene.go ----

const (
	// sceneNameKey is the attribute key used to associate each record with the
	// corresponding scene name. This enables analysis of metrics, such as
	// applyDuration and applyFailures, both across all scenes and per scene.
	sceneNameKey = "scene"
)

var (
	// applyDuration measures the duration of a single SceneGraph.Apply, including
	// the time spent waiting for the write lock.
	//
	// Each record is associated with the sceneNameKey.
	applyDuration metric.Float64Histogram
	// applyFailures measures the number of Mutations that failed and were rolled
	// back.
	//
	// Each record is associated with the sceneNameKey.
	applyFailures metric.Int64Counter
)

func init() {
	var err error
	applyDuration, err = meter.Float64Histogram(
		"scene.apply.duration",
		metric.WithDescription("The duration of applying a single Mutation to a scene, including the time spent waiting for the write lock."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("splatscene: failed to init 'scene.apply.duration' instrument")
	}

	applyFailures, err = meter.Int64Counter(
		"scene.apply.failures",
		metric.WithDescription("The number of Mutations that have failed and were rolled back."),
	)
	if err != nil {
		panic("splatscene: failed to init 'scene.apply.failures' instrument")
	}
}

// measureApply records the duration of a successful Apply, or counts a failed
// one. Each record is labeled with the scene's name.
func measureApply(ctx context.Context, sceneName string, succeeded bool, d time.Duration) {
	attrs := attribute.NewSet(attribute.String(sceneNameKey, sceneName))
	if succeeded {
		// We use floating-point division here for higher precision (instead of the
		// Millisecond method).
		duration := float64(d) / float64(time.Millisecond)
		applyDuration.Record(ctx, duration, metric.WithAttributeSet(attrs))
	} else {
		applyFailures.Add(ctx, 1, metric.WithAttributeSet(attrs))
	}
}
