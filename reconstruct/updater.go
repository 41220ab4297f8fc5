package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-digitaltwin/go-splatscene"
)

// Strategy decides how the Gaussians seeded from an observation enter a scene.
type Strategy int

const (
	// Append inserts a new keyframe and fails if one already exists at that
	// time.
	Append Strategy = iota
	// Replace supersedes the keyframe at that time wholesale, or inserts one.
	// Candidates inherit the identities of nearby splats of the superseded
	// keyframe.
	Replace
	// Merge fuses candidates into nearby splats of the closest keyframe within
	// the merge time tolerance, or inserts a new keyframe if there is none.
	Merge
	// Track inserts a new keyframe whose candidates inherit the identities of
	// nearby splats of the preceding keyframe.
	Track
)

var strategyNames = [...]string{
	Append:  "append",
	Replace: "replace",
	Merge:   "merge",
	Track:   "track",
}

func (s Strategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "Strategy(" + strconv.Itoa(int(s)) + ")"
}

// ParseStrategy returns the Strategy named by s (e.g. "merge").
func ParseStrategy(s string) (Strategy, error) {
	for i, name := range strategyNames {
		if name == s {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownStrategy, s)
}

func (s Strategy) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(strategyNames) {
		return nil, fmt.Errorf("%w %d", ErrUnknownStrategy, int(s))
	}
	return []byte(strategyNames[s]), nil
}

func (s *Strategy) UnmarshalText(text []byte) (err error) {
	*s, err = ParseStrategy(string(text))
	return err
}

// ErrUnknownStrategy is returned for a Strategy outside the defined constants.
var ErrUnknownStrategy = errors.New("reconstruct: unknown strategy")

// An UpdateError records a failed update and the reason it failed. Err unwraps
// to one of the splatscene sentinel errors, ErrUnknownStrategy or
// ErrUnknownPolicy.
type UpdateError struct {
	Strategy Strategy
	Time     float64
	Err      error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("%v update at t=%v: %v", e.Strategy, e.Time, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// UpdateReport summarizes a single update.
type UpdateReport struct {
	Strategy Strategy
	// Time is the requested time of the update.
	Time float64
	// KeyframeTime is the time of the keyframe that was written. It differs
	// from Time only when Merge fused into a nearby keyframe.
	KeyframeTime float64

	// Points, Skipped and Degenerate are the Initializer's InitStats.
	Points     int
	Skipped    int
	Degenerate int

	// Added counts Gaussians that entered the scene under a fresh identity.
	Added int
	// Fused counts candidates merged into an existing splat.
	Fused int
	// Carried counts candidates that inherited the identity of an existing
	// splat.
	Carried int
	// Replaced reports whether an existing keyframe was superseded.
	Replaced bool

	Changes splatscene.SceneChanged
}

// An Updater folds point-cloud observations into a scene. Its zero value is not
// usable; create one with NewUpdater.
//
// An Updater holds no mutable state, so it may serve any number of scenes and
// goroutines concurrently.
type Updater struct {
	initializer          Initializer
	mergeDistance        float64
	mergeTimeTolerance   float64
	maxObservationWeight uint32
}

// NewUpdater returns an Updater configured by cfg.
func NewUpdater(cfg Config) (Updater, error) {
	if err := cfg.Validate(); err != nil {
		return Updater{}, fmt.Errorf("new updater: %w", err)
	}
	return Updater{
		initializer:          cfg.Initializer(),
		mergeDistance:        cfg.MergeDistance,
		mergeTimeTolerance:   cfg.MergeTimeTolerance,
		maxObservationWeight: cfg.MaxObservationWeight,
	}, nil
}

// Apply seeds Gaussians from cloud and writes them into scene at time t,
// according to strategy.
//
// Seeding runs before the scene is locked, so concurrent readers are only
// blocked while the keyframes are written. If the update fails, the scene is
// left unchanged and the error is an *UpdateError.
func (u Updater) Apply(ctx context.Context, strategy Strategy, scene *splatscene.SceneGraph, cloud splatscene.PointCloud, t float64) (report UpdateReport, err error) {
	ctx, span := tracer.Start(ctx, "Updater.Apply", trace.WithAttributes(
		attribute.String("scene.name", scene.Name()),
		attribute.Stringer("update.strategy", strategy),
		attribute.Float64("update.time", t),
		attribute.Int("cloud.points", cloud.Len()),
	))
	defer span.End()

	defer func(start time.Time) {
		measureUpdate(ctx, scene.Name(), strategy, err == nil, time.Since(start))
	}(time.Now())

	defer func() {
		if err != nil {
			err = &UpdateError{Strategy: strategy, Time: t, Err: err}
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	logger := component.Logger(ctx).With(
		slog.String("scene", scene.Name()),
		slog.String("strategy", strategy.String()),
		slog.Float64("time", t),
	)

	report = UpdateReport{Strategy: strategy, Time: t}
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return report, splatscene.ErrInvalidTimestamp
	}
	if _, err := strategy.MarshalText(); err != nil {
		return report, err
	}

	logger.Debug("Seeding Gaussians from point cloud...", slog.Int("points", cloud.Len()))
	candidates, stats, err := u.initializer.Initialize(cloud, scene)
	if err != nil {
		return report, err
	}
	report.Points, report.Skipped, report.Degenerate = stats.Points, stats.Skipped, stats.Degenerate
	measureSeeding(ctx, scene.Name(), stats)
	if stats.Skipped > 0 || stats.Degenerate > 0 {
		logger.Warn("Point cloud contained unusable samples",
			slog.Int("skipped", stats.Skipped),
			slog.Int("degenerate", stats.Degenerate),
		)
	}
	if len(candidates) == 0 {
		return report, splatscene.ErrEmptyPointCloud
	}

	var out outcome
	var mutation splatscene.Mutation
	switch strategy {
	case Append:
		mutation = u.appendKeyframe(t, candidates, &out)
	case Replace:
		mutation = u.replaceKeyframe(t, candidates, &out)
	case Merge:
		mutation = u.mergeKeyframe(t, candidates, &out)
	case Track:
		mutation = u.trackKeyframe(t, candidates, &out)
	}

	logger.Debug("Writing keyframe...", slog.Int("candidates", len(candidates)))
	changes, err := scene.Apply(ctx, mutation)
	if err != nil {
		return report, err
	}

	report.KeyframeTime = out.keyframeTime
	report.Added = out.added
	report.Fused = out.fused
	report.Carried = out.carried
	report.Replaced = out.replaced
	report.Changes = changes
	logger.Debug("Keyframe written",
		slog.Float64("keyframe-time", report.KeyframeTime),
		slog.Int("added", report.Added),
		slog.Int("fused", report.Fused),
		slog.Int("carried", report.Carried),
		slog.Any("scene-after-hash", changes.SceneAfter),
	)
	return report, nil
}

// outcome collects what a Mutation did. It is only read after the Mutation
// committed.
type outcome struct {
	keyframeTime float64
	added        int
	fused        int
	carried      int
	replaced     bool
}

func (u Updater) appendKeyframe(t float64, candidates []splatscene.Gaussian4D, out *outcome) splatscene.Mutation {
	return func(w splatscene.KeyframeWriter) error {
		var b splatscene.KeyframeBuilder
		b.Add(candidates...)
		if err := w.InsertKeyframe(b.Build(t)); err != nil {
			return err
		}
		*out = outcome{keyframeTime: t, added: b.Len()}
		return nil
	}
}

func (u Updater) replaceKeyframe(t float64, candidates []splatscene.Gaussian4D, out *outcome) splatscene.Mutation {
	return func(w splatscene.KeyframeWriter) error {
		candidates := slices.Clone(candidates)
		carried := 0
		if previous, ok := w.Keyframe(t); ok {
			carried = inheritIdentities(candidates, previous, u.mergeDistance)
		}
		var b splatscene.KeyframeBuilder
		b.Add(candidates...)
		replaced, err := w.ReplaceKeyframe(b.Build(t))
		if err != nil {
			return err
		}
		*out = outcome{keyframeTime: t, added: b.Len() - carried, carried: carried, replaced: replaced}
		return nil
	}
}

func (u Updater) trackKeyframe(t float64, candidates []splatscene.Gaussian4D, out *outcome) splatscene.Mutation {
	return func(w splatscene.KeyframeWriter) error {
		candidates := slices.Clone(candidates)
		carried := 0
		if previous, ok := w.Before(t); ok {
			carried = inheritIdentities(candidates, previous, u.mergeDistance)
		}
		var b splatscene.KeyframeBuilder
		b.Add(candidates...)
		if err := w.InsertKeyframe(b.Build(t)); err != nil {
			return err
		}
		*out = outcome{keyframeTime: t, added: b.Len() - carried, carried: carried}
		return nil
	}
}

func (u Updater) mergeKeyframe(t float64, candidates []splatscene.Gaussian4D, out *outcome) splatscene.Mutation {
	return func(w splatscene.KeyframeWriter) error {
		target, ok := w.Nearest(t)
		if !ok || math.Abs(target.Time()-t) > u.mergeTimeTolerance {
			var b splatscene.KeyframeBuilder
			b.Add(candidates...)
			if err := w.InsertKeyframe(b.Build(t)); err != nil {
				return err
			}
			*out = outcome{keyframeTime: t, added: b.Len()}
			return nil
		}

		existing, fresh, fused := fuseInto(target, candidates, u.mergeDistance, u.maxObservationWeight)
		var b splatscene.KeyframeBuilder
		b.Hint(len(existing) + len(fresh))
		b.Add(existing...)
		b.Add(fresh...)
		replaced, err := w.ReplaceKeyframe(b.Build(target.Time()))
		if err != nil {
			return err
		}
		*out = outcome{keyframeTime: target.Time(), added: len(fresh), fused: fused, replaced: replaced}
		return nil
	}
}
