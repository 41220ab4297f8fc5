package reconstruct

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/go-digitaltwin/go-splatscene"
)

func splat(id splatscene.Identity, x float32) splatscene.Gaussian4D {
	return splatscene.Gaussian4D{
		Gaussian: splatscene.Gaussian{
			Position: mgl32.Vec3{x, 0, 0},
			Rotation: mgl32.QuatIdent(),
			Scale:    mgl32.Vec3{1, 1, 1},
			Color:    mgl32.Vec3{0, 0, 0},
			Opacity:  1,
		},
		Identity:     id,
		Observations: 1,
	}
}

func keyframeOf(t *testing.T, time float64, gs ...splatscene.Gaussian4D) splatscene.Keyframe {
	t.Helper()
	k, err := splatscene.NewKeyframe(time, gs...)
	if err != nil {
		t.Fatalf("NewKeyframe() failed: %v", err)
	}
	return k
}

func TestFuseRunningAverage(t *testing.T) {
	s := splat(1, 0)
	candidate := splat(99, 3)
	candidate.Color = mgl32.Vec3{1, 1, 1}
	candidate.Opacity = 0

	s = fuse(s, candidate, 64)
	if want := (mgl32.Vec3{1.5, 0, 0}); !s.Position.ApproxEqual(want) {
		t.Errorf("Position after 1 fusion = %v, want %v", s.Position, want)
	}
	if s.Opacity != 0.5 || s.Color != (mgl32.Vec3{0.5, 0.5, 0.5}) {
		t.Errorf("Opacity, Color after 1 fusion = %v, %v; want 0.5, [0.5 0.5 0.5]", s.Opacity, s.Color)
	}
	if s.Identity != 1 || s.Observations != 2 {
		t.Errorf("Identity, Observations = %v, %v; want splat(1), 2", s.Identity, s.Observations)
	}

	// The third observation weighs one third.
	s = fuse(s, splat(99, 0), 64)
	if want := (mgl32.Vec3{1, 0, 0}); !s.Position.ApproxEqual(want) {
		t.Errorf("Position after 2 fusions = %v, want %v", s.Position, want)
	}
}

func TestFuseWeightCap(t *testing.T) {
	s := splat(1, 0)
	s.Observations = 1000
	s = fuse(s, splat(99, 3), 2)
	// capped at 2 observations, the candidate weighs one third
	if want := (mgl32.Vec3{1, 0, 0}); !s.Position.ApproxEqual(want) {
		t.Errorf("Position = %v, want %v", s.Position, want)
	}
	if s.Observations != 1001 {
		t.Errorf("Observations = %v, want 1001", s.Observations)
	}
}

func TestFuseInto(t *testing.T) {
	target := keyframeOf(t, 0, splat(1, 0), splat(2, 10))
	candidates := []splatscene.Gaussian4D{splat(10, 0.01), splat(11, 5), splat(12, 10)}

	existing, fresh, fused := fuseInto(target, candidates, 0.1, 64)
	if fused != 2 {
		t.Errorf("fused = %d, want 2", fused)
	}
	if diff := cmp.Diff([]splatscene.Gaussian4D{splat(11, 5)}, fresh); diff != "" {
		t.Errorf("fresh mismatch (-want +got):\n%v", diff)
	}
	wantPositions := []mgl32.Vec3{{0.005, 0, 0}, {10, 0, 0}}
	gotPositions := []mgl32.Vec3{existing[0].Position, existing[1].Position}
	if diff := cmp.Diff(wantPositions, gotPositions, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("fused positions mismatch (-want +got):\n%v", diff)
	}
	// the target keyframe itself is immutable
	if k, _ := target.Lookup(1); k.Observations != 1 {
		t.Errorf("target keyframe was modified: %+v", k)
	}
}

func TestFuseIntoEquidistant(t *testing.T) {
	// Enough splats for the kd-tree to pivot on random samples.
	var splats []splatscene.Gaussian4D
	for i := range 300 {
		splats = append(splats, splat(splatscene.Identity(i+1), float32(100+i)))
	}
	splats = append(splats, splat(301, 1), splat(302, -1))
	target := keyframeOf(t, 0, splats...)

	for range 50 {
		existing, fresh, fused := fuseInto(target, []splatscene.Gaussian4D{splat(999, 0)}, 2, 64)
		if fused != 1 || len(fresh) != 0 {
			t.Fatalf("fused, len(fresh) = %d, %d; want 1, 0", fused, len(fresh))
		}
		// Both splats lie 1 away; the lower identity wins every time.
		first, second := existing[300], existing[301]
		if first.Identity != 301 || first.Observations != 2 || second.Observations != 1 {
			t.Fatalf("fused into %v (observations %d, %d), want splat(301)", first.Identity, first.Observations, second.Observations)
		}
	}
}

func TestInheritIdentities(t *testing.T) {
	reference := keyframeOf(t, 0, splat(1, 0), splat(2, 1))
	candidates := []splatscene.Gaussian4D{
		splat(10, 0.01),
		// also closest to splat(1), which is already claimed
		splat(11, 0.02),
		splat(12, 0.98),
		splat(13, 7),
	}
	carried := inheritIdentities(candidates, reference, 0.05)
	if carried != 2 {
		t.Errorf("carried = %d, want 2", carried)
	}
	var got []splatscene.Identity
	for _, c := range candidates {
		got = append(got, c.Identity)
	}
	want := []splatscene.Identity{1, 11, 2, 13}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("identities mismatch (-want +got):\n%v", diff)
	}
}

func TestInheritIdentitiesEmptyReference(t *testing.T) {
	candidates := []splatscene.Gaussian4D{splat(10, 0)}
	if carried := inheritIdentities(candidates, splatscene.Keyframe{}, 1); carried != 0 {
		t.Errorf("carried = %d, want 0", carried)
	}
}

func TestSpatialIndex(t *testing.T) {
	ix := newSpatialIndex([]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {-1, 0, 0}, {0, 3, 0}})

	if diff := cmp.Diff([]int{1, 0}, ix.within(mgl32.Vec3{0.9, 0, 0}, 1)); diff != "" {
		t.Errorf("within() mismatch (-want +got):\n%v", diff)
	}

	// equidistant slots are ordered by slot
	if diff := cmp.Diff([]int{0, 1, 2}, ix.within(mgl32.Vec3{0, 0, 0}, 1.5)); diff != "" {
		t.Errorf("within() mismatch (-want +got):\n%v", diff)
	}
	if got := ix.within(mgl32.Vec3{0, 0, 0}, -1); got != nil {
		t.Errorf("within() with a negative radius = %v, want nil", got)
	}
}

func TestSpatialIndexEmpty(t *testing.T) {
	ix := newSpatialIndex(nil)
	if got := ix.within(mgl32.Vec3{}, 10); len(got) != 0 {
		t.Errorf("within() on an empty index = %v, want none", got)
	}
}
