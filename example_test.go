package splatscene_test

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/go-digitaltwin/go-splatscene"
)

// A splat observed at two instants moves smoothly in between.
func ExampleSceneGraph_GaussiansAt() {
	scene := splatscene.NewSceneGraph("example")
	id := scene.NewIdentity()

	ball := func(x float32) splatscene.Gaussian4D {
		return splatscene.Gaussian4D{
			Identity: id,
			Gaussian: splatscene.Gaussian{
				Position: mgl32.Vec3{x, 0, 0},
				Rotation: mgl32.QuatIdent(),
				Scale:    mgl32.Vec3{0.1, 0.1, 0.1},
				Color:    mgl32.Vec3{1, 0, 0},
				Opacity:  1,
			},
		}
	}

	// Mutations either commit entirely or not at all.
	changes, err := scene.Apply(context.Background(), func(w splatscene.KeyframeWriter) error {
		var b splatscene.KeyframeBuilder
		b.Add(ball(0))
		if err := w.InsertKeyframe(b.Build(0)); err != nil {
			return err
		}
		b.Reset()
		b.Add(ball(4))
		return w.InsertKeyframe(b.Build(2))
	})
	if err != nil {
		panic(err)
	}
	fmt.Println("inserted:", changes.Inserted)

	for _, t := range []float64{-1, 0, 0.5, 1, 2, 3} {
		g := scene.GaussiansAt(t)
		fmt.Printf("t=%v: %v\n", t, g[0].Position)
	}
	// Output:
	// inserted: [0 2]
	// t=-1: [0 0 0]
	// t=0: [0 0 0]
	// t=0.5: [1 0 0]
	// t=1: [2 0 0]
	// t=2: [4 0 0]
	// t=3: [4 0 0]
}

// PackGaussians lays Gaussians out for upload to a renderer.
func ExamplePackGaussians() {
	g := splatscene.Gaussian{
		Position: mgl32.Vec3{1, 2, 3},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{0.5, 0.25, 0.25},
		Color:    mgl32.Vec3{1, 1, 1},
		Opacity:  1,
	}
	buf := splatscene.PackGaussians(nil, g)
	for i := 0; i < len(buf); i += 4 {
		fmt.Println(buf[i : i+4])
	}
	// Output:
	// [1 2 3 0.5]
	// [1 1 1 1]
	// [0 0 0 1]
	// [0.5 0.25 0.25 0]
}
