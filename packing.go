package splatscene

// PackedStride is the number of float32 values PackGaussians writes per
// Gaussian.
const PackedStride = 16

// PackGaussians appends the renderer buffer layout of each Gaussian to dst and
// returns the extended slice. Each Gaussian occupies PackedStride values,
// grouped in four 16-byte rows:
//
//	position.x position.y position.z radius
//	color.r    color.g    color.b    opacity
//	rotation.x rotation.y rotation.z rotation.w
//	scale.x    scale.y    scale.z    0
//
// The radius is the largest scale component, which bounds the splat for
// culling.
func PackGaussians(dst []float32, gaussians ...Gaussian) []float32 {
	dst = grow(dst, len(gaussians)*PackedStride)
	for _, g := range gaussians {
		radius := max(g.Scale[0], g.Scale[1], g.Scale[2])
		dst = append(dst,
			g.Position[0], g.Position[1], g.Position[2], radius,
			g.Color[0], g.Color[1], g.Color[2], g.Opacity,
			g.Rotation.V[0], g.Rotation.V[1], g.Rotation.V[2], g.Rotation.W,
			g.Scale[0], g.Scale[1], g.Scale[2], 0,
		)
	}
	return dst
}

func grow(s []float32, n int) []float32 {
	if cap(s)-len(s) >= n {
		return s
	}
	t := make([]float32, len(s), len(s)+n)
	copy(t, s)
	return t
}
