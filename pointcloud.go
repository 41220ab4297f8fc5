package splatscene

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"iter"

	"github.com/go-gl/mathgl/mgl32"
)

// A Point is a single sample of an observed surface: a position with an
// optional color and an optional normal. Points are immutable values.
type Point struct {
	position  mgl32.Vec3
	color     mgl32.Vec3
	normal    mgl32.Vec3
	hasColor  bool
	hasNormal bool
}

// NewPoint returns a Point at (x, y, z) with neither color nor normal.
func NewPoint(x, y, z float32) Point {
	return Point{position: mgl32.Vec3{x, y, z}}
}

// WithColor returns a copy of p that carries the given RGB color.
func (p Point) WithColor(r, g, b float32) Point {
	p.color = mgl32.Vec3{r, g, b}
	p.hasColor = true
	return p
}

// WithNormal returns a copy of p that carries the given surface normal.
func (p Point) WithNormal(x, y, z float32) Point {
	p.normal = mgl32.Vec3{x, y, z}
	p.hasNormal = true
	return p
}

func (p Point) Position() mgl32.Vec3 { return p.position }

// Color returns p's color and whether p has one.
func (p Point) Color() (mgl32.Vec3, bool) { return p.color, p.hasColor }

// Normal returns p's normal and whether p has one.
func (p Point) Normal() (mgl32.Vec3, bool) { return p.normal, p.hasNormal }

// IsFinite reports whether p's position is usable, i.e. no coordinate is NaN
// or infinite.
func (p Point) IsFinite() bool { return finiteVec3(p.position) }

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g, %g)", p.position[0], p.position[1], p.position[2])
}

// A PointCloud is one timestamped observation: an immutable batch of points
// captured at the same instant.
//
// PointCloud values are safe to share between goroutines.
type PointCloud struct {
	points    []Point
	timestamp float64
}

// NewPointCloud returns a PointCloud observed at timestamp. The points are
// copied, so the caller may reuse the slice.
func NewPointCloud(timestamp float64, points ...Point) PointCloud {
	return PointCloud{
		points:    append([]Point(nil), points...),
		timestamp: timestamp,
	}
}

func (c PointCloud) Timestamp() float64 { return c.timestamp }
func (c PointCloud) Len() int           { return len(c.points) }
func (c PointCloud) At(i int) Point     { return c.points[i] }

// All returns an iterator over the points of c in their original order.
func (c PointCloud) All() iter.Seq2[int, Point] {
	return func(yield func(int, Point) bool) {
		for i, p := range c.points {
			if !yield(i, p) {
				return
			}
		}
	}
}

// wirePoint is the gob representation of a Point.
type wirePoint struct {
	Position  mgl32.Vec3
	Color     mgl32.Vec3
	Normal    mgl32.Vec3
	HasColor  bool
	HasNormal bool
}

type wireCloud struct {
	Timestamp float64
	Points    []wirePoint
}

// GobEncode implements gob.GobEncoder, so a PointCloud can travel as a pubsub
// message body.
func (c PointCloud) GobEncode() ([]byte, error) {
	w := wireCloud{Timestamp: c.timestamp, Points: make([]wirePoint, len(c.points))}
	for i, p := range c.points {
		w.Points[i] = wirePoint{
			Position:  p.position,
			Color:     p.color,
			Normal:    p.normal,
			HasColor:  p.hasColor,
			HasNormal: p.hasNormal,
		}
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(w); err != nil {
		return nil, fmt.Errorf("encode point cloud: %w", err)
	}
	return b.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (c *PointCloud) GobDecode(p []byte) error {
	var w wireCloud
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&w); err != nil {
		return fmt.Errorf("decode point cloud: %w", err)
	}
	c.timestamp = w.Timestamp
	c.points = make([]Point, len(w.Points))
	for i, p := range w.Points {
		c.points[i] = Point{
			position:  p.Position,
			color:     p.Color,
			normal:    p.Normal,
			hasColor:  p.HasColor,
			hasNormal: p.HasNormal,
		}
	}
	return nil
}
