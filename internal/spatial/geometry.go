// Package spatial provides toroidal geometry helpers and a radius-query index
// over agent positions. The index is rebuilt every step from the current
// positions; it never owns agent state.
package spatial

import (
	"fmt"
	"math"
)

// Vec2 is a point or displacement in the 2-D domain.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale returns v * s.
func (v Vec2) Scale(s float64) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }

// Dot returns the dot product of v and o.
func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

// Norm returns the Euclidean length of v.
func (v Vec2) Norm() float64 { return math.Hypot(v.X, v.Y) }

// IsZero reports whether both components are exactly zero.
func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }

// Bounds describes a toroidal domain [0, Width) x [0, Height).
type Bounds struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Validate checks that both extents are positive and finite.
func (b Bounds) Validate() error {
	if !(b.Width > 0) || math.IsInf(b.Width, 0) {
		return fmt.Errorf("width must be positive and finite, got %v", b.Width)
	}
	if !(b.Height > 0) || math.IsInf(b.Height, 0) {
		return fmt.Errorf("height must be positive and finite, got %v", b.Height)
	}
	return nil
}

// Wrap maps p back into the domain.
func (b Bounds) Wrap(p Vec2) Vec2 {
	return Vec2{X: wrap(p.X, b.Width), Y: wrap(p.Y, b.Height)}
}

// Delta returns the minimum-image displacement from `from` to `to`.
func (b Bounds) Delta(from, to Vec2) Vec2 {
	return Vec2{
		X: minImage(to.X-from.X, b.Width),
		Y: minImage(to.Y-from.Y, b.Height),
	}
}

// Distance returns the toroidal distance between a and c.
func (b Bounds) Distance(a, c Vec2) float64 {
	return b.Delta(a, c).Norm()
}

// Diagonal returns the length of the domain diagonal.
func (b Bounds) Diagonal() float64 {
	return math.Hypot(b.Width, b.Height)
}

// Contains reports whether p lies inside [0, Width) x [0, Height).
func (b Bounds) Contains(p Vec2) bool {
	return p.X >= 0 && p.X < b.Width && p.Y >= 0 && p.Y < b.Height
}

func wrap(v, extent float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	r := math.Mod(v, extent)
	if r < 0 {
		r += extent
	}
	// Mod of a tiny negative value can round up to extent itself.
	if r >= extent {
		r = 0
	}
	return r
}

func minImage(d, extent float64) float64 {
	half := extent / 2
	for d > half {
		d -= extent
	}
	for d < -half {
		d += extent
	}
	return d
}
