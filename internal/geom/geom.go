// Package geom provides the small amount of 2D vector geometry the jar
// needs. Coordinates are y-up: the origin is the bottom-left corner of the
// viewport.
package geom

import "math"

// Vec is a 2D point or vector.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func V(x, y float64) Vec { return Vec{X: x, Y: y} }

func (a Vec) Add(b Vec) Vec       { return Vec{a.X + b.X, a.Y + b.Y} }
func (a Vec) Sub(b Vec) Vec       { return Vec{a.X - b.X, a.Y - b.Y} }
func (a Vec) Scale(k float64) Vec { return Vec{a.X * k, a.Y * k} }
func (a Vec) Dot(b Vec) float64   { return a.X*b.X + a.Y*b.Y }
func (a Vec) Cross(b Vec) float64 { return a.X*b.Y - a.Y*b.X }
func (a Vec) Len() float64        { return math.Hypot(a.X, a.Y) }
func (a Vec) Dist(b Vec) float64  { return a.Sub(b).Len() }
func (a Vec) Perp() Vec           { return Vec{-a.Y, a.X} }
func (a Vec) Near(b Vec, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps
}

// Norm returns a unit vector in the direction of a, or the zero vector.
func (a Vec) Norm() Vec {
	l := a.Len()
	if l == 0 {
		return Vec{}
	}
	return a.Scale(1 / l)
}

// ClampLen returns a scaled down to at most max length.
func (a Vec) ClampLen(max float64) Vec {
	l := a.Len()
	if l <= max || l == 0 {
		return a
	}
	return a.Scale(max / l)
}

// Segment is a line segment from A to B.
type Segment struct {
	A, B Vec
}

// Closest returns the point on s nearest to p.
func (s Segment) Closest(p Vec) Vec {
	ab := s.B.Sub(s.A)
	den := ab.Dot(ab)
	if den == 0 {
		return s.A
	}
	t := p.Sub(s.A).Dot(ab) / den
	t = math.Max(0, math.Min(1, t))
	return s.A.Add(ab.Scale(t))
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	Min, Max Vec
}

// RectAround returns the w×h rectangle centred on c.
func RectAround(c Vec, w, h float64) Rect {
	return Rect{
		Min: Vec{c.X - w/2, c.Y - h/2},
		Max: Vec{c.X + w/2, c.Y + h/2},
	}
}

func (r Rect) Contains(p Vec) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

func (r Rect) Width() float64  { return r.Max.X - r.Min.X }
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }
