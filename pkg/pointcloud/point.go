// Package pointcloud defines the shared point, cloud, and rigid-transform
// types consumed by every stage of the registration pipeline.
package pointcloud

import "math"

// Point is a plain 3-D coordinate. Points are copied by value throughout the
// pipeline; equality is exact bitwise comparison of the three coordinates.
type Point struct {
	X, Y, Z float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{p.X - q.X, p.Y - q.Y, p.Z - q.Z}
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{p.X + q.X, p.Y + q.Y, p.Z + q.Z}
}

// Scale returns p scaled by s.
func (p Point) Scale(s float64) Point {
	return Point{p.X * s, p.Y * s, p.Z * s}
}

// Dot returns the Euclidean dot product p·q.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z
}

// Cross returns the cross product p×q.
func (p Point) Cross(q Point) Point {
	return Point{
		p.Y*q.Z - p.Z*q.Y,
		p.Z*q.X - p.X*q.Z,
		p.X*q.Y - p.Y*q.X,
	}
}

// Norm returns the Euclidean length of p.
func (p Point) Norm() float64 {
	return math.Sqrt(p.Dot(p))
}

// Normalized returns p scaled to unit length. If p is the zero vector, p is
// returned unchanged (callers that need a normal on a degenerate input
// should check Norm() first).
func (p Point) Normalized() Point {
	n := p.Norm()
	if n == 0 {
		return p
	}
	return p.Scale(1 / n)
}

// DistanceSq returns the squared Euclidean distance between p and q.
func (p Point) DistanceSq(q Point) float64 {
	d := p.Sub(q)
	return d.Dot(d)
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Sqrt(p.DistanceSq(q))
}

// Vector returns the point's coordinates as a length-3 slice, for code
// paths that operate generically over fixed-length numeric vectors.
func (p Point) Vector() []float64 {
	return []float64{p.X, p.Y, p.Z}
}
