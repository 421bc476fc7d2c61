package geometry

import "math"

// Barycentric returns the barycentric weights (wa, wb, wc) of point p in
// the triangle (a, b, c). The weights satisfy p = wa*a + wb*b + wc*c and
// wa + wb + wc = 1. ok is false when the triangle is degenerate (area ~ 0).
//
// Inside-triangle test: all three weights >= 0 (with a small epsilon when
// sampling along shared edges).
func Barycentric(p, a, b, c Point2D) (wa, wb, wc float64, ok bool) {
	v0 := b.Sub(a)
	v1 := c.Sub(a)
	v2 := p.Sub(a)

	denom := v0.X*v1.Y - v0.Y*v1.X // 2*area, signed
	if math.Abs(denom) < 1e-12 {
		return 0, 0, 0, false
	}

	wb = (v2.X*v1.Y - v2.Y*v1.X) / denom
	wc = (v0.X*v2.Y - v0.Y*v2.X) / denom
	wa = 1 - wb - wc
	return wa, wb, wc, true
}

// Interpolate2D blends three 2D points with barycentric weights.
func Interpolate2D(a, b, c Point2D, wa, wb, wc float64) Point2D {
	return Point2D{
		X: wa*a.X + wb*b.X + wc*c.X,
		Y: wa*a.Y + wb*b.Y + wc*c.Y,
	}
}

// Interpolate3D blends three 3D points with barycentric weights.
func Interpolate3D(a, b, c Point3D, wa, wb, wc float64) Point3D {
	return Point3D{
		X: wa*a.X + wb*b.X + wc*c.X,
		Y: wa*a.Y + wb*b.Y + wc*c.Y,
		Z: wa*a.Z + wb*b.Z + wc*c.Z,
	}
}

// TriangleNormal returns the (unnormalized) normal of the triangle
// (a, b, c), following the right-hand rule on the winding order.
func TriangleNormal(a, b, c Point3D) Point3D {
	return b.Sub(a).Cross(c.Sub(a))
}
