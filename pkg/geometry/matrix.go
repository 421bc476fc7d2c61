package geometry

import "math"

// Matrix3 is a 3x3 matrix in row-major order, used for rotations.
type Matrix3 [9]float64

// Identity3 returns the identity matrix.
func Identity3() Matrix3 {
	return Matrix3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// RotationFromEuler builds a rotation matrix from yaw (about Y), pitch
// (about X) and roll (about Z), applied as R = Rz(roll) * Rx(pitch) * Ry(yaw).
func RotationFromEuler(yaw, pitch, roll float64) Matrix3 {
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cr, sr := math.Cos(roll), math.Sin(roll)

	// Ry(yaw)
	ry := Matrix3{
		cy, 0, sy,
		0, 1, 0,
		-sy, 0, cy,
	}
	// Rx(pitch)
	rx := Matrix3{
		1, 0, 0,
		0, cp, -sp,
		0, sp, cp,
	}
	// Rz(roll)
	rz := Matrix3{
		cr, -sr, 0,
		sr, cr, 0,
		0, 0, 1,
	}
	return rz.Mul(rx).Mul(ry)
}

// Mul returns the matrix product m * other.
func (m Matrix3) Mul(other Matrix3) Matrix3 {
	var out Matrix3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[r*3+k] * other[k*3+c]
			}
			out[r*3+c] = sum
		}
	}
	return out
}

// Apply rotates a point by the matrix.
func (m Matrix3) Apply(p Point3D) Point3D {
	return Point3D{
		X: m[0]*p.X + m[1]*p.Y + m[2]*p.Z,
		Y: m[3]*p.X + m[4]*p.Y + m[5]*p.Z,
		Z: m[6]*p.X + m[7]*p.Y + m[8]*p.Z,
	}
}

// Transpose returns the transposed matrix. For a pure rotation this is
// the inverse.
func (m Matrix3) Transpose() Matrix3 {
	return Matrix3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Clamp limits v to the range [-limit, limit].
func Clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
