package pointcloud

import "math"

// Transform is a 4x4 homogeneous matrix, always interpreted as rigid
// (rotation + translation). The bottom row is logically [0 0 0 1] and is
// preserved by every operation that produces a Transform.
type Transform [4][4]float64

// Identity returns the identity transform.
func Identity() Transform {
	var t Transform
	for i := 0; i < 4; i++ {
		t[i][i] = 1
	}
	return t
}

// NewRigid builds a Transform from a 3x3 row-major rotation and a
// translation vector.
func NewRigid(r [3][3]float64, tr [3]float64) Transform {
	var t Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[i][j] = r[i][j]
		}
		t[i][3] = tr[i]
	}
	t[3][3] = 1
	return t
}

// Rotation extracts the 3x3 rotation block.
func (t Transform) Rotation() [3][3]float64 {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = t[i][j]
		}
	}
	return r
}

// Translation extracts the translation column.
func (t Transform) Translation() [3]float64 {
	return [3]float64{t[0][3], t[1][3], t[2][3]}
}

// Apply maps a point through the rigid transform.
func (t Transform) Apply(p Point) Point {
	return Point{
		X: t[0][0]*p.X + t[0][1]*p.Y + t[0][2]*p.Z + t[0][3],
		Y: t[1][0]*p.X + t[1][1]*p.Y + t[1][2]*p.Z + t[1][3],
		Z: t[2][0]*p.X + t[2][1]*p.Y + t[2][2]*p.Z + t[2][3],
	}
}

// ApplyRotation rotates a direction vector (e.g. a normal) without
// translating it.
func (t Transform) ApplyRotation(p Point) Point {
	return Point{
		X: t[0][0]*p.X + t[0][1]*p.Y + t[0][2]*p.Z,
		Y: t[1][0]*p.X + t[1][1]*p.Y + t[1][2]*p.Z,
		Z: t[2][0]*p.X + t[2][1]*p.Y + t[2][2]*p.Z,
	}
}

// Compose returns the transform equivalent to applying t first, then u
// (u * t in matrix form).
func (u Transform) Compose(t Transform) Transform {
	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += u[i][k] * t[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Inverse returns the rigid inverse: R^T, -R^T * t.
func (t Transform) Inverse() Transform {
	r := t.Rotation()
	tr := t.Translation()
	var rt [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rt[i][j] = r[j][i]
		}
	}
	var invT [3]float64
	for i := 0; i < 3; i++ {
		invT[i] = -(rt[i][0]*tr[0] + rt[i][1]*tr[1] + rt[i][2]*tr[2])
	}
	return NewRigid(rt, invT)
}

// FrobeniusDiff returns the Frobenius norm of (t - other), used by tests
// that compare a recovered transform against ground truth.
func (t Transform) FrobeniusDiff(other Transform) float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			d := t[i][j] - other[i][j]
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}

// RotationAngle returns the rotation angle (radians) of the transform's
// rotation block, via the trace formula. Used by convergence checks that
// split a delta transform into rotational and translational components.
func (t Transform) RotationAngle() float64 {
	r := t.Rotation()
	trace := r[0][0] + r[1][1] + r[2][2]
	cos := (trace - 1) / 2
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

// TranslationNorm returns the Euclidean norm of the translation component.
func (t Transform) TranslationNorm() float64 {
	tr := t.Translation()
	return math.Sqrt(tr[0]*tr[0] + tr[1]*tr[1] + tr[2]*tr[2])
}
