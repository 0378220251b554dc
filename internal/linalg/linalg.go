// Package linalg is the core's minimal dense-linear-algebra surface: small
// (<=6x6) matrices and vectors for rigid-transform fitting, PCA-based
// normal estimation, and the linearized systems solved by point-to-plane
// ICP and NDT. Per spec.md §6 ("Implementations may use an existing
// library or a minimal local one"), this wraps gonum.org/v1/gonum/mat
// rather than hand-rolling Jacobi eigensolvers or Householder SVD — the
// retrieved example pack's geometry- and graph-adjacent manifests
// (kortschak/loopy, js-arias/phygeo) reach for gonum for exactly this kind
// of small dense algebra, and it is the idiomatic ecosystem choice.
package linalg

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// EighSym3 eigendecomposes a symmetric 3x3 matrix, returning eigenvalues in
// ascending order and their corresponding eigenvectors as columns of the
// returned 3x3 array (vectors[i][k] is component i of the eigenvector for
// values[k]).
func EighSym3(m [3][3]float64) (values [3]float64, vectors [3][3]float64) {
	sym := mat.NewSymDense(3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
	var eig mat.EigenSym
	ok := eig.Factorize(sym, true)
	if !ok {
		// Degenerate input (e.g. exact zero matrix); fall back to an
		// identity frame with zero eigenvalues rather than propagating a
		// numerical failure.
		vectors = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
		return
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	for i := 0; i < 3; i++ {
		values[i] = vals[i]
		for j := 0; j < 3; j++ {
			vectors[j][i] = vecs.At(j, i)
		}
	}
	return
}

// Solve6 solves the 6x6 linear system A x = b via Cholesky, falling back to
// an LU solve if A is not positive definite (can happen before Tikhonov
// regularization is strong enough). If both fail the system is deemed
// numerically degenerate and ok is false; the caller is expected to skip
// the step and retain the previous transform, per spec.md §7.4.
func Solve6(a [6][6]float64, b [6]float64) (x [6]float64, ok bool) {
	data := make([]float64, 36)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			data[i*6+j] = a[i][j]
		}
	}
	sym := mat.NewSymDense(6, data)
	var chol mat.Cholesky
	bv := mat.NewVecDense(6, b[:])
	if chol.Factorize(sym) {
		var xv mat.VecDense
		if err := chol.SolveVecTo(&xv, bv); err == nil {
			for i := 0; i < 6; i++ {
				x[i] = xv.AtVec(i)
			}
			return x, true
		}
	}
	dense := mat.NewDense(6, 6, data)
	var lu mat.LU
	lu.Factorize(dense)
	var xv mat.VecDense
	if err := lu.SolveVecTo(&xv, false, bv); err != nil {
		return x, false
	}
	for i := 0; i < 6; i++ {
		x[i] = xv.AtVec(i)
	}
	return x, true
}

// SolveLeastSquares solves the overdetermined (or square) linear
// least-squares problem min ||A x - b||, A given row-major as len(b) rows
// of cols = len(a[0]) = len(x) entries each. Used by Anderson-accelerated ICP to mix a short window of
// past iterates (few columns, each length 6) via QR. ok is false if A does
// not have full column rank.
func SolveLeastSquares(a [][]float64, b []float64) (x []float64, ok bool) {
	rows := len(b)
	if rows == 0 || len(a) != rows {
		return nil, false
	}
	cols := 0
	if rows > 0 {
		cols = len(a[0])
	}
	if cols == 0 || cols > rows {
		return nil, false
	}
	flat := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			flat[i*cols+j] = a[i][j]
		}
	}
	dense := mat.NewDense(rows, cols, flat)

	var qr mat.QR
	qr.Factorize(dense)
	var xv mat.Dense
	if err := qr.SolveTo(&xv, false, mat.NewDense(rows, 1, append([]float64(nil), b...))); err != nil {
		return nil, false
	}
	x = make([]float64, cols)
	for i := 0; i < cols; i++ {
		x[i] = xv.At(i, 0)
	}
	return x, true
}

// Invert3 inverts a 3x3 matrix, returning ok=false if it is singular within
// tolerance.
func Invert3(m [3][3]float64) (inv [3][3]float64, ok bool) {
	dense := mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
	det := mat.Det(dense)
	if math.Abs(det) < 1e-12 {
		return inv, false
	}
	var out mat.Dense
	if err := out.Inverse(dense); err != nil {
		return inv, false
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv[i][j] = out.At(i, j)
		}
	}
	return inv, true
}

// Det3 returns the determinant of a 3x3 matrix.
func Det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// MulMat3 returns a*b for 3x3 matrices.
func MulMat3(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// TransposeMat3 returns the transpose of a 3x3 matrix.
func TransposeMat3(a [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[j][i]
		}
	}
	return out
}

// MulVec3 returns a*v for a 3x3 matrix and a 3-vector.
func MulVec3(a [3][3]float64, v [3]float64) [3]float64 {
	return [3]float64{
		a[0][0]*v[0] + a[0][1]*v[1] + a[0][2]*v[2],
		a[1][0]*v[0] + a[1][1]*v[1] + a[1][2]*v[2],
		a[2][0]*v[0] + a[2][1]*v[1] + a[2][2]*v[2],
	}
}
