package linalg

import "gonum.org/v1/gonum/mat"

// PointPair is one (source, target) correspondence used to fit a rigid
// transform.
type PointPair struct {
	Src, Dst [3]float64
}

// FitRigid computes the least-squares rigid transform mapping src onto dst
// via centroid subtraction and SVD of the cross-covariance matrix, with the
// determinant-sign fix applied when det(V U^T) < 0 so the result is always
// a proper rotation (no reflection). Requires at least 3 non-degenerate
// pairs; returns ok=false if fewer than 3 pairs are given or the SVD fails.
func FitRigid(pairs []PointPair) (rotation [3][3]float64, translation [3]float64, ok bool) {
	n := len(pairs)
	if n < 3 {
		return rotation, translation, false
	}

	var srcCentroid, dstCentroid [3]float64
	for _, p := range pairs {
		for i := 0; i < 3; i++ {
			srcCentroid[i] += p.Src[i]
			dstCentroid[i] += p.Dst[i]
		}
	}
	for i := 0; i < 3; i++ {
		srcCentroid[i] /= float64(n)
		dstCentroid[i] /= float64(n)
	}

	// Cross-covariance H = sum (src_i - srcCentroid)(dst_i - dstCentroid)^T
	var h [3][3]float64
	for _, p := range pairs {
		var sc, dc [3]float64
		for i := 0; i < 3; i++ {
			sc[i] = p.Src[i] - srcCentroid[i]
			dc[i] = p.Dst[i] - dstCentroid[i]
		}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				h[i][j] += sc[i] * dc[j]
			}
		}
	}

	hDense := mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
	var svd mat.SVD
	if !svd.Factorize(hDense, mat.SVDFull) {
		return rotation, translation, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var uArr, vArr [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			uArr[i][j] = u.At(i, j)
			vArr[i][j] = v.At(i, j)
		}
	}

	// R = V U^T, with the det-sign fix: if det(V U^T) < 0, negate the last
	// column of V before recomputing.
	uT := TransposeMat3(uArr)
	r := MulMat3(vArr, uT)
	if Det3(r) < 0 {
		for i := 0; i < 3; i++ {
			vArr[i][2] = -vArr[i][2]
		}
		r = MulMat3(vArr, uT)
	}

	rotatedCentroid := MulVec3(r, srcCentroid)
	var t [3]float64
	for i := 0; i < 3; i++ {
		t[i] = dstCentroid[i] - rotatedCentroid[i]
	}
	return r, t, true
}
