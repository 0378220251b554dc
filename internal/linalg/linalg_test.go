package linalg

import (
	"math"
	"testing"
)

func TestFitRigidRecoversKnownTransform(t *testing.T) {
	// 30 degree rotation about Z plus translation.
	theta := 30 * math.Pi / 180
	r := [3][3]float64{
		{math.Cos(theta), -math.Sin(theta), 0},
		{math.Sin(theta), math.Cos(theta), 0},
		{0, 0, 1},
	}
	tr := [3]float64{1.5, 2.0, 0.5}

	pairs := []PointPair{
		{Src: [3]float64{0, 0, 0}},
		{Src: [3]float64{1, 0, 0}},
		{Src: [3]float64{0, 1, 0}},
		{Src: [3]float64{0, 0, 1}},
		{Src: [3]float64{1, 1, 1}},
	}
	for i := range pairs {
		p := MulVec3(r, pairs[i].Src)
		for k := 0; k < 3; k++ {
			p[k] += tr[k]
		}
		pairs[i].Dst = p
	}

	gotR, gotT, ok := FitRigid(pairs)
	if !ok {
		t.Fatal("expected success")
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(gotR[i][j]-r[i][j]) > 1e-6 {
				t.Fatalf("rotation mismatch at %d,%d: got %v want %v", i, j, gotR[i][j], r[i][j])
			}
		}
		if math.Abs(gotT[i]-tr[i]) > 1e-6 {
			t.Fatalf("translation mismatch at %d: got %v want %v", i, gotT[i], tr[i])
		}
	}
}

func TestFitRigidTooFewPairs(t *testing.T) {
	if _, _, ok := FitRigid([]PointPair{{}, {}}); ok {
		t.Fatal("expected failure with fewer than 3 pairs")
	}
}

func TestEighSym3Diagonal(t *testing.T) {
	values, _ := EighSym3([3][3]float64{{1, 0, 0}, {0, 2, 0}, {0, 0, 3}})
	if math.Abs(values[0]-1) > 1e-9 || math.Abs(values[1]-2) > 1e-9 || math.Abs(values[2]-3) > 1e-9 {
		t.Fatalf("unexpected eigenvalues %v", values)
	}
}

func TestSolve6Identity(t *testing.T) {
	var a [6][6]float64
	for i := 0; i < 6; i++ {
		a[i][i] = 1
	}
	b := [6]float64{1, 2, 3, 4, 5, 6}
	x, ok := Solve6(a, b)
	if !ok {
		t.Fatal("expected success")
	}
	for i := 0; i < 6; i++ {
		if math.Abs(x[i]-b[i]) > 1e-9 {
			t.Fatalf("x[%d] = %v, want %v", i, x[i], b[i])
		}
	}
}
