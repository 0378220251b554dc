package rng

import "testing"

func TestSeedDeterminism(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 10; i++ {
		if av, bv := a.Float64(0, 1), b.Float64(0, 1); av != bv {
			t.Fatalf("draw %d diverged: %v vs %v", i, av, bv)
		}
	}
}

func TestSampleDistinctNoDuplicates(t *testing.T) {
	s := New(7)
	sample := s.SampleDistinct(20, 5)
	seen := map[int]bool{}
	for _, v := range sample {
		if seen[v] {
			t.Fatalf("duplicate index %d", v)
		}
		if v < 0 || v >= 20 {
			t.Fatalf("index %d out of range", v)
		}
		seen[v] = true
	}
}
