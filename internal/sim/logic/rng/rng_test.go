package rng

import "testing"

func TestRand_Reproducible(t *testing.T) {
	a := New(7)
	b := New(7)
	for i := 0; i < 100; i++ {
		if x, y := a.Uint64(), b.Uint64(); x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
	}
}

func TestRand_Ranges(t *testing.T) {
	r := New(99)
	for i := 0; i < 1000; i++ {
		if f := r.Float64(); f < 0 || f >= 1 {
			t.Fatalf("Float64=%v out of range", f)
		}
		if n := r.Intn(3); n < 0 || n >= 3 {
			t.Fatalf("Intn=%d out of range", n)
		}
	}
}

func TestRand_IntnPanicsOnEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New(1).Intn(0)
}
