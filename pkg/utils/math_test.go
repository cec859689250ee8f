package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("got %v", v)
	}

	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestDotAndNorms(t *testing.T) {
	dot, na, nb := DotAndNorms([]float32{1, 2}, []float32{3, 4})
	if dot != 11 {
		t.Errorf("dot = %v", dot)
	}
	if math.Abs(na-math.Sqrt(5)) > 1e-9 || nb != 5 {
		t.Errorf("norms = %v, %v", na, nb)
	}
}

func TestClampUnit(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0.5: 0.5, 3: 1} {
		if got := ClampUnit(in); got != want {
			t.Errorf("ClampUnit(%v) = %v", in, got)
		}
	}
}
