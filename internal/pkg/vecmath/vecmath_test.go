package vecmath

import (
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{2, 4, 6}, want: 0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: 2},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1}, want: 1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("CosineDistance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimilarityFromDistance(t *testing.T) {
	if got := SimilarityFromDistance(0); got != 1 {
		t.Errorf("similarity(0) = %v, want 1", got)
	}
	if got := SimilarityFromDistance(2); got != 0 {
		t.Errorf("similarity(2) = %v, want 0", got)
	}
	if got := SimilarityFromDistance(1); got != 0.5 {
		t.Errorf("similarity(1) = %v, want 0.5", got)
	}
}
