package vecmath

import "math"

// CosineDistance returns 1 - cos(a, b), in [0, 2]. Mismatched or zero-length
// vectors are treated as orthogonal.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push |cos| slightly past 1
	cos = math.Max(-1, math.Min(1, cos))
	return 1 - cos
}

// SimilarityFromDistance maps a cosine distance onto [0, 1], 1 meaning identical direction.
func SimilarityFromDistance(distance float64) float64 {
	return 1 - distance/2
}
