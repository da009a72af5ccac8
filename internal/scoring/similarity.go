package scoring

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Round6 rounds v to six decimal places.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
