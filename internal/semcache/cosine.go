package semcache

import "math"

// Cosine computes the cosine similarity between two vectors:
// dot(a,b) / (|a| * |b|), range approximately [-1, 1], symmetric.
//
// Mismatched dimensions are a programming error — embedding dimensionality is
// pinned at construction throughout the system — so rather than propagate an
// error through every caller, Cosine returns 0 (guaranteed below any sane hit
// threshold). Zero vectors likewise yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
