package tracking

import (
	"gonum.org/v1/gonum/floats"
)

// normalizeFeature L2-normalizes an appearance embedding. A zero vector is
// returned unchanged.
func normalizeFeature(feat []float32) []float32 {
	v := make([]float64, len(feat))
	for i, f := range feat {
		v[i] = float64(f)
	}
	norm := floats.Norm(v, 2)
	if norm == 0 {
		out := make([]float32, len(feat))
		copy(out, feat)
		return out
	}
	out := make([]float32, len(feat))
	for i := range v {
		out[i] = float32(v[i] / norm)
	}
	return out
}

// featureDistance is the euclidean distance between two embeddings. Vectors
// of mismatched length are maximally distant.
func featureDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1.0
	}
	av := make([]float64, len(a))
	bv := make([]float64, len(b))
	for i := range a {
		av[i] = float64(a[i])
		bv[i] = float64(b[i])
	}
	return float32(floats.Distance(av, bv, 2))
}
