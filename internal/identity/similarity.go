package identity

import "math"

// normalize returns a unit-length copy of v and false when v has zero norm
// or contains non-finite values.
func normalize(v []float64) ([]float64, bool) {
	var norm float64
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}
		norm += x * x
	}
	if norm == 0 {
		return nil, false
	}

	norm = math.Sqrt(norm)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, true
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
