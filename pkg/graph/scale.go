package graph

import "math"

// Linear maps [D0, D1] onto [R0, R1]. A degenerate domain maps everything
// to R0.
type Linear struct {
	D0, D1 float64
	R0, R1 float64
}

func (s Linear) At(v float64) float64 {
	if s.D1 == s.D0 {
		return s.R0
	}
	return s.R0 + (v-s.D0)/(s.D1-s.D0)*(s.R1-s.R0)
}

// Sqrt is a Linear scale applied to square roots, so area tracks value.
type Sqrt struct {
	Max    float64
	R0, R1 float64
}

func (s Sqrt) At(v float64) float64 {
	return Linear{D0: 0, D1: math.Sqrt(s.Max), R0: s.R0, R1: s.R1}.At(math.Sqrt(v))
}

// extent returns the min and max of vals; zeros for an empty slice.
func extent(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
