package stats

// IQRMultiplier is the fence width in interquartile ranges.
const IQRMultiplier = 1.5

// Fence is the closed interval a numeric column is clamped to.
type Fence struct {
	Lower float64
	Upper float64
}

// IQRFence computes [Q1-1.5*IQR, Q3+1.5*IQR] for a column.
func IQRFence(col []float64) Fence {
	q1, q3 := Quartiles(col)
	iqr := q3 - q1
	return Fence{Lower: q1 - IQRMultiplier*iqr, Upper: q3 + IQRMultiplier*iqr}
}

// Clamp moves v onto the nearest fence when it lies outside.
func (f Fence) Clamp(v float64) float64 {
	if v < f.Lower {
		return f.Lower
	}
	if v > f.Upper {
		return f.Upper
	}
	return v
}

// Contains reports whether v lies within the fence.
func (f Fence) Contains(v float64) bool { return v >= f.Lower && v <= f.Upper }

// CapColumn clamps col to the IQR fence of the raw column in a single pass
// and returns the capped copy with that fence. Capping is made repeatable by
// re-applying the returned fence with Clamp, never by recomputing it from the
// capped values.
func CapColumn(col []float64) ([]float64, Fence) {
	fence := IQRFence(col)
	out := make([]float64, len(col))
	for i, v := range col {
		out[i] = fence.Clamp(v)
	}
	return out, fence
}
