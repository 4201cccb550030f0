package stats

import (
	"math"
	"testing"
)

func TestQuartilesInterpolate(t *testing.T) {
	tests := []struct {
		x      []float64
		q1, q3 float64
	}{
		{[]float64{1, 2, 3, 4}, 1.75, 3.25},
		{[]float64{5, 1, 3}, 2, 4},
		{[]float64{7}, 7, 7},
		{[]float64{0, 0, 0, 0, 0, 0, 100, 100}, 0, 25},
	}
	for _, tt := range tests {
		q1, q3 := Quartiles(tt.x)
		if q1 != tt.q1 || q3 != tt.q3 {
			t.Errorf("Quartiles(%v) = %v, %v want %v, %v", tt.x, q1, q3, tt.q1, tt.q3)
		}
	}
}

func TestCapColumnIdempotent(t *testing.T) {
	cols := [][]float64{
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 1000},
		{-500, 10, 11, 12, 12, 13, 14, 15, 900, 1000},
		{3, 3, 3, 3, 3},
		{0, 0, 0, 0, 0, 0, 100, 100},
	}
	for _, col := range cols {
		raw := append([]float64(nil), col...)
		once, fence := CapColumn(col)
		if want := IQRFence(raw); fence != want {
			t.Fatalf("fence %+v, want raw-column fence %+v", fence, want)
		}
		for i := range once {
			if again := fence.Clamp(once[i]); again != once[i] {
				t.Fatalf("re-applying %+v to %v changed index %d: %v -> %v", fence, raw, i, once[i], again)
			}
			if !fence.Contains(once[i]) {
				t.Fatalf("value %v outside %+v", once[i], fence)
			}
			if col[i] != raw[i] {
				t.Fatal("input mutated")
			}
		}
	}
}

func TestCapColumnSinglePass(t *testing.T) {
	once, fence := CapColumn([]float64{0, 0, 0, 0, 0, 0, 100, 100})
	if fence.Lower != -37.5 || fence.Upper != 62.5 {
		t.Fatalf("fence = %+v, want [-37.5, 62.5]", fence)
	}
	if once[6] != 62.5 || once[7] != 62.5 || once[0] != 0 {
		t.Fatalf("capped = %v", once)
	}
}

func TestModeString(t *testing.T) {
	skip := func(v string) bool { return v == "" }
	if m, ok := ModeString([]string{"b", "a", "b", "a", "", "", ""}, skip); !ok || m != "a" {
		t.Fatalf("tie should resolve to smallest level, got %q", m)
	}
	if _, ok := ModeString([]string{"", ""}, skip); ok {
		t.Fatal("all-missing column has no mode")
	}
}

func TestStandardScaler(t *testing.T) {
	X := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	s := NewStandardScaler()
	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}
	if s.Std[1] != 1 {
		t.Fatalf("constant column scale %v, want 1", s.Std[1])
	}
	want := math.Sqrt(8.0 / 3.0)
	if math.Abs(s.Std[0]-want) > 1e-12 || out[0][0] != -2/s.Std[0] || out[1][1] != 0 {
		t.Fatalf("std %v out %v", s.Std, out)
	}
	if err := NewStandardScaler().Fit(nil); err == nil {
		t.Fatal("expected error on empty input")
	}
}
