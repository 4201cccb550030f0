package optim

import "testing"

func TestSGDStep(t *testing.T) {
	o := NewSGD(0.5)
	params := []float64{1, 2, 3}
	o.Step(params, []float64{2, 0, -2})
	want := []float64{0, 2, 4}
	for i := range want {
		if params[i] != want[i] {
			t.Fatalf("Step: got %v, want %v", params, want)
		}
	}
	o.StepFunc(params, func(i int) float64 { return float64(i) })
	want = []float64{0, 1.5, 3}
	for i := range want {
		if params[i] != want[i] {
			t.Fatalf("StepFunc: got %v, want %v", params, want)
		}
	}
}
