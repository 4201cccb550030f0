package core

import (
	"testing"

	"github.com/juju/errors"
)

func TestTypedErrorsSurviveAnnotation(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"schema", &SchemaError{Column: "Gender", Value: "X", Row: 3, Reason: "bad"}, IsSchema},
		{"imbalance", &ImbalanceError{Split: "train", Class: 1}, IsImbalance},
		{"fit", &FitError{Model: "tree", Class: 1, Count: 1}, IsFit},
		{"search space", &SearchSpaceError{Model: "tree"}, IsSearchSpace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := errors.Annotate(errors.Trace(tt.err), "outer")
			if !tt.check(wrapped) {
				t.Fatalf("%v lost its type", wrapped)
			}
			if tt.err.Error() == "" {
				t.Fatal("empty message")
			}
		})
	}
	if IsSchema(errors.New("plain")) || IsFit(nil) {
		t.Fatal("plain error misclassified")
	}
}

func TestCheckBinary(t *testing.T) {
	if err := CheckBinary("m", []int{0, 0, 1, 1}, 2); err != nil {
		t.Fatal(err)
	}
	err := CheckBinary("m", []int{0, 0, 0, 1}, 2)
	var fe *FitError
	if !errors.As(err, &fe) || fe.Class != 1 || fe.Count != 1 {
		t.Fatalf("got %v", err)
	}
	if err := CheckBinary("m", nil, 1); !IsFit(err) {
		t.Fatalf("empty labels: %v", err)
	}
}

func TestDeriveSeed(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 1000; i++ {
		s := DeriveSeed(42, i)
		if s < 0 {
			t.Fatalf("negative seed %d", s)
		}
		if seen[s] {
			t.Fatalf("collision at %d", i)
		}
		seen[s] = true
	}
	if DeriveSeed(42, 3) != DeriveSeed(42, 3) || DeriveSeed(42, 3) == DeriveSeed(43, 3) {
		t.Fatal("seed derivation not a pure function of its inputs")
	}
	a, b := NewRand(7), NewRand(7)
	for i := 0; i < 10; i++ {
		if a.Int63() != b.Int63() {
			t.Fatal("same seed, different stream")
		}
	}
}
