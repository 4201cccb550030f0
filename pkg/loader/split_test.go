package loader

import (
	"math"
	"testing"

	"churn/pkg/core"
)

func labels(neg, pos int) []int {
	y := make([]int, neg+pos)
	for i := neg; i < len(y); i++ {
		y[i] = 1
	}
	return y
}

func TestStratifiedSplitKeepsProportions(t *testing.T) {
	y := labels(840, 160)
	train, test := StratifiedSplit(y, 0.2, core.NewRand(42))
	if len(train)+len(test) != len(y) || len(test) != 200 {
		t.Fatalf("sizes %d/%d", len(train), len(test))
	}
	seen := make(map[int]bool)
	pos := 0
	for _, i := range append(append([]int(nil), train...), test...) {
		if seen[i] {
			t.Fatalf("index %d in both splits", i)
		}
		seen[i] = true
	}
	for _, i := range test {
		pos += y[i]
	}
	if rate := float64(pos) / float64(len(test)); math.Abs(rate-0.16) > 0.01 {
		t.Fatalf("test positive rate %v", rate)
	}
}

func TestStratifiedSplitDeterministic(t *testing.T) {
	y := labels(30, 12)
	a, _ := StratifiedSplit(y, 0.3, core.NewRand(1))
	b, _ := StratifiedSplit(y, 0.3, core.NewRand(1))
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same seed, different split")
		}
	}
}

func TestStratifiedKFold(t *testing.T) {
	y := labels(23, 10)
	folds := StratifiedKFold(y, 3, core.NewRand(5))
	if len(folds) != 3 {
		t.Fatalf("%d folds", len(folds))
	}
	total := 0
	for f, held := range folds {
		total += len(held)
		if len(held) < 11 || len(held) > 11 {
			t.Fatalf("fold %d has %d samples", f, len(held))
		}
		pos := 0
		for _, i := range held {
			pos += y[i]
		}
		if pos < 3 || pos > 4 {
			t.Fatalf("fold %d has %d positives", f, pos)
		}
		tr := FoldTrain(folds, f, len(y))
		if len(tr)+len(held) != len(y) {
			t.Fatalf("fold %d train size %d", f, len(tr))
		}
	}
	if total != len(y) {
		t.Fatalf("folds cover %d of %d", total, len(y))
	}
}
