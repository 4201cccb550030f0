package loader

import (
	"math"
	"math/rand"
	"sort"
)

// byClass groups sample indices by label, classes in ascending order.
func byClass(y []int) (classes []int, groups map[int][]int) {
	groups = make(map[int][]int)
	for i, c := range y {
		if _, ok := groups[c]; !ok {
			classes = append(classes, c)
		}
		groups[c] = append(groups[c], i)
	}
	sort.Ints(classes)
	return classes, groups
}

// StratifiedSplit partitions sample indices into train and test so both keep
// the class proportions of y. Each class contributes round(n_c*testRatio)
// samples to test, and at least one when it has two or more samples.
func StratifiedSplit(y []int, testRatio float64, rng *rand.Rand) (train, test []int) {
	classes, groups := byClass(y)
	for _, c := range classes {
		idx := append([]int(nil), groups[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(float64(len(idx)) * testRatio))
		if nTest == 0 && testRatio > 0 && len(idx) > 1 {
			nTest = 1
		}
		if nTest >= len(idx) && len(idx) > 1 {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test
}

// StratifiedKFold yields k held-out index sets. Samples of each class are
// shuffled and dealt round-robin, continuing across classes, so fold sizes
// differ by at most one and each fold keeps the class proportions.
func StratifiedKFold(y []int, k int, rng *rand.Rand) [][]int {
	if k < 2 {
		k = 2
	}
	folds := make([][]int, k)
	classes, groups := byClass(y)
	next := 0
	for _, c := range classes {
		idx := append([]int(nil), groups[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for _, i := range idx {
			folds[next%k] = append(folds[next%k], i)
			next++
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds
}

// FoldTrain returns every index of n samples not held out by fold f.
func FoldTrain(folds [][]int, f, n int) []int {
	held := make([]bool, n)
	for _, i := range folds[f] {
		held[i] = true
	}
	out := make([]int, 0, n-len(folds[f]))
	for i := 0; i < n; i++ {
		if !held[i] {
			out = append(out, i)
		}
	}
	return out
}
