package model

import (
	"runtime"
	"sort"
	"sync"
)

// NearestNeighbors returns, for every row of X, the indices of its k nearest
// other rows, closest first. Equal distances are ordered by row index so the
// result is reproducible. Rows are processed in parallel.
func NearestNeighbors(X [][]float64, k int) [][]int {
	out := make([][]int, len(X))
	if len(X) == 0 || k <= 0 {
		return out
	}

	var wg sync.WaitGroup
	// Determine the number of workers based on available CPU cores.
	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (len(X) + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, len(X))
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				out[i] = neighborsOf(X, i, k)
			}
		}(start, end)
	}

	wg.Wait()
	return out
}

// neighborsOf keeps a small sorted slice of the k closest rows seen so far.
func neighborsOf(X [][]float64, self, k int) []int {
	type pair struct {
		d float64
		i int
	}
	less := func(a, b pair) bool {
		if a.d != b.d {
			return a.d < b.d
		}
		return a.i < b.i
	}

	nbrs := make([]pair, 0, k+1)
	for j, xj := range X {
		if j == self {
			continue
		}
		cand := pair{d: euclidSquared(X[self], xj), i: j}
		if len(nbrs) < k {
			nbrs = append(nbrs, cand)
			sort.Slice(nbrs, func(a, b int) bool { return less(nbrs[a], nbrs[b]) })
		} else if less(cand, nbrs[len(nbrs)-1]) {
			nbrs[len(nbrs)-1] = cand
			sort.Slice(nbrs, func(a, b int) bool { return less(nbrs[a], nbrs[b]) })
		}
	}

	idx := make([]int, len(nbrs))
	for n, p := range nbrs {
		idx[n] = p.i
	}
	return idx
}

// euclidSquared computes the squared Euclidean distance between two vectors.
// Squared distance preserves the ordering and skips the square root.
func euclidSquared(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
