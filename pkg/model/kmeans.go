package model

import (
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"churn/pkg/core"
)

// KMeans is an unsupervised learning model that partitions data points into K clusters.
type KMeans struct {
	K           int
	MaxIter     int
	NInit       int // seeded restarts, the lowest inertia wins
	RandomState int64
	Workers     int // 0 => GOMAXPROCS

	Centroids  [][]float64
	Inertia    float64 // Sum of squared distances to nearest centroid
	Iterations int     // Lloyd iterations of the winning restart
}

// NewKMeans creates and returns a new KMeans model with specified K and max iterations.
func NewKMeans(k int, maxIter int) *KMeans {
	return &KMeans{
		K:       k,
		MaxIter: maxIter,
		NInit:   10,
	}
}

// kmeansRun is the outcome of one restart.
type kmeansRun struct {
	centroids [][]float64
	inertia   float64
	iters     int
}

// Fit runs NInit k-means++ restarts, each from its own derived seed, and keeps
// the one with the lowest inertia (earliest on ties).
func (m *KMeans) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("kmeans: input data cannot be empty")
	}
	if m.K < 1 {
		return errors.NotValidf("kmeans: k=%d", m.K)
	}
	if len(X) < m.K {
		return errors.Errorf("kmeans: %d data points is less than k=%d", len(X), m.K)
	}
	nInit := max(m.NInit, 1)
	maxIter := max(m.MaxIter, 1)

	runs := make([]kmeansRun, nInit)
	var g errgroup.Group
	g.SetLimit(workerCount(m.Workers))
	for r := 0; r < nInit; r++ {
		r := r
		g.Go(func() error {
			rnd := core.NewRand(core.DeriveSeed(m.RandomState, r))
			runs[r] = lloyd(X, initCenters(X, m.K, rnd), maxIter)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	best := 0
	for r := 1; r < nInit; r++ {
		if runs[r].inertia < runs[best].inertia {
			best = r
		}
	}
	m.Centroids = runs[best].centroids
	m.Inertia = runs[best].inertia
	m.Iterations = runs[best].iters
	return nil
}

// lloyd alternates assignment and mean updates until no assignment changes
// or maxIter is reached.
func lloyd(X [][]float64, centroids [][]float64, maxIter int) kmeansRun {
	n, p, k := len(X), len(X[0]), len(centroids)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	it := 0
	for it < maxIter {
		it++
		if !assignAll(X, centroids, assign) {
			break
		}

		// === Update Step ===
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := 0; c < k; c++ {
			sums[c] = make([]float64, p)
		}
		for i := 0; i < n; i++ {
			c := assign[i]
			counts[c]++
			for j := 0; j < p; j++ {
				sums[c][j] += X[i][j]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // an empty cluster keeps its centroid
			}
			for j := 0; j < p; j++ {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}

	assignAll(X, centroids, assign)
	inertia := 0.0
	for i := 0; i < n; i++ {
		inertia += euclidSquared(X[i], centroids[assign[i]])
	}
	return kmeansRun{centroids: centroids, inertia: inertia, iters: it}
}

// assignAll writes the nearest centroid of every row into assign, in
// parallel chunks, and reports whether any assignment changed.
func assignAll(X [][]float64, centroids [][]float64, assign []int) bool {
	n := len(X)
	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (n + workers - 1) / workers
	changed := make([]bool, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				best := nearest(X[i], centroids)
				if assign[i] != best {
					changed[w] = true
				}
				assign[i] = best
			}
		}(w, start, end)
	}
	wg.Wait()

	for _, c := range changed {
		if c {
			return true
		}
	}
	return false
}

func nearest(x []float64, centroids [][]float64) int {
	best, bestdSquared := 0, math.MaxFloat64
	for k, c := range centroids {
		if d := euclidSquared(x, c); d < bestdSquared {
			bestdSquared = d
			best = k
		}
	}
	return best
}

// Predict assigns each data point to its nearest centroid and returns the
// zero-based cluster index.
func (m *KMeans) Predict(X [][]float64) ([]int, error) {
	if len(m.Centroids) == 0 {
		return nil, errors.New("kmeans: model not fitted")
	}
	if len(X) == 0 {
		return nil, errors.New("kmeans: input data for prediction cannot be empty")
	}
	if len(X[0]) != len(m.Centroids[0]) {
		return nil, errors.New("kmeans: feature count mismatch between input data and model centroids")
	}

	assignments := make([]int, len(X))
	for i := range assignments {
		assignments[i] = -1
	}
	assignAll(X, m.Centroids, assignments)
	return assignments, nil
}

// initCenters is k-means++ seeding: each further center is drawn with
// probability proportional to its squared distance from the nearest chosen one.
func initCenters(X [][]float64, k int, rnd *rand.Rand) [][]float64 {
	n := len(X)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64{}, X[rnd.Intn(n)]...))

	distSq := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, x := range X {
			minDist := math.MaxFloat64
			for _, c := range centroids {
				if d2 := euclidSquared(x, c); d2 < minDist {
					minDist = d2
				}
			}
			distSq[i] = minDist
			total += minDist
		}

		next := n - 1
		if total == 0 {
			// every point coincides with a center already
			next = rnd.Intn(n)
		} else {
			r := rnd.Float64() * total
			cumulative := 0.0
			for i, d2 := range distSq {
				cumulative += d2
				if cumulative >= r && d2 > 0 {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, append([]float64{}, X[next]...))
	}
	return centroids
}
