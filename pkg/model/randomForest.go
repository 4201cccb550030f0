package model

import (
	"math"
	"runtime"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"churn/pkg/core"
)

// RandomForest for classification
type RandomForest struct {
	// Hyperparameters / options
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 => sqrt(p)
	Bootstrap       bool
	RandomState     int64
	Workers         int // 0 => GOMAXPROCS

	// Internal state
	Trees []*DecisionTreeClassifier
}

// Option functional config for RandomForest
type RandomForestOption func(*RandomForest)

func WithNEstimators(n int) RandomForestOption { return func(rf *RandomForest) { rf.NEstimators = n } }
func WithBootstrap(b bool) RandomForestOption  { return func(rf *RandomForest) { rf.Bootstrap = b } }
func WithForestDepth(d int) RandomForestOption { return func(rf *RandomForest) { rf.MaxDepth = d } }
func WithForestSeed(s int64) RandomForestOption {
	return func(rf *RandomForest) { rf.RandomState = s }
}
func WithForestWorkers(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.Workers = n }
}

// NewRandomForest initializes the forest with sensible defaults.
func NewRandomForest(opts ...RandomForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

func (rf *RandomForest) Name() string { return "Random Forest" }

// Fit trains the forest. Tree i draws its bootstrap sample and feature
// subsets from a stream derived from RandomState and i, so the result does
// not depend on how many workers run.
func (rf *RandomForest) Fit(X [][]float64, y []int) error {
	if err := checkXY("randomforest", X, y); err != nil {
		return err
	}
	if rf.NEstimators < 1 {
		return errors.NotValidf("randomforest: n_estimators %d", rf.NEstimators)
	}
	n, p := len(X), len(X[0])
	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = max(1, int(math.Sqrt(float64(p))))
	}

	trees := make([]*DecisionTreeClassifier, rf.NEstimators)
	var g errgroup.Group
	g.SetLimit(workerCount(rf.Workers))
	for i := 0; i < rf.NEstimators; i++ {
		i := i
		g.Go(func() error {
			seed := core.DeriveSeed(rf.RandomState, i)
			// bootstrap draws become integer sample weights
			w := make([]float64, n)
			if rf.Bootstrap {
				rnd := core.NewRand(seed)
				for j := 0; j < n; j++ {
					w[rnd.Intn(n)]++
				}
			} else {
				for j := range w {
					w[j] = 1
				}
			}
			tree := NewDecisionTreeClassifier(
				WithMaxDepth(rf.MaxDepth),
				WithMinSamplesSplit(rf.MinSamplesSplit),
				WithMinSamplesLeaf(rf.MinSamplesLeaf),
				WithMaxFeatures(maxFeatures),
				WithRandomState(core.DeriveSeed(seed, 1)),
			)
			if err := tree.FitWeighted(X, y, w); err != nil {
				return errors.Annotatef(err, "tree %d", i)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	rf.Trees = trees
	return nil
}

// PredictProba averages the leaf probabilities of every tree.
func (rf *RandomForest) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(rf.Trees) == 0 {
		return out
	}
	for i, x := range X {
		s := 0.0
		for _, t := range rf.Trees {
			s += t.leaf(x).Proba
		}
		out[i] = s / float64(len(rf.Trees))
	}
	return out
}

// Predict thresholds the averaged probability at one half.
func (rf *RandomForest) Predict(X [][]float64) []int {
	return BinaryPredFromProba(rf.PredictProba(X), 0.5)
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
