package model

import (
	"math/rand"

	"github.com/juju/errors"

	"churn/pkg/core"
	"churn/pkg/optim"
)

// GradientBoosting is a log-loss gradient boosted ensemble of shallow
// regression trees split on residual variance.
type GradientBoosting struct {
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Subsample       float64
	RandomState     int64

	Init  float64 // prior log-odds
	Trees []*RegressionTree
}

// NewGradientBoosting returns the usual defaults: 100 depth-3 trees at rate 0.1.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{
		NEstimators:     100,
		LearningRate:    0.1,
		MaxDepth:        3,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Subsample:       1.0,
	}
}

func (m *GradientBoosting) Name() string { return "Gradient Boosting" }

func (m *GradientBoosting) Fit(X [][]float64, y []int) error {
	if err := checkBoosting("gradientboosting", X, y, m.NEstimators, m.LearningRate, m.Subsample); err != nil {
		return err
	}
	prm := treeParams{
		rule:            VarianceSplit,
		maxDepth:        m.MaxDepth,
		minSamplesSplit: m.MinSamplesSplit,
		minSamplesLeaf:  m.MinSamplesLeaf,
	}
	m.Init = LogOdds(positiveShare(y))
	m.Trees = boost(X, y, m.Init, m.NEstimators, m.LearningRate, m.Subsample, 1.0, prm, core.NewRand(m.RandomState))
	return nil
}

func (m *GradientBoosting) PredictProba(X [][]float64) []float64 {
	return marginProba(X, m.Init, m.LearningRate, m.Trees)
}

func (m *GradientBoosting) Predict(X [][]float64) []int {
	return BinaryPredFromProba(m.PredictProba(X), 0.5)
}

// XGBoost is the regularised boosting variant: second-order gain with an L2
// leaf penalty, a minimum split gain and per-tree column sampling.
type XGBoost struct {
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinChildWeight  float64
	Lambda          float64
	Gamma           float64
	Subsample       float64
	ColsampleByTree float64
	BaseScore       float64
	RandomState     int64

	Trees []*RegressionTree
}

// NewXGBoost returns the customary defaults (eta 0.3, depth 6, lambda 1).
func NewXGBoost() *XGBoost {
	return &XGBoost{
		NEstimators:     100,
		LearningRate:    0.3,
		MaxDepth:        6,
		MinChildWeight:  1,
		Lambda:          1,
		Subsample:       1,
		ColsampleByTree: 1,
		BaseScore:       0.5,
	}
}

func (m *XGBoost) Name() string { return "XGBoost" }

func (m *XGBoost) Fit(X [][]float64, y []int) error {
	if err := checkBoosting("xgboost", X, y, m.NEstimators, m.LearningRate, m.Subsample); err != nil {
		return err
	}
	if m.ColsampleByTree <= 0 || m.ColsampleByTree > 1 {
		return errors.NotValidf("xgboost: colsample_bytree %v", m.ColsampleByTree)
	}
	if m.BaseScore <= 0 || m.BaseScore >= 1 {
		return errors.NotValidf("xgboost: base_score %v", m.BaseScore)
	}
	prm := treeParams{
		rule:           NewtonSplit,
		maxDepth:       m.MaxDepth,
		minChildWeight: m.MinChildWeight,
		lambda:         m.Lambda,
		gamma:          m.Gamma,
	}
	m.Trees = boost(X, y, LogOdds(m.BaseScore), m.NEstimators, m.LearningRate, m.Subsample, m.ColsampleByTree, prm, core.NewRand(m.RandomState))
	return nil
}

func (m *XGBoost) PredictProba(X [][]float64) []float64 {
	return marginProba(X, LogOdds(m.BaseScore), m.LearningRate, m.Trees)
}

func (m *XGBoost) Predict(X [][]float64) []int {
	return BinaryPredFromProba(m.PredictProba(X), 0.5)
}

// boost runs the shared additive loop: each round fits a tree to the
// log-loss gradients of a row subsample and adds its shrunken output.
func boost(X [][]float64, y []int, init float64, rounds int, rate, subsample, colsample float64, prm treeParams, rnd *rand.Rand) []*RegressionTree {
	n, p := len(X), len(X[0])
	data := binMatrix(X)
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = init
	}
	g := make([]float64, n)
	h := make([]float64, n)
	trees := make([]*RegressionTree, 0, rounds)

	rows := make([]int, n)
	cols := make([]int, p)
	opt := optim.NewSGD(rate)
	for r := 0; r < rounds; r++ {
		logisticGradients(y, margin, g, h)

		for i := range rows {
			rows[i] = i
		}
		idx := rows
		if subsample < 1 {
			rnd.Shuffle(n, func(a, b int) { rows[a], rows[b] = rows[b], rows[a] })
			idx = append([]int(nil), rows[:max(1, int(subsample*float64(n)))]...)
		}
		for j := range cols {
			cols[j] = j
		}
		features := cols
		if colsample < 1 {
			rnd.Shuffle(p, func(a, b int) { cols[a], cols[b] = cols[b], cols[a] })
			features = append([]int(nil), cols[:max(1, int(colsample*float64(p)))]...)
		}

		tree := fitRegressionTree(prm, data, g, h, idx, features)
		trees = append(trees, tree)
		opt.StepFunc(margin, func(i int) float64 { return -tree.Predict(X[i]) })
	}
	return trees
}

func marginProba(X [][]float64, init, rate float64, trees []*RegressionTree) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		f := init
		for _, t := range trees {
			f += rate * t.Predict(x)
		}
		out[i] = Sigmoid(f)
	}
	return out
}

func checkBoosting(model string, X [][]float64, y []int, rounds int, rate, subsample float64) error {
	if err := checkXY(model, X, y); err != nil {
		return err
	}
	if rounds < 1 {
		return errors.NotValidf("%s: n_estimators %d", model, rounds)
	}
	if rate <= 0 {
		return errors.NotValidf("%s: learning_rate %v", model, rate)
	}
	if subsample <= 0 || subsample > 1 {
		return errors.NotValidf("%s: subsample %v", model, subsample)
	}
	return nil
}

func positiveShare(y []int) float64 {
	pos := 0
	for _, v := range y {
		if v == 1 {
			pos++
		}
	}
	return float64(pos) / float64(len(y))
}
