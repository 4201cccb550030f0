package model

import (
	"math"

	"github.com/juju/errors"
)

// AdaBoost is discrete SAMME boosting over weighted decision stumps.
type AdaBoost struct {
	NEstimators  int
	LearningRate float64
	MaxDepth     int // depth of each weak learner, 1 => stumps
	RandomState  int64

	Learners []*DecisionTreeClassifier
	Alphas   []float64
}

// NewAdaBoost returns 50 stumps at learning rate 1.
func NewAdaBoost() *AdaBoost {
	return &AdaBoost{NEstimators: 50, LearningRate: 1, MaxDepth: 1}
}

func (m *AdaBoost) Name() string { return "AdaBoost" }

// Fit reweights the training rows after every round so the next learner
// focuses on what the ensemble still gets wrong. Training stops early on a
// perfect learner or on one no better than chance.
func (m *AdaBoost) Fit(X [][]float64, y []int) error {
	if err := checkXY("adaboost", X, y); err != nil {
		return err
	}
	if m.NEstimators < 1 {
		return errors.NotValidf("adaboost: n_estimators %d", m.NEstimators)
	}
	if m.LearningRate <= 0 {
		return errors.NotValidf("adaboost: learning_rate %v", m.LearningRate)
	}
	n := len(X)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	m.Learners, m.Alphas = nil, nil

	for r := 0; r < m.NEstimators; r++ {
		stump := NewDecisionTreeClassifier(WithMaxDepth(max(m.MaxDepth, 1)), WithRandomState(m.RandomState))
		if err := stump.FitWeighted(X, y, w); err != nil {
			return errors.Annotatef(err, "adaboost round %d", r)
		}
		pred := stump.Predict(X)
		errW, total := 0.0, 0.0
		for i := range y {
			total += w[i]
			if pred[i] != y[i] {
				errW += w[i]
			}
		}
		errRate := errW / total
		if errRate <= 0 {
			m.Learners = append(m.Learners, stump)
			m.Alphas = append(m.Alphas, 1)
			break
		}
		if errRate >= 0.5 {
			if len(m.Learners) == 0 {
				return errors.New("adaboost: first learner is no better than chance")
			}
			break
		}
		alpha := m.LearningRate * math.Log((1-errRate)/errRate)
		m.Learners = append(m.Learners, stump)
		m.Alphas = append(m.Alphas, alpha)

		sum := 0.0
		for i := range w {
			if pred[i] != y[i] {
				w[i] *= math.Exp(alpha)
			}
			sum += w[i]
		}
		for i := range w {
			w[i] /= sum
		}
	}
	return nil
}

// decision returns the alpha-weighted vote in [-1, 1] per row.
func (m *AdaBoost) decision(X [][]float64) []float64 {
	out := make([]float64, len(X))
	total := 0.0
	for _, a := range m.Alphas {
		total += a
	}
	if total == 0 {
		return out
	}
	for k, l := range m.Learners {
		for i, v := range l.Predict(X) {
			if v == 1 {
				out[i] += m.Alphas[k]
			} else {
				out[i] -= m.Alphas[k]
			}
		}
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// PredictProba maps the normalised vote through a logistic link.
func (m *AdaBoost) PredictProba(X [][]float64) []float64 {
	d := m.decision(X)
	for i, v := range d {
		d[i] = Sigmoid(2 * v)
	}
	return d
}

func (m *AdaBoost) Predict(X [][]float64) []int {
	return BinaryPredFromProba(m.PredictProba(X), 0.5)
}
