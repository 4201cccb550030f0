package model

import (
	"sort"

	"github.com/juju/errors"
)

// Metric names accepted by Score.
const (
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1"
	MetricROCAUC    = "roc_auc"
	MetricLogLoss   = "neg_log_loss"
)

func BinaryPredFromProba(proba []float64, threshold float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p >= threshold {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out
}

// Classification metrics (binary, labels 0/1)
func Accuracy(yTrue []int, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

// PrecisionRecallF1 treats class 1 as positive. An undefined ratio is 0.
func PrecisionRecallF1(yTrue []int, yPred []int) (prec, rec, f1 float64) {
	tp, fp, fn := 0, 0, 0
	for i := range yTrue {
		if yPred[i] == 1 && yTrue[i] == 1 {
			tp++
		}
		if yPred[i] == 1 && yTrue[i] == 0 {
			fp++
		}
		if yPred[i] == 0 && yTrue[i] == 1 {
			fn++
		}
	}
	if tp+fp > 0 {
		prec = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		rec = float64(tp) / float64(tp+fn)
	}
	if prec+rec > 0 {
		f1 = 2 * prec * rec / (prec + rec)
	}
	return
}

// ConfusionMatrix returns [[tn, fp], [fn, tp]].
func ConfusionMatrix(yTrue, yPred []int) [2][2]int {
	var cm [2][2]int
	for i := range yTrue {
		cm[yTrue[i]][yPred[i]]++
	}
	return cm
}

// ROCAUC is the probability that a random positive outranks a random
// negative, computed from average ranks so tied scores count one half.
// It is undefined, and ok is false, when either class is absent.
func ROCAUC(yTrue []int, scores []float64) (auc float64, ok bool) {
	n := len(yTrue)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	var nPos, nNeg int
	rankSumPos := 0.0
	for start := 0; start < n; {
		end := start
		for end < n && scores[order[end]] == scores[order[start]] {
			end++
		}
		// ranks are 1-based, ties share the mean rank
		rank := float64(start+end+1) / 2.0
		for _, i := range order[start:end] {
			if yTrue[i] == 1 {
				nPos++
				rankSumPos += rank
			} else {
				nNeg++
			}
		}
		start = end
	}
	if nPos == 0 || nNeg == 0 {
		return 0, false
	}
	u := rankSumPos - float64(nPos)*float64(nPos+1)/2.0
	return u / (float64(nPos) * float64(nNeg)), true
}

// Score computes a named metric. Higher is always better, so log-loss is
// negated.
func Score(metric string, yTrue, yPred []int, proba []float64) (float64, error) {
	switch metric {
	case MetricAccuracy:
		return Accuracy(yTrue, yPred), nil
	case MetricPrecision:
		p, _, _ := PrecisionRecallF1(yTrue, yPred)
		return p, nil
	case MetricRecall:
		_, r, _ := PrecisionRecallF1(yTrue, yPred)
		return r, nil
	case MetricF1, "":
		_, _, f := PrecisionRecallF1(yTrue, yPred)
		return f, nil
	case MetricROCAUC:
		auc, ok := ROCAUC(yTrue, proba)
		if !ok {
			return 0, errors.New("roc_auc undefined with a single class")
		}
		return auc, nil
	case MetricLogLoss:
		return -LogLoss(yTrue, proba), nil
	}
	return 0, errors.NotValidf("metric %q", metric)
}

// ValidMetric reports whether Score knows metric.
func ValidMetric(metric string) bool {
	switch metric {
	case MetricAccuracy, MetricPrecision, MetricRecall, MetricF1, MetricROCAUC, MetricLogLoss:
		return true
	}
	return false
}
