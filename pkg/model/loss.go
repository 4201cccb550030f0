package model

import "math"

func Sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// LogOdds is the inverse of Sigmoid, with p clipped away from 0 and 1.
func LogOdds(p float64) float64 {
	p = math.Min(math.Max(p, 1e-12), 1-1e-12)
	return math.Log(p / (1 - p))
}

// LogLoss is the mean binary cross-entropy of probabilities against 0/1 labels.
func LogLoss(yTrue []int, proba []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	s := 0.0
	for i, y := range yTrue {
		p := math.Min(math.Max(proba[i], 1e-12), 1-1e-12)
		if y == 1 {
			s -= math.Log(p)
		} else {
			s -= math.Log(1 - p)
		}
	}
	return s / float64(len(yTrue))
}

// logisticGradients fills the first and second derivatives of the log-loss
// with respect to the raw margin.
func logisticGradients(y []int, margin, g, h []float64) {
	for i := range y {
		p := Sigmoid(margin[i])
		g[i] = p - float64(y[i])
		h[i] = math.Max(p*(1-p), 1e-16)
	}
}
