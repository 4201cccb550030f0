// Package optim holds the update rules shared by the iterative learners.
package optim

// SGD takes fixed-size gradient steps. The boosters run it in function
// space: the parameters are per-row margins and each round's gradient is the
// negated output of the newest tree, so LearningRate is the shrinkage.
type SGD struct{ LearningRate float64 }

func NewSGD(lr float64) *SGD { return &SGD{LearningRate: lr} }

// Step updates params in place: params[i] -= LearningRate * grads[i].
func (o *SGD) Step(params, grads []float64) {
	for i := range params {
		params[i] -= o.LearningRate * grads[i]
	}
}

// StepFunc is Step with the gradient computed per index, for callers that
// would otherwise allocate a gradient slice each round.
func (o *SGD) StepFunc(params []float64, grad func(i int) float64) {
	for i := range params {
		params[i] -= o.LearningRate * grad(i)
	}
}
