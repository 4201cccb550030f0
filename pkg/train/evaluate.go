// Package train fits classifier candidates and scores them on a held-out
// split, collecting the results in a registry.
package train

import (
	"context"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"churn/pkg/core"
	"churn/pkg/data"
	"churn/pkg/model"
)

// Training-set variant names.
const (
	VariantOriginal     = "original"
	VariantOversampled  = "oversampled"
	VariantUndersampled = "undersampled"
	VariantTuned        = "tuned"
)

// EvaluationResult is the metric suite of one fitted model on a test split.
type EvaluationResult struct {
	Model       string // display name of the family
	Family      string
	Variant     string
	Params      string
	Accuracy    float64
	Precision   float64
	Recall      float64
	F1          float64
	ROCAUC      float64   // 0 when the test split holds a single class
	Confusion   [2][2]int // [[tn, fp], [fn, tp]] at threshold 0.5
	TestSize    int
	FitDuration time.Duration
}

// Scores computes the metric suite of predictions against yTrue.
func Scores(yTrue, yPred []int, proba []float64) (acc, prec, rec, f1, auc float64) {
	acc = model.Accuracy(yTrue, yPred)
	prec, rec, f1 = model.PrecisionRecallF1(yTrue, yPred)
	auc, _ = model.ROCAUC(yTrue, proba)
	return
}

// Evaluate fits clf on train and scores it on test. The training split must
// hold at least two records of each class.
func Evaluate(ctx context.Context, clf model.Classifier, train, test *data.Matrix, variant string) (EvaluationResult, error) {
	res := EvaluationResult{Model: clf.Name(), Variant: variant, TestSize: test.Rows()}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := core.CheckBinary(clf.Name(), train.Y, 2); err != nil {
		return res, err
	}
	if len(train.Features) != len(test.Features) {
		return res, &core.FitError{Model: clf.Name(), Reason: "train and test feature counts differ"}
	}
	if test.Rows() == 0 {
		return res, &core.FitError{Model: clf.Name(), Reason: "empty test split"}
	}

	start := time.Now()
	if err := clf.Fit(train.X, train.Y); err != nil {
		return res, errors.Annotatef(err, "fit %s on %s", clf.Name(), variant)
	}
	fitted := time.Since(start)

	res, err := Score(ctx, clf, test, variant)
	res.FitDuration = fitted
	return res, err
}

// Score evaluates an already fitted clf on test without refitting it.
func Score(ctx context.Context, clf model.Classifier, test *data.Matrix, variant string) (EvaluationResult, error) {
	res := EvaluationResult{Model: clf.Name(), Variant: variant, TestSize: test.Rows()}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if test.Rows() == 0 {
		return res, &core.FitError{Model: clf.Name(), Reason: "empty test split"}
	}
	proba := clf.PredictProba(test.X)
	pred := model.BinaryPredFromProba(proba, 0.5)
	res.Accuracy, res.Precision, res.Recall, res.F1, res.ROCAUC = Scores(test.Y, pred, proba)
	res.Confusion = model.ConfusionMatrix(test.Y, pred)
	return res, nil
}

// Candidate is a family plus the hyperparameters to instantiate it with.
type Candidate struct {
	Family string
	Params model.Params
	Seed   int64
}

// Build instantiates the candidate's classifier.
func (c Candidate) Build() (model.Classifier, error) {
	return model.New(c.Family, c.Params, c.Seed)
}

// EvaluateAll evaluates every candidate on the same split with at most
// workers running at once. Once all of them finish, results are recorded in
// reg in candidate order, so the registry never depends on scheduling.
func EvaluateAll(ctx context.Context, cands []Candidate, train, test *data.Matrix, variant string, reg *Registry, workers int) ([]EvaluationResult, error) {
	out := make([]EvaluationResult, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, c := range cands {
		i, c := i, c
		g.Go(func() error {
			clf, err := c.Build()
			if err != nil {
				return err
			}
			res, err := Evaluate(gctx, clf, train, test, variant)
			if err != nil {
				return err
			}
			res.Family, res.Params = c.Family, c.Params.String()
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if reg != nil {
		for _, res := range out {
			if err := reg.Record(ctx, res); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
