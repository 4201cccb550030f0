package tune

import (
	"context"
	"math"
	"runtime"

	"github.com/juju/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"churn/pkg/core"
	"churn/pkg/data"
	"churn/pkg/loader"
	"churn/pkg/model"
)

// cvFold is one usable fold with its matrices materialised once.
type cvFold struct {
	index int
	train *data.Matrix
	held  *data.Matrix
}

type crossValidator struct {
	fam     model.Family
	cfg     Config
	log     *zap.Logger
	nFolds  int
	folds   []cvFold
	skipped int
}

// newCrossValidator splits train into stratified folds and drops, with a
// warning, every fold whose training part has fewer than two records of a
// class or whose held-out part lacks a class.
func newCrossValidator(fam model.Family, train *data.Matrix, cfg Config, log *zap.Logger) *crossValidator {
	cv := &crossValidator{fam: fam, cfg: cfg, log: log, nFolds: cfg.Folds}
	folds := loader.StratifiedKFold(train.Y, cfg.Folds, core.NewRand(cfg.Seed))
	for f, held := range folds {
		trainIdx := loader.FoldTrain(folds, f, train.Rows())
		fold := cvFold{index: f, train: train.Subset(trainIdx), held: train.Subset(held)}
		var warn *core.FoldWarning
		if err := core.CheckBinary(fam.Name, fold.train.Y, 2); err != nil {
			warn = &core.FoldWarning{Fold: f, Reason: err.Error()}
		} else if neg, pos := fold.held.ClassCounts(); neg == 0 || pos == 0 {
			warn = &core.FoldWarning{Fold: f, Reason: "held-out part has a single class"}
		}
		if warn != nil {
			cv.skipped++
			log.Warn("cv fold skipped", zap.Error(warn), zap.Int("fold", f))
			continue
		}
		cv.folds = append(cv.folds, fold)
	}
	return cv
}

func (cv *crossValidator) workers() int {
	if cv.cfg.Workers > 0 {
		return cv.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// run scores every combination on every usable fold. Each (combination,
// fold) unit writes its own slot and fits with a seed derived from the
// combination's proposal index, so results do not depend on scheduling.
func (cv *crossValidator) run(ctx context.Context, combos []model.Params, offset int) ([]Trial, error) {
	scores := make([][]float64, len(combos))
	for c := range scores {
		scores[c] = make([]float64, cv.nFolds)
		for f := range scores[c] {
			scores[c][f] = math.NaN()
		}
	}
	failed := make([][]bool, len(combos))
	for c := range failed {
		failed[c] = make([]bool, len(cv.folds))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cv.workers())
	for c, params := range combos {
		c, params := c, params
		seed := core.DeriveSeed(cv.cfg.Seed, offset+c+1)
		for k, fold := range cv.folds {
			k, fold := k, fold
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				s, err := cv.score(params, seed, fold)
				if err != nil {
					failed[c][k] = true
					cv.log.Warn("cv fold skipped",
						zap.Error(&core.FoldWarning{Fold: fold.index, Reason: err.Error()}),
						zap.String("params", params.String()),
					)
					return nil
				}
				scores[c][fold.index] = s
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Trace(err)
	}

	trials := make([]Trial, len(combos))
	for c, params := range combos {
		t := Trial{Index: offset + c, Params: params, FoldScores: scores[c]}
		sum, n := 0.0, 0
		for _, s := range scores[c] {
			if !math.IsNaN(s) {
				sum += s
				n++
			}
		}
		if n > 0 {
			t.Mean, t.Valid = sum/float64(n), true
		}
		for _, bad := range failed[c] {
			if bad {
				cv.skipped++
			}
		}
		trials[c] = t
	}
	return trials, nil
}

func (cv *crossValidator) score(params model.Params, seed int64, fold cvFold) (float64, error) {
	clf, err := cv.fam.New(params, seed)
	if err != nil {
		return 0, err
	}
	if err := clf.Fit(fold.train.X, fold.train.Y); err != nil {
		return 0, err
	}
	proba := clf.PredictProba(fold.held.X)
	pred := model.BinaryPredFromProba(proba, 0.5)
	return model.Score(cv.cfg.Scoring, fold.held.Y, pred, proba)
}
