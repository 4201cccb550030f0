// Package tune searches a classifier family's discrete hyperparameter space
// with stratified cross-validation and refits the best configuration.
package tune

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"churn/pkg/core"
	"churn/pkg/data"
	"churn/pkg/model"
)

// Strategy picks how combinations are proposed.
type Strategy string

const (
	// Random samples distinct grid combinations uniformly.
	Random Strategy = "random"
	// TPE proposes combinations sequentially with a Tree-structured Parzen Estimator.
	TPE Strategy = "tpe"
)

// Config controls one search.
type Config struct {
	Folds      int
	Iterations int
	Scoring    string
	Seed       int64
	Workers    int // 0 => GOMAXPROCS
	Strategy   Strategy
	Logger     *zap.Logger
	// Observer, when set, is called once per finished trial.
	Observer func(family string, t Trial)
}

// DefaultConfig mirrors the usual randomized-search settings.
func DefaultConfig() Config {
	return Config{Folds: 3, Iterations: 10, Scoring: model.MetricF1, Seed: 42, Strategy: Random}
}

// Trial is one evaluated combination.
type Trial struct {
	Index      int // order in which the combination was proposed
	Params     model.Params
	FoldScores []float64 // NaN for skipped folds
	Mean       float64
	Valid      bool // at least one fold was scored
}

// Result is the outcome of a search.
type Result struct {
	Family     string
	Best       model.Classifier
	BestParams model.Params
	BestScore  float64
	// RefitDuration is how long refitting Best on all of train took.
	RefitDuration time.Duration
	Trials        []Trial
	// SkippedFolds counts degenerate folds plus fold fits that failed; each
	// was logged as a warning and left out of the mean.
	SkippedFolds int
}

// Tune searches space for family on train and returns the best configuration
// refitted on all of train. Ties on mean score go to the earliest proposal.
func Tune(ctx context.Context, family string, space model.Space, train *data.Matrix, cfg Config) (*Result, error) {
	fam, err := model.Lookup(family)
	if err != nil {
		return nil, err
	}
	g, err := newGrid(family, space)
	if err != nil {
		return nil, err
	}
	if err := fam.CheckParams(g.combo(0)); err != nil {
		return nil, errors.Annotate(err, "search space")
	}
	if cfg.Folds < 2 {
		return nil, errors.NotValidf("cv folds %d", cfg.Folds)
	}
	if cfg.Iterations < 1 {
		return nil, errors.NotValidf("iterations %d", cfg.Iterations)
	}
	if cfg.Scoring == "" {
		cfg.Scoring = model.MetricF1
	}
	if !model.ValidMetric(cfg.Scoring) {
		return nil, errors.NotValidf("scoring metric %q", cfg.Scoring)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	log := cfg.Logger.With(zap.String("family", family), zap.String("strategy", string(cfg.Strategy)))

	cv := newCrossValidator(fam, train, cfg, log)
	if len(cv.folds) == 0 {
		return nil, &core.FitError{Model: family, Reason: "every cv fold is degenerate"}
	}

	var trials []Trial
	switch cfg.Strategy {
	case Random, "":
		trials, err = searchRandom(ctx, g, cv, cfg)
	case TPE:
		trials, err = searchTPE(ctx, g, cv, cfg, log)
	default:
		err = errors.NotValidf("search strategy %q", cfg.Strategy)
	}
	if err != nil {
		return nil, err
	}

	best := -1
	for i, t := range trials {
		if cfg.Observer != nil {
			cfg.Observer(family, t)
		}
		if t.Valid && (best < 0 || t.Mean > trials[best].Mean) {
			best = i
		}
	}
	if best < 0 {
		return nil, &core.FitError{Model: family, Reason: "no combination produced a cv score"}
	}

	clf, err := fam.New(trials[best].Params, cfg.Seed)
	if err != nil {
		return nil, errors.Trace(err)
	}
	start := time.Now()
	if err := clf.Fit(train.X, train.Y); err != nil {
		return nil, errors.Annotatef(err, "refit %s", family)
	}
	refit := time.Since(start)
	log.Info("search finished",
		zap.Int("trials", len(trials)),
		zap.String("best_params", trials[best].Params.String()),
		zap.Float64("best_score", trials[best].Mean),
		zap.String("scoring", cfg.Scoring),
		zap.Int("skipped_folds", cv.skipped),
	)
	return &Result{
		Family:        family,
		Best:          clf,
		BestParams:    trials[best].Params,
		BestScore:     trials[best].Mean,
		RefitDuration: refit,
		Trials:        trials,
		SkippedFolds:  cv.skipped,
	}, nil
}

// grid is a discrete space with keys in sorted order so combination i is
// stable across runs.
type grid struct {
	keys    []string
	choices [][]any
	size    int
}

func newGrid(family string, space model.Space) (*grid, error) {
	if len(space) == 0 {
		return nil, &core.SearchSpaceError{Model: family}
	}
	g := &grid{size: 1}
	for k := range space {
		g.keys = append(g.keys, k)
	}
	sort.Strings(g.keys)
	for _, k := range g.keys {
		if len(space[k]) == 0 {
			return nil, &core.SearchSpaceError{Model: family, Param: k}
		}
		g.choices = append(g.choices, space[k])
		if g.size <= math.MaxInt32 {
			g.size *= len(space[k])
		}
	}
	return g, nil
}

// combo decodes index i as a mixed-radix number, last key fastest.
func (g *grid) combo(i int) model.Params {
	p := make(model.Params, len(g.keys))
	for k := len(g.keys) - 1; k >= 0; k-- {
		n := len(g.choices[k])
		p[g.keys[k]] = g.choices[k][i%n]
		i /= n
	}
	return p
}

// sample draws n distinct combination indices, n capped at the grid size.
func (g *grid) sample(n int, rnd *rand.Rand) []int {
	if n >= g.size {
		return rnd.Perm(g.size)
	}
	if g.size <= 1<<20 {
		return rnd.Perm(g.size)[:n]
	}
	seen := make(map[int]bool, n)
	out := make([]int, 0, n)
	for len(out) < n {
		if i := rnd.Intn(g.size); !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}

func searchRandom(ctx context.Context, g *grid, cv *crossValidator, cfg Config) ([]Trial, error) {
	picked := g.sample(cfg.Iterations, core.NewRand(core.DeriveSeed(cfg.Seed, 0)))
	combos := make([]model.Params, len(picked))
	for i, idx := range picked {
		combos[i] = g.combo(idx)
	}
	return cv.run(ctx, combos, 0)
}
