// Package experiment runs the full churn workflow: split, prepare, segment,
// evaluate every family on every training variant, tune, and promote the
// best model into a saved prediction pipeline.
package experiment

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"churn/pkg/balance"
	"churn/pkg/config"
	"churn/pkg/core"
	"churn/pkg/data"
	"churn/pkg/dataprep"
	"churn/pkg/loader"
	"churn/pkg/logger"
	"churn/pkg/model"
	"churn/pkg/pipeline"
	"churn/pkg/report"
	"churn/pkg/segment"
	"churn/pkg/store"
	"churn/pkg/train"
	"churn/pkg/tune"
)

// Experiment is a configured run.
type Experiment struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *Metrics
}

// Option configures an Experiment.
type Option func(*Experiment)

// WithLogger sets the logger passed down to every stage.
func WithLogger(l *zap.Logger) Option { return func(e *Experiment) { e.log = l } }

// WithMetrics replaces the metrics collector.
func WithMetrics(m *Metrics) Option { return func(e *Experiment) { e.metrics = m } }

func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotate(err, "config")
	}
	e := &Experiment{cfg: cfg, log: zap.NewNop(), metrics: NewMetrics()}
	for _, o := range opts {
		o(e)
	}
	e.log = logger.OrNop(e.log)
	return e, nil
}

// Report is everything a run produced.
type Report struct {
	RunID        string
	TrainSize    int
	TestSize     int
	Preparation  map[string]string
	Elbow        *segment.ElbowResult
	Profiles     []segment.ClusterProfile
	Results      []train.EvaluationResult // best F1 first
	Tuned        map[string]*tune.Result
	Best         train.EvaluationResult
	Pipeline     *pipeline.Pipeline
	ArtifactPath string
	Plots        []string
}

// trained remembers how a registry entry was produced so the winner can be
// refitted for the pipeline. fitted is set when the evaluated classifier
// itself was kept and needs no refit.
type trained struct {
	cand   train.Candidate
	train  *data.Matrix
	fitted model.Classifier
}

func key(name, variant string) string { return name + "/" + variant }

// winner returns the classifier to promote. Untuned entries are refitted;
// fits are seeded so this reproduces the evaluated model.
func (e *Experiment) winner(win trained) (model.Classifier, error) {
	if win.fitted != nil {
		return win.fitted, nil
	}
	clf, err := win.cand.Build()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := clf.Fit(win.train.X, win.train.Y); err != nil {
		return nil, errors.Annotate(err, "refit best model")
	}
	return clf, nil
}

// Run loads the configured input and runs the experiment on it.
func (e *Experiment) Run(ctx context.Context) (*Report, error) {
	ds, err := data.LoadCSV(e.cfg.Input, data.BankChurnersSchema(), data.ReadOptions{RequireLabel: true})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return e.RunDataset(ctx, ds)
}

// RunDataset runs the experiment on an already loaded dataset.
func (e *Experiment) RunDataset(ctx context.Context, ds *data.Dataset) (*Report, error) {
	cfg := e.cfg
	rep := &Report{Tuned: make(map[string]*tune.Result)}

	if cfg.Output.Dir != "" {
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return nil, errors.Annotate(err, "create output dir")
		}
	}

	var run *store.Run
	if path := e.output(cfg.Output.Results); path != "" {
		st, err := store.NewStore(path)
		if err != nil {
			return nil, errors.Annotate(err, "results store")
		}
		defer st.Close()
		if run, err = st.StartRun(ctx, cfg.Input, cfg.Seed); err != nil {
			return nil, errors.Trace(err)
		}
		rep.RunID = run.ID
	}
	log := e.log.With(zap.String("run_id", rep.RunID))

	// Split on the raw labels so preparation can be fitted on train alone.
	start := time.Now()
	y := make([]int, ds.Len())
	for i, rec := range ds.Records {
		v, err := dataprep.EncodeTarget(ds.Schema, rec.Label, i)
		if err != nil {
			return nil, err
		}
		y[i] = v
	}
	trIdx, teIdx := loader.StratifiedSplit(y, cfg.TestRatio, core.NewRand(cfg.Seed))
	rawTrain, rawTest := ds.Subset(trIdx), ds.Subset(teIdx)
	rep.TrainSize, rep.TestSize = len(trIdx), len(teIdx)

	policy := dataprep.IgnoreUnknown
	if cfg.Prepare.Unknown == "error" {
		policy = dataprep.ErrorOnUnknown
	}
	fitOn := rawTrain
	if cfg.Prepare.Scope == config.ScopeGlobal {
		fitOn = ds
	}
	prep, err := dataprep.Fit(fitOn, dataprep.WithUnknownPolicy(policy))
	if err != nil {
		return nil, errors.Annotate(err, "prepare")
	}
	trainM, err := prep.Transform(rawTrain)
	if err != nil {
		return nil, errors.Annotate(err, "prepare train")
	}
	testM, err := prep.Transform(rawTest)
	if err != nil {
		return nil, errors.Annotate(err, "prepare test")
	}
	rep.Preparation = prep.Describe()
	neg, pos := trainM.ClassCounts()
	log.Info("data prepared",
		zap.String("scope", cfg.Prepare.Scope),
		zap.Int("train", trainM.Rows()),
		zap.Int("test", testM.Rows()),
		zap.Int("train_negative", neg),
		zap.Int("train_positive", pos),
		zap.Int("features", len(trainM.Features)),
	)
	e.metrics.ObserveStage("prepare", start)

	var seg *segment.Segmenter
	var clusterLabels []int
	if cfg.Cluster.Enabled {
		start = time.Now()
		if rep.Elbow, err = segment.Elbow(trainM, min(cfg.Cluster.MaxK, trainM.Rows()), cfg.Seed); err != nil {
			return nil, errors.Annotate(err, "elbow")
		}
		log.Info("elbow computed", zap.Int("suggested_k", rep.Elbow.Suggested), zap.Int("k", cfg.Cluster.K))

		if seg, err = segment.Fit(trainM, cfg.Cluster.K, cfg.Seed); err != nil {
			return nil, errors.Annotate(err, "segment")
		}
		clustered, labels, err := seg.Append(trainM)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if rep.Profiles, err = segment.Profile(trainM, labels); err != nil {
			return nil, errors.Trace(err)
		}
		for _, p := range rep.Profiles {
			log.Debug("cluster profile", zap.Stringer("profile", p))
		}
		if testM, _, err = seg.Append(testM); err != nil {
			return nil, errors.Trace(err)
		}
		trainM, clusterLabels = clustered, labels
		e.metrics.ObserveStage("segment", start)
	}

	opts := []train.RegistryOption{train.WithLogger(log), train.WithObserver(e.metrics.ObserveResult)}
	if run != nil {
		opts = append(opts, train.WithSink(run))
	}
	reg := train.NewRegistry(opts...)
	produced := make(map[string]trained)
	variants := make(map[string]*data.Matrix)

	balanced := func(name string) (*data.Matrix, string, error) {
		strategy, err := balance.ParseStrategy(name)
		if err != nil {
			return nil, "", err
		}
		variant := strategy.Variant()
		if m, ok := variants[variant]; ok {
			return m, variant, nil
		}
		m, err := balance.Balance(trainM, strategy, cfg.Seed)
		if err != nil {
			return nil, "", errors.Annotatef(err, "balance %s", name)
		}
		variants[variant] = m
		return m, variant, nil
	}

	for _, name := range cfg.Variants {
		start = time.Now()
		tm, variant, err := balanced(name)
		if err != nil {
			return nil, err
		}
		cands := make([]train.Candidate, len(cfg.Families))
		for i, f := range cfg.Families {
			cands[i] = train.Candidate{Family: f, Params: model.Params{}, Seed: cfg.Seed}
		}
		results, err := train.EvaluateAll(ctx, cands, tm, testM, variant, reg, cfg.Workers)
		if err != nil {
			return nil, errors.Annotatef(err, "evaluate %s", variant)
		}
		for i, r := range results {
			produced[key(r.Model, variant)] = trained{cand: cands[i], train: tm}
		}
		e.metrics.ObserveStage("evaluate_"+variant, start)
	}

	if cfg.Tune.Enabled && len(cfg.Tune.Families) > 0 {
		tm, variant, err := balanced(cfg.Tune.Variant)
		if err != nil {
			return nil, err
		}
		log.Info("tuning", zap.Strings("families", cfg.Tune.Families), zap.String("on", variant))
		for _, family := range cfg.Tune.Families {
			start = time.Now()
			space, err := cfg.Space(family)
			if err != nil {
				return nil, err
			}
			tcfg := cfg.TunerConfig()
			tcfg.Logger = log
			tcfg.Observer = e.metrics.ObserveTrial
			res, err := tune.Tune(ctx, family, space, tm, tcfg)
			if err != nil {
				return nil, errors.Annotatef(err, "tune %s", family)
			}
			rep.Tuned[family] = res
			if run != nil {
				if err := run.SaveTrials(ctx, family, res.Trials); err != nil {
					return nil, errors.Trace(err)
				}
			}

			// The tuner already refitted the winner on tm; score it as is.
			scored, err := train.Score(ctx, res.Best, testM, train.VariantTuned)
			if err != nil {
				return nil, errors.Annotatef(err, "evaluate tuned %s", family)
			}
			scored.Family, scored.Params = family, res.BestParams.String()
			scored.FitDuration = res.RefitDuration
			if err := reg.Record(ctx, scored); err != nil {
				return nil, errors.Trace(err)
			}
			cand := train.Candidate{Family: family, Params: res.BestParams, Seed: cfg.Seed}
			produced[key(scored.Model, train.VariantTuned)] = trained{cand: cand, train: tm, fitted: res.Best}
			e.metrics.ObserveStage("tune", start)
		}
	}

	rep.Results = reg.Results()
	best, ok := reg.Best()
	if !ok {
		return nil, errors.New("no model was evaluated")
	}
	rep.Best = best
	log.Info("best model",
		zap.String("model", best.Model),
		zap.String("variant", best.Variant),
		zap.String("params", best.Params),
		zap.Float64("f1", best.F1),
		zap.Float64("roc_auc", best.ROCAUC),
	)

	clf, err := e.winner(produced[key(best.Model, best.Variant)])
	if err != nil {
		return nil, err
	}
	rep.Pipeline, err = pipeline.Build(prep, seg, clf, pipeline.Meta{
		RunID:   rep.RunID,
		Family:  best.Family,
		Params:  best.Params,
		Variant: best.Variant,
		Scores: map[string]float64{
			model.MetricAccuracy:  best.Accuracy,
			model.MetricPrecision: best.Precision,
			model.MetricRecall:    best.Recall,
			model.MetricF1:        best.F1,
			model.MetricROCAUC:    best.ROCAUC,
		},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if path := e.output(cfg.Output.Model); path != "" {
		if err := rep.Pipeline.SaveFile(path); err != nil {
			return nil, errors.Trace(err)
		}
		rep.ArtifactPath = path
		log.Info("pipeline saved", zap.String("path", path))
	}

	if cfg.Output.Plots {
		if rep.Plots, err = e.plot(rep, trainM, clusterLabels, seg); err != nil {
			return nil, err
		}
	}
	if run != nil {
		if err := run.Finish(ctx, best); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if path := e.output(cfg.Output.Metrics); path != "" {
		if err := e.metrics.WriteTextfile(path); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

func (e *Experiment) plot(rep *Report, m *data.Matrix, labels []int, seg *segment.Segmenter) ([]string, error) {
	var out []string
	if rep.Elbow != nil {
		path := e.output("elbow.png")
		if err := report.Elbow(rep.Elbow, path); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	if seg != nil {
		path := e.output("clusters.png")
		if err := report.Clusters(m, labels, seg, path); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	path := e.output("comparison.png")
	if err := report.Comparison(rep.Results, path); err != nil {
		return nil, err
	}
	return append(out, path), nil
}

// output resolves name inside the output directory; empty disables.
func (e *Experiment) output(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) || e.cfg.Output.Dir == "" {
		return name
	}
	return filepath.Join(e.cfg.Output.Dir, name)
}
