package experiment

import (
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"

	"churn/pkg/train"
	"churn/pkg/tune"
)

// Metrics collects run telemetry in a private Prometheus registry that is
// written out as a node-exporter textfile when the run ends.
type Metrics struct {
	registry *prometheus.Registry

	fits         *prometheus.CounterVec
	fitSeconds   *prometheus.HistogramVec
	modelScore   *prometheus.GaugeVec
	trials       *prometheus.CounterVec
	stageSeconds *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_model_fits_total",
			Help: "Evaluated model fits by family and training variant.",
		}, []string{"family", "variant"}),
		fitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "churn_model_fit_seconds",
			Help:    "Wall time of a single model fit.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"family"}),
		modelScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "churn_model_score",
			Help: "Held-out score of the latest fit per model, variant and metric.",
		}, []string{"model", "variant", "metric"}),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_tuning_trials_total",
			Help: "Hyperparameter combinations evaluated by the tuner.",
		}, []string{"family", "valid"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "churn_stage_seconds",
			Help:    "Wall time of each experiment stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
	}
	m.registry.MustRegister(m.fits, m.fitSeconds, m.modelScore, m.trials, m.stageSeconds)
	return m
}

// ObserveResult records one registry write.
func (m *Metrics) ObserveResult(res train.EvaluationResult) {
	m.fits.WithLabelValues(res.Family, res.Variant).Inc()
	m.fitSeconds.WithLabelValues(res.Family).Observe(res.FitDuration.Seconds())
	for metric, v := range map[string]float64{
		"accuracy":  res.Accuracy,
		"precision": res.Precision,
		"recall":    res.Recall,
		"f1":        res.F1,
		"roc_auc":   res.ROCAUC,
	} {
		m.modelScore.WithLabelValues(res.Model, res.Variant, metric).Set(v)
	}
}

// ObserveTrial counts one tuner trial.
func (m *Metrics) ObserveTrial(family string, t tune.Trial) {
	m.trials.WithLabelValues(family, strconv.FormatBool(t.Valid)).Inc()
}

// ObserveStage records how long a stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.stageSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Gatherer exposes the registry, e.g. for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes every metric to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Annotatef(err, "write metrics %s", path)
	}
	return nil
}
