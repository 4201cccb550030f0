package train

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Sink persists registry writes, e.g. to a results database.
type Sink interface {
	SaveResult(ctx context.Context, res EvaluationResult) error
}

type registryKey struct {
	model, variant string
}

// Registry holds the latest result per model name and training variant.
// Writes are serialized; a repeated key overwrites the earlier result.
type Registry struct {
	mu      sync.Mutex
	results map[registryKey]EvaluationResult
	order   []registryKey

	log      *zap.Logger
	sink     Sink
	observer func(EvaluationResult)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger logs every recorded result.
func WithLogger(l *zap.Logger) RegistryOption { return func(r *Registry) { r.log = l } }

// WithSink forwards every recorded result to s.
func WithSink(s Sink) RegistryOption { return func(r *Registry) { r.sink = s } }

// WithObserver calls fn after every recorded result.
func WithObserver(fn func(EvaluationResult)) RegistryOption {
	return func(r *Registry) { r.observer = fn }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{results: make(map[registryKey]EvaluationResult), log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Record stores res under its model and variant.
func (r *Registry) Record(ctx context.Context, res EvaluationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{res.Model, res.Variant}
	if _, ok := r.results[key]; !ok {
		r.order = append(r.order, key)
	}
	r.results[key] = res
	r.log.Info("evaluation recorded",
		zap.String("model", res.Model),
		zap.String("variant", res.Variant),
		zap.Float64("accuracy", res.Accuracy),
		zap.Float64("precision", res.Precision),
		zap.Float64("recall", res.Recall),
		zap.Float64("f1", res.F1),
		zap.Float64("roc_auc", res.ROCAUC),
		zap.Duration("fit", res.FitDuration),
	)
	if r.observer != nil {
		r.observer(res)
	}
	if r.sink != nil {
		if err := r.sink.SaveResult(ctx, res); err != nil {
			return errors.Annotatef(err, "persist %s/%s", res.Model, res.Variant)
		}
	}
	return nil
}

// Get returns the result stored for model and variant.
func (r *Registry) Get(model, variant string) (EvaluationResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[registryKey{model, variant}]
	return res, ok
}

// Len returns the number of stored results.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// Results returns every stored result, best F1 first. Equal F1 falls back to
// ROC-AUC, then to the order in which keys were first recorded.
func (r *Registry) Results() []EvaluationResult {
	r.mu.Lock()
	out := make([]EvaluationResult, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.results[k])
	}
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].F1 != out[j].F1 {
			return out[i].F1 > out[j].F1
		}
		return out[i].ROCAUC > out[j].ROCAUC
	})
	return out
}

// Best returns the result with the highest F1.
func (r *Registry) Best() (EvaluationResult, bool) {
	res := r.Results()
	if len(res) == 0 {
		return EvaluationResult{}, false
	}
	return res[0], true
}
