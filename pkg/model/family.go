package model

import (
	"encoding/gob"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/juju/errors"
)

// Family names.
const (
	FamilyDecisionTree     = "decision_tree"
	FamilyRandomForest     = "random_forest"
	FamilyGradientBoosting = "gradient_boosting"
	FamilyAdaBoost         = "adaboost"
	FamilyXGBoost          = "xgboost"
)

func init() {
	gob.Register(&DecisionTreeClassifier{})
	gob.Register(&RandomForest{})
	gob.Register(&GradientBoosting{})
	gob.Register(&AdaBoost{})
	gob.Register(&XGBoost{})
}

// Params are hyperparameters keyed by their conventional snake_case names.
// A nil value means "unset / no limit", as None does for max_depth.
type Params map[string]any

// Int reads an integer parameter. Whole floats are accepted since YAML and
// JSON decoders may produce them.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x == math.Trunc(x) {
			return int(x), nil
		}
	}
	return 0, errors.NotValidf("param %s=%v (want integer)", key, v)
}

// Float reads a numeric parameter.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, errors.NotValidf("param %s=%v (want number)", key, v)
}

// Bool reads a boolean parameter.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, errors.NotValidf("param %s=%v (want bool)", key, v)
}

// Str reads a string parameter.
func (p Params) Str(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.NotValidf("param %s=%v (want string)", key, v)
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the params deterministically, e.g. "max_depth=3 n_estimators=100".
func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		v := p[k]
		if v == nil {
			v = "None"
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

// Clone copies the map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Space maps a parameter name to its discrete candidate values.
type Space map[string][]any

// Family is one classifier family of the roster.
type Family struct {
	Name    string
	Display string
	// Keys lists the parameters New understands.
	Keys []string
	// Space is the default search space.
	Space Space
	New   func(p Params, seed int64) (Classifier, error)
}

// Families returns the fixed roster in presentation order.
func Families() []Family {
	return []Family{
		{
			Name:    FamilyDecisionTree,
			Display: "Decision Tree",
			Keys:    []string{"max_depth", "min_samples_split", "min_samples_leaf", "criterion", "max_features", "min_impurity_decrease", "prune_fraction"},
			Space: Space{
				"max_depth":         {nil, 5, 10, 20},
				"min_samples_split": {2, 5, 10},
				"min_samples_leaf":  {1, 2, 4},
				"criterion":         {"gini", "entropy"},
				"prune_fraction":    {0.0, 0.2},
			},
			New: newDecisionTree,
		},
		{
			Name:    FamilyRandomForest,
			Display: "Random Forest",
			Keys:    []string{"n_estimators", "max_depth", "min_samples_split", "min_samples_leaf", "max_features", "bootstrap", "n_jobs"},
			Space: Space{
				"n_estimators":      {100, 200},
				"max_depth":         {nil, 10, 20},
				"min_samples_split": {2, 5},
				"min_samples_leaf":  {1, 2},
				"bootstrap":         {true},
			},
			New: newRandomForest,
		},
		{
			Name:    FamilyGradientBoosting,
			Display: "Gradient Boosting",
			Keys:    []string{"n_estimators", "learning_rate", "max_depth", "min_samples_split", "min_samples_leaf", "subsample"},
			Space: Space{
				"n_estimators":      {100, 150},
				"learning_rate":     {0.05, 0.1},
				"max_depth":         {3, 4},
				"subsample":         {0.8},
				"min_samples_split": {2, 5},
			},
			New: newGradientBoosting,
		},
		{
			Name:    FamilyAdaBoost,
			Display: "AdaBoost",
			Keys:    []string{"n_estimators", "learning_rate", "max_depth"},
			Space: Space{
				"n_estimators":  {50, 100, 200},
				"learning_rate": {0.5, 1.0},
			},
			New: newAdaBoost,
		},
		{
			Name:    FamilyXGBoost,
			Display: "XGBoost",
			Keys:    []string{"n_estimators", "learning_rate", "max_depth", "min_child_weight", "reg_lambda", "gamma", "subsample", "colsample_bytree", "base_score"},
			Space: Space{
				"n_estimators":     {100, 150},
				"learning_rate":    {0.05, 0.1},
				"max_depth":        {3, 5},
				"subsample":        {0.8},
				"colsample_bytree": {0.8},
			},
			New: newXGBoost,
		},
	}
}

// Lookup finds a family by name.
func Lookup(name string) (Family, error) {
	for _, f := range Families() {
		if f.Name == name {
			return f, nil
		}
	}
	return Family{}, errors.NotFoundf("model family %q", name)
}

// FamilyNames lists the roster names.
func FamilyNames() []string {
	fams := Families()
	out := make([]string, len(fams))
	for i, f := range fams {
		out[i] = f.Name
	}
	return out
}

// CheckParams rejects parameter names the family does not understand.
func (f Family) CheckParams(p Params) error {
	for k := range p {
		known := false
		for _, key := range f.Keys {
			if k == key {
				known = true
				break
			}
		}
		if !known {
			return errors.NotValidf("%s parameter %q", f.Name, k)
		}
	}
	return nil
}

// paramReader collects the first conversion error so constructors stay flat.
type paramReader struct {
	p   Params
	err error
}

func (r *paramReader) intv(key string, def int) int {
	v, err := r.p.Int(key, def)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func (r *paramReader) floatv(key string, def float64) float64 {
	v, err := r.p.Float(key, def)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func (r *paramReader) boolv(key string, def bool) bool {
	v, err := r.p.Bool(key, def)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func (r *paramReader) strv(key, def string) string {
	v, err := r.p.Str(key, def)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func newDecisionTree(p Params, seed int64) (Classifier, error) {
	r := &paramReader{p: p}
	t := NewDecisionTreeClassifier(
		WithMaxDepth(r.intv("max_depth", 0)),
		WithMinSamplesSplit(r.intv("min_samples_split", 2)),
		WithMinSamplesLeaf(r.intv("min_samples_leaf", 1)),
		WithCriterion(r.strv("criterion", "gini")),
		WithMaxFeatures(r.intv("max_features", 0)),
		WithMinImpurityDecrease(r.floatv("min_impurity_decrease", 0)),
		WithPruning(r.floatv("prune_fraction", 0)),
		WithRandomState(seed),
	)
	return t, r.err
}

func newRandomForest(p Params, seed int64) (Classifier, error) {
	r := &paramReader{p: p}
	rf := NewRandomForest(
		WithNEstimators(r.intv("n_estimators", 100)),
		WithForestDepth(r.intv("max_depth", 0)),
		WithBootstrap(r.boolv("bootstrap", true)),
		WithForestWorkers(r.intv("n_jobs", 0)),
		WithForestSeed(seed),
	)
	rf.MinSamplesSplit = r.intv("min_samples_split", 2)
	rf.MinSamplesLeaf = r.intv("min_samples_leaf", 1)
	rf.MaxFeatures = r.intv("max_features", 0)
	return rf, r.err
}

func newGradientBoosting(p Params, seed int64) (Classifier, error) {
	r := &paramReader{p: p}
	m := NewGradientBoosting()
	m.NEstimators = r.intv("n_estimators", m.NEstimators)
	m.LearningRate = r.floatv("learning_rate", m.LearningRate)
	m.MaxDepth = r.intv("max_depth", m.MaxDepth)
	m.MinSamplesSplit = r.intv("min_samples_split", m.MinSamplesSplit)
	m.MinSamplesLeaf = r.intv("min_samples_leaf", m.MinSamplesLeaf)
	m.Subsample = r.floatv("subsample", m.Subsample)
	m.RandomState = seed
	return m, r.err
}

func newAdaBoost(p Params, seed int64) (Classifier, error) {
	r := &paramReader{p: p}
	m := NewAdaBoost()
	m.NEstimators = r.intv("n_estimators", m.NEstimators)
	m.LearningRate = r.floatv("learning_rate", m.LearningRate)
	m.MaxDepth = r.intv("max_depth", m.MaxDepth)
	m.RandomState = seed
	return m, r.err
}

func newXGBoost(p Params, seed int64) (Classifier, error) {
	r := &paramReader{p: p}
	m := NewXGBoost()
	m.NEstimators = r.intv("n_estimators", m.NEstimators)
	m.LearningRate = r.floatv("learning_rate", m.LearningRate)
	m.MaxDepth = r.intv("max_depth", m.MaxDepth)
	m.MinChildWeight = r.floatv("min_child_weight", m.MinChildWeight)
	m.Lambda = r.floatv("reg_lambda", m.Lambda)
	m.Gamma = r.floatv("gamma", m.Gamma)
	m.Subsample = r.floatv("subsample", m.Subsample)
	m.ColsampleByTree = r.floatv("colsample_bytree", m.ColsampleByTree)
	m.BaseScore = r.floatv("base_score", m.BaseScore)
	m.RandomState = seed
	return m, r.err
}

// New builds a classifier of the named family after validating params.
func New(family string, p Params, seed int64) (Classifier, error) {
	f, err := Lookup(family)
	if err != nil {
		return nil, err
	}
	if err := f.CheckParams(p); err != nil {
		return nil, err
	}
	c, err := f.New(p, seed)
	return c, errors.Trace(err)
}
