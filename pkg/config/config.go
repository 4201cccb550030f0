// Package config loads experiment settings from YAML on top of defaults.
package config

import (
	"os"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"churn/pkg/balance"
	"churn/pkg/model"
	"churn/pkg/tune"
)

// Prepare scopes.
const (
	ScopeTrain  = "train"
	ScopeGlobal = "global"
)

// Config is the full experiment configuration.
type Config struct {
	Input     string  `yaml:"input"`
	Seed      int64   `yaml:"seed"`
	TestRatio float64 `yaml:"test_ratio"`
	Workers   int     `yaml:"workers"`

	Prepare  PrepareConfig `yaml:"prepare"`
	Cluster  ClusterConfig `yaml:"cluster"`
	Variants []string      `yaml:"variants"`
	Families []string      `yaml:"families"`
	Tune     TuneConfig    `yaml:"tune"`
	Output   OutputConfig  `yaml:"output"`
	Log      LogConfig     `yaml:"log"`
}

type PrepareConfig struct {
	// Scope "train" fits fill values and fences on the training split only;
	// "global" fits them on the whole table before splitting.
	Scope   string `yaml:"scope"`
	Unknown string `yaml:"unknown"` // "ignore" or "error"
}

type ClusterConfig struct {
	Enabled bool `yaml:"enabled"`
	K       int  `yaml:"k"`
	MaxK    int  `yaml:"max_k"`
}

type TuneConfig struct {
	Enabled    bool                   `yaml:"enabled"`
	Families   []string               `yaml:"families"`
	Variant    string                 `yaml:"variant"`
	Folds      int                    `yaml:"folds"`
	Iterations int                    `yaml:"iterations"`
	Scoring    string                 `yaml:"scoring"`
	Strategy   string                 `yaml:"strategy"`
	Spaces     map[string]model.Space `yaml:"spaces"`
}

type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Model   string `yaml:"model"`
	Results string `yaml:"results"` // SQLite file, empty disables
	Metrics string `yaml:"metrics"` // Prometheus textfile, empty disables
	Plots   bool   `yaml:"plots"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

// Default returns the settings used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Input:     "BankChurners.csv",
		Seed:      42,
		TestRatio: 0.2,
		Prepare:   PrepareConfig{Scope: ScopeTrain, Unknown: "ignore"},
		Cluster:   ClusterConfig{Enabled: true, K: 4, MaxK: 9},
		Variants:  []string{"original", "oversampled", "undersampled"},
		Families:  model.FamilyNames(),
		Tune: TuneConfig{
			Enabled:    true,
			Families:   []string{model.FamilyRandomForest, model.FamilyGradientBoosting, model.FamilyXGBoost},
			Variant:    "oversampled",
			Folds:      3,
			Iterations: 10,
			Scoring:    model.MetricF1,
			Strategy:   string(tune.Random),
		},
		Output: OutputConfig{
			Dir:     "out",
			Model:   "churn_pipeline.bin",
			Results: "results.db",
			Metrics: "churn.prom",
			Plots:   true,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "read config %s", path)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, errors.Annotatef(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Annotate(err, "parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every enumerated setting.
func (c *Config) Validate() error {
	if c.TestRatio <= 0 || c.TestRatio >= 1 {
		return errors.NotValidf("test_ratio %v", c.TestRatio)
	}
	if c.Prepare.Scope != ScopeTrain && c.Prepare.Scope != ScopeGlobal {
		return errors.NotValidf("prepare.scope %q", c.Prepare.Scope)
	}
	if c.Prepare.Unknown != "ignore" && c.Prepare.Unknown != "error" {
		return errors.NotValidf("prepare.unknown %q", c.Prepare.Unknown)
	}
	if c.Cluster.Enabled && c.Cluster.K < 1 {
		return errors.NotValidf("cluster.k %d", c.Cluster.K)
	}
	if c.Cluster.MaxK < 1 {
		return errors.NotValidf("cluster.max_k %d", c.Cluster.MaxK)
	}
	if len(c.Variants) == 0 {
		return errors.NotValidf("empty variants")
	}
	for _, v := range c.Variants {
		if _, err := balance.ParseStrategy(v); err != nil {
			return err
		}
	}
	for _, f := range c.Families {
		if _, err := model.Lookup(f); err != nil {
			return err
		}
	}
	if c.Tune.Enabled {
		for _, f := range c.Tune.Families {
			if _, err := model.Lookup(f); err != nil {
				return errors.Annotate(err, "tune.families")
			}
		}
		if _, err := balance.ParseStrategy(c.Tune.Variant); err != nil {
			return errors.Annotate(err, "tune.variant")
		}
		if c.Tune.Folds < 2 {
			return errors.NotValidf("tune.folds %d", c.Tune.Folds)
		}
		if c.Tune.Iterations < 1 {
			return errors.NotValidf("tune.iterations %d", c.Tune.Iterations)
		}
		if !model.ValidMetric(c.Tune.Scoring) {
			return errors.NotValidf("tune.scoring %q", c.Tune.Scoring)
		}
		if s := tune.Strategy(c.Tune.Strategy); s != tune.Random && s != tune.TPE {
			return errors.NotValidf("tune.strategy %q", c.Tune.Strategy)
		}
	}
	return nil
}

// Space returns the configured search space for family, or the family's
// default space.
func (c *Config) Space(family string) (model.Space, error) {
	if s, ok := c.Tune.Spaces[family]; ok {
		return s, nil
	}
	f, err := model.Lookup(family)
	if err != nil {
		return nil, err
	}
	return f.Space, nil
}

// TunerConfig converts the tune section for the tuner.
func (c *Config) TunerConfig() tune.Config {
	return tune.Config{
		Folds:      c.Tune.Folds,
		Iterations: c.Tune.Iterations,
		Scoring:    c.Tune.Scoring,
		Seed:       c.Seed,
		Workers:    c.Workers,
		Strategy:   tune.Strategy(c.Tune.Strategy),
	}
}
