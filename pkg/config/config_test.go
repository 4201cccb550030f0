package config

import (
	"os"
	"path/filepath"
	"testing"

	"churn/pkg/model"
	"churn/pkg/tune"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Seed != 42 || cfg.TestRatio != 0.2 || cfg.Prepare.Scope != ScopeTrain {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Cluster.K != 4 || cfg.Cluster.MaxK != 9 {
		t.Fatalf("cluster defaults %+v", cfg.Cluster)
	}
	tc := cfg.TunerConfig()
	if tc.Folds != 3 || tc.Iterations != 10 || tc.Scoring != model.MetricF1 || tc.Strategy != tune.Random || tc.Seed != 42 {
		t.Fatalf("tuner defaults %+v", tc)
	}
	space, err := cfg.Space(model.FamilyXGBoost)
	if err != nil {
		t.Fatal(err)
	}
	fam, _ := model.Lookup(model.FamilyXGBoost)
	if len(space) != len(fam.Space) {
		t.Fatalf("default space %v", space)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
seed: 7
prepare:
  scope: global
tune:
  strategy: tpe
  spaces:
    decision_tree:
      max_depth: [null, 3]
      criterion: [entropy]
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed != 7 || cfg.Prepare.Scope != ScopeGlobal || cfg.Tune.Strategy != "tpe" {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if cfg.TestRatio != 0.2 || cfg.Tune.Folds != 3 {
		t.Fatal("unset keys should keep defaults")
	}
	space, err := cfg.Space(model.FamilyDecisionTree)
	if err != nil {
		t.Fatal(err)
	}
	if d := space["max_depth"]; len(d) != 2 || d[0] != nil || d[1] != 3 {
		t.Fatalf("max_depth choices %#v", d)
	}
	fam, _ := model.Lookup(model.FamilyDecisionTree)
	if err := fam.CheckParams(model.Params{"max_depth": space["max_depth"][1], "criterion": space["criterion"][0]}); err != nil {
		t.Fatalf("decoded choices rejected: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"test ratio", "test_ratio: 1"},
		{"scope", "prepare: {scope: everywhere}"},
		{"unknown policy", "prepare: {unknown: drop}"},
		{"variant", "variants: [smote2]"},
		{"family", "families: [svm]"},
		{"tune family", "tune: {families: [svm]}"},
		{"folds", "tune: {folds: 1}"},
		{"scoring", "tune: {scoring: mcc}"},
		{"strategy", "tune: {strategy: grid}"},
		{"cluster k", "cluster: {k: 0}"},
		{"bad yaml", "seed: [1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "churn.yaml")
	if err := os.WriteFile(path, []byte("input: data.csv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Input != "data.csv" {
		t.Fatalf("input %q", cfg.Input)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
