package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"

	"churn/pkg/model"
	"churn/pkg/train"
	"churn/pkg/tune"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResultsRoundTrip(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	run, err := s.StartRun(ctx, "BankChurners.csv", 42)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	var _ train.Sink = run

	results := []train.EvaluationResult{
		{Model: "Decision Tree", Family: model.FamilyDecisionTree, Variant: train.VariantOriginal, F1: 0.7, ROCAUC: 0.8, TestSize: 100, FitDuration: 1500 * time.Millisecond},
		{Model: "XGBoost", Family: model.FamilyXGBoost, Variant: train.VariantOversampled, Params: "max_depth=3", F1: 0.9, Accuracy: 0.95, TestSize: 100,
			Confusion: [2][2]int{{70, 5}, {3, 22}}},
		{Model: "Decision Tree", Family: model.FamilyDecisionTree, Variant: train.VariantOriginal, F1: 0.75, TestSize: 100},
	}
	for _, r := range results {
		if err := run.SaveResult(ctx, r); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}

	got, err := s.Results(ctx, run.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows after overwrite, got %d", len(got))
	}
	if got[0].Model != "XGBoost" || got[0].Params != "max_depth=3" || got[0].Accuracy != 0.95 ||
		got[0].Confusion != [2][2]int{{70, 5}, {3, 22}} {
		t.Fatalf("unexpected first row %+v", got[0])
	}
	if got[1].F1 != 0.75 {
		t.Fatalf("overwrite lost, f1 = %v", got[1].F1)
	}

	other, err := s.StartRun(ctx, "other.csv", 1)
	if err != nil {
		t.Fatal(err)
	}
	if rows, _ := s.Results(ctx, other.ID); len(rows) != 0 {
		t.Fatalf("runs not isolated: %d rows", len(rows))
	}
}

func TestTrialsAndFinish(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	run, err := s.StartRun(ctx, "in.csv", 7)
	if err != nil {
		t.Fatal(err)
	}
	trials := []tune.Trial{
		{Index: 0, Params: model.Params{"max_depth": 3}, Mean: 0.6, Valid: true},
		{Index: 1, Params: model.Params{"max_depth": nil}, Mean: math.NaN()},
	}
	if err := run.SaveTrials(ctx, model.FamilyDecisionTree, trials); err != nil {
		t.Fatalf("SaveTrials: %v", err)
	}
	if n, err := s.TrialCount(ctx, run.ID, model.FamilyDecisionTree); err != nil || n != 2 {
		t.Fatalf("TrialCount = %d, %v", n, err)
	}

	info, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !info.FinishedAt.IsZero() || info.Seed != 7 {
		t.Fatalf("unexpected open run %+v", info)
	}
	if err := run.Finish(ctx, train.EvaluationResult{Model: "XGBoost", Variant: train.VariantTuned, F1: 0.91}); err != nil {
		t.Fatal(err)
	}
	info, err = s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.FinishedAt.IsZero() || info.BestModel != "XGBoost/tuned" || info.BestF1 != 0.91 {
		t.Fatalf("finish not recorded: %+v", info)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := tempDB(t)
	if _, err := s.GetRun(context.Background(), "missing"); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
