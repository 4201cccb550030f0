package train

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/juju/errors"

	"churn/pkg/core"
	"churn/pkg/data"
	"churn/pkg/model"
)

func blobMatrix(t *testing.T, perClass int, seed int64) *data.Matrix {
	t.Helper()
	rnd := core.NewRand(seed)
	m := &data.Matrix{Features: []string{"a", "b"}, Kinds: []data.FeatureKind{data.KindNumeric, data.KindNumeric}}
	for c := 0; c < 2; c++ {
		for i := 0; i < perClass; i++ {
			m.X = append(m.X, []float64{float64(3*c) + rnd.NormFloat64(), float64(3*c) + rnd.NormFloat64()})
			m.Y = append(m.Y, c)
		}
	}
	return m
}

func TestEvaluateMetricsInRange(t *testing.T) {
	train, test := blobMatrix(t, 60, 1), blobMatrix(t, 20, 2)
	clf, err := model.New(model.FamilyRandomForest, model.Params{"n_estimators": 20}, 3)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Evaluate(context.Background(), clf, train, test, VariantOriginal)
	if err != nil {
		t.Fatal(err)
	}
	for name, v := range map[string]float64{
		"accuracy": res.Accuracy, "precision": res.Precision, "recall": res.Recall, "f1": res.F1, "auc": res.ROCAUC,
	} {
		if v < 0 || v > 1 {
			t.Fatalf("%s = %v outside [0,1]", name, v)
		}
	}
	if res.ROCAUC < 0.5 {
		t.Fatalf("auc %v below chance on separable data", res.ROCAUC)
	}
	if res.TestSize != 40 || res.Model != "Random Forest" || res.Variant != VariantOriginal {
		t.Fatalf("unexpected result header %+v", res)
	}
}

func TestEvaluateInsufficientClass(t *testing.T) {
	train := blobMatrix(t, 10, 1)
	train = train.Subset([]int{0, 1, 2, 3, 10}) // a single positive
	clf, _ := model.New(model.FamilyDecisionTree, nil, 0)
	_, err := Evaluate(context.Background(), clf, train, blobMatrix(t, 5, 2), VariantOriginal)
	if !core.IsFit(err) {
		t.Fatalf("expected FitError, got %v", err)
	}
}

func TestEvaluateHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clf, _ := model.New(model.FamilyDecisionTree, nil, 0)
	if _, err := Evaluate(ctx, clf, blobMatrix(t, 5, 1), blobMatrix(t, 5, 2), VariantOriginal); err == nil {
		t.Fatal("expected context error")
	}
}

func TestRegistryOverwriteAndOrder(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	records := []EvaluationResult{
		{Model: "Decision Tree", Variant: VariantOriginal, F1: 0.6},
		{Model: "XGBoost", Variant: VariantOriginal, F1: 0.8},
		{Model: "Decision Tree", Variant: VariantOversampled, F1: 0.8},
		{Model: "Decision Tree", Variant: VariantOriginal, F1: 0.9}, // re-run overwrites
	}
	for _, r := range records {
		if err := reg.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if reg.Len() != 3 {
		t.Fatalf("Len = %d, want 3", reg.Len())
	}
	got, ok := reg.Get("Decision Tree", VariantOriginal)
	if !ok || got.F1 != 0.9 {
		t.Fatalf("overwrite lost: %+v", got)
	}
	res := reg.Results()
	want := []string{"Decision Tree/original", "XGBoost/original", "Decision Tree/oversampled"}
	for i, r := range res {
		if key := r.Model + "/" + r.Variant; key != want[i] {
			t.Fatalf("position %d: %s, want %s", i, key, want[i])
		}
	}
	best, _ := reg.Best()
	if best.F1 != 0.9 {
		t.Fatalf("Best = %+v", best)
	}
}

func TestRegistryConcurrentWrites(t *testing.T) {
	var observed int
	var mu sync.Mutex
	reg := NewRegistry(WithObserver(func(EvaluationResult) {
		mu.Lock()
		observed++
		mu.Unlock()
	}))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = reg.Record(context.Background(), EvaluationResult{Model: fmt.Sprintf("m%d", i%10), Variant: VariantOriginal})
		}(i)
	}
	wg.Wait()
	if reg.Len() != 10 || observed != 50 {
		t.Fatalf("Len=%d observed=%d", reg.Len(), observed)
	}
}

type failingSink struct{}

func (failingSink) SaveResult(context.Context, EvaluationResult) error {
	return errors.New("disk full")
}

func TestRegistrySinkError(t *testing.T) {
	reg := NewRegistry(WithSink(failingSink{}))
	if err := reg.Record(context.Background(), EvaluationResult{Model: "x"}); err == nil {
		t.Fatal("expected sink error to surface")
	}
}

func TestEvaluateAll(t *testing.T) {
	train, test := blobMatrix(t, 40, 5), blobMatrix(t, 15, 6)
	var cands []Candidate
	for _, f := range model.Families() {
		cands = append(cands, Candidate{Family: f.Name, Params: model.Params{}, Seed: 1})
	}
	reg := NewRegistry()
	out, err := EvaluateAll(context.Background(), cands, train, test, VariantOriginal, reg, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(cands) || reg.Len() != len(cands) {
		t.Fatalf("got %d results, registry %d", len(out), reg.Len())
	}
	for i, f := range model.Families() {
		if out[i].Model != f.Display || out[i].Family != f.Name {
			t.Fatalf("result %d is %s, want %s", i, out[i].Model, f.Display)
		}
	}

	bad := []Candidate{{Family: "svm"}}
	if _, err := EvaluateAll(context.Background(), bad, train, test, VariantOriginal, nil, 1); err == nil {
		t.Fatal("expected unknown family error")
	}
}

func TestRegistryTieBreak(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	for _, r := range []EvaluationResult{
		{Model: "Random Forest", Variant: VariantOriginal, F1: 1, ROCAUC: 0.97},
		{Model: "XGBoost", Variant: VariantOriginal, F1: 1, ROCAUC: 0.99},
		{Model: "AdaBoost", Variant: VariantOriginal, F1: 1, ROCAUC: 0.97},
	} {
		if err := reg.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"XGBoost", "Random Forest", "AdaBoost"}
	for i, r := range reg.Results() {
		if r.Model != want[i] {
			t.Fatalf("position %d: %s, want %s", i, r.Model, want[i])
		}
	}
}

func TestEvaluateAllIndependentOfWorkers(t *testing.T) {
	// Well separated blobs so several families tie on F1.
	train, test := blobMatrix(t, 40, 11), blobMatrix(t, 15, 12)
	var cands []Candidate
	for _, f := range model.Families() {
		cands = append(cands, Candidate{Family: f.Name, Params: model.Params{}, Seed: 4})
	}

	run := func(workers int) ([]string, EvaluationResult) {
		t.Helper()
		var seen []string
		reg := NewRegistry(WithObserver(func(r EvaluationResult) { seen = append(seen, r.Family) }))
		if _, err := EvaluateAll(context.Background(), cands, train, test, VariantOriginal, reg, workers); err != nil {
			t.Fatal(err)
		}
		for i, c := range cands {
			if seen[i] != c.Family {
				t.Fatalf("workers=%d: record %d is %s, want %s", workers, i, seen[i], c.Family)
			}
		}
		var ranked []string
		for _, r := range reg.Results() {
			ranked = append(ranked, r.Family)
		}
		best, _ := reg.Best()
		return ranked, best
	}

	serial, serialBest := run(1)
	for _, workers := range []int{2, len(cands)} {
		ranked, best := run(workers)
		if best.Family != serialBest.Family {
			t.Fatalf("workers=%d promoted %s, serial promoted %s", workers, best.Family, serialBest.Family)
		}
		for i := range serial {
			if ranked[i] != serial[i] {
				t.Fatalf("workers=%d ranking %v, serial %v", workers, ranked, serial)
			}
		}
	}
}

// countingClassifier counts Fit calls on the wrapped classifier.
type countingClassifier struct {
	model.Classifier
	fits int
}

func (c *countingClassifier) Fit(X [][]float64, y []int) error {
	c.fits++
	return c.Classifier.Fit(X, y)
}

func TestScoreUsesFittedClassifier(t *testing.T) {
	train, test := blobMatrix(t, 50, 7), blobMatrix(t, 20, 8)
	inner, err := model.New(model.FamilyDecisionTree, model.Params{"max_depth": 3}, 1)
	if err != nil {
		t.Fatal(err)
	}
	clf := &countingClassifier{Classifier: inner}
	if err := clf.Fit(train.X, train.Y); err != nil {
		t.Fatal(err)
	}
	res, err := Score(context.Background(), clf, test, VariantTuned)
	if err != nil {
		t.Fatal(err)
	}
	if clf.fits != 1 {
		t.Fatalf("Score refitted the classifier: %d fits", clf.fits)
	}
	cm := res.Confusion
	if total := cm[0][0] + cm[0][1] + cm[1][0] + cm[1][1]; total != test.Rows() {
		t.Fatalf("confusion matrix covers %d of %d rows", total, test.Rows())
	}
	if cm[1][0]+cm[1][1] != 20 {
		t.Fatalf("positives in confusion matrix = %d, want 20", cm[1][0]+cm[1][1])
	}
	if res.Variant != VariantTuned || res.FitDuration != 0 {
		t.Fatalf("unexpected result header %+v", res)
	}
}
