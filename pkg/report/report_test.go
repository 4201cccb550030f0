package report

import (
	"os"
	"path/filepath"
	"testing"

	"churn/pkg/data"
	"churn/pkg/dataprep"
	"churn/pkg/segment"
	"churn/pkg/train"
)

func assertFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.Size() == 0 {
		t.Fatalf("%s is empty", path)
	}
}

func TestElbowAndClusters(t *testing.T) {
	ds := data.Synthetic(200, 1)
	m, _, err := dataprep.Prepare(ds)
	if err != nil {
		t.Fatal(err)
	}
	res, err := segment.Elbow(m, 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	elbow := filepath.Join(dir, "elbow.png")
	if err := Elbow(res, elbow); err != nil {
		t.Fatal(err)
	}
	assertFile(t, elbow)

	out, seg, err := segment.Segment(m, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	labels, err := seg.Assign(out)
	if err != nil {
		t.Fatal(err)
	}
	clusters := filepath.Join(dir, "clusters.png")
	if err := Clusters(m, labels, seg, clusters); err != nil {
		t.Fatal(err)
	}
	assertFile(t, clusters)

	if err := Elbow(&segment.ElbowResult{}, filepath.Join(dir, "x.png")); err == nil {
		t.Fatal("expected error for empty elbow result")
	}
}

func TestComparison(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comparison.png")
	results := []train.EvaluationResult{
		{Model: "XGBoost", Variant: train.VariantTuned, F1: 0.9, ROCAUC: 0.98},
		{Model: "Decision Tree", Variant: train.VariantOriginal, F1: 0.7, ROCAUC: 0.85},
	}
	if err := Comparison(results, path); err != nil {
		t.Fatal(err)
	}
	assertFile(t, path)
	if err := Comparison(nil, path); err == nil {
		t.Fatal("expected error without results")
	}
}
