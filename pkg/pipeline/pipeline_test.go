package pipeline

import (
	"bytes"
	"path/filepath"
	"testing"

	"churn/pkg/core"
	"churn/pkg/data"
	"churn/pkg/dataprep"
	"churn/pkg/model"
	"churn/pkg/segment"
	"churn/pkg/stats"
)

func buildPipeline(t *testing.T, withSegments bool) (*Pipeline, *data.Dataset) {
	t.Helper()
	ds := data.Synthetic(300, 1)
	prep, err := dataprep.Fit(ds)
	if err != nil {
		t.Fatal(err)
	}
	m, err := prep.Transform(ds)
	if err != nil {
		t.Fatal(err)
	}
	var seg *segment.Segmenter
	if withSegments {
		if m, seg, err = segment.Segment(m, 3, 2); err != nil {
			t.Fatal(err)
		}
	}
	clf, err := model.New(model.FamilyRandomForest, model.Params{"n_estimators": 15}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := clf.Fit(m.X, m.Y); err != nil {
		t.Fatal(err)
	}
	p, err := Build(prep, seg, clf, Meta{Family: model.FamilyRandomForest, Variant: "original"})
	if err != nil {
		t.Fatal(err)
	}
	return p, ds
}

func TestRoundTripPredictsIdentically(t *testing.T) {
	for _, withSegments := range []bool{false, true} {
		p, ds := buildPipeline(t, withSegments)
		batch := ds.Records[:50]
		before, err := p.PredictBatch(batch)
		if err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		if err := p.Save(&buf); err != nil {
			t.Fatal(err)
		}
		back, err := Load(&buf)
		if err != nil {
			t.Fatal(err)
		}
		after, err := back.PredictBatch(batch)
		if err != nil {
			t.Fatal(err)
		}
		for i := range before {
			if before[i] != after[i] {
				t.Fatalf("segments=%v row %d: %+v before, %+v after", withSegments, i, before[i], after[i])
			}
		}
		if back.Meta.Threshold != DefaultThreshold || back.Schema.Width() != p.Schema.Width() {
			t.Fatalf("meta or schema lost: %+v", back.Meta)
		}
		if withSegments && back.Schema.FeatureNames[back.Schema.Width()-1] != segment.ClusterFeature {
			t.Fatal("cluster feature missing from schema")
		}
	}
}

func TestSaveFileLoadFile(t *testing.T) {
	p, ds := buildPipeline(t, false)
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := p.SaveFile(path); err != nil {
		t.Fatal(err)
	}
	back, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := p.Predict(ds.Records[0])
	got, err := back.Predict(ds.Records[0])
	if err != nil || got != want {
		t.Fatalf("got %+v, %v want %+v", got, err, want)
	}
}

func TestLoadRejectsForeignOrNewerArtifacts(t *testing.T) {
	p, _ := buildPipeline(t, false)
	var buf bytes.Buffer
	if err := p.Save(&buf); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	bumped := append([]byte(nil), raw...)
	bumped[len(magic)+1]++
	if _, err := Load(bytes.NewReader(bumped)); err == nil {
		t.Fatal("expected version mismatch error")
	}
	if _, err := Load(bytes.NewReader([]byte("NOTAPIPELINE"))); err == nil {
		t.Fatal("expected header error")
	}
	if _, err := Load(bytes.NewReader(raw[:len(magic)+2])); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestPredictSchemaErrors(t *testing.T) {
	p, ds := buildPipeline(t, false)
	tests := []struct {
		name   string
		mutate func(r *data.Record)
	}{
		{"missing numeric column", func(r *data.Record) { delete(r.Numeric, "Credit_Limit") }},
		{"missing categorical column", func(r *data.Record) { delete(r.Categorical, "Card_Category") }},
		{"unknown binary level", func(r *data.Record) { r.Categorical["Gender"] = "X" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ds.Records[0].Clone()
			tt.mutate(&rec)
			if _, err := p.Predict(rec); !core.IsSchema(err) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
		})
	}
}

func TestPredictIgnoresUnseenOneHotLevel(t *testing.T) {
	ds := data.Synthetic(200, 4)
	prep, err := dataprep.Fit(ds, dataprep.WithUnknownPolicy(dataprep.ErrorOnUnknown))
	if err != nil {
		t.Fatal(err)
	}
	m, err := prep.Transform(ds)
	if err != nil {
		t.Fatal(err)
	}
	clf := model.NewDecisionTreeClassifier(model.WithMaxDepth(3))
	if err := clf.Fit(m.X, m.Y); err != nil {
		t.Fatal(err)
	}
	p, err := Build(prep, nil, clf, Meta{Threshold: 0.3})
	if err != nil {
		t.Fatal(err)
	}
	rec := ds.Records[0].Clone()
	rec.Categorical["Card_Category"] = "Titanium"
	pred, err := p.Predict(rec)
	if err != nil {
		t.Fatalf("unseen level should be ignored: %v", err)
	}
	if (pred.Probability >= 0.3) != (pred.Label == data.Attrited) {
		t.Fatalf("threshold not applied: %+v", pred)
	}
	if prep.Unknown != dataprep.ErrorOnUnknown {
		t.Fatal("Build modified the caller's preparer")
	}
}

func TestBuildIsolatedFromCallerPreparer(t *testing.T) {
	ds := data.Synthetic(250, 8)
	prep, err := dataprep.Fit(ds)
	if err != nil {
		t.Fatal(err)
	}
	m, err := prep.Transform(ds)
	if err != nil {
		t.Fatal(err)
	}
	clf := model.NewDecisionTreeClassifier(model.WithMaxDepth(4))
	if err := clf.Fit(m.X, m.Y); err != nil {
		t.Fatal(err)
	}
	scores := map[string]float64{"f1": 0.7}
	p, err := Build(prep, nil, clf, Meta{Scores: scores})
	if err != nil {
		t.Fatal(err)
	}
	batch := ds.Records[:40]
	before, err := p.PredictBatch(batch)
	if err != nil {
		t.Fatal(err)
	}

	for col := range prep.Fences {
		prep.Fences[col] = stats.Fence{}
	}
	for col := range prep.FillValues {
		prep.FillValues[col] = "changed"
	}
	for _, levels := range prep.Vocab {
		levels[0] = "changed"
	}
	prep.Features[0] = "changed"
	prep.Schema.Numeric[0] = "changed"
	prep.Schema.Binary["Gender"]["F"] = 0
	scores["f1"] = 0

	after, err := p.PredictBatch(batch)
	if err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("record %d: %+v became %+v after the caller's preparer changed", i, before[i], after[i])
		}
	}
	if p.Meta.Scores["f1"] != 0.7 || p.Preparer.Features[0] != "Customer_Age" {
		t.Fatal("pipeline shares state with the caller")
	}
}

func TestBuildRequiresParts(t *testing.T) {
	if _, err := Build(nil, nil, model.NewAdaBoost(), Meta{}); err == nil {
		t.Fatal("expected error without preparer")
	}
}
