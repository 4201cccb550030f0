// Package pipeline bundles a frozen Preparer, an optional Segmenter and a
// fitted classifier into one artifact that scores raw records.
package pipeline

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"os"
	"time"

	"github.com/juju/errors"

	"churn/pkg/data"
	"churn/pkg/dataprep"
	"churn/pkg/model"
	"churn/pkg/segment"
)

const (
	magic = "CHURNPL"
	// Version is bumped whenever the serialized layout changes.
	Version uint16 = 1
	// DefaultThreshold is the probability at or above which a record is
	// labelled attrited.
	DefaultThreshold = 0.5
)

var kindName = map[data.FeatureKind]string{
	data.KindNumeric: "numeric",
	data.KindBinary:  "binary",
	data.KindOneHot:  "onehot",
	data.KindCluster: "cluster",
}

// Meta describes how the classifier was produced.
type Meta struct {
	RunID     string
	Family    string
	Params    string
	Variant   string
	Threshold float64
	Scores    map[string]float64
	CreatedAt time.Time
}

// Pipeline scores raw records with parameters frozen at build time.
type Pipeline struct {
	Preparer   *dataprep.Preparer
	Segmenter  *segment.Segmenter // nil when no cluster feature is used
	Classifier model.Classifier
	Schema     Schema
	Meta       Meta
}

// Prediction is the outcome for one record.
type Prediction struct {
	ID          string
	Label       int
	Probability float64
}

// Build assembles a pipeline around a deep copy of prep, so later changes to
// the caller's preparer never reach it. Unseen one-hot levels are always
// ignored at prediction time, whatever policy the preparer was fitted with.
func Build(prep *dataprep.Preparer, seg *segment.Segmenter, clf model.Classifier, meta Meta) (*Pipeline, error) {
	if prep == nil || clf == nil {
		return nil, errors.New("pipeline: preparer and classifier are required")
	}
	frozen := prep.Clone()
	frozen.Unknown = dataprep.IgnoreUnknown
	if meta.Scores != nil {
		scores := make(map[string]float64, len(meta.Scores))
		for k, v := range meta.Scores {
			scores[k] = v
		}
		meta.Scores = scores
	}
	if meta.Threshold <= 0 || meta.Threshold >= 1 {
		meta.Threshold = DefaultThreshold
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	return &Pipeline{
		Preparer:   frozen,
		Segmenter:  seg,
		Classifier: clf,
		Schema:     schemaOf(frozen, seg),
		Meta:       meta,
	}, nil
}

// Encode turns a raw record into the classifier's feature vector.
func (p *Pipeline) Encode(rec data.Record, row int) ([]float64, error) {
	x, err := p.Preparer.EncodeRecord(rec, row)
	if err != nil {
		return nil, err
	}
	if p.Segmenter != nil {
		label, err := p.Segmenter.Label(x)
		if err != nil {
			return nil, err
		}
		x = append(x, float64(label))
	}
	return x, nil
}

// Predict scores one record.
func (p *Pipeline) Predict(rec data.Record) (Prediction, error) {
	out, err := p.PredictBatch([]data.Record{rec})
	if err != nil {
		return Prediction{}, err
	}
	return out[0], nil
}

// PredictBatch scores records in order. The first malformed record aborts
// the batch with a SchemaError naming its row.
func (p *Pipeline) PredictBatch(recs []data.Record) ([]Prediction, error) {
	X := make([][]float64, len(recs))
	for i, rec := range recs {
		x, err := p.Encode(rec, i)
		if err != nil {
			return nil, err
		}
		X[i] = x
	}
	proba := p.Classifier.PredictProba(X)
	out := make([]Prediction, len(recs))
	for i, pr := range proba {
		out[i] = Prediction{ID: recs[i].ID, Probability: pr}
		if pr >= p.Meta.Threshold {
			out[i].Label = data.Attrited
		}
	}
	return out, nil
}

// bundle is the gob payload following the header.
type bundle struct {
	Preparer   *dataprep.Preparer
	Segmenter  *segment.Segmenter
	Classifier model.Classifier
	Schema     Schema
	Meta       Meta
}

// Save writes the magic header, the layout version and the gob bundle.
func (p *Pipeline) Save(w io.Writer) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.BigEndian, Version); err != nil {
		return errors.Trace(err)
	}
	b := bundle{
		Preparer:   p.Preparer,
		Segmenter:  p.Segmenter,
		Classifier: p.Classifier,
		Schema:     p.Schema,
		Meta:       p.Meta,
	}
	return errors.Annotate(gob.NewEncoder(w).Encode(&b), "encode pipeline")
}

// Load reads an artifact written by Save. A foreign header or another
// layout version is rejected.
func Load(r io.Reader) (*Pipeline, error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, errors.Annotate(err, "read header")
	}
	if !bytes.Equal(head, []byte(magic)) {
		return nil, errors.NotValidf("pipeline header %q", head)
	}
	var v uint16
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return nil, errors.Annotate(err, "read version")
	}
	if v != Version {
		return nil, errors.NotSupportedf("pipeline version %d (this build reads %d)", v, Version)
	}
	var b bundle
	if err := gob.NewDecoder(r).Decode(&b); err != nil {
		return nil, errors.Annotate(err, "decode pipeline")
	}
	if b.Preparer == nil || b.Classifier == nil {
		return nil, errors.NotValidf("pipeline without preparer or classifier")
	}
	return &Pipeline{
		Preparer:   b.Preparer,
		Segmenter:  b.Segmenter,
		Classifier: b.Classifier,
		Schema:     b.Schema,
		Meta:       b.Meta,
	}, nil
}

// SaveFile writes the artifact to path.
func (p *Pipeline) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	w := bufio.NewWriter(f)
	if err := p.Save(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Trace(err)
	}
	return errors.Trace(f.Close())
}

// LoadFile reads an artifact from path.
func LoadFile(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	return Load(bufio.NewReader(f))
}
