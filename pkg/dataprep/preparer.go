package dataprep

import (
	"fmt"

	"github.com/juju/errors"

	"churn/pkg/core"
	"churn/pkg/data"
	"churn/pkg/stats"
)

// Preparer holds the frozen column-wise transform parameters learned by Fit:
// categorical fill values, numeric fences and one-hot vocabularies. Once
// fitted it never adapts to new input.
type Preparer struct {
	Schema     data.Schema
	FillValues map[string]string
	Fences     map[string]stats.Fence
	Vocab      map[string][]string
	Unknown    UnknownPolicy
	Features   []string
	Kinds      []data.FeatureKind
}

// Option configures Fit.
type Option func(*Preparer)

// WithUnknownPolicy sets how unseen one-hot levels are handled.
func WithUnknownPolicy(p UnknownPolicy) Option { return func(pr *Preparer) { pr.Unknown = p } }

// Fit learns preparation parameters from ds. The statistics cover exactly the
// records passed in: fit on the training split to keep held-out data out of
// the fences and modes.
func Fit(ds *data.Dataset, opts ...Option) (*Preparer, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, &core.SchemaError{Column: "*", Row: -1, Reason: "no records to fit on"}
	}
	p := &Preparer{
		Schema:  ds.Schema,
		Fences:  make(map[string]stats.Fence, len(ds.Schema.Numeric)),
		Vocab:   make(map[string][]string),
		Unknown: IgnoreUnknown,
	}
	for _, o := range opts {
		o(p)
	}

	fill, err := fitFillValues(ds)
	if err != nil {
		return nil, err
	}
	p.FillValues = fill

	for _, col := range ds.Schema.Numeric {
		for i, r := range ds.Records {
			if _, ok := r.Numeric[col]; !ok {
				return nil, &core.SchemaError{Column: col, Row: i, Reason: "missing numeric value"}
			}
		}
		_, p.Fences[col] = stats.CapColumn(ds.Column(col))
	}

	for _, col := range ds.Schema.Categorical {
		imputed := make([]string, ds.Len())
		for i, v := range ds.Levels(col) {
			if data.IsMissing(v) {
				v = fill[col]
			}
			imputed[i] = v
		}
		if mapping, ok := ds.Schema.Binary[col]; ok {
			for i, v := range imputed {
				if _, err := EncodeBinary(col, mapping, v, i); err != nil {
					return nil, err
				}
			}
			continue
		}
		p.Vocab[col] = sortedLevels(imputed)
	}

	p.layout()
	return p, nil
}

// Clone returns a deep copy of p that shares no maps or slices with it.
func (p *Preparer) Clone() *Preparer {
	out := &Preparer{
		Schema:     p.Schema.Clone(),
		FillValues: make(map[string]string, len(p.FillValues)),
		Fences:     make(map[string]stats.Fence, len(p.Fences)),
		Vocab:      make(map[string][]string, len(p.Vocab)),
		Unknown:    p.Unknown,
		Features:   append([]string(nil), p.Features...),
		Kinds:      append([]data.FeatureKind(nil), p.Kinds...),
	}
	for k, v := range p.FillValues {
		out.FillValues[k] = v
	}
	for k, v := range p.Fences {
		out.Fences[k] = v
	}
	for k, v := range p.Vocab {
		out.Vocab[k] = append([]string(nil), v...)
	}
	return out
}

// layout fixes the encoded column order: numeric columns, then each
// categorical column as one binary code or a one-hot block.
func (p *Preparer) layout() {
	p.Features = p.Features[:0]
	p.Kinds = p.Kinds[:0]
	for _, col := range p.Schema.Numeric {
		p.Features = append(p.Features, col)
		p.Kinds = append(p.Kinds, data.KindNumeric)
	}
	for _, col := range p.Schema.Categorical {
		if p.Schema.IsBinary(col) {
			p.Features = append(p.Features, col)
			p.Kinds = append(p.Kinds, data.KindBinary)
			continue
		}
		for _, level := range p.Vocab[col][1:] {
			p.Features = append(p.Features, col+"_"+level)
			p.Kinds = append(p.Kinds, data.KindOneHot)
		}
	}
}

// Impute returns a copy of ds with missing categorical cells filled.
func (p *Preparer) Impute(ds *data.Dataset) *data.Dataset {
	out := ds.Clone()
	for i := range out.Records {
		imputeRecord(&out.Records[i], p.FillValues)
	}
	return out
}

// CapOutliers returns a copy of ds with every numeric column clamped to its
// frozen fence.
func (p *Preparer) CapOutliers(ds *data.Dataset) *data.Dataset {
	out := ds.Clone()
	for _, r := range out.Records {
		for col, f := range p.Fences {
			if v, ok := r.Numeric[col]; ok {
				r.Numeric[col] = f.Clamp(v)
			}
		}
	}
	return out
}

// EncodeRecord turns one raw record into a feature vector. The record is not
// modified. row is only used for error context.
func (p *Preparer) EncodeRecord(rec data.Record, row int) ([]float64, error) {
	x := make([]float64, 0, len(p.Features))
	for _, col := range p.Schema.Numeric {
		v, ok := rec.Numeric[col]
		if !ok {
			return nil, &core.SchemaError{Column: col, Row: row, Reason: "missing required column"}
		}
		x = append(x, p.Fences[col].Clamp(v))
	}
	for _, col := range p.Schema.Categorical {
		v, ok := rec.Categorical[col]
		if !ok {
			return nil, &core.SchemaError{Column: col, Row: row, Reason: "missing required column"}
		}
		if data.IsMissing(v) {
			v = p.FillValues[col]
		}
		if mapping, ok := p.Schema.Binary[col]; ok {
			code, err := EncodeBinary(col, mapping, v, row)
			if err != nil {
				return nil, err
			}
			x = append(x, code)
			continue
		}
		block, err := EncodeOneHot(col, p.Vocab[col], v, p.Unknown, row)
		if err != nil {
			return nil, err
		}
		x = append(x, block...)
	}
	return x, nil
}

// Transform encodes a labelled dataset into a Matrix using the frozen
// parameters. Every record must carry a known target label.
func (p *Preparer) Transform(ds *data.Dataset) (*data.Matrix, error) {
	m := &data.Matrix{
		Features: append([]string(nil), p.Features...),
		Kinds:    append([]data.FeatureKind(nil), p.Kinds...),
		X:        make([][]float64, ds.Len()),
		Y:        make([]int, ds.Len()),
		IDs:      make([]string, ds.Len()),
	}
	for i, rec := range ds.Records {
		y, err := EncodeTarget(p.Schema, rec.Label, i)
		if err != nil {
			return nil, err
		}
		x, err := p.EncodeRecord(rec, i)
		if err != nil {
			return nil, err
		}
		m.X[i], m.Y[i], m.IDs[i] = x, y, rec.ID
	}
	return m, nil
}

// Prepare fits on the whole of raw and encodes it in one go. Modes and fences
// then see every record, including any later held-out split; callers that
// split afterwards leak test statistics into training. Prefer Fit on the
// training split followed by Transform.
func Prepare(raw *data.Dataset, opts ...Option) (*data.Matrix, *Preparer, error) {
	p, err := Fit(raw, opts...)
	if err != nil {
		return nil, nil, errors.Annotate(err, "prepare")
	}
	m, err := p.Transform(raw)
	if err != nil {
		return nil, nil, errors.Annotate(err, "prepare")
	}
	return m, p, nil
}

// Describe lists the frozen parameters in a log-friendly form.
func (p *Preparer) Describe() map[string]string {
	out := make(map[string]string)
	for col, v := range p.FillValues {
		out["fill."+col] = v
	}
	for col, f := range p.Fences {
		out["fence."+col] = fmt.Sprintf("[%.4g, %.4g]", f.Lower, f.Upper)
	}
	for col, levels := range p.Vocab {
		out["vocab."+col] = fmt.Sprintf("%v (reference %q)", levels, levels[0])
	}
	out["unknown"] = p.Unknown.String()
	return out
}
