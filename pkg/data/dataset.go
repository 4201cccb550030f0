package data

import "strings"

// Record is one customer row before preparation.
type Record struct {
	ID          string
	Numeric     map[string]float64
	Categorical map[string]string
	Label       string // raw attrition flag, empty when unlabelled
}

// Clone deep-copies the record maps.
func (r Record) Clone() Record {
	out := Record{ID: r.ID, Label: r.Label}
	out.Numeric = make(map[string]float64, len(r.Numeric))
	for k, v := range r.Numeric {
		out.Numeric[k] = v
	}
	out.Categorical = make(map[string]string, len(r.Categorical))
	for k, v := range r.Categorical {
		out.Categorical[k] = v
	}
	return out
}

// IsMissing reports whether a categorical cell counts as missing.
func IsMissing(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "NA", "NaN", "nan":
		return true
	}
	return false
}

// Dataset is an ordered collection of records sharing one schema.
type Dataset struct {
	Schema  Schema
	Records []Record
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Records) }

// Clone returns a deep copy so callers can mutate freely.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Schema: d.Schema, Records: make([]Record, len(d.Records))}
	for i, r := range d.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// Subset returns the records at idx, in that order, sharing nothing with d.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{Schema: d.Schema, Records: make([]Record, len(idx))}
	for i, j := range idx {
		out.Records[i] = d.Records[j].Clone()
	}
	return out
}

// Column collects a numeric column.
func (d *Dataset) Column(name string) []float64 {
	col := make([]float64, len(d.Records))
	for i, r := range d.Records {
		col[i] = r.Numeric[name]
	}
	return col
}

// Levels collects a categorical column, missing cells included.
func (d *Dataset) Levels(name string) []string {
	col := make([]string, len(d.Records))
	for i, r := range d.Records {
		col[i] = r.Categorical[name]
	}
	return col
}

// FeatureKind tags an encoded column so resamplers and trees can treat
// indicator columns differently from continuous ones.
type FeatureKind int

const (
	KindNumeric FeatureKind = iota
	KindBinary
	KindOneHot
	KindCluster
)

// IsCategorical reports whether values of this kind are discrete codes.
func (k FeatureKind) IsCategorical() bool { return k != KindNumeric }

// Matrix is a prepared, fully numeric dataset.
type Matrix struct {
	Features []string
	Kinds    []FeatureKind
	X        [][]float64
	Y        []int
	IDs      []string
}

// Rows returns the number of samples.
func (m *Matrix) Rows() int { return len(m.X) }

// Index returns the column position of name, or -1.
func (m *Matrix) Index(name string) int {
	for i, f := range m.Features {
		if f == name {
			return i
		}
	}
	return -1
}

// Subset copies the rows at idx.
func (m *Matrix) Subset(idx []int) *Matrix {
	out := &Matrix{
		Features: append([]string(nil), m.Features...),
		Kinds:    append([]FeatureKind(nil), m.Kinds...),
		X:        make([][]float64, len(idx)),
		Y:        make([]int, len(idx)),
	}
	if m.IDs != nil {
		out.IDs = make([]string, len(idx))
	}
	for i, j := range idx {
		out.X[i] = append([]float64(nil), m.X[j]...)
		out.Y[i] = m.Y[j]
		if m.IDs != nil {
			out.IDs[i] = m.IDs[j]
		}
	}
	return out
}

// Clone copies every row.
func (m *Matrix) Clone() *Matrix {
	idx := make([]int, m.Rows())
	for i := range idx {
		idx[i] = i
	}
	return m.Subset(idx)
}

// ClassCounts returns the number of records labelled 0 and 1.
func (m *Matrix) ClassCounts() (neg, pos int) {
	for _, y := range m.Y {
		if y == Attrited {
			pos++
		} else {
			neg++
		}
	}
	return
}

// PositiveRate returns the share of attrited records.
func (m *Matrix) PositiveRate() float64 {
	if len(m.Y) == 0 {
		return 0
	}
	_, pos := m.ClassCounts()
	return float64(pos) / float64(len(m.Y))
}
