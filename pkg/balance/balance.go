// Package balance equalises class counts of a training matrix by synthetic
// oversampling or random undersampling. It is only ever applied to the
// training split.
package balance

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/juju/errors"

	"churn/pkg/core"
	"churn/pkg/data"
	"churn/pkg/model"
)

// Strategy selects a resampling method.
type Strategy string

const (
	None        Strategy = "none"
	Oversample  Strategy = "oversample"
	Undersample Strategy = "undersample"
)

// Strategies lists every strategy in the order experiments run them.
func Strategies() []Strategy { return []Strategy{None, Oversample, Undersample} }

// ParseStrategy accepts a strategy name or its variant name.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies() {
		if s == string(st) || s == st.Variant() {
			return st, nil
		}
	}
	return "", errors.NotValidf("balance strategy %q", s)
}

// Variant is the training-set variant name the strategy produces.
func (s Strategy) Variant() string {
	switch s {
	case Oversample:
		return "oversampled"
	case Undersample:
		return "undersampled"
	}
	return "original"
}

// MaxNeighbors caps the neighbours considered when synthesising a record.
const MaxNeighbors = 5

// Balance returns a resampled copy of train in which both classes have the
// same count. train itself is not modified. A class with no records fails
// with an ImbalanceError.
func Balance(train *data.Matrix, strategy Strategy, seed int64) (*data.Matrix, error) {
	neg, pos := train.ClassCounts()
	switch {
	case neg == 0:
		return nil, &core.ImbalanceError{Split: "train", Class: data.Retained}
	case pos == 0:
		return nil, &core.ImbalanceError{Split: "train", Class: data.Attrited}
	}

	minority, nMin, nMaj := data.Attrited, pos, neg
	if pos > neg {
		minority, nMin, nMaj = data.Retained, neg, pos
	}
	if strategy == None || nMin == nMaj {
		return train.Clone(), nil
	}

	rnd := core.NewRand(seed)
	switch strategy {
	case Oversample:
		return smote(train, minority, nMaj-nMin, rnd), nil
	case Undersample:
		return undersample(train, minority, nMin, rnd), nil
	}
	return nil, errors.NotValidf("balance strategy %q", strategy)
}

// smote appends need synthetic minority rows. Each one lies on the segment
// between a minority row a and one of its k nearest minority neighbours b.
// Continuous columns are interpolated; categorical-kind columns copy the
// nearer parent so codes stay valid.
func smote(train *data.Matrix, minority, need int, rnd *rand.Rand) *data.Matrix {
	out := train.Clone()

	var rows []int
	for i, y := range train.Y {
		if y == minority {
			rows = append(rows, i)
		}
	}
	pts := make([][]float64, len(rows))
	for i, r := range rows {
		pts[i] = train.X[r]
	}
	k := min(MaxNeighbors, len(rows)-1)
	var nbrs [][]int
	if k > 0 {
		nbrs = model.NearestNeighbors(pts, k)
	}

	for s := 0; s < need; s++ {
		a := rnd.Intn(len(rows))
		x := append([]float64(nil), pts[a]...)
		if k > 0 {
			b := pts[nbrs[a][rnd.Intn(k)]]
			lam := rnd.Float64()
			for j := range x {
				if j < len(train.Kinds) && train.Kinds[j].IsCategorical() {
					if lam >= 0.5 {
						x[j] = b[j]
					}
					continue
				}
				x[j] += lam * (b[j] - x[j])
			}
		}
		out.X = append(out.X, x)
		out.Y = append(out.Y, minority)
		if out.IDs != nil {
			out.IDs = append(out.IDs, fmt.Sprintf("synthetic-%d", s))
		}
	}
	return out
}

// undersample keeps every minority row and a random subset of keep majority
// rows, preserving the original row order.
func undersample(train *data.Matrix, minority, keep int, rnd *rand.Rand) *data.Matrix {
	var majority, idx []int
	for i, y := range train.Y {
		if y == minority {
			idx = append(idx, i)
		} else {
			majority = append(majority, i)
		}
	}
	rnd.Shuffle(len(majority), func(i, j int) { majority[i], majority[j] = majority[j], majority[i] })
	idx = append(idx, majority[:keep]...)
	sort.Ints(idx)
	return train.Subset(idx)
}
