package dataprep

import (
	"sort"

	"churn/pkg/core"
	"churn/pkg/data"
)

// UnknownPolicy decides what happens to a one-hot level never seen at fit time.
type UnknownPolicy int

const (
	// IgnoreUnknown maps an unseen level to the all-zero block.
	IgnoreUnknown UnknownPolicy = iota
	// ErrorOnUnknown fails with a SchemaError.
	ErrorOnUnknown
)

func (p UnknownPolicy) String() string {
	if p == ErrorOnUnknown {
		return "error"
	}
	return "ignore"
}

// EncodeTarget maps the raw attrition flag to {0, 1}.
func EncodeTarget(schema data.Schema, label string, row int) (int, error) {
	y, ok := schema.TargetLevels[label]
	if !ok {
		return 0, &core.SchemaError{Column: schema.Target, Value: label, Row: row, Reason: "unknown target label"}
	}
	return y, nil
}

// sortedLevels returns the distinct non-missing levels of col in ascending
// order. The first entry is the reference level dropped by one-hot encoding.
func sortedLevels(col []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range col {
		if data.IsMissing(v) {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// EncodeOneHot expands a level into a block of len(levels)-1 indicators,
// dropping levels[0]. The reference level encodes as all zeros; an unseen
// level is all zeros under IgnoreUnknown.
func EncodeOneHot(col string, levels []string, v string, policy UnknownPolicy, row int) ([]float64, error) {
	block := make([]float64, len(levels)-1)
	for i, l := range levels {
		if l != v {
			continue
		}
		if i > 0 {
			block[i-1] = 1
		}
		return block, nil
	}
	if policy == ErrorOnUnknown {
		return nil, &core.SchemaError{Column: col, Value: v, Row: row, Reason: "level not seen at fit time"}
	}
	return block, nil
}

// EncodeBinary applies an explicit two-level mapping.
func EncodeBinary(col string, mapping map[string]float64, v string, row int) (float64, error) {
	code, ok := mapping[v]
	if !ok {
		return 0, &core.SchemaError{Column: col, Value: v, Row: row, Reason: "value outside binary mapping"}
	}
	return code, nil
}
