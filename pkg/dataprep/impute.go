package dataprep

import (
	"churn/pkg/core"
	"churn/pkg/data"
	"churn/pkg/stats"
)

// fitFillValues computes the most frequent level of every categorical column.
func fitFillValues(ds *data.Dataset) (map[string]string, error) {
	fill := make(map[string]string, len(ds.Schema.Categorical))
	for _, col := range ds.Schema.Categorical {
		mode, ok := stats.ModeString(ds.Levels(col), data.IsMissing)
		if !ok {
			return nil, &core.SchemaError{Column: col, Row: -1, Reason: "every value is missing, no mode to impute"}
		}
		fill[col] = mode
	}
	return fill, nil
}

// imputeRecord fills missing categorical cells of rec in place.
func imputeRecord(rec *data.Record, fill map[string]string) {
	for col, v := range fill {
		cur, ok := rec.Categorical[col]
		if !ok || data.IsMissing(cur) {
			rec.Categorical[col] = v
		}
	}
}
