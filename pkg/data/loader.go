package data

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"churn/pkg/core"
)

// ReadOptions controls how strictly ReadCSV treats the input.
type ReadOptions struct {
	// RequireLabel fails when the target column is absent. Scoring batches
	// are read with RequireLabel=false.
	RequireLabel bool
}

// LoadCSV opens path and reads it with ReadCSV.
func LoadCSV(path string, schema Schema, opts ReadOptions) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "open %s", path)
	}
	defer file.Close()
	ds, err := ReadCSV(bufio.NewReader(file), schema, opts)
	if err != nil {
		return nil, errors.Annotatef(err, "read %s", path)
	}
	return ds, nil
}

// ReadCSV parses a headed CSV into records. Columns outside the schema are
// ignored; a schema column missing from the header is a SchemaError.
func ReadCSV(r io.Reader, schema Schema, opts ReadOptions) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &core.SchemaError{Column: schema.Target, Row: -1, Reason: "empty input"}
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.Trim(strings.TrimSpace(h), "\ufeff\"")] = i
	}

	required := append(append([]string(nil), schema.Numeric...), schema.Categorical...)
	for _, col := range required {
		if _, ok := pos[col]; !ok {
			return nil, &core.SchemaError{Column: col, Row: -1, Reason: "missing required column"}
		}
	}
	targetIdx, hasTarget := pos[schema.Target]
	if opts.RequireLabel && !hasTarget {
		return nil, &core.SchemaError{Column: schema.Target, Row: -1, Reason: "missing target column"}
	}
	idIdx, hasID := pos[schema.ID]

	ds := &Dataset{Schema: schema}
	for row := 0; ; row++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Annotatef(err, "row %d", row)
		}
		out := Record{
			Numeric:     make(map[string]float64, len(schema.Numeric)),
			Categorical: make(map[string]string, len(schema.Categorical)),
		}
		if hasID && idIdx < len(rec) {
			out.ID = rec[idIdx]
		} else {
			out.ID = strconv.Itoa(row)
		}
		if hasTarget && targetIdx < len(rec) {
			out.Label = strings.TrimSpace(rec[targetIdx])
		}
		for _, col := range schema.Numeric {
			i := pos[col]
			if i >= len(rec) {
				return nil, &core.SchemaError{Column: col, Row: row, Reason: "short row"}
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, &core.SchemaError{Column: col, Value: rec[i], Row: row, Reason: "not a number"}
			}
			out.Numeric[col] = v
		}
		for _, col := range schema.Categorical {
			i := pos[col]
			if i >= len(rec) {
				return nil, &core.SchemaError{Column: col, Row: row, Reason: "short row"}
			}
			out.Categorical[col] = strings.TrimSpace(rec[i])
		}
		ds.Records = append(ds.Records, out)
	}
	return ds, nil
}

// WriteCSV writes ds with a header in Schema.Columns order. Numbers use the
// shortest representation that round-trips.
func WriteCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	cols := ds.Schema.Columns()
	if err := cw.Write(cols); err != nil {
		return errors.Trace(err)
	}
	row := make([]string, len(cols))
	for _, r := range ds.Records {
		for i, col := range cols {
			switch {
			case col == ds.Schema.ID:
				row[i] = r.ID
			case col == ds.Schema.Target:
				row[i] = r.Label
			default:
				if v, ok := r.Numeric[col]; ok {
					row[i] = strconv.FormatFloat(v, 'g', -1, 64)
				} else {
					row[i] = r.Categorical[col]
				}
			}
		}
		if err := cw.Write(row); err != nil {
			return errors.Trace(err)
		}
	}
	cw.Flush()
	return errors.Trace(cw.Error())
}
