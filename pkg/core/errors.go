package core

import (
	"fmt"

	"github.com/juju/errors"
)

// SchemaError reports a malformed or unexpected column or categorical value.
type SchemaError struct {
	Column string
	Value  string
	Row    int // -1 when the error is not tied to a row
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("schema: column %q row %d value %q: %s", e.Column, e.Row, e.Value, e.Reason)
	}
	if e.Value != "" {
		return fmt.Sprintf("schema: column %q value %q: %s", e.Column, e.Value, e.Reason)
	}
	return fmt.Sprintf("schema: column %q: %s", e.Column, e.Reason)
}

// ImbalanceError reports a class with zero members in a split.
type ImbalanceError struct {
	Split string
	Class int
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("imbalance: split %q has no records of class %d", e.Split, e.Class)
}

// FitError reports a training set that cannot fit a binary classifier.
type FitError struct {
	Model  string
	Class  int
	Count  int
	Reason string
}

func (e *FitError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("fit %s: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("fit %s: class %d has %d records, need at least 2", e.Model, e.Class, e.Count)
}

// SearchSpaceError reports an empty hyperparameter space.
type SearchSpaceError struct {
	Model string
	Param string
}

func (e *SearchSpaceError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("search space %s: parameter %q has no choices", e.Model, e.Param)
	}
	return fmt.Sprintf("search space %s: empty", e.Model)
}

// FoldWarning is a recoverable condition raised for a single CV fold.
// It is logged and counted, never returned to the caller.
type FoldWarning struct {
	Fold   int
	Reason string
}

func (w *FoldWarning) Error() string {
	return fmt.Sprintf("fold %d skipped: %s", w.Fold, w.Reason)
}

// IsSchema reports whether err wraps a *SchemaError.
func IsSchema(err error) bool {
	var target *SchemaError
	return errors.As(err, &target)
}

// IsImbalance reports whether err wraps an *ImbalanceError.
func IsImbalance(err error) bool {
	var target *ImbalanceError
	return errors.As(err, &target)
}

// IsFit reports whether err wraps a *FitError.
func IsFit(err error) bool {
	var target *FitError
	return errors.As(err, &target)
}

// IsSearchSpace reports whether err wraps a *SearchSpaceError.
func IsSearchSpace(err error) bool {
	var target *SearchSpaceError
	return errors.As(err, &target)
}

// CheckBinary verifies both classes have at least min records in y.
func CheckBinary(model string, y []int, min int) error {
	var counts [2]int
	for _, v := range y {
		if v == 0 || v == 1 {
			counts[v]++
		}
	}
	for c, n := range counts {
		if n < min {
			return &FitError{Model: model, Class: c, Count: n}
		}
	}
	return nil
}
