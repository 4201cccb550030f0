package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"churn/pkg/train"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// printResults writes one row per result with its confusion counts; the
// first row is highlighted.
func printResults(w io.Writer, results []train.EvaluationResult) {
	header := fmt.Sprintf("%-20s %-13s %8s %9s %7s %7s %8s %6s %5s %5s %5s %5s",
		"model", "variant", "accuracy", "precision", "recall", "f1", "roc_auc", "n", "tn", "fp", "fn", "tp")
	fmt.Fprintln(w, bold(header))
	for i, r := range results {
		cm := r.Confusion
		line := fmt.Sprintf("%-20s %-13s %8.4f %9.4f %7.4f %7.4f %8.4f %6d %5d %5d %5d %5d",
			r.Model, r.Variant, r.Accuracy, r.Precision, r.Recall, r.F1, r.ROCAUC, r.TestSize,
			cm[0][0], cm[0][1], cm[1][0], cm[1][1])
		if i == 0 && len(results) > 1 {
			line = green(line)
		}
		fmt.Fprintln(w, line)
	}
}
