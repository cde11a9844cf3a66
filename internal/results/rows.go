// Package results persists recovery tables and run summaries: one row per
// participant per (run, generating model, fitting model) cell.
package results

import (
	"sort"
	"strings"

	"github.com/mwiater/modrec/internal/recovery"
)

// Row is one participant's fit within one record.
type Row struct {
	RunID            string
	Repetition       int
	GeneratingModel  string
	FittingModel     string
	Participant      string
	NegLogLikelihood float64
	BIC              float64
	Trials           int
	Converged        bool
	Warnings         []recovery.FitWarning
	Fitted           recovery.Parameters
	True             recovery.Parameters
}

// WarningCodes joins the warning codes with ';'.
func (r Row) WarningCodes() string {
	codes := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		codes[i] = w.Code
	}
	return strings.Join(codes, ";")
}

// Flatten turns a table into rows in table order.
func Flatten(runID string, table *recovery.RecoveryTable) []Row {
	var rows []Row
	for _, rec := range table.Records() {
		for i, pf := range rec.Participants {
			row := Row{
				RunID:            runID,
				Repetition:       rec.Repetition,
				GeneratingModel:  rec.GeneratingModel,
				FittingModel:     rec.FittingModel,
				Participant:      pf.Participant,
				NegLogLikelihood: pf.NegLogLikelihood,
				BIC:              pf.BIC,
				Trials:           pf.Trials,
				Converged:        pf.Converged,
				Warnings:         pf.Warnings,
				Fitted:           pf.Parameters,
			}
			if i < len(rec.TrueParameters) {
				row.True = rec.TrueParameters[i]
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// parameterColumns returns the sorted union of fitted and true parameter names.
func parameterColumns(rows []Row) (fitted, truth []string) {
	fs := map[string]bool{}
	ts := map[string]bool{}
	for _, r := range rows {
		for k := range r.Fitted {
			fs[k] = true
		}
		for k := range r.True {
			ts[k] = true
		}
	}
	return sortedKeys(fs), sortedKeys(ts)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
