package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mwiater/modrec/internal/recovery"
)

var baseColumns = []string{
	"run_id", "repetition", "generating_model", "fitting_model", "participant",
	"neg_log_likelihood", "bic", "trials", "converged", "warnings",
}

// WriteCSV writes the table to path, creating parent directories.
func WriteCSV(path, runID string, table *recovery.RecoveryTable) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating results directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating result file: %w", err)
	}
	defer file.Close()

	if err := EncodeCSV(file, runID, table); err != nil {
		return fmt.Errorf("error writing results to file: %w", err)
	}
	return file.Close()
}

// EncodeCSV writes one row per participant per cell. Parameter columns are
// prefixed fit_ and true_; values a model does not have are left empty.
// Non-finite losses are written as +Inf or NaN, never replaced.
func EncodeCSV(w io.Writer, runID string, table *recovery.RecoveryTable) error {
	rows := Flatten(runID, table)
	fitted, truth := parameterColumns(rows)

	header := append([]string(nil), baseColumns...)
	for _, n := range fitted {
		header = append(header, "fit_"+n)
	}
	for _, n := range truth {
		header = append(header, "true_"+n)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		line := []string{
			r.RunID,
			strconv.Itoa(r.Repetition),
			r.GeneratingModel,
			r.FittingModel,
			r.Participant,
			formatFloat(r.NegLogLikelihood),
			formatFloat(r.BIC),
			strconv.Itoa(r.Trials),
			strconv.FormatBool(r.Converged),
			r.WarningCodes(),
		}
		for _, n := range fitted {
			line = append(line, optionalFloat(r.Fitted, n))
		}
		for _, n := range truth {
			line = append(line, optionalFloat(r.True, n))
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func optionalFloat(p recovery.Parameters, name string) string {
	v, ok := p[name]
	if !ok {
		return ""
	}
	return formatFloat(v)
}
