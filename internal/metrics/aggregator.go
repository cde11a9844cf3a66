package metrics

import (
	"fmt"
	"math"

	"github.com/mwiater/modrec/internal/recovery"
	"gonum.org/v1/gonum/floats"
)

// Summarize aggregates a validated table. models fixes the row and column
// order of the matrices and must list every model in the table.
func Summarize(table *recovery.RecoveryTable, models []string) (Summary, error) {
	index := make(map[string]int, len(models))
	for i, m := range models {
		index[m] = i
	}
	m := len(models)

	cells := make([]CellSummary, m*m)
	for g, gen := range models {
		for f, fit := range models {
			cells[g*m+f] = CellSummary{Generating: gen, Fitting: fit}
		}
	}

	// best[(rep, gen, participant)] holds the winning fitting model so far.
	type datasetKey struct {
		repetition  int
		generating  int
		participant int
	}
	type winner struct {
		fitting int
		bic     float64
	}
	best := make(map[datasetKey]winner)
	datasets := make(map[datasetKey]bool)

	repetitions := 0
	participants := 0
	for _, rec := range table.Records() {
		g, ok := index[rec.GeneratingModel]
		if !ok {
			return Summary{}, fmt.Errorf("table has unknown generating model %q", rec.GeneratingModel)
		}
		f, ok := index[rec.FittingModel]
		if !ok {
			return Summary{}, fmt.Errorf("table has unknown fitting model %q", rec.FittingModel)
		}
		repetitions = max(repetitions, rec.Repetition+1)
		participants = max(participants, len(rec.Participants))

		cell := &cells[g*m+f]
		cell.Records++
		for pi, pf := range rec.Participants {
			key := datasetKey{rec.Repetition, g, pi}
			datasets[key] = true
			if !pf.Converged {
				cell.NonConverged++
			}
			if !finite(pf.NegLogLikelihood) || !finite(pf.BIC) {
				cell.NonFinite++
				continue
			}
			updateRunningStat(&cell.NegLogLikelihood, pf.NegLogLikelihood)
			updateRunningStat(&cell.BIC, pf.BIC)

			cur, seen := best[key]
			if !seen || pf.BIC < cur.bic || (pf.BIC == cur.bic && f < cur.fitting) {
				best[key] = winner{fitting: f, bic: pf.BIC}
			}
		}
	}

	counts := make([][]float64, m)
	for i := range counts {
		counts[i] = make([]float64, m)
	}
	undecided := make([]int, m)
	for key := range datasets {
		w, ok := best[key]
		if !ok {
			undecided[key.generating]++
			continue
		}
		counts[key.generating][w.fitting]++
		cells[key.generating*m+w.fitting].Wins++
	}

	return Summary{
		Seed:         table.Seed(),
		Models:       append([]string(nil), models...),
		Repetitions:  repetitions,
		Participants: participants,
		Cells:        cells,
		Confusion:    normalizeRows(counts),
		Inversion:    normalizeRows(transpose(counts)),
		Undecided:    undecided,
	}, nil
}

// updateRunningStat updates a single running statistic using Welford's online algorithm.
func updateRunningStat(rs *RunningStat, value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func transpose(a [][]float64) [][]float64 {
	out := make([][]float64, len(a))
	for i := range out {
		out[i] = make([]float64, len(a))
		for j := range a {
			out[i][j] = a[j][i]
		}
	}
	return out
}

func normalizeRows(a [][]float64) [][]float64 {
	out := make([][]float64, len(a))
	for i, row := range a {
		out[i] = append([]float64(nil), row...)
		if sum := floats.Sum(row); sum != 0 {
			floats.Scale(1/sum, out[i])
		}
	}
	return out
}
