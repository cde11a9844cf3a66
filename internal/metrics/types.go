// Package metrics turns a recovery table into per-cell fit statistics and the
// confusion and inversion matrices used to judge model identifiability.
package metrics

import "math"

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"-"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// StdDev is the sample standard deviation, zero below two observations.
func (rs RunningStat) StdDev() float64 {
	if rs.Count < 2 {
		return 0
	}
	return math.Sqrt(rs.M2 / float64(rs.Count-1))
}

// CellSummary aggregates every fit of one fitting model to one generating model's data.
type CellSummary struct {
	Generating       string      `json:"generatingModel"`
	Fitting          string      `json:"fittingModel"`
	Records          int         `json:"records"`
	NegLogLikelihood RunningStat `json:"negLogLikelihood"`
	BIC              RunningStat `json:"bic"`
	NonConverged     int         `json:"nonConvergedFits"`
	NonFinite        int         `json:"nonFiniteFits"`
	Wins             int         `json:"wins"`
}

// Summary is the digest of one recovery run.
type Summary struct {
	RunID        string        `json:"runId"`
	Seed         uint64        `json:"seed"`
	Models       []string      `json:"models"`
	Repetitions  int           `json:"repetitions"`
	Participants int           `json:"participants"`
	Cells        []CellSummary `json:"cells"`
	// Confusion[g][f] is the share of datasets generated by model g that model f fit best (by BIC).
	Confusion [][]float64 `json:"confusion"`
	// Inversion[f][g] is the share of datasets best fit by model f that model g generated.
	Inversion [][]float64 `json:"inversion"`
	// Undecided counts datasets per generating model where no fit reached a finite BIC.
	Undecided []int `json:"undecided"`
}

// Cell returns the summary for a (generating, fitting) pair.
func (s Summary) Cell(generating, fitting string) (CellSummary, bool) {
	for _, c := range s.Cells {
		if c.Generating == generating && c.Fitting == fitting {
			return c, true
		}
	}
	return CellSummary{}, false
}
