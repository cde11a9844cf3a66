// Package recovery runs model-recovery studies: every candidate model generates
// synthetic data and every candidate model is refit to it, producing a table of
// labeled fit records from which a confusion matrix can be built.
package recovery

import (
	"context"
	"math/rand/v2"
	"sort"
)

// Parameters is one free-parameter vector keyed by parameter name.
type Parameters map[string]float64

// Clone returns a copy that shares no storage with p.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Names returns the parameter names in sorted order.
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Bound is the closed interval a free parameter is searched in.
type Bound struct {
	Name  string  `json:"name"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ParameterSet is a sampleable prior over a model's free parameters.
// Repeated calls must be independent given independent rng streams.
type ParameterSet interface {
	Names() []string
	Sample(n int, rng *rand.Rand) ([]Parameters, error)
}

// GenerativeModel produces one participant's responses for a parameter vector.
type GenerativeModel interface {
	Generate(params Parameters, trials []Trial, rng *rand.Rand) ([]int, error)
}

// FittingModel exposes a model in the form an optimizer can query: the
// probability of choosing option 1 on every trial given the observed history.
type FittingModel interface {
	Bounds() []Bound
	ChoiceProbabilities(params Parameters, trials []Trial) ([]float64, error)
}

// Simulator applies a GenerativeModel to every participant in a design. The
// returned slice is indexed like design.Participants.
type Simulator interface {
	Simulate(ctx context.Context, model GenerativeModel, params []Parameters, design TrialDesign, rng *rand.Rand) ([][]int, error)
}

// FitOptions is what the orchestrator hands to the optimizer for every fit.
type FitOptions struct {
	NumberOfStarts int
	Parallel       bool
	Rng            *rand.Rand
}

// Optimizer fits a FittingModel to every participant in a dataset. Mere
// non-convergence is reported through ParticipantFit.Converged, never as an error.
type Optimizer interface {
	Fit(ctx context.Context, model FittingModel, data SyntheticDataset, opts FitOptions) ([]ParticipantFit, error)
}

// ModelSpec bundles everything the study needs about one model family.
type ModelSpec struct {
	Name       string
	Generative GenerativeModel
	Fitting    FittingModel
	Parameters ParameterSet
}

// FitWarning is a non-fatal numerical problem raised while fitting one participant.
type FitWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	// WarnNonConvergence marks a fit whose best start stopped on a limit or failure.
	WarnNonConvergence = "non_convergence"
	// WarnNonFinite marks a fit whose likelihood evaluated to NaN or Inf.
	WarnNonFinite = "non_finite_likelihood"
)

// ParticipantFit is the optimizer's result for one participant.
type ParticipantFit struct {
	Participant      string       `json:"participant"`
	Parameters       Parameters   `json:"parameters"`
	NegLogLikelihood float64      `json:"negLogLikelihood"`
	BIC              float64      `json:"bic"`
	Trials           int          `json:"trials"`
	Converged        bool         `json:"converged"`
	Warnings         []FitWarning `json:"warnings,omitempty"`
}

func (f ParticipantFit) clone() ParticipantFit {
	out := f
	out.Parameters = f.Parameters.Clone()
	if f.Warnings != nil {
		out.Warnings = append([]FitWarning(nil), f.Warnings...)
	}
	return out
}

// FitRecord is one fitting model fit to one synthetic dataset.
type FitRecord struct {
	GeneratingModel string           `json:"generatingModel"`
	FittingModel    string           `json:"fittingModel"`
	Repetition      int              `json:"repetition"`
	Participants    []ParticipantFit `json:"participants"`
	TrueParameters  []Parameters     `json:"trueParameters"`
	NonConverged    bool             `json:"nonConverged"`
}

// Key identifies a record within a table.
func (r FitRecord) Key() CellKey {
	return CellKey{Repetition: r.Repetition, Generating: r.GeneratingModel, Fitting: r.FittingModel}
}

func (r FitRecord) clone() FitRecord {
	out := r
	out.Participants = make([]ParticipantFit, len(r.Participants))
	for i, p := range r.Participants {
		out.Participants[i] = p.clone()
	}
	out.TrueParameters = make([]Parameters, len(r.TrueParameters))
	for i, p := range r.TrueParameters {
		out.TrueParameters[i] = p.Clone()
	}
	return out
}

// CellKey is the unique label of a FitRecord.
type CellKey struct {
	Repetition int
	Generating string
	Fitting    string
}

// newFitRecord copies everything it is given so the record never aliases
// optimizer or sampler state.
func newFitRecord(generating, fitting string, repetition int, fits []ParticipantFit, truth []Parameters) FitRecord {
	rec := FitRecord{
		GeneratingModel: generating,
		FittingModel:    fitting,
		Repetition:      repetition,
		Participants:    make([]ParticipantFit, len(fits)),
		TrueParameters:  make([]Parameters, len(truth)),
	}
	for i, f := range fits {
		rec.Participants[i] = f.clone()
		if !f.Converged {
			rec.NonConverged = true
		}
	}
	for i, p := range truth {
		rec.TrueParameters[i] = p.Clone()
	}
	return rec
}
