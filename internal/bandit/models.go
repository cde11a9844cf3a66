// Package bandit implements reinforcement-learning models of two-option bandit
// choices and a simulator that applies them to every participant of a design.
package bandit

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/mwiater/modrec/internal/priors"
	"github.com/mwiater/modrec/internal/recovery"
)

const initialValue = 0.5

// Model is a delta-rule learner with optional choice kernel and optional
// anticorrelated update of the unchosen option. It is both the generative and
// the fitting form of the model.
type Model struct {
	name           string
	description    string
	priors         *priors.Set
	kernel         bool
	anticorrelated bool
}

// Name returns the registry name of the model.
func (m *Model) Name() string { return m.name }

// Description is a one-line summary for listings.
func (m *Model) Description() string { return m.description }

// Priors returns the model's parameter set.
func (m *Model) Priors() *priors.Set { return m.priors }

// Bounds implements recovery.FittingModel.
func (m *Model) Bounds() []recovery.Bound { return m.priors.Bounds() }

// Generate implements recovery.GenerativeModel.
func (m *Model) Generate(params recovery.Parameters, trials []recovery.Trial, rng *rand.Rand) ([]int, error) {
	choices := make([]int, len(trials))
	_, err := m.run(params, trials, func(i int, p1 float64) int {
		c := 0
		if rng.Float64() < p1 {
			c = 1
		}
		choices[i] = c
		return c
	})
	if err != nil {
		return nil, err
	}
	return choices, nil
}

// ChoiceProbabilities implements recovery.FittingModel. Learning follows the
// observed choices.
func (m *Model) ChoiceProbabilities(params recovery.Parameters, trials []recovery.Trial) ([]float64, error) {
	return m.run(params, trials, func(i int, _ float64) int {
		return trials[i].Observed
	})
}

type learnerParams struct {
	alpha, temperature, phi, eta float64
}

func (m *Model) params(p recovery.Parameters) (learnerParams, error) {
	var lp learnerParams
	get := func(name string) (float64, error) {
		v, ok := p[name]
		if !ok {
			return 0, fmt.Errorf("%s: missing parameter %q", m.name, name)
		}
		if math.IsNaN(v) {
			return 0, fmt.Errorf("%s: parameter %q is NaN", m.name, name)
		}
		return v, nil
	}
	var err error
	if lp.alpha, err = get("alpha"); err != nil {
		return lp, err
	}
	if lp.temperature, err = get("temperature"); err != nil {
		return lp, err
	}
	if m.kernel {
		if lp.phi, err = get("phi"); err != nil {
			return lp, err
		}
		if lp.eta, err = get("eta"); err != nil {
			return lp, err
		}
	}
	return lp, nil
}

// run walks the trials, asking choose for the choice on each one, and returns
// the probability of option 1 before every choice.
func (m *Model) run(p recovery.Parameters, trials []recovery.Trial, choose func(i int, p1 float64) int) ([]float64, error) {
	lp, err := m.params(p)
	if err != nil {
		return nil, err
	}
	arms := armCount(trials)
	values := make([]float64, arms)
	for i := range values {
		values[i] = initialValue
	}
	trace := make([]float64, arms)

	probs := make([]float64, len(trials))
	for i, t := range trials {
		if len(t.Options) != 2 || len(t.Outcomes) != 2 {
			return nil, fmt.Errorf("%s: trial %d must offer exactly two options", m.name, t.Index)
		}
		left, right := t.Options[0], t.Options[1]
		logit := lp.temperature * (values[right] - values[left])
		if m.kernel {
			logit += lp.phi * (trace[right] - trace[left])
		}
		p1 := sigmoid(logit)
		probs[i] = p1

		c := choose(i, p1)
		if c != 0 && c != 1 {
			return nil, fmt.Errorf("%s: trial %d: choice %d out of range", m.name, t.Index, c)
		}
		chosen, unchosen := t.Options[c], t.Options[1-c]
		reward := t.Outcomes[c]

		values[chosen] += lp.alpha * (reward - values[chosen])
		if m.anticorrelated {
			values[unchosen] += lp.alpha * ((1 - reward) - values[unchosen])
		}
		if m.kernel {
			trace[chosen] += lp.eta * (1 - trace[chosen])
			trace[unchosen] += lp.eta * (0 - trace[unchosen])
		}
	}
	return probs, nil
}

func armCount(trials []recovery.Trial) int {
	n := 0
	for _, t := range trials {
		for _, o := range t.Options {
			if o+1 > n {
				n = o + 1
			}
		}
	}
	return n
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func learningRate() priors.Prior {
	return priors.Prior{Name: "alpha", Kind: priors.Beta, Lower: 0, Upper: 1, A: 2, B: 2}
}

func temperature() priors.Prior {
	return priors.Prior{Name: "temperature", Kind: priors.Normal, Lower: 0, Upper: 15, A: 5, B: 2.5}
}

// Delta is a Rescorla–Wagner learner with softmax choice.
func Delta() *Model {
	return &Model{
		name:        "delta",
		description: "delta-rule learning with softmax choice",
		priors:      priors.MustSet(learningRate(), temperature()),
	}
}

// Kernel adds a choice kernel that tracks recent choices to the delta model.
func Kernel() *Model {
	return &Model{
		name:        "kernel",
		description: "delta-rule learning plus a choice kernel (perseveration)",
		priors: priors.MustSet(
			learningRate(),
			temperature(),
			priors.Prior{Name: "phi", Kind: priors.Normal, Lower: -5, Upper: 5, A: 0, B: 1.5},
			priors.Prior{Name: "eta", Kind: priors.Beta, Lower: 0, Upper: 1, A: 2, B: 2},
		),
		kernel: true,
	}
}

// Anticorrelated moves the unchosen option toward the opposite of the received reward.
func Anticorrelated() *Model {
	return &Model{
		name:           "anticorrelated",
		description:    "delta-rule learning with anticorrelated update of the unchosen option",
		priors:         priors.MustSet(learningRate(), temperature()),
		anticorrelated: true,
	}
}

var registry = map[string]func() *Model{
	"delta":          Delta,
	"kernel":         Kernel,
	"anticorrelated": Anticorrelated,
}

// DefaultModels is the model order `run` uses when none is configured.
var DefaultModels = []string{"delta", "kernel", "anticorrelated"}

// Available lists the registered model names.
func Available() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a fresh instance of the named model.
func Lookup(name string) (*Model, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown model %q (available: %v)", name, Available())
	}
	return ctor(), nil
}

// Specs builds recovery model specs for names, in order.
func Specs(names []string) ([]recovery.ModelSpec, error) {
	specs := make([]recovery.ModelSpec, 0, len(names))
	for _, n := range names {
		m, err := Lookup(n)
		if err != nil {
			return nil, err
		}
		specs = append(specs, recovery.ModelSpec{
			Name:       m.Name(),
			Generative: m,
			Fitting:    m,
			Parameters: m.Priors(),
		})
	}
	return specs, nil
}
