// Package design builds the two-option bandit trial designs a recovery study
// simulates over, either generated from reward probabilities or read from CSV.
package design

import (
	"fmt"
	"math/rand/v2"

	"github.com/mwiater/modrec/internal/recovery"
)

// DefaultRewardProbabilities are the per-arm reward rates used when none are configured.
var DefaultRewardProbabilities = []float64{0.8, 0.6, 0.4, 0.2}

// Generator describes a synthetic bandit design.
type Generator struct {
	Participants        int
	Trials              int
	RewardProbabilities []float64
}

// Generate draws a design: every trial offers two distinct arms with
// pre-drawn Bernoulli outcomes. The observed field is left at zero.
func (g Generator) Generate(rng *rand.Rand) (recovery.TrialDesign, error) {
	if g.Participants < 1 {
		return recovery.TrialDesign{}, fmt.Errorf("design needs at least one participant, got %d", g.Participants)
	}
	if g.Trials < 1 {
		return recovery.TrialDesign{}, fmt.Errorf("design needs at least one trial, got %d", g.Trials)
	}
	probs := g.RewardProbabilities
	if len(probs) == 0 {
		probs = DefaultRewardProbabilities
	}
	if len(probs) < 2 {
		return recovery.TrialDesign{}, fmt.Errorf("design needs at least two arms, got %d", len(probs))
	}
	for i, p := range probs {
		if p < 0 || p > 1 {
			return recovery.TrialDesign{}, fmt.Errorf("arm %d: reward probability %v outside [0, 1]", i, p)
		}
	}

	d := recovery.TrialDesign{Participants: make([]recovery.Participant, g.Participants)}
	for i := range d.Participants {
		p := recovery.Participant{
			ID:     fmt.Sprintf("%d", i+1),
			Trials: make([]recovery.Trial, g.Trials),
		}
		for j := range p.Trials {
			left := rng.IntN(len(probs))
			right := rng.IntN(len(probs) - 1)
			if right >= left {
				right++
			}
			p.Trials[j] = recovery.Trial{
				Index:     j + 1,
				Condition: fmt.Sprintf("%d-%d", left, right),
				Options:   []int{left, right},
				Outcomes:  []float64{bernoulli(rng, probs[left]), bernoulli(rng, probs[right])},
			}
		}
		d.Participants[i] = p
	}
	return d, nil
}

func bernoulli(rng *rand.Rand, p float64) float64 {
	if rng.Float64() < p {
		return 1
	}
	return 0
}
