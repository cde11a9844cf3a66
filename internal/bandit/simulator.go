package bandit

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/mwiater/modrec/internal/recovery"
)

// Simulator runs a generative model over every participant, one parameter
// vector per participant, drawing from a single rng in participant order.
type Simulator struct{}

// Simulate implements recovery.Simulator.
func (Simulator) Simulate(ctx context.Context, model recovery.GenerativeModel, params []recovery.Parameters, design recovery.TrialDesign, rng *rand.Rand) ([][]int, error) {
	if len(params) != len(design.Participants) {
		return nil, fmt.Errorf("got %d parameter vectors for %d participants", len(params), len(design.Participants))
	}
	out := make([][]int, len(design.Participants))
	for i, p := range design.Participants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		responses, err := model.Generate(params[i], p.Trials, rng)
		if err != nil {
			return nil, fmt.Errorf("participant %s: %w", p.ID, err)
		}
		out[i] = responses
	}
	return out, nil
}
