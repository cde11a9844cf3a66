package bandit

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/mwiater/modrec/internal/recovery"
)

func twoTrials(observed ...int) []recovery.Trial {
	trials := []recovery.Trial{
		{Index: 0, Options: []int{0, 1}, Outcomes: []float64{1, 0}},
		{Index: 1, Options: []int{0, 1}, Outcomes: []float64{1, 0}},
	}
	for i, o := range observed {
		trials[i].Observed = o
	}
	return trials
}

func TestChoiceProbabilities(t *testing.T) {
	tests := []struct {
		name   string
		model  *Model
		params recovery.Parameters
		second float64
	}{
		// Choosing option 1 (reward 0) drops its value to 0.25.
		{"delta", Delta(), recovery.Parameters{"alpha": 0.5, "temperature": 2}, 1 / (1 + math.Exp(0.5))},
		// The unchosen option moves toward 1 - reward, to 0.75.
		{"anticorrelated", Anticorrelated(), recovery.Parameters{"alpha": 0.5, "temperature": 2}, 1 / (1 + math.Exp(1))},
		// The choice trace on option 1 adds phi to the logit.
		{"kernel", Kernel(), recovery.Parameters{"alpha": 0.5, "temperature": 2, "phi": 1, "eta": 1}, 1 / (1 + math.Exp(-0.5))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probs, err := tt.model.ChoiceProbabilities(tt.params, twoTrials(1, 0))
			if err != nil {
				t.Fatalf("ChoiceProbabilities: %v", err)
			}
			if len(probs) != 2 {
				t.Fatalf("expected 2 probabilities, got %d", len(probs))
			}
			if math.Abs(probs[0]-0.5) > 1e-12 {
				t.Fatalf("first trial should be indifferent, got %v", probs[0])
			}
			if math.Abs(probs[1]-tt.second) > 1e-12 {
				t.Fatalf("second trial: got %v want %v", probs[1], tt.second)
			}
		})
	}
}

func TestModelErrors(t *testing.T) {
	if _, err := Delta().ChoiceProbabilities(recovery.Parameters{"alpha": 0.5}, twoTrials()); err == nil || !strings.Contains(err.Error(), "temperature") {
		t.Fatalf("expected missing temperature error, got %v", err)
	}
	if _, err := Kernel().ChoiceProbabilities(recovery.Parameters{"alpha": 0.5, "temperature": 1}, twoTrials()); err == nil {
		t.Fatalf("kernel model must require phi and eta")
	}
	if _, err := Delta().ChoiceProbabilities(recovery.Parameters{"alpha": math.NaN(), "temperature": 1}, twoTrials()); err == nil {
		t.Fatalf("expected NaN parameter error")
	}

	three := []recovery.Trial{{Options: []int{0, 1, 2}, Outcomes: []float64{1, 0, 1}}}
	if _, err := Delta().ChoiceProbabilities(recovery.Parameters{"alpha": 0.5, "temperature": 1}, three); err == nil {
		t.Fatalf("expected error for three-option trial")
	}

	bad := twoTrials(2)
	if _, err := Delta().ChoiceProbabilities(recovery.Parameters{"alpha": 0.5, "temperature": 1}, bad); err == nil {
		t.Fatalf("expected out-of-range choice error")
	}
}

func TestGenerateIsDeterministicPerStream(t *testing.T) {
	trials := make([]recovery.Trial, 50)
	for i := range trials {
		trials[i] = recovery.Trial{Index: i, Options: []int{i % 3, 3}, Outcomes: []float64{float64(i % 2), 1}}
	}
	params := recovery.Parameters{"alpha": 0.3, "temperature": 4, "phi": 0.5, "eta": 0.4}

	a, err := Kernel().Generate(params, trials, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Kernel().Generate(params, trials, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !slices.Equal(a, b) {
		t.Fatalf("same stream produced different choices")
	}
	for i, c := range a {
		if c != 0 && c != 1 {
			t.Fatalf("choice %d out of range: %d", i, c)
		}
	}
}

func TestRegistry(t *testing.T) {
	if got := Available(); !slices.Equal(got, []string{"anticorrelated", "delta", "kernel"}) {
		t.Fatalf("unexpected registry %v", got)
	}
	if _, err := Lookup("nosuchmodel"); err == nil {
		t.Fatalf("expected unknown model error")
	}

	specs, err := Specs([]string{"kernel", "delta"})
	if err != nil {
		t.Fatalf("Specs: %v", err)
	}
	if len(specs) != 2 || specs[0].Name != "kernel" || specs[1].Name != "delta" {
		t.Fatalf("specs should keep the requested order: %+v", specs)
	}
	if names := specs[0].Parameters.Names(); !slices.Equal(names, []string{"alpha", "temperature", "phi", "eta"}) {
		t.Fatalf("unexpected kernel parameters %v", names)
	}
	gen, genOK := specs[0].Generative.(*Model)
	fit, fitOK := specs[0].Fitting.(*Model)
	if !genOK || !fitOK || gen != fit {
		t.Fatalf("generative and fitting forms should be the same model")
	}
}

func TestSimulator(t *testing.T) {
	d := recovery.TrialDesign{Participants: []recovery.Participant{
		{ID: "a", Trials: twoTrials()},
		{ID: "b", Trials: twoTrials()},
	}}
	params := []recovery.Parameters{
		{"alpha": 0.5, "temperature": 1},
		{"alpha": 0.2, "temperature": 3},
	}
	rng := rand.New(rand.NewPCG(3, 4))

	out, err := Simulator{}.Simulate(context.Background(), Delta(), params, d, rng)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(out) != 2 || len(out[0]) != 2 || len(out[1]) != 2 {
		t.Fatalf("unexpected response shape %v", out)
	}

	if _, err := (Simulator{}).Simulate(context.Background(), Delta(), params[:1], d, rng); err == nil {
		t.Fatalf("expected parameter count mismatch")
	}

	params[1] = recovery.Parameters{"alpha": 0.2}
	_, err = Simulator{}.Simulate(context.Background(), Delta(), params, d, rng)
	if err == nil || !strings.Contains(err.Error(), "participant b") {
		t.Fatalf("expected error naming participant b, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Simulator{}).Simulate(ctx, Delta(), params, d, rng); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
