package recovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	name string
}

func (m *fakeModel) Generate(params Parameters, trials []Trial, rng *rand.Rand) ([]int, error) {
	out := make([]int, len(trials))
	for i, t := range trials {
		out[i] = rng.IntN(len(t.Options))
	}
	return out, nil
}

func (m *fakeModel) Bounds() []Bound {
	return []Bound{{Name: "x", Lower: 0, Upper: 1}}
}

func (m *fakeModel) ChoiceProbabilities(params Parameters, trials []Trial) ([]float64, error) {
	out := make([]float64, len(trials))
	for i := range out {
		out[i] = 0.5
	}
	return out, nil
}

type fakeParams struct {
	shared Parameters
}

func (p *fakeParams) Names() []string { return []string{"x"} }

func (p *fakeParams) Sample(n int, rng *rand.Rand) ([]Parameters, error) {
	out := make([]Parameters, n)
	for i := range out {
		if p.shared != nil {
			p.shared["x"] = rng.Float64()
			out[i] = p.shared
			continue
		}
		out[i] = Parameters{"x": rng.Float64()}
	}
	return out, nil
}

type fakeSimulator struct {
	calls   atomic.Int32
	failFor string
	drop    bool
}

func (s *fakeSimulator) Simulate(ctx context.Context, model GenerativeModel, params []Parameters, design TrialDesign, rng *rand.Rand) ([][]int, error) {
	s.calls.Add(1)
	if fm, ok := model.(*fakeModel); ok && fm.name == s.failFor {
		return nil, errors.New("engine exploded")
	}
	out := make([][]int, 0, len(design.Participants))
	for i, p := range design.Participants {
		if s.drop && i == len(design.Participants)-1 {
			break
		}
		resp, err := model.Generate(params[i], p.Trials, rng)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

type fakeOptimizer struct {
	mu           sync.Mutex
	neverConverg string
	starts       []int
	seen         map[string][]string
}

func (o *fakeOptimizer) Fit(ctx context.Context, model FittingModel, data SyntheticDataset, opts FitOptions) ([]ParticipantFit, error) {
	name := model.(*fakeModel).name
	o.mu.Lock()
	o.starts = append(o.starts, opts.NumberOfStarts)
	if o.seen == nil {
		o.seen = make(map[string][]string)
	}
	o.seen[name] = append(o.seen[name], fingerprint(data))
	o.mu.Unlock()

	fits := make([]ParticipantFit, len(data.Participants))
	for i, p := range data.Participants {
		fits[i] = ParticipantFit{
			Participant:      p.ID,
			Parameters:       Parameters{"x": opts.Rng.Float64()},
			NegLogLikelihood: float64(len(p.Trials)),
			Trials:           len(p.Trials),
			Converged:        name != o.neverConverg,
		}
		if name == o.neverConverg {
			fits[i].Warnings = []FitWarning{{Code: WarnNonConvergence, Message: "iteration limit"}}
		}
	}
	return fits, nil
}

func fingerprint(d SyntheticDataset) string {
	var b strings.Builder
	for _, p := range d.Participants {
		for _, t := range p.Trials {
			fmt.Fprintf(&b, "%d", t.Observed)
		}
		b.WriteByte('|')
	}
	return b.String()
}

func makeDesign(participants, trials int) TrialDesign {
	d := TrialDesign{}
	for i := 0; i < participants; i++ {
		p := Participant{ID: fmt.Sprintf("p%d", i+1)}
		for j := 0; j < trials; j++ {
			p.Trials = append(p.Trials, Trial{Index: j, Options: []int{0, 1}, Outcomes: []float64{0, 1}, Observed: 1})
		}
		d.Participants = append(d.Participants, p)
	}
	return d
}

func makeSpecs(names ...string) []ModelSpec {
	specs := make([]ModelSpec, len(names))
	for i, n := range names {
		m := &fakeModel{name: n}
		specs[i] = ModelSpec{Name: n, Generative: m, Fitting: m, Parameters: &fakeParams{}}
	}
	return specs
}

func seeded(o *Orchestrator, seed uint64) *Orchestrator {
	o.Seed = &seed
	return o
}

func TestRunThreeModelsTwoRepetitions(t *testing.T) {
	opt := &fakeOptimizer{}
	orch := seeded(NewOrchestrator(&fakeSimulator{}, opt), 42)

	table, err := orch.Run(context.Background(), makeSpecs("A", "B", "C"), makeDesign(5, 20), 5, 2)
	require.NoError(t, err)
	require.Equal(t, 18, table.Len())

	cells := table.Cells()
	require.Len(t, cells, 9)
	for _, c := range cells {
		require.Len(t, c.Records, 2, "cell %s/%s", c.Generating, c.Fitting)
		require.ElementsMatch(t, []int{0, 1}, []int{c.Records[0].Repetition, c.Records[1].Repetition})
		for _, r := range c.Records {
			require.Len(t, r.Participants, 5)
			require.Len(t, r.TrueParameters, 5)
		}
	}
	for _, s := range opt.starts {
		require.Equal(t, DefaultNumberOfStarts, s)
	}
}

func TestRunCoversEveryCellOnce(t *testing.T) {
	all := []string{"A", "B", "C", "D"}
	for reps := 1; reps <= 3; reps++ {
		for m := 1; m <= len(all); m++ {
			names := all[:m]
			orch := NewOrchestrator(&fakeSimulator{}, &fakeOptimizer{})
			orch.Workers = 2
			table, err := orch.Run(context.Background(), makeSpecs(names...), makeDesign(2, 5), 2, reps)
			require.NoError(t, err)
			require.Equal(t, reps*m*m, table.Len())

			known := map[string]bool{}
			for _, n := range names {
				known[n] = true
			}
			keys := map[CellKey]bool{}
			for _, r := range table.Records() {
				require.True(t, known[r.GeneratingModel], "foreign generating label %q", r.GeneratingModel)
				require.True(t, known[r.FittingModel], "foreign fitting label %q", r.FittingModel)
				require.False(t, keys[r.Key()], "duplicate key %+v", r.Key())
				keys[r.Key()] = true
			}
			for r := 0; r < reps; r++ {
				for _, n := range names {
					require.True(t, keys[CellKey{Repetition: r, Generating: n, Fitting: n}], "missing diagonal %s run %d", n, r)
				}
			}
		}
	}
}

func TestRunFlagsNonConvergenceWithoutFailing(t *testing.T) {
	opt := &fakeOptimizer{neverConverg: "B"}
	orch := NewOrchestrator(&fakeSimulator{}, opt)

	table, err := orch.Run(context.Background(), makeSpecs("A", "B", "C"), makeDesign(5, 10), 5, 2)
	require.NoError(t, err)
	require.Equal(t, 18, table.Len())
	for _, r := range table.Records() {
		if r.FittingModel == "B" {
			require.True(t, r.NonConverged, "record %+v should be flagged", r.Key())
			for _, p := range r.Participants {
				require.False(t, p.Converged)
				require.NotEmpty(t, p.Warnings)
			}
			continue
		}
		require.False(t, r.NonConverged, "record %+v should not be flagged", r.Key())
	}
}

func TestRunDuplicateNamesFailsBeforeSimulating(t *testing.T) {
	sim := &fakeSimulator{}
	orch := NewOrchestrator(sim, &fakeOptimizer{})

	_, err := orch.Run(context.Background(), makeSpecs("A", "B", "A"), makeDesign(3, 5), 3, 2)
	require.ErrorIs(t, err, ErrConfiguration)
	require.Equal(t, int32(0), sim.calls.Load())
}

func TestRunConfigurationErrors(t *testing.T) {
	design := makeDesign(3, 5)
	cases := []struct {
		name         string
		specs        []ModelSpec
		participants int
		reps         int
		starts       int
	}{
		{"no models", nil, 3, 1, 5},
		{"zero repetitions", makeSpecs("A"), 3, 0, 5},
		{"zero participants", makeSpecs("A"), 0, 1, 5},
		{"participant mismatch", makeSpecs("A"), 4, 1, 5},
		{"zero starts", makeSpecs("A"), 3, 1, 0},
		{"blank name", makeSpecs(" "), 3, 1, 5},
		{"missing parameter set", []ModelSpec{{Name: "A", Generative: &fakeModel{}, Fitting: &fakeModel{}}}, 3, 1, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sim := &fakeSimulator{}
			orch := NewOrchestrator(sim, &fakeOptimizer{})
			orch.NumberOfStarts = tc.starts
			_, err := orch.Run(context.Background(), tc.specs, design, tc.participants, tc.reps)
			require.ErrorIs(t, err, ErrConfiguration)
			require.Equal(t, int32(0), sim.calls.Load())
		})
	}
}

func TestRunPropagatesSimulationFailure(t *testing.T) {
	orch := NewOrchestrator(&fakeSimulator{failFor: "B"}, &fakeOptimizer{})
	_, err := orch.Run(context.Background(), makeSpecs("A", "B"), makeDesign(2, 5), 2, 3)
	require.ErrorIs(t, err, ErrSimulation)

	var simErr *SimulationError
	require.ErrorAs(t, err, &simErr)
	require.Equal(t, "B", simErr.Model)
}

func TestRunRejectsIncompleteSimulation(t *testing.T) {
	orch := NewOrchestrator(&fakeSimulator{drop: true}, &fakeOptimizer{})
	_, err := orch.Run(context.Background(), makeSpecs("A"), makeDesign(3, 5), 3, 1)
	require.ErrorIs(t, err, ErrSimulation)
}

func TestRunSeededIsReproducible(t *testing.T) {
	run := func(workers int) []FitRecord {
		orch := seeded(NewOrchestrator(&fakeSimulator{}, &fakeOptimizer{}), 7)
		orch.Workers = workers
		table, err := orch.Run(context.Background(), makeSpecs("A", "B"), makeDesign(4, 10), 4, 3)
		require.NoError(t, err)
		require.Equal(t, uint64(7), table.Seed())
		return table.Records()
	}
	first := run(1)
	require.Equal(t, first, run(1))
	require.Equal(t, first, run(3))
}

func TestRunUnseededDraws(t *testing.T) {
	run := func() *RecoveryTable {
		table, err := NewOrchestrator(&fakeSimulator{}, &fakeOptimizer{}).Run(context.Background(), makeSpecs("A", "B"), makeDesign(4, 10), 4, 2)
		require.NoError(t, err)
		return table
	}
	a, b := run(), run()
	require.NotEqual(t, a.Records()[0].TrueParameters, b.Records()[0].TrueParameters)

	// within one run, repetitions and generating models draw independently
	recs := a.Records()
	byKey := map[CellKey]FitRecord{}
	for _, r := range recs {
		byKey[r.Key()] = r
	}
	require.NotEqual(t,
		byKey[CellKey{0, "A", "A"}].TrueParameters,
		byKey[CellKey{1, "A", "A"}].TrueParameters)
	require.NotEqual(t,
		byKey[CellKey{0, "A", "A"}].TrueParameters,
		byKey[CellKey{0, "B", "B"}].TrueParameters)
}

func TestRunFitsEveryModelToTheSameDataset(t *testing.T) {
	opt := &fakeOptimizer{}
	orch := seeded(NewOrchestrator(&fakeSimulator{}, opt), 11)
	_, err := orch.Run(context.Background(), makeSpecs("A", "B", "C"), makeDesign(5, 30), 5, 2)
	require.NoError(t, err)

	// calls run in (repetition, generating) order; each fitting model sees the
	// same sequence of datasets.
	require.Equal(t, opt.seen["A"], opt.seen["B"])
	require.Equal(t, opt.seen["A"], opt.seen["C"])
	distinct := map[string]bool{}
	for _, fp := range opt.seen["A"] {
		distinct[fp] = true
	}
	require.Len(t, distinct, 6)
}

func TestRunDoesNotRetainCallerState(t *testing.T) {
	shared := Parameters{}
	specs := makeSpecs("A", "B")
	specs[0].Parameters = &fakeParams{shared: shared}
	design := makeDesign(3, 8)

	table, err := seeded(NewOrchestrator(&fakeSimulator{}, &fakeOptimizer{}), 3).Run(context.Background(), specs, design, 3, 2)
	require.NoError(t, err)
	before := table.Records()

	shared["x"] = -1
	specs[0].Name = "renamed"
	design.Participants[0].Trials[0].Observed = 0
	design.Participants[0].ID = "changed"

	after := table.Records()
	require.Equal(t, before, after)
	for _, r := range after {
		require.NotEqual(t, "renamed", r.GeneratingModel)
		require.Equal(t, "p1", r.Participants[0].Participant)
	}

	mutated := table.Records()
	mutated[0].Participants[0].Parameters["x"] = 99
	require.Equal(t, before, table.Records())
}

func TestRunDoesNotMutateDesign(t *testing.T) {
	design := makeDesign(3, 8)
	snapshot := design.Clone()
	_, err := NewOrchestrator(&fakeSimulator{}, &fakeOptimizer{}).Run(context.Background(), makeSpecs("A", "B"), design, 3, 2)
	require.NoError(t, err)
	require.Equal(t, snapshot, design)
}

func TestRunReportsProgress(t *testing.T) {
	var calls []int
	orch := NewOrchestrator(&fakeSimulator{}, &fakeOptimizer{})
	orch.Progress = func(done, total int, rec FitRecord) {
		require.Equal(t, 8, total)
		calls = append(calls, done)
	}
	_, err := orch.Run(context.Background(), makeSpecs("A", "B"), makeDesign(2, 4), 2, 2)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, calls)
}

func TestRunConcurrentRunsCountSeparately(t *testing.T) {
	var mu sync.Mutex
	seen := map[int][]int{}
	orch := NewOrchestrator(&fakeSimulator{}, &fakeOptimizer{})
	orch.Workers = 2
	orch.Progress = func(done, total int, rec FitRecord) {
		mu.Lock()
		defer mu.Unlock()
		seen[total] = append(seen[total], done)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, specs := range [][]ModelSpec{makeSpecs("A", "B"), makeSpecs("C", "D", "E")} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Run(context.Background(), specs, makeDesign(2, 4), 2, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, []int{1, 2, 3, 4}, seen[4])
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, seen[9])
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOrchestrator(&fakeSimulator{}, &fakeOptimizer{}).Run(ctx, makeSpecs("A"), makeDesign(2, 4), 2, 2)
	require.ErrorIs(t, err, context.Canceled)
}
