package recovery

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/mwiater/modrec/internal/logging"
	"golang.org/x/sync/errgroup"
)

// DefaultNumberOfStarts is the multi-start count used when none is configured.
const DefaultNumberOfStarts = 5

// Progress is called once per finished record with the running count.
type Progress func(done, total int, rec FitRecord)

// Orchestrator drives the repeated generate → refit cycle.
type Orchestrator struct {
	Simulator Simulator
	Optimizer Optimizer

	// NumberOfStarts is passed to every optimizer call. Zero is rejected.
	NumberOfStarts int
	// Parallel is forwarded to the optimizer (per-participant parallelism).
	Parallel bool
	// Workers bounds how many repetitions run at once. Values below 1 mean 1.
	Workers int
	// Seed makes the run reproducible. Nil draws a fresh root seed per run.
	Seed *uint64

	Progress Progress
}

// NewOrchestrator returns an orchestrator with the default start count.
func NewOrchestrator(sim Simulator, opt Optimizer) *Orchestrator {
	return &Orchestrator{
		Simulator:      sim,
		Optimizer:      opt,
		NumberOfStarts: DefaultNumberOfStarts,
		Workers:        1,
	}
}

// Run executes the study and returns a table with exactly
// repetitions × len(specs)² records. Neither design nor specs are modified.
func (o *Orchestrator) Run(ctx context.Context, specs []ModelSpec, design TrialDesign, participantCount, repetitions int) (*RecoveryTable, error) {
	names, err := o.validate(specs, design, participantCount, repetitions)
	if err != nil {
		return nil, err
	}

	specs = append([]ModelSpec(nil), specs...)
	design = design.Clone()
	root := o.rootSeed()
	counter := &progressCounter{total: repetitions * len(specs) * len(specs), fn: o.Progress}

	logging.LogEvent("Running model recovery with models: %s (runs=%d participants=%d starts=%d seed=%d)",
		strings.Join(names, ", "), repetitions, participantCount, o.NumberOfStarts, root)

	parts := make([]*partition, repetitions)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.Workers, 1))
	for r := 0; r < repetitions; r++ {
		g.Go(func() error {
			part, err := o.runRepetition(gctx, r, specs, design, root, counter)
			if err != nil {
				return err
			}
			parts[r] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table := mergePartitions(parts)
	table.seed = root
	if err := table.Validate(repetitions, names); err != nil {
		return nil, err
	}
	return table, nil
}

func (o *Orchestrator) validate(specs []ModelSpec, design TrialDesign, participantCount, repetitions int) ([]string, error) {
	if o.Simulator == nil || o.Optimizer == nil {
		return nil, configError("simulator and optimizer are required")
	}
	if len(specs) == 0 {
		return nil, configError("at least one model is required")
	}
	if repetitions < 1 {
		return nil, configError("repetitions must be positive, got %d", repetitions)
	}
	if participantCount < 1 {
		return nil, configError("participant count must be positive, got %d", participantCount)
	}
	if participantCount != design.ParticipantCount() {
		return nil, configError("participant count %d does not match design with %d participants", participantCount, design.ParticipantCount())
	}
	if o.NumberOfStarts < 1 {
		return nil, configError("number of starts must be positive, got %d", o.NumberOfStarts)
	}

	names := make([]string, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		if strings.TrimSpace(s.Name) == "" {
			return nil, configError("model %d has no name", i)
		}
		if seen[s.Name] {
			return nil, configError("duplicate model name %q", s.Name)
		}
		if s.Generative == nil || s.Fitting == nil || s.Parameters == nil {
			return nil, configError("model %q is missing a generative model, fitting model or parameter set", s.Name)
		}
		seen[s.Name] = true
		names = append(names, s.Name)
	}
	return names, nil
}

// runRepetition produces every record of repetition r into its own partition.
func (o *Orchestrator) runRepetition(ctx context.Context, r int, specs []ModelSpec, design TrialDesign, root uint64, counter *progressCounter) (*partition, error) {
	part := &partition{repetition: r, records: make([]FitRecord, 0, len(specs)*len(specs))}
	n := design.ParticipantCount()

	for gi, gen := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng := streamRand(root, r, gi, -1, len(specs))
		truth, err := gen.Parameters.Sample(n, rng)
		if err != nil {
			return nil, &SimulationError{Model: gen.Name, Repetition: r, Err: fmt.Errorf("sampling parameters: %w", err)}
		}
		if len(truth) != n {
			return nil, &SimulationError{Model: gen.Name, Repetition: r, Err: fmt.Errorf("sampled %d parameter vectors for %d participants", len(truth), n)}
		}

		responses, err := o.Simulator.Simulate(ctx, gen.Generative, truth, design, rng)
		if err != nil {
			return nil, &SimulationError{Model: gen.Name, Repetition: r, Err: err}
		}
		data, err := design.WithObserved(responses)
		if err != nil {
			return nil, &SimulationError{Model: gen.Name, Repetition: r, Err: err}
		}

		for fi, fit := range specs {
			opts := FitOptions{
				NumberOfStarts: o.NumberOfStarts,
				Parallel:       o.Parallel,
				Rng:            streamRand(root, r, gi, fi, len(specs)),
			}
			fits, err := o.Optimizer.Fit(ctx, fit.Fitting, SyntheticDataset{TrialDesign: data.Clone()}, opts)
			if err != nil {
				return nil, &FitError{Generating: gen.Name, Fitting: fit.Name, Repetition: r, Err: err}
			}
			if len(fits) != n {
				return nil, &FitError{Generating: gen.Name, Fitting: fit.Name, Repetition: r, Err: fmt.Errorf("optimizer returned %d fits for %d participants", len(fits), n)}
			}

			rec := newFitRecord(gen.Name, fit.Name, r, fits, truth)
			if rec.NonConverged {
				logging.LogCell("warn", gen.Name, fit.Name, r, "non-convergence flagged")
			}
			part.add(rec)
			counter.add(rec)
		}
	}
	return part, nil
}

// progressCounter counts finished records for a single Run.
type progressCounter struct {
	mu    sync.Mutex
	done  int
	total int
	fn    Progress
}

func (c *progressCounter) add(rec FitRecord) {
	c.mu.Lock()
	c.done++
	done := c.done
	c.mu.Unlock()
	if c.fn != nil {
		c.fn(done, c.total, rec)
	}
}

func (o *Orchestrator) rootSeed() uint64 {
	if o.Seed != nil {
		return *o.Seed
	}
	return rand.Uint64()
}

// streamRand returns the generator for one (repetition, generating, fitting)
// slot. fitting is -1 for the sampling and simulation stream. Streams never
// overlap, so draws are independent of execution order.
func streamRand(root uint64, repetition, generating, fitting, models int) *rand.Rand {
	cell := uint64(repetition)*uint64(models) + uint64(generating)
	stream := cell*uint64(models+1) + uint64(fitting+1)
	return rand.New(rand.NewPCG(root, stream))
}
