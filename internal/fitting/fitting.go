// Package fitting fits recovery.FittingModel parameters to each participant
// with a bounded multi-start Nelder–Mead search.
package fitting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/mwiater/modrec/internal/recovery"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/optimize"
)

const (
	defaultMaxIterations = 400
	defaultTolerance     = 1e-8
	// startMargin keeps random starts away from the bounds, where the
	// logistic reparameterization is flat.
	startMargin = 0.02
)

// FminBound minimizes a loss over each participant's data within the model's
// bounds. Bounds are enforced by searching an unconstrained space mapped onto
// the box through a logistic transform.
type FminBound struct {
	// Loss scores choice probabilities against observed choices. Nil means BernoulliNLL.
	Loss Loss
	// MaxIterations caps Nelder–Mead iterations per start. Zero means 400.
	MaxIterations int
	// Tolerance is the absolute loss change below which a start has converged.
	Tolerance float64
	// Workers caps concurrent participants when fitting in parallel. Zero means GOMAXPROCS.
	Workers int
}

// New returns an FminBound with the Bernoulli log-likelihood loss.
func New(maxIterations int) *FminBound {
	return &FminBound{Loss: BernoulliNLL, MaxIterations: maxIterations}
}

// Fit implements recovery.Optimizer. A participant whose search stops on a
// limit or never reaches a finite loss is returned with Converged false and a
// warning, not an error. Errors are reserved for invalid models or data.
func (f *FminBound) Fit(ctx context.Context, model recovery.FittingModel, data recovery.SyntheticDataset, opts recovery.FitOptions) ([]recovery.ParticipantFit, error) {
	if opts.NumberOfStarts < 1 {
		return nil, fmt.Errorf("number of starts must be positive, got %d", opts.NumberOfStarts)
	}
	bounds := model.Bounds()
	if err := checkBounds(bounds); err != nil {
		return nil, err
	}
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	participants := data.Participants
	// Seeds are drawn up front so every participant owns its generator no
	// matter how the work is scheduled.
	seeds := make([][2]uint64, len(participants))
	for i := range seeds {
		seeds[i] = [2]uint64{rng.Uint64(), rng.Uint64()}
	}

	results := make([]recovery.ParticipantFit, len(participants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.limit(opts.Parallel))
	for i, p := range participants {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			prng := rand.New(rand.NewPCG(seeds[i][0], seeds[i][1]))
			fit, err := f.fitParticipant(model, bounds, p, prng, opts.NumberOfStarts)
			if err != nil {
				return fmt.Errorf("participant %s: %w", p.ID, err)
			}
			results[i] = fit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (f *FminBound) limit(parallel bool) int {
	if !parallel {
		return 1
	}
	if f.Workers > 0 {
		return f.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (f *FminBound) loss() Loss {
	if f.Loss != nil {
		return f.Loss
	}
	return BernoulliNLL
}

func (f *FminBound) settings() *optimize.Settings {
	iters := f.MaxIterations
	if iters <= 0 {
		iters = defaultMaxIterations
	}
	tol := f.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}
	return &optimize.Settings{
		MajorIterations: iters,
		Converger: &optimize.FunctionConverge{
			Absolute:   tol,
			Iterations: 20,
		},
	}
}

func (f *FminBound) fitParticipant(model recovery.FittingModel, bounds []recovery.Bound, p recovery.Participant, rng *rand.Rand, starts int) (recovery.ParticipantFit, error) {
	observed := make([]int, len(p.Trials))
	for i, t := range p.Trials {
		observed[i] = t.Observed
	}
	loss := f.loss()

	// Structural problems (bad trials, missing parameters) surface here as
	// errors instead of as an infinite loss inside the search.
	if _, err := model.ChoiceProbabilities(fromUnit(bounds, 0.5), p.Trials); err != nil {
		return recovery.ParticipantFit{}, err
	}

	nonFinite := false
	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			probs, err := model.ChoiceProbabilities(toParams(bounds, z), p.Trials)
			if err != nil {
				nonFinite = true
				return math.Inf(1)
			}
			v := loss(probs, observed)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				nonFinite = true
				return math.Inf(1)
			}
			return v
		},
	}

	fit := recovery.ParticipantFit{
		Participant:      p.ID,
		NegLogLikelihood: math.Inf(1),
		BIC:              math.Inf(1),
		Trials:           len(p.Trials),
	}
	var best []float64
	bestConverged := false
	var lastErr error
	for s := 0; s < starts; s++ {
		z0 := make([]float64, len(bounds))
		for i := range z0 {
			z0[i] = logit(startMargin + (1-2*startMargin)*rng.Float64())
		}
		result, err := optimize.Minimize(problem, z0, f.settings(), &optimize.NelderMead{})
		if result == nil {
			lastErr = err
			continue
		}
		if math.IsInf(result.F, 0) || math.IsNaN(result.F) {
			lastErr = err
			continue
		}
		if best == nil || result.F < fit.NegLogLikelihood {
			best = append([]float64(nil), result.X...)
			fit.NegLogLikelihood = result.F
			bestConverged = err == nil && converged(result.Status)
			lastErr = err
		}
	}

	if best == nil {
		fit.Parameters = recovery.Parameters{}
		for _, b := range bounds {
			fit.Parameters[b.Name] = math.NaN()
		}
		fit.Warnings = append(fit.Warnings, recovery.FitWarning{
			Code:    recovery.WarnNonFinite,
			Message: fmt.Sprintf("no start reached a finite loss%s", errSuffix(lastErr)),
		})
		return fit, nil
	}

	fit.Parameters = toParams(bounds, best)
	fit.BIC = 2*fit.NegLogLikelihood + float64(len(bounds))*math.Log(float64(max(len(p.Trials), 1)))
	fit.Converged = bestConverged
	if !bestConverged {
		fit.Warnings = append(fit.Warnings, recovery.FitWarning{
			Code:    recovery.WarnNonConvergence,
			Message: fmt.Sprintf("best start did not converge%s", errSuffix(lastErr)),
		})
	}
	if nonFinite {
		fit.Warnings = append(fit.Warnings, recovery.FitWarning{
			Code:    recovery.WarnNonFinite,
			Message: "loss was not finite at some evaluated parameters",
		})
	}
	return fit, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge,
		optimize.StepConvergence, optimize.FunctionThreshold, optimize.GradientThreshold:
		return true
	}
	return false
}

func errSuffix(err error) string {
	if err == nil {
		return ""
	}
	return ": " + err.Error()
}

func checkBounds(bounds []recovery.Bound) error {
	if len(bounds) == 0 {
		return errors.New("model has no free parameters")
	}
	for _, b := range bounds {
		if !(b.Lower < b.Upper) || math.IsInf(b.Lower, 0) || math.IsInf(b.Upper, 0) {
			return fmt.Errorf("parameter %s: invalid bounds [%v, %v]", b.Name, b.Lower, b.Upper)
		}
	}
	return nil
}

// toParams maps an unconstrained point onto the bounds.
func toParams(bounds []recovery.Bound, z []float64) recovery.Parameters {
	out := make(recovery.Parameters, len(bounds))
	for i, b := range bounds {
		out[b.Name] = b.Lower + (b.Upper-b.Lower)*sigmoid(z[i])
	}
	return out
}

func fromUnit(bounds []recovery.Bound, u float64) recovery.Parameters {
	out := make(recovery.Parameters, len(bounds))
	for _, b := range bounds {
		out[b.Name] = b.Lower + (b.Upper-b.Lower)*u
	}
	return out
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func logit(u float64) float64 {
	return math.Log(u / (1 - u))
}
