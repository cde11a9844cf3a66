package recovery

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports an invalid study setup. Nothing has been simulated.
	ErrConfiguration = errors.New("invalid recovery configuration")
	// ErrSimulation reports that a complete synthetic dataset could not be produced.
	ErrSimulation = errors.New("simulation failed")
	// ErrFit reports a hard optimizer failure (not mere non-convergence).
	ErrFit = errors.New("fit failed")
	// ErrAggregationInvariant reports a recovery table with missing or duplicate cells.
	ErrAggregationInvariant = errors.New("recovery table invariant violated")
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// SimulationError carries the cell a simulation failed in.
type SimulationError struct {
	Model      string
	Repetition int
	Err        error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulating %s in run %d: %v", e.Model, e.Repetition, e.Err)
}

func (e *SimulationError) Unwrap() []error { return []error{ErrSimulation, e.Err} }

// FitError carries the cell an optimizer call failed in.
type FitError struct {
	Generating string
	Fitting    string
	Repetition int
	Err        error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("fitting %s to %s data in run %d: %v", e.Fitting, e.Generating, e.Repetition, e.Err)
}

func (e *FitError) Unwrap() []error { return []error{ErrFit, e.Err} }
