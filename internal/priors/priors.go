// Package priors provides bounded prior distributions over model parameters.
package priors

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mwiater/modrec/internal/recovery"
	"gonum.org/v1/gonum/stat/distuv"
)

// Kind names the distribution family of a prior.
type Kind string

const (
	Uniform Kind = "uniform"
	// Beta is scaled from [0,1] onto the prior's bounds.
	Beta Kind = "beta"
	// Normal is truncated to the prior's bounds by rejection.
	Normal Kind = "normal"
	// Gamma is truncated to the prior's bounds by rejection. A is shape, B is rate.
	Gamma Kind = "gamma"
)

// maxRejections bounds rejection sampling for truncated priors.
const maxRejections = 10000

// Prior is the distribution of one free parameter.
type Prior struct {
	Name  string
	Kind  Kind
	Lower float64
	Upper float64
	A     float64
	B     float64
}

func (p Prior) validate() error {
	if p.Name == "" {
		return fmt.Errorf("prior has no name")
	}
	if math.IsNaN(p.Lower) || math.IsNaN(p.Upper) || !(p.Lower < p.Upper) {
		return fmt.Errorf("prior %s: lower bound %v must be below upper bound %v", p.Name, p.Lower, p.Upper)
	}
	switch p.Kind {
	case Uniform:
	case Beta, Gamma:
		if p.A <= 0 || p.B <= 0 {
			return fmt.Errorf("prior %s: %s needs positive shape parameters", p.Name, p.Kind)
		}
	case Normal:
		if p.B <= 0 {
			return fmt.Errorf("prior %s: normal needs a positive standard deviation", p.Name)
		}
	default:
		return fmt.Errorf("prior %s: unknown kind %q", p.Name, p.Kind)
	}
	return nil
}

func (p Prior) draw(rng *rand.Rand) (float64, error) {
	switch p.Kind {
	case Uniform:
		return distuv.Uniform{Min: p.Lower, Max: p.Upper, Src: rng}.Rand(), nil
	case Beta:
		x := distuv.Beta{Alpha: p.A, Beta: p.B, Src: rng}.Rand()
		return p.Lower + (p.Upper-p.Lower)*x, nil
	case Normal:
		return p.truncated(distuv.Normal{Mu: p.A, Sigma: p.B, Src: rng})
	case Gamma:
		return p.truncated(distuv.Gamma{Alpha: p.A, Beta: p.B, Src: rng})
	}
	return 0, fmt.Errorf("prior %s: unknown kind %q", p.Name, p.Kind)
}

type sampler interface {
	Rand() float64
}

func (p Prior) truncated(d sampler) (float64, error) {
	for i := 0; i < maxRejections; i++ {
		if x := d.Rand(); x >= p.Lower && x <= p.Upper {
			return x, nil
		}
	}
	return 0, fmt.Errorf("prior %s: no draw within [%v, %v] after %d attempts", p.Name, p.Lower, p.Upper, maxRejections)
}

// Set is a ParameterSet made of independent per-parameter priors.
type Set struct {
	priors []Prior
}

// NewSet validates the priors and returns a set that samples them in order.
func NewSet(priors ...Prior) (*Set, error) {
	if len(priors) == 0 {
		return nil, fmt.Errorf("parameter set needs at least one prior")
	}
	seen := make(map[string]bool, len(priors))
	for _, p := range priors {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate prior %q", p.Name)
		}
		seen[p.Name] = true
	}
	return &Set{priors: append([]Prior(nil), priors...)}, nil
}

// MustSet is NewSet for static model definitions.
func MustSet(priors ...Prior) *Set {
	s, err := NewSet(priors...)
	if err != nil {
		panic(err)
	}
	return s
}

// Names returns the parameter names in declaration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.priors))
	for i, p := range s.priors {
		names[i] = p.Name
	}
	return names
}

// Bounds returns the search bounds matching the priors' supports.
func (s *Set) Bounds() []recovery.Bound {
	out := make([]recovery.Bound, len(s.priors))
	for i, p := range s.priors {
		out[i] = recovery.Bound{Name: p.Name, Lower: p.Lower, Upper: p.Upper}
	}
	return out
}

// Sample draws n independent parameter vectors using only rng.
func (s *Set) Sample(n int, rng *rand.Rand) ([]recovery.Parameters, error) {
	if n < 0 {
		return nil, fmt.Errorf("cannot sample %d parameter vectors", n)
	}
	if rng == nil {
		return nil, fmt.Errorf("sampling requires a random source")
	}
	out := make([]recovery.Parameters, n)
	for i := range out {
		params := make(recovery.Parameters, len(s.priors))
		for _, p := range s.priors {
			x, err := p.draw(rng)
			if err != nil {
				return nil, err
			}
			params[p.Name] = x
		}
		out[i] = params
	}
	return out, nil
}
