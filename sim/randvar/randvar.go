// Package randvar provides the random variables used to synthesize
// workloads: instruction costs, inter-arrival times and sporadic jitter.
package randvar

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrUnbounded is returned by Max/Min of distributions with infinite support.
var ErrUnbounded = errors.New("distribution is unbounded")

// Var is a source of real numbers.
type Var interface {
	// Get draws the next value.
	Get() float64
	// Max returns the largest value Get can return.
	Max() (float64, error)
	// Min returns the smallest value Get can return.
	Min() (float64, error)
	String() string
}

// Delta always returns the same value.
type Delta struct {
	V float64
}

// NewDelta creates a constant variable.
func NewDelta(v float64) *Delta { return &Delta{V: v} }

func (d *Delta) Get() float64 { return d.V }
func (d *Delta) Max() (float64, error) { return d.V, nil }
func (d *Delta) Min() (float64, error) { return d.V, nil }
func (d *Delta) String() string { return fmt.Sprintf("delta(%g)", d.V) }

// Uniform draws from [min, max).
type Uniform struct {
	dist distuv.Uniform
}

// NewUniform creates a uniform variable reading from src.
func NewUniform(min, max float64, src rand.Source) *Uniform {
	return &Uniform{dist: distuv.Uniform{Min: min, Max: max, Src: src}}
}

func (u *Uniform) Get() float64 { return u.dist.Rand() }
func (u *Uniform) Max() (float64, error) { return u.dist.Max, nil }
func (u *Uniform) Min() (float64, error) { return u.dist.Min, nil }
func (u *Uniform) String() string { return fmt.Sprintf("unif(%g,%g)", u.dist.Min, u.dist.Max) }

// Exponential draws with the given mean.
type Exponential struct {
	mean float64
	dist distuv.Exponential
}

// NewExponential creates an exponential variable with the given mean.
func NewExponential(mean float64, src rand.Source) *Exponential {
	return &Exponential{mean: mean, dist: distuv.Exponential{Rate: 1 / mean, Src: src}}
}

func (e *Exponential) Get() float64 { return e.dist.Rand() }
func (e *Exponential) Max() (float64, error) { return 0, fmt.Errorf("%v: %w", e, ErrUnbounded) }
func (e *Exponential) Min() (float64, error) { return 0, nil }
func (e *Exponential) String() string { return fmt.Sprintf("exp(%g)", e.mean) }

// Normal draws from a gaussian.
type Normal struct {
	dist distuv.Normal
}

// NewNormal creates a normal variable.
func NewNormal(mu, sigma float64, src rand.Source) *Normal {
	return &Normal{dist: distuv.Normal{Mu: mu, Sigma: sigma, Src: src}}
}

func (n *Normal) Get() float64 { return n.dist.Rand() }
func (n *Normal) Max() (float64, error) { return 0, fmt.Errorf("%v: %w", n, ErrUnbounded) }
func (n *Normal) Min() (float64, error) { return 0, fmt.Errorf("%v: %w", n, ErrUnbounded) }
func (n *Normal) String() string { return fmt.Sprintf("normal(%g,%g)", n.dist.Mu, n.dist.Sigma) }

// Pareto draws from a Pareto distribution with scale m and shape k.
type Pareto struct {
	dist distuv.Pareto
}

// NewPareto creates a Pareto variable.
func NewPareto(m, k float64, src rand.Source) *Pareto {
	return &Pareto{dist: distuv.Pareto{Xm: m, Alpha: k, Src: src}}
}

func (p *Pareto) Get() float64 { return p.dist.Rand() }
func (p *Pareto) Max() (float64, error) { return 0, fmt.Errorf("%v: %w", p, ErrUnbounded) }
func (p *Pareto) Min() (float64, error) { return p.dist.Xm, nil }
func (p *Pareto) String() string { return fmt.Sprintf("pareto(%g,%g)", p.dist.Xm, p.dist.Alpha) }

// Weibull draws from a Weibull distribution with scale l and shape k.
type Weibull struct {
	dist distuv.Weibull
}

// NewWeibull creates a Weibull variable.
func NewWeibull(l, k float64, src rand.Source) *Weibull {
	return &Weibull{dist: distuv.Weibull{Lambda: l, K: k, Src: src}}
}

func (w *Weibull) Get() float64 { return w.dist.Rand() }
func (w *Weibull) Max() (float64, error) { return 0, fmt.Errorf("%v: %w", w, ErrUnbounded) }
func (w *Weibull) Min() (float64, error) { return 0, nil }
func (w *Weibull) String() string { return fmt.Sprintf("weibull(%g,%g)", w.dist.Lambda, w.dist.K) }

// Poisson draws integer counts with mean lambda.
type Poisson struct {
	dist distuv.Poisson
}

// NewPoisson creates a Poisson variable.
func NewPoisson(lambda float64, src rand.Source) *Poisson {
	return &Poisson{dist: distuv.Poisson{Lambda: lambda, Src: src}}
}

func (p *Poisson) Get() float64 { return p.dist.Rand() }
func (p *Poisson) Max() (float64, error) { return 0, fmt.Errorf("%v: %w", p, ErrUnbounded) }
func (p *Poisson) Min() (float64, error) { return 0, nil }
func (p *Poisson) String() string { return fmt.Sprintf("poisson(%g)", p.dist.Lambda) }

// Sequence cycles through a fixed list of values.
type Sequence struct {
	values []float64
	next   int
}

// NewSequence creates a deterministic cyclic variable. values must not be empty.
func NewSequence(values []float64) *Sequence {
	return &Sequence{values: append([]float64(nil), values...)}
}

func (s *Sequence) Get() float64 {
	v := s.values[s.next]
	s.next = (s.next + 1) % len(s.values)
	return v
}

func (s *Sequence) Max() (float64, error) {
	m := s.values[0]
	for _, v := range s.values[1:] {
		m = max(m, v)
	}
	return m, nil
}

func (s *Sequence) Min() (float64, error) {
	m := s.values[0]
	for _, v := range s.values[1:] {
		m = min(m, v)
	}
	return m, nil
}

func (s *Sequence) String() string { return fmt.Sprintf("det%v", s.values) }
