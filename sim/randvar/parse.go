package randvar

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// ErrSyntax is returned for malformed variable expressions.
var ErrSyntax = errors.New("invalid random variable")

type constructor func(args []float64, src rand.Source) (Var, error)

var constructors = map[string]constructor{
	"delta": func(a []float64, _ rand.Source) (Var, error) {
		if len(a) != 1 {
			return nil, arity("delta", 1, a)
		}
		return NewDelta(a[0]), nil
	},
	"unif": func(a []float64, src rand.Source) (Var, error) {
		if len(a) != 2 {
			return nil, arity("unif", 2, a)
		}
		if a[0] > a[1] {
			return nil, fmt.Errorf("unif(%g,%g): min above max: %w", a[0], a[1], ErrSyntax)
		}
		return NewUniform(a[0], a[1], src), nil
	},
	"exp": func(a []float64, src rand.Source) (Var, error) {
		if len(a) != 1 {
			return nil, arity("exp", 1, a)
		}
		if a[0] <= 0 {
			return nil, fmt.Errorf("exp(%g): mean must be positive: %w", a[0], ErrSyntax)
		}
		return NewExponential(a[0], src), nil
	},
	"normal": func(a []float64, src rand.Source) (Var, error) {
		if len(a) != 2 {
			return nil, arity("normal", 2, a)
		}
		return NewNormal(a[0], a[1], src), nil
	},
	"pareto": func(a []float64, src rand.Source) (Var, error) {
		if len(a) != 2 {
			return nil, arity("pareto", 2, a)
		}
		return NewPareto(a[0], a[1], src), nil
	},
	"weibull": func(a []float64, src rand.Source) (Var, error) {
		if len(a) != 2 {
			return nil, arity("weibull", 2, a)
		}
		return NewWeibull(a[0], a[1], src), nil
	},
	"poisson": func(a []float64, src rand.Source) (Var, error) {
		if len(a) != 1 {
			return nil, arity("poisson", 1, a)
		}
		return NewPoisson(a[0], src), nil
	},
	"det": func(a []float64, _ rand.Source) (Var, error) {
		if len(a) == 0 {
			return nil, arity("det", 1, a)
		}
		return NewSequence(a), nil
	},
}

func arity(name string, want int, got []float64) error {
	return fmt.Errorf("%s expects %d argument(s), got %d: %w", name, want, len(got), ErrSyntax)
}

// Parse builds a variable from its textual form, e.g. "exp(100)",
// "unif(1,5)" or a bare number (a Delta). Random variables draw from src.
func Parse(expr string, src rand.Source) (Var, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty expression: %w", ErrSyntax)
	}
	if v, err := strconv.ParseFloat(expr, 64); err == nil {
		return NewDelta(v), nil
	}

	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return nil, fmt.Errorf("%q: %w", expr, ErrSyntax)
	}
	name := strings.TrimSpace(expr[:open])
	build, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("%q: unknown distribution %q: %w", expr, name, ErrSyntax)
	}

	var args []float64
	body := strings.TrimSpace(expr[open+1 : len(expr)-1])
	if body != "" {
		for _, field := range strings.Split(body, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%q: argument %q: %w", expr, field, ErrSyntax)
			}
			args = append(args, v)
		}
	}
	return build(args, src)
}

// Names returns the supported distribution names.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	return names
}
