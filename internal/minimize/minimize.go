package minimize

import (
	"errors"
	"fmt"
	"math"
)

// Default search settings.
const (
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 100
)

// ErrInvalidBounds is returned when the search interval is empty or not finite.
var ErrInvalidBounds = errors.New("minimize: invalid bounds")

// Func is a scalar objective.
type Func func(x float64) float64

// Options controls a single minimization.
// Zero values select the defaults.
type Options struct {
	Tolerance     float64 // absolute tolerance on x
	MaxIterations int     // hard cap on iterations
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}

// Result is the outcome of a bounded minimization.
type Result struct {
	X           float64 // best abscissa found
	F           float64 // f(X)
	Iterations  int
	Evaluations int
	Converged   bool
}

// String formats the result for diagnostics.
func (r Result) String() string {
	return fmt.Sprintf("x=%g f=%g iter=%d evals=%d converged=%t",
		r.X, r.F, r.Iterations, r.Evaluations, r.Converged)
}

// Minimizer finds a minimum of f on [lo, hi].
// Implementations must terminate within opts.MaxIterations and must be
// safe for concurrent use.
type Minimizer interface {
	Minimize(f Func, lo, hi float64, opts Options) (Result, error)
}

// Minimizer names accepted by ByName.
const (
	MethodBrent      = "brent"
	MethodNelderMead = "nelder-mead"
)

// ValidMethods lists the accepted minimizer names.
var ValidMethods = []string{MethodBrent, MethodNelderMead}

// ByName returns the minimizer registered under name.
// An empty name selects Brent.
func ByName(name string) (Minimizer, error) {
	switch name {
	case "", MethodBrent:
		return Brent{}, nil
	case MethodNelderMead:
		return NelderMead{}, nil
	default:
		return nil, fmt.Errorf("unknown minimizer %q (valid: %s, %s)", name, MethodBrent, MethodNelderMead)
	}
}

func checkBounds(lo, hi float64) error {
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return fmt.Errorf("%w: [%g, %g] not finite", ErrInvalidBounds, lo, hi)
	}
	if !(lo < hi) {
		return fmt.Errorf("%w: lo=%g must be below hi=%g", ErrInvalidBounds, lo, hi)
	}
	return nil
}

// eval calls f and maps NaN to +Inf so comparisons stay ordered.
func eval(f Func, x float64) float64 {
	v := f(x)
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}
