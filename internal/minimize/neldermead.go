package minimize

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// NelderMead minimizes with gonum's derivative-free Nelder-Mead method.
// The bounded variable x is expressed through an unconstrained y as
//
//	x = lo + (hi-lo) * (1 + tanh(y)) / 2
//
// so every evaluation stays strictly inside (lo, hi).
type NelderMead struct {
	// Start is the initial guess for x. Zero or out-of-range values
	// start from the midpoint of the interval.
	Start float64
}

// Minimize implements Minimizer.
func (nm NelderMead) Minimize(f Func, lo, hi float64, opts Options) (Result, error) {
	if err := checkBounds(lo, hi); err != nil {
		return Result{}, err
	}
	opts = opts.withDefaults()

	width := hi - lo
	toX := func(y float64) float64 {
		x := lo + 0.5*width*(1+math.Tanh(y))
		// tanh saturates to +-1 for large |y|; stay off the endpoints.
		return math.Min(math.Max(x, math.Nextafter(lo, hi)), math.Nextafter(hi, lo))
	}

	start := nm.Start
	if start <= lo || start >= hi {
		start = lo + 0.5*width
	}
	// Keep values slightly away from the tanh asymptotes.
	y0 := math.Atanh(math.Max(-0.9999, math.Min(0.9999, 2*(start-lo)/width-1)))

	problem := optimize.Problem{
		Func: func(y []float64) float64 {
			return eval(f, toX(y[0]))
		},
	}
	settings := optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.Tolerance * opts.Tolerance,
			Iterations: 20,
		},
	}

	res, err := optimize.Minimize(problem, []float64{y0}, &settings, &optimize.NelderMead{})
	if res == nil {
		return Result{}, err
	}

	out := Result{
		X:           toX(res.X[0]),
		F:           res.F,
		Iterations:  res.Stats.MajorIterations,
		Evaluations: res.Stats.FuncEvaluations,
	}
	out.Converged = err == nil && converged(res.Status) && !math.IsInf(out.F, 1)
	return out, nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge,
		optimize.StepConvergence, optimize.FunctionThreshold:
		return true
	default:
		return false
	}
}
