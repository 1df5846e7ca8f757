// Package minimize provides bounded one-dimensional scalar minimizers.
//
// Responsibilities: locate a minimum of a continuous f(x) on a closed
// interval [lo, hi] within a capped number of iterations, and report
// whether the requested tolerance was reached.
// Key types: Minimizer, Options, Result.
//
// Two implementations are provided. Brent is the default: a deterministic
// bounded Brent search (golden section plus parabolic interpolation) that
// never evaluates f outside (lo, hi). NelderMead delegates to gonum's
// optimize package on a tanh-mapped unconstrained variable.
//
// Dependency rule: no physics knowledge lives here.
package minimize
