package wreco

import (
	"fmt"
	"math"
	"sort"

	"go-hep.org/x/hep/fmom"

	"github.com/banshee-data/wreco/internal/minimize"
	"github.com/banshee-data/wreco/internal/monitoring"
)

// Default complex-branch search settings.
const (
	// DefaultBoundaryMargin keeps the search off the point where the
	// constraint-curve radicand MW^2 + 4*lx*px vanishes.
	DefaultBoundaryMargin = 1e-2
	// DefaultSearchRange is the half-width of the px search window.
	DefaultSearchRange = 9999.0
	// DefaultScanPoints is the size of the coarse grid sampled on each
	// branch before the minimizer refines the lowest local minima.
	DefaultScanPoints = 2000
)

// maxStarts caps the number of coarse local minima refined per branch.
const maxStarts = 8

var logf = monitoring.Prefixed("wreco")

// degeneratePx is the |px|/pt fraction below which the lepton px is
// treated as zero. cos(pi/2) evaluates to ~6e-17, not 0.
const degeneratePx = 1e-9

// Solver computes neutrino candidates under the W mass constraint.
// A Solver is immutable after NewSolver and safe for concurrent use.
type Solver struct {
	wMass     float64
	minimizer minimize.Minimizer
	fitOpts   minimize.Options
	margin    float64
	window    float64
	scan      int
	debug     bool
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithWMass overrides the nominal W mass (same unit as the momenta).
func WithWMass(m float64) SolverOption {
	return func(s *Solver) { s.wMass = m }
}

// WithMinimizer sets the bounded minimizer used on the complex branch.
func WithMinimizer(m minimize.Minimizer) SolverOption {
	return func(s *Solver) { s.minimizer = m }
}

// WithFitOptions sets the minimizer tolerance and iteration cap.
func WithFitOptions(o minimize.Options) SolverOption {
	return func(s *Solver) { s.fitOpts = o }
}

// WithBoundaryMargin sets the distance kept from the curve's domain edge.
func WithBoundaryMargin(margin float64) SolverOption {
	return func(s *Solver) { s.margin = margin }
}

// WithSearchRange sets the half-width of the px search window.
func WithSearchRange(r float64) SolverOption {
	return func(s *Solver) { s.window = r }
}

// WithScanPoints sets the coarse grid size per branch. Values below 3
// disable the scan and hand the whole window to the minimizer.
func WithScanPoints(n int) SolverOption {
	return func(s *Solver) { s.scan = n }
}

// WithDebug logs both branch fits and the chosen branch.
func WithDebug(debug bool) SolverOption {
	return func(s *Solver) { s.debug = debug }
}

// NewSolver returns a Solver with the defaults overridden by opts.
func NewSolver(opts ...SolverOption) *Solver {
	s := &Solver{
		wMass:     DefaultWMass,
		minimizer: minimize.Brent{},
		margin:    DefaultBoundaryMargin,
		window:    DefaultSearchRange,
		scan:      DefaultScanPoints,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WMass returns the nominal W mass used by the solver.
func (s *Solver) WMass() float64 { return s.wMass }

// lepton holds the lepton components used by the solver.
type lepton struct {
	px, py, pz, e float64
	pt            float64
}

func newLepton(p fmom.P4) (lepton, error) {
	l := lepton{px: p.Px(), py: p.Py(), pz: p.Pz(), e: p.E()}
	if !isFinite(l.px) || !isFinite(l.py) || !isFinite(l.pz) || !isFinite(l.e) {
		return l, fmt.Errorf("%w: lepton has non-finite components (%g, %g, %g, %g)", ErrDomain, l.px, l.py, l.pz, l.e)
	}
	l.pt = math.Hypot(l.px, l.py)
	if !(l.pt > 0) {
		return l, fmt.Errorf("%w: lepton pt=%g must be positive", ErrDomain, l.pt)
	}
	if math.Abs(l.px) <= degeneratePx*l.pt {
		return l, fmt.Errorf("%w: lepton px=%g is zero", ErrDomain, l.px)
	}
	return l, nil
}

// Solve returns the neutrino candidates for one lepton and MET.
//
// Real roots yield exactly two candidates ordered by |pz| (the first is
// never larger); complex roots yield exactly one. On error no candidates
// are returned and the error wraps ErrEmptyInput, ErrDomain or
// ErrNumerical.
func (s *Solver) Solve(lep fmom.P4, met *MissingET) ([]Neutrino, error) {
	if lep == nil || met == nil {
		return nil, fmt.Errorf("%w: lepton=%t met=%t", ErrEmptyInput, lep != nil, met != nil)
	}
	l, err := newLepton(lep)
	if err != nil {
		return nil, err
	}
	if !met.finite() {
		return nil, fmt.Errorf("%w: met has non-finite components (%g, %g)", ErrDomain, met.Px, met.Py)
	}

	mw2 := s.wMass * s.wMass
	pt2 := l.pt * l.pt
	metPt2 := met.Px*met.Px + met.Py*met.Py

	alpha := mw2/2 + l.px*met.Px + l.py*met.Py
	rad := (alpha*alpha*l.pz*l.pz)/(pt2*pt2) - (l.e*l.e*metPt2-alpha*alpha)/pt2

	if rad >= 0 {
		return s.realRoots(l, met, alpha, rad, metPt2), nil
	}
	nu, err := s.complexRoot(l, met)
	if err != nil {
		return nil, err
	}
	return []Neutrino{nu}, nil
}

func (s *Solver) realRoots(l lepton, met *MissingET, alpha, rad, metPt2 float64) []Neutrino {
	base := l.pz * alpha / (l.pt * l.pt)
	root := math.Sqrt(rad)
	pz1, pz2 := base+root, base-root
	if math.Abs(pz1) > math.Abs(pz2) {
		pz1, pz2 = pz2, pz1
	}

	return []Neutrino{
		{PxPyPzE: fmom.NewPxPyPzE(met.Px, met.Py, pz1, math.Sqrt(metPt2+pz1*pz1)), Root: RealRoot},
		{PxPyPzE: fmom.NewPxPyPzE(met.Px, met.Py, pz2, math.Sqrt(metPt2+pz2*pz2)), Root: RealRoot},
	}
}

// curve evaluates one branch of the constraint py(px) on which the W
// transverse mass equals MW: sign=+1 for the plus branch, -1 for minus.
func (s *Solver) curve(l lepton, x, sign float64) float64 {
	mw := s.wMass
	r := mw*mw + 4*l.px*x
	return (mw*mw*l.py + 2*l.px*l.py*x + sign*mw*l.pt*math.Sqrt(r)) / (2 * l.px * l.px)
}

// searchWindow returns the admissible px interval, clipped so the curve radicand
// stays positive by at least the configured margin.
func (s *Solver) searchWindow(l lepton) (float64, float64) {
	lo, hi := -s.window, s.window
	bound := -(s.wMass * s.wMass) / (4 * l.px)
	if bound > 0 {
		hi = bound - s.margin
	} else {
		lo = bound + s.margin
	}
	return lo, hi
}

func (s *Solver) complexRoot(l lepton, met *MissingET) (Neutrino, error) {
	lo, hi := s.searchWindow(l)
	if !(lo < hi) {
		return Neutrino{}, fmt.Errorf("%w: empty px search window [%g, %g]", ErrDomain, lo, hi)
	}

	distance := func(sign float64) minimize.Func {
		return func(x float64) float64 {
			return math.Hypot(x-met.Px, s.curve(l, x, sign)-met.Py)
		}
	}

	plus, err := s.fitBranch(distance(+1), lo, hi)
	if err != nil {
		return Neutrino{}, fmt.Errorf("%w: plus branch: %v", ErrDomain, err)
	}
	minus, err := s.fitBranch(distance(-1), lo, hi)
	if err != nil {
		return Neutrino{}, fmt.Errorf("%w: minus branch: %v", ErrDomain, err)
	}

	fit := &Fit{Plus: plus, Minus: minus}
	var ok bool
	fit.Branch, fit.Result, ok = chooseBranch(plus, minus)
	if !ok {
		return Neutrino{}, fmt.Errorf("%w: plus(%s) minus(%s)", ErrNumerical, plus, minus)
	}

	sign := 1.0
	if fit.Branch == BranchMinus {
		sign = -1
	}
	px := fit.Result.X
	py := s.curve(l, px, sign)
	alpha := s.wMass*s.wMass/2 + l.px*px + l.py*py
	pz := l.pz / (l.pt * l.pt) * alpha
	fit.Distance = math.Hypot(px-met.Px, py-met.Py)

	if s.debug {
		logf("plus fit %s", plus)
		logf("minus fit %s", minus)
		logf("choice %s distance=%.6g", fit.Branch, fit.Distance)
	}

	return Neutrino{
		PxPyPzE: fmom.NewPxPyPzE(px, py, pz, math.Sqrt(px*px+py*py+pz*pz)),
		Root:    ComplexRoot,
		Fit:     fit,
	}, nil
}

// chooseBranch picks the converged branch with the smaller distance.
// Ties go to the minus branch. ok is false when neither converged.
func chooseBranch(plus, minus minimize.Result) (b Branch, res minimize.Result, ok bool) {
	switch {
	case plus.Converged && minus.Converged:
		if plus.F < minus.F {
			return BranchPlus, plus, true
		}
		return BranchMinus, minus, true
	case plus.Converged:
		return BranchPlus, plus, true
	case minus.Converged:
		return BranchMinus, minus, true
	}
	return "", minimize.Result{}, false
}

// fitBranch refines every bracket returned by scanBrackets and keeps the
// best result, preferring converged fits. Evaluations include the scan.
func (s *Solver) fitBranch(f minimize.Func, lo, hi float64) (minimize.Result, error) {
	brackets, evals := scanBrackets(f, lo, hi, s.scan)
	var best minimize.Result
	for i, br := range brackets {
		res, err := s.minimizer.Minimize(f, br[0], br[1], s.fitOpts)
		if err != nil {
			return minimize.Result{}, err
		}
		evals += res.Evaluations
		if i == 0 || better(res, best) {
			best = res
		}
	}
	best.Evaluations = evals
	return best, nil
}

func better(a, b minimize.Result) bool {
	if a.Converged != b.Converged {
		return a.Converged
	}
	return a.F < b.F
}

// scanBrackets samples f on n evenly spaced points over [lo, hi] and
// returns the intervals around its lowest local minima, lowest first.
// Each interval holds one basin, so a local minimizer refining it cannot
// be drawn into another.
func scanBrackets(f minimize.Func, lo, hi float64, n int) ([][2]float64, int) {
	if n < 3 {
		return [][2]float64{{lo, hi}}, 0
	}
	step := (hi - lo) / float64(n-1)
	at := func(i int) float64 {
		if i == n-1 {
			return hi
		}
		return lo + float64(i)*step
	}
	vals := make([]float64, n)
	for i := range vals {
		v := f(at(i))
		if math.IsNaN(v) {
			v = math.Inf(1)
		}
		vals[i] = v
	}

	var minima []int
	for i, v := range vals {
		if math.IsInf(v, 1) {
			continue
		}
		if (i == 0 || v <= vals[i-1]) && (i == n-1 || v < vals[i+1]) {
			minima = append(minima, i)
		}
	}
	if len(minima) == 0 {
		return [][2]float64{{lo, hi}}, n
	}
	sort.SliceStable(minima, func(a, b int) bool { return vals[minima[a]] < vals[minima[b]] })
	if len(minima) > maxStarts {
		minima = minima[:maxStarts]
	}

	brackets := make([][2]float64, len(minima))
	for k, i := range minima {
		brackets[k] = [2]float64{at(max(i-1, 0)), at(min(i+1, n-1))}
	}
	return brackets, n
}
