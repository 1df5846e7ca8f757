package wreco

import (
	"errors"
	"fmt"
	"math"

	"go-hep.org/x/hep/fmom"

	"github.com/banshee-data/wreco/internal/monitoring"
)

// Reconstruction is the per-event output of Builder.Build.
type Reconstruction struct {
	METPt    float64 // MET magnitude
	MTW      float64 // W transverse mass
	DeltaPhi float64 // lepton-MET azimuthal difference in (-pi, pi]

	Neutrinos  []Neutrino
	Candidates []WCandidate

	// Err is the solver error when no candidate could be built. It is
	// reported but not fatal: the scalars above are still valid.
	Err error
}

// Best returns the preferred W candidate: the smallest |pz| solution for
// real roots, the single fitted solution for complex roots.
func (r *Reconstruction) Best() (WCandidate, bool) {
	if len(r.Candidates) == 0 {
		return WCandidate{}, false
	}
	return r.Candidates[0], true
}

// Builder combines Solver output with the lepton into W candidates and
// the transverse scalars written out per event.
type Builder struct {
	solver *Solver
	diag   *monitoring.Diagnostics
}

// NewBuilder returns a Builder using solver. diag may be nil.
func NewBuilder(solver *Solver, diag *monitoring.Diagnostics) *Builder {
	if solver == nil {
		solver = NewSolver()
	}
	return &Builder{solver: solver, diag: diag}
}

// Solver returns the underlying solver.
func (b *Builder) Solver() *Solver { return b.solver }

// Build reconstructs one event. Only a missing lepton or MET is returned
// as an error; solver failures land in Reconstruction.Err.
func (b *Builder) Build(lep fmom.P4, met *MissingET) (Reconstruction, error) {
	if lep == nil || met == nil {
		err := fmt.Errorf("%w: lepton=%t met=%t", ErrEmptyInput, lep != nil, met != nil)
		b.record(err)
		return Reconstruction{Err: err}, err
	}

	var lp4 fmom.PxPyPzE
	lp4.Set(lep)
	mp4 := met.P4()

	rec := Reconstruction{METPt: met.Pt()}
	rec.DeltaPhi = wrapPhi(fmom.DeltaPhi(&lp4, &mp4))
	rec.MTW = math.Sqrt(2 * lp4.Pt() * rec.METPt * (1 - math.Cos(rec.DeltaPhi)))

	nus, err := b.solver.Solve(&lp4, met)
	if err != nil {
		rec.Err = err
		b.record(err)
		logf("no W candidates: %v", err)
		return rec, nil
	}

	rec.Neutrinos = nus
	rec.Candidates = make([]WCandidate, 0, len(nus))
	for _, nu := range nus {
		var w fmom.PxPyPzE
		w.Set(fmom.Add(&lp4, &nu.PxPyPzE))
		rec.Candidates = append(rec.Candidates, WCandidate{PxPyPzE: w, Neutrino: nu})
	}
	b.record(nil)
	if len(nus) > 0 && nus[0].Root == ComplexRoot {
		b.diag.Add(monitoring.ComplexRoots)
	}
	return rec, nil
}

func (b *Builder) record(err error) {
	switch {
	case err == nil:
		b.diag.Add(monitoring.Reconstructed)
	case errors.Is(err, ErrEmptyInput):
		b.diag.Add(monitoring.EmptyInput)
	case errors.Is(err, ErrNumerical):
		b.diag.Add(monitoring.NumericalFailures)
	default:
		b.diag.Add(monitoring.DomainFailures)
	}
}

// wrapPhi maps an angle into (-pi, pi].
func wrapPhi(phi float64) float64 {
	phi = math.Remainder(phi, 2*math.Pi)
	if phi <= -math.Pi {
		phi += 2 * math.Pi
	}
	return phi
}
