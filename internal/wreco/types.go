package wreco

import (
	"errors"
	"fmt"
	"math"

	"go-hep.org/x/hep/fmom"

	"github.com/banshee-data/wreco/internal/minimize"
)

// DefaultWMass is the nominal W boson mass in GeV.
const DefaultWMass = 80.4

var (
	// ErrDomain marks algebraically undefined input (pt <= 0, px == 0,
	// non-finite components, or an empty search window).
	ErrDomain = errors.New("wreco: input outside solver domain")
	// ErrNumerical marks a complex-root fit where neither branch converged.
	ErrNumerical = errors.New("wreco: minimizer did not converge")
	// ErrEmptyInput marks a missing lepton or MET measurement.
	ErrEmptyInput = errors.New("wreco: missing measurement")
)

// Root tells which branch of the pz solution produced a candidate.
type Root string

const (
	RealRoot    Root = "real"    // exact quadratic solution
	ComplexRoot Root = "complex" // approximate solution from the transverse fit
)

// MissingET is the measured missing transverse momentum.
// It has no longitudinal component and no energy.
type MissingET struct {
	Px float64
	Py float64
}

// NewMissingETPtPhi builds a MissingET from its magnitude and azimuth.
func NewMissingETPtPhi(pt, phi float64) *MissingET {
	return &MissingET{Px: pt * math.Cos(phi), Py: pt * math.Sin(phi)}
}

// Pt returns the MET magnitude.
func (m *MissingET) Pt() float64 { return math.Hypot(m.Px, m.Py) }

// Phi returns the MET azimuth in (-pi, pi].
func (m *MissingET) Phi() float64 { return math.Atan2(m.Py, m.Px) }

// P4 returns the MET as a massless four-vector in the transverse plane.
func (m *MissingET) P4() fmom.PxPyPzE {
	return fmom.NewPxPyPzE(m.Px, m.Py, 0, m.Pt())
}

func (m *MissingET) finite() bool {
	return isFinite(m.Px) && isFinite(m.Py)
}

// Branch names the constraint-curve branch chosen by the transverse fit.
type Branch string

const (
	BranchPlus  Branch = "plus"
	BranchMinus Branch = "minus"
)

// Fit describes how a complex-root candidate was found.
type Fit struct {
	Branch   Branch
	Result   minimize.Result // winning branch
	Plus     minimize.Result
	Minus    minimize.Result
	Distance float64 // transverse distance between fitted and measured MET
}

// Neutrino is a reconstructed neutrino candidate.
type Neutrino struct {
	fmom.PxPyPzE
	Root Root
	Fit  *Fit // nil for real roots
}

// P4 returns the candidate as an fmom.P4.
func (n *Neutrino) P4() fmom.P4 { return &n.PxPyPzE }

// String formats the candidate for diagnostics.
func (n Neutrino) String() string {
	return fmt.Sprintf("nu{%s px=%.4f py=%.4f pz=%.4f e=%.4f}",
		n.Root, n.PxPyPzE.Px(), n.PxPyPzE.Py(), n.PxPyPzE.Pz(), n.PxPyPzE.E())
}

// WCandidate is a W boson candidate: lepton plus one neutrino candidate.
type WCandidate struct {
	fmom.PxPyPzE
	Neutrino Neutrino
}

// P4 returns the candidate as an fmom.P4.
func (w *WCandidate) P4() fmom.P4 { return &w.PxPyPzE }

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
