// Package testutil provides shared test fixtures and assertions for the
// reconstruction packages.
//
// This package centralises kinematic fixtures so tests across packages
// build leptons and tolerances the same way.
package testutil

import (
	"math"
	"testing"

	"go-hep.org/x/hep/fmom"
)

// MuonMass is the muon mass in GeV.
const MuonMass = 0.1056583755

// Lepton returns a lepton four-vector from (pt, eta, phi, mass).
func Lepton(pt, eta, phi, mass float64) fmom.P4 {
	p := fmom.NewPtEtaPhiM(pt, eta, phi, mass)
	return &p
}

// Mass returns the invariant mass of p, computed from its components.
func Mass(p fmom.P4) float64 {
	m2 := p.E()*p.E() - p.Px()*p.Px() - p.Py()*p.Py() - p.Pz()*p.Pz()
	if m2 < 0 {
		return -math.Sqrt(-m2)
	}
	return math.Sqrt(m2)
}

// AssertClose fails the test if |got-want| > tol.
func AssertClose(t testing.TB, name string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %.12g, want %.12g (tol %g)", name, got, want, tol)
	}
}
