// Package wreco reconstructs the neutrino and W boson of a leptonic
// W -> l nu decay from a measured charged lepton and the missing
// transverse momentum (MET), imposing the on-shell W mass constraint.
//
// Responsibilities: the longitudinal neutrino momentum solver (Solver),
// the W candidate and scalar builder (Builder), and a concurrent batch
// driver (ProcessBatch) for many independent events.
// Key types: MissingET, Neutrino, WCandidate, Reconstruction.
//
// The solver is a pure function of its two inputs. When the quadratic for
// the neutrino pz has real roots both are returned, smallest |pz| first.
// When it has none, the neutrino transverse momentum is moved to the
// nearest point (in the transverse plane) on the curve where the W
// transverse mass equals MW, found with a bounded 1-D minimizer, and a
// single candidate is returned.
//
// Dependency rule: no file, database or plotting code in this package.
package wreco
