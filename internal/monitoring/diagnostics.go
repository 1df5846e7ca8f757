// Package monitoring provides the diagnostic logger and per-run outcome
// counters shared by the reconstruction packages.
package monitoring

import (
	"fmt"
	"sync/atomic"
)

// Outcome classifies the result of reconstructing one event.
type Outcome int

const (
	Reconstructed     Outcome = iota // at least one W candidate
	ComplexRoots                     // subset of Reconstructed from the transverse fit
	DomainFailures                   // undefined input, no candidate
	NumericalFailures                // fit did not converge, no candidate
	EmptyInput                       // lepton or MET missing
	numOutcomes
)

var outcomeNames = [numOutcomes]string{
	Reconstructed:     "reconstructed",
	ComplexRoots:      "complex_roots",
	DomainFailures:    "domain_failures",
	NumericalFailures: "numerical_failures",
	EmptyInput:        "empty_input",
}

func (o Outcome) String() string {
	if o < 0 || o >= numOutcomes {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// Diagnostics counts event outcomes. The zero value is ready to use and
// all methods are safe for concurrent use. A nil *Diagnostics ignores
// updates so callers need not check.
type Diagnostics struct {
	counts [numOutcomes]atomic.Int64
}

// Add increments the counter for o.
func (d *Diagnostics) Add(o Outcome) {
	if d == nil || o < 0 || o >= numOutcomes {
		return
	}
	d.counts[o].Add(1)
}

// Count returns the counter for o.
func (d *Diagnostics) Count(o Outcome) int64 {
	if d == nil || o < 0 || o >= numOutcomes {
		return 0
	}
	return d.counts[o].Load()
}

// Snapshot returns all counters keyed by outcome name.
func (d *Diagnostics) Snapshot() map[string]int64 {
	out := make(map[string]int64, numOutcomes)
	for o := Outcome(0); o < numOutcomes; o++ {
		out[o.String()] = d.Count(o)
	}
	return out
}

// Report logs the counters as one line tagged with prefix.
func (d *Diagnostics) Report(prefix string) {
	Prefixed(prefix)("reconstructed=%d (complex=%d) domain=%d numerical=%d empty=%d",
		d.Count(Reconstructed), d.Count(ComplexRoots),
		d.Count(DomainFailures), d.Count(NumericalFailures), d.Count(EmptyInput))
}
