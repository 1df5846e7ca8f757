package monitoring

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestSetLogger(t *testing.T) {
	called := false
	restore := SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	defer restore()
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op that must not call the previous logger
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestSetLogger_Restore(t *testing.T) {
	var got []string
	outer := SetLogger(func(format string, v ...interface{}) {
		got = append(got, "outer")
	})
	defer outer()

	inner := SetLogger(func(format string, v ...interface{}) {
		got = append(got, "inner")
	})
	Logf("a")
	inner()
	Logf("b")

	if strings.Join(got, ",") != "inner,outer" {
		t.Errorf("sinks = %v, want [inner outer]", got)
	}
}

func TestPrefixed(t *testing.T) {
	logf := Prefixed("wreco")

	var lines []string
	restore := SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	defer restore()

	// The sink installed after Prefixed is the one used.
	logf("processed %d events", 3)
	if len(lines) != 1 || lines[0] != "wreco: processed 3 events" {
		t.Errorf("lines = %q", lines)
	}
}

func TestDiagnostics_Counts(t *testing.T) {
	var d Diagnostics
	d.Add(Reconstructed)
	d.Add(Reconstructed)
	d.Add(DomainFailures)
	d.Add(Outcome(42)) // ignored

	if got := d.Count(Reconstructed); got != 2 {
		t.Errorf("Count(Reconstructed) = %d, want 2", got)
	}
	if got := d.Count(DomainFailures); got != 1 {
		t.Errorf("Count(DomainFailures) = %d, want 1", got)
	}
	if got := d.Count(EmptyInput); got != 0 {
		t.Errorf("Count(EmptyInput) = %d, want 0", got)
	}

	snap := d.Snapshot()
	if len(snap) != int(numOutcomes) {
		t.Fatalf("Snapshot has %d keys, want %d", len(snap), numOutcomes)
	}
	if snap["reconstructed"] != 2 {
		t.Errorf("snap[reconstructed] = %d, want 2", snap["reconstructed"])
	}
}

func TestDiagnostics_NilSafe(t *testing.T) {
	var d *Diagnostics
	d.Add(Reconstructed)
	if got := d.Count(Reconstructed); got != 0 {
		t.Errorf("nil Count = %d, want 0", got)
	}
}

func TestDiagnostics_Concurrent(t *testing.T) {
	var d Diagnostics
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				d.Add(NumericalFailures)
			}
		}()
	}
	wg.Wait()
	if got := d.Count(NumericalFailures); got != 8000 {
		t.Errorf("Count = %d, want 8000", got)
	}
}

func TestDiagnostics_Report(t *testing.T) {
	var lines []string
	restore := SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	defer restore()

	var d Diagnostics
	d.Add(Reconstructed)
	d.Add(ComplexRoots)
	d.Report("run")

	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "run: reconstructed=1 (complex=1)") {
		t.Errorf("unexpected report line: %q", lines[0])
	}
}

func TestOutcomeString(t *testing.T) {
	if EmptyInput.String() != "empty_input" {
		t.Errorf("EmptyInput.String() = %q", EmptyInput.String())
	}
	if Outcome(-1).String() != "outcome(-1)" {
		t.Errorf("Outcome(-1).String() = %q", Outcome(-1).String())
	}
}
