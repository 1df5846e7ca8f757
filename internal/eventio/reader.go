// Package eventio reads lepton/MET events from CSV and writes
// per-event reconstruction results back out as CSV.
package eventio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go-hep.org/x/hep/fmom"

	"github.com/banshee-data/wreco/internal/wreco"
)

// InputColumns is the required CSV header, in any order.
var InputColumns = []string{"event", "lep_pt", "lep_eta", "lep_phi", "lep_mass", "met_pt", "met_phi"}

var (
	lepColumns = []string{"lep_pt", "lep_eta", "lep_phi", "lep_mass"}
	metColumns = []string{"met_pt", "met_phi"}
)

// Reader decodes events from CSV. An event whose lepton (or MET) fields
// are all empty is returned with a nil Lepton (or MET).
type Reader struct {
	csv  *csv.Reader
	cols map[string]int
	line int
}

// NewReader reads the header from r and returns a Reader positioned at
// the first event.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read header: empty input")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range InputColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("header missing columns: %s", strings.Join(missing, ", "))
	}

	return &Reader{csv: cr, cols: cols, line: 1}, nil
}

// Next returns the next event, or io.EOF when the input is exhausted.
func (r *Reader) Next() (wreco.Event, error) {
	rec, err := r.csv.Read()
	if err != nil {
		return wreco.Event{}, err
	}
	r.line, _ = r.csv.FieldPos(0)

	get := func(name string) string { return strings.TrimSpace(rec[r.cols[name]]) }

	var ev wreco.Event
	ev.ID, err = strconv.ParseInt(get("event"), 10, 64)
	if err != nil {
		return ev, fmt.Errorf("line %d: invalid event id %q: %w", r.line, get("event"), err)
	}

	lep, err := r.parseGroup(get, lepColumns)
	if err != nil {
		return ev, err
	}
	if lep != nil {
		p := fmom.NewPtEtaPhiM(lep[0], lep[1], lep[2], lep[3])
		ev.Lepton = &p
	}

	met, err := r.parseGroup(get, metColumns)
	if err != nil {
		return ev, err
	}
	if met != nil {
		ev.MET = wreco.NewMissingETPtPhi(met[0], met[1])
	}
	return ev, nil
}

// parseGroup parses a measurement's fields. All empty means missing
// (nil, nil); partially filled is an error.
func (r *Reader) parseGroup(get func(string) string, names []string) ([]float64, error) {
	empty := 0
	for _, n := range names {
		if get(n) == "" {
			empty++
		}
	}
	switch empty {
	case len(names):
		return nil, nil
	case 0:
	default:
		return nil, fmt.Errorf("line %d: partially filled measurement %s", r.line, strings.Join(names, ","))
	}

	vals := make([]float64, len(names))
	for i, n := range names {
		v, err := strconv.ParseFloat(get(n), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s %q: %w", r.line, n, get(n), err)
		}
		vals[i] = v
	}
	return vals, nil
}

// ReadEvents reads all events from r.
func ReadEvents(r io.Reader) ([]wreco.Event, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var events []wreco.Event
	for {
		ev, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
}

// ReadFile reads all events from a CSV file.
func ReadFile(path string) ([]wreco.Event, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	events, err := ReadEvents(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return events, nil
}
