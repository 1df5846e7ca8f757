package eventio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/wreco/internal/wreco"
)

// OutputColumns is the header written by Writer. The w_* and nu_*
// columns describe the best candidate and are empty when none exists.
var OutputColumns = []string{
	"event", "status", "met_pt", "mtw", "delta_phi", "n_candidates",
	"root", "w_mass", "w_pt", "w_pz", "nu_pz", "error",
}

// StatusFunc classifies an outcome for the status column.
type StatusFunc func(wreco.Outcome) string

// Writer writes one CSV row per outcome.
type Writer struct {
	csv    *csv.Writer
	status StatusFunc
}

// NewWriter writes the header to w and returns a Writer.
func NewWriter(w io.Writer, status StatusFunc) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(OutputColumns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return &Writer{csv: cw, status: status}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

// Write writes a single outcome.
func (w *Writer) Write(o wreco.Outcome) error {
	rec := o.Reconstruction
	row := make([]string, len(OutputColumns))
	row[0] = strconv.FormatInt(o.Event.ID, 10)
	row[1] = w.status(o)

	if o.Err == nil {
		row[2] = formatFloat(rec.METPt)
		row[3] = formatFloat(rec.MTW)
		row[4] = formatFloat(rec.DeltaPhi)
	}
	row[5] = strconv.Itoa(len(rec.Candidates))

	if best, ok := rec.Best(); ok {
		row[6] = string(best.Neutrino.Root)
		row[7] = formatFloat(best.M())
		row[8] = formatFloat(best.Pt())
		row[9] = formatFloat(best.Pz())
		row[10] = formatFloat(best.Neutrino.Pz())
	}

	switch {
	case o.Err != nil:
		row[11] = o.Err.Error()
	case rec.Err != nil:
		row[11] = rec.Err.Error()
	}

	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("failed to write event %d: %w", o.Event.ID, err)
	}
	return nil
}

// WriteAll writes all outcomes and flushes.
func (w *Writer) WriteAll(outcomes []wreco.Outcome) error {
	for _, o := range outcomes {
		if err := w.Write(o); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Flush flushes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}
