package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wreco/internal/timeutil"
	"github.com/banshee-data/wreco/internal/wreco"
)

// Event status values stored in reco_events.status.
const (
	StatusOK        = "ok"
	StatusDomain    = "domain"
	StatusNumerical = "numerical"
	StatusEmpty     = "empty"
	StatusCancelled = "cancelled"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// Run is one row of reco_runs.
type Run struct {
	ID            string
	CreatedAt     time.Time
	Version       string
	WMass         float64
	Minimizer     string
	ConfigJSON    string
	EventCount    int
	Reconstructed int
}

// EventRow is one row of reco_events.
type EventRow struct {
	RunID       string
	Seq         int // input row order; event ids need not be unique
	EventID     int64
	METPt       float64
	MTW         float64
	DeltaPhi    float64
	NCandidates int
	Status      string
	Error       string
}

// CandidateRow is one row of reco_candidates.
type CandidateRow struct {
	RunID       string
	Seq         int
	Index       int
	Root        string
	W           [4]float64 // px, py, pz, e
	WMass       float64
	Nu          [4]float64 // px, py, pz, e
	Branch      sql.NullString
	FitDistance sql.NullFloat64
}

// RunStore persists reconstruction runs and their per-event results.
type RunStore struct {
	db    *DB
	clock timeutil.Clock
	newID func() string
}

// NewRunStore returns a RunStore. A nil clock uses the wall clock.
func NewRunStore(db *DB, clock timeutil.Clock) *RunStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RunStore{db: db, clock: clock, newID: uuid.NewString}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *RunStore) newRun(meta Run) Run {
	run := meta
	run.ID = s.newID()
	run.CreatedAt = s.clock.Now().UTC()
	run.EventCount, run.Reconstructed = 0, 0
	if run.ConfigJSON == "" {
		run.ConfigJSON = "{}"
	}
	return run
}

func insertRun(ctx context.Context, ex execer, run Run) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO reco_runs (run_id, created_at, version, w_mass, minimizer, config_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixNano(), run.Version, run.WMass, run.Minimizer, run.ConfigJSON)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// CreateRun inserts a new empty run. ID and CreatedAt are assigned by the
// store; the remaining fields are taken from meta.
func (s *RunStore) CreateRun(ctx context.Context, meta Run) (*Run, error) {
	run := s.newRun(meta)
	if err := insertRun(ctx, s.db, run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RecordRun inserts a new run together with its outcomes in one
// transaction, so a failed write leaves no partial run behind.
func (s *RunStore) RecordRun(ctx context.Context, meta Run, outcomes []wreco.Outcome) (*Run, error) {
	run := s.newRun(meta)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRun(ctx, tx, run); err != nil {
		return nil, err
	}
	reconstructed, err := recordOutcomes(ctx, tx, run.ID, outcomes)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	run.EventCount, run.Reconstructed = len(outcomes), reconstructed
	return &run, nil
}

// StatusOf classifies an outcome for storage.
func StatusOf(o wreco.Outcome) string {
	err := o.Err
	if err == nil {
		err = o.Reconstruction.Err
	}
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	case errors.Is(err, wreco.ErrEmptyInput):
		return StatusEmpty
	case errors.Is(err, wreco.ErrNumerical):
		return StatusNumerical
	default:
		return StatusDomain
	}
}

// RecordOutcomes appends the outcomes of a batch to an existing run in a
// single transaction and updates the run counters. Events are numbered
// after those already stored.
func (s *RunStore) RecordOutcomes(ctx context.Context, runID string, outcomes []wreco.Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := recordOutcomes(ctx, tx, runID, outcomes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcomes: %w", err)
	}
	return nil
}

// recordOutcomes inserts event and candidate rows under runID and bumps
// the run counters. It returns the number of reconstructed events.
func recordOutcomes(ctx context.Context, tx *sql.Tx, runID string, outcomes []wreco.Outcome) (int, error) {
	var offset int
	err := tx.QueryRowContext(ctx, `SELECT event_count FROM reco_runs WHERE run_id = ?`, runID).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query run: %w", err)
	}

	eventStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reco_events (run_id, seq, event_id, met_pt, mtw, delta_phi, n_candidates, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer eventStmt.Close()

	candStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reco_candidates (run_id, seq, idx, root,
			w_px, w_py, w_pz, w_e, w_mass,
			nu_px, nu_py, nu_pz, nu_e,
			branch, fit_distance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare candidate insert: %w", err)
	}
	defer candStmt.Close()

	reconstructed := 0
	for k, o := range outcomes {
		seq := offset + k
		rec := o.Reconstruction
		status := StatusOf(o)
		if status == StatusOK {
			reconstructed++
		}

		var errText sql.NullString
		if e := firstErr(o.Err, rec.Err); e != nil {
			errText = sql.NullString{String: e.Error(), Valid: true}
		}
		// Scalars are undefined when a measurement was missing.
		var metPt, mtw, dphi sql.NullFloat64
		if status != StatusEmpty && status != StatusCancelled {
			metPt = sql.NullFloat64{Float64: rec.METPt, Valid: true}
			mtw = sql.NullFloat64{Float64: rec.MTW, Valid: true}
			dphi = sql.NullFloat64{Float64: rec.DeltaPhi, Valid: true}
		}

		if _, err := eventStmt.ExecContext(ctx, runID, seq, o.Event.ID, metPt, mtw, dphi,
			len(rec.Candidates), status, errText); err != nil {
			return 0, fmt.Errorf("failed to insert event %d: %w", o.Event.ID, err)
		}

		for i, c := range rec.Candidates {
			nu := c.Neutrino
			var branch sql.NullString
			var dist sql.NullFloat64
			if nu.Fit != nil {
				branch = sql.NullString{String: string(nu.Fit.Branch), Valid: true}
				dist = sql.NullFloat64{Float64: nu.Fit.Distance, Valid: true}
			}
			if _, err := candStmt.ExecContext(ctx, runID, seq, i, string(nu.Root),
				c.Px(), c.Py(), c.Pz(), c.E(), c.M(),
				nu.Px(), nu.Py(), nu.Pz(), nu.E(),
				branch, dist); err != nil {
				return 0, fmt.Errorf("failed to insert candidate %d of event %d: %w", i, o.Event.ID, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE reco_runs
		SET event_count = event_count + ?, reconstructed = reconstructed + ?
		WHERE run_id = ?`, len(outcomes), reconstructed, runID); err != nil {
		return 0, fmt.Errorf("failed to update run counters: %w", err)
	}
	return reconstructed, nil
}

const runColumns = `run_id, created_at, version, w_mass, minimizer, config_json, event_count, reconstructed`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var created int64
	if err := row.Scan(&r.ID, &created, &r.Version, &r.WMass, &r.Minimizer,
		&r.ConfigJSON, &r.EventCount, &r.Reconstructed); err != nil {
		return r, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}

// GetRun returns the run with the given id.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM reco_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &r, nil
}

// ListRuns returns all runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM reco_runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Events returns the stored events of a run in input order.
func (s *RunStore) Events(ctx context.Context, runID string) ([]EventRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, event_id, met_pt, mtw, delta_phi, n_candidates, status, error
		FROM reco_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var metPt, mtw, dphi sql.NullFloat64
		var errText sql.NullString
		if err := rows.Scan(&e.RunID, &e.Seq, &e.EventID, &metPt, &mtw, &dphi,
			&e.NCandidates, &e.Status, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.METPt, e.MTW, e.DeltaPhi = metPt.Float64, mtw.Float64, dphi.Float64
		e.Error = errText.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Candidates returns the stored W candidates of the event at seq in index
// order.
func (s *RunStore) Candidates(ctx context.Context, runID string, seq int) ([]CandidateRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, idx, root,
			w_px, w_py, w_pz, w_e, w_mass,
			nu_px, nu_py, nu_pz, nu_e,
			branch, fit_distance
		FROM reco_candidates WHERE run_id = ? AND seq = ? ORDER BY idx`, runID, seq)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var cands []CandidateRow
	for rows.Next() {
		var c CandidateRow
		if err := rows.Scan(&c.RunID, &c.Seq, &c.Index, &c.Root,
			&c.W[0], &c.W[1], &c.W[2], &c.W[3], &c.WMass,
			&c.Nu[0], &c.Nu[1], &c.Nu[2], &c.Nu[3],
			&c.Branch, &c.FitDistance); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		cands = append(cands, c)
	}
	return cands, rows.Err()
}

// StatusCounts returns the number of events per status for a run.
func (s *RunStore) StatusCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM reco_events WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
