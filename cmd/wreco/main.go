// Command wreco reconstructs W boson candidates from lepton and missing
// transverse momentum measurements read from CSV.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/wreco/internal/config"
	"github.com/banshee-data/wreco/internal/db"
	"github.com/banshee-data/wreco/internal/eventio"
	"github.com/banshee-data/wreco/internal/histo"
	"github.com/banshee-data/wreco/internal/minimize"
	"github.com/banshee-data/wreco/internal/monitoring"
	"github.com/banshee-data/wreco/internal/timeutil"
	"github.com/banshee-data/wreco/internal/units"
	"github.com/banshee-data/wreco/internal/version"
	"github.com/banshee-data/wreco/internal/wreco"
)

var logf = monitoring.Prefixed("wreco")

type options struct {
	input      string
	configPath string
	dbPath     string
	output     string
	plotDir    string
	htmlPath   string
	workers    int
	debug      bool
	listRuns   bool
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("wreco", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.input, "input", "", "input CSV (event,lep_pt,lep_eta,lep_phi,lep_mass,met_pt,met_phi)")
	fs.StringVar(&o.configPath, "config", "", "reconstruction config JSON (defaults when empty)")
	fs.StringVar(&o.dbPath, "db", "", "sqlite database to record the run in")
	fs.StringVar(&o.output, "output", "-", "per-event result CSV ('-' for stdout, empty to skip)")
	fs.StringVar(&o.plotDir, "plots", "", "directory for PNG histograms")
	fs.StringVar(&o.htmlPath, "html", "", "path for the HTML histogram report")
	fs.IntVar(&o.workers, "workers", -1, "worker goroutines (overrides config; 0 = NumCPU)")
	fs.BoolVar(&o.debug, "debug", false, "log both complex-root fits and the chosen branch")
	fs.BoolVar(&o.listRuns, "list-runs", false, "list runs recorded in -db and exit")
	fs.BoolVar(&o.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

func loadConfig(o *options) (*config.ReconstructionConfig, error) {
	cfg := config.EmptyReconstructionConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadReconstructionConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.workers >= 0 {
		cfg.Workers = &o.workers
	}
	if o.debug {
		cfg.Debug = &o.debug
	}
	return cfg, nil
}

// newBuilder wires the solver from cfg. Lengths in the config are in GeV
// and are converted to the input momentum unit.
func newBuilder(cfg *config.ReconstructionConfig, diag *monitoring.Diagnostics) (*wreco.Builder, error) {
	m, err := minimize.ByName(cfg.GetMinimizer())
	if err != nil {
		return nil, err
	}
	unit := cfg.GetMomentumUnit()
	solver := wreco.NewSolver(
		wreco.WithWMass(cfg.GetWMassInInputUnit()),
		wreco.WithMinimizer(m),
		wreco.WithFitOptions(minimize.Options{
			Tolerance:     cfg.GetTolerance(),
			MaxIterations: cfg.GetMaxIterations(),
		}),
		wreco.WithBoundaryMargin(units.ConvertFromGeV(cfg.GetBoundaryMargin(), unit)),
		wreco.WithSearchRange(units.ConvertFromGeV(cfg.GetSearchRange(), unit)),
		wreco.WithScanPoints(cfg.GetScanPoints()),
		wreco.WithDebug(cfg.GetDebug()),
	)
	return wreco.NewBuilder(solver, diag), nil
}

func writeResults(path string, stdout io.Writer, outcomes []wreco.Outcome) error {
	if path == "" {
		return nil
	}
	w := stdout
	if path != "-" {
		f, err := os.Create(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	ew, err := eventio.NewWriter(w, db.StatusOf)
	if err != nil {
		return err
	}
	return ew.WriteAll(outcomes)
}

func listRuns(ctx context.Context, dbPath string, stdout io.Writer) error {
	if dbPath == "" {
		return errors.New("-list-runs requires -db")
	}
	conn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	runs, err := db.NewRunStore(conn, nil).ListRuns(ctx)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(stdout, "%s\t%s\t%s\tmw=%g\tminimizer=%s\tevents=%d\treconstructed=%d\n",
			r.ID, r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), r.Version,
			r.WMass, r.Minimizer, r.EventCount, r.Reconstructed)
	}
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, clock timeutil.Clock) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.version {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	if o.listRuns {
		return listRuns(ctx, o.dbPath, stdout)
	}
	if o.input == "" {
		return errors.New("-input is required")
	}

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	diag := &monitoring.Diagnostics{}
	builder, err := newBuilder(cfg, diag)
	if err != nil {
		return err
	}

	events, err := eventio.ReadFile(o.input)
	if err != nil {
		return err
	}

	// Open the store before processing so a bad -db fails fast.
	var store *db.RunStore
	if o.dbPath != "" {
		conn, err := db.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer conn.Close()
		store = db.NewRunStore(conn, clock)
	}

	start := clock.Now()
	outcomes := wreco.ProcessBatch(ctx, builder, events, cfg.GetWorkers())
	logf("processed %d events in %s with %d workers",
		len(outcomes), clock.Since(start), cfg.GetWorkers())
	diag.Report("wreco")

	if err := writeResults(o.output, stdout, outcomes); err != nil {
		return err
	}

	if store != nil {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		// Cancelled events are still recorded as such, so the write must
		// outlive ctx.
		r, err := store.RecordRun(context.WithoutCancel(ctx), db.Run{
			Version:    version.Version,
			WMass:      cfg.GetWMassInInputUnit(),
			Minimizer:  cfg.GetMinimizer(),
			ConfigJSON: string(cfgJSON),
		}, outcomes)
		if err != nil {
			return err
		}
		logf("recorded run %s", r.ID)
	}

	if o.plotDir != "" || o.htmlPath != "" {
		hs := histo.NewSet(histo.DefaultDefs(units.ConvertFromGeV(1, cfg.GetMomentumUnit())))
		hs.FillAll(outcomes)
		if o.plotDir != "" {
			if _, err := hs.SavePNG(o.plotDir); err != nil {
				return err
			}
		}
		if o.htmlPath != "" {
			if err := hs.SaveHTML(o.htmlPath, "wreco "+filepath.Base(o.input)); err != nil {
				return err
			}
		}
	}

	return ctx.Err()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, timeutil.RealClock{}); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("wreco: %v", err)
	}
}
