package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/banshee-data/wreco/internal/minimize"
	"github.com/banshee-data/wreco/internal/units"
)

// DefaultConfigPath is the path to the canonical reconstruction defaults file.
const DefaultConfigPath = "config/reconstruction.defaults.json"

// ReconstructionConfig holds the settings of a reconstruction run.
// Unset fields fall back to the defaults returned by the Get* methods, so
// partial files are valid.
type ReconstructionConfig struct {
	// Physics
	WMass        *float64 `json:"w_mass,omitempty"`        // GeV
	MomentumUnit *string  `json:"momentum_unit,omitempty"` // unit of input momenta: GeV, MeV, TeV

	// Complex-branch fit
	Minimizer      *string  `json:"minimizer,omitempty"` // "brent" or "nelder-mead"
	Tolerance      *float64 `json:"tolerance,omitempty"`
	MaxIterations  *int     `json:"max_iterations,omitempty"`
	BoundaryMargin *float64 `json:"boundary_margin,omitempty"`
	SearchRange    *float64 `json:"search_range,omitempty"`
	ScanPoints     *int     `json:"scan_points,omitempty"` // coarse grid per branch; below 3 disables the scan

	// Batch
	Workers *int  `json:"workers,omitempty"`
	Debug   *bool `json:"debug,omitempty"`
}

// EmptyReconstructionConfig returns a config with all fields unset.
func EmptyReconstructionConfig() *ReconstructionConfig {
	return &ReconstructionConfig{}
}

// LoadReconstructionConfig loads a ReconstructionConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadReconstructionConfig(path string) (*ReconstructionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyReconstructionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the set values are usable.
func (c *ReconstructionConfig) Validate() error {
	if c.WMass != nil && !(*c.WMass > 0) {
		return fmt.Errorf("w_mass must be positive, got %f", *c.WMass)
	}
	if c.MomentumUnit != nil && !units.IsValid(*c.MomentumUnit) {
		return fmt.Errorf("momentum_unit must be one of %s, got %q", units.GetValidUnitsString(), *c.MomentumUnit)
	}
	if c.Minimizer != nil {
		if _, err := minimize.ByName(*c.Minimizer); err != nil {
			return err
		}
	}
	if c.Tolerance != nil && !(*c.Tolerance > 0) {
		return fmt.Errorf("tolerance must be positive, got %g", *c.Tolerance)
	}
	if c.MaxIterations != nil && *c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
	}
	if c.BoundaryMargin != nil && !(*c.BoundaryMargin > 0) {
		return fmt.Errorf("boundary_margin must be positive, got %g", *c.BoundaryMargin)
	}
	if c.SearchRange != nil && !(*c.SearchRange > 0) {
		return fmt.Errorf("search_range must be positive, got %g", *c.SearchRange)
	}
	if c.ScanPoints != nil && *c.ScanPoints < 0 {
		return fmt.Errorf("scan_points must be non-negative, got %d", *c.ScanPoints)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	return nil
}

// GetWMass returns the nominal W mass in GeV.
func (c *ReconstructionConfig) GetWMass() float64 {
	if c.WMass == nil {
		return 80.4
	}
	return *c.WMass
}

// GetMomentumUnit returns the unit of the input momenta.
func (c *ReconstructionConfig) GetMomentumUnit() string {
	if c.MomentumUnit == nil {
		return units.GeV
	}
	return *c.MomentumUnit
}

// GetWMassInInputUnit returns the W mass converted to the input momentum unit.
func (c *ReconstructionConfig) GetWMassInInputUnit() float64 {
	return units.ConvertFromGeV(c.GetWMass(), c.GetMomentumUnit())
}

// GetMinimizer returns the minimizer name.
func (c *ReconstructionConfig) GetMinimizer() string {
	if c.Minimizer == nil {
		return minimize.MethodBrent
	}
	return *c.Minimizer
}

// GetTolerance returns the minimizer tolerance on px.
func (c *ReconstructionConfig) GetTolerance() float64 {
	if c.Tolerance == nil {
		return minimize.DefaultTolerance
	}
	return *c.Tolerance
}

// GetMaxIterations returns the minimizer iteration cap.
func (c *ReconstructionConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return minimize.DefaultMaxIterations
	}
	return *c.MaxIterations
}

// GetBoundaryMargin returns the margin kept from the constraint-curve edge.
func (c *ReconstructionConfig) GetBoundaryMargin() float64 {
	if c.BoundaryMargin == nil {
		return 1e-2
	}
	return *c.BoundaryMargin
}

// GetSearchRange returns the half-width of the px search window.
func (c *ReconstructionConfig) GetSearchRange() float64 {
	if c.SearchRange == nil {
		return 9999
	}
	return *c.SearchRange
}

// GetScanPoints returns the coarse grid size sampled on each branch.
func (c *ReconstructionConfig) GetScanPoints() int {
	if c.ScanPoints == nil {
		return 2000
	}
	return *c.ScanPoints
}

// GetWorkers returns the batch worker count; 0 in the file means NumCPU.
func (c *ReconstructionConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// GetDebug returns whether per-fit diagnostics are logged.
func (c *ReconstructionConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}
