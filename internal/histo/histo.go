// Package histo accumulates per-run distributions of reconstructed
// quantities and renders them as PNG plots and an HTML report.
package histo

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/wreco/internal/wreco"
)

// Histogram names.
const (
	METPt  = "met_pt"
	MTW    = "mtw"
	WMass  = "w_mass"
	NuPz   = "nu_pz"
	FitDst = "fit_distance"
)

// Def describes one histogram.
type Def struct {
	Name   string
	Title  string
	XLabel string
	Bins   int
	Lo, Hi float64
}

// DefaultDefs returns the standard histograms, with momentum axes in the
// given unit scale (1 for GeV, 1e3 for MeV).
func DefaultDefs(scale float64) []Def {
	return []Def{
		{METPt, "Missing transverse momentum", "MET", 50, 0, 200 * scale},
		{MTW, "W transverse mass", "mT(W)", 50, 0, 200 * scale},
		{WMass, "W candidate mass (best)", "m(W)", 60, 60 * scale, 100 * scale},
		{NuPz, "Neutrino pz (best)", "pz(nu)", 50, -400 * scale, 400 * scale},
		{FitDst, "Complex-root fit distance", "|MET fit - MET|", 40, 0, 100 * scale},
	}
}

// Set holds one hbook.H1D per Def. It is not safe for concurrent use.
type Set struct {
	defs  []Def
	hists map[string]*hbook.H1D
}

// NewSet returns a Set with empty histograms for defs.
func NewSet(defs []Def) *Set {
	s := &Set{defs: defs, hists: make(map[string]*hbook.H1D, len(defs))}
	for _, sp := range defs {
		h := hbook.NewH1D(sp.Bins, sp.Lo, sp.Hi)
		h.Annotation()["name"] = sp.Name
		h.Annotation()["title"] = sp.Title
		s.hists[sp.Name] = h
	}
	return s
}

// Hist returns the named histogram, or nil.
func (s *Set) Hist(name string) *hbook.H1D { return s.hists[name] }

// Defs returns the histogram definitions in render order.
func (s *Set) Defs() []Def { return s.defs }

func (s *Set) fill(name string, v float64) {
	if h := s.hists[name]; h != nil {
		h.Fill(v, 1)
	}
}

// Fill adds one outcome. Events without scalars are skipped; candidate
// histograms use the best candidate only.
func (s *Set) Fill(o wreco.Outcome) {
	if o.Err != nil {
		return
	}
	rec := o.Reconstruction
	s.fill(METPt, rec.METPt)
	s.fill(MTW, rec.MTW)

	best, ok := rec.Best()
	if !ok {
		return
	}
	s.fill(WMass, best.M())
	s.fill(NuPz, best.Neutrino.Pz())
	if fit := best.Neutrino.Fit; fit != nil {
		s.fill(FitDst, fit.Distance)
	}
}

// FillAll adds all outcomes.
func (s *Set) FillAll(outcomes []wreco.Outcome) {
	for _, o := range outcomes {
		s.Fill(o)
	}
}

// SavePNG writes one PNG per histogram into dir and returns the paths.
func (s *Set) SavePNG(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	paths := make([]string, 0, len(s.defs))
	for _, sp := range s.defs {
		p := plot.New()
		p.Title.Text = sp.Title
		p.X.Label.Text = sp.XLabel
		p.Y.Label.Text = "events"

		h := hplot.NewH1D(s.hists[sp.Name])
		h.FillColor = color.RGBA{R: 70, G: 130, B: 180, A: 160}
		h.LineStyle.Color = color.RGBA{A: 255}
		h.Infos.Style = hplot.HInfoSummary
		p.Add(h)

		path := filepath.Join(dir, sp.Name+".png")
		if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("failed to save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// RenderHTML writes an HTML page with one bar chart per histogram.
func (s *Set) RenderHTML(w io.Writer, title string) error {
	page := components.NewPage()
	page.PageTitle = title

	for _, sp := range s.defs {
		h := s.hists[sp.Name]
		bins := h.Binning.Bins
		x := make([]string, len(bins))
		y := make([]opts.BarData, len(bins))
		for i, b := range bins {
			x[i] = fmt.Sprintf("%.4g", b.XMid())
			y[i] = opts.BarData{Value: b.SumW()}
		}

		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
			charts.WithTitleOpts(opts.Title{
				Title:    sp.Title,
				Subtitle: fmt.Sprintf("entries=%d mean=%.4g rms=%.4g", h.Entries(), h.XMean(), h.XRMS()),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: sp.XLabel, NameLocation: "middle", NameGap: 30}),
		)
		bar.SetXAxis(x).AddSeries(sp.Name, y)
		page.AddCharts(bar)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// SaveHTML renders the report into path.
func (s *Set) SaveHTML(path, title string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := s.RenderHTML(f, title); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
