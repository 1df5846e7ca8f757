package wreco

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-hep.org/x/hep/fmom"

	"github.com/banshee-data/wreco/internal/minimize"
	"github.com/banshee-data/wreco/internal/testutil"
)

// wMassOf returns the invariant mass of lepton + neutrino.
func wMassOf(t *testing.T, lep fmom.P4, nu Neutrino) float64 {
	t.Helper()
	e := lep.E() + nu.PxPyPzE.E()
	px := lep.Px() + nu.PxPyPzE.Px()
	py := lep.Py() + nu.PxPyPzE.Py()
	pz := lep.Pz() + nu.PxPyPzE.Pz()
	return math.Sqrt(e*e - px*px - py*py - pz*pz)
}

// radOf evaluates the pz discriminant the same way the solver does.
func radOf(lep fmom.P4, met *MissingET) float64 {
	pt2 := lep.Px()*lep.Px() + lep.Py()*lep.Py()
	alpha := DefaultWMass*DefaultWMass/2 + lep.Px()*met.Px + lep.Py()*met.Py
	return alpha*alpha*lep.Pz()*lep.Pz()/(pt2*pt2) - (lep.E()*lep.E()*met.Pt()*met.Pt()-alpha*alpha)/pt2
}

func TestSolve_RealBranch(t *testing.T) {
	lep := testutil.Lepton(40, 0, 0, 0)
	met := NewMissingETPtPhi(30, 0.2)
	require.GreaterOrEqual(t, radOf(lep, met), 0.0)

	nus, err := NewSolver().Solve(lep, met)
	require.NoError(t, err)
	require.Len(t, nus, 2)

	for i, nu := range nus {
		assert.Equal(t, RealRoot, nu.Root)
		assert.Nil(t, nu.Fit)
		assert.Equal(t, met.Px, nu.PxPyPzE.Px(), "candidate %d px", i)
		assert.Equal(t, met.Py, nu.PxPyPzE.Py(), "candidate %d py", i)
		testutil.AssertClose(t, "W mass", wMassOf(t, lep, nu), DefaultWMass, 1e-6)
	}
	testutil.AssertClose(t, "pz", nus[0].PxPyPzE.Pz(), 106.04207197459402, 1e-6)
	testutil.AssertClose(t, "pz", nus[1].PxPyPzE.Pz(), -106.04207197459402, 1e-6)
}

func TestSolve_RealBranchWithMuonMass(t *testing.T) {
	// The quadratic uses pt^2 where E^2-pz^2 would be exact, so a massive
	// lepton lands slightly above MW.
	lep := testutil.Lepton(40, 0, 0, testutil.MuonMass)
	met := NewMissingETPtPhi(30, 0.2)

	nus, err := NewSolver().Solve(lep, met)
	require.NoError(t, err)
	require.Len(t, nus, 2)
	for _, nu := range nus {
		testutil.AssertClose(t, "W mass", wMassOf(t, lep, nu), DefaultWMass, 1e-3)
	}
}

func TestSolve_EachCandidateUsesItsOwnPz(t *testing.T) {
	lep := testutil.Lepton(40, 1.1, 0.3, 0)
	met := NewMissingETPtPhi(30, 0.2)

	nus, err := NewSolver().Solve(lep, met)
	require.NoError(t, err)
	require.Len(t, nus, 2)

	for _, nu := range nus {
		pz := nu.PxPyPzE.Pz()
		want := math.Sqrt(met.Pt()*met.Pt() + pz*pz)
		testutil.AssertClose(t, "E", nu.PxPyPzE.E(), want, 1e-9)
		testutil.AssertClose(t, "W mass", wMassOf(t, lep, nu), DefaultWMass, 1e-6)
	}
	assert.NotEqual(t, nus[0].PxPyPzE.E(), nus[1].PxPyPzE.E())
}

func TestSolve_Ordering(t *testing.T) {
	tests := []struct {
		name          string
		pt, eta, phi  float64
		metPt, metPhi float64
	}{
		{"forward lepton", 40, 1.1, 0.3, 30, 0.2},
		{"backward lepton", 35, -1.7, -2.0, 25, -1.5},
		{"central lepton", 50, 0.3, 1.0, 20, 1.2},
		{"equal magnitudes", 40, 0, 0, 30, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nus, err := NewSolver().Solve(testutil.Lepton(tt.pt, tt.eta, tt.phi, 0), NewMissingETPtPhi(tt.metPt, tt.metPhi))
			require.NoError(t, err)
			require.Len(t, nus, 2)
			assert.LessOrEqual(t, math.Abs(nus[0].PxPyPzE.Pz()), math.Abs(nus[1].PxPyPzE.Pz()))
		})
	}
}

func TestSolve_ComplexBranch(t *testing.T) {
	lep := testutil.Lepton(40, 0, 0, 0)
	met := NewMissingETPtPhi(60, math.Pi)
	require.Less(t, radOf(lep, met), 0.0)

	nus, err := NewSolver().Solve(lep, met)
	require.NoError(t, err)
	require.Len(t, nus, 1)

	nu := nus[0]
	assert.Equal(t, ComplexRoot, nu.Root)
	require.NotNil(t, nu.Fit)
	assert.True(t, nu.Fit.Result.Converged, "fit: %s", nu.Fit.Result)
	testutil.AssertClose(t, "W mass", wMassOf(t, lep, nu), DefaultWMass, 1e-6)

	// The fitted transverse momentum moves away from the measurement.
	nuPt := math.Hypot(nu.PxPyPzE.Px(), nu.PxPyPzE.Py())
	assert.Greater(t, math.Abs(nuPt-met.Pt()), 1.0)
	testutil.AssertClose(t, "fit distance", nu.Fit.Distance, 19.650171105073927, 1e-4)
	testutil.AssertClose(t, "fitted px", nu.PxPyPzE.Px(), -40.391, 1e-4)
}

func TestSolve_ComplexBranchGeneral(t *testing.T) {
	tests := []struct {
		name          string
		pt, eta, phi  float64
		metPt, metPhi float64
	}{
		{"forward", 40, 0.8, 0, 60, math.Pi},
		{"negative px lepton", 35, -0.5, 2.0, 70, -1.0},
		{"rotated", 40, 0, -2.5, 80, 0.6},
	}
	for _, tt := range tests {
		for _, m := range []minimize.Minimizer{minimize.Brent{}, minimize.NelderMead{}} {
			t.Run(tt.name, func(t *testing.T) {
				lep := testutil.Lepton(tt.pt, tt.eta, tt.phi, 0)
				met := NewMissingETPtPhi(tt.metPt, tt.metPhi)
				require.Less(t, radOf(lep, met), 0.0)

				s := NewSolver(WithMinimizer(m), WithFitOptions(minimize.Options{MaxIterations: 500}))
				nus, err := s.Solve(lep, met)
				require.NoError(t, err)
				require.Len(t, nus, 1)
				testutil.AssertClose(t, "W mass", wMassOf(t, lep, nus[0]), DefaultWMass, 1e-6)
			})
		}
	}
}

func TestSolve_Idempotent(t *testing.T) {
	s := NewSolver()
	cases := []struct {
		lepPt, lepEta, lepPhi float64
		metPt, metPhi         float64
	}{
		{40, 0, 0, 30, 0.2},
		{40, 0, 0, 60, math.Pi},
	}
	for _, c := range cases {
		lep := testutil.Lepton(c.lepPt, c.lepEta, c.lepPhi, 0)
		met := NewMissingETPtPhi(c.metPt, c.metPhi)
		first, err := s.Solve(lep, met)
		require.NoError(t, err)
		second, err := s.Solve(lep, met)
		require.NoError(t, err)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Solve not idempotent (-first +second):\n%s", diff)
		}
	}
}

func TestSolve_DomainErrors(t *testing.T) {
	tests := []struct {
		name string
		lep  fmom.P4
		met  *MissingET
		want error
	}{
		{"px zero at phi=pi/2", testutil.Lepton(40, 0, math.Pi/2, 0), NewMissingETPtPhi(60, math.Pi), ErrDomain},
		{"px zero real branch", testutil.Lepton(40, 0, -math.Pi/2, 0), NewMissingETPtPhi(30, 0.2), ErrDomain},
		{"zero pt", testutil.Lepton(0, 0, 0, 0), NewMissingETPtPhi(30, 0.2), ErrDomain},
		{"nan met", testutil.Lepton(40, 0, 0, 0), &MissingET{Px: math.NaN()}, ErrDomain},
		{"inf lepton", testutil.Lepton(math.Inf(1), 0, 0, 0), NewMissingETPtPhi(30, 0.2), ErrDomain},
		{"missing met", testutil.Lepton(40, 0, 0, 0), nil, ErrEmptyInput},
		{"missing lepton", nil, NewMissingETPtPhi(30, 0.2), ErrEmptyInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nus, err := NewSolver().Solve(tt.lep, tt.met)
			assert.Empty(t, nus)
			if !errors.Is(err, tt.want) {
				t.Errorf("Solve error = %v, want %v", err, tt.want)
			}
		})
	}
}

// failingMinimizer never converges.
type failingMinimizer struct{ calls int }

func (f *failingMinimizer) Minimize(fn minimize.Func, lo, hi float64, _ minimize.Options) (minimize.Result, error) {
	f.calls++
	x := 0.5 * (lo + hi)
	return minimize.Result{X: x, F: fn(x), Iterations: 100}, nil
}

// halfMinimizer converges only on its first call, which refines a plus
// branch bracket.
type halfMinimizer struct{ calls int }

func (h *halfMinimizer) Minimize(fn minimize.Func, lo, hi float64, opts minimize.Options) (minimize.Result, error) {
	h.calls++
	res, err := minimize.Brent{}.Minimize(fn, lo, hi, opts)
	res.Converged = h.calls == 1
	return res, err
}

func TestSolve_NumericalError(t *testing.T) {
	m := &failingMinimizer{}
	nus, err := NewSolver(WithMinimizer(m)).Solve(testutil.Lepton(40, 0, 0, 0), NewMissingETPtPhi(60, math.Pi))
	assert.Empty(t, nus)
	assert.ErrorIs(t, err, ErrNumerical)
	assert.GreaterOrEqual(t, m.calls, 2)
}

func TestSolve_NumericalErrorWithoutScan(t *testing.T) {
	m := &failingMinimizer{}
	_, err := NewSolver(WithMinimizer(m), WithScanPoints(0)).Solve(testutil.Lepton(40, 0, 0, 0), NewMissingETPtPhi(60, math.Pi))
	assert.ErrorIs(t, err, ErrNumerical)
	assert.Equal(t, 2, m.calls)
}

func TestChooseBranch(t *testing.T) {
	conv := func(f float64) minimize.Result { return minimize.Result{F: f, Converged: true} }
	stuck := func(f float64) minimize.Result { return minimize.Result{F: f} }
	tests := []struct {
		name        string
		plus, minus minimize.Result
		want        Branch
		ok          bool
	}{
		{"plus smaller", conv(1), conv(2), BranchPlus, true},
		{"minus smaller", conv(2), conv(1), BranchMinus, true},
		{"tie goes to minus", conv(1), conv(1), BranchMinus, true},
		{"only plus converged", conv(5), stuck(1), BranchPlus, true},
		{"only minus converged", stuck(1), conv(5), BranchMinus, true},
		{"neither converged", stuck(1), stuck(2), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, res, ok := chooseBranch(tt.plus, tt.minus)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, b)
			if ok {
				assert.True(t, res.Converged)
			}
		})
	}
}

func TestScanBrackets(t *testing.T) {
	// Two basins: a shallow one at -5 and the global minimum at +5.
	f := func(x float64) float64 { return math.Min((x+5)*(x+5)+1, (x-5)*(x-5)) }

	brackets, evals := scanBrackets(f, -10, 10, 21)
	assert.Equal(t, 21, evals)
	require.Len(t, brackets, 2)
	assert.Equal(t, [2]float64{4, 6}, brackets[0])
	assert.Equal(t, [2]float64{-6, -4}, brackets[1])
}

func TestScanBrackets_Edges(t *testing.T) {
	rising := func(x float64) float64 { return x }
	brackets, _ := scanBrackets(rising, 0, 10, 11)
	assert.Equal(t, [][2]float64{{0, 1}}, brackets)

	falling := func(x float64) float64 { return -x }
	brackets, _ = scanBrackets(falling, 0, 10, 11)
	assert.Equal(t, [][2]float64{{9, 10}}, brackets)

	undefined := func(float64) float64 { return math.NaN() }
	brackets, _ = scanBrackets(undefined, 0, 10, 11)
	assert.Equal(t, [][2]float64{{0, 10}}, brackets)

	brackets, evals := scanBrackets(rising, 0, 10, 2)
	assert.Equal(t, 0, evals)
	assert.Equal(t, [][2]float64{{0, 10}}, brackets)
}

// TestSolve_ComplexFitIsGlobal checks the complex-branch fit against a
// dense grid over both branches for a spread of kinematics.
func TestSolve_ComplexFitIsGlobal(t *testing.T) {
	const gridPoints = 20001
	rng := rand.New(rand.NewSource(7))
	s := NewSolver()

	var checked int
	for checked < 150 {
		phi := rng.Float64()*2*math.Pi - math.Pi
		if math.Abs(math.Cos(phi)) < 0.3 {
			continue
		}
		lep := testutil.Lepton(20+60*rng.Float64(), 4*rng.Float64()-2, phi, testutil.MuonMass)
		met := NewMissingETPtPhi(10+140*rng.Float64(), rng.Float64()*2*math.Pi-math.Pi)
		if radOf(lep, met) >= 0 {
			continue
		}
		checked++

		l, err := newLepton(lep)
		require.NoError(t, err)
		lo, hi := s.searchWindow(l)
		gridMin := math.Inf(1)
		for i := 0; i < gridPoints; i++ {
			x := lo + (hi-lo)*float64(i)/(gridPoints-1)
			for _, sign := range []float64{1, -1} {
				gridMin = math.Min(gridMin, math.Hypot(x-met.Px, s.curve(l, x, sign)-met.Py))
			}
		}

		nus, err := s.Solve(lep, met)
		require.NoError(t, err)
		require.Len(t, nus, 1)
		assert.LessOrEqual(t, nus[0].Fit.Distance, gridMin+0.05,
			"lepton %v met (%g, %g)", lep, met.Px, met.Py)
	}
}

func TestSolve_SingleConvergedBranchWins(t *testing.T) {
	m := &halfMinimizer{}
	nus, err := NewSolver(WithMinimizer(m)).Solve(testutil.Lepton(40, 0, 0, 0), NewMissingETPtPhi(60, math.Pi))
	require.NoError(t, err)
	require.Len(t, nus, 1)
	assert.Equal(t, BranchPlus, nus[0].Fit.Branch)
	assert.False(t, nus[0].Fit.Minus.Converged)
}

func TestSolve_EmptySearchWindow(t *testing.T) {
	// A margin wider than the window leaves nothing to search.
	s := NewSolver(WithBoundaryMargin(1e5))
	nus, err := s.Solve(testutil.Lepton(40, 0, 0, 0), NewMissingETPtPhi(60, math.Pi))
	assert.Empty(t, nus)
	assert.ErrorIs(t, err, ErrDomain)
}

func TestSolve_CountInvariant(t *testing.T) {
	s := NewSolver()
	for _, pt := range []float64{5, 20, 40, 90} {
		for _, phi := range []float64{-2.9, -1.2, 0, 0.7, 2.2} {
			for _, metPt := range []float64{0, 10, 45, 120} {
				for _, metPhi := range []float64{-3.0, -0.4, 1.1, math.Pi} {
					lep := testutil.Lepton(pt, 0.6, phi, 0)
					met := NewMissingETPtPhi(metPt, metPhi)
					nus, err := s.Solve(lep, met)
					switch {
					case err != nil:
						assert.Empty(t, nus)
					case radOf(lep, met) >= 0:
						assert.Len(t, nus, 2)
					default:
						assert.Len(t, nus, 1)
					}
				}
			}
		}
	}
}

func TestSolve_WMassOverride(t *testing.T) {
	const mw = 80379.0 // MeV
	lep := testutil.Lepton(40000, 0.4, 0.5, 0)
	met := NewMissingETPtPhi(30000, 0.9)

	nus, err := NewSolver(WithWMass(mw)).Solve(lep, met)
	require.NoError(t, err)
	require.NotEmpty(t, nus)
	for _, nu := range nus {
		testutil.AssertClose(t, "W mass", wMassOf(t, lep, nu), mw, 1e-3)
	}
}

func TestSolve_DebugLogsFits(t *testing.T) {
	var lines int
	restore := captureLogs(func(string, ...interface{}) { lines++ })
	defer restore()

	_, err := NewSolver(WithDebug(true)).Solve(testutil.Lepton(40, 0, 0, 0), NewMissingETPtPhi(60, math.Pi))
	require.NoError(t, err)
	assert.Equal(t, 3, lines)
}

func TestMissingET(t *testing.T) {
	met := NewMissingETPtPhi(30, 0.2)
	testutil.AssertClose(t, "pt", met.Pt(), 30, 1e-12)
	testutil.AssertClose(t, "phi", met.Phi(), 0.2, 1e-12)

	p4 := met.P4()
	assert.Equal(t, 0.0, p4.Pz())
	testutil.AssertClose(t, "E", p4.E(), 30, 1e-12)
}
