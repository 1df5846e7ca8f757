package minimize

import "math"

// goldenRatio is (3 - sqrt(5)) / 2, the golden-section step fraction.
var goldenRatio = 0.5 * (3.0 - math.Sqrt(5.0))

// sqrtEps is the relative resolution used to scale the tolerance with |x|.
var sqrtEps = math.Sqrt(2.2e-16)

// Brent is the bounded Brent minimizer. It combines golden-section steps
// with successive parabolic interpolation and never evaluates f at lo or hi
// themselves, only strictly inside the interval.
type Brent struct{}

// Minimize implements Minimizer.
func (Brent) Minimize(f Func, lo, hi float64, opts Options) (Result, error) {
	if err := checkBounds(lo, hi); err != nil {
		return Result{}, err
	}
	opts = opts.withDefaults()

	a, b := lo, hi
	// v, w, x: the three best points so far (x best, w second, v previous w).
	v := a + goldenRatio*(b-a)
	w, x := v, v
	fx := eval(f, x)
	fv, fw := fx, fx
	evals := 1

	var d, e float64
	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(x) + opts.Tolerance/3.0
	tol2 := 2.0 * tol1

	iter := 0
	converged := false
	for {
		if math.Abs(x-xm) <= tol2-0.5*(b-a) {
			converged = true
			break
		}
		if iter >= opts.MaxIterations {
			break
		}
		iter++

		golden := true
		if math.Abs(e) > tol1 {
			// Try a parabola through v, w, x.
			golden = false
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*r
			q = 2.0 * (q - r)
			if q > 0.0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = d

			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-x) && p < q*(b-x) {
				d = p / q
				u := x + d
				// Keep away from the interval ends.
				if u-a < tol2 || b-u < tol2 {
					d = tol1 * signOrOne(xm-x)
				}
			} else {
				golden = true
			}
		}
		if golden {
			if x >= xm {
				e = a - x
			} else {
				e = b - x
			}
			d = goldenRatio * e
		}

		u := x + signOrOne(d)*math.Max(math.Abs(d), tol1)
		fu := eval(f, u)
		evals++

		if fu <= fx {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, fv = w, fw
			w, fw = x, fx
			x, fx = u, fu
		} else {
			if u < x {
				a = u
			} else {
				b = u
			}
			if fu <= fw || w == x {
				v, fv = w, fw
				w, fw = u, fu
			} else if fu <= fv || v == x || v == w {
				v, fv = u, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = sqrtEps*math.Abs(x) + opts.Tolerance/3.0
		tol2 = 2.0 * tol1
	}

	if math.IsInf(fx, 1) {
		converged = false
	}
	return Result{
		X:           x,
		F:           fx,
		Iterations:  iter,
		Evaluations: evals,
		Converged:   converged,
	}, nil
}

// signOrOne returns the sign of v, treating zero as positive.
func signOrOne(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
