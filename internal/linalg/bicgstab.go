package linalg

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// BiCGStab is the right-preconditioned stabilised bi-conjugate gradient
// method. It needs less memory than GMRES but its residual is not monotone.
type BiCGStab struct {
	MaxIter int
	RTol    float64
	ATol    float64
	Precond Preconditioner
}

// Solve implements Solver.
func (s *BiCGStab) Solve(ctx context.Context, a *CSR, b, x []float64) (Stats, error) {
	n := a.N
	if len(b) != n || len(x) != n {
		return Stats{}, fmt.Errorf("linalg: dimension mismatch: matrix %d, rhs %d, x %d", n, len(b), len(x))
	}

	pc := s.Precond
	if pc == nil {
		pc = Identity{}
	}
	apply, err := pc.Setup(a)
	if err != nil {
		return Stats{}, err
	}

	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		for i := range x {
			x[i] = 0
		}
		return Stats{}, nil
	}
	tol := tolerance(s.RTol, s.ATol, bnorm)

	r := make([]float64, n)
	residual(a, b, x, r)
	rhat := make([]float64, n)
	copy(rhat, r)

	p := make([]float64, n)
	v := make([]float64, n)
	phat := make([]float64, n)
	shat := make([]float64, n)
	sv := make([]float64, n)
	t := make([]float64, n)

	stats := Stats{Residual: floats.Norm(r, 2)}
	if stats.Residual <= tol {
		return stats, nil
	}

	rho, alpha, omega := 1.0, 1.0, 1.0
	for stats.Iterations < s.MaxIter {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		rhoNew := floats.Dot(rhat, r)
		if rhoNew == 0 {
			return stats, fmt.Errorf("%w: rho vanished at iteration %d", ErrBreakdown, stats.Iterations)
		}
		if stats.Iterations == 0 {
			copy(p, r)
		} else {
			beta := (rhoNew / rho) * (alpha / omega)
			for i := range p {
				p[i] = r[i] + beta*(p[i]-omega*v[i])
			}
		}

		apply(phat, p)
		a.MulVec(v, phat)
		denom := floats.Dot(rhat, v)
		if denom == 0 {
			return stats, fmt.Errorf("%w: <r̂, v> vanished at iteration %d", ErrBreakdown, stats.Iterations)
		}
		alpha = rhoNew / denom

		floats.AddScaledTo(sv, r, -alpha, v)
		stats.Iterations++
		if norm := floats.Norm(sv, 2); norm <= tol {
			floats.AddScaled(x, alpha, phat)
			stats.Residual = norm
			return stats, nil
		}

		apply(shat, sv)
		a.MulVec(t, shat)
		tt := floats.Dot(t, t)
		if tt == 0 {
			return stats, fmt.Errorf("%w: <t, t> vanished at iteration %d", ErrBreakdown, stats.Iterations)
		}
		omega = floats.Dot(t, sv) / tt

		floats.AddScaled(x, alpha, phat)
		floats.AddScaled(x, omega, shat)
		floats.AddScaledTo(r, sv, -omega, t)

		stats.Residual = floats.Norm(r, 2)
		if stats.Residual <= tol {
			return stats, nil
		}
		if omega == 0 {
			return stats, fmt.Errorf("%w: omega vanished at iteration %d", ErrBreakdown, stats.Iterations)
		}
		rho = rhoNew
	}

	return stats, fmt.Errorf("%w after %d iterations (residual %g, target %g)", ErrNotConverged, stats.Iterations, stats.Residual, tol)
}
