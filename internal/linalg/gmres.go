package linalg

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// GMRES is restarted, right-preconditioned GMRES(m). The Hessenberg least
// squares problem is reduced with Givens rotations, so the residual norm is
// available at every inner iteration without forming x.
type GMRES struct {
	Restart int
	MaxIter int
	RTol    float64
	ATol    float64
	Precond Preconditioner
}

// Solve implements Solver.
func (g *GMRES) Solve(ctx context.Context, a *CSR, b, x []float64) (Stats, error) {
	n := a.N
	if len(b) != n || len(x) != n {
		return Stats{}, fmt.Errorf("linalg: dimension mismatch: matrix %d, rhs %d, x %d", n, len(b), len(x))
	}

	pc := g.Precond
	if pc == nil {
		pc = Identity{}
	}
	apply, err := pc.Setup(a)
	if err != nil {
		return Stats{}, err
	}

	m := g.Restart
	if m > n {
		m = n
	}
	if m < 1 {
		m = 1
	}

	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		for i := range x {
			x[i] = 0
		}
		return Stats{}, nil
	}
	tol := tolerance(g.RTol, g.ATol, bnorm)

	r := make([]float64, n)
	w := make([]float64, n)
	v := make([][]float64, m+1)
	z := make([][]float64, m)
	for i := range v {
		v[i] = make([]float64, n)
	}
	for i := range z {
		z[i] = make([]float64, n)
	}
	h := make([][]float64, m+1)
	for i := range h {
		h[i] = make([]float64, m)
	}
	cs := make([]float64, m)
	sn := make([]float64, m)
	s := make([]float64, m+1)
	y := make([]float64, m)

	var stats Stats
	for {
		residual(a, b, x, r)
		beta := floats.Norm(r, 2)
		stats.Residual = beta
		if beta <= tol {
			return stats, nil
		}
		if stats.Iterations >= g.MaxIter {
			return stats, fmt.Errorf("%w after %d iterations (residual %g, target %g)", ErrNotConverged, stats.Iterations, beta, tol)
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		floats.ScaleTo(v[0], 1/beta, r)
		for i := range s {
			s[i] = 0
		}
		s[0] = beta

		k := 0
		for j := 0; j < m && stats.Iterations < g.MaxIter; j++ {
			apply(z[j], v[j])
			a.MulVec(w, z[j])

			// modified Gram-Schmidt
			for i := 0; i <= j; i++ {
				h[i][j] = floats.Dot(w, v[i])
				floats.AddScaled(w, -h[i][j], v[i])
			}
			h[j+1][j] = floats.Norm(w, 2)
			breakdown := h[j+1][j] <= 1e-14*beta
			if !breakdown {
				floats.ScaleTo(v[j+1], 1/h[j+1][j], w)
			}

			for i := 0; i < j; i++ {
				t := cs[i]*h[i][j] + sn[i]*h[i+1][j]
				h[i+1][j] = -sn[i]*h[i][j] + cs[i]*h[i+1][j]
				h[i][j] = t
			}
			d := math.Hypot(h[j][j], h[j+1][j])
			if d == 0 {
				return stats, fmt.Errorf("%w: zero Hessenberg column at iteration %d", ErrBreakdown, stats.Iterations)
			}
			cs[j] = h[j][j] / d
			sn[j] = h[j+1][j] / d
			h[j][j] = d
			h[j+1][j] = 0
			s[j+1] = -sn[j] * s[j]
			s[j] = cs[j] * s[j]

			stats.Iterations++
			k = j + 1
			if math.Abs(s[j+1]) <= tol || breakdown {
				break
			}
		}

		// back substitution on the k×k upper triangle
		for i := k - 1; i >= 0; i-- {
			sum := s[i]
			for l := i + 1; l < k; l++ {
				sum -= h[i][l] * y[l]
			}
			y[i] = sum / h[i][i]
		}
		for i := 0; i < k; i++ {
			floats.AddScaled(x, y[i], z[i])
		}
	}
}
