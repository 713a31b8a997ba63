// Package newton solves the nonlinear algebraic system R(u) = 0 produced by
// one time step.
package newton

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/roach88/adrfem/internal/linalg"
)

var (
	// ErrDiverged is returned when the residual becomes NaN or Inf.
	ErrDiverged = errors.New("newton: residual is not finite")
	// ErrMaxIterations is returned when the tolerance is not met within
	// MaxIter iterations.
	ErrMaxIterations = errors.New("newton: iteration limit reached")
	// ErrLinearSolve wraps failures of the linear solver.
	ErrLinearSolve = errors.New("newton: linear solve failed")
)

// System is a discrete nonlinear residual with its Jacobian.
type System interface {
	Residual(ctx context.Context, u, r []float64) error
	Jacobian(ctx context.Context, u []float64, jac *linalg.CSR) error
	// Pattern returns a zero matrix with the Jacobian's sparsity.
	Pattern() *linalg.CSR
}

// Newton holds the nonlinear solver settings.
type Newton struct {
	RTol    float64
	ATol    float64
	MaxIter int
	// LineSearch enables backtracking: the update is halved up to
	// MaxLineSearch times until the residual norm decreases.
	LineSearch    bool
	MaxLineSearch int
	Logger        *zap.Logger
}

// Default returns the settings used when a problem does not configure
// Newton's method.
func Default() Newton {
	return Newton{RTol: 1e-8, ATol: 1e-10, MaxIter: 25, MaxLineSearch: 8}
}

// Report summarises one nonlinear solve.
type Report struct {
	Iterations       int
	LinearIterations int
	InitialResidual  float64
	Residual         float64
	Converged        bool
}

// Solve updates u in place until ‖R(u)‖₂ ≤ ATol + RTol·‖R(u₀)‖₂.
func (n Newton) Solve(ctx context.Context, sys System, lin linalg.Solver, u []float64) (Report, error) {
	log := n.Logger
	if log == nil {
		log = zap.NewNop()
	}

	size := len(u)
	r := make([]float64, size)
	delta := make([]float64, size)
	trial := make([]float64, size)
	jac := sys.Pattern()

	var rep Report
	if err := sys.Residual(ctx, u, r); err != nil {
		return rep, err
	}
	norm := floats.Norm(r, 2)
	if !finite(norm) {
		return rep, ErrDiverged
	}
	rep.InitialResidual, rep.Residual = norm, norm
	target := n.ATol + n.RTol*norm

	for {
		if norm <= target {
			rep.Converged = true
			return rep, nil
		}
		if rep.Iterations >= n.MaxIter {
			return rep, fmt.Errorf("%w: %d iterations, residual %g > %g", ErrMaxIterations, rep.Iterations, norm, target)
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		jac.Zero()
		if err := sys.Jacobian(ctx, u, jac); err != nil {
			return rep, err
		}
		for i := range delta {
			delta[i] = 0
		}
		stats, err := lin.Solve(ctx, jac, r, delta)
		rep.LinearIterations += stats.Iterations
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			return rep, fmt.Errorf("%w at iteration %d: %w", ErrLinearSolve, rep.Iterations+1, err)
		}
		rep.Iterations++

		lambda := 1.0
		for ls := 0; ; ls++ {
			floats.AddScaledTo(trial, u, -lambda, delta)
			if err := sys.Residual(ctx, trial, r); err != nil {
				return rep, err
			}
			next := floats.Norm(r, 2)
			if !n.LineSearch || (finite(next) && next < norm) || ls >= n.MaxLineSearch {
				if n.LineSearch && ls > 0 {
					log.Debug("line search",
						zap.Int("iteration", rep.Iterations),
						zap.Float64("lambda", lambda),
						zap.Float64("residual", next))
				}
				norm = next
				break
			}
			lambda /= 2
		}
		copy(u, trial)

		if !finite(norm) {
			rep.Residual = norm
			return rep, fmt.Errorf("%w at iteration %d", ErrDiverged, rep.Iterations)
		}
		rep.Residual = norm
		log.Debug("newton iteration",
			zap.Int("iteration", rep.Iterations),
			zap.Float64("residual", norm),
			zap.Int("linear_iterations", stats.Iterations))
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
