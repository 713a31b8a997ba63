package linalg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingular is returned by direct solvers for singular or numerically
	// singular matrices.
	ErrSingular = errors.New("linalg: matrix is singular")
	// ErrNotConverged is returned when an iterative solver reaches its
	// iteration limit before meeting the tolerance.
	ErrNotConverged = errors.New("linalg: iterative solver did not converge")
	// ErrBreakdown is returned when a Krylov method cannot continue.
	ErrBreakdown = errors.New("linalg: iterative solver breakdown")
)

// Stats reports the work done by one linear solve.
type Stats struct {
	Iterations int
	Residual   float64 // final ‖b − A x‖₂
}

// Solver solves A x = b. x holds the initial guess on entry and the
// solution on return.
type Solver interface {
	Solve(ctx context.Context, a *CSR, b, x []float64) (Stats, error)
}

// Kind names a linear solver.
type Kind string

const (
	KindDirect   Kind = "direct"
	KindGMRES    Kind = "gmres"
	KindBiCGStab Kind = "bicgstab"
)

// Config selects and parameterises a linear solver.
type Config struct {
	Kind           Kind
	RTol           float64
	ATol           float64
	MaxIter        int
	Restart        int
	Preconditioner string // "jacobi" or "none"
}

// DefaultConfig returns the configuration used when a problem does not name
// a linear solver.
func DefaultConfig() Config {
	return Config{
		Kind:           KindGMRES,
		RTol:           1e-10,
		ATol:           1e-14,
		MaxIter:        1000,
		Restart:        50,
		Preconditioner: "jacobi",
	}
}

// New constructs the solver described by cfg.
func New(cfg Config) (Solver, error) {
	var pc Preconditioner
	switch strings.ToLower(cfg.Preconditioner) {
	case "", "jacobi":
		pc = Jacobi{}
	case "none":
		pc = Identity{}
	default:
		return nil, fmt.Errorf("linalg: unknown preconditioner %q", cfg.Preconditioner)
	}

	switch cfg.Kind {
	case KindDirect:
		return DenseLU{}, nil
	case KindGMRES:
		if cfg.Restart < 1 {
			return nil, fmt.Errorf("linalg: gmres restart must be positive, got %d", cfg.Restart)
		}
		if cfg.MaxIter < 1 {
			return nil, fmt.Errorf("linalg: max_iter must be positive, got %d", cfg.MaxIter)
		}
		return &GMRES{Restart: cfg.Restart, MaxIter: cfg.MaxIter, RTol: cfg.RTol, ATol: cfg.ATol, Precond: pc}, nil
	case KindBiCGStab:
		if cfg.MaxIter < 1 {
			return nil, fmt.Errorf("linalg: max_iter must be positive, got %d", cfg.MaxIter)
		}
		return &BiCGStab{MaxIter: cfg.MaxIter, RTol: cfg.RTol, ATol: cfg.ATol, Precond: pc}, nil
	default:
		return nil, fmt.Errorf("linalg: unknown solver kind %q", cfg.Kind)
	}
}

// DenseLU solves by LU factorisation of the expanded dense matrix. It is
// exact up to rounding and meant for small systems and reference
// solutions.
type DenseLU struct{}

// Solve implements Solver.
func (DenseLU) Solve(ctx context.Context, a *CSR, b, x []float64) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	if len(b) != a.N || len(x) != a.N {
		return Stats{}, fmt.Errorf("linalg: dimension mismatch: matrix %d, rhs %d, x %d", a.N, len(b), len(x))
	}

	var lu mat.LU
	lu.Factorize(a.Dense())
	if c := lu.Cond(); math.IsInf(c, 1) || math.IsNaN(c) || c > mat.ConditionTolerance {
		return Stats{}, fmt.Errorf("%w: condition number %g", ErrSingular, c)
	}

	xv := mat.NewVecDense(a.N, x)
	if err := lu.SolveVecTo(xv, false, mat.NewVecDense(a.N, b)); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	r := make([]float64, a.N)
	residual(a, b, x, r)
	return Stats{Iterations: 1, Residual: floats.Norm(r, 2)}, nil
}

// residual computes r = b − A x.
func residual(a *CSR, b, x, r []float64) {
	a.MulVec(r, x)
	for i := range r {
		r[i] = b[i] - r[i]
	}
}

func tolerance(rtol, atol, bnorm float64) float64 {
	return math.Max(atol, rtol*bnorm)
}
