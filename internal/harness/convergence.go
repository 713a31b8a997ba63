package harness

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/problem"
	"github.com/roach88/adrfem/internal/solver"
)

// Level is one mesh of a convergence study.
type Level struct {
	N        int     `json:"n"`
	H        float64 `json:"h"` // longest element edge
	L2Error  float64 `json:"l2_error"`
	MaxError float64 `json:"max_error"`
	// Rate is the observed L2 order against the previous level; zero on
	// the coarsest level.
	Rate float64 `json:"rate"`
}

// ConvergenceStudy solves def on nx = ny = level meshes and measures the
// error against exact at the final time. Levels must be strictly
// increasing. def is not modified.
func ConvergenceStudy(ctx context.Context, def *problem.Definition, exact physics.ScalarFunc, levels []int, opts ...Option) ([]Level, error) {
	if exact == nil {
		return nil, errors.New("convergence study: exact solution is required")
	}
	if len(levels) < 2 {
		return nil, fmt.Errorf("convergence study: need at least two levels, got %d", len(levels))
	}
	for i, n := range levels {
		if n < 1 || (i > 0 && n <= levels[i-1]) {
			return nil, fmt.Errorf("convergence study: levels must be positive and strictly increasing, got %v", levels)
		}
	}
	o := buildOptions(opts)

	out := make([]Level, 0, len(levels))
	for _, n := range levels {
		refined := *def
		refined.Domain.NX, refined.Domain.NY = n, n
		cfg, err := refined.Build()
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", n, err)
		}
		sol, err := solver.New(cfg, solver.WithLogger(o.log), solver.WithObserver(o.observers...))
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", n, err)
		}
		res, err := sol.CalculateSolution(ctx, fmt.Sprintf("%s/n=%d", cfg.Name, n))
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", n, err)
		}

		t := res.Times[len(res.Times)-1]
		tr := sol.Transport()
		lvl := Level{
			N:        n,
			H:        cfg.Mesh.MaxDiameter(),
			L2Error:  tr.L2Error(res.U, exact, t),
			MaxError: tr.MaxNodalError(res.U, exact, t),
		}
		if k := len(out); k > 0 {
			prev := out[k-1]
			lvl.Rate = math.Log(prev.L2Error/lvl.L2Error) / math.Log(prev.H/lvl.H)
			if math.IsNaN(lvl.Rate) || math.IsInf(lvl.Rate, 0) {
				lvl.Rate = 0
			}
		}
		o.log.Info("convergence level",
			zap.Int("n", n),
			zap.Float64("h", lvl.H),
			zap.Float64("l2_error", lvl.L2Error),
			zap.Float64("rate", lvl.Rate))
		out = append(out, lvl)
	}
	return out, nil
}
