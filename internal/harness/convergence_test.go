package harness

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/problem"
)

// poisson is −Δu = 2π² sin(πx) sin(πy) with homogeneous Dirichlet data, whose
// solution is sin(πx) sin(πy).
func poisson(t *testing.T) (*problem.Definition, physics.ScalarFunc) {
	t.Helper()
	def, err := problem.ParseYAML([]byte(`
name: poisson
domain: {nx: 1, ny: 1}
coefficients:
  diffusion: 1
  source: {fn: sin_product, params: {amp: -19.739208802178716}}
boundary:
  bottom: {dirichlet: {fn: constant, params: {value: 0}}}
  right: {dirichlet: {fn: constant, params: {value: 0}}}
  top: {dirichlet: {fn: constant, params: {value: 0}}}
  left: {dirichlet: {fn: constant, params: {value: 0}}}
numerics:
  time_integration: steady
  quadrature_order: 5
  linear_solver: {kind: direct}
`))
	require.NoError(t, err)
	exact, err := physics.Lookup("sin_product", nil)
	require.NoError(t, err)
	return def, exact
}

func TestConvergenceStudy_Poisson(t *testing.T) {
	def, exact := poisson(t)
	levels, err := ConvergenceStudy(context.Background(), def, exact, []int{4, 8, 16})
	require.NoError(t, err)
	require.Len(t, levels, 3)

	assert.Equal(t, 0.0, levels[0].Rate)
	for i, lvl := range levels {
		assert.InDelta(t, math.Sqrt2/float64(lvl.N), lvl.H, 1e-12)
		if i == 0 {
			continue
		}
		assert.Less(t, lvl.L2Error, levels[i-1].L2Error)
		assert.Less(t, lvl.MaxError, levels[i-1].MaxError)
		assert.InDelta(t, 2.0, lvl.Rate, 0.25, "level %d", lvl.N)
	}

	assert.Equal(t, 1, def.Domain.NX, "definition is not modified")
}

func TestConvergenceStudy_Errors(t *testing.T) {
	def, exact := poisson(t)
	tests := []struct {
		name   string
		exact  physics.ScalarFunc
		levels []int
		want   string
	}{
		{"no exact", nil, []int{2, 4}, "exact solution is required"},
		{"one level", exact, []int{4}, "at least two levels"},
		{"not increasing", exact, []int{4, 4}, "strictly increasing"},
		{"zero", exact, []int{0, 4}, "strictly increasing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConvergenceStudy(context.Background(), def, tt.exact, tt.levels)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
