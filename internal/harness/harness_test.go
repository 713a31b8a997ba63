package harness

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/adrfem/internal/solver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func loadCase(t *testing.T, file string) *Case {
	t.Helper()
	c, err := LoadCase(filepath.Join(casesDir, file))
	require.NoError(t, err)
	return c
}

func parseCase(t *testing.T, content string) *Case {
	t.Helper()
	c, err := ParseCase([]byte(content))
	require.NoError(t, err)
	return c
}

func TestRun_ExampleCases(t *testing.T) {
	tests := []struct {
		file   string
		golden string
	}{
		{"steady_patch.yaml", "steady_patch"},
		{"decay.yaml", "decay"},
		{"advection_mass.yaml", ""},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			report, err := Run(context.Background(), loadCase(t, tt.file), WithLogger(zaptest.NewLogger(t)))
			require.NoError(t, err)
			assert.True(t, report.Pass, "failures: %v", report.Failures())
			assert.True(t, report.Converged())
			assert.Equal(t, "harness-run", report.RunID)
			if tt.golden != "" {
				AssertGolden(t, tt.golden, report)
			}
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	c := loadCase(t, "decay.yaml")
	a, err := Run(context.Background(), c)
	require.NoError(t, err)
	b, err := Run(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

const decayInline = `
name: decay-inline
description: uniform decay on a small mesh
run_id: fixed-id
exact: {fn: exponential_decay, params: {rate: 1}}
definition:
  name: box
  domain: {nx: 2, ny: 2}
  coefficients: {reaction: 1}
  initial_condition: {fn: constant, params: {value: 1}}
  numerics: {linear_solver: {kind: direct}}
  time: {t_final: 0.2, dt: 0.1, n_output: 2}
`

func TestRun_FailingAssertions(t *testing.T) {
	c := parseCase(t, decayInline+`
assertions:
  - type: converged
  - type: l2_error
    max: 1.0e-12
  - type: bounds
    min: 0.95
  - type: dirichlet
  - type: failure_code
    code: DT_TOO_SMALL
  - type: archive
`)
	report, err := Run(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, report.Pass)
	assert.Equal(t, "fixed-id", report.RunID)
	assert.Equal(t, []float64{0, 0.1, 0.2}, report.Times)

	pass := make(map[string]bool)
	for _, a := range report.Assertions {
		pass[a.Type] = a.Pass
	}
	assert.Equal(t, map[string]bool{
		AssertConverged:   true,
		AssertL2Error:     false,
		AssertBounds:      false,
		AssertDirichlet:   false,
		AssertFailureCode: false,
		AssertArchive:     true,
	}, pass)

	// Backward Euler overshoots exp(-t) from above.
	assert.Greater(t, report.Assertions[1].Value, 1e-12)
	assert.Contains(t, report.Assertions[2].Message, "min 0.95")
	assert.Contains(t, report.Assertions[3].Message, "no Dirichlet nodes")
	assert.Len(t, report.Failures(), 4)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, true))
	assert.Contains(t, buf.String(), "FAIL l2_error (max 1e-12) = ")
	assert.Contains(t, buf.String(), "PASS archive")
}

func TestRun_SolveFailure(t *testing.T) {
	c := parseCase(t, `
name: stalled
description: newton cannot reach its tolerance in one iteration
definition:
  name: stalled
  domain: {nx: 3, ny: 3}
  coefficients:
    kind: burgers
    velocity: [1, 1]
    diffusion: 0.5
  initial_condition: {fn: gaussian, params: {x0: 0.5, y0: 0.5, sigma: 0.2}}
  numerics:
    linear_solver: {kind: direct}
    newton: {max_iter: 1, rtol: 1.0e-14, atol: 1.0e-14}
  time: {t_final: 0.1, dt: 0.1, min_dt: 0.04}
assertions:
  - type: converged
  - type: failure_code
    code: DT_TOO_SMALL
  - type: archive
`)
	report, err := Run(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, report.Pass)
	assert.False(t, report.Converged())
	assert.Equal(t, string(solver.ErrCodeDTTooSmall), report.FailureCode)
	assert.Equal(t, 0, report.Steps)
	assert.Equal(t, 2, report.FailedSteps)
	assert.Equal(t, []float64{0}, report.Times)

	require.Len(t, report.Assertions, 3)
	assert.False(t, report.Assertions[0].Pass)
	assert.True(t, report.Assertions[1].Pass)
	assert.True(t, report.Assertions[2].Pass, report.Assertions[2].Message)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, false))
	assert.Contains(t, buf.String(), "status: failed DT_TOO_SMALL\n")
	assert.Contains(t, buf.String(), "steps: 0 accepted, 2 rejected\n")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := parseCase(t, decayInline+"assertions: [{type: converged}]\n")
	_, err := Run(ctx, c)
	require.Error(t, err)
	assert.True(t, solver.IsCancelled(err))
}

func TestRun_BuildError(t *testing.T) {
	c := parseCase(t, `
name: broken
description: invalid mesh
definition:
  name: broken
  domain: {nx: 0, ny: 2}
  time: {t_final: 1, dt: 0.1}
assertions: [{type: converged}]
`)
	_, err := Run(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `case "broken"`)
}

type countingObserver struct {
	steps, outputs int
}

func (o *countingObserver) BeginRun(solver.RunInfo) error { return nil }
func (o *countingObserver) OnStep(solver.StepReport) error { o.steps++; return nil }
func (o *countingObserver) OnOutput(solver.Snapshot) error { o.outputs++; return nil }
func (o *countingObserver) EndRun(solver.Result, error) error { return nil }

func TestRun_WithObserver(t *testing.T) {
	obs := &countingObserver{}
	c := parseCase(t, decayInline+"assertions: [{type: converged}]\n")
	report, err := Run(context.Background(), c, WithObserver(obs))
	require.NoError(t, err)
	assert.True(t, report.Pass)
	assert.Equal(t, 2, obs.steps)
	assert.Equal(t, 3, obs.outputs)
}
