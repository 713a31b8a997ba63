package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const failingCase = `
name: too-strict
definition:
  name: decay
  domain: {nx: 2, ny: 2}
  coefficients: {reaction: 1}
  initial_condition: {fn: constant, params: {value: 1}}
  time: {t_final: 0.2, dt: 0.1, n_output: 2}
exact: {fn: exponential_decay, params: {rate: 1}}
assertions:
  - type: converged
  - type: max_nodal_error
    max: 1.0e-12
`

func TestVerify_ExampleCases(t *testing.T) {
	cases, err := filepath.Glob(filepath.Join(casesDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, cases)

	out, _, err := execute(NewVerifyCommand(&RootOptions{Format: "text"}), cases...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "case: steady-patch\n")
	assert.Contains(t, out, "PASS max_nodal_error (max 1e-09)")
	assert.Contains(t, out, "✓ 3 case(s) passed\n")
}

func TestVerify_JSON(t *testing.T) {
	out, _, err := execute(NewVerifyCommand(&RootOptions{Format: "json"}), filepath.Join(casesDir, "decay.yaml"))
	require.NoError(t, err)

	var result VerifyOutput
	decodeResponse(t, out, &result)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Reports, 1)
	assert.Equal(t, "harness-run", result.Reports[0].RunID)
	assert.Equal(t, 20, result.Reports[0].Steps)
}

func TestVerify_FailingCase(t *testing.T) {
	path := writeFile(t, "strict.yaml", failingCase)

	out, _, err := execute(NewVerifyCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "PASS converged")
	assert.Contains(t, out, "FAIL max_nodal_error (max 1e-12)")
	assert.Contains(t, out, "✗ 1 of 1 case(s) failed\n")
}

func TestVerify_MissingCase(t *testing.T) {
	out, _, err := execute(NewVerifyCommand(&RootOptions{Format: "text"}), "/nonexistent/case.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E201]")
}

func TestVerify_RequiresArgs(t *testing.T) {
	_, _, err := execute(NewVerifyCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
}
