package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/adrfem/internal/problem"
)

// Case is a verification case.
type Case struct {
	// Name uniquely identifies this case.
	Name string `yaml:"name"`

	// Description explains what this case verifies.
	Description string `yaml:"description"`

	// Problem is the path to a problem document. Relative paths are
	// resolved against the case file's directory by LoadCase.
	Problem string `yaml:"problem,omitempty"`

	// Definition is an inline problem, used when Problem is empty.
	Definition *problem.Definition `yaml:"definition,omitempty"`

	// Exact is the exact solution used by error assertions.
	Exact *problem.FunctionRef `yaml:"exact,omitempty"`

	// RunID fixes the archived run ID. Defaults to "harness-run".
	RunID string `yaml:"run_id,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// Assertion is a property the computed solution must have.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Max bounds an error norm (max_nodal_error, l2_error) or the solution
	// from above (bounds).
	Max *float64 `yaml:"max,omitempty"`

	// Min bounds the solution from below (bounds).
	Min *float64 `yaml:"min,omitempty"`

	// Tolerance is used by mass_conservation and dirichlet.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Code is the expected solver error code (failure_code).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged        = "converged"
	AssertFailureCode      = "failure_code"
	AssertMaxNodalError    = "max_nodal_error"
	AssertL2Error          = "l2_error"
	AssertMassConservation = "mass_conservation"
	AssertBounds           = "bounds"
	AssertDirichlet        = "dirichlet"
	AssertArchive          = "archive"
)

// LoadCase reads and parses a case file. Unknown fields are rejected, and
// a problem path is resolved relative to the case file and loaded.
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}

	c, err := ParseCase(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if c.Problem != "" {
		if !filepath.IsAbs(c.Problem) {
			c.Problem = filepath.Join(filepath.Dir(path), c.Problem)
		}
		def, err := problem.LoadFile(c.Problem)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		c.Definition = def
	}
	return c, nil
}

// ParseCase parses a case document. A problem path is left unresolved.
func ParseCase(data []byte) (*Case, error) {
	var c Case
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateCase(&c); err != nil {
		return nil, fmt.Errorf("invalid case: %w", err)
	}
	return &c, nil
}

// validateCase checks that required fields are present and consistent.
func validateCase(c *Case) error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.Description == "" {
		return errors.New("description is required")
	}
	switch {
	case c.Problem == "" && c.Definition == nil:
		return errors.New("one of problem or definition is required")
	case c.Problem != "" && c.Definition != nil:
		return errors.New("problem and definition are mutually exclusive")
	}
	if c.Exact != nil && c.Exact.Fn == "" {
		return errors.New("exact: fn is required")
	}
	if len(c.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}
	for i, a := range c.Assertions {
		if err := validateAssertion(i, a, c.Exact != nil); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, haveExact bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertConverged, AssertArchive:
	case AssertFailureCode:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for failure_code", index)
		}
	case AssertMaxNodalError, AssertL2Error:
		if !haveExact {
			return fmt.Errorf("assertions[%d]: %s requires an exact solution", index, a.Type)
		}
		if a.Max == nil || *a.Max < 0 {
			return fmt.Errorf("assertions[%d]: non-negative max is required for %s", index, a.Type)
		}
	case AssertMassConservation, AssertDirichlet:
		if a.Tolerance < 0 {
			return fmt.Errorf("assertions[%d]: tolerance must be non-negative for %s", index, a.Type)
		}
	case AssertBounds:
		if a.Min == nil && a.Max == nil {
			return fmt.Errorf("assertions[%d]: min or max is required for bounds", index)
		}
		if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
			return fmt.Errorf("assertions[%d]: min %g exceeds max %g", index, *a.Min, *a.Max)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
