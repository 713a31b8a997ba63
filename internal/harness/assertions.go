package harness

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/adrfem/internal/assembly"
	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/solver"
	"github.com/roach88/adrfem/internal/store"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// evaluation is everything an assertion may inspect after a run.
type evaluation struct {
	ctx     context.Context
	tr      *assembly.Transport
	bcs     physics.BoundaryConditions
	exact   physics.ScalarFunc
	runErr  error
	archive *store.Store
	runID   string
	snaps   []store.Snapshot
}

// evaluate checks one assertion.
func (ev *evaluation) evaluate(a Assertion) AssertionResult {
	res := AssertionResult{Type: a.Type, Limit: limit(a)}

	var err error
	switch a.Type {
	case AssertConverged:
		err = ev.converged()
	case AssertFailureCode:
		err = ev.failureCode(a.Code)
	case AssertMaxNodalError:
		res.Value, err = ev.nodalError(*a.Max)
	case AssertL2Error:
		res.Value, err = ev.l2Error(*a.Max)
	case AssertMassConservation:
		res.Value, err = ev.massConservation(a.Tolerance)
	case AssertBounds:
		res.Value, err = ev.bounds(a.Min, a.Max)
	case AssertDirichlet:
		res.Value, err = ev.dirichlet(a.Tolerance)
	case AssertArchive:
		res.Value, err = ev.archiveConsistent()
	default:
		err = fmt.Errorf("unknown assertion type %q", a.Type)
	}

	if math.IsNaN(res.Value) || math.IsInf(res.Value, 0) {
		res.Value = 0
		if err == nil {
			err = errors.New("measured value is not finite")
		}
	}
	res.Pass = err == nil
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

func limit(a Assertion) string {
	switch a.Type {
	case AssertFailureCode:
		return a.Code
	case AssertMaxNodalError, AssertL2Error:
		return fmt.Sprintf("max %g", *a.Max)
	case AssertMassConservation, AssertDirichlet:
		return fmt.Sprintf("tolerance %g", a.Tolerance)
	case AssertBounds:
		var parts []string
		if a.Min != nil {
			parts = append(parts, fmt.Sprintf("min %g", *a.Min))
		}
		if a.Max != nil {
			parts = append(parts, fmt.Sprintf("max %g", *a.Max))
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func (ev *evaluation) converged() error {
	if ev.runErr != nil {
		return &AssertionError{Type: AssertConverged, Expected: "a converged run", Actual: ev.runErr.Error()}
	}
	return nil
}

func (ev *evaluation) failureCode(code string) error {
	var se *solver.SolveError
	if !errors.As(ev.runErr, &se) {
		actual := "a converged run"
		if ev.runErr != nil {
			actual = ev.runErr.Error()
		}
		return &AssertionError{Type: AssertFailureCode, Expected: code, Actual: actual}
	}
	if string(se.Code) != code {
		return &AssertionError{Type: AssertFailureCode, Expected: code, Actual: string(se.Code)}
	}
	return nil
}

func (ev *evaluation) last() (store.Snapshot, error) {
	if len(ev.snaps) == 0 {
		return store.Snapshot{}, errors.New("no solution was archived")
	}
	return ev.snaps[len(ev.snaps)-1], nil
}

func (ev *evaluation) nodalError(max float64) (float64, error) {
	last, err := ev.last()
	if err != nil {
		return 0, err
	}
	e := ev.tr.MaxNodalError(last.Values, ev.exact, last.T)
	if !(e <= max) {
		return e, &AssertionError{Type: AssertMaxNodalError, Expected: fmt.Sprintf("≤ %g", max), Actual: fmt.Sprintf("%g at t=%g", e, last.T)}
	}
	return e, nil
}

func (ev *evaluation) l2Error(max float64) (float64, error) {
	last, err := ev.last()
	if err != nil {
		return 0, err
	}
	e := ev.tr.L2Error(last.Values, ev.exact, last.T)
	if !(e <= max) {
		return e, &AssertionError{Type: AssertL2Error, Expected: fmt.Sprintf("≤ %g", max), Actual: fmt.Sprintf("%g at t=%g", e, last.T)}
	}
	return e, nil
}

// massConservation compares ∫m(u) at the first and last outputs.
func (ev *evaluation) massConservation(tol float64) (float64, error) {
	last, err := ev.last()
	if err != nil {
		return 0, err
	}
	first := ev.snaps[0]
	m0 := ev.tr.TotalMass(first.Values, first.T)
	m1 := ev.tr.TotalMass(last.Values, last.T)
	change := math.Abs(m1 - m0)
	if m0 != 0 {
		change /= math.Abs(m0)
	}
	if !(change <= tol) {
		return change, &AssertionError{
			Type:     AssertMassConservation,
			Expected: fmt.Sprintf("change ≤ %g", tol),
			Actual:   fmt.Sprintf("%g (mass %g at t=%g, %g at t=%g)", change, m0, first.T, m1, last.T),
		}
	}
	return change, nil
}

// bounds checks every archived value and returns the largest violation.
func (ev *evaluation) bounds(lo, hi *float64) (float64, error) {
	if len(ev.snaps) == 0 {
		return 0, errors.New("no solution was archived")
	}
	worst := 0.0
	var first *AssertionError
	for _, snap := range ev.snaps {
		for i, v := range snap.Values {
			var excess float64
			switch {
			case lo != nil && v < *lo:
				excess = *lo - v
			case hi != nil && v > *hi:
				excess = v - *hi
			default:
				continue
			}
			if excess > worst {
				worst = excess
			}
			if first == nil {
				first = &AssertionError{
					Type:     AssertBounds,
					Expected: limit(Assertion{Type: AssertBounds, Min: lo, Max: hi}),
					Actual:   fmt.Sprintf("u[%d] = %g at t=%g", i, v, snap.T),
				}
			}
		}
	}
	if first != nil {
		return worst, first
	}
	return 0, nil
}

func (ev *evaluation) dirichlet(tol float64) (float64, error) {
	last, err := ev.last()
	if err != nil {
		return 0, err
	}
	nodes := ev.bcs.DirichletNodes(ev.tr.Mesh(), last.T)
	if len(nodes) == 0 {
		return 0, errors.New("problem has no Dirichlet nodes")
	}
	worst := 0.0
	for i, g := range nodes {
		worst = math.Max(worst, math.Abs(last.Values[i]-g))
	}
	if !(worst <= tol) {
		return worst, &AssertionError{Type: AssertDirichlet, Expected: fmt.Sprintf("≤ %g", tol), Actual: fmt.Sprintf("%g at t=%g", worst, last.T)}
	}
	return worst, nil
}

func (ev *evaluation) archiveConsistent() (float64, error) {
	v, err := ev.archive.VerifyRun(ev.ctx, ev.runID)
	if err != nil {
		return 0, err
	}
	if !v.OK() {
		msgs := make([]string, len(v.Mismatches))
		for i, m := range v.Mismatches {
			msgs[i] = m.Message
		}
		return float64(len(v.Mismatches)), &AssertionError{
			Type:     AssertArchive,
			Expected: "a consistent archive",
			Actual:   strings.Join(msgs, "; "),
		}
	}
	return 0, nil
}
