package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/adrfem/internal/newton"
)

// ErrorCode categorises solve failures.
type ErrorCode string

const (
	// ErrCodeNewtonDiverged indicates Newton's method did not converge.
	ErrCodeNewtonDiverged ErrorCode = "NEWTON_DIVERGED"

	// ErrCodeLinearSolveFailed indicates the linear solver failed inside a
	// Newton iteration.
	ErrCodeLinearSolveFailed ErrorCode = "LINEAR_SOLVE_FAILED"

	// ErrCodeDTTooSmall indicates step halving reached the minimum step.
	ErrCodeDTTooSmall ErrorCode = "DT_TOO_SMALL"

	// ErrCodeCancelled indicates the context was cancelled.
	ErrCodeCancelled ErrorCode = "CANCELLED"

	// ErrCodeArchiveFailed indicates an observer could not record the run.
	ErrCodeArchiveFailed ErrorCode = "ARCHIVE_FAILED"

	// ErrCodeInternal indicates a failure outside the numerical solve, such
	// as a non-finite solution that cannot be hashed.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// SolveError is returned by CalculateSolution when the time loop fails.
type SolveError struct {
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the run.
	RunID string

	// T and DT locate the failing step; Step counts accepted steps before it.
	T    float64
	DT   float64
	Step int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *SolveError) Error() string {
	msg := fmt.Sprintf("%s: %s (t=%g, dt=%g, step=%d)", e.Code, e.Message, e.T, e.DT, e.Step)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *SolveError) Unwrap() error { return e.Err }

// IsNewtonFailure reports whether err is a nonlinear or linear solver
// failure. Uses errors.As to handle wrapped errors.
func IsNewtonFailure(err error) bool {
	var se *SolveError
	if errors.As(err, &se) {
		return se.Code == ErrCodeNewtonDiverged || se.Code == ErrCodeLinearSolveFailed
	}
	return false
}

// IsTimeStepFailure reports whether err was caused by the step size
// falling below its minimum.
func IsTimeStepFailure(err error) bool {
	var se *SolveError
	if errors.As(err, &se) {
		return se.Code == ErrCodeDTTooSmall
	}
	return false
}

// IsCancelled reports whether the run was stopped by its context.
func IsCancelled(err error) bool {
	var se *SolveError
	if errors.As(err, &se) {
		return se.Code == ErrCodeCancelled
	}
	return false
}

// errArchive marks observer failures so they are not retried as step
// failures.
type errArchive struct{ err error }

func (e errArchive) Error() string { return e.err.Error() }
func (e errArchive) Unwrap() error { return e.err }

// codeFor classifies a step failure.
func codeFor(err error) ErrorCode {
	var ae errArchive
	switch {
	case errors.As(err, &ae):
		return ErrCodeArchiveFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeCancelled
	case errors.Is(err, newton.ErrLinearSolve):
		return ErrCodeLinearSolveFailed
	default:
		return ErrCodeNewtonDiverged
	}
}
