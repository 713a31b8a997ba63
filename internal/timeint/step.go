package timeint

import (
	"errors"
	"fmt"
	"math"
)

// ErrStepTooSmall is returned by StepController.Fail when halving would take
// the step below MinDT.
var ErrStepTooSmall = errors.New("timeint: time step below minimum")

// StepController chooses and adapts the time step.
type StepController struct {
	// DT is the fixed step, or the upper bound when RunCFL is set.
	DT float64
	// RunCFL, when positive, selects dt = RunCFL·h_min/speed.
	RunCFL float64
	// MinDT is the smallest step Fail may return.
	MinDT float64
	// MaxFailures bounds consecutive failed attempts of one step.
	MaxFailures int
	// Fallback is used when neither DT nor a CFL step is available, as
	// when RunCFL is set and the solution is at rest.
	Fallback float64
}

// Initial returns the step size for a mesh with smallest element diameter
// hmin and maximum characteristic speed.
func (c StepController) Initial(hmin, speed float64) (float64, error) {
	dt := c.DT
	if c.RunCFL > 0 && speed > 0 && hmin > 0 {
		cfl := c.RunCFL * hmin / speed
		if dt <= 0 || cfl < dt {
			dt = cfl
		}
	}
	if dt <= 0 {
		dt = c.Fallback
	}
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return 0, fmt.Errorf("timeint: no usable time step (dt=%g, run_cfl=%g, speed=%g)", c.DT, c.RunCFL, speed)
	}
	return dt, nil
}

// Clip shortens dt so that a step from t never passes the output time tOut.
// A remainder shorter than a hundredth of dt is absorbed into the step. The
// second result reports whether the step lands on tOut.
func (c StepController) Clip(t, dt, tOut float64) (float64, bool) {
	remaining := tOut - t
	if dt >= remaining || remaining-dt < 0.01*dt {
		return remaining, true
	}
	return dt, false
}

// Fail halves dt after a failed attempt.
func (c StepController) Fail(dt float64) (float64, error) {
	half := dt / 2
	if half < c.MinDT {
		return 0, fmt.Errorf("%w: %g < %g", ErrStepTooSmall, half, c.MinDT)
	}
	return half, nil
}

// Exhausted reports whether failures consecutive failures exceed the limit.
// A non-positive MaxFailures means no limit besides MinDT.
func (c StepController) Exhausted(failures int) bool {
	return c.MaxFailures > 0 && failures > c.MaxFailures
}

// OutputTimes returns n output times evenly spaced on (t0, tFinal], ending
// exactly at tFinal. n < 1 yields just tFinal.
func OutputTimes(t0, tFinal float64, n int) []float64 {
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		out[i-1] = t0 + (tFinal-t0)*float64(i)/float64(n)
	}
	out[n-1] = tFinal
	return out
}
