package solver

import (
	"errors"
	"time"

	"github.com/roach88/adrfem/internal/newton"
)

// RunInfo describes a run when it begins.
type RunInfo struct {
	RunID           string
	Name            string
	ProblemHash     string
	Problem         []byte // canonical problem document, may be empty
	Nodes           int
	Elements        int
	TimeIntegration string
	StartedAt       time.Time
}

// StepReport describes one attempted time step.
type StepReport struct {
	RunID    string
	Seq      int64
	Step     int // accepted steps before this attempt
	T        float64
	DT       float64
	Accepted bool
	Newton   newton.Report
	Duration time.Duration
	Err      error
}

// Snapshot is the solution at an output time.
type Snapshot struct {
	RunID string
	Seq   int64
	Index int
	T     float64
	U     []float64
	Hash  string
}

// Observer receives run events. Any error aborts the run with
// ARCHIVE_FAILED, except from EndRun, whose error is returned after the
// result has been computed.
type Observer interface {
	BeginRun(info RunInfo) error
	OnStep(step StepReport) error
	OnOutput(snap Snapshot) error
	EndRun(result Result, runErr error) error
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

// BeginRun implements Observer.
func (m MultiObserver) BeginRun(info RunInfo) error {
	for _, o := range m {
		if err := o.BeginRun(info); err != nil {
			return err
		}
	}
	return nil
}

// OnStep implements Observer.
func (m MultiObserver) OnStep(step StepReport) error {
	for _, o := range m {
		if err := o.OnStep(step); err != nil {
			return err
		}
	}
	return nil
}

// OnOutput implements Observer.
func (m MultiObserver) OnOutput(snap Snapshot) error {
	for _, o := range m {
		if err := o.OnOutput(snap); err != nil {
			return err
		}
	}
	return nil
}

// EndRun implements Observer. Every observer sees the end of the run even
// when an earlier one fails.
func (m MultiObserver) EndRun(result Result, runErr error) error {
	var errs []error
	for _, o := range m {
		if err := o.EndRun(result, runErr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
