package store

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/adrfem/internal/solver"
)

// Recorder archives solver events. It implements solver.Observer.
type Recorder struct {
	store *Store
	ctx   context.Context
	now   func() time.Time
}

var _ solver.Observer = (*Recorder)(nil)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock sets the clock that stamps finished runs.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder returns an observer writing to s. Writes carry ctx's values
// but not its cancellation, so a cancelled run is still archived in full
// and finished as failed.
func NewRecorder(ctx context.Context, s *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: s, ctx: context.WithoutCancel(ctx), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BeginRun implements solver.Observer.
func (r *Recorder) BeginRun(info solver.RunInfo) error {
	return r.store.CreateRun(r.ctx, Run{
		ID:              info.RunID,
		Name:            info.Name,
		ProblemHash:     info.ProblemHash,
		Problem:         string(info.Problem),
		TimeIntegration: info.TimeIntegration,
		Nodes:           info.Nodes,
		Elements:        info.Elements,
		CreatedAt:       info.StartedAt,
	})
}

// OnStep implements solver.Observer.
func (r *Recorder) OnStep(step solver.StepReport) error {
	st := Step{
		RunID:            step.RunID,
		Seq:              step.Seq,
		Step:             step.Step,
		T:                step.T,
		DT:               step.DT,
		Accepted:         step.Accepted,
		NewtonIterations: step.Newton.Iterations,
		LinearIterations: step.Newton.LinearIterations,
		Residual:         step.Newton.Residual,
		Duration:         step.Duration,
	}
	if step.Err != nil {
		st.Error = step.Err.Error()
	}
	return r.store.WriteStep(r.ctx, st)
}

// OnOutput implements solver.Observer.
func (r *Recorder) OnOutput(snap solver.Snapshot) error {
	return r.store.WriteSnapshot(r.ctx, Snapshot{
		RunID:  snap.RunID,
		Seq:    snap.Seq,
		Index:  snap.Index,
		T:      snap.T,
		Hash:   snap.Hash,
		Values: snap.U,
	})
}

// EndRun implements solver.Observer.
func (r *Recorder) EndRun(result solver.Result, runErr error) error {
	out := Outcome{
		Status:      StatusSucceeded,
		Steps:       result.Steps,
		FailedSteps: result.FailedSteps,
		FinishedAt:  r.now(),
	}
	if runErr != nil {
		out.Status = StatusFailed
		out.Failure = runErr.Error()
		var se *solver.SolveError
		if errors.As(runErr, &se) {
			out.FailureCode = string(se.Code)
		}
	}
	return r.store.FinishRun(r.ctx, result.RunID, out)
}
