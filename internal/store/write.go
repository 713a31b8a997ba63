package store

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Run is an archived solver run.
type Run struct {
	ID              string
	CreatedSeq      int64
	Name            string
	ProblemHash     string
	Problem         string // canonical problem document, may be empty
	TimeIntegration string
	Nodes           int
	Elements        int
	Status          RunStatus
	FailureCode     string
	Failure         string
	Steps           int
	FailedSteps     int
	CreatedAt       time.Time
	FinishedAt      time.Time // zero while running
}

// Outcome is what FinishRun records.
type Outcome struct {
	Status      RunStatus
	FailureCode string
	Failure     string
	Steps       int
	FailedSteps int
	FinishedAt  time.Time
}

// Step is one attempted time step.
type Step struct {
	RunID            string
	Seq              int64
	Step             int
	T                float64
	DT               float64
	Accepted         bool
	NewtonIterations int
	LinearIterations int
	Residual         float64 // NaN when unknown
	Error            string
	Duration         time.Duration
}

// Snapshot is the solution at one output time.
type Snapshot struct {
	RunID  string
	Seq    int64
	Index  int
	T      float64
	Hash   string
	Values []float64
}

// CreateRun inserts a run in the running state. The run's CreatedSeq is
// assigned by the store; the value in run is ignored.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, created_seq, name, problem_hash, problem, time_integration, nodes, elements, status, created_at)
		VALUES (?, (SELECT COALESCE(MAX(created_seq), 0) + 1 FROM runs), ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Name,
		run.ProblemHash,
		run.Problem,
		run.TimeIntegration,
		run.Nodes,
		run.Elements,
		string(StatusRunning),
		formatTime(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// WriteStep records an attempted step.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteStep(ctx context.Context, st Step) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps
		(run_id, seq, step, t, dt, accepted, newton_iterations, linear_iterations, residual, error, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		st.RunID,
		st.Seq,
		st.Step,
		st.T,
		st.DT,
		st.Accepted,
		st.NewtonIterations,
		st.LinearIterations,
		nullableFloat(st.Residual),
		st.Error,
		st.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	return nil
}

// WriteSnapshot records an output snapshot. Values are stored as canonical
// JSON. Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	values, err := marshalValues(snap.Values)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(run_id, seq, idx, t, hash, "values")
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		snap.RunID,
		snap.Seq,
		snap.Index,
		snap.T,
		snap.Hash,
		values,
	)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run. Returns ErrNotFound if the run
// does not exist.
func (s *Store) FinishRun(ctx context.Context, id string, out Outcome) error {
	switch out.Status {
	case StatusSucceeded, StatusFailed:
	default:
		return fmt.Errorf("finish run: invalid final status %q", out.Status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, failure_code = ?, failure = ?, steps = ?, failed_steps = ?, finished_at = ?
		WHERE id = ?
	`,
		string(out.Status),
		out.FailureCode,
		out.Failure,
		out.Steps,
		out.FailedSteps,
		formatTime(out.FinishedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

// nullableFloat maps non-finite values to NULL; SQLite cannot store NaN.
func nullableFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
