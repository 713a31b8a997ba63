package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

const runColumns = `id, created_seq, name, problem_hash, problem, time_integration, nodes, elements,
	status, failure_code, failure, steps, failed_steps, created_at, finished_at`

// GetRun retrieves a run by ID. Returns ErrNotFound if it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns all runs in creation order.
// Returns an empty slice (not nil) if the archive is empty.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadSteps returns the steps of a run ordered by seq.
func (s *Store) ReadSteps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, step, t, dt, accepted, newton_iterations, linear_iterations, residual, error, duration_ns
		FROM steps
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		var (
			st       Step
			residual sql.NullFloat64
			nanos    int64
		)
		if err := rows.Scan(&st.RunID, &st.Seq, &st.Step, &st.T, &st.DT, &st.Accepted,
			&st.NewtonIterations, &st.LinearIterations, &residual, &st.Error, &nanos); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		st.Residual = math.NaN()
		if residual.Valid {
			st.Residual = residual.Float64
		}
		st.Duration = time.Duration(nanos)
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// ReadSnapshots returns the snapshots of a run ordered by seq.
func (s *Store) ReadSnapshots(ctx context.Context, runID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, idx, t, hash, "values"
		FROM snapshots
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// LatestSnapshot returns the snapshot with the highest seq. Returns
// ErrNotFound if the run has no snapshots.
func (s *Store) LatestSnapshot(ctx context.Context, runID string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, seq, idx, t, hash, "values"
		FROM snapshots
		WHERE run_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, runID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("latest snapshot of %s: %w", runID, ErrNotFound)
	}
	return snap, err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run               Run
		status            string
		created, finished sql.NullString
	)
	err := sc.Scan(&run.ID, &run.CreatedSeq, &run.Name, &run.ProblemHash, &run.Problem,
		&run.TimeIntegration, &run.Nodes, &run.Elements, &status, &run.FailureCode, &run.Failure,
		&run.Steps, &run.FailedSteps, &created, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = RunStatus(status)
	if run.CreatedAt, err = parseTime(created); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

func scanSnapshot(sc scanner) (Snapshot, error) {
	var (
		snap   Snapshot
		values string
	)
	err := sc.Scan(&snap.RunID, &snap.Seq, &snap.Index, &snap.T, &snap.Hash, &values)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, err
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	if snap.Values, err = unmarshalValues(values); err != nil {
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	return snap, nil
}
