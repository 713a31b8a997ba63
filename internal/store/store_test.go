package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/adrfem/internal/assembly"
	"github.com/roach88/adrfem/internal/canonical"
	"github.com/roach88/adrfem/internal/linalg"
	"github.com/roach88/adrfem/internal/mesh"
	"github.com/roach88/adrfem/internal/newton"
	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/solver"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)

func createTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateRun(context.Background(), Run{
		ID:              id,
		Name:            "run " + id,
		ProblemHash:     "hash-" + id,
		Problem:         `{"name":"x"}`,
		TimeIntegration: "bdf2",
		Nodes:           16,
		Elements:        18,
		CreatedAt:       testTime,
	}))
}

func TestOpen_Pragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
	require.NoError(t, s.Close())

	// Reopening an existing archive is a no-op.
	s, err = Open(path)
	require.NoError(t, err)
	assert.NoError(t, s.verifyPragma("user_version", "1"))
	require.NoError(t, s.Close())
}

func TestStore_CreateAndGetRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "a")

	run, err := s.GetRun(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Run{
		ID:              "a",
		CreatedSeq:      1,
		Name:            "run a",
		ProblemHash:     "hash-a",
		Problem:         `{"name":"x"}`,
		TimeIntegration: "bdf2",
		Nodes:           16,
		Elements:        18,
		Status:          StatusRunning,
		CreatedAt:       testTime,
	}, run)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListRunsOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	for _, id := range []string{"zeta", "alpha", "mid"} {
		createTestRun(t, s, id)
	}
	// Duplicate create is ignored and keeps the original position.
	createTestRun(t, s, "zeta")

	runs, err = s.ListRuns(ctx)
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
		assert.Equal(t, int64(i+1), r.CreatedSeq)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, ids)
}

func TestStore_WriteStep(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")

	ok := Step{RunID: "r", Seq: 2, Step: 0, T: 0.1, DT: 0.1, Accepted: true,
		NewtonIterations: 3, LinearIterations: 17, Residual: 1e-11, Duration: 5 * time.Millisecond}
	failed := Step{RunID: "r", Seq: 3, Step: 1, T: 0.2, DT: 0.1,
		NewtonIterations: 1, Residual: math.NaN(), Error: "newton: diverged"}

	require.NoError(t, s.WriteStep(ctx, ok))
	require.NoError(t, s.WriteStep(ctx, failed))
	require.NoError(t, s.WriteStep(ctx, ok), "duplicate write is idempotent")

	steps, err := s.ReadSteps(ctx, "r")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, ok, steps[0])
	assert.True(t, math.IsNaN(steps[1].Residual))
	assert.False(t, steps[1].Accepted)
	assert.Equal(t, "newton: diverged", steps[1].Error)
}

func TestStore_WriteStepUnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteStep(context.Background(), Step{RunID: "ghost", Seq: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREIGN KEY")
}

func TestStore_Snapshots(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")

	_, err := s.LatestSnapshot(ctx, "r")
	assert.ErrorIs(t, err, ErrNotFound)

	values := []float64{0.1, -3.5e300, 1e-7, 1.0 / 3, 0, 123456789.125}
	hash, err := canonical.SnapshotHash(0.5, values)
	require.NoError(t, err)

	require.NoError(t, s.WriteSnapshot(ctx, Snapshot{RunID: "r", Seq: 1, Index: 0, T: 0, Hash: "h0", Values: []float64{1, 2}}))
	require.NoError(t, s.WriteSnapshot(ctx, Snapshot{RunID: "r", Seq: 7, Index: 1, T: 0.5, Hash: hash, Values: values}))
	require.NoError(t, s.WriteSnapshot(ctx, Snapshot{RunID: "r", Seq: 7, Index: 1, T: 0.5, Hash: "other", Values: nil}))

	snaps, err := s.ReadSnapshots(ctx, "r")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	if diff := cmp.Diff(values, snaps[1].Values); diff != "" {
		t.Errorf("values changed in the archive (-want +got):\n%s", diff)
	}

	latest, err := s.LatestSnapshot(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{RunID: "r", Seq: 7, Index: 1, T: 0.5, Hash: hash, Values: values}, latest)

	last, err := s.GetLastSeq(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, int64(7), last)
}

func TestStore_SnapshotIndexUnique(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")

	require.NoError(t, s.WriteSnapshot(ctx, Snapshot{RunID: "r", Seq: 1, Index: 0, Hash: "a"}))
	err := s.WriteSnapshot(ctx, Snapshot{RunID: "r", Seq: 2, Index: 0, Hash: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE")
}

func TestStore_FinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")

	finished := testTime.Add(time.Minute)
	require.NoError(t, s.FinishRun(ctx, "r", Outcome{
		Status:      StatusFailed,
		FailureCode: "DT_TOO_SMALL",
		Failure:     "step halving",
		Steps:       4,
		FailedSteps: 9,
		FinishedAt:  finished,
	}))

	run, err := s.GetRun(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "DT_TOO_SMALL", run.FailureCode)
	assert.Equal(t, 4, run.Steps)
	assert.Equal(t, 9, run.FailedSteps)
	assert.Equal(t, finished, run.FinishedAt)

	assert.Error(t, s.FinishRun(ctx, "r", Outcome{Status: StatusRunning}))
	assert.ErrorIs(t, s.FinishRun(ctx, "nope", Outcome{Status: StatusSucceeded}), ErrNotFound)
}

func TestStore_VerifyRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")

	for i, tt := range []float64{0, 0.5} {
		u := []float64{tt, 2 * tt}
		hash, err := canonical.SnapshotHash(tt, u)
		require.NoError(t, err)
		require.NoError(t, s.WriteSnapshot(ctx, Snapshot{RunID: "r", Seq: int64(2 * i), Index: i, T: tt, Hash: hash, Values: u}))
	}
	require.NoError(t, s.WriteStep(ctx, Step{RunID: "r", Seq: 1, T: 0.5, DT: 0.5, Accepted: true}))
	require.NoError(t, s.FinishRun(ctx, "r", Outcome{Status: StatusSucceeded, Steps: 1}))

	v, err := s.VerifyRun(ctx, "r")
	require.NoError(t, err)
	assert.True(t, v.OK(), "mismatches: %v", v.Mismatches)
	assert.Equal(t, 2, v.Snapshots)
	assert.Equal(t, 1, v.Steps)
	assert.Equal(t, int64(2), v.LastSeq)

	_, err = s.db.Exec(`UPDATE snapshots SET "values" = '[0,1]' WHERE seq = 2`)
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE runs SET steps = 3 WHERE id = 'r'`)
	require.NoError(t, err)

	v, err = s.VerifyRun(ctx, "r")
	require.NoError(t, err)
	require.Len(t, v.Mismatches, 2)
	assert.Equal(t, int64(2), v.Mismatches[0].Seq)
	assert.Contains(t, v.Mismatches[1].Message, "run records 3")

	_, err = s.VerifyRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func decayConfig(t *testing.T) solver.Config {
	t.Helper()
	m, err := mesh.NewRectangle(mesh.RectangleSpec{LX: 1, LY: 1, NX: 2, NY: 2})
	require.NoError(t, err)
	return solver.Config{
		Name:            "decay",
		Mesh:            m,
		Coefficients:    physics.LinearADR{Mass: 1, Reaction: 1},
		Initial:         physics.Constant(1),
		Assembly:        assembly.DefaultOptions(),
		TimeIntegration: "backward_euler",
		Linear:          linalg.Config{Kind: linalg.KindDirect},
		Newton:          newton.Default(),
		Times:           solver.TimeConfig{TFinal: 0.3, DT: 0.1, NOutput: 3},
		ProblemHash:     "problem-hash",
		Problem:         []byte(`{"name":"decay"}`),
	}
}

func TestRecorder_ArchivesRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	clock := func() time.Time { return testTime }
	sol, err := solver.New(decayConfig(t),
		solver.WithObserver(NewRecorder(ctx, s, WithClock(clock))),
		solver.WithNow(clock),
		solver.WithRunIDGenerator(solver.NewFixedGenerator("run-1")))
	require.NoError(t, err)

	res, err := sol.CalculateSolution(ctx, "")
	require.NoError(t, err)

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, "problem-hash", run.ProblemHash)
	assert.Equal(t, `{"name":"decay"}`, run.Problem)
	assert.Equal(t, 9, run.Nodes)
	assert.Equal(t, 3, run.Steps)
	assert.Equal(t, testTime, run.CreatedAt)
	assert.Equal(t, testTime, run.FinishedAt)

	steps, err := s.ReadSteps(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, steps, 3)

	latest, err := s.LatestSnapshot(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Index)
	assert.Equal(t, res.U, latest.Values)

	v, err := s.VerifyRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, v.OK(), "mismatches: %v", v.Mismatches)
}

func TestRecorder_ArchivesCancelledRun(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sol, err := solver.New(decayConfig(t),
		solver.WithObserver(NewRecorder(ctx, s)),
		solver.WithRunIDGenerator(solver.NewFixedGenerator("run-c")))
	require.NoError(t, err)

	_, err = sol.CalculateSolution(ctx, "")
	require.True(t, solver.IsCancelled(err), "got %v", err)

	run, err := s.GetRun(context.Background(), "run-c")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, string(solver.ErrCodeCancelled), run.FailureCode)
}

func TestRecorder_DuplicateRunID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := NewRecorder(ctx, s)

	for i := 0; i < 2; i++ {
		sol, err := solver.New(decayConfig(t),
			solver.WithObserver(rec),
			solver.WithRunIDGenerator(solver.NewFixedGenerator("same")))
		require.NoError(t, err)
		_, err = sol.CalculateSolution(ctx, "")
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	snaps, err := s.ReadSnapshots(ctx, "same")
	require.NoError(t, err)
	assert.Len(t, snaps, 4)
}
