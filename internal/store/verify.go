package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/adrfem/internal/canonical"
)

// Mismatch describes one inconsistency found by VerifyRun.
type Mismatch struct {
	Seq     int64
	Message string
}

// Verification is the result of re-checking an archived run.
type Verification struct {
	RunID     string
	Snapshots int
	Steps     int
	LastSeq   int64
	// Mismatches is empty when the run is consistent.
	Mismatches []Mismatch
}

// OK reports whether no inconsistencies were found.
func (v Verification) OK() bool { return len(v.Mismatches) == 0 }

// VerifyRun re-reads an archived run and checks that:
//   - every snapshot's stored values hash to its stored hash
//   - output indices are 0, 1, 2, ... in seq order
//   - a finished run's accepted step count matches the recorded total
func (s *Store) VerifyRun(ctx context.Context, runID string) (Verification, error) {
	v := Verification{RunID: runID}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return v, fmt.Errorf("verify run: %w", err)
	}
	snaps, err := s.ReadSnapshots(ctx, runID)
	if err != nil {
		return v, fmt.Errorf("verify run: %w", err)
	}
	steps, err := s.ReadSteps(ctx, runID)
	if err != nil {
		return v, fmt.Errorf("verify run: %w", err)
	}
	v.Snapshots, v.Steps = len(snaps), len(steps)

	for i, snap := range snaps {
		if snap.Index != i {
			v.Mismatches = append(v.Mismatches, Mismatch{Seq: snap.Seq, Message: fmt.Sprintf("output index %d, want %d", snap.Index, i)})
		}
		hash, err := canonical.SnapshotHash(snap.T, snap.Values)
		if err != nil {
			v.Mismatches = append(v.Mismatches, Mismatch{Seq: snap.Seq, Message: err.Error()})
			continue
		}
		if hash != snap.Hash {
			v.Mismatches = append(v.Mismatches, Mismatch{Seq: snap.Seq, Message: fmt.Sprintf("hash %s, stored %s", hash, snap.Hash)})
		}
	}

	accepted := 0
	for _, st := range steps {
		if st.Accepted {
			accepted++
		}
	}
	if run.Status != StatusRunning && accepted != run.Steps {
		v.Mismatches = append(v.Mismatches, Mismatch{Message: fmt.Sprintf("%d accepted steps archived, run records %d", accepted, run.Steps)})
	}

	if v.LastSeq, err = s.GetLastSeq(ctx, runID); err != nil {
		return v, fmt.Errorf("verify run: %w", err)
	}
	return v, nil
}

// GetLastSeq returns the highest seq recorded for a run across steps and
// snapshots, or 0 if there are none.
func (s *Store) GetLastSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM steps WHERE run_id = ?
			UNION ALL
			SELECT seq FROM snapshots WHERE run_id = ?
		)
	`, runID, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq.Int64, nil
}
