// Package store provides SQLite-backed durable storage for solver runs.
//
// The archive holds:
//   - Runs: one row per CalculateSolution call, with the canonical problem
//     document, its hash and the final status
//   - Steps: every attempted time step with its Newton statistics
//   - Snapshots: the nodal solution at each output time with its content hash
//
// # Ordering
//
// Runs are listed by created_seq and steps and snapshots by the run's
// logical clock seq, never by timestamps, so listings are identical however
// fast the machine was.
//
// # Idempotency
//
// CreateRun, WriteStep and WriteSnapshot use ON CONFLICT DO NOTHING keyed on
// (id) and (run_id, seq), so an observer that retries a write does not
// duplicate rows.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Snapshot values are stored as canonical JSON and their hashes computed
// with package canonical, so VerifyRun can detect tampered or truncated rows.
package store
