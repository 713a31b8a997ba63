// Package solver is the high-level entry point: it owns the time loop that
// turns a configured transport problem into a sequence of output snapshots.
//
// ARCHITECTURE:
//
// One call to CalculateSolution:
//  1. Interpolates the initial condition at the nodes and imposes Dirichlet
//     data at t0.
//  2. For each output time, repeatedly chooses a step (fixed or CFL based,
//     clipped to the output time), solves the step's nonlinear system with
//     Newton's method and either accepts it or halves the step and retries.
//  3. Emits a snapshot at every output time.
//
// Steady problems skip the loop and solve once at the final time.
//
// Every attempted step and every snapshot is reported to the configured
// observers (run archive, metrics) with a sequence number from the run's
// Clock, so observers see events in the order they happened.
//
// FAILURE FLAG:
//
// Result.Failed is true exactly when CalculateSolution returns an error, and
// that error is always a *SolveError whose Code names the failure category.
// The partial result (steps taken, last output reached) is still returned.
package solver
