// Package harness verifies solver behaviour against declarative cases.
//
// A case names a problem, optionally an exact solution, and the properties
// the computed solution must have:
//
//	name: steady-patch
//	description: linear elements reproduce a linear solution exactly
//	problem: ../problems/steady_patch.cue
//	exact: {fn: linear, params: {a: 1, bx: 2, by: -1}}
//	assertions:
//	  - type: converged
//	  - type: max_nodal_error
//	    max: 1.0e-9
//	  - type: dirichlet
//	    tolerance: 1.0e-12
//
// Instead of a problem path a case may carry the problem inline under
// definition. Problem paths are relative to the case file.
//
// # Assertion Types
//
//   - converged: the run finished without a failure
//   - failure_code: the run failed with the given solver error code
//   - max_nodal_error: max_i |u_i − exact(x_i, T)| ≤ max
//   - l2_error: ‖u_h − exact(·, T)‖_L2 ≤ max
//   - mass_conservation: ∫m(u) at the last output differs from the first by
//     at most tolerance, relative to the initial mass when it is non-zero
//   - bounds: every archived nodal value lies in [min, max]
//   - dirichlet: Dirichlet nodes match their prescribed values within
//     tolerance at the last output
//   - archive: the archived run re-verifies (snapshot hashes, indices, step
//     count)
//
// # Deterministic Runs
//
// Every case runs against a private in-memory archive with a fixed run ID
// (testutil.FixedRunID) and a ticking manual clock (testutil.ManualClock),
// so repeated runs archive byte-identical rows and render identical
// reports for golden comparison.
package harness
