package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/problem"
	"github.com/roach88/adrfem/internal/solver"
	"github.com/roach88/adrfem/internal/store"
	"github.com/roach88/adrfem/internal/testutil"
)

// Option configures Run and ConvergenceStudy.
type Option func(*options)

type options struct {
	log       *zap.Logger
	observers []solver.Observer
}

// WithLogger sets the logger handed to the solver. The default discards
// output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithObserver adds observers notified after the harness archive.
func WithObserver(obs ...solver.Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs...)
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Harness runs one case against a private archive.
type Harness struct {
	store  *store.Store
	clock  *testutil.ManualClock
	runIDs *testutil.FixedRunID
	opts   options
}

// Run solves the case's problem and evaluates its assertions.
//
// A failed solve is not an error: it is reported through the converged and
// failure_code assertions. Run returns an error when the case cannot be
// built, when ctx is cancelled, or when the archive fails.
//
// Execution flow:
// 1. Resolve the problem definition and exact solution
// 2. Open a fresh in-memory archive
// 3. Solve with a fixed run ID and a manual clock
// 4. Evaluate assertions against the archived snapshots
func Run(ctx context.Context, c *Case, opts ...Option) (*Report, error) {
	def := c.Definition
	if def == nil {
		if c.Problem == "" {
			return nil, fmt.Errorf("case %q has no problem", c.Name)
		}
		loaded, err := problem.LoadFile(c.Problem)
		if err != nil {
			return nil, fmt.Errorf("case %q: %w", c.Name, err)
		}
		def = loaded
	}
	exact, err := problem.Resolve(c.Exact)
	if err != nil {
		return nil, fmt.Errorf("case %q: exact: %w", c.Name, err)
	}
	cfg, err := def.Build()
	if err != nil {
		return nil, fmt.Errorf("case %q: %w", c.Name, err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewManualClock(time.Time{}, time.Second),
		runIDs: testutil.NewFixedRunID(c.RunID),
		opts:   buildOptions(opts),
	}
	return h.run(ctx, c, cfg, exact)
}

func (h *Harness) run(ctx context.Context, c *Case, cfg solver.Config, exact physics.ScalarFunc) (*Report, error) {
	observers := append([]solver.Observer{store.NewRecorder(ctx, h.store, store.WithClock(h.clock.Now))}, h.opts.observers...)
	sol, err := solver.New(cfg,
		solver.WithLogger(h.opts.log),
		solver.WithObserver(observers...),
		solver.WithRunIDGenerator(h.runIDs),
		solver.WithNow(h.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("case %q: %w", c.Name, err)
	}

	result, runErr := sol.CalculateSolution(ctx, c.Name)
	var se *solver.SolveError
	if errors.As(runErr, &se) && (se.Code == solver.ErrCodeCancelled || se.Code == solver.ErrCodeArchiveFailed) {
		return nil, fmt.Errorf("case %q: %w", c.Name, runErr)
	}

	snaps, err := h.store.ReadSnapshots(ctx, result.RunID)
	if err != nil {
		return nil, fmt.Errorf("case %q: %w", c.Name, err)
	}

	report := &Report{
		Case:        c.Name,
		RunID:       result.RunID,
		Pass:        true,
		Steps:       result.Steps,
		FailedSteps: result.FailedSteps,
		Times:       result.Times,
		Assertions:  []AssertionResult{},
	}
	if report.Times == nil {
		report.Times = []float64{}
	}
	if runErr != nil {
		report.Failure = runErr.Error()
		if se != nil {
			report.FailureCode = string(se.Code)
		}
	}

	ev := &evaluation{
		ctx:     ctx,
		tr:      sol.Transport(),
		bcs:     cfg.Boundary,
		exact:   exact,
		runErr:  runErr,
		archive: h.store,
		runID:   result.RunID,
		snaps:   snaps,
	}
	for _, a := range c.Assertions {
		report.add(ev.evaluate(a))
	}

	h.opts.log.Info("case finished",
		zap.String("case", c.Name),
		zap.Bool("pass", report.Pass),
		zap.Int("steps", report.Steps),
		zap.Int("failed_steps", report.FailedSteps))
	return report, nil
}
