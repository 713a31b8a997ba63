package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/adrfem/internal/assembly"
	"github.com/roach88/adrfem/internal/canonical"
	"github.com/roach88/adrfem/internal/linalg"
	"github.com/roach88/adrfem/internal/mesh"
	"github.com/roach88/adrfem/internal/newton"
	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/timeint"
)

// TimeConfig controls time stepping. Steady problems solve once at TFinal.
type TimeConfig struct {
	T0, TFinal float64
	// DT is the nominal step; with RunCFL it is an upper bound.
	DT     float64
	RunCFL float64
	// NOutput output times are spread evenly over (T0, TFinal].
	NOutput     int
	MinDT       float64
	MaxFailures int
}

// Config is a fully resolved problem.
type Config struct {
	Name            string
	Mesh            *mesh.Mesh
	Coefficients    physics.Coefficients
	Boundary        physics.BoundaryConditions
	Initial         physics.ScalarFunc // nil means zero
	Assembly        assembly.Options
	TimeIntegration string
	Linear          linalg.Config
	Newton          newton.Newton
	Times           TimeConfig

	// ProblemHash and Problem identify the source document for observers.
	ProblemHash string
	Problem     []byte
}

// Result is the outcome of CalculateSolution. Failed is set exactly when an
// error is returned.
type Result struct {
	RunID       string
	Name        string
	Failed      bool
	Times       []float64 // output times reached, including the initial time
	Steps       int       // accepted steps
	FailedSteps int       // rejected attempts
	U           []float64 // solution at the last output time reached
}

// Option configures a NumericalSolution.
type Option func(*NumericalSolution)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(s *NumericalSolution) {
		s.log = l
	}
}

// WithObserver adds observers, notified in the order given.
func WithObserver(obs ...Observer) Option {
	return func(s *NumericalSolution) {
		s.observers = append(s.observers, obs...)
	}
}

// WithRunIDGenerator replaces the UUIDv7 run ID generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(s *NumericalSolution) {
		s.ids = g
	}
}

// WithNow sets the wall clock used to stamp runs. The default is time.Now.
func WithNow(now func() time.Time) Option {
	return func(s *NumericalSolution) {
		s.now = now
	}
}

// NumericalSolution solves one configured problem. CalculateSolution may be
// called repeatedly but not concurrently.
type NumericalSolution struct {
	cfg       Config
	transport *assembly.Transport
	linear    linalg.Solver
	observers MultiObserver
	ids       RunIDGenerator
	log       *zap.Logger
	now       func() time.Time
}

// New validates cfg and prepares the assembler and linear solver.
func New(cfg Config, opts ...Option) (*NumericalSolution, error) {
	s := &NumericalSolution{
		cfg: cfg,
		ids: UUIDv7Generator{},
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Mesh == nil {
		return nil, errors.New("solver: config has no mesh")
	}
	if cfg.Coefficients == nil {
		return nil, errors.New("solver: config has no coefficients")
	}
	integ, err := timeint.New(cfg.TimeIntegration)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	if cfg.Times.TFinal < cfg.Times.T0 || (!integ.Steady() && cfg.Times.TFinal == cfg.Times.T0) {
		return nil, fmt.Errorf("solver: t_final %g must be after t0 %g", cfg.Times.TFinal, cfg.Times.T0)
	}
	if cfg.Newton.MaxIter < 1 {
		return nil, fmt.Errorf("solver: newton max_iter must be positive, got %d", cfg.Newton.MaxIter)
	}

	aopts := cfg.Assembly
	if aopts.Logger == nil {
		aopts.Logger = s.log
	}
	tr, err := assembly.New(cfg.Mesh, cfg.Coefficients, cfg.Boundary, aopts)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	lin, err := linalg.New(cfg.Linear)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}

	s.transport = tr
	s.linear = lin
	return s, nil
}

// Transport exposes the assembler, for error norms and diagnostics.
func (s *NumericalSolution) Transport() *assembly.Transport { return s.transport }

// Config returns the configuration the solution was built from.
func (s *NumericalSolution) Config() Config { return s.cfg }

// CalculateSolution runs the problem to its final time. name labels the
// run; an empty name uses Config.Name.
func (s *NumericalSolution) CalculateSolution(ctx context.Context, name string) (Result, error) {
	if name == "" {
		name = s.cfg.Name
	}
	start := time.Now()
	info := RunInfo{
		RunID:           s.ids.Generate(),
		Name:            name,
		ProblemHash:     s.cfg.ProblemHash,
		Problem:         s.cfg.Problem,
		Nodes:           s.cfg.Mesh.NumNodes(),
		Elements:        s.cfg.Mesh.NumElements(),
		TimeIntegration: s.cfg.TimeIntegration,
		StartedAt:       s.now().UTC(),
	}
	log := s.log.With(zap.String("run_id", info.RunID), zap.String("name", name))

	result := Result{RunID: info.RunID, Name: name}
	if err := s.observers.BeginRun(info); err != nil {
		result.Failed = true
		return result, &SolveError{Code: ErrCodeArchiveFailed, Message: "begin run", RunID: info.RunID, Err: err}
	}

	r := &run{
		NumericalSolution: s,
		ctx:               ctx,
		log:               log,
		result:            result,
		clock:             &Clock{},
	}
	runErr := r.execute()
	r.result.Failed = runErr != nil

	if err := s.observers.EndRun(r.result, runErr); err != nil && runErr == nil {
		runErr = &SolveError{Code: ErrCodeArchiveFailed, Message: "end run", RunID: info.RunID, Err: err}
		r.result.Failed = true
	}

	if runErr != nil {
		log.Warn("solve failed", zap.Error(runErr))
	} else {
		log.Info("solve finished",
			zap.Int("steps", r.result.Steps),
			zap.Int("failed_steps", r.result.FailedSteps),
			zap.Duration("elapsed", time.Since(start)))
	}
	return r.result, runErr
}

// run holds the state of one CalculateSolution call.
type run struct {
	*NumericalSolution
	ctx    context.Context
	log    *zap.Logger
	result Result
	clock  *Clock
	integ  timeint.Integrator
	u      []float64
	t      float64
	lag    []float64
}

func (r *run) fail(code ErrorCode, msg string, dt float64, err error) error {
	return &SolveError{
		Code:    code,
		Message: msg,
		RunID:   r.result.RunID,
		T:       r.t,
		DT:      dt,
		Step:    r.result.Steps,
		Err:     err,
	}
}

func (r *run) execute() error {
	integ, err := timeint.New(r.cfg.TimeIntegration)
	if err != nil {
		return r.fail(ErrCodeInternal, "time integration", 0, err)
	}
	r.integ = integ

	m := r.cfg.Mesh
	r.t = r.cfg.Times.T0
	r.u = make([]float64, m.NumNodes())
	if r.cfg.Initial != nil {
		for i, x := range m.Nodes {
			r.u[i] = r.cfg.Initial(x, r.t)
		}
	}

	if integ.Steady() {
		r.t = r.cfg.Times.TFinal
		if err := r.attempt(0); err != nil {
			code := codeFor(err)
			return r.fail(code, "steady solve", 0, err)
		}
		return r.output(0)
	}

	for i, g := range r.cfg.Boundary.DirichletNodes(m, r.t) {
		r.u[i] = g
	}
	integ.Init(r.transport.MassAtQuadrature(r.u, r.t))
	if err := r.output(0); err != nil {
		return err
	}

	ctrl := timeint.StepController{
		DT:          r.cfg.Times.DT,
		RunCFL:      r.cfg.Times.RunCFL,
		MinDT:       r.cfg.Times.MinDT,
		MaxFailures: r.cfg.Times.MaxFailures,
		Fallback:    (r.cfg.Times.TFinal - r.cfg.Times.T0) / float64(max(r.cfg.Times.NOutput, 1)),
	}
	hmin := m.MinDiameter()

	for k, tOut := range timeint.OutputTimes(r.cfg.Times.T0, r.cfg.Times.TFinal, r.cfg.Times.NOutput) {
		failures := 0
		dt := 0.0
		for r.t < tOut {
			if err := r.ctx.Err(); err != nil {
				return r.fail(ErrCodeCancelled, "cancelled", dt, err)
			}
			if dt == 0 {
				nominal, err := ctrl.Initial(hmin, r.transport.MaxSpeed(r.u, r.t))
				if err != nil {
					return r.fail(ErrCodeDTTooSmall, "step size", 0, err)
				}
				dt = nominal
			}
			step, hit := ctrl.Clip(r.t, dt, tOut)

			err := r.attempt(step)
			if err == nil {
				if hit {
					r.t = tOut
				}
				failures = 0
				dt = 0
				continue
			}

			code := codeFor(err)
			if code == ErrCodeCancelled || code == ErrCodeArchiveFailed {
				return r.fail(code, "step", step, err)
			}
			failures++
			r.result.FailedSteps++
			if ctrl.Exhausted(failures) {
				return r.fail(code, fmt.Sprintf("step rejected %d times", failures), step, err)
			}
			next, ferr := ctrl.Fail(step)
			if ferr != nil {
				return r.fail(ErrCodeDTTooSmall, "step halving", step, errors.Join(ferr, err))
			}
			r.log.Warn("step rejected, halving",
				zap.Float64("t", r.t),
				zap.Float64("dt", step),
				zap.Float64("next_dt", next),
				zap.Error(err))
			dt = next
		}
		if err := r.output(k + 1); err != nil {
			return err
		}
	}
	return nil
}

// attempt advances from r.t by dt (steady when dt is zero) and commits the
// result on success.
func (r *run) attempt(dt float64) error {
	start := time.Now()
	tNew := r.t + dt
	m := r.cfg.Mesh

	trial := make([]float64, len(r.u))
	copy(trial, r.u)
	dir := r.cfg.Boundary.DirichletNodes(m, tNew)
	for i, g := range dir {
		trial[i] = g
	}

	st := assembly.State{
		T:         tNew,
		U:         trial,
		Mass:      r.integ.Begin(dt),
		Dirichlet: dir,
		ShockLag:  r.lag,
	}
	nwt := r.cfg.Newton
	if nwt.Logger == nil {
		nwt.Logger = r.log
	}
	rep, err := nwt.Solve(r.ctx, &stepSystem{tr: r.transport, st: st}, r.linear, trial)

	report := StepReport{
		RunID:    r.result.RunID,
		Seq:      r.clock.Next(),
		Step:     r.result.Steps,
		T:        tNew,
		DT:       dt,
		Accepted: err == nil,
		Newton:   rep,
		Duration: time.Since(start),
		Err:      err,
	}
	if oerr := r.observers.OnStep(report); oerr != nil {
		return errArchive{oerr}
	}
	if err != nil {
		return err
	}

	r.u = trial
	r.t = tNew
	r.result.Steps++
	r.integ.Accept(r.transport.MassAtQuadrature(r.u, r.t))
	if sc := r.cfg.Assembly.ShockCapturing; sc.Lag && sc.Factor > 0 {
		st.U = r.u
		lag, err := r.transport.ShockViscosity(r.ctx, st)
		if err != nil {
			return err
		}
		r.lag = lag
	}

	r.log.Debug("step accepted",
		zap.Float64("t", r.t),
		zap.Float64("dt", dt),
		zap.Int("newton_iterations", rep.Iterations),
		zap.Int("linear_iterations", rep.LinearIterations),
		zap.Float64("residual", rep.Residual))
	return nil
}

// output records the current solution as output number index.
func (r *run) output(index int) error {
	u := make([]float64, len(r.u))
	copy(u, r.u)
	hash, err := canonical.SnapshotHash(r.t, u)
	if err != nil {
		return r.fail(ErrCodeInternal, "snapshot", 0, err)
	}
	snap := Snapshot{
		RunID: r.result.RunID,
		Seq:   r.clock.Next(),
		Index: index,
		T:     r.t,
		U:     u,
		Hash:  hash,
	}
	if err := r.observers.OnOutput(snap); err != nil {
		return r.fail(ErrCodeArchiveFailed, "record output", 0, err)
	}
	r.result.Times = append(r.result.Times, r.t)
	r.result.U = u
	r.log.Info("output",
		zap.Int("index", index),
		zap.Float64("t", r.t),
		zap.Int("steps", r.result.Steps))
	return nil
}
