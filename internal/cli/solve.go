package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/adrfem/internal/mesh"
	"github.com/roach88/adrfem/internal/metrics"
	"github.com/roach88/adrfem/internal/problem"
	"github.com/roach88/adrfem/internal/solver"
	"github.com/roach88/adrfem/internal/store"
)

// SolveOptions holds flags for the solve command.
type SolveOptions struct {
	*RootOptions
	Database string
	Out      string
	Metrics  bool
	Name     string

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, the solver's UUIDv7 generator is used.
	RunIDs solver.RunIDGenerator
}

// SolveOutput is the result of the solve command.
type SolveOutput struct {
	RunID       string    `json:"run_id"`
	Name        string    `json:"name"`
	ProblemHash string    `json:"problem_hash"`
	Failed      bool      `json:"failed"`
	FailureCode string    `json:"failure_code,omitempty"`
	Failure     string    `json:"failure,omitempty"`
	Steps       int       `json:"steps"`
	FailedSteps int       `json:"failed_steps"`
	Times       []float64 `json:"times"`
	Out         string    `json:"out,omitempty"`
	Metrics     []string  `json:"metrics,omitempty"`
}

// SolutionFile is the document written by --out.
type SolutionFile struct {
	RunID       string       `json:"run_id"`
	Name        string       `json:"name"`
	ProblemHash string       `json:"problem_hash"`
	T           float64      `json:"t"`
	Nodes       [][2]float64 `json:"nodes"`
	U           []float64    `json:"u"`
}

// NewSolveCommand creates the solve command.
func NewSolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "solve <problem>",
		Short: "Solve a problem",
		Long: `Solve a YAML or CUE problem document to its final time.

With --db every step and output snapshot is archived in a SQLite database
(created if it doesn't exist). With --out the solution at the last output
time is written atomically as JSON. The command exits with status 1 when the
solve fails.

Example:
  adrfem solve examples/problems/decay.yaml
  adrfem solve --db runs.db --out hill.json --metrics examples/problems/advection_hill.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "archive the run in this SQLite database")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the final solution to this JSON file")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print solver metrics after the run")
	cmd.Flags().StringVar(&opts.Name, "name", "", "run label (defaults to the problem name)")

	return cmd
}

func runSolve(opts *SolveOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	defer func() { _ = logger.Sync() }()

	def, err := loadProblem(formatter, path)
	if err != nil {
		return err
	}
	if verrs := def.Validate(); len(verrs) > 0 {
		return outputValidationErrors(formatter, def.Name, verrs)
	}
	cfg, err := def.Build()
	if err != nil {
		return WrapExitError(ExitCommandError, "build problem", err)
	}
	formatter.VerboseLog("Problem %q: %d nodes, %d elements", cfg.Name, cfg.Mesh.NumNodes(), cfg.Mesh.NumElements())

	ctx, stop := signalContext(cmd)
	defer stop()

	var observers []solver.Observer
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(string(solver.ErrCodeArchiveFailed), err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", zap.Error(closeErr))
			}
		}()
		observers = append(observers, store.NewRecorder(ctx, st))
	}
	var collector *metrics.Collector
	if opts.Metrics {
		collector = metrics.New()
		observers = append(observers, collector)
	}

	solverOpts := []solver.Option{solver.WithLogger(logger), solver.WithObserver(observers...)}
	if opts.RunIDs != nil {
		solverOpts = append(solverOpts, solver.WithRunIDGenerator(opts.RunIDs))
	}
	sol, err := solver.New(cfg, solverOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "configure solver", err)
	}

	res, runErr := sol.CalculateSolution(ctx, opts.Name)

	out := SolveOutput{
		RunID:       res.RunID,
		Name:        res.Name,
		ProblemHash: cfg.ProblemHash,
		Failed:      res.Failed,
		Steps:       res.Steps,
		FailedSteps: res.FailedSteps,
		Times:       res.Times,
	}
	if out.Times == nil {
		out.Times = []float64{}
	}

	if opts.Out != "" && len(res.Times) > 0 {
		if err := writeSolution(opts.Out, cfg.Mesh.Nodes, res, cfg.ProblemHash); err != nil {
			_ = formatter.Error(problem.ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "write solution", err)
		}
		out.Out = opts.Out
	}
	if collector != nil {
		var buf bytes.Buffer
		if err := collector.WriteSummary(&buf); err != nil {
			return WrapExitError(ExitCommandError, "gather metrics", err)
		}
		out.Metrics = strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	}

	if runErr != nil {
		code := problem.ErrCodeGeneric
		var se *solver.SolveError
		if errors.As(runErr, &se) {
			code = string(se.Code)
		}
		out.FailureCode, out.Failure = code, runErr.Error()
		_ = formatter.Error(code, runErr.Error(), out)
		return WrapExitError(ExitFailure, code, runErr)
	}
	return formatter.Success(out, formatSolveText(out))
}

// signalContext cancels the command's context on Ctrl-C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
}

func writeSolution(path string, nodes []mesh.Point, res solver.Result, hash string) error {
	doc := SolutionFile{
		RunID:       res.RunID,
		Name:        res.Name,
		ProblemHash: hash,
		T:           res.Times[len(res.Times)-1],
		Nodes:       make([][2]float64, len(nodes)),
		U:           res.U,
	}
	for i, p := range nodes {
		doc.Nodes[i] = [2]float64{p.X, p.Y}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal solution: %w", err)
	}
	return renameio.WriteFile(path, append(data, '\n'), 0o644)
}

func formatSolveText(out SolveOutput) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "✓ Solved %q (run %s)\n", out.Name, out.RunID)
	fmt.Fprintf(&buf, "  steps: %d accepted, %d rejected\n", out.Steps, out.FailedSteps)
	if n := len(out.Times); n > 0 {
		fmt.Fprintf(&buf, "  outputs: %d, final t = %g\n", n, out.Times[n-1])
	}
	fmt.Fprintf(&buf, "  problem hash: %s\n", out.ProblemHash)
	if out.Out != "" {
		fmt.Fprintf(&buf, "  solution written to %s\n", out.Out)
	}
	for _, line := range out.Metrics {
		fmt.Fprintf(&buf, "  %s\n", line)
	}
	return buf.String()
}
