package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/adrfem/internal/store"
)

// RunsOptions holds flags shared by the runs subcommands.
type RunsOptions struct {
	*RootOptions
	Database string
}

// RunSummary is the JSON form of an archived run.
type RunSummary struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	ProblemHash     string     `json:"problem_hash"`
	TimeIntegration string     `json:"time_integration"`
	Nodes           int        `json:"nodes"`
	Elements        int        `json:"elements"`
	Status          string     `json:"status"`
	FailureCode     string     `json:"failure_code,omitempty"`
	Failure         string     `json:"failure,omitempty"`
	Steps           int        `json:"steps"`
	FailedSteps     int        `json:"failed_steps"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// RunDetail adds the archived outputs to a RunSummary.
type RunDetail struct {
	RunSummary
	Outputs []OutputSummary `json:"outputs"`
}

// OutputSummary describes one archived snapshot.
type OutputSummary struct {
	Index int     `json:"index"`
	T     float64 `json:"t"`
	Hash  string  `json:"hash"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// VerifyRunOutput is the result of runs verify.
type VerifyRunOutput struct {
	RunID      string   `json:"run_id"`
	OK         bool     `json:"ok"`
	Snapshots  int      `json:"snapshots"`
	Steps      int      `json:"steps"`
	LastSeq    int64    `json:"last_seq"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// NewRunsCommand creates the runs command and its subcommands.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect archived runs",
		Long: `List, show and verify runs archived with solve --db.

Example:
  adrfem runs list --db runs.db
  adrfem runs show --db runs.db 0190a5b2-...
  adrfem runs verify --db runs.db 0190a5b2-...`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List archived runs in creation order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show a run and its outputs",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(opts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "verify <run-id>",
		Short:         "Recompute snapshot hashes and check an archived run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsVerify(opts, args[0], cmd)
		},
	})

	return cmd
}

// withStore opens the archive, runs fn and closes it. A missing archive
// is a command error.
func withStore(opts *RunsOptions, f *OutputFormatter, fn func(*store.Store) error) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = f.Error("E001", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()
	f.VerboseLog("Opened database %s", opts.Database)
	return fn(st)
}

func runRunsList(opts *RunsOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	return withStore(opts, f, func(st *store.Store) error {
		runs, err := st.ListRuns(commandContext(cmd))
		if err != nil {
			return WrapExitError(ExitCommandError, "list runs", err)
		}
		out := make([]RunSummary, len(runs))
		for i, r := range runs {
			out[i] = summarizeRun(r)
		}

		var buf strings.Builder
		if len(out) == 0 {
			buf.WriteString("No runs archived\n")
		} else {
			tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSTEPS\tREJECTED\tCREATED")
			for _, r := range out {
				status := r.Status
				if r.FailureCode != "" {
					status += " (" + r.FailureCode + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, r.Name, status, r.Steps, r.FailedSteps,
					r.CreatedAt.Format(time.RFC3339))
			}
			_ = tw.Flush()
		}
		return f.Success(out, buf.String())
	})
}

func runRunsShow(opts *RunsOptions, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	return withStore(opts, f, func(st *store.Store) error {
		ctx := commandContext(cmd)
		run, err := st.GetRun(ctx, id)
		if err != nil {
			return notFound(f, id, err)
		}
		snaps, err := st.ReadSnapshots(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "read snapshots", err)
		}
		detail := RunDetail{RunSummary: summarizeRun(run), Outputs: make([]OutputSummary, len(snaps))}
		for i, s := range snaps {
			lo, hi := valueRange(s.Values)
			detail.Outputs[i] = OutputSummary{Index: s.Index, T: s.T, Hash: s.Hash, Min: lo, Max: hi}
		}

		var buf strings.Builder
		fmt.Fprintf(&buf, "Run %s\n", detail.ID)
		fmt.Fprintf(&buf, "  name: %s\n", detail.Name)
		fmt.Fprintf(&buf, "  status: %s\n", detail.Status)
		if detail.Failure != "" {
			fmt.Fprintf(&buf, "  failure: %s\n", detail.Failure)
		}
		fmt.Fprintf(&buf, "  problem hash: %s\n", detail.ProblemHash)
		fmt.Fprintf(&buf, "  mesh: %d nodes, %d elements\n", detail.Nodes, detail.Elements)
		fmt.Fprintf(&buf, "  time integration: %s\n", detail.TimeIntegration)
		fmt.Fprintf(&buf, "  steps: %d accepted, %d rejected\n", detail.Steps, detail.FailedSteps)
		fmt.Fprintf(&buf, "  outputs:\n")
		tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
		for _, o := range detail.Outputs {
			fmt.Fprintf(tw, "    %d\tt=%g\tmin=%.6g\tmax=%.6g\t%s\n", o.Index, o.T, o.Min, o.Max, o.Hash)
		}
		_ = tw.Flush()
		return f.Success(detail, buf.String())
	})
}

func runRunsVerify(opts *RunsOptions, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	return withStore(opts, f, func(st *store.Store) error {
		v, err := st.VerifyRun(commandContext(cmd), id)
		if err != nil {
			return notFound(f, id, err)
		}
		out := VerifyRunOutput{RunID: v.RunID, OK: v.OK(), Snapshots: v.Snapshots, Steps: v.Steps, LastSeq: v.LastSeq}
		for _, m := range v.Mismatches {
			msg := m.Message
			if m.Seq != 0 {
				msg = fmt.Sprintf("seq %d: %s", m.Seq, m.Message)
			}
			out.Mismatches = append(out.Mismatches, msg)
		}

		if !out.OK {
			if f.Format == "json" {
				_ = f.Error("E301", fmt.Sprintf("%d mismatch(es)", len(out.Mismatches)), out)
			} else {
				var buf strings.Builder
				fmt.Fprintf(&buf, "✗ Run %s has %d mismatch(es):\n", id, len(out.Mismatches))
				for _, m := range out.Mismatches {
					fmt.Fprintf(&buf, "  %s\n", m)
				}
				fmt.Fprint(f.Writer, buf.String())
			}
			return exitf(ExitFailure, "run %s: %d mismatch(es)", id, len(out.Mismatches))
		}
		return f.Success(out, fmt.Sprintf("✓ Run %s consistent (%d snapshots, %d steps, last seq %d)\n",
			id, out.Snapshots, out.Steps, out.LastSeq))
	})
}

func notFound(f *OutputFormatter, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		_ = f.Error("E302", fmt.Sprintf("run %s not found", id), nil)
		return WrapExitError(ExitFailure, "run not found", err)
	}
	return WrapExitError(ExitCommandError, "read run", err)
}

func summarizeRun(r store.Run) RunSummary {
	s := RunSummary{
		ID:              r.ID,
		Name:            r.Name,
		ProblemHash:     r.ProblemHash,
		TimeIntegration: r.TimeIntegration,
		Nodes:           r.Nodes,
		Elements:        r.Elements,
		Status:          string(r.Status),
		FailureCode:     r.FailureCode,
		Failure:         r.Failure,
		Steps:           r.Steps,
		FailedSteps:     r.FailedSteps,
		CreatedAt:       r.CreatedAt,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		s.FinishedAt = &finished
	}
	return s
}

func valueRange(u []float64) (lo, hi float64) {
	if len(u) == 0 {
		return 0, 0
	}
	lo, hi = u[0], u[0]
	for _, v := range u[1:] {
		lo, hi = min(lo, v), max(hi, v)
	}
	return lo, hi
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
