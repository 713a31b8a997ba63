package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/adrfem/internal/harness"
)

// VerifyOutput is the result of the verify command.
type VerifyOutput struct {
	Passed  int               `json:"passed"`
	Failed  int               `json:"failed"`
	Reports []*harness.Report `json:"reports"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <case.yaml>...",
		Short: "Run verification cases against their assertions",
		Long: `Solve each verification case and evaluate its assertions.

A case names a problem (by path or inline), an optional exact solution and
the assertions to check. The command exits with status 1 when any
assertion fails.

Example:
  adrfem verify examples/cases/*.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runVerify(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	logger := newLogger(opts, cmd.ErrOrStderr())
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext(cmd)
	defer stop()

	out := VerifyOutput{Reports: make([]*harness.Report, 0, len(paths))}
	var text strings.Builder
	for _, path := range paths {
		c, err := harness.LoadCase(path)
		if err != nil {
			_ = f.Error("E201", err.Error(), map[string]string{"case": path})
			return WrapExitError(ExitCommandError, "load case", err)
		}
		f.VerboseLog("Running case %q", c.Name)

		report, err := harness.Run(ctx, c, harness.WithLogger(logger))
		if err != nil {
			_ = f.Error("E202", err.Error(), map[string]string{"case": path})
			return WrapExitError(ExitCommandError, "run case", err)
		}
		out.Reports = append(out.Reports, report)
		if report.Pass {
			out.Passed++
		} else {
			out.Failed++
		}
		if err := harness.Render(&text, report, true); err != nil {
			return WrapExitError(ExitCommandError, "render report", err)
		}
		text.WriteString("\n")
	}

	if out.Failed > 0 {
		if f.Format == "json" {
			_ = f.Error("E203", fmt.Sprintf("%d of %d case(s) failed", out.Failed, len(paths)), out)
		} else {
			fmt.Fprintf(f.Writer, "%s✗ %d of %d case(s) failed\n", text.String(), out.Failed, len(paths))
		}
		return exitf(ExitFailure, "%d case(s) failed", out.Failed)
	}
	return f.Success(out, fmt.Sprintf("%s✓ %d case(s) passed\n", text.String(), out.Passed))
}
