package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/adrfem/internal/harness"
	"github.com/roach88/adrfem/internal/problem"
)

// ConvergeOptions holds flags for the converge command.
type ConvergeOptions struct {
	*RootOptions
	Exact       string
	ExactParams map[string]string
	Levels      []int
}

// ConvergeOutput is the result of the converge command.
type ConvergeOutput struct {
	Name   string          `json:"name"`
	Exact  string          `json:"exact"`
	Levels []harness.Level `json:"levels"`
}

// NewConvergeCommand creates the converge command.
func NewConvergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "converge <problem>",
		Short: "Measure the observed order of accuracy under mesh refinement",
		Long: `Solve a problem on a sequence of nx = ny meshes and report the error
against an exact solution at the final time, with the observed L2 order
between consecutive levels.

Example:
  adrfem converge --exact sin_product --levels 4,8,16,32 examples/problems/poisson.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConverge(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Exact, "exact", "", "registered function giving the exact solution (required)")
	cmd.Flags().StringToStringVar(&opts.ExactParams, "exact-params", nil, "exact solution parameters (k=v,...)")
	cmd.Flags().IntSliceVar(&opts.Levels, "levels", []int{4, 8, 16}, "mesh levels, strictly increasing")
	_ = cmd.MarkFlagRequired("exact")

	return cmd
}

func runConverge(opts *ConvergeOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	defer func() { _ = logger.Sync() }()

	def, err := loadProblem(f, path)
	if err != nil {
		return err
	}
	if verrs := def.Validate(); len(verrs) > 0 {
		return outputValidationErrors(f, def.Name, verrs)
	}

	ref, err := exactRef(opts.Exact, opts.ExactParams)
	if err != nil {
		_ = f.Error("E401", err.Error(), nil)
		return WrapExitError(ExitCommandError, "parse exact parameters", err)
	}
	exact, err := problem.Resolve(ref)
	if err != nil {
		_ = f.Error("E401", err.Error(), nil)
		return WrapExitError(ExitCommandError, "resolve exact solution", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	levels, err := harness.ConvergenceStudy(ctx, def, exact, opts.Levels, harness.WithLogger(logger))
	if err != nil {
		_ = f.Error("E402", err.Error(), nil)
		return WrapExitError(ExitFailure, "convergence study", err)
	}

	out := ConvergeOutput{Name: def.Name, Exact: formatRef(ref), Levels: levels}
	var buf strings.Builder
	fmt.Fprintf(&buf, "Convergence of %q against %s\n", out.Name, out.Exact)
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "N\tH\tL2 ERROR\tMAX ERROR\tRATE\t")
	for i, lvl := range levels {
		rate := "-"
		if i > 0 {
			rate = strconv.FormatFloat(lvl.Rate, 'f', 2, 64)
		}
		fmt.Fprintf(tw, "%d\t%.4g\t%.4e\t%.4e\t%s\t\n", lvl.N, lvl.H, lvl.L2Error, lvl.MaxError, rate)
	}
	_ = tw.Flush()
	return f.Success(out, buf.String())
}

func exactRef(fn string, raw map[string]string) (*problem.FunctionRef, error) {
	ref := &problem.FunctionRef{Fn: fn}
	if len(raw) > 0 {
		ref.Params = make(map[string]float64, len(raw))
	}
	for k, v := range raw {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("exact parameter %s: %w", k, err)
		}
		ref.Params[k] = x
	}
	return ref, nil
}

// formatRef renders a function reference with sorted parameters.
func formatRef(ref *problem.FunctionRef) string {
	if len(ref.Params) == 0 {
		return ref.Fn
	}
	keys := make([]string, 0, len(ref.Params))
	for k := range ref.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, ref.Params[k])
	}
	return ref.Fn + "(" + strings.Join(parts, ", ") + ")"
}
