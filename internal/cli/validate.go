package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/adrfem/internal/problem"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                      `json:"valid"`
	Name        string                    `json:"name,omitempty"`
	ProblemHash string                    `json:"problem_hash,omitempty"`
	Errors      []problem.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <problem>",
		Short: "Check a problem document without solving it",
		Long: `Load a YAML or CUE problem document, apply defaults and check it.

Load failures are reported with codes E001-E008, semantic errors with codes
E101-E107. A valid problem prints its hash.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	def, err := loadProblem(formatter, path)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Loaded problem %q from %s", def.Name, path)

	if verrs := def.Validate(); len(verrs) > 0 {
		return outputValidationErrors(formatter, def.Name, verrs)
	}

	hash, err := def.Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "hash problem", err)
	}
	result := ValidationResult{Valid: true, Name: def.Name, ProblemHash: hash}
	return formatter.Success(result, fmt.Sprintf("✓ Problem %q valid (hash %s)\n", def.Name, hash))
}

func outputValidationErrors(f *OutputFormatter, name string, verrs []problem.ValidationError) error {
	if f.Format == "json" {
		_ = f.Error(verrs[0].Code, fmt.Sprintf("%d validation error(s)", len(verrs)), ValidationResult{
			Valid:  false,
			Name:   name,
			Errors: verrs,
		})
	} else {
		var buf strings.Builder
		fmt.Fprintf(&buf, "✗ Problem %q has %d validation error(s):\n", name, len(verrs))
		for _, ve := range verrs {
			fmt.Fprintf(&buf, "  [%s] %s: %s\n", ve.Code, ve.Field, ve.Message)
		}
		fmt.Fprint(f.Writer, buf.String())
	}
	return exitf(ExitFailure, "%s: %d validation error(s)", verrs[0].Code, len(verrs))
}
