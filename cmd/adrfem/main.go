// Command adrfem solves, archives and verifies advection-diffusion-reaction
// problems.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/adrfem/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}
	// Commands report their own failures. Anything else is a flag or
	// usage error that cobra left unprinted.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(cli.GetExitCode(err))
}
