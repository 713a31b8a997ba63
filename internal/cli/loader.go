package cli

import (
	"errors"

	"github.com/roach88/adrfem/internal/problem"
)

// LoadErrorDetails locates a load error in a CUE document.
type LoadErrorDetails struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// loadProblem loads a problem document and reports a failure through f.
// A missing file is a command error; an unparseable document is a failure.
func loadProblem(f *OutputFormatter, path string) (*problem.Definition, error) {
	def, err := problem.LoadFile(path)
	if err == nil {
		return def, nil
	}

	code, message := problem.ErrCodeGeneric, err.Error()
	var details any
	var le *problem.LoadError
	if errors.As(err, &le) {
		code, message = le.Code, le.Message
		if le.Pos.IsValid() {
			details = LoadErrorDetails{File: le.Pos.Filename(), Line: le.Pos.Line(), Column: le.Pos.Column()}
		}
	}
	_ = f.Error(code, message, details)

	exit := ExitFailure
	if code == problem.ErrCodeNotFound || code == problem.ErrCodeGeneric {
		exit = ExitCommandError
	}
	return nil, WrapExitError(exit, code, err)
}
