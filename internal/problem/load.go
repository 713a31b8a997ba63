package problem

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Load error codes, shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeParseFailed = "E004" // Document could not be parsed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeSchema      = "E006" // CUE schema check failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeUnsupported = "E008" // Unknown document extension
)

// LoadError reports a document that could not be loaded.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }

// LoadFile reads a problem document, choosing the format from the file
// extension. Defaults are not applied.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("problem file not found: %s", path), Err: err}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading %s: %v", path, err), Err: err}
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue":
		return ParseCUE(data, path)
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported problem file extension %q (want .yaml, .yml or .cue)", ext)}
	}
}

// ParseYAML decodes a YAML document. Unknown fields are rejected.
func ParseYAML(data []byte) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Code: ErrCodeParseFailed, Message: "empty problem document", Err: err}
		}
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing YAML: %v", err), Err: err}
	}
	return &def, nil
}

// ParseCUE evaluates a CUE document, checks it against the #Problem schema
// and decodes it. filename is used in error positions.
func ParseCUE(data []byte, filename string) (*Definition, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cueLoadError(ErrCodeGeneric, "compiling schema", err)
	}
	doc := ctx.CompileBytes(data, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, cueLoadError(ErrCodeParseFailed, "parsing CUE", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Problem")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(ErrCodeSchema, "schema", err)
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, cueLoadError(ErrCodeSchema, "exporting CUE", err)
	}
	var def Definition
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("decoding CUE value: %v", err), Err: err}
	}
	return &def, nil
}

// cueLoadError keeps the position of the first CUE error.
func cueLoadError(code, context string, err error) *LoadError {
	le := &LoadError{Code: code, Message: fmt.Sprintf("%s: %v", context, err), Err: err}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return le
	}
	first := errs[0]
	le.Message = fmt.Sprintf("%s: %s", context, first.Error())
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}
