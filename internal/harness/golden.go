package harness

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Render writes a human-readable report. With values false, measured
// quantities are left out so the text is stable across platforms and
// suitable for golden comparison.
func Render(w io.Writer, r *Report, values bool) error {
	var buf strings.Builder
	fmt.Fprintf(&buf, "case: %s\n", r.Case)
	fmt.Fprintf(&buf, "run: %s\n", r.RunID)
	if r.Converged() {
		fmt.Fprintf(&buf, "status: converged\n")
	} else {
		fmt.Fprintf(&buf, "status: failed %s\n", r.FailureCode)
	}
	fmt.Fprintf(&buf, "steps: %d accepted, %d rejected\n", r.Steps, r.FailedSteps)
	fmt.Fprintf(&buf, "outputs: %d\n", len(r.Times))
	for _, a := range r.Assertions {
		verdict := "PASS"
		if !a.Pass {
			verdict = "FAIL"
		}
		line := verdict + " " + a.Type
		if a.Limit != "" {
			line += " (" + a.Limit + ")"
		}
		if values && a.Value != 0 {
			line += fmt.Sprintf(" = %.3e", a.Value)
		}
		if values && !a.Pass {
			line += ": " + a.Message
		}
		buf.WriteString(line + "\n")
	}
	_, err := io.WriteString(w, buf.String())
	return err
}

// AssertGolden compares the value-free rendering of a report against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, r *Report) {
	t.Helper()

	var buf bytes.Buffer
	if err := Render(&buf, r, false); err != nil {
		t.Fatalf("render report: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
}
