package harness

// Report is the outcome of running a case.
type Report struct {
	// Case is the case name.
	Case  string `json:"case"`
	RunID string `json:"run_id"`

	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// FailureCode and Failure describe a failed run; both are empty when
	// the solve converged.
	FailureCode string `json:"failure_code,omitempty"`
	Failure     string `json:"failure,omitempty"`

	Steps       int       `json:"steps"`
	FailedSteps int       `json:"failed_steps"`
	Times       []float64 `json:"times"`

	Assertions []AssertionResult `json:"assertions"`
}

// AssertionResult is the outcome of one assertion.
type AssertionResult struct {
	Type string `json:"type"`
	Pass bool   `json:"pass"`
	// Limit describes the bound the assertion checked, e.g. "max 1e-09".
	Limit string `json:"limit,omitempty"`
	// Value is the measured quantity, when the assertion has one.
	Value float64 `json:"value"`
	// Message explains a failure.
	Message string `json:"message,omitempty"`
}

// Converged reports whether the run finished without a failure.
func (r *Report) Converged() bool { return r.FailureCode == "" && r.Failure == "" }

// Failures returns the messages of the failed assertions.
func (r *Report) Failures() []string {
	var out []string
	for _, a := range r.Assertions {
		if !a.Pass {
			out = append(out, a.Type+": "+a.Message)
		}
	}
	return out
}

func (r *Report) add(res AssertionResult) {
	r.Assertions = append(r.Assertions, res)
	if !res.Pass {
		r.Pass = false
	}
}
