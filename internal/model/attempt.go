package model

// PhaseTimings records per-phase durations for a single analysis attempt,
// in milliseconds. Phases that were never reached report 0.
type PhaseTimings struct {
	ValidationMs int64 `json:"validation_ms"`
	APICallMs    int64 `json:"api_call_ms"`
	ParsingMs    int64 `json:"parsing_ms"`
	TotalMs      int64 `json:"total_ms"`
}

// AttemptResult is the outcome of one inference call for one input.
// Attempt numbers start at 1 and are assigned at launch time.
type AttemptResult struct {
	Attempt         int          `json:"attempt"`
	Detected        bool         `json:"detected"`
	Description     string       `json:"description"`
	ConfidenceScore float64      `json:"confidence_score"`
	Timings         PhaseTimings `json:"timings"`
	ErrorMessage    string       `json:"error_message,omitempty"`
}

// Failed reports whether the attempt ended with an error.
func (a AttemptResult) Failed() bool {
	return a.ErrorMessage != ""
}
