package model

import (
	"fmt"
	"time"
)

// AnalysisStatus is the terminal state of one batch record.
type AnalysisStatus string

const (
	StatusSuccess AnalysisStatus = "Success"
	StatusFailed  AnalysisStatus = "Failed"
)

// Consensus run count bounds, enforced at the invocation surface.
const (
	MinConsensusRuns = 2
	MaxConsensusRuns = 10
)

// Mode selects single-attempt or consensus analysis for a batch.
type Mode struct {
	Consensus bool `json:"consensus"`
	Runs      int  `json:"runs,omitempty"`
}

// SingleMode returns the single-attempt analysis mode.
func SingleMode() Mode {
	return Mode{}
}

// ConsensusMode returns a consensus mode with the given run count.
// The count must already be validated against [MinConsensusRuns, MaxConsensusRuns].
func ConsensusMode(runs int) Mode {
	return Mode{Consensus: true, Runs: runs}
}

// String renders the mode for run-history labeling.
func (m Mode) String() string {
	if m.Consensus {
		return fmt.Sprintf("consensus-%d", m.Runs)
	}
	return "single"
}

// BatchRecord is the per-input output row. Exactly one record exists per
// input regardless of success.
type BatchRecord struct {
	InputRef         string         `json:"input_ref"`
	HasDetection     bool           `json:"has_detection"`
	Description      string         `json:"description"`
	ConfidenceScore  float64        `json:"confidence_score"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Status           AnalysisStatus `json:"status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ProcessedAt      time.Time      `json:"processed_at"`
}

// BatchResult owns the ordered record set for one batch invocation.
// Record order mirrors input order, not completion order.
type BatchResult struct {
	ObjectName     string        `json:"object_name"`
	Records        []BatchRecord `json:"records"`
	TotalInputs    int           `json:"total_inputs"`
	ProcessedCount int           `json:"processed_count"`
	SuccessCount   int           `json:"success_count"`
	FailureCount   int           `json:"failure_count"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
}

// BatchRun is a persisted batch invocation in the run-history store.
type BatchRun struct {
	ID           string        `json:"id"`
	ObjectName   string        `json:"object_name"`
	Mode         string        `json:"mode"`
	TotalInputs  int           `json:"total_inputs"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Records      []BatchRecord `json:"records"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	CreatedAt    time.Time     `json:"created_at"`
}
