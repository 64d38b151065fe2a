package model

// Quality flags attached to a consensus verdict. The vocabulary is fixed;
// flags are kept in insertion order for display.
const (
	FlagHighDetectionRate     = "HIGH_DETECTION_RATE"
	FlagModerateDetectionRate = "MODERATE_DETECTION_RATE"
	FlagLowDetectionRate      = "LOW_DETECTION_RATE"
	FlagConsistentNegative    = "CONSISTENT_NEGATIVE"
	FlagAnalysisFailed        = "ANALYSIS_FAILED"
)

// ConsensusMetrics summarizes the attempt set behind a verdict.
// Invariant: PositiveDetections + NegativeDetections == TotalRuns.
type ConsensusMetrics struct {
	TotalRuns               int      `json:"total_runs"`
	PositiveDetections      int      `json:"positive_detections"`
	NegativeDetections      int      `json:"negative_detections"`
	AverageProcessingTimeMs float64  `json:"average_processing_time_ms"`
	DetectionConsistency    float64  `json:"detection_consistency"`
	QualityFlags            []string `json:"quality_flags"`
}

// HasFlag reports whether the given quality flag is present.
func (m ConsensusMetrics) HasFlag(flag string) bool {
	for _, f := range m.QualityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// ConsensusVerdict is the aggregate over a fixed-size ordered sequence of
// attempts for one input. Created once per input; never mutated after.
type ConsensusVerdict struct {
	InputRef             string           `json:"input_ref"`
	FinalDetection       bool             `json:"final_detection"`
	ConfidenceLevel      float64          `json:"confidence_level"`
	ConsensusDescription string           `json:"consensus_description"`
	Metrics              ConsensusMetrics `json:"metrics"`
	Recommendation       string           `json:"recommendation"`
	Attempts             []AttemptResult  `json:"attempts,omitempty"`
}
