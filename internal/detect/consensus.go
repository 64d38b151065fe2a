package detect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sightline/sightline-cli/internal/model"
)

// Final detection policy is "any positive": one positive attempt out of N is
// enough. This deliberately favors recall over precision and must not be
// changed to majority vote.

const negativeConsensusDescription = "No detection reported by any analysis run."

// slowRunThresholdMs is the average per-run processing time above which the
// recommendation suggests optimization.
const slowRunThresholdMs = 8000

// Reducer folds N independent analysis attempts on the same input into one
// verdict. Attempts are launched concurrently with a fixed inter-launch
// stagger; the reducer waits for all of them before aggregating.
type Reducer struct {
	runner  AttemptRunner
	stagger time.Duration
}

// NewReducer creates a consensus reducer. A zero stagger disables launch
// pacing (used by tests).
func NewReducer(runner AttemptRunner, stagger time.Duration) *Reducer {
	return &Reducer{runner: runner, stagger: stagger}
}

// Consensus runs the given number of attempts and aggregates them. The run
// count must already be validated to [2,10] by the caller layer. Consensus
// never returns an error and never panics: any reduction failure yields a
// verdict flagged ANALYSIS_FAILED.
func (r *Reducer) Consensus(ctx context.Context, inputRef, prompt string, runs int) (verdict model.ConsensusVerdict) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("consensus: reduction failed",
				zap.String("input", inputRef),
				zap.Any("panic", rec),
			)
			verdict = failedVerdict(inputRef, fmt.Sprintf("%v", rec))
		}
	}()

	if runs <= 0 {
		return failedVerdict(inputRef, "no attempts could be launched")
	}

	attempts := r.runAttempts(ctx, inputRef, prompt, runs)
	return r.aggregate(inputRef, attempts)
}

// runAttempts launches all attempts and waits for every one of them.
// Attempt numbers 1..runs are assigned at launch time in launch order; each
// goroutine writes only its own slot, so completion order does not matter.
func (r *Reducer) runAttempts(ctx context.Context, inputRef, prompt string, runs int) []model.AttemptResult {
	attempts := make([]model.AttemptResult, runs)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if r.stagger > 0 {
		limiter = rate.NewLimiter(rate.Every(r.stagger), 1)
	}

	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		attempt := i + 1
		if err := limiter.Wait(ctx); err != nil {
			// Context cancelled before launch: record a failed attempt so
			// the positive+negative == totalRuns invariant still holds.
			attempts[i] = model.AttemptResult{
				Attempt:      attempt,
				ErrorMessage: err.Error(),
			}
			continue
		}
		wg.Add(1)
		go func(slot, attempt int) {
			defer wg.Done()
			defer func() {
				// The analyzer is a total function, but a panicking runner
				// must not take down sibling attempts or the process.
				if rec := recover(); rec != nil {
					attempts[slot] = model.AttemptResult{
						Attempt:      attempt,
						ErrorMessage: fmt.Sprintf("attempt panicked: %v", rec),
					}
				}
			}()
			attempts[slot] = r.runner.Analyze(ctx, inputRef, prompt, attempt)
		}(i, attempt)
	}
	wg.Wait()

	return attempts
}

func (r *Reducer) aggregate(inputRef string, attempts []model.AttemptResult) model.ConsensusVerdict {
	totalRuns := len(attempts)

	var positive, errored int
	var timedRuns int
	var totalTimeMs int64
	for _, a := range attempts {
		if a.Detected {
			positive++
		}
		if a.Failed() {
			errored++
		}
		if a.Timings.TotalMs > 0 {
			timedRuns++
			totalTimeMs += a.Timings.TotalMs
		}
	}
	negative := totalRuns - positive

	var avgTimeMs float64
	if timedRuns > 0 {
		avgTimeMs = float64(totalTimeMs) / float64(timedRuns)
	}

	consistency := float64(max(positive, negative)) / float64(totalRuns)
	detectionRate := float64(positive) / float64(totalRuns)

	metrics := model.ConsensusMetrics{
		TotalRuns:               totalRuns,
		PositiveDetections:      positive,
		NegativeDetections:      negative,
		AverageProcessingTimeMs: avgTimeMs,
		DetectionConsistency:    consistency,
	}

	var confidenceLevel float64
	switch {
	case positive > 0 && detectionRate >= 0.6:
		confidenceLevel = 0.9
		metrics.QualityFlags = append(metrics.QualityFlags, model.FlagHighDetectionRate)
	case positive > 0 && detectionRate >= 0.4:
		confidenceLevel = 0.7
		metrics.QualityFlags = append(metrics.QualityFlags, model.FlagModerateDetectionRate)
	case positive > 0:
		confidenceLevel = 0.5
		metrics.QualityFlags = append(metrics.QualityFlags, model.FlagLowDetectionRate)
	default:
		confidenceLevel = 0.8
		metrics.QualityFlags = append(metrics.QualityFlags, model.FlagConsistentNegative)
	}

	finalDetection := positive > 0

	verdict := model.ConsensusVerdict{
		InputRef:             inputRef,
		FinalDetection:       finalDetection,
		ConfidenceLevel:      confidenceLevel,
		ConsensusDescription: representativeDescription(attempts, finalDetection),
		Metrics:              metrics,
		Recommendation:       buildRecommendation(metrics, confidenceLevel, detectionRate, finalDetection, errored),
		Attempts:             attempts,
	}

	zap.L().Info("consensus: verdict",
		zap.String("input", inputRef),
		zap.Bool("detected", finalDetection),
		zap.Float64("confidence", confidenceLevel),
		zap.Int("positive", positive),
		zap.Int("total", totalRuns),
		zap.Strings("flags", metrics.QualityFlags),
	)

	return verdict
}

// representativeDescription picks the longest description among positive
// attempts, first occurrence winning ties. Longer is assumed more
// informative; no stronger semantic ranking is implied.
func representativeDescription(attempts []model.AttemptResult, finalDetection bool) string {
	if !finalDetection {
		return negativeConsensusDescription
	}
	var best string
	for _, a := range attempts {
		if a.Detected && len(a.Description) > len(best) {
			best = a.Description
		}
	}
	return best
}

// buildRecommendation derives advisory guidance from the aggregate. The
// strings are not used in any further computation; only their triggering
// conditions are load-bearing.
func buildRecommendation(m model.ConsensusMetrics, confidenceLevel, detectionRate float64, finalDetection bool, errored int) string {
	var parts []string

	if finalDetection && detectionRate < 0.4 {
		parts = append(parts, "Detection rate is low; the positive result is uncertain and manual review is suggested.")
	}
	if errored > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d attempts encountered errors.", errored, m.TotalRuns))
	}
	if m.AverageProcessingTimeMs > slowRunThresholdMs {
		parts = append(parts, "Average processing time is high; consider shorter clips or a faster model.")
	}

	switch {
	case confidenceLevel >= 0.8:
		parts = append(parts, "High confidence in the result.")
	case confidenceLevel >= 0.6:
		parts = append(parts, "Moderate confidence in the result; a re-run may help.")
	default:
		parts = append(parts, "Low confidence in the result; treat it as indicative only.")
	}

	rec := parts[0]
	for _, p := range parts[1:] {
		rec += " " + p
	}
	return rec
}

// failedVerdict is returned when the reduction itself fails. Metrics stay
// empty except for the ANALYSIS_FAILED flag.
func failedVerdict(inputRef, reason string) model.ConsensusVerdict {
	return model.ConsensusVerdict{
		InputRef: inputRef,
		Metrics: model.ConsensusMetrics{
			QualityFlags: []string{model.FlagAnalysisFailed},
		},
		ConsensusDescription: "Consensus analysis failed before any attempt could be aggregated.",
		Recommendation:       "Analysis failed: " + reason + ". Check connectivity and configuration, then retry the input.",
	}
}
