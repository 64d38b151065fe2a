package detect

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline/sightline-cli/internal/model"
)

// scriptedRunner returns a pre-scripted result per attempt number and
// records the attempt numbers it was launched with.
type scriptedRunner struct {
	mu       sync.Mutex
	results  map[int]model.AttemptResult
	launched []int
	delays   map[int]time.Duration
}

func (s *scriptedRunner) Analyze(_ context.Context, _, _ string, attempt int) model.AttemptResult {
	s.mu.Lock()
	s.launched = append(s.launched, attempt)
	delay := s.delays[attempt]
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	res := s.results[attempt]
	res.Attempt = attempt
	return res
}

func positiveAttempt(description string) model.AttemptResult {
	return model.AttemptResult{
		Detected:        true,
		Description:     description,
		ConfidenceScore: 0.7,
		Timings:         model.PhaseTimings{TotalMs: 1200},
	}
}

func negativeAttempt() model.AttemptResult {
	return model.AttemptResult{
		Detected:        false,
		Description:     "No bird visible in the clip",
		ConfidenceScore: 0.6,
		Timings:         model.PhaseTimings{TotalMs: 1000},
	}
}

func TestConsensus_HighDetectionRate(t *testing.T) {
	runner := &scriptedRunner{results: map[int]model.AttemptResult{
		1: positiveAttempt("a bird"),
		2: positiveAttempt("a bird on a fence"),
		3: positiveAttempt("bird"),
		4: negativeAttempt(),
		5: negativeAttempt(),
	}}
	r := NewReducer(runner, 0)

	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 5)

	assert.True(t, v.FinalDetection)
	assert.InDelta(t, 0.9, v.ConfidenceLevel, 0.001)
	assert.Equal(t, 5, v.Metrics.TotalRuns)
	assert.Equal(t, 3, v.Metrics.PositiveDetections)
	assert.Equal(t, 2, v.Metrics.NegativeDetections)
	assert.InDelta(t, 0.6, v.Metrics.DetectionConsistency, 0.001)
	assert.True(t, v.Metrics.HasFlag(model.FlagHighDetectionRate))
}

func TestConsensus_ConsistentNegative(t *testing.T) {
	runner := &scriptedRunner{results: map[int]model.AttemptResult{
		1: negativeAttempt(),
		2: negativeAttempt(),
		3: negativeAttempt(),
	}}
	r := NewReducer(runner, 0)

	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 3)

	assert.False(t, v.FinalDetection)
	assert.InDelta(t, 0.8, v.ConfidenceLevel, 0.001)
	assert.True(t, v.Metrics.HasFlag(model.FlagConsistentNegative))
	assert.Equal(t, negativeConsensusDescription, v.ConsensusDescription)
	assert.InDelta(t, 1.0, v.Metrics.DetectionConsistency, 0.001)
}

func TestConsensus_ModerateDetectionRate(t *testing.T) {
	runner := &scriptedRunner{results: map[int]model.AttemptResult{
		1: positiveAttempt("bird"),
		2: positiveAttempt("bird again"),
		3: negativeAttempt(),
		4: negativeAttempt(),
		5: negativeAttempt(),
	}}
	r := NewReducer(runner, 0)

	// 2/5 = 0.4, the lower bound of the moderate band.
	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 5)

	assert.True(t, v.FinalDetection)
	assert.InDelta(t, 0.7, v.ConfidenceLevel, 0.001)
	assert.True(t, v.Metrics.HasFlag(model.FlagModerateDetectionRate))
}

func TestConsensus_LowRatePositiveStillDetects(t *testing.T) {
	// "Any positive" policy: one positive out of five is a detection.
	runner := &scriptedRunner{results: map[int]model.AttemptResult{
		1: negativeAttempt(),
		2: negativeAttempt(),
		3: positiveAttempt("brief flash of wings near the feeder"),
		4: negativeAttempt(),
		5: negativeAttempt(),
	}}
	r := NewReducer(runner, 0)

	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 5)

	assert.True(t, v.FinalDetection)
	assert.InDelta(t, 0.5, v.ConfidenceLevel, 0.001)
	assert.True(t, v.Metrics.HasFlag(model.FlagLowDetectionRate))
	assert.Contains(t, v.Recommendation, "manual review")
}

func TestConsensus_InvariantAcrossRunCounts(t *testing.T) {
	for runs := model.MinConsensusRuns; runs <= model.MaxConsensusRuns; runs++ {
		results := make(map[int]model.AttemptResult, runs)
		positives := 0
		for i := 1; i <= runs; i++ {
			if i%3 == 0 {
				results[i] = positiveAttempt(fmt.Sprintf("sighting %d", i))
				positives++
			} else {
				results[i] = negativeAttempt()
			}
		}
		r := NewReducer(&scriptedRunner{results: results}, 0)

		v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", runs)

		assert.Equal(t, runs, v.Metrics.TotalRuns, "runs=%d", runs)
		assert.Equal(t, v.Metrics.TotalRuns, v.Metrics.PositiveDetections+v.Metrics.NegativeDetections, "runs=%d", runs)
		assert.Equal(t, positives > 0, v.FinalDetection, "runs=%d", runs)
	}
}

func TestConsensus_LongestPositiveDescriptionWins(t *testing.T) {
	runner := &scriptedRunner{results: map[int]model.AttemptResult{
		1: positiveAttempt("bird"),
		2: positiveAttempt("a large bird perched on the feeder for several seconds"),
		3: negativeAttempt(), // negative descriptions never win
	}}
	r := NewReducer(runner, 0)

	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 3)

	assert.Equal(t, "a large bird perched on the feeder for several seconds", v.ConsensusDescription)
}

func TestConsensus_ErrorCountInRecommendation(t *testing.T) {
	runner := &scriptedRunner{results: map[int]model.AttemptResult{
		1: positiveAttempt("bird"),
		2: {ErrorMessage: "https://media.example.com/clip.mp4 not accessible"},
		3: {ErrorMessage: "vision: unexpected status 500"},
		4: negativeAttempt(),
	}}
	r := NewReducer(runner, 0)

	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 4)

	assert.Contains(t, v.Recommendation, "2/4 attempts encountered errors")
}

func TestConsensus_SlowRunsFlaggedInRecommendation(t *testing.T) {
	slow := negativeAttempt()
	slow.Timings.TotalMs = 9500
	runner := &scriptedRunner{results: map[int]model.AttemptResult{1: slow, 2: slow}}
	r := NewReducer(runner, 0)

	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 2)

	assert.Contains(t, v.Recommendation, "processing time")
}

func TestConsensus_AverageSkipsUntimedRuns(t *testing.T) {
	timed := negativeAttempt()
	timed.Timings.TotalMs = 2000
	untimed := model.AttemptResult{ErrorMessage: "boom"} // TotalMs 0
	runner := &scriptedRunner{results: map[int]model.AttemptResult{1: timed, 2: untimed, 3: timed}}
	r := NewReducer(runner, 0)

	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 3)

	assert.InDelta(t, 2000, v.Metrics.AverageProcessingTimeMs, 0.001)
}

func TestConsensus_AttemptNumbersAssignedAtLaunch(t *testing.T) {
	// Attempt 1 finishes last; slot association must still follow launch order.
	runner := &scriptedRunner{
		results: map[int]model.AttemptResult{
			1: positiveAttempt("first launched, last finished"),
			2: negativeAttempt(),
			3: negativeAttempt(),
		},
		delays: map[int]time.Duration{1: 30 * time.Millisecond},
	}
	r := NewReducer(runner, 0)

	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 3)

	require.Len(t, v.Attempts, 3)
	for i, a := range v.Attempts {
		assert.Equal(t, i+1, a.Attempt)
	}
	assert.ElementsMatch(t, []int{1, 2, 3}, runner.launched)
}

func TestConsensus_PanickingRunnerIsolated(t *testing.T) {
	runner := &panickyRunner{panicOn: 2, fallback: positiveAttempt("bird")}
	r := NewReducer(runner, 0)

	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 3)

	assert.Equal(t, 3, v.Metrics.TotalRuns)
	assert.True(t, v.FinalDetection)
	var errored int
	for _, a := range v.Attempts {
		if a.Failed() {
			errored++
		}
	}
	assert.Equal(t, 1, errored)
}

func TestConsensus_ZeroRunsReturnsFailedVerdict(t *testing.T) {
	r := NewReducer(&scriptedRunner{}, 0)

	v := r.Consensus(context.Background(), "https://media.example.com/clip.mp4", "prompt", 0)

	assert.False(t, v.FinalDetection)
	assert.True(t, v.Metrics.HasFlag(model.FlagAnalysisFailed))
	assert.NotEmpty(t, v.Recommendation)
}

type panickyRunner struct {
	panicOn  int
	fallback model.AttemptResult
}

func (p *panickyRunner) Analyze(_ context.Context, _, _ string, attempt int) model.AttemptResult {
	if attempt == p.panicOn {
		panic("scripted failure")
	}
	res := p.fallback
	res.Attempt = attempt
	return res
}
