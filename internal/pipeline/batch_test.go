package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline/sightline-cli/internal/model"
)

// fakeRunner scripts single-attempt results per input reference.
type fakeRunner struct {
	results map[string]model.AttemptResult
	panicOn string
	delay   map[string]time.Duration
}

func (f *fakeRunner) Analyze(_ context.Context, inputRef, _ string, attempt int) model.AttemptResult {
	if inputRef == f.panicOn {
		panic("scripted analyzer failure")
	}
	if d := f.delay[inputRef]; d > 0 {
		time.Sleep(d)
	}
	res := f.results[inputRef]
	res.Attempt = attempt
	return res
}

// fakeReducer scripts consensus verdicts per input reference.
type fakeReducer struct {
	verdicts map[string]model.ConsensusVerdict
	gotRuns  int
}

func (f *fakeReducer) Consensus(_ context.Context, inputRef, _ string, runs int) model.ConsensusVerdict {
	f.gotRuns = runs
	v := f.verdicts[inputRef]
	v.InputRef = inputRef
	return v
}

func TestRunBatch_SingleMode(t *testing.T) {
	runner := &fakeRunner{results: map[string]model.AttemptResult{
		"https://a.example.com/1.mp4": {Detected: true, Description: "a bird", ConfidenceScore: 0.8, Timings: model.PhaseTimings{TotalMs: 1500}},
		"https://a.example.com/2.mp4": {Detected: false, Description: "nothing", ConfidenceScore: 0.6, Timings: model.PhaseTimings{TotalMs: 900}},
	}}
	o := NewOrchestrator(runner, &fakeReducer{}, 0, 2)

	inputs := []string{"https://a.example.com/1.mp4", "https://a.example.com/2.mp4"}
	result := o.RunBatch(context.Background(), inputs, "bird", model.SingleMode())

	require.Len(t, result.Records, 2)
	assert.Equal(t, 2, result.TotalInputs)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)

	assert.Equal(t, inputs[0], result.Records[0].InputRef)
	assert.True(t, result.Records[0].HasDetection)
	assert.Equal(t, int64(1500), result.Records[0].ProcessingTimeMs)
	assert.Equal(t, model.StatusSuccess, result.Records[0].Status)
	assert.False(t, result.Records[1].HasDetection)
}

func TestRunBatch_ConsensusMode(t *testing.T) {
	reducer := &fakeReducer{verdicts: map[string]model.ConsensusVerdict{
		"https://a.example.com/1.mp4": {
			FinalDetection:       true,
			ConfidenceLevel:      0.9,
			ConsensusDescription: "bird at the feeder",
			Metrics: model.ConsensusMetrics{
				TotalRuns:               3,
				PositiveDetections:      3,
				AverageProcessingTimeMs: 1234.5,
				QualityFlags:            []string{model.FlagHighDetectionRate},
			},
		},
	}}
	o := NewOrchestrator(&fakeRunner{}, reducer, 0, 1)

	result := o.RunBatch(context.Background(), []string{"https://a.example.com/1.mp4"}, "bird", model.ConsensusMode(3))

	require.Len(t, result.Records, 1)
	assert.Equal(t, 3, reducer.gotRuns)
	rec := result.Records[0]
	assert.True(t, rec.HasDetection)
	assert.Equal(t, "bird at the feeder", rec.Description)
	assert.InDelta(t, 0.9, rec.ConfidenceScore, 0.001)
	assert.Equal(t, int64(1234), rec.ProcessingTimeMs)
	assert.Equal(t, model.StatusSuccess, rec.Status)
}

func TestRunBatch_FailedAttemptBecomesFailedRecord(t *testing.T) {
	runner := &fakeRunner{results: map[string]model.AttemptResult{
		"https://a.example.com/bad.mp4": {ErrorMessage: "https://a.example.com/bad.mp4 not accessible"},
	}}
	o := NewOrchestrator(runner, &fakeReducer{}, 0, 1)

	result := o.RunBatch(context.Background(), []string{"https://a.example.com/bad.mp4"}, "bird", model.SingleMode())

	require.Len(t, result.Records, 1)
	assert.Equal(t, model.StatusFailed, result.Records[0].Status)
	assert.Contains(t, result.Records[0].ErrorMessage, "not accessible")
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 1, result.FailureCount)
}

func TestRunBatch_PanicIsolatedPerInput(t *testing.T) {
	runner := &fakeRunner{
		results: map[string]model.AttemptResult{
			"https://a.example.com/ok.mp4": {Detected: true, Description: "bird", ConfidenceScore: 0.7},
		},
		panicOn: "https://a.example.com/boom.mp4",
	}
	o := NewOrchestrator(runner, &fakeReducer{}, 0, 2)

	inputs := []string{"https://a.example.com/boom.mp4", "https://a.example.com/ok.mp4"}
	result := o.RunBatch(context.Background(), inputs, "bird", model.SingleMode())

	require.Len(t, result.Records, 2)
	assert.Equal(t, model.StatusFailed, result.Records[0].Status)
	assert.Contains(t, result.Records[0].ErrorMessage, "analysis panicked")
	assert.Equal(t, model.StatusSuccess, result.Records[1].Status)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
}

func TestRunBatch_EmptyInputs(t *testing.T) {
	o := NewOrchestrator(&fakeRunner{}, &fakeReducer{}, 0, 2)

	result := o.RunBatch(context.Background(), nil, "bird", model.SingleMode())

	assert.Equal(t, 0, result.TotalInputs)
	require.Len(t, result.Records, 1)
	assert.Equal(t, model.StatusFailed, result.Records[0].Status)
	assert.Contains(t, result.Records[0].ErrorMessage, "no inputs found")
	assert.Equal(t, 0, result.ProcessedCount)
	assert.Equal(t, 1, result.FailureCount)
}

func TestRunBatch_RecordOrderMirrorsInputOrder(t *testing.T) {
	inputs := []string{
		"https://a.example.com/slow.mp4",
		"https://a.example.com/fast1.mp4",
		"https://a.example.com/fast2.mp4",
	}
	runner := &fakeRunner{
		results: map[string]model.AttemptResult{
			inputs[0]: {Detected: true, Description: "slow"},
			inputs[1]: {Detected: false, Description: "fast1"},
			inputs[2]: {Detected: false, Description: "fast2"},
		},
		delay: map[string]time.Duration{inputs[0]: 30 * time.Millisecond},
	}
	o := NewOrchestrator(runner, &fakeReducer{}, 0, 3)

	result := o.RunBatch(context.Background(), inputs, "bird", model.SingleMode())

	require.Len(t, result.Records, 3)
	for i, rec := range result.Records {
		assert.Equal(t, inputs[i], rec.InputRef)
	}
}

func TestRunBatch_AnalysisFailedVerdictBecomesFailedRecord(t *testing.T) {
	reducer := &fakeReducer{verdicts: map[string]model.ConsensusVerdict{
		"https://a.example.com/1.mp4": {
			Metrics:        model.ConsensusMetrics{QualityFlags: []string{model.FlagAnalysisFailed}},
			Recommendation: "Analysis failed: scripted.",
		},
	}}
	o := NewOrchestrator(&fakeRunner{}, reducer, 0, 1)

	result := o.RunBatch(context.Background(), []string{"https://a.example.com/1.mp4"}, "bird", model.ConsensusMode(2))

	require.Len(t, result.Records, 1)
	assert.Equal(t, model.StatusFailed, result.Records[0].Status)
	assert.Contains(t, result.Records[0].ErrorMessage, "Analysis failed")
}
