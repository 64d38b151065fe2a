package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sightline/sightline-cli/internal/detect"
	"github.com/sightline/sightline-cli/internal/model"
)

// ConsensusRunner reduces multiple attempts on one input into a verdict.
// *detect.Reducer is the production implementation.
type ConsensusRunner interface {
	Consensus(ctx context.Context, inputRef, prompt string, runs int) model.ConsensusVerdict
}

// Orchestrator drives detection across a list of inputs with bounded
// concurrency, fixed inter-input pacing, and per-item failure isolation.
type Orchestrator struct {
	runner      detect.AttemptRunner
	reducer     ConsensusRunner
	pacing      time.Duration
	concurrency int
}

// NewOrchestrator creates a batch orchestrator. Zero pacing disables
// inter-input delays (used by tests); concurrency below 1 is treated as 1.
func NewOrchestrator(runner detect.AttemptRunner, reducer ConsensusRunner, pacing time.Duration, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		runner:      runner,
		reducer:     reducer,
		pacing:      pacing,
		concurrency: concurrency,
	}
}

// RunBatch produces exactly one BatchRecord per input regardless of per-item
// failure; no exception escapes the batch. Record order mirrors input order
// even though inputs are processed concurrently.
func (o *Orchestrator) RunBatch(ctx context.Context, inputs []string, objectName string, mode model.Mode) model.BatchResult {
	result := model.BatchResult{
		ObjectName:  objectName,
		TotalInputs: len(inputs),
		StartTime:   time.Now().UTC(),
	}

	if len(inputs) == 0 {
		// Reporting convenience: the artifact always renders, so an empty
		// discovery still yields one explanatory row.
		result.Records = []model.BatchRecord{{
			Status:       model.StatusFailed,
			ErrorMessage: "no inputs found: supply at least one absolute http(s) reference",
			ProcessedAt:  time.Now().UTC(),
		}}
		result.FailureCount = 1
		result.EndTime = time.Now().UTC()
		return result
	}

	zap.L().Info("batch: starting",
		zap.Int("inputs", len(inputs)),
		zap.String("object", objectName),
		zap.String("mode", mode.String()),
		zap.Int("concurrency", o.concurrency),
	)

	prompt := detect.BuildPrompt(objectName)
	records := make([]model.BatchRecord, len(inputs))

	limiter := rate.NewLimiter(rate.Inf, 1)
	if o.pacing > 0 {
		limiter = rate.NewLimiter(rate.Every(o.pacing), 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, inputRef := range inputs {
		i, inputRef := i, inputRef
		if err := limiter.Wait(ctx); err != nil {
			records[i] = failedRecord(inputRef, err.Error())
			continue
		}
		g.Go(func() error {
			records[i] = o.processInput(gctx, inputRef, prompt, mode)
			return nil
		})
	}
	_ = g.Wait()

	result.Records = records
	result.EndTime = time.Now().UTC()

	// Counters are derived after collection, never updated incrementally.
	result.ProcessedCount = len(records)
	for _, rec := range records {
		if rec.Status == model.StatusSuccess {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}

	zap.L().Info("batch: complete",
		zap.Int("processed", result.ProcessedCount),
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", result.FailureCount),
		zap.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)

	return result
}

// processInput finalizes one record for one input. Panics raised anywhere
// below are converted into a Failed record; the batch never aborts on an
// individual input.
func (o *Orchestrator) processInput(ctx context.Context, inputRef, prompt string, mode model.Mode) (rec model.BatchRecord) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("batch: input processing panicked",
				zap.String("input", inputRef),
				zap.Any("panic", r),
			)
			rec = failedRecord(inputRef, fmt.Sprintf("analysis panicked: %v", r))
		}
	}()

	if mode.Consensus {
		verdict := o.reducer.Consensus(ctx, inputRef, prompt, mode.Runs)
		return recordFromVerdict(inputRef, verdict)
	}

	attempt := o.runner.Analyze(ctx, inputRef, prompt, 1)
	return recordFromAttempt(inputRef, attempt)
}

func recordFromAttempt(inputRef string, a model.AttemptResult) model.BatchRecord {
	rec := model.BatchRecord{
		InputRef:         inputRef,
		HasDetection:     a.Detected,
		Description:      a.Description,
		ConfidenceScore:  a.ConfidenceScore,
		ProcessingTimeMs: a.Timings.TotalMs,
		Status:           model.StatusSuccess,
		ProcessedAt:      time.Now().UTC(),
	}
	if a.Failed() {
		rec.Status = model.StatusFailed
		rec.ErrorMessage = a.ErrorMessage
	}
	return rec
}

func recordFromVerdict(inputRef string, v model.ConsensusVerdict) model.BatchRecord {
	rec := model.BatchRecord{
		InputRef:         inputRef,
		HasDetection:     v.FinalDetection,
		Description:      v.ConsensusDescription,
		ConfidenceScore:  v.ConfidenceLevel,
		ProcessingTimeMs: int64(v.Metrics.AverageProcessingTimeMs),
		Status:           model.StatusSuccess,
		ProcessedAt:      time.Now().UTC(),
	}
	if v.Metrics.HasFlag(model.FlagAnalysisFailed) {
		rec.Status = model.StatusFailed
		rec.ErrorMessage = v.Recommendation
	}
	return rec
}

func failedRecord(inputRef, message string) model.BatchRecord {
	return model.BatchRecord{
		InputRef:     inputRef,
		Status:       model.StatusFailed,
		ErrorMessage: message,
		ProcessedAt:  time.Now().UTC(),
	}
}
