package detect

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sightline/sightline-cli/internal/config"
	"github.com/sightline/sightline-cli/internal/model"
	"github.com/sightline/sightline-cli/pkg/vision"
)

// AttemptRunner issues one analysis attempt for one input.
// *Analyzer is the production implementation.
type AttemptRunner interface {
	Analyze(ctx context.Context, inputRef, prompt string, attempt int) model.AttemptResult
}

// Analyzer performs a single inference attempt against one input. It is a
// total function from inputs to AttemptResult: every validation, call, or
// parse failure is converted into a failed result, never an error or panic.
type Analyzer struct {
	client    vision.Client
	probe     *http.Client
	model     string
	maxTokens int
}

// NewAnalyzer creates an analyzer on top of the shared vision client.
// Credential and endpoint presence is validated at startup by the config
// layer, not here.
func NewAnalyzer(client vision.Client, cfg config.VisionConfig) *Analyzer {
	probeTimeout := cfg.ProbeTimeout()
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	return &Analyzer{
		client:    client,
		probe:     &http.Client{Timeout: probeTimeout},
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Analyze runs one call-and-classify cycle. The attempt number is assigned
// by the caller at launch time and carried through unchanged.
func (a *Analyzer) Analyze(ctx context.Context, inputRef, prompt string, attempt int) (res model.AttemptResult) {
	start := time.Now()
	res = model.AttemptResult{Attempt: attempt}
	defer func() {
		res.Timings.TotalMs = msSince(start)
	}()

	// Validation phase: shape check, then accessibility probe.
	vStart := time.Now()
	if msg, ok := validateRef(inputRef); !ok {
		res.Timings.ValidationMs = msSince(vStart)
		res.ErrorMessage = msg
		return res
	}
	if !a.accessible(ctx, inputRef) {
		res.Timings.ValidationMs = msSince(vStart)
		res.ErrorMessage = inputRef + " not accessible"
		return res
	}
	res.Timings.ValidationMs = msSince(vStart)

	// API call phase.
	cStart := time.Now()
	resp, err := a.client.ChatCompletion(ctx, vision.ChatCompletionRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  []vision.Message{vision.VideoMessage(prompt, inputRef)},
	})
	res.Timings.APICallMs = msSince(cStart)
	if err != nil {
		res.ErrorMessage = err.Error()
		zap.L().Debug("analyze: inference call failed",
			zap.String("input", inputRef),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return res
	}

	// Parsing phase.
	pStart := time.Now()
	text, err := resp.Text()
	if err != nil {
		res.Timings.ParsingMs = msSince(pStart)
		res.ErrorMessage = err.Error()
		return res
	}
	detected, confidence := Classify(text)
	res.Timings.ParsingMs = msSince(pStart)

	res.Detected = detected
	res.Description = text
	res.ConfidenceScore = confidence
	return res
}

// validateRef checks that the reference is a non-empty absolute http(s) URL.
func validateRef(inputRef string) (string, bool) {
	if strings.TrimSpace(inputRef) == "" {
		return "input reference is empty", false
	}
	u, err := url.Parse(inputRef)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return "invalid input reference: " + inputRef, false
	}
	return "", true
}

// accessible probes the reference with a HEAD request before spending a full
// inference call on it.
func (a *Analyzer) accessible(ctx context.Context, inputRef string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, inputRef, nil)
	if err != nil {
		return false
	}
	resp, err := a.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	return resp.StatusCode < http.StatusBadRequest
}

func msSince(t time.Time) int64 {
	return time.Since(t).Milliseconds()
}
