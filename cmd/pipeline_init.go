package main

import (
	"github.com/rotisserie/eris"

	"github.com/sightline/sightline-cli/internal/config"
	"github.com/sightline/sightline-cli/internal/detect"
	"github.com/sightline/sightline-cli/internal/model"
	"github.com/sightline/sightline-cli/internal/pipeline"
	"github.com/sightline/sightline-cli/internal/store"
	"github.com/sightline/sightline-cli/pkg/vision"
)

// pipelineEnv wires the detection engine for commands that perform analysis.
type pipelineEnv struct {
	Analyzer     *detect.Analyzer
	Reducer      *detect.Reducer
	Orchestrator *pipeline.Orchestrator
}

// initPipeline validates the startup-fatal configuration and builds the
// analysis stack on a single shared vision client.
func initPipeline(c *config.Config) (*pipelineEnv, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	client := vision.NewClient(c.Vision.Key,
		vision.WithBaseURL(c.Vision.BaseURL),
		vision.WithModel(c.Vision.Model),
		vision.WithTimeout(c.Vision.Timeout()),
	)

	analyzer := detect.NewAnalyzer(client, c.Vision)
	reducer := detect.NewReducer(analyzer, c.Consensus.LaunchStagger())
	orchestrator := pipeline.NewOrchestrator(analyzer, reducer, c.Batch.Pacing(), c.Batch.MaxConcurrentInputs)

	return &pipelineEnv{
		Analyzer:     analyzer,
		Reducer:      reducer,
		Orchestrator: orchestrator,
	}, nil
}

// initStore opens the run-history database from config.
func initStore(c *config.Config) (store.Store, error) {
	st, err := store.NewSQLite(c.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open run store")
	}
	return st, nil
}

// buildMode resolves the analysis mode from command flags. Run counts
// outside [2,10] are rejected here, at the invocation surface.
func buildMode(consensus bool, runs int) (model.Mode, error) {
	if !consensus {
		return model.SingleMode(), nil
	}
	if runs < model.MinConsensusRuns || runs > model.MaxConsensusRuns {
		return model.Mode{}, eris.Errorf("consensus runs must be between %d and %d, got %d",
			model.MinConsensusRuns, model.MaxConsensusRuns, runs)
	}
	return model.ConsensusMode(runs), nil
}
