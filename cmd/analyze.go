package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sightline/sightline-cli/internal/detect"
	"github.com/sightline/sightline-cli/internal/pipeline"
)

var (
	analyzeObject    string
	analyzeConsensus bool
	analyzeRuns      int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <input-url>",
	Short: "Analyze one video clip for the named object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode, err := buildMode(analyzeConsensus, analyzeRuns)
		if err != nil {
			return err
		}

		env, err := initPipeline(cfg)
		if err != nil {
			return err
		}

		inputRef := pipeline.NormalizeShareURL(args[0])
		prompt := detect.BuildPrompt(analyzeObject)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if mode.Consensus {
			verdict := env.Reducer.Consensus(ctx, inputRef, prompt, mode.Runs)
			return eris.Wrap(enc.Encode(verdict), "encode verdict")
		}

		attempt := env.Analyzer.Analyze(ctx, inputRef, prompt, 1)
		return eris.Wrap(enc.Encode(attempt), "encode attempt")
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeObject, "object", "", "object to look for (required)")
	analyzeCmd.Flags().BoolVar(&analyzeConsensus, "consensus", false, "run multi-attempt consensus analysis")
	analyzeCmd.Flags().IntVar(&analyzeRuns, "runs", 3, "consensus run count (2-10)")
	_ = analyzeCmd.MarkFlagRequired("object")
	rootCmd.AddCommand(analyzeCmd)
}
