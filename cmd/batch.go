package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sightline/sightline-cli/internal/pipeline"
)

var (
	batchObject    string
	batchInputFile string
	batchOutput    string
	batchConsensus bool
	batchRuns      int
	batchNoStore   bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [input-url ...]",
	Short: "Analyze a list of video clips and write a CSV artifact",
	Long: "Accepts input references as arguments or from a newline/comma-separated file. " +
		"Tokens that are not absolute http(s) URLs are silently dropped. " +
		"The CSV artifact and summary report always render, even under total failure.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode, err := buildMode(batchConsensus, batchRuns)
		if err != nil {
			return err
		}

		env, err := initPipeline(cfg)
		if err != nil {
			return err
		}

		raw := strings.Join(args, "\n")
		if batchInputFile != "" {
			data, err := os.ReadFile(batchInputFile)
			if err != nil {
				return eris.Wrapf(err, "read input file %s", batchInputFile)
			}
			raw = raw + "\n" + string(data)
		}
		inputs := pipeline.ParseInputRefs(raw)

		result := env.Orchestrator.RunBatch(ctx, inputs, batchObject, mode)

		outputPath := batchOutput
		if outputPath == "" {
			outputPath = pipeline.DefaultOutputPath(batchObject, time.Now())
		}
		if err := pipeline.ExportCSV(result, outputPath); err != nil {
			return err
		}
		zap.L().Info("batch: csv written", zap.String("path", outputPath))

		pipeline.WriteSummary(os.Stdout, result)

		if !batchNoStore {
			st, err := initStore(cfg)
			if err != nil {
				zap.L().Warn("batch: run store unavailable", zap.Error(err))
				return nil
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				zap.L().Warn("batch: run store migration failed", zap.Error(err))
				return nil
			}
			run, err := st.SaveBatch(ctx, mode.String(), result)
			if err != nil {
				zap.L().Warn("batch: failed to persist run", zap.Error(err))
				return nil
			}
			zap.L().Info("batch: run persisted", zap.String("run_id", run.ID))
		}

		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchObject, "object", "", "object to look for (required)")
	batchCmd.Flags().StringVar(&batchInputFile, "input-file", "", "file with newline/comma-separated input URLs")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "CSV output path (default derived from object name + timestamp)")
	batchCmd.Flags().BoolVar(&batchConsensus, "consensus", false, "run multi-attempt consensus per input")
	batchCmd.Flags().IntVar(&batchRuns, "runs", 3, "consensus run count (2-10)")
	batchCmd.Flags().BoolVar(&batchNoStore, "no-store", false, "skip persisting the run to the history store")
	_ = batchCmd.MarkFlagRequired("object")
	rootCmd.AddCommand(batchCmd)
}
