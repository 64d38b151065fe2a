package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sightline/sightline-cli/internal/detect"
	"github.com/sightline/sightline-cli/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(cfg)
		if err != nil {
			return err
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/analyze", analyzeHandler(env))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// analyzeRequest is the POST /analyze body.
type analyzeRequest struct {
	InputRef  string `json:"input_ref"`
	Object    string `json:"object"`
	Consensus bool   `json:"consensus"`
	Runs      int    `json:"runs"`
}

// analyzeHandler runs single or consensus analysis for one input and
// responds synchronously with the result.
func analyzeHandler(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.InputRef == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "input_ref is required"})
			return
		}
		if req.Object == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "object is required"})
			return
		}
		if req.Runs == 0 {
			req.Runs = cfg.Consensus.Runs
		}
		mode, err := buildMode(req.Consensus, req.Runs)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		inputRef := pipeline.NormalizeShareURL(req.InputRef)
		prompt := detect.BuildPrompt(req.Object)

		if mode.Consensus {
			verdict := env.Reducer.Consensus(r.Context(), inputRef, prompt, mode.Runs)
			writeJSON(w, http.StatusOK, verdict)
			return
		}

		attempt := env.Analyzer.Analyze(r.Context(), inputRef, prompt, 1)
		writeJSON(w, http.StatusOK, attempt)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("serve: encode response", zap.Error(err))
	}
}
