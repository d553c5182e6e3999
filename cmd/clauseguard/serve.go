package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clauseguard/clauseguard/internal/analyzer"
	"github.com/clauseguard/clauseguard/internal/compound"
	"github.com/clauseguard/clauseguard/internal/detector"
	"github.com/clauseguard/clauseguard/internal/document"
	"github.com/clauseguard/clauseguard/internal/embedding"
	"github.com/clauseguard/clauseguard/internal/feedback"
	"github.com/clauseguard/clauseguard/internal/fixer"
	"github.com/clauseguard/clauseguard/internal/jobs"
	"github.com/clauseguard/clauseguard/internal/llm"
	"github.com/clauseguard/clauseguard/internal/models"
	"github.com/clauseguard/clauseguard/internal/pipeline"
	"github.com/clauseguard/clauseguard/internal/server"
	"github.com/clauseguard/clauseguard/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis API server",
	Long: `Starts the HTTP API: contract uploads, background analysis jobs,
feedback collection and corpus administration.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmClient := llm.NewClient(cfg.LLM)
	embedder := embedding.NewClient(cfg.Embedding)

	store, err := vectorstore.Open(cfg.VectorDB, embedder)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	fb, err := feedback.Open(cfg.Feedback)
	if err != nil {
		return fmt.Errorf("failed to open feedback store: %w", err)
	}
	defer fb.Close()

	analysis := pipeline.New(
		document.NewProcessor(cfg.Chunking, embedder),
		detector.New(cfg.Zones, store),
		analyzer.New(llmClient),
		fixer.New(llmClient, store),
		compound.New(llmClient),
	)

	registry, err := jobs.NewRegistry(cfg.Jobs)
	if err != nil {
		return fmt.Errorf("failed to create job registry: %w", err)
	}
	pool := jobs.NewPool(registry, func(ctx context.Context, job *models.JobRecord) (*models.AnalysisResult, error) {
		result, err := analysis.AnalyzeContract(ctx, job.FilePath)
		if err != nil {
			return nil, err
		}
		result.Document.Filename = job.Filename
		return result, nil
	}, cfg.Jobs.MaxWorkers)

	srv := server.New(cfg.Server, registry, pool, fb, store, llmClient.Stats)
	return srv.ListenAndServe(ctx)
}
