package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clauseguard/clauseguard/internal/analyzer"
	"github.com/clauseguard/clauseguard/internal/compound"
	"github.com/clauseguard/clauseguard/internal/detector"
	"github.com/clauseguard/clauseguard/internal/document"
	"github.com/clauseguard/clauseguard/internal/embedding"
	"github.com/clauseguard/clauseguard/internal/fixer"
	"github.com/clauseguard/clauseguard/internal/llm"
	"github.com/clauseguard/clauseguard/internal/pipeline"
	"github.com/clauseguard/clauseguard/internal/vectorstore"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <contract.pdf>",
	Short: "Analyze a single contract and print the report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	llmClient := llm.NewClient(cfg.LLM)
	embedder := embedding.NewClient(cfg.Embedding)

	store, err := vectorstore.Open(cfg.VectorDB, embedder)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	analysis := pipeline.New(
		document.NewProcessor(cfg.Chunking, embedder),
		detector.New(cfg.Zones, store),
		analyzer.New(llmClient),
		fixer.New(llmClient, store),
		compound.New(llmClient),
	)

	result, err := analysis.AnalyzeContract(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
