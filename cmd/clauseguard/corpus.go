package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clauseguard/clauseguard/internal/embedding"
	"github.com/clauseguard/clauseguard/internal/feedback"
	"github.com/clauseguard/clauseguard/internal/vectorstore"
)

var (
	clauseCategory  string
	clauseRiskLevel string
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Inspect and maintain the reference clause corpus",
}

var corpusStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus composition",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCorpus()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Total clauses: %d\n", stats.TotalClauses)
		fmt.Println("By category:")
		for category, n := range stats.ByCategory {
			fmt.Printf("  %-30s %d\n", category, n)
		}
		fmt.Println("By risk level:")
		for level, n := range stats.ByRiskLevel {
			fmt.Printf("  %-30s %d\n", level, n)
		}
		return nil
	},
}

var corpusAddCmd = &cobra.Command{
	Use:   "add <clause text>",
	Short: "Add an exemplar clause to the corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCorpus()
		if err != nil {
			return err
		}
		defer store.Close()

		id := fmt.Sprintf("manual_%s", uuid.NewString()[:8])
		if err := store.AddExemplar(cmd.Context(), id, args[0], clauseCategory, clauseRiskLevel, "manual"); err != nil {
			return err
		}
		fmt.Printf("Added %s (%s / %s)\n", id, clauseCategory, clauseRiskLevel)
		return nil
	},
}

var corpusSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push verified user feedback into the corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCorpus()
		if err != nil {
			return err
		}
		defer store.Close()

		fb, err := feedback.Open(cfg.Feedback)
		if err != nil {
			return fmt.Errorf("failed to open feedback store: %w", err)
		}
		defer fb.Close()

		n, err := fb.SyncToCorpus(cmd.Context(), store)
		if err != nil {
			return err
		}
		fmt.Printf("Synced %d feedback entries\n", n)
		return nil
	},
}

func openCorpus() (*vectorstore.Store, error) {
	store, err := vectorstore.Open(cfg.VectorDB, embedding.NewClient(cfg.Embedding))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	return store, nil
}

func init() {
	corpusAddCmd.Flags().StringVar(&clauseCategory, "category", "", "target category for the clause")
	corpusAddCmd.Flags().StringVar(&clauseRiskLevel, "risk-level", "safe", "risk level (safe or risky)")
	corpusAddCmd.MarkFlagRequired("category")

	corpusCmd.AddCommand(corpusStatsCmd)
	corpusCmd.AddCommand(corpusAddCmd)
	corpusCmd.AddCommand(corpusSyncCmd)
}
