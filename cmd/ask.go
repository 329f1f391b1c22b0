package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/app"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/log"
	"github.com/quarrylabs/quarry/internal/retrieval"
)

var (
	askTopK      int
	askThreshold float64
)

var askCmd = &cobra.Command{
	Use:   "ask QUERY",
	Short: "Retrieve context for a query from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "Maximum documents to retrieve (0 uses configuration)")
	askCmd.Flags().Float64Var(&askThreshold, "threshold", -1, "Minimum similarity (negative uses configuration)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	topK := cfg.RetrievalTopK
	if askTopK > 0 {
		topK = askTopK
	}
	threshold := cfg.RetrievalThreshold
	if askThreshold >= 0 {
		threshold = askThreshold
	}

	query := strings.Join(args, " ")

	result, err := a.Retriever.Retrieve(ctx, query, topK, threshold)
	if err != nil {
		return fmt.Errorf("retrieving: %w", err)
	}

	if result.CacheHit {
		fmt.Println("(semantic cache hit)")
		fmt.Println()
		fmt.Println(result.CachedResponse)
		return nil
	}

	fmt.Println(retrieval.BuildContextString(result.Documents))
	return nil
}
