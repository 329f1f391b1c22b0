package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/app"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/ingest"
	"github.com/quarrylabs/quarry/internal/log"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest reads each file, splits it into overlapping chunks, embeds the
chunks, and stores them in the vector store. Files whose content is
already present (byte-identical) are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
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

	var failed int
	for _, path := range args {
		content, err := os.ReadFile(path) //nolint:gosec // user-supplied CLI path
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading %s: %v\n", path, err)
			failed++
			continue
		}

		result, err := a.Ingestor.Ingest(ctx, filepath.Base(path), content)
		if err != nil {
			if errors.Is(err, ingest.ErrDuplicateContent) {
				fmt.Printf("%s: already ingested, skipping\n", path)
				continue
			}
			fmt.Fprintf(os.Stderr, "ingesting %s: %v\n", path, err)
			failed++
			continue
		}

		fmt.Printf("%s: %d chunks in %s (hash %s)\n",
			path, result.Chunks, result.Duration.Round(time.Millisecond), result.SourceHash[:12])
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}
