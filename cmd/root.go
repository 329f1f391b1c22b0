// Package cmd contains the quarry CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Quarry - retrieval-augmented query service",
	Long: `Quarry ingests documents into a pgvector knowledge base and serves
similarity-search retrieval over them, fronted by a semantic response
cache and a per-client rate limiter.

Run 'quarry serve' to start the HTTP API, 'quarry ingest' to load
documents, or 'quarry ask' to query from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
