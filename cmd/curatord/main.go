// Package main provides the entry point for the curation engine HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "curatord",
	Short: "Study validation admission and reconciliation service",
	Long:  "curatord admits metadata validation runs against the rule-engine runner, reconciles their results with curator overrides and serves the finalized reports via REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
