package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "deal-analysis",
	Short: "HubSpot deal analysis service",
	Long:  "Aggregates HubSpot deal data into a single document, analyzes it with Claude, and persists analyses plus per-section feedback to a relational warehouse.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
