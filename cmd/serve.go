package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/analysis"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/deal"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deal-analysis API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		// CRM and Claude access are optional for serve: without them the
		// store-backed routes still work and the deal routes return 503.
		var pipeline *deal.Pipeline
		if cfg.HubSpot.Token != "" {
			if pipeline, err = initPipeline(); err != nil {
				return err
			}
		} else {
			zap.L().Warn("serve: no hubspot token, deal routes disabled")
		}

		var analyzer *analysis.Analyzer
		if cfg.Anthropic.Key != "" {
			if analyzer, err = initAnalyzer(); err != nil {
				return err
			}
		} else {
			zap.L().Warn("serve: no anthropic key, analyze route disabled")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		return server.New(st, pipeline, analyzer).ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
