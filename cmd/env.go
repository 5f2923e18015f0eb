package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/analysis"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/deal"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/store"
	"github.com/HqOapp/hubspot-deal-analysis-extension/pkg/anthropic"
	"github.com/HqOapp/hubspot-deal-analysis-extension/pkg/hubspot"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "deal-analysis.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initPipeline() (*deal.Pipeline, error) {
	if cfg.HubSpot.Token == "" {
		return nil, eris.New("hubspot token is required (DEALAI_HUBSPOT_TOKEN)")
	}
	opts := []hubspot.Option{hubspot.WithBaseURL(cfg.HubSpot.BaseURL)}
	if cfg.HubSpot.RateLimitRPS > 0 {
		opts = append(opts, hubspot.WithRateLimit(cfg.HubSpot.RateLimitRPS))
	}
	return deal.New(hubspot.NewClient(cfg.HubSpot.Token, opts...)), nil
}

func initAnalyzer() (*analysis.Analyzer, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (DEALAI_ANTHROPIC_KEY)")
	}
	client := anthropic.NewClient(cfg.Anthropic.Key)
	return analysis.NewAnalyzer(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
}
