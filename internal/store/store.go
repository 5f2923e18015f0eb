// Package store persists analyses and section feedback to the warehouse.
// Two drivers exist: postgres for shared deployments and sqlite for
// single-user or local runs. Both speak the same schema.
package store

import (
	"context"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
)

// SearchFilter narrows SearchAnalyses. Zero-value fields are ignored.
// DateFrom/DateTo are inclusive YYYY-MM-DD bounds on the creation date.
type SearchFilter struct {
	Query        string
	AnalysisType string
	DateFrom     string
	DateTo       string
	Limit        int
}

const defaultSearchLimit = 100

// Store is the warehouse contract. Analyses are append-only; feedback is
// write-once per (analysis, section) pair and silently ignores duplicates.
type Store interface {
	// Migrate creates the schema if it does not exist. Idempotent.
	Migrate(ctx context.Context) error

	ListAnalysisTypes(ctx context.Context) ([]model.AnalysisType, error)
	// GetAnalysisType returns (nil, nil) when no such type exists.
	GetAnalysisType(ctx context.Context, typeID string) (*model.AnalysisType, error)
	// UpsertAnalysisType inserts a new type or updates an existing one,
	// bumping its version on update.
	UpsertAnalysisType(ctx context.Context, t model.AnalysisType) error

	SaveAnalysis(ctx context.Context, a *model.Analysis) error

	// SaveFeedback records one section's feedback. Returns false when a
	// row for the same (analysis_id, section_id) already exists; the
	// duplicate is dropped without error.
	SaveFeedback(ctx context.Context, fb *model.Feedback) (bool, error)

	SearchAnalyses(ctx context.Context, f SearchFilter) ([]model.Analysis, error)
	FeedbackStats(ctx context.Context) ([]model.FeedbackStat, error)

	Ping(ctx context.Context) error
	Close() error
}
