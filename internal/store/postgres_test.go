package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func typeRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"type_id", "name", "description", "system_prompt", "is_active", "version", "metadata",
	})
}

func TestPostgresStore_GetAnalysisType_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT type_id, name, description, system_prompt, is_active, version, metadata`).
		WithArgs("nonexistent").
		WillReturnRows(typeRows())

	got, err := s.GetAnalysisType(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalysisType_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	desc := "Reviews deal health"
	mock.ExpectQuery(`SELECT type_id, name, description, system_prompt, is_active, version, metadata`).
		WithArgs("deal_review").
		WillReturnRows(typeRows().AddRow(
			"deal_review", "Deal Review", &desc, "You are a deal reviewer.", true, 3, []byte(`{"team":"sales"}`),
		))

	got, err := s.GetAnalysisType(context.Background(), "deal_review")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "deal_review", got.TypeID)
	assert.Equal(t, "Deal Review", got.Name)
	assert.Equal(t, "Reviews deal health", got.Description)
	assert.Equal(t, 3, got.Version)
	assert.True(t, got.IsActive)
	assert.Equal(t, map[string]any{"team": "sales"}, got.Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAnalysisTypes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT type_id, name, description, system_prompt, is_active, version, metadata`).
		WillReturnRows(typeRows().
			AddRow("a", "Alpha", (*string)(nil), "prompt a", true, 1, []byte(nil)).
			AddRow("b", "Beta", (*string)(nil), "prompt b", true, 2, []byte(nil)),
		)

	types, err := s.ListAnalysisTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "a", types[0].TypeID)
	assert.Equal(t, "b", types[1].TypeID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertAnalysisType_BumpsVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(type_id\) DO UPDATE`).
		WithArgs("deal_review", "Deal Review", "", "prompt", true, 1, []byte(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertAnalysisType(context.Background(), model.AnalysisType{
		TypeID:       "deal_review",
		Name:         "Deal Review",
		SystemPrompt: "prompt",
		IsActive:     true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAnalysis(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO analyses`).
		WithArgs("deal_123_review_2025-01-02T03:04:05", "123", "Acme Deal", "review",
			"", "prompt", "## Summary\nGood deal.", 1, []byte(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &model.Analysis{
		AnalysisID:   "deal_123_review_2025-01-02T03:04:05",
		DealID:       "123",
		DealName:     "Acme Deal",
		AnalysisType: "review",
		SystemPrompt: "prompt",
		FullResponse: "## Summary\nGood deal.",
	}
	require.NoError(t, s.SaveAnalysis(context.Background(), a))
	assert.False(t, a.CreatedAt.IsZero())
	assert.Equal(t, 1, a.PromptVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveFeedback_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO feedback`).
		WithArgs(pgxmock.AnyArg(), "an-1", "section_1", "Summary", "down",
			"too vague", "", 1, []byte(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := s.SaveFeedback(context.Background(), &model.Feedback{
		AnalysisID:     "an-1",
		SectionID:      "section_1",
		SectionTitle:   "Summary",
		Feedback:       model.FeedbackDown,
		FeedbackReason: "too vague",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveFeedback_DuplicateIsNoOp(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO feedback`).
		WithArgs(pgxmock.AnyArg(), "an-1", "section_1", "Summary", "up",
			"", "", 1, []byte(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := s.SaveFeedback(context.Background(), &model.Feedback{
		AnalysisID:   "an-1",
		SectionID:    "section_1",
		SectionTitle: "Summary",
		Feedback:     model.FeedbackUp,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchAnalyses_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT a.analysis_id, a.deal_id, a.deal_name`).
		WithArgs("%acme%", "review", "2025-01-01", 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"analysis_id", "deal_id", "deal_name", "analysis_type", "type_name", "full_response", "created_at",
		}).AddRow("an-1", "123", "Acme Deal", "review", "Deal Review", "## Summary\nOK", created))

	results, err := s.SearchAnalyses(context.Background(), SearchFilter{
		Query:        "acme",
		AnalysisType: "review",
		DateFrom:     "2025-01-01",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "an-1", results[0].AnalysisID)
	assert.Equal(t, "Deal Review", results[0].TypeName)
	assert.Equal(t, created, results[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FeedbackStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT a.analysis_id, a.analysis_type`).
		WillReturnRows(pgxmock.NewRows([]string{"analysis_id", "analysis_type", "name", "full_response"}).
			AddRow("an-1", "review", "Deal Review", "## A\nx\n## B\ny").
			AddRow("an-2", "review", "Deal Review", "## A\nx\n## B\ny").
			AddRow("an-3", "risk", "Risk Scan", "no sections here"),
		)
	mock.ExpectQuery(`SELECT analysis_id, COUNT`).
		WithArgs("down", "overall").
		WillReturnRows(pgxmock.NewRows([]string{"analysis_id", "count"}).AddRow("an-1", 1))

	stats, err := s.FeedbackStats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1, "zero-section analyses drop their type entirely")
	assert.Equal(t, "review", stats[0].TypeID)
	assert.Equal(t, 4, stats[0].TotalSections)
	assert.Equal(t, 1, stats[0].NegativeFeedback)
	assert.Equal(t, 2, stats[0].AnalysisCount)
	assert.Equal(t, 75, stats[0].Accuracy)
	assert.NoError(t, mock.ExpectationsWereMet())
}
