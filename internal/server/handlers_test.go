package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/analysis"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/deal"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/store"
	"github.com/HqOapp/hubspot-deal-analysis-extension/pkg/anthropic"
	"github.com/HqOapp/hubspot-deal-analysis-extension/pkg/hubspot"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	types    map[string]model.AnalysisType
	analyses []*model.Analysis
	feedback map[string]*model.Feedback // keyed analysis_id/section_id

	searchResult []model.Analysis
	stats        []model.FeedbackStat
	err          error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		types:    map[string]model.AnalysisType{},
		feedback: map[string]*model.Feedback{},
	}
}

func (f *fakeStore) Migrate(context.Context) error { return nil }

func (f *fakeStore) ListAnalysisTypes(context.Context) ([]model.AnalysisType, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.AnalysisType
	for _, t := range f.types {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) GetAnalysisType(_ context.Context, typeID string) (*model.AnalysisType, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.types[typeID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) UpsertAnalysisType(_ context.Context, t model.AnalysisType) error {
	f.types[t.TypeID] = t
	return nil
}

func (f *fakeStore) SaveAnalysis(_ context.Context, a *model.Analysis) error {
	if f.err != nil {
		return f.err
	}
	f.analyses = append(f.analyses, a)
	return nil
}

func (f *fakeStore) SaveFeedback(_ context.Context, fb *model.Feedback) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	key := fb.AnalysisID + "/" + fb.SectionID
	if _, exists := f.feedback[key]; exists {
		return false, nil
	}
	f.feedback[key] = fb
	return true, nil
}

func (f *fakeStore) SearchAnalyses(context.Context, store.SearchFilter) ([]model.Analysis, error) {
	return f.searchResult, f.err
}

func (f *fakeStore) FeedbackStats(context.Context) ([]model.FeedbackStat, error) {
	return f.stats, f.err
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

// fakeCRM serves a single canned deal with no associations.
type fakeCRM struct {
	deal *hubspot.Record
	err  error
}

func (c *fakeCRM) GetRecord(context.Context, string, string, []string) (*hubspot.Record, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.deal, nil
}

func (c *fakeCRM) ListAssociations(context.Context, string, string) ([]hubspot.Association, error) {
	return nil, nil
}

func (c *fakeCRM) BatchRead(context.Context, string, []string, []string) ([]hubspot.Record, error) {
	return nil, nil
}

type fakeClaude struct {
	response string
	err      error
}

func (c *fakeClaude) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: c.response}},
	}, nil
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, New(newFakeStore(), nil, nil), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestHandleListAnalysisTypes_EmptyIsArray(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, New(newFakeStore(), nil, nil), http.MethodGet, "/api/analysis-types", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestHandleGetAnalysisType_NotFound(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, New(newFakeStore(), nil, nil), http.MethodGet, "/api/analysis-types/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "analysis type not found", decodeBody(t, rec)["error"])
}

func TestHandleGetAnalysisType_Found(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.types["review"] = model.AnalysisType{TypeID: "review", Name: "Deal Review", SystemPrompt: "p", Version: 2}

	rec := doRequest(t, New(st, nil, nil), http.MethodGet, "/api/analysis-types/review", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Deal Review", body["name"])
	assert.Equal(t, float64(2), body["version"])
}

func TestHandleGetDeal_NoPipeline(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, New(newFakeStore(), nil, nil), http.MethodGet, "/api/deals/42", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "crm access not configured", decodeBody(t, rec)["error"])
}

func TestHandleGetDeal_NotFound(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{err: &hubspot.APIError{StatusCode: http.StatusNotFound, Body: "nope"}}
	srv := New(newFakeStore(), deal.New(crm), nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/deals/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "deal not found", decodeBody(t, rec)["error"])
}

func TestHandleGetDeal_UpstreamErrorIsBadGateway(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{err: &hubspot.APIError{StatusCode: http.StatusInternalServerError, Body: "boom"}}
	srv := New(newFakeStore(), deal.New(crm), nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/deals/42", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "api status 500")
}

func TestHandleGetDeal_Success(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{deal: &hubspot.Record{ID: "42", Properties: map[string]string{"dealname": "Acme"}}}
	srv := New(newFakeStore(), deal.New(crm), nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/deals/42", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Acme", body["deal_name"])
	assert.Contains(t, body["formatted_content"], "# Deal: Acme")
}

func TestHandleAnalyzeDeal(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.types["review"] = model.AnalysisType{TypeID: "review", Name: "Deal Review", SystemPrompt: "analyze well", Version: 3}
	crm := &fakeCRM{deal: &hubspot.Record{ID: "42", Properties: map[string]string{"dealname": "Acme"}}}
	claude := &fakeClaude{response: "## Overview\nHealthy.\n## Risks\nNone."}
	srv := New(st, deal.New(crm), analysis.NewAnalyzer(claude, "m", 100))

	rec := doRequest(t, srv, http.MethodPost, "/api/deals/42/analyze",
		`{"analysis_type":"review","user_input":"focus on pricing"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "Acme", body["deal_name"])
	assert.Equal(t, "## Overview\nHealthy.\n## Risks\nNone.", body["full_response"])
	assert.Len(t, body["sections"], 2)
	assert.Contains(t, body["analysis_id"], "deal_42_review_")

	require.Len(t, st.analyses, 1)
	saved := st.analyses[0]
	assert.Equal(t, "focus on pricing", saved.UserInput)
	assert.Equal(t, 3, saved.PromptVersion)
	assert.Equal(t, "Deal Review", saved.TypeName)
}

func TestHandleAnalyzeDeal_MissingType(t *testing.T) {
	t.Parallel()

	srv := New(newFakeStore(), deal.New(&fakeCRM{}), analysis.NewAnalyzer(&fakeClaude{}, "m", 100))

	rec := doRequest(t, srv, http.MethodPost, "/api/deals/42/analyze", `{"user_input":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required field: analysis_type", decodeBody(t, rec)["error"])
}

func TestHandleAnalyzeDeal_UnknownType(t *testing.T) {
	t.Parallel()

	srv := New(newFakeStore(), deal.New(&fakeCRM{}), analysis.NewAnalyzer(&fakeClaude{}, "m", 100))

	rec := doRequest(t, srv, http.MethodPost, "/api/deals/42/analyze", `{"analysis_type":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "analysis type not found", decodeBody(t, rec)["error"])
}

func TestHandleAnalyzeDeal_ClaudeFailure(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.types["review"] = model.AnalysisType{TypeID: "review", Name: "Deal Review", SystemPrompt: "p"}
	crm := &fakeCRM{deal: &hubspot.Record{ID: "42", Properties: map[string]string{"dealname": "Acme"}}}
	srv := New(st, deal.New(crm), analysis.NewAnalyzer(&fakeClaude{err: eris.New("overloaded")}, "m", 100))

	rec := doRequest(t, srv, http.MethodPost, "/api/deals/42/analyze", `{"analysis_type":"review"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "analysis failed", decodeBody(t, rec)["error"])
	assert.Empty(t, st.analyses)
}

func TestHandleCreateAnalysis(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	srv := New(st, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/analyses", `{
		"deal_id":"42","deal_name":"Acme","analysis_type":"review",
		"user_input":"","system_prompt":"p","full_response":"## A\nx\n## B\ny",
		"prompt_version":2
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Contains(t, body["analysis_id"], "deal_42_review_")
	assert.Len(t, body["sections"], 2)

	require.Len(t, st.analyses, 1)
	assert.Equal(t, 2, st.analyses[0].PromptVersion)
}

func TestHandleCreateAnalysis_MissingField(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, New(newFakeStore(), nil, nil), http.MethodPost, "/api/analyses",
		`{"deal_id":"42","deal_name":"Acme","analysis_type":"review","user_input":"","system_prompt":"p"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required field: full_response", decodeBody(t, rec)["error"])
}

func TestHandleSubmitFeedback(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	srv := New(st, nil, nil)
	payload := `{"analysis_id":"a1","section_id":"section_1","section_title":"Overview","feedback":"down","feedback_reason":"wrong stage"}`

	rec := doRequest(t, srv, http.MethodPost, "/api/feedback", payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	require.Len(t, st.feedback, 1)
	assert.Equal(t, "wrong stage", st.feedback["a1/section_1"].FeedbackReason)

	// A duplicate submission is dropped but still acknowledged.
	rec = doRequest(t, srv, http.MethodPost, "/api/feedback", payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.Len(t, st.feedback, 1)
}

func TestHandleSubmitFeedback_InvalidValue(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, New(newFakeStore(), nil, nil), http.MethodPost, "/api/feedback",
		`{"analysis_id":"a1","section_id":"s1","section_title":"t","feedback":"meh"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "feedback must be 'up' or 'down'", decodeBody(t, rec)["error"])
}

func TestHandleSubmitFeedback_MissingField(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, New(newFakeStore(), nil, nil), http.MethodPost, "/api/feedback",
		`{"analysis_id":"a1","section_title":"t","feedback":"up"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required field: section_id", decodeBody(t, rec)["error"])
}

func TestHandleSearchAnalyses_GroupedByDefault(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.searchResult = []model.Analysis{
		{AnalysisID: "a2", DealID: "42", DealName: "Acme"},
		{AnalysisID: "a1", DealID: "42", DealName: "Acme"},
	}

	rec := doRequest(t, New(st, nil, nil), http.MethodGet, "/api/analyses/search?q=acme", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["grouped"])
	deals, ok := body["deals"].([]any)
	require.True(t, ok)
	require.Len(t, deals, 1)
}

func TestHandleSearchAnalyses_Ungrouped(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.searchResult = []model.Analysis{{AnalysisID: "a1", DealID: "42"}}

	rec := doRequest(t, New(st, nil, nil), http.MethodGet, "/api/analyses/search?grouped=false", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["grouped"])
	analyses, ok := body["analyses"].([]any)
	require.True(t, ok)
	require.Len(t, analyses, 1)
}

func TestHandleSearchAnalyses_EmptyIsArrays(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, New(newFakeStore(), nil, nil), http.MethodGet, "/api/analyses/search", "")
	require.Equal(t, http.StatusOK, rec.Code)
	deals, ok := decodeBody(t, rec)["deals"].([]any)
	require.True(t, ok)
	assert.Empty(t, deals)
}

func TestHandleSearchAnalyses_StoreError(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.err = eris.New("db down")

	rec := doRequest(t, New(st, nil, nil), http.MethodGet, "/api/analyses/search", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "search failed", decodeBody(t, rec)["error"])
}

func TestHandleFeedbackStats(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.stats = []model.FeedbackStat{
		{TypeID: "review", Name: "Deal Review", TotalSections: 4, NegativeFeedback: 1, AnalysisCount: 2, Accuracy: 75},
	}

	rec := doRequest(t, New(st, nil, nil), http.MethodGet, "/api/feedback-stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats []model.FeedbackStat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, 75, stats[0].Accuracy)
}
