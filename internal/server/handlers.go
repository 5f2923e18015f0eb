package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/analysis"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/store"
	"github.com/HqOapp/hubspot-deal-analysis-extension/pkg/hubspot"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAnalysisTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.store.ListAnalysisTypes(r.Context())
	if err != nil {
		zap.L().Error("server: list analysis types", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list analysis types")
		return
	}
	if types == nil {
		types = []model.AnalysisType{}
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) handleGetAnalysisType(w http.ResponseWriter, r *http.Request) {
	typeID := chi.URLParam(r, "typeID")
	t, err := s.store.GetAnalysisType(r.Context(), typeID)
	if err != nil {
		zap.L().Error("server: get analysis type", zap.String("type_id", typeID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load analysis type")
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "analysis type not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "crm access not configured")
		return
	}

	dealID := chi.URLParam(r, "dealID")
	dd, err := s.pipeline.Run(r.Context(), dealID)
	if err != nil {
		if hubspot.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "deal not found")
			return
		}
		zap.L().Error("server: fetch deal", zap.String("deal_id", dealID), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dd)
}

type analyzeRequest struct {
	AnalysisType string `json:"analysis_type"`
	UserInput    string `json:"user_input"`
}

func (s *Server) handleAnalyzeDeal(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil || s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis not configured")
		return
	}

	dealID := chi.URLParam(r, "dealID")

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AnalysisType == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: analysis_type")
		return
	}

	ctx := r.Context()
	analysisType, err := s.store.GetAnalysisType(ctx, req.AnalysisType)
	if err != nil {
		zap.L().Error("server: get analysis type", zap.String("type_id", req.AnalysisType), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load analysis type")
		return
	}
	if analysisType == nil {
		writeError(w, http.StatusNotFound, "analysis type not found")
		return
	}

	dd, err := s.pipeline.Run(ctx, dealID)
	if err != nil {
		if hubspot.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "deal not found")
			return
		}
		zap.L().Error("server: fetch deal", zap.String("deal_id", dealID), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	content := dd.FormattedContent
	if req.UserInput != "" {
		content += "\n\n## Additional Context\n" + req.UserInput
	}

	response, err := s.analyzer.Analyze(ctx, content, analysisType.SystemPrompt)
	if err != nil {
		zap.L().Error("server: analyze deal", zap.String("deal_id", dealID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "analysis failed")
		return
	}

	record := &model.Analysis{
		AnalysisID:    analysis.GenerateAnalysisID(dealID, analysisType.TypeID),
		DealID:        dealID,
		DealName:      dd.DealName,
		AnalysisType:  analysisType.TypeID,
		TypeName:      analysisType.Name,
		UserInput:     req.UserInput,
		SystemPrompt:  analysisType.SystemPrompt,
		FullResponse:  response,
		PromptVersion: analysisType.Version,
	}
	if err := s.store.SaveAnalysis(ctx, record); err != nil {
		zap.L().Error("server: save analysis", zap.String("analysis_id", record.AnalysisID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save analysis")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analysis_id":   record.AnalysisID,
		"deal_name":     record.DealName,
		"sections":      analysis.ParseSections(response),
		"full_response": response,
	})
}

type createAnalysisRequest struct {
	DealID        string         `json:"deal_id"`
	DealName      string         `json:"deal_name"`
	AnalysisType  string         `json:"analysis_type"`
	UserInput     string         `json:"user_input"`
	SystemPrompt  string         `json:"system_prompt"`
	FullResponse  string         `json:"full_response"`
	PromptVersion int            `json:"prompt_version"`
	Metadata      map[string]any `json:"metadata"`
}

var createAnalysisRequired = []string{
	"deal_id", "deal_name", "analysis_type", "user_input", "system_prompt", "full_response",
}

func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeWithRequired(w, r, createAnalysisRequired)
	if !ok {
		return
	}

	var req createAnalysisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record := &model.Analysis{
		AnalysisID:    analysis.GenerateAnalysisID(req.DealID, req.AnalysisType),
		DealID:        req.DealID,
		DealName:      req.DealName,
		AnalysisType:  req.AnalysisType,
		UserInput:     req.UserInput,
		SystemPrompt:  req.SystemPrompt,
		FullResponse:  req.FullResponse,
		PromptVersion: req.PromptVersion,
		Metadata:      req.Metadata,
	}
	if err := s.store.SaveAnalysis(r.Context(), record); err != nil {
		zap.L().Error("server: save analysis", zap.String("analysis_id", record.AnalysisID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save analysis")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analysis_id": record.AnalysisID,
		"sections":    analysis.ParseSections(req.FullResponse),
	})
}

type feedbackRequest struct {
	AnalysisID     string         `json:"analysis_id"`
	SectionID      string         `json:"section_id"`
	SectionTitle   string         `json:"section_title"`
	Feedback       string         `json:"feedback"`
	FeedbackReason string         `json:"feedback_reason"`
	UserCorrection string         `json:"user_correction"`
	PromptVersion  int            `json:"prompt_version"`
	Metadata       map[string]any `json:"metadata"`
}

var feedbackRequired = []string{"analysis_id", "section_id", "section_title", "feedback"}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeWithRequired(w, r, feedbackRequired)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Feedback != model.FeedbackUp && req.Feedback != model.FeedbackDown {
		writeError(w, http.StatusBadRequest, "feedback must be 'up' or 'down'")
		return
	}

	created, err := s.store.SaveFeedback(r.Context(), &model.Feedback{
		AnalysisID:     req.AnalysisID,
		SectionID:      req.SectionID,
		SectionTitle:   req.SectionTitle,
		Feedback:       req.Feedback,
		FeedbackReason: req.FeedbackReason,
		UserCorrection: req.UserCorrection,
		PromptVersion:  req.PromptVersion,
		Metadata:       req.Metadata,
	})
	if err != nil {
		zap.L().Error("server: save feedback",
			zap.String("analysis_id", req.AnalysisID),
			zap.String("section_id", req.SectionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to save feedback")
		return
	}
	if !created {
		zap.L().Debug("server: duplicate feedback ignored",
			zap.String("analysis_id", req.AnalysisID),
			zap.String("section_id", req.SectionID),
		)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearchAnalyses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SearchFilter{
		Query:        strings.TrimSpace(q.Get("q")),
		AnalysisType: strings.TrimSpace(q.Get("model")),
		DateFrom:     strings.TrimSpace(q.Get("date_from")),
		DateTo:       strings.TrimSpace(q.Get("date_to")),
	}
	grouped := !strings.EqualFold(q.Get("grouped"), "false")

	analyses, err := s.store.SearchAnalyses(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: search analyses", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	if grouped {
		groups := store.GroupByDeal(analyses)
		if groups == nil {
			groups = []model.DealGroup{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"grouped": true, "deals": groups})
		return
	}

	if analyses == nil {
		analyses = []model.Analysis{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"grouped": false, "analyses": analyses})
}

func (s *Server) handleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.FeedbackStats(r.Context())
	if err != nil {
		zap.L().Error("server: feedback stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute feedback stats")
		return
	}
	if stats == nil {
		stats = []model.FeedbackStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// decodeWithRequired reads the request body and rejects it when any of the
// required top-level keys is absent. Presence is what matters: an explicit
// empty string still counts as provided.
func decodeWithRequired(w http.ResponseWriter, r *http.Request, required []string) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	for _, f := range required {
		if _, ok := fields[f]; !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Missing required field: %s", f))
			return nil, false
		}
	}
	return body, true
}
