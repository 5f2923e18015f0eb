// Package server exposes the deal-analysis API over HTTP. Handlers only
// validate, marshal, and dispatch to the pipeline, analyzer, and store.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/analysis"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/deal"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/store"
)

// Server wires the HTTP boundary to the core collaborators.
type Server struct {
	store    store.Store
	pipeline *deal.Pipeline
	analyzer *analysis.Analyzer
}

// New creates a Server. The pipeline and analyzer may be nil when the
// process runs store-only (e.g. feedback ingestion without CRM access);
// the deal routes then return 503.
func New(st store.Store, pl *deal.Pipeline, an *analysis.Analyzer) *Server {
	return &Server{store: st, pipeline: pl, analyzer: an}
}

// Router builds the chi router with all API routes mounted under /api.
// CORS allows any origin: the primary caller is a browser extension whose
// origin is not a fixed host.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/analysis-types", s.handleListAnalysisTypes)
		r.Get("/analysis-types/{typeID}", s.handleGetAnalysisType)
		r.Get("/deals/{dealID}", s.handleGetDeal)
		r.Post("/deals/{dealID}/analyze", s.handleAnalyzeDeal)
		r.Post("/analyses", s.handleCreateAnalysis)
		r.Get("/analyses/search", s.handleSearchAnalyses)
		r.Post("/feedback", s.handleSubmitFeedback)
		r.Get("/feedback-stats", s.handleFeedbackStats)
	})

	return r
}

// ListenAndServe runs the server on the given port until ctx is canceled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("server: listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
