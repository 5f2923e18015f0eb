package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/HqOapp/hubspot-deal-analysis-extension/pkg/anthropic"
)

// Analyzer runs Claude analysis over formatted deal content. The deal
// document is opaque text in, analysis text out.
type Analyzer struct {
	ai        anthropic.Client
	model     string
	maxTokens int64
}

// NewAnalyzer creates an Analyzer using the given model and token budget.
func NewAnalyzer(ai anthropic.Client, model string, maxTokens int64) *Analyzer {
	return &Analyzer{ai: ai, model: model, maxTokens: maxTokens}
}

// Analyze sends the formatted deal document to Claude under the analysis
// type's system prompt and returns the response text.
func (a *Analyzer) Analyze(ctx context.Context, dealContent, systemPrompt string) (string, error) {
	resp, err := a.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: "Analyze the following HubSpot deal:\n\n" + dealContent},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "analysis: claude request")
	}

	text := resp.Text()
	if text == "" {
		return "", eris.New("analysis: empty response from claude")
	}

	resp.Usage.LogCost(a.model, "deal_analysis")
	zap.L().Debug("analysis: response received",
		zap.String("model", resp.Model),
		zap.String("stop_reason", resp.StopReason),
		zap.Int("response_chars", len(text)),
	)
	return text, nil
}

// GenerateAnalysisID builds the analysis record identifier, unique per
// (deal, analysis type, second).
func GenerateAnalysisID(dealID, analysisType string) string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05")
	return fmt.Sprintf("deal_%s_%s_%s", dealID, analysisType, ts)
}
