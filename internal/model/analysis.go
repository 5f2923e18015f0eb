package model

import "time"

// AnalysisType is a catalog entry describing one kind of deal analysis and
// the system prompt that drives it.
type AnalysisType struct {
	TypeID       string         `json:"type_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	SystemPrompt string         `json:"system_prompt"`
	IsActive     bool           `json:"is_active"`
	Version      int            `json:"version"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Analysis is one persisted analysis run. Records are append-only: written
// once, never updated in place.
type Analysis struct {
	AnalysisID    string         `json:"analysis_id"`
	DealID        string         `json:"deal_id"`
	DealName      string         `json:"deal_name"`
	AnalysisType  string         `json:"analysis_type"`
	TypeName      string         `json:"type_name,omitempty"`
	UserInput     string         `json:"user_input"`
	SystemPrompt  string         `json:"system_prompt"`
	FullResponse  string         `json:"full_response"`
	PromptVersion int            `json:"prompt_version"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Feedback values accepted for a section.
const (
	FeedbackUp   = "up"
	FeedbackDown = "down"
)

// Feedback is a per-section rating of an analysis. At most one record exists
// per (analysis_id, section_id); later submissions for the same key are
// silently ignored.
type Feedback struct {
	AnalysisID     string         `json:"analysis_id"`
	SectionID      string         `json:"section_id"`
	SectionTitle   string         `json:"section_title"`
	Feedback       string         `json:"feedback"`
	FeedbackReason string         `json:"feedback_reason,omitempty"`
	UserCorrection string         `json:"user_correction,omitempty"`
	PromptVersion  int            `json:"prompt_version"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Section is an h2-delimited unit of an analysis response, the target of
// per-section feedback.
type Section struct {
	SectionID    string `json:"section_id"`
	SectionTitle string `json:"section_title"`
	Content      string `json:"content"`
}

// FeedbackStat aggregates feedback accuracy for one analysis type.
// Accuracy treats unresponded sections as good: (total - negative) / total.
type FeedbackStat struct {
	TypeID           string `json:"type_id"`
	Name             string `json:"name"`
	TotalSections    int    `json:"total_sections"`
	NegativeFeedback int    `json:"negative_feedback"`
	AnalysisCount    int    `json:"analysis_count"`
	Accuracy         int    `json:"accuracy"`
}

// DealGroup is a search result grouping: all analyses for one deal, newest
// first, keyed by the deal's most recent analysis time.
type DealGroup struct {
	DealID          string     `json:"deal_id"`
	DealName        string     `json:"deal_name"`
	Analyses        []Analysis `json:"analyses"`
	LatestCreatedAt time.Time  `json:"latest_created_at"`
}
