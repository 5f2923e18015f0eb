package model

// Deal is the central CRM opportunity record, snapshotted once per pipeline run.
type Deal struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Amount       string `json:"amount,omitempty"`
	Stage        string `json:"stage,omitempty"`
	Pipeline     string `json:"pipeline,omitempty"`
	CreateDate   string `json:"create_date,omitempty"`
	CloseDate    string `json:"close_date,omitempty"`
	OwnerID      string `json:"owner_id,omitempty"`
	Description  string `json:"description,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// Contact is a read-only projection of a CRM contact record.
type Contact struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
}

// Company is a read-only projection of a CRM company record.
type Company struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// EngagementType tags an engagement record with its CRM object type.
type EngagementType string

const (
	EngagementEmail   EngagementType = "emails"
	EngagementNote    EngagementType = "notes"
	EngagementCall    EngagementType = "calls"
	EngagementMeeting EngagementType = "meetings"
	EngagementTask    EngagementType = "tasks"
)

// EngagementTypes lists the engagement object types in fetch order.
// The aggregator iterates these in order; the timeline re-sorts by timestamp
// with this grouping as the stable tie-break.
var EngagementTypes = []EngagementType{
	EngagementEmail,
	EngagementNote,
	EngagementCall,
	EngagementMeeting,
	EngagementTask,
}

// Engagement is a deal interaction record. Exactly one of the variant fields
// matching Type is non-nil; formatters dispatch on Type, never on field
// presence. Timestamp holds the raw hs_timestamp value used for ordering.
type Engagement struct {
	ID        string         `json:"id"`
	Type      EngagementType `json:"type"`
	Timestamp string         `json:"timestamp,omitempty"`

	Email   *EmailEngagement   `json:"email,omitempty"`
	Note    *NoteEngagement    `json:"note,omitempty"`
	Call    *CallEngagement    `json:"call,omitempty"`
	Meeting *MeetingEngagement `json:"meeting,omitempty"`
	Task    *TaskEngagement    `json:"task,omitempty"`
}

// EmailEngagement holds the email-specific properties.
type EmailEngagement struct {
	Subject       string `json:"subject,omitempty"`
	Text          string `json:"text,omitempty"`
	HTML          string `json:"html,omitempty"`
	Direction     string `json:"direction,omitempty"`
	FromEmail     string `json:"from_email,omitempty"`
	ToEmail       string `json:"to_email,omitempty"`
	FromFirstName string `json:"from_first_name,omitempty"`
	FromLastName  string `json:"from_last_name,omitempty"`
}

// NoteEngagement holds the note-specific properties.
type NoteEngagement struct {
	Body        string `json:"body,omitempty"`
	BodyPreview string `json:"body_preview,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
}

// CallEngagement holds the call-specific properties.
type CallEngagement struct {
	Title        string `json:"title,omitempty"`
	Body         string `json:"body,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Direction    string `json:"direction,omitempty"`
	Status       string `json:"status,omitempty"`
	FromNumber   string `json:"from_number,omitempty"`
	ToNumber     string `json:"to_number,omitempty"`
	RecordingURL string `json:"recording_url,omitempty"`
}

// MeetingEngagement holds the meeting-specific properties.
type MeetingEngagement struct {
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}

// TaskEngagement holds the task-specific properties.
type TaskEngagement struct {
	Subject  string `json:"subject,omitempty"`
	Body     string `json:"body,omitempty"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// DealData is the aggregate result of one pipeline run: the raw records plus
// the formatted document handed to the analyzer.
type DealData struct {
	Deal             Deal         `json:"deal"`
	DealName         string       `json:"deal_name"`
	Contacts         []Contact    `json:"contacts"`
	Companies        []Company    `json:"companies"`
	Engagements      []Engagement `json:"engagements"`
	FormattedContent string       `json:"formatted_content"`
}
