package deal

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
	"github.com/HqOapp/hubspot-deal-analysis-extension/pkg/hubspot"
)

// Requested property sets are fixed per entity type.
var (
	dealProperties = []string{
		"dealname", "amount", "dealstage", "pipeline", "closedate", "createdate",
		"hubspot_owner_id", "description", "hs_lastmodifieddate",
	}

	contactProperties = []string{"firstname", "lastname", "email", "phone", "company"}

	companyProperties = []string{"name", "domain", "industry"}

	engagementProperties = map[model.EngagementType][]string{
		model.EngagementEmail: {
			"hs_email_subject", "hs_email_text", "hs_email_html", "hs_timestamp",
			"hs_email_direction", "hs_email_from_email", "hs_email_to_email",
			"hs_email_from_firstname", "hs_email_from_lastname",
		},
		model.EngagementNote: {
			"hs_note_body", "hs_timestamp", "hubspot_owner_id", "hs_body_preview",
		},
		model.EngagementCall: {
			"hs_call_body", "hs_call_title", "hs_timestamp", "hs_call_duration",
			"hs_call_direction", "hs_call_status", "hs_call_from_number",
			"hs_call_to_number", "hs_call_recording_url",
		},
		model.EngagementMeeting: {
			"hs_meeting_title", "hs_meeting_body", "hs_timestamp",
			"hs_meeting_start_time", "hs_meeting_end_time", "hs_meeting_outcome",
		},
		model.EngagementTask: {
			"hs_task_subject", "hs_task_body", "hs_timestamp",
			"hs_task_status", "hs_task_priority",
		},
	}
)

// Fetcher retrieves a deal and its associated records from the CRM.
// All fetches are single-attempt: a failed page or batch fails the run.
type Fetcher struct {
	crm hubspot.Client
}

// NewFetcher creates a Fetcher over the given CRM client.
func NewFetcher(crm hubspot.Client) *Fetcher {
	return &Fetcher{crm: crm}
}

// Deal fetches the deal record. An unresolvable deal ID is a fatal error.
func (f *Fetcher) Deal(ctx context.Context, dealID string) (model.Deal, error) {
	rec, err := f.crm.GetRecord(ctx, "deals", dealID, dealProperties)
	if err != nil {
		if hubspot.IsNotFound(err) {
			return model.Deal{}, eris.Wrapf(err, "deal: deal %s not found", dealID)
		}
		return model.Deal{}, eris.Wrapf(err, "deal: fetch deal %s", dealID)
	}
	return dealFromRecord(*rec), nil
}

// Contacts fetches the contacts associated with a deal.
func (f *Fetcher) Contacts(ctx context.Context, dealID string) ([]model.Contact, error) {
	records, err := f.fetchAssociated(ctx, dealID, "contacts", contactProperties)
	if err != nil {
		return nil, err
	}

	contacts := make([]model.Contact, len(records))
	for i, rec := range records {
		contacts[i] = contactFromRecord(rec)
	}
	return contacts, nil
}

// Companies fetches the companies associated with a deal.
func (f *Fetcher) Companies(ctx context.Context, dealID string) ([]model.Company, error) {
	records, err := f.fetchAssociated(ctx, dealID, "companies", companyProperties)
	if err != nil {
		return nil, err
	}

	companies := make([]model.Company, len(records))
	for i, rec := range records {
		companies[i] = companyFromRecord(rec)
	}
	return companies, nil
}

// Engagements fetches all engagement records for a deal across the five
// engagement types, in fixed type order. The result is type-grouped, not
// chronological; the formatter owns chronological ordering.
func (f *Fetcher) Engagements(ctx context.Context, dealID string) ([]model.Engagement, error) {
	var all []model.Engagement
	for _, engType := range model.EngagementTypes {
		records, err := f.fetchAssociated(ctx, dealID, string(engType), engagementProperties[engType])
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			all = append(all, engagementFromRecord(engType, rec))
		}
		zap.L().Debug("deal: fetched engagements",
			zap.String("deal_id", dealID),
			zap.String("type", string(engType)),
			zap.Int("count", len(records)),
		)
	}
	return all, nil
}

// fetchAssociated lists a deal's associations to one object type and batch
// resolves the linked records. An empty association list short-circuits
// without a batch call.
func (f *Fetcher) fetchAssociated(ctx context.Context, dealID, objectType string, properties []string) ([]hubspot.Record, error) {
	assocs, err := f.crm.ListAssociations(ctx, dealID, objectType)
	if err != nil {
		return nil, eris.Wrapf(err, "deal: list %s associations", objectType)
	}

	ids := make([]string, 0, len(assocs))
	for _, a := range assocs {
		if a.ToObjectID != 0 {
			ids = append(ids, a.ToObjectIDString())
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	records, err := f.crm.BatchRead(ctx, objectType, ids, properties)
	if err != nil {
		return nil, eris.Wrapf(err, "deal: batch read %s", objectType)
	}
	return records, nil
}

func dealFromRecord(rec hubspot.Record) model.Deal {
	return model.Deal{
		ID:           rec.ID,
		Name:         rec.Property("dealname"),
		Amount:       rec.Property("amount"),
		Stage:        rec.Property("dealstage"),
		Pipeline:     rec.Property("pipeline"),
		CreateDate:   rec.Property("createdate"),
		CloseDate:    rec.Property("closedate"),
		OwnerID:      rec.Property("hubspot_owner_id"),
		Description:  rec.Property("description"),
		LastModified: rec.Property("hs_lastmodifieddate"),
	}
}

func contactFromRecord(rec hubspot.Record) model.Contact {
	return model.Contact{
		ID:        rec.ID,
		FirstName: rec.Property("firstname"),
		LastName:  rec.Property("lastname"),
		Email:     rec.Property("email"),
		Phone:     rec.Property("phone"),
		Company:   rec.Property("company"),
	}
}

func companyFromRecord(rec hubspot.Record) model.Company {
	return model.Company{
		ID:       rec.ID,
		Name:     rec.Property("name"),
		Domain:   rec.Property("domain"),
		Industry: rec.Property("industry"),
	}
}

// engagementFromRecord decodes a raw CRM record into the tagged engagement
// variant for its type. Exactly one variant field is populated.
func engagementFromRecord(engType model.EngagementType, rec hubspot.Record) model.Engagement {
	eng := model.Engagement{
		ID:        rec.ID,
		Type:      engType,
		Timestamp: rec.Property("hs_timestamp"),
	}

	switch engType {
	case model.EngagementEmail:
		eng.Email = &model.EmailEngagement{
			Subject:       rec.Property("hs_email_subject"),
			Text:          rec.Property("hs_email_text"),
			HTML:          rec.Property("hs_email_html"),
			Direction:     rec.Property("hs_email_direction"),
			FromEmail:     rec.Property("hs_email_from_email"),
			ToEmail:       rec.Property("hs_email_to_email"),
			FromFirstName: rec.Property("hs_email_from_firstname"),
			FromLastName:  rec.Property("hs_email_from_lastname"),
		}
	case model.EngagementNote:
		eng.Note = &model.NoteEngagement{
			Body:        rec.Property("hs_note_body"),
			BodyPreview: rec.Property("hs_body_preview"),
			OwnerID:     rec.Property("hubspot_owner_id"),
		}
	case model.EngagementCall:
		eng.Call = &model.CallEngagement{
			Title:        rec.Property("hs_call_title"),
			Body:         rec.Property("hs_call_body"),
			Duration:     rec.Property("hs_call_duration"),
			Direction:    rec.Property("hs_call_direction"),
			Status:       rec.Property("hs_call_status"),
			FromNumber:   rec.Property("hs_call_from_number"),
			ToNumber:     rec.Property("hs_call_to_number"),
			RecordingURL: rec.Property("hs_call_recording_url"),
		}
	case model.EngagementMeeting:
		eng.Meeting = &model.MeetingEngagement{
			Title:     rec.Property("hs_meeting_title"),
			Body:      rec.Property("hs_meeting_body"),
			StartTime: rec.Property("hs_meeting_start_time"),
			EndTime:   rec.Property("hs_meeting_end_time"),
			Outcome:   rec.Property("hs_meeting_outcome"),
		}
	case model.EngagementTask:
		eng.Task = &model.TaskEngagement{
			Subject:  rec.Property("hs_task_subject"),
			Body:     rec.Property("hs_task_body"),
			Status:   rec.Property("hs_task_status"),
			Priority: rec.Property("hs_task_priority"),
		}
	}
	return eng
}
