package deal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
)

func TestExtractURLs(t *testing.T) {
	t.Parallel()

	t.Run("empty content", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, ExtractURLs(""))
		assert.Nil(t, ExtractURLs("no links here"))
	})

	t.Run("trims trailing punctuation", func(t *testing.T) {
		t.Parallel()
		urls := ExtractURLs("see https://example.com/doc. and https://example.com/x,")
		assert.Equal(t, []string{"https://example.com/doc", "https://example.com/x"}, urls)
	})

	t.Run("dedup preserves first-seen order", func(t *testing.T) {
		t.Parallel()
		urls := ExtractURLs("https://b.com https://a.com https://b.com")
		assert.Equal(t, []string{"https://b.com", "https://a.com"}, urls)
	})

	t.Run("stops at quotes and angle brackets", func(t *testing.T) {
		t.Parallel()
		urls := ExtractURLs(`<a href="https://example.com/page">link</a>`)
		assert.Equal(t, []string{"https://example.com/page"}, urls)
	})
}

func TestClassifyURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want URLBucket
	}{
		{"https://docs.google.com/document/d/abc", BucketDocument},
		{"https://drive.google.com/file/d/xyz", BucketDocument},
		{"https://www.notion.so/team/notes", BucketDocument},
		{"https://www.dropbox.com/s/abc", BucketDocument},
		{"https://corp.sharepoint.com/sites/sales", BucketDocument},
		{"https://onedrive.live.com/view", BucketDocument},
		{"https://app.hubspot.com/contacts/123", BucketHubSpot},
		{"https://meetings.hubspot.com/jane", BucketHubSpot},
		{"https://example.com/pricing", BucketOther},
		// Document providers win over the hubspot substring.
		{"https://docs.google.com/d/hubspot-migration", BucketDocument},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyURL(tt.url), tt.url)
	}
}

func TestURLIndex(t *testing.T) {
	t.Parallel()

	idx := NewURLIndex()
	idx.Add("https://a.com", "Email: first (2026-01-01 10:00)")
	idx.Add("https://b.com", "Note (2026-01-02 11:00)")
	idx.Add("https://a.com", "Call: sync (2026-01-03 12:00)")

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, idx.URLs())
	assert.Equal(t, []string{
		"Email: first (2026-01-01 10:00)",
		"Call: sync (2026-01-03 12:00)",
	}, idx.Contexts("https://a.com"))
	assert.Nil(t, idx.Contexts("https://unknown.com"))
}

func TestCollectURLs(t *testing.T) {
	t.Parallel()

	engagements := []model.Engagement{
		{
			Type:      model.EngagementEmail,
			Timestamp: "1700000000000",
			Email: &model.EmailEngagement{
				Subject: "Renewal terms",
				Text:    "draft at https://docs.google.com/document/d/1",
			},
		},
		{
			Type:      model.EngagementEmail,
			Timestamp: "1700000001000",
			Email: &model.EmailEngagement{
				// No plain text: the HTML body is scanned instead.
				HTML: `<a href="https://example.com/contract">contract</a>`,
			},
		},
		{
			Type:      model.EngagementNote,
			Timestamp: "",
			Note:      &model.NoteEngagement{Body: "also https://docs.google.com/document/d/1"},
		},
		{
			Type: model.EngagementCall,
			Call: &model.CallEngagement{Body: "no links"},
		},
	}

	idx := CollectURLs(engagements)
	require.Equal(t, 2, idx.Len())

	ts := FormatTimestamp("1700000000000")
	contexts := idx.Contexts("https://docs.google.com/document/d/1")
	require.Len(t, contexts, 2)
	assert.Equal(t, "Email: Renewal terms ("+ts+")", contexts[0])
	assert.Equal(t, "Note (Unknown date)", contexts[1])

	contexts = idx.Contexts("https://example.com/contract")
	require.Len(t, contexts, 1)
	assert.Contains(t, contexts[0], "Email: (No subject)")
}
