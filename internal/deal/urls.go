package deal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
)

// urlRe matches http(s) URLs up to the first whitespace, angle bracket, or
// quote. Trailing sentence punctuation is trimmed from each match.
var urlRe = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractURLs returns the unique URLs in content, in first-seen order.
func ExtractURLs(content string) []string {
	if content == "" {
		return nil
	}

	seen := make(map[string]bool)
	var urls []string
	for _, m := range urlRe.FindAllString(content, -1) {
		u := strings.TrimRight(m, ".,;:")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// URLBucket classifies a URL by domain heuristic.
type URLBucket int

const (
	BucketDocument URLBucket = iota
	BucketHubSpot
	BucketOther
)

// documentHosts are substrings identifying shared-document providers.
// Checked before the hubspot bucket; first match wins.
var documentHosts = []string{
	"docs.google", "drive.google", "notion.so", "dropbox", "sharepoint", "onedrive",
}

// ClassifyURL buckets a URL by substring match against its lowercased form.
func ClassifyURL(url string) URLBucket {
	lower := strings.ToLower(url)
	for _, host := range documentHosts {
		if strings.Contains(lower, host) {
			return BucketDocument
		}
	}
	if strings.Contains(lower, "hubspot") {
		return BucketHubSpot
	}
	return BucketOther
}

// URLIndex maps each unique URL found across a deal's engagements to the
// human-readable contexts it appeared in, preserving engagement processing
// order for both URLs and contexts.
type URLIndex struct {
	order    []string
	contexts map[string][]string
}

// NewURLIndex returns an empty index.
func NewURLIndex() *URLIndex {
	return &URLIndex{contexts: make(map[string][]string)}
}

// Add records one occurrence of url under the given context string.
func (x *URLIndex) Add(url, context string) {
	if _, ok := x.contexts[url]; !ok {
		x.order = append(x.order, url)
	}
	x.contexts[url] = append(x.contexts[url], context)
}

// Len returns the number of unique URLs.
func (x *URLIndex) Len() int {
	return len(x.order)
}

// URLs returns the unique URLs in insertion order.
func (x *URLIndex) URLs() []string {
	return x.order
}

// Contexts returns the contexts recorded for url, in insertion order.
func (x *URLIndex) Contexts(url string) []string {
	return x.contexts[url]
}

// CollectURLs scans all engagements and builds the URL index. The context
// string identifies where each occurrence was found, e.g.
// "Email: Renewal terms (2026-01-12 15:14)".
func CollectURLs(engagements []model.Engagement) *URLIndex {
	index := NewURLIndex()

	for _, eng := range engagements {
		ts := FormatTimestamp(eng.Timestamp)

		var content, context string
		switch eng.Type {
		case model.EngagementEmail:
			content = eng.Email.Text
			if content == "" {
				content = eng.Email.HTML
			}
			subject := eng.Email.Subject
			if subject == "" {
				subject = "(No subject)"
			}
			context = fmt.Sprintf("Email: %s (%s)", subject, ts)
		case model.EngagementNote:
			content = eng.Note.Body
			context = fmt.Sprintf("Note (%s)", ts)
		case model.EngagementCall:
			content = eng.Call.Body
			title := eng.Call.Title
			if title == "" {
				title = "Call"
			}
			context = fmt.Sprintf("Call: %s (%s)", title, ts)
		case model.EngagementMeeting:
			content = eng.Meeting.Body
			title := eng.Meeting.Title
			if title == "" {
				title = "Meeting"
			}
			context = fmt.Sprintf("Meeting: %s (%s)", title, ts)
		case model.EngagementTask:
			content = eng.Task.Body
			subject := eng.Task.Subject
			if subject == "" {
				subject = "Task"
			}
			context = fmt.Sprintf("Task: %s (%s)", subject, ts)
		}

		for _, u := range ExtractURLs(content) {
			index.Add(u, context)
		}
	}

	return index
}
