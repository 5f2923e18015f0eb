package deal

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
)

const (
	unknownDeal  = "Unknown Deal"
	notAvailable = "N/A"
)

// Render composes the deal analysis document: header, contacts, companies,
// the chronologically sorted activity timeline, and the classified URL index.
// Pure function of its inputs; sections with no data are omitted entirely.
func Render(d model.Deal, contacts []model.Contact, companies []model.Company, engagements []model.Engagement, urls *URLIndex) string {
	var lines []string

	name := d.Name
	if name == "" {
		name = unknownDeal
	}
	lines = append(lines,
		"# Deal: "+name,
		"\n**Amount:** "+orNA(d.Amount),
		"**Stage:** "+orNA(d.Stage),
		"**Created:** "+orNA(d.CreateDate),
		"**Close Date:** "+orNA(d.CloseDate),
	)
	if d.Description != "" {
		lines = append(lines, "**Description:** "+d.Description)
	}
	lines = append(lines, "")

	if len(contacts) > 0 {
		lines = append(lines, "## Associated Contacts")
		for _, c := range contacts {
			lines = append(lines, contactBullet(c))
		}
		lines = append(lines, "")
	}

	if len(companies) > 0 {
		lines = append(lines, "## Associated Companies")
		for _, c := range companies {
			lines = append(lines, companyBullet(c))
		}
		lines = append(lines, "")
	}

	// Stable sort: equal sort values (including the zero fallback) keep the
	// aggregator's type-grouped order.
	sorted := make([]model.Engagement, len(engagements))
	copy(sorted, engagements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return SortValue(sorted[i].Timestamp) < SortValue(sorted[j].Timestamp)
	})

	lines = append(lines,
		"## Activity Timeline (Chronological)",
		fmt.Sprintf("*%d total activities*\n", len(sorted)),
	)
	for _, eng := range sorted {
		lines = append(lines, renderEngagement(eng)...)
	}

	if urls != nil && urls.Len() > 0 {
		lines = append(lines, renderURLIndex(urls)...)
	}

	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func contactBullet(c model.Contact) string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		name = "Unknown"
	}
	email := c.Email
	if email == "" {
		email = notAvailable
	}
	bullet := fmt.Sprintf("- %s (%s)", name, email)
	if c.Company != "" {
		bullet += " - " + c.Company
	}
	return bullet
}

func companyBullet(c model.Company) string {
	name := c.Name
	if name == "" {
		name = "Unknown"
	}
	bullet := "- **" + name + "**"
	if c.Domain != "" {
		bullet += " (" + c.Domain + ")"
	}
	if c.Industry != "" {
		bullet += " - " + c.Industry
	}
	return bullet
}

// renderEngagement renders one timeline entry per its type-specific template,
// dispatching on the engagement tag.
func renderEngagement(eng model.Engagement) []string {
	ts := FormatTimestamp(eng.Timestamp)

	var lines []string
	switch eng.Type {
	case model.EngagementEmail:
		e := eng.Email
		subject := e.Subject
		if subject == "" {
			subject = "(No subject)"
		}
		// OUTBOUND only on the logged-email sentinel; every other direction
		// value renders as INBOUND.
		dirLabel := "INBOUND"
		if e.Direction == "EMAIL" {
			dirLabel = "OUTBOUND"
		}
		body := Sanitize(e.Text, true)
		if body == "" {
			body = Sanitize(e.HTML, true)
		}
		lines = append(lines,
			fmt.Sprintf("### [%s] EMAIL (%s)", ts, dirLabel),
			"**Subject:** "+subject,
			fmt.Sprintf("**From:** %s -> **To:** %s", e.FromEmail, e.ToEmail),
			"\n"+body+"\n",
		)

	case model.EngagementNote:
		n := eng.Note
		body := Sanitize(n.Body, true)
		if body == "" {
			body = n.BodyPreview
		}
		lines = append(lines,
			fmt.Sprintf("### [%s] NOTE", ts),
			"\n"+body+"\n",
		)

	case model.EngagementCall:
		c := eng.Call
		title := c.Title
		if title == "" {
			title = "Call"
		}
		lines = append(lines, fmt.Sprintf("### [%s] CALL: %s%s", ts, title, callDuration(c.Duration)))
		// Call bodies arrive as plain text already; rendered as-is.
		if c.Body != "" {
			lines = append(lines, "\n"+c.Body+"\n")
		}

	case model.EngagementMeeting:
		m := eng.Meeting
		title := m.Title
		if title == "" {
			title = "Meeting"
		}
		lines = append(lines, fmt.Sprintf("### [%s] MEETING: %s", ts, title))
		if m.Outcome != "" {
			lines = append(lines, "**Outcome:** "+m.Outcome)
		}
		if m.Body != "" {
			lines = append(lines, "\n"+Sanitize(m.Body, true)+"\n")
		}

	case model.EngagementTask:
		t := eng.Task
		subject := t.Subject
		if subject == "" {
			subject = "Task"
		}
		lines = append(lines, fmt.Sprintf("### [%s] TASK: %s [%s]", ts, subject, t.Status))
		if t.Body != "" {
			lines = append(lines, "\n"+Sanitize(t.Body, true)+"\n")
		}
	}

	return append(lines, "---")
}

// callDuration renders a numeric seconds value as " (Xm Ys)"; non-numeric or
// missing durations render nothing.
func callDuration(raw string) string {
	if raw == "" {
		return ""
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return ""
	}
	total := int(secs)
	return fmt.Sprintf(" (%dm %ds)", total/60, total%60)
}

// maxOtherLinks caps the "Other Links" subsection.
const maxOtherLinks = 20

func renderURLIndex(urls *URLIndex) []string {
	lines := []string{
		"\n## Linked Documents & URLs",
		fmt.Sprintf("*%d unique URLs found in deal activities*\n", urls.Len()),
	}

	var docURLs, hubspotURLs, otherURLs []string
	for _, u := range urls.URLs() {
		switch ClassifyURL(u) {
		case BucketDocument:
			docURLs = append(docURLs, u)
		case BucketHubSpot:
			hubspotURLs = append(hubspotURLs, u)
		default:
			otherURLs = append(otherURLs, u)
		}
	}

	if len(docURLs) > 0 {
		lines = append(lines, "### Meeting Notes & Documents")
		for _, u := range docURLs {
			contexts := urls.Contexts(u)
			ctxStr := strings.Join(contexts[:min(len(contexts), 3)], ", ")
			if len(contexts) > 3 {
				ctxStr += "..."
			}
			lines = append(lines, "- "+u, "  *Found in: "+ctxStr+"*")
		}
	}

	if len(hubspotURLs) > 0 {
		lines = append(lines, "\n### HubSpot Links")
		for _, u := range hubspotURLs {
			lines = append(lines, "- "+u)
		}
	}

	if len(otherURLs) > 0 {
		lines = append(lines, "\n### Other Links")
		for _, u := range otherURLs[:min(len(otherURLs), maxOtherLinks)] {
			lines = append(lines, "- "+u)
		}
		if len(otherURLs) > maxOtherLinks {
			lines = append(lines, fmt.Sprintf("*... and %d more*", len(otherURLs)-maxOtherLinks))
		}
	}

	return append(lines, "")
}
