// Package deal implements the deal-data aggregation and document-formatting
// pipeline: fetching a deal and its related records from the CRM, normalizing
// engagements into a chronological timeline, and rendering a single analysis
// document.
package deal

import (
	"html"
	"regexp"
	"strings"
)

// Sanitization patterns, applied in a fixed order: markup is stripped and
// entities decoded first so the line-level removals see plain text.
var (
	tagRe          = regexp.MustCompile(`<[^>]+>`)
	bracketedURLRe = regexp.MustCompile(`<(https?://[^>]+)>`)
	bareURLRe      = regexp.MustCompile(`https?://\S+`)

	// Signature-line heuristics: a line that is entirely an email address or
	// entirely a US phone number. Not general PII scrubbing.
	emailLineRe = regexp.MustCompile(`(?m)^[ \t]*[\w.-]+@[\w.-]+\.\w+[ \t]*$`)
	phoneLineRe = regexp.MustCompile(`(?m)^[ \t]*\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}[ \t]*$`)

	// Quoted-reply marker ("On Mon, Jan 5, 2026 at 3:14 PM ... wrote:") and
	// everything after it.
	quotedReplyRe = regexp.MustCompile(`(?s)On\s+\w{3},\s+\w{3}\s+\d{1,2},\s+\d{4}\s+at\s+[\d:]+\s*[AP]M.*?wrote:.*`)
	quoteLineRe   = regexp.MustCompile(`(?m)^[ \t]*>.*$`)

	headerLineRe = regexp.MustCompile(`(?m)^[ \t]*\*?(From|Sent|To|Cc|Subject|Date):\*?[ \t]*.*$`)

	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe     = regexp.MustCompile(`[ \t]+`)
	blankLineRe    = regexp.MustCompile(`\n\s*\n`)
)

// Sanitize strips markup tags and email boilerplate from freeform engagement
// content. When preserveLinkURLs is true, bracketed URLs are unwrapped and
// bare URLs kept; otherwise both are removed entirely.
func Sanitize(raw string, preserveLinkURLs bool) string {
	if raw == "" {
		return ""
	}

	clean := tagRe.ReplaceAllString(raw, " ")
	clean = html.UnescapeString(clean)

	if preserveLinkURLs {
		clean = bracketedURLRe.ReplaceAllString(clean, "$1")
	} else {
		clean = bracketedURLRe.ReplaceAllString(clean, "")
		clean = bareURLRe.ReplaceAllString(clean, "")
	}

	clean = emailLineRe.ReplaceAllString(clean, "")
	clean = phoneLineRe.ReplaceAllString(clean, "")
	clean = quotedReplyRe.ReplaceAllString(clean, "")
	clean = quoteLineRe.ReplaceAllString(clean, "")
	clean = headerLineRe.ReplaceAllString(clean, "")

	clean = multiNewlineRe.ReplaceAllString(clean, "\n\n")
	clean = spaceRunRe.ReplaceAllString(clean, " ")
	clean = blankLineRe.ReplaceAllString(clean, "\n\n")

	return strings.TrimSpace(clean)
}
