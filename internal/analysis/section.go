// Package analysis runs LLM analysis over a formatted deal document and
// splits the markdown response into feedback-addressable sections.
package analysis

import (
	"fmt"
	"strings"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
)

// ParseSections splits a markdown response into sections delimited by h2
// headers. Section IDs are positional ("section_1", "section_2", ...); text
// before the first h2 belongs to no section and is dropped.
func ParseSections(markdown string) []model.Section {
	var sections []model.Section
	var current *model.Section
	var content []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(content, "\n"))
		sections = append(sections, *current)
	}

	counter := 0
	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			counter++
			current = &model.Section{
				SectionID:    fmt.Sprintf("section_%d", counter),
				SectionTitle: strings.TrimSpace(line[3:]),
			}
			content = content[:0]
			continue
		}
		if current != nil {
			content = append(content, line)
		}
	}
	flush()

	return sections
}

// CountSections returns the number of h2 headers in a markdown response.
// Used by feedback accuracy stats without materializing section content.
func CountSections(markdown string) int {
	count := 0
	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(line, "## ") {
			count++
		}
	}
	return count
}
