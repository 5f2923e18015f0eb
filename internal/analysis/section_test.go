package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSections(t *testing.T) {
	t.Parallel()

	markdown := "Preamble before any header.\n" +
		"## Deal Overview\n" +
		"Strong renewal signal.\n" +
		"More detail.\n" +
		"## Risks\n" +
		"- Budget freeze\n"

	sections := ParseSections(markdown)
	require.Len(t, sections, 2)

	assert.Equal(t, "section_1", sections[0].SectionID)
	assert.Equal(t, "Deal Overview", sections[0].SectionTitle)
	assert.Equal(t, "Strong renewal signal.\nMore detail.", sections[0].Content)

	assert.Equal(t, "section_2", sections[1].SectionID)
	assert.Equal(t, "Risks", sections[1].SectionTitle)
	assert.Equal(t, "- Budget freeze", sections[1].Content)
}

func TestParseSections_NoHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ParseSections("just some prose\nwith no headers"))
	assert.Nil(t, ParseSections(""))
}

func TestParseSections_IgnoresDeeperHeaders(t *testing.T) {
	t.Parallel()

	sections := ParseSections("## Top\n### Nested\n# Title\ncontent")
	require.Len(t, sections, 1)
	assert.Equal(t, "Top", sections[0].SectionTitle)
	assert.Equal(t, "### Nested\n# Title\ncontent", sections[0].Content)
}

func TestParseSections_TrimsTitleWhitespace(t *testing.T) {
	t.Parallel()

	sections := ParseSections("##  Padded Title  \nbody")
	require.Len(t, sections, 1)
	assert.Equal(t, "Padded Title", sections[0].SectionTitle)
}

func TestCountSections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		markdown string
		want     int
	}{
		{"", 0},
		{"no headers here", 0},
		{"## One\ntext\n## Two\n### not counted\n## Three", 3},
		{"##No space is not a header", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountSections(tt.markdown), "markdown %q", tt.markdown)
	}
}
