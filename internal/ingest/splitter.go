package ingest

import "strings"

// Section is one heading-delimited fragment of a markdown document.
type Section struct {
	Heading string
	Content string
}

// SplitMarkdown splits a document into sections at second-level ("## ")
// headings. Text before the first heading becomes a section with an empty
// heading. Deeper headings stay inside their parent section. Sections
// with no body text are dropped.
func SplitMarkdown(text string) []Section {
	var sections []Section
	var heading string
	var body strings.Builder

	flush := func() {
		content := strings.TrimSpace(body.String())
		body.Reset()
		if content == "" {
			return
		}
		sections = append(sections, Section{Heading: heading, Content: content})
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") && !strings.HasPrefix(trimmed, "###") {
			flush()
			heading = strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}
