package chunking

import (
	"regexp"
	"strings"
)

// Section is a run of text under a heading.
// The leading section of a document, before any heading, has an empty Header and Level 0.
type Section struct {
	Header  string
	Level   int
	Content string
}

var (
	atxHeading      = regexp.MustCompile(`^ {0,3}(#{1,6})[ \t]+(.*?)[ \t]*#*[ \t]*$`)
	setextUnderline = regexp.MustCompile(`^ {0,3}(=+|-{2,})[ \t]*$`)
	fenceMarker     = regexp.MustCompile("^ {0,3}(```|~~~)")
)

// SplitByHeaders segments text at markdown headings, in document order.
//
// Both ATX headings ("# Title" through "###### Title") and setext headings
// (a text line underlined with "===" or "---") are recognized. Headings inside
// fenced code blocks are ignored. If no heading is found the whole text is
// returned as a single headerless section.
func SplitByHeaders(text string) []Section {
	lines := strings.Split(text, "\n")

	var (
		sections []Section
		current  = Section{}
		body     []string
		inFence  bool
		found    bool
	)

	flush := func() {
		current.Content = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Header != "" || current.Content != "" {
			sections = append(sections, current)
		}
		body = body[:0]
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")

		if fenceMarker.MatchString(line) {
			inFence = !inFence
			body = append(body, line)
			continue
		}
		if inFence {
			body = append(body, line)
			continue
		}

		if m := atxHeading.FindStringSubmatch(line); m != nil && strings.TrimSpace(m[2]) != "" {
			flush()
			current = Section{Header: strings.TrimSpace(m[2]), Level: len(m[1])}
			found = true
			continue
		}

		if i+1 < len(lines) && strings.TrimSpace(line) != "" && !isListItem(line) {
			next := strings.TrimRight(lines[i+1], "\r")
			if m := setextUnderline.FindStringSubmatch(next); m != nil {
				level := 2
				if m[1][0] == '=' {
					level = 1
				}
				flush()
				current = Section{Header: strings.TrimSpace(line), Level: level}
				found = true
				i++
				continue
			}
		}

		body = append(body, line)
	}
	flush()

	if !found {
		return []Section{{Content: text}}
	}
	return sections
}

func isListItem(line string) bool {
	t := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") || strings.HasPrefix(t, "+ ")
}

// String renders the section back into markdown-ish text for embedding.
func (s Section) String() string {
	if s.Header == "" {
		return s.Content
	}
	if s.Content == "" {
		return strings.Repeat("#", max(s.Level, 1)) + " " + s.Header
	}
	return strings.Repeat("#", max(s.Level, 1)) + " " + s.Header + "\n\n" + s.Content
}
