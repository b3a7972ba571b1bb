package extract

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// strictPolicy strips every tag, leaving text content only. Policies are
// safe for concurrent use, so one shared instance is enough.
var strictPolicy = bluemonday.StrictPolicy()

// renderText strips all markup and normalizes the remaining text: entities
// decoded, intra-line whitespace collapsed, blank-line runs reduced to
// paragraph breaks.
func renderText(rawHTML string) string {
	stripped := strictPolicy.Sanitize(rawHTML)
	return normalizeText(html.UnescapeString(stripped))
}

// normalizeText collapses whitespace line by line while keeping paragraph
// structure readable.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")

	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
				blank = true
			}
			continue
		}
		out = append(out, line)
		blank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
