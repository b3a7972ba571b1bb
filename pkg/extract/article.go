package extract

import (
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// renderArticle isolates the main article with readability. When extraction
// fails the full page is stripped to plain text instead, so the caller always
// gets content back.
func (e *Extractor) renderArticle(rawHTML string, pageURL *url.URL) (title, content string) {
	article, err := readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		e.logger.Warnf("Readability extraction failed, falling back to plain text: %v", err)
		return "", renderText(rawHTML)
	}

	content = normalizeText(article.TextContent)
	if article.Byline != "" {
		content = "By " + article.Byline + "\n\n" + content
	}
	return article.Title, content
}
