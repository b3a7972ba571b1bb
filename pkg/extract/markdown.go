package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// renderMarkdown converts an HTML document into markdown-flavoured text,
// preserving headings, lists, links, emphasis, code blocks, and tables while
// dropping scripts, styles, and embedded media.
func renderMarkdown(rawHTML string, base *url.URL) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	w := &mdWalker{base: base}
	w.walkChildren(doc)
	return tidyMarkdown(w.b.String()), nil
}

// documentTitle returns the contents of the document's title element.
func documentTitle(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if title != "" {
				return
			}
		}
	}
	traverse(doc)
	return title
}

// mdWalker streams markdown into a builder while descending the node tree.
type mdWalker struct {
	b    strings.Builder
	base *url.URL

	// listStack holds the next ordinal per open list level; zero marks an
	// unordered list.
	listStack []int
}

// walk dispatches one node.
func (w *mdWalker) walk(n *html.Node) {
	if n.Type == html.CommentNode {
		return
	}
	if n.Type == html.ElementNode && isSkippedElement(strings.ToLower(n.Data)) {
		return
	}
	if n.Type == html.TextNode {
		w.text(n.Data)
		return
	}
	if n.Type == html.ElementNode {
		w.element(n)
		return
	}
	w.walkChildren(n)
}

// walkChildren dispatches every child in order.
func (w *mdWalker) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// element renders one element node.
func (w *mdWalker) element(n *html.Node) {
	tag := strings.ToLower(n.Data)

	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(tag[1] - '0')
		w.ensureBlock()
		w.b.WriteString(strings.Repeat("#", level))
		w.b.WriteString(" ")
		w.walkChildren(n)
		w.ensureBlock()

	case "p", "div", "section", "article", "main", "header", "footer",
		"aside", "nav", "figure", "figcaption", "dl", "dt", "dd", "form",
		"fieldset", "address":
		w.ensureBlock()
		w.walkChildren(n)
		w.ensureBlock()

	case "br":
		w.newline()

	case "hr":
		w.ensureBlock()
		w.b.WriteString("---")
		w.ensureBlock()

	case "ul", "ol":
		nested := len(w.listStack) > 0
		if !nested {
			w.ensureBlock()
		} else {
			w.newline()
		}
		start := 0
		if tag == "ol" {
			start = 1
		}
		w.listStack = append(w.listStack, start)
		w.walkChildren(n)
		w.listStack = w.listStack[:len(w.listStack)-1]
		if !nested {
			w.ensureBlock()
		}

	case "li":
		w.newline()
		depth := len(w.listStack)
		if depth > 0 {
			w.b.WriteString(strings.Repeat("  ", depth-1))
			if ord := w.listStack[depth-1]; ord > 0 {
				fmt.Fprintf(&w.b, "%d. ", ord)
				w.listStack[depth-1]++
			} else {
				w.b.WriteString("- ")
			}
		} else {
			w.b.WriteString("- ")
		}
		w.walkChildren(n)

	case "a":
		label := w.capture(n)
		href := w.resolveHref(attrValue(n, "href"))
		switch {
		case href == "" && label == "":
		case href == "":
			w.inlineText(label)
		case label == "":
			fmt.Fprintf(&w.b, "<%s>", href)
		default:
			fmt.Fprintf(&w.b, "[%s](%s)", label, href)
		}

	case "img":
		src := w.resolveHref(attrValue(n, "src"))
		if src == "" {
			return
		}
		alt := strings.TrimSpace(attrValue(n, "alt"))
		if alt == "" {
			alt = "image"
		}
		fmt.Fprintf(&w.b, "![%s](%s)", alt, src)

	case "strong", "b":
		if label := w.capture(n); label != "" {
			fmt.Fprintf(&w.b, "**%s**", label)
		}

	case "em", "i":
		if label := w.capture(n); label != "" {
			fmt.Fprintf(&w.b, "*%s*", label)
		}

	case "code":
		if label := w.capture(n); label != "" {
			fmt.Fprintf(&w.b, "`%s`", label)
		}

	case "pre":
		w.ensureBlock()
		w.b.WriteString("```")
		if lang := codeLanguage(n); lang != "" {
			w.b.WriteString(lang)
		}
		w.b.WriteString("\n")
		w.b.WriteString(strings.TrimRight(rawText(n), "\n"))
		w.b.WriteString("\n```")
		w.ensureBlock()

	case "blockquote":
		sub := &mdWalker{base: w.base}
		sub.walkChildren(n)
		quoted := tidyMarkdown(sub.b.String())
		if quoted == "" {
			return
		}
		w.ensureBlock()
		for i, line := range strings.Split(quoted, "\n") {
			if i > 0 {
				w.b.WriteString("\n")
			}
			w.b.WriteString("> ")
			w.b.WriteString(line)
		}
		w.ensureBlock()

	case "table":
		w.table(n)

	case "title":
		// Rendered separately as the result title.

	default:
		w.walkChildren(n)
	}
}

// text writes a text node, collapsing internal whitespace while preserving
// word boundaries against adjacent inline elements.
func (w *mdWalker) text(data string) {
	fields := strings.Fields(data)
	if len(fields) == 0 {
		if data != "" {
			w.spaceIfNeeded()
		}
		return
	}

	if data != strings.TrimLeft(data, " \t\n\r") {
		w.spaceIfNeeded()
	}
	w.b.WriteString(strings.Join(fields, " "))
	if data != strings.TrimRight(data, " \t\n\r") {
		w.b.WriteString(" ")
	}
}

// inlineText writes already-collapsed text with a word boundary.
func (w *mdWalker) inlineText(s string) {
	w.spaceIfNeeded()
	w.b.WriteString(s)
}

// spaceIfNeeded separates words unless the output already ends in whitespace.
func (w *mdWalker) spaceIfNeeded() {
	s := w.b.String()
	if s == "" {
		return
	}
	last := s[len(s)-1]
	if last != ' ' && last != '\n' {
		w.b.WriteString(" ")
	}
}

// ensureBlock guarantees a blank line before the next block element.
func (w *mdWalker) ensureBlock() {
	s := w.b.String()
	if s == "" || strings.HasSuffix(s, "\n\n") {
		return
	}
	if strings.HasSuffix(s, "\n") {
		w.b.WriteString("\n")
		return
	}
	w.b.WriteString("\n\n")
}

// newline guarantees the next write starts on a fresh line.
func (w *mdWalker) newline() {
	s := w.b.String()
	if s == "" || strings.HasSuffix(s, "\n") {
		return
	}
	w.b.WriteString("\n")
}

// capture renders a node's children to a single collapsed line, for use as
// link labels and emphasis spans.
func (w *mdWalker) capture(n *html.Node) string {
	sub := &mdWalker{base: w.base}
	sub.walkChildren(n)
	return strings.Join(strings.Fields(sub.b.String()), " ")
}

// resolveHref absolutizes a link target against the page URL, dropping
// fragment-only and script-scheme targets.
func (w *mdWalker) resolveHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "vbscript:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if w.base == nil {
		return parsed.String()
	}
	return w.base.ResolveReference(parsed).String()
}

// table flattens a table into pipe-delimited rows with a separator after the
// first row.
func (w *mdWalker) table(n *html.Node) {
	var rows [][]string
	for _, tr := range findAll(n, "tr") {
		var cells []string
		for _, cell := range findCells(tr) {
			text := w.capture(cell)
			cells = append(cells, strings.ReplaceAll(text, "|", "\\|"))
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	if len(rows) == 0 {
		return
	}

	w.ensureBlock()
	for i, row := range rows {
		if i > 0 {
			w.b.WriteString("\n")
		}
		w.b.WriteString("| ")
		w.b.WriteString(strings.Join(row, " | "))
		w.b.WriteString(" |")
		if i == 0 {
			w.b.WriteString("\n|")
			for range row {
				w.b.WriteString(" --- |")
			}
		}
	}
	w.ensureBlock()
}

// isSkippedElement returns true for elements that should be completely removed
func isSkippedElement(tagName string) bool {
	skipped := map[string]bool{
		"script":   true,
		"style":    true,
		"noscript": true,
		"iframe":   true,
		"embed":    true,
		"object":   true,
		"svg":      true,
		"template": true,
		"canvas":   true,
		"video":    true,
		"audio":    true,
		"head":     true,
	}
	return skipped[tagName]
}

// attrValue returns the first matching attribute value.
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val
		}
	}
	return ""
}

// codeLanguage extracts a fence language from a nested code element's
// language-* class.
func codeLanguage(pre *html.Node) string {
	for _, code := range findAll(pre, "code") {
		for _, class := range strings.Fields(attrValue(code, "class")) {
			if lang, ok := strings.CutPrefix(class, "language-"); ok {
				return lang
			}
		}
	}
	return ""
}

// rawText collects text content verbatim, preserving line structure.
func rawText(n *html.Node) string {
	var b strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return b.String()
}

// findAll returns every descendant element with the given tag, in document
// order.
func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		traverse(c)
	}
	return out
}

// findCells returns the th and td children of a row, in order.
func findCells(tr *html.Node) []*html.Node {
	var out []*html.Node
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if tag == "th" || tag == "td" {
				out = append(out, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		traverse(c)
	}
	return out
}

var (
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
)

// tidyMarkdown trims line-end spaces and collapses runs of blank lines.
func tidyMarkdown(s string) string {
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
