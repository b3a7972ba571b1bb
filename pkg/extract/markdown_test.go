package extract

import (
	"net/url"
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	base, _ := url.Parse("https://example.com/docs/")

	tests := []struct {
		name    string
		input   string
		want    []string // substrings that should be present
		wantNot []string // substrings that should NOT be present
	}{
		{
			name: "headings and paragraphs",
			input: `<html><body>
				<h1>Title</h1>
				<p>First paragraph.</p>
				<h2>Section</h2>
				<p>Second paragraph.</p>
			</body></html>`,
			want: []string{"# Title", "## Section", "First paragraph.", "Second paragraph."},
		},
		{
			name: "script and style removal",
			input: `<html><head>
				<script>alert('evil');</script>
				<style>body { color: red; }</style>
			</head><body>
				<p>Visible content.</p>
				<noscript>No JS</noscript>
			</body></html>`,
			want:    []string{"Visible content."},
			wantNot: []string{"alert", "color: red", "No JS"},
		},
		{
			name:  "relative links resolve against the page URL",
			input: `<p>See the <a href="../changelog">changelog</a> now.</p>`,
			want:  []string{"See the [changelog](https://example.com/changelog) now."},
		},
		{
			name:    "fragment and script links are dropped",
			input:   `<p><a href="#top">Back to top</a> or <a href="javascript:void(0)">click</a>.</p>`,
			want:    []string{"Back to top", "click"},
			wantNot: []string{"#top", "javascript", "["},
		},
		{
			name:  "links without text keep their target",
			input: `<p>Visit <a href="https://example.org/a"></a> today.</p>`,
			want:  []string{"<https://example.org/a>"},
		},
		{
			name:  "image links nest",
			input: `<p><a href="https://example.org/a"><img src="/icon.png" alt="icon"></a></p>`,
			want:  []string{"[![icon](https://example.com/icon.png)](https://example.org/a)"},
		},
		{
			name:  "images become alt references",
			input: `<p><img src="/logo.png" alt="Logo"> and <img src="/pixel.png"></p>`,
			want:  []string{"![Logo](https://example.com/logo.png)", "![image](https://example.com/pixel.png)"},
		},
		{
			name:  "emphasis and inline code",
			input: `<p>Run <code>go build</code> with <strong>care</strong> and <em>patience</em>.</p>`,
			want:  []string{"Run `go build` with **care** and *patience*."},
		},
		{
			name: "nested lists with ordinals",
			input: `<ul>
				<li>alpha<ul><li>beta</li></ul></li>
				<li>gamma</li>
			</ul>
			<ol><li>one</li><li>two</li></ol>`,
			want: []string{"- alpha\n  - beta\n- gamma", "1. one\n2. two"},
		},
		{
			name:  "fenced code blocks keep language and layout",
			input: "<pre><code class=\"language-go\">func main() {\n\tstart()\n}</code></pre>",
			want:  []string{"```go\nfunc main() {\n\tstart()\n}\n```"},
		},
		{
			name:  "blockquotes are prefixed",
			input: `<blockquote><p>Wise words.</p><p>More words.</p></blockquote>`,
			want:  []string{"> Wise words.", "> More words."},
		},
		{
			name: "tables flatten to pipe rows",
			input: `<table>
				<tr><th>Name</th><th>Age</th></tr>
				<tr><td>Ada</td><td>36</td></tr>
			</table>`,
			want: []string{"| Name | Age |\n| --- | --- |\n| Ada | 36 |"},
		},
		{
			name:  "entities decode",
			input: `<p>Fish &amp; chips &gt; anything.</p>`,
			want:  []string{"Fish & chips > anything."},
		},
		{
			name:  "whitespace collapses across inline elements",
			input: "<p>\n\t\tlots   of\n\t\t<b>space</b>\n\there</p>",
			want:  []string{"lots of **space** here"},
		},
		{
			name: "horizontal rules and breaks",
			input: `<p>above</p>
				<hr>
				<p>line one<br>line two</p>`,
			want: []string{"above\n\n---", "line one\nline two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderMarkdown(tt.input, base)
			if err != nil {
				t.Fatalf("renderMarkdown() error = %v", err)
			}

			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Markdown missing expected substring: %q\nGot: %s", want, got)
				}
			}

			for _, notWant := range tt.wantNot {
				if strings.Contains(got, notWant) {
					t.Errorf("Markdown contains unwanted substring: %q\nGot: %s", notWant, got)
				}
			}
		})
	}
}

func TestRenderMarkdownNoBase(t *testing.T) {
	got, err := renderMarkdown(`<p><a href="/relative">link</a></p>`, nil)
	if err != nil {
		t.Fatalf("renderMarkdown() error = %v", err)
	}
	if !strings.Contains(got, "[link](/relative)") {
		t.Errorf("Expected relative link preserved without a base, got: %s", got)
	}
}

func TestRenderMarkdownBlankLineRuns(t *testing.T) {
	input := `<div><div><div><p>deep</p></div></div></div><div><p>next</p></div>`
	got, err := renderMarkdown(input, nil)
	if err != nil {
		t.Fatalf("renderMarkdown() error = %v", err)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("Expected blank-line runs collapsed, got: %q", got)
	}
	if got != "deep\n\nnext" {
		t.Errorf("Unexpected output: %q", got)
	}
}

func TestIsSkippedElement(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"script", true},
		{"style", true},
		{"noscript", true},
		{"iframe", true},
		{"svg", true},
		{"head", true},
		{"template", true},
		{"div", false},
		{"p", false},
		{"span", false},
		{"a", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := isSkippedElement(tt.tag); got != tt.want {
				t.Errorf("isSkippedElement(%q) = %v, want %v", tt.tag, got, tt.want)
			}
		})
	}
}

func TestDocumentTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple title",
			input: `<html><head><title>  Release Notes </title></head><body></body></html>`,
			want:  "Release Notes",
		},
		{
			name:  "missing title",
			input: `<html><body><p>no head here</p></body></html>`,
			want:  "",
		},
		{
			name:  "fragment without html wrapper",
			input: `<title>Bare</title><p>body</p>`,
			want:  "Bare",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := documentTitle(tt.input); got != tt.want {
				t.Errorf("documentTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
