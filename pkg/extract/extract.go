// Package extract turns web pages into model-friendly text. Pages are
// rendered in a pooled browser (or fetched directly in static mode), run
// through one of three content pipelines, and truncated to a token budget.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/Claw256/mcp-google-search/pkg/browser"
	"github.com/Claw256/mcp-google-search/pkg/cache"
	"github.com/Claw256/mcp-google-search/pkg/gate"
	"github.com/Claw256/mcp-google-search/pkg/logging"
	"github.com/Claw256/mcp-google-search/pkg/pool"
	"github.com/Claw256/mcp-google-search/pkg/security/urlguard"
)

// Format selects the content pipeline applied to the page HTML.
type Format string

const (
	// FormatMarkdown renders the document tree as markdown-flavoured text.
	FormatMarkdown Format = "markdown"
	// FormatText strips all markup and returns normalized plain text.
	FormatText Format = "text"
	// FormatArticle runs readability extraction to isolate the main article.
	FormatArticle Format = "article"
)

// Mode selects how the page is obtained.
type Mode string

const (
	// ModeBrowser renders the page in a pooled browser so script-driven
	// content is present.
	ModeBrowser Mode = "browser"
	// ModeStatic fetches the raw HTML over HTTP without rendering.
	ModeStatic Mode = "static"
)

// Request describes one extraction.
type Request struct {
	// URL is the page to extract. Required.
	URL string `json:"url"`

	// Format defaults to markdown.
	Format Format `json:"format,omitempty"`

	// Mode defaults to browser.
	Mode Mode `json:"mode,omitempty"`

	// Selector, when set, is waited for before the page is read. Browser
	// mode only; static mode ignores it.
	Selector string `json:"selector,omitempty"`

	// MaxTokens caps the returned content. Zero applies the configured
	// default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Timeout bounds navigation and fetching. Zero applies the configured
	// default.
	Timeout time.Duration `json:"-"`
}

// Result is the extracted content.
type Result struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Format    Format `json:"format"`
	Content   string `json:"content"`
	Tokens    int    `json:"tokens"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Config holds extraction defaults taken from server configuration.
type Config struct {
	NavTimeout time.Duration
	UserAgent  string
	MaxTokens  int

	// CacheTTL overrides the cache default for extraction results. Zero
	// keeps the default.
	CacheTTL time.Duration
}

// Extractor runs extraction requests through the operation gate.
type Extractor struct {
	runner    *gate.Runner
	guard     *urlguard.Guard
	fetcher   *Fetcher
	tokenizer *Tokenizer
	cfg       Config
	logger    *logging.Logger
}

// New creates an Extractor. The tokenizer falls back to byte-length
// estimation when the encoding cannot be loaded.
func New(runner *gate.Runner, guard *urlguard.Guard, cfg Config, logger *logging.Logger) *Extractor {
	tok, err := NewTokenizer()
	if err != nil {
		logger.Warnf("Token encoding unavailable, falling back to size estimate: %v", err)
		tok = nil
	}

	return &Extractor{
		runner:    runner,
		guard:     guard,
		fetcher:   NewFetcher(cfg.UserAgent, cfg.NavTimeout, logger),
		tokenizer: tok,
		cfg:       cfg,
		logger:    logger,
	}
}

// Extract validates the request, checks the navigation policy, and runs the
// extraction as a gated operation. Results are cached under the normalized
// request parameters.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	if err := e.normalize(&req); err != nil {
		return nil, err
	}
	if err := e.guard.Check(req.URL); err != nil {
		return nil, err
	}

	// Timeout is an operational knob, not part of the result identity, so
	// it stays out of the cache key.
	key, err := cache.Key("extract", map[string]interface{}{
		"url":        req.URL,
		"format":     req.Format,
		"mode":       req.Mode,
		"selector":   req.Selector,
		"max_tokens": req.MaxTokens,
	})
	if err != nil {
		return nil, gate.AsError(err)
	}

	payload, err := e.runner.Do(ctx, gate.Operation{
		Name:     "extract_webpage",
		CacheKey: key,
		RateKey:  "extract_webpage",
		TTL:      e.cfg.CacheTTL,
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			result, err := e.perform(ctx, res, req)
			if err != nil {
				return nil, err
			}
			return json.Marshal(result)
		},
	})
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode extraction result: %w", err)
	}
	return &result, nil
}

// normalize applies defaults and rejects invalid combinations.
func (e *Extractor) normalize(req *Request) error {
	if req.URL == "" {
		return gate.Invalid("url is required")
	}

	if req.Format == "" {
		req.Format = FormatMarkdown
	}
	switch req.Format {
	case FormatMarkdown, FormatText, FormatArticle:
	default:
		return gate.Invalid("unknown format %q (expected markdown, text, or article)", req.Format)
	}

	if req.Mode == "" {
		req.Mode = ModeBrowser
	}
	switch req.Mode {
	case ModeBrowser, ModeStatic:
	default:
		return gate.Invalid("unknown mode %q (expected browser or static)", req.Mode)
	}

	if req.Mode == ModeStatic && req.Selector != "" {
		return gate.Invalid("selector requires browser mode")
	}

	if req.MaxTokens < 0 {
		return gate.Invalid("max_tokens must be positive, got %d", req.MaxTokens)
	}
	if req.MaxTokens == 0 || req.MaxTokens > e.cfg.MaxTokens {
		req.MaxTokens = e.cfg.MaxTokens
	}

	if req.Timeout <= 0 {
		req.Timeout = e.cfg.NavTimeout
	}

	return nil
}

// perform obtains the page and runs the content pipeline. It executes inside
// the gate with a borrowed browser; the static path simply leaves the
// borrowed instance untouched.
func (e *Extractor) perform(ctx context.Context, res pool.Resource, req Request) (*Result, error) {
	var (
		pageHTML  string
		pageTitle string
		finalURL  string
	)

	switch req.Mode {
	case ModeStatic:
		page, err := e.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		pageHTML = page.HTML
		finalURL = page.FinalURL

	default:
		inst, ok := res.(*browser.Instance)
		if !ok {
			return nil, fmt.Errorf("unexpected pool resource type %T", res)
		}

		session, err := inst.NewSession()
		if err != nil {
			return nil, err
		}
		defer session.Close()

		if err := session.Navigate(req.URL, browser.WaitDOMContentLoaded, req.Timeout); err != nil {
			return nil, err
		}
		if req.Selector != "" {
			if err := session.WaitFor(req.Selector, req.Timeout); err != nil {
				return nil, err
			}
		}

		pageHTML, err = session.Content()
		if err != nil {
			return nil, err
		}
		pageTitle = session.Title()
		finalURL = session.URL()
	}

	if finalURL == "" {
		finalURL = req.URL
	}

	result, err := e.render(pageHTML, pageTitle, finalURL, req)
	if err != nil {
		return nil, err
	}

	e.logger.Infof("Extracted %s as %s (%d tokens, truncated=%v)",
		finalURL, req.Format, result.Tokens, result.Truncated)
	return result, nil
}

// render runs the format pipeline and applies the token budget.
func (e *Extractor) render(pageHTML, pageTitle, finalURL string, req Request) (*Result, error) {
	base, err := url.Parse(finalURL)
	if err != nil {
		base = nil
	}

	title := pageTitle
	var content string

	switch req.Format {
	case FormatArticle:
		articleTitle, articleContent := e.renderArticle(pageHTML, base)
		if articleTitle != "" {
			title = articleTitle
		}
		content = articleContent

	case FormatText:
		content = renderText(pageHTML)

	default:
		md, err := renderMarkdown(pageHTML, base)
		if err != nil {
			return nil, err
		}
		content = md
	}

	if title == "" {
		title = documentTitle(pageHTML)
	}

	content, tokens, truncated := e.tokenizer.Truncate(content, req.MaxTokens)
	if truncated {
		content += fmt.Sprintf("\n\n[Content truncated to %d tokens]", req.MaxTokens)
	}

	return &Result{
		URL:       finalURL,
		Title:     title,
		Format:    req.Format,
		Content:   content,
		Tokens:    tokens,
		Truncated: truncated,
	}, nil
}
