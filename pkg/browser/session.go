package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Wait states accepted for navigation.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitNetworkIdle      = "networkidle"
)

// ValidWaitUntil reports whether s names a supported navigation wait state.
// Empty is valid and means the default.
func ValidWaitUntil(s string) bool {
	switch s {
	case "", WaitLoad, WaitDOMContentLoaded, WaitNetworkIdle:
		return true
	}
	return false
}

// Session is one operation's browser context and page on a pooled instance.
// Sessions are not safe for concurrent use and must be closed by the
// operation that opened them.
type Session struct {
	context playwright.BrowserContext
	page    playwright.Page
}

// Navigate loads url, waiting for the given state ("" means load).
func (s *Session) Navigate(url, waitUntil string, timeout time.Duration) error {
	opts := playwright.PageGotoOptions{}

	if waitUntil != "" {
		state := playwright.WaitUntilState(waitUntil)
		opts.WaitUntil = &state
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}

	if _, err := s.page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// WaitFor blocks until selector is attached or the timeout elapses.
func (s *Session) WaitFor(selector string, timeout time.Duration) error {
	opts := playwright.PageWaitForSelectorOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}

	if _, err := s.page.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

// Content returns the rendered HTML of the current page.
func (s *Session) Content() (string, error) {
	html, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

// URL returns the page's current address, after any redirects.
func (s *Session) URL() string {
	return s.page.URL()
}

// Title returns the page title, or "" when it cannot be read.
func (s *Session) Title() string {
	title, err := s.page.Title()
	if err != nil {
		return ""
	}
	return title
}

// Page exposes the underlying page for capture operations.
func (s *Session) Page() playwright.Page {
	return s.page
}

// Close tears the page and context down. Errors are swallowed: the pooled
// browser stays usable either way, and a failed page close must never mask
// an operation's result.
func (s *Session) Close() {
	_ = s.page.Close()
	_ = s.context.Close()
}
