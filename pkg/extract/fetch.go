package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"

	"github.com/Claw256/mcp-google-search/pkg/logging"
)

const (
	// maxFetchBytes limits static-fetch responses to keep memory bounded.
	maxFetchBytes = 10 * 1024 * 1024

	// maxRedirects bounds redirect chains on the static path.
	maxRedirects = 10
)

// FetchedPage is the outcome of a static fetch.
type FetchedPage struct {
	HTML     string
	FinalURL string
	Status   int
}

// Fetcher retrieves pages over plain HTTP for static-mode extraction.
type Fetcher struct {
	client *resty.Client
	logger *logging.Logger
}

// NewFetcher builds a Fetcher with browser-like request headers.
func NewFetcher(userAgent string, timeout time.Duration, logger *logging.Logger) *Fetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects)).
		SetHeaders(map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		})

	return &Fetcher{
		client: client,
		logger: logger,
	}
}

// Fetch retrieves the page at rawURL and verifies the payload is HTML by
// content, not by header. The reported final URL reflects any redirects.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchedPage, error) {
	resp, err := f.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s (url: %s)", status, resp.Status(), rawURL)
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body from %s", rawURL)
	}
	if len(body) > maxFetchBytes {
		return nil, fmt.Errorf("response exceeds %d bytes (url: %s)", maxFetchBytes, rawURL)
	}

	mtype := mimetype.Detect(body)
	if !mtype.Is("text/html") && !mtype.Is("application/xhtml+xml") {
		return nil, fmt.Errorf("unsupported content type %s (expected HTML, url: %s)", mtype.String(), rawURL)
	}

	finalURL := rawURL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	f.logger.Debugf("Fetched %s (%d bytes, status %d)", finalURL, len(body), status)
	return &FetchedPage{
		HTML:     string(body),
		FinalURL: finalURL,
		Status:   status,
	}, nil
}
