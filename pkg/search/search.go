// Package search runs Google searches through a pooled browser and parses
// the rendered result pages.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Claw256/mcp-google-search/pkg/browser"
	"github.com/Claw256/mcp-google-search/pkg/cache"
	"github.com/Claw256/mcp-google-search/pkg/gate"
	"github.com/Claw256/mcp-google-search/pkg/logging"
	"github.com/Claw256/mcp-google-search/pkg/pool"
)

// Type selects the result corpus.
type Type string

const (
	// TypeWeb returns organic web results.
	TypeWeb Type = "web"
	// TypeImage returns image results.
	TypeImage Type = "image"
)

// Request describes one search.
type Request struct {
	// Query is the search term. Required.
	Query string `json:"query"`

	// Limit caps returned results (1-20). Zero applies the configured
	// default.
	Limit int `json:"limit,omitempty"`

	// Offset skips leading results for pagination.
	Offset int `json:"offset,omitempty"`

	// Language is the interface language hint (hl parameter).
	Language string `json:"language,omitempty"`

	// Safe toggles safe-search filtering. Callers choose the default; the
	// zero value means filtering off.
	Safe bool `json:"safe"`

	// Type defaults to web.
	Type Type `json:"type,omitempty"`
}

// Result is one parsed search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

// Response is the full answer for one request.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Count   int      `json:"count"`
}

// Config holds search defaults taken from server configuration.
type Config struct {
	// BaseURL is the search endpoint. Empty selects DefaultBaseURL.
	BaseURL string

	// ResultLimit applies when a request leaves Limit unset.
	ResultLimit int

	// NavTimeout bounds result-page navigation.
	NavTimeout time.Duration

	// CacheTTL overrides the cache default for search results. Zero keeps
	// the default.
	CacheTTL time.Duration
}

// Searcher runs search requests through the operation gate.
type Searcher struct {
	runner *gate.Runner
	cfg    Config
	logger *logging.Logger
}

// New creates a Searcher.
func New(runner *gate.Runner, cfg Config, logger *logging.Logger) *Searcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Searcher{
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
}

// Search validates the request and runs it as a gated operation. Results are
// cached under the normalized request parameters.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	key, err := cache.Key("search", map[string]interface{}{
		"query":    req.Query,
		"limit":    req.Limit,
		"offset":   req.Offset,
		"language": req.Language,
		"safe":     req.Safe,
		"type":     req.Type,
	})
	if err != nil {
		return nil, gate.AsError(err)
	}

	payload, err := s.runner.Do(ctx, gate.Operation{
		Name:     "google_search",
		CacheKey: key,
		RateKey:  "google_search",
		TTL:      s.cfg.CacheTTL,
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			response, err := s.perform(ctx, res, req)
			if err != nil {
				return nil, err
			}
			return json.Marshal(response)
		},
	})
	if err != nil {
		return nil, err
	}

	var response Response
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &response, nil
}

// normalize applies defaults and rejects out-of-range values.
func (s *Searcher) normalize(req *Request) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return gate.Invalid("query is required")
	}

	if req.Limit == 0 {
		req.Limit = s.cfg.ResultLimit
	}
	if req.Limit < 1 || req.Limit > 20 {
		return gate.Invalid("limit must be between 1 and 20, got %d", req.Limit)
	}

	if req.Offset < 0 {
		return gate.Invalid("offset must not be negative, got %d", req.Offset)
	}

	if req.Type == "" {
		req.Type = TypeWeb
	}
	switch req.Type {
	case TypeWeb, TypeImage:
	default:
		return gate.Invalid("unknown search type %q (expected web or image)", req.Type)
	}

	return nil
}

// perform renders the result page in a borrowed browser and parses it.
func (s *Searcher) perform(ctx context.Context, res pool.Resource, req Request) (*Response, error) {
	inst, ok := res.(*browser.Instance)
	if !ok {
		return nil, fmt.Errorf("unexpected pool resource type %T", res)
	}

	session, err := inst.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	target := buildURL(s.cfg.BaseURL, req)
	if err := session.Navigate(target, browser.WaitDOMContentLoaded, s.cfg.NavTimeout); err != nil {
		return nil, err
	}

	html, err := session.Content()
	if err != nil {
		return nil, err
	}

	var results []Result
	if req.Type == TypeImage {
		results, err = parseImages(html, req.Limit)
	} else {
		results, err = parseResults(html, req.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	// A blank page with a challenge marker is a temporary block, not an
	// empty result set. Surfacing it as an error routes it into the retry
	// path.
	if len(results) == 0 && hasCaptchaMarker(html) {
		return nil, fmt.Errorf("search blocked: unusual traffic challenge for %q", req.Query)
	}

	if results == nil {
		results = []Result{}
	}

	s.logger.Infof("Search %q (%s) returned %d results", req.Query, req.Type, len(results))
	return &Response{
		Query:   req.Query,
		Results: results,
		Count:   len(results),
	}, nil
}
