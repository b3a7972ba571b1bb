package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Claw256/mcp-google-search/pkg/browser"
	"github.com/Claw256/mcp-google-search/pkg/cache"
	"github.com/Claw256/mcp-google-search/pkg/config"
	"github.com/Claw256/mcp-google-search/pkg/gate"
	"github.com/Claw256/mcp-google-search/pkg/logging"
	"github.com/Claw256/mcp-google-search/pkg/pool"
	"github.com/Claw256/mcp-google-search/pkg/ratelimit"
)

func newTestSearcher(t *testing.T) *Searcher {
	t.Helper()
	logger := logging.NewDiscardLogger("search-test")
	return New(nil, Config{ResultLimit: 10, NavTimeout: 5 * time.Second}, logger)
}

func TestNormalize(t *testing.T) {
	s := newTestSearcher(t)

	t.Run("defaults applied", func(t *testing.T) {
		req := Request{Query: "  golang  "}
		require.NoError(t, s.normalize(&req))

		assert.Equal(t, "golang", req.Query)
		assert.Equal(t, 10, req.Limit)
		assert.Equal(t, TypeWeb, req.Type)
	})

	cases := []struct {
		name string
		req  Request
	}{
		{"missing query", Request{}},
		{"whitespace query", Request{Query: "   "}},
		{"limit above cap", Request{Query: "x", Limit: 21}},
		{"negative limit", Request{Query: "x", Limit: -1}},
		{"negative offset", Request{Query: "x", Offset: -5}},
		{"unknown type", Request{Query: "x", Type: "video"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.normalize(&tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, gate.ErrInvalidInput))
		})
	}
}

func TestNewFillsBaseURL(t *testing.T) {
	s := newTestSearcher(t)
	assert.Equal(t, DefaultBaseURL, s.cfg.BaseURL)
}

// TestSearchIntegration drives a real browser against a local server that
// returns fixture result pages.
func TestSearchIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}

	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Browsers fetch favicons and other extras; only count page loads.
		if r.URL.Query().Get("q") == "" {
			http.NotFound(w, r)
			return
		}
		hits++
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, modernSERP)
	}))
	defer server.Close()

	logger := logging.NewDiscardLogger("search-test")

	browserCfg := config.Default().Browser
	launcher := browser.NewLauncher(browserCfg, logger)
	require.NoError(t, launcher.Initialize())
	defer func() { _ = launcher.Shutdown() }()

	p := pool.New(pool.Config{
		MinSize:      0,
		MaxSize:      1,
		IdleTimeout:  time.Minute,
		PollInterval: 10 * time.Millisecond,
	}, launcher.Factory(), logger)
	defer func() { _ = p.CloseAll() }()

	limiter := ratelimit.New(ratelimit.Config{Window: time.Minute, MaxRequests: 10}, logger)
	defer limiter.Close()

	c := cache.New(cache.Config{TTL: time.Hour, MaxKeys: 10, SweepInterval: time.Hour}, cache.NewMemoryStore(), logger)
	defer func() { _ = c.Close() }()

	runner := gate.NewRunner(gate.Config{MaxRetries: 2}, p, limiter, c, logger)

	s := New(runner, Config{
		BaseURL:     server.URL,
		ResultLimit: 10,
		NavTimeout:  30 * time.Second,
	}, logger)

	response, err := s.Search(context.Background(), Request{Query: "golang", Safe: true})
	require.NoError(t, err)

	require.Equal(t, 2, response.Count)
	assert.Equal(t, "The Go Programming Language", response.Results[0].Title)
	assert.Equal(t, "https://golang.org/", response.Results[0].Link)

	// A repeat comes from the cache without another page load.
	again, err := s.Search(context.Background(), Request{Query: "golang", Safe: true})
	require.NoError(t, err)
	assert.Equal(t, response.Count, again.Count)
	assert.Equal(t, 1, hits)
}
