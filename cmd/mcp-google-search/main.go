// Package main runs the mcp-google-search server: Google search, webpage
// extraction, and screenshot tools exposed over the Model Context Protocol
// on stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Claw256/mcp-google-search/pkg/browser"
	"github.com/Claw256/mcp-google-search/pkg/cache"
	"github.com/Claw256/mcp-google-search/pkg/config"
	"github.com/Claw256/mcp-google-search/pkg/extract"
	"github.com/Claw256/mcp-google-search/pkg/gate"
	"github.com/Claw256/mcp-google-search/pkg/logging"
	"github.com/Claw256/mcp-google-search/pkg/pool"
	"github.com/Claw256/mcp-google-search/pkg/ratelimit"
	"github.com/Claw256/mcp-google-search/pkg/screenshot"
	"github.com/Claw256/mcp-google-search/pkg/search"
	"github.com/Claw256/mcp-google-search/pkg/server"
	"github.com/Claw256/mcp-google-search/pkg/security/urlguard"
)

const version = "1.0.0"

// warmUpTimeout bounds the initial browser launches so a broken Chromium
// install fails fast instead of hanging the host.
const warmUpTimeout = time.Minute

type cliFlags struct {
	ConfigFile  string
	ShowVersion bool
}

func main() {
	flags := parseFlags()

	if flags.ShowVersion {
		fmt.Printf("mcp-google-search v%s\n", version)
		return
	}

	if err := run(flags); err != nil {
		// stdout carries the protocol; diagnostics go to stderr.
		log.Printf("Fatal: %v", err)
		os.Exit(1)
	}
}

func parseFlags() *cliFlags {
	flags := &cliFlags{}

	flag.StringVar(&flags.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.BoolVar(&flags.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "mcp-google-search - Google search, extraction, and screenshot tools over MCP\n\n")
		fmt.Fprintf(os.Stderr, "Usage: mcp-google-search [options]\n\n")
		fmt.Fprintf(os.Stderr, "The server speaks JSON-RPC over stdio; run it from an MCP host.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables (BROWSER_POOL_MAX, RATE_LIMIT_MAX_REQUESTS,\n")
		fmt.Fprintf(os.Stderr, "CACHE_DB_PATH, ...) override config file values.\n")
	}

	flag.Parse()
	return flags
}

func run(flags *cliFlags) error {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.SetLevel(logging.ParseLevel(cfg.Log.Level))
	if cfg.Log.Dir != "" {
		logging.SetDirectory(cfg.Log.Dir)
	}

	logger, err := logging.NewLogger("main")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Infof("Starting mcp-google-search v%s (pid %d)", version, os.Getpid())

	launcher := browser.NewLauncher(cfg.Browser, logger)
	if err := launcher.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize browser driver: %w", err)
	}
	defer func() { _ = launcher.Shutdown() }()

	p := pool.New(pool.Config{
		MinSize:     cfg.Pool.MinSize,
		MaxSize:     cfg.Pool.MaxSize,
		IdleTimeout: cfg.Pool.IdleTimeout(),
	}, launcher.Factory(), logger)
	defer func() { _ = p.CloseAll() }()

	warmCtx, cancel := context.WithTimeout(context.Background(), warmUpTimeout)
	defer cancel()
	if err := p.Initialize(warmCtx); err != nil {
		return fmt.Errorf("failed to warm browser pool: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Window:      cfg.RateLimit.Window(),
		MaxRequests: cfg.RateLimit.MaxRequests,
	}, logger)
	defer limiter.Close()

	store, err := newStore(cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache store: %w", err)
	}

	resultCache := cache.New(cache.Config{
		TTL:     cfg.Cache.TTL(),
		MaxKeys: cfg.Cache.MaxKeys,
	}, store, logger)
	defer func() { _ = resultCache.Close() }()

	runner := gate.NewRunner(gate.Config{
		MaxRetries: cfg.MaxRetries,
	}, p, limiter, resultCache, logger)

	guard, err := urlguard.New(urlguard.Config{
		AllowedDomains:    cfg.Security.AllowedDomains,
		BlockedDomains:    cfg.Security.BlockedDomains,
		AllowPrivateHosts: cfg.Security.AllowPrivateHosts,
	})
	if err != nil {
		return fmt.Errorf("invalid navigation policy: %w", err)
	}

	searcher := search.New(runner, search.Config{
		ResultLimit: cfg.Search.ResultLimit,
		NavTimeout:  cfg.Browser.NavTimeout(),
	}, logger)

	extractor := extract.New(runner, guard, extract.Config{
		NavTimeout: cfg.Browser.NavTimeout(),
		UserAgent:  cfg.Browser.UserAgent,
		MaxTokens:  cfg.Extract.MaxTokens,
	}, logger)

	capturer := screenshot.New(runner, guard, screenshot.Config{
		NavTimeout: cfg.Browser.NavTimeout(),
		MaxBytes:   cfg.Screenshot.MaxBytes,
		Width:      cfg.Browser.Width,
		Height:     cfg.Browser.Height,
	}, logger)

	s := server.New(version, server.Deps{
		Searcher:  searcher,
		Extractor: extractor,
		Capturer:  capturer,
	}, logger)

	logger.Infof("Serving MCP over stdio")
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}

	logger.Infof("Shutting down")
	return nil
}

// newStore selects the cache backend: SQLite when a path is configured,
// otherwise in-memory.
func newStore(cfg config.CacheConfig, logger *logging.Logger) (cache.Store, error) {
	if cfg.DBPath == "" {
		return cache.NewMemoryStore(), nil
	}
	logger.Infof("Using SQLite cache at %s", cfg.DBPath)
	return cache.NewSQLiteStore(cfg.DBPath)
}
