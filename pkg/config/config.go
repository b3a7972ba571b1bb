// Package config loads and validates server configuration.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML file, and environment variables. Later layers win, so a deployment can
// ship a config file and still override single values per environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Built-in defaults. Kept as constants so tests and docs reference one place.
const (
	DefaultPoolMin           = 1
	DefaultPoolMax           = 5
	DefaultIdleTimeoutMS     = 300000
	DefaultRateWindowMS      = 60000
	DefaultRateMaxRequests   = 30
	DefaultCacheTTLSeconds   = 3600
	DefaultCacheMaxKeys      = 1000
	DefaultMaxRetries        = 3
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 720
	DefaultNavTimeoutMS      = 30000
	DefaultSearchResultLimit = 10
	DefaultExtractMaxTokens  = 8000
	DefaultScreenshotMaxMB   = 8
	DefaultLocale            = "en-US"
	DefaultLogLevel          = "info"

	// DefaultUserAgent is sent with every browser context and static fetch.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

	// Viewport bounds accepted for screenshot overrides.
	MinViewportDim = 320
	MaxViewportDim = 3840
)

// PoolConfig sizes the browser resource pool.
type PoolConfig struct {
	MinSize       int `yaml:"min_size" envconfig:"BROWSER_POOL_MIN"`
	MaxSize       int `yaml:"max_size" envconfig:"BROWSER_POOL_MAX"`
	IdleTimeoutMS int `yaml:"idle_timeout_ms" envconfig:"BROWSER_POOL_IDLE_TIMEOUT_MS"`
}

// IdleTimeout returns the idle reclaim window as a duration.
func (c PoolConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMS) * time.Millisecond
}

// RateLimitConfig shapes the per-key token buckets.
type RateLimitConfig struct {
	WindowMS    int `yaml:"window_ms" envconfig:"RATE_LIMIT_WINDOW_MS"`
	MaxRequests int `yaml:"max_requests" envconfig:"RATE_LIMIT_MAX_REQUESTS"`
}

// Window returns the full-refill window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMS) * time.Millisecond
}

// CacheConfig sizes the result cache. An empty DBPath selects the in-memory
// store; a path selects the SQLite store at that location.
type CacheConfig struct {
	TTLSeconds int    `yaml:"ttl_seconds" envconfig:"CACHE_TTL_SECONDS"`
	MaxKeys    int    `yaml:"max_keys" envconfig:"CACHE_MAX_KEYS"`
	DBPath     string `yaml:"db_path" envconfig:"CACHE_DB_PATH"`
}

// TTL returns the default entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// BrowserConfig controls launched browsers and the contexts opened on them.
type BrowserConfig struct {
	Headless     bool   `yaml:"headless" envconfig:"BROWSER_HEADLESS"`
	Width        int    `yaml:"width" envconfig:"BROWSER_WIDTH"`
	Height       int    `yaml:"height" envconfig:"BROWSER_HEIGHT"`
	UserAgent    string `yaml:"user_agent" envconfig:"BROWSER_USER_AGENT"`
	Locale       string `yaml:"locale" envconfig:"BROWSER_LOCALE"`
	NavTimeoutMS int    `yaml:"nav_timeout_ms" envconfig:"NAV_TIMEOUT_MS"`
}

// NavTimeout returns the navigation timeout as a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutMS) * time.Millisecond
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	ResultLimit int `yaml:"result_limit" envconfig:"SEARCH_RESULT_LIMIT"`
}

// ExtractConfig holds content extraction defaults.
type ExtractConfig struct {
	// MaxTokens caps extracted content per request unless the caller asks
	// for less.
	MaxTokens int `yaml:"max_tokens" envconfig:"EXTRACT_MAX_TOKENS"`
}

// ScreenshotConfig bounds capture output.
type ScreenshotConfig struct {
	MaxBytes int `yaml:"max_bytes" envconfig:"SCREENSHOT_MAX_BYTES"`
}

// SecurityConfig holds the navigation policy. Domain lists are glob patterns
// matched against hostnames; an empty allow list permits every host not
// explicitly blocked.
type SecurityConfig struct {
	AllowedDomains    []string `yaml:"allowed_domains" envconfig:"ALLOWED_DOMAINS"`
	BlockedDomains    []string `yaml:"blocked_domains" envconfig:"BLOCKED_DOMAINS"`
	AllowPrivateHosts bool     `yaml:"allow_private_hosts" envconfig:"ALLOW_PRIVATE_HOSTS"`
}

// LogConfig controls the file logger.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
	Dir   string `yaml:"dir" envconfig:"LOG_DIR"`
}

// Config is the full server configuration.
type Config struct {
	Pool       PoolConfig       `yaml:"pool"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Cache      CacheConfig      `yaml:"cache"`
	Browser    BrowserConfig    `yaml:"browser"`
	Search     SearchConfig     `yaml:"search"`
	Extract    ExtractConfig    `yaml:"extract"`
	Screenshot ScreenshotConfig `yaml:"screenshot"`
	Security   SecurityConfig   `yaml:"security"`
	Log        LogConfig        `yaml:"log"`

	// MaxRetries is the total attempt budget for operations that fail with
	// a transient error.
	MaxRetries int `yaml:"max_retries" envconfig:"MAX_RETRIES"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			MinSize:       DefaultPoolMin,
			MaxSize:       DefaultPoolMax,
			IdleTimeoutMS: DefaultIdleTimeoutMS,
		},
		RateLimit: RateLimitConfig{
			WindowMS:    DefaultRateWindowMS,
			MaxRequests: DefaultRateMaxRequests,
		},
		Cache: CacheConfig{
			TTLSeconds: DefaultCacheTTLSeconds,
			MaxKeys:    DefaultCacheMaxKeys,
		},
		Browser: BrowserConfig{
			Headless:     true,
			Width:        DefaultViewportWidth,
			Height:       DefaultViewportHeight,
			UserAgent:    DefaultUserAgent,
			Locale:       DefaultLocale,
			NavTimeoutMS: DefaultNavTimeoutMS,
		},
		Search: SearchConfig{
			ResultLimit: DefaultSearchResultLimit,
		},
		Extract: ExtractConfig{
			MaxTokens: DefaultExtractMaxTokens,
		},
		Screenshot: ScreenshotConfig{
			MaxBytes: DefaultScreenshotMaxMB * 1024 * 1024,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		MaxRetries: DefaultMaxRetries,
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables override file values. Fields without a matching
	// variable keep their current value because no default tags are set.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field and range constraints.
func (c *Config) Validate() error {
	if c.Pool.MinSize < 0 {
		return fmt.Errorf("pool min size must be >= 0, got %d", c.Pool.MinSize)
	}
	if c.Pool.MaxSize < 1 {
		return fmt.Errorf("pool max size must be >= 1, got %d", c.Pool.MaxSize)
	}
	if c.Pool.MinSize > c.Pool.MaxSize {
		return fmt.Errorf("pool min size %d exceeds max size %d", c.Pool.MinSize, c.Pool.MaxSize)
	}
	if c.Pool.IdleTimeoutMS <= 0 {
		return fmt.Errorf("pool idle timeout must be positive, got %dms", c.Pool.IdleTimeoutMS)
	}

	if c.RateLimit.WindowMS <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %dms", c.RateLimit.WindowMS)
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate limit max requests must be positive, got %d", c.RateLimit.MaxRequests)
	}

	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %ds", c.Cache.TTLSeconds)
	}
	if c.Cache.MaxKeys <= 0 {
		return fmt.Errorf("cache max keys must be positive, got %d", c.Cache.MaxKeys)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be >= 1, got %d", c.MaxRetries)
	}

	if c.Browser.Width < MinViewportDim || c.Browser.Width > MaxViewportDim {
		return fmt.Errorf("browser width must be between %d and %d, got %d", MinViewportDim, MaxViewportDim, c.Browser.Width)
	}
	if c.Browser.Height < MinViewportDim || c.Browser.Height > MaxViewportDim {
		return fmt.Errorf("browser height must be between %d and %d, got %d", MinViewportDim, MaxViewportDim, c.Browser.Height)
	}
	if c.Browser.NavTimeoutMS <= 0 {
		return fmt.Errorf("navigation timeout must be positive, got %dms", c.Browser.NavTimeoutMS)
	}

	if c.Search.ResultLimit < 1 || c.Search.ResultLimit > 20 {
		return fmt.Errorf("search result limit must be between 1 and 20, got %d", c.Search.ResultLimit)
	}

	if c.Extract.MaxTokens < 1 {
		return fmt.Errorf("extract max tokens must be >= 1, got %d", c.Extract.MaxTokens)
	}

	if c.Screenshot.MaxBytes <= 0 {
		return fmt.Errorf("screenshot max bytes must be positive, got %d", c.Screenshot.MaxBytes)
	}

	return nil
}
