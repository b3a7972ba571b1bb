package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearEnv unsets every variable the config layer reads so tests are
// isolated from the invoking shell.
func clearEnv(t *testing.T) {
	t.Helper()

	vars := []string{
		"BROWSER_POOL_MIN", "BROWSER_POOL_MAX", "BROWSER_POOL_IDLE_TIMEOUT_MS",
		"RATE_LIMIT_WINDOW_MS", "RATE_LIMIT_MAX_REQUESTS",
		"CACHE_TTL_SECONDS", "CACHE_MAX_KEYS", "CACHE_DB_PATH",
		"MAX_RETRIES",
		"BROWSER_HEADLESS", "BROWSER_WIDTH", "BROWSER_HEIGHT",
		"BROWSER_USER_AGENT", "BROWSER_LOCALE", "NAV_TIMEOUT_MS",
		"SEARCH_RESULT_LIMIT", "EXTRACT_MAX_TOKENS", "SCREENSHOT_MAX_BYTES",
		"ALLOWED_DOMAINS", "BLOCKED_DOMAINS", "ALLOW_PRIVATE_HOSTS",
		"LOG_LEVEL", "LOG_DIR",
	}
	for _, v := range vars {
		if val, ok := os.LookupEnv(v); ok {
			t.Setenv(v, val) // registers restore
			os.Unsetenv(v)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Pool.MinSize != DefaultPoolMin {
		t.Errorf("Expected pool min %d, got %d", DefaultPoolMin, cfg.Pool.MinSize)
	}
	if cfg.Pool.MaxSize != DefaultPoolMax {
		t.Errorf("Expected pool max %d, got %d", DefaultPoolMax, cfg.Pool.MaxSize)
	}
	if !cfg.Browser.Headless {
		t.Error("Expected headless to default to true")
	}
	if cfg.Cache.DBPath != "" {
		t.Errorf("Expected empty cache DB path, got %q", cfg.Cache.DBPath)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.RateLimit.MaxRequests != DefaultRateMaxRequests {
			t.Errorf("Expected %d max requests, got %d", DefaultRateMaxRequests, cfg.RateLimit.MaxRequests)
		}
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		clearEnv(t)

		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := `
pool:
  min_size: 2
  max_size: 8
cache:
  ttl_seconds: 120
browser:
  headless: false
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Pool.MinSize != 2 || cfg.Pool.MaxSize != 8 {
			t.Errorf("Expected pool 2/8, got %d/%d", cfg.Pool.MinSize, cfg.Pool.MaxSize)
		}
		if cfg.Cache.TTLSeconds != 120 {
			t.Errorf("Expected TTL 120, got %d", cfg.Cache.TTLSeconds)
		}
		if cfg.Browser.Headless {
			t.Error("Expected headless false from file")
		}

		// Untouched values keep defaults
		if cfg.RateLimit.WindowMS != DefaultRateWindowMS {
			t.Errorf("Expected default window, got %d", cfg.RateLimit.WindowMS)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		clearEnv(t)

		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := "pool:\n  max_size: 8\n"
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		t.Setenv("BROWSER_POOL_MAX", "3")
		t.Setenv("CACHE_MAX_KEYS", "50")

		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Pool.MaxSize != 3 {
			t.Errorf("Expected env to win with 3, got %d", cfg.Pool.MaxSize)
		}
		if cfg.Cache.MaxKeys != 50 {
			t.Errorf("Expected env max keys 50, got %d", cfg.Cache.MaxKeys)
		}
	})

	t.Run("domain lists split on comma", func(t *testing.T) {
		clearEnv(t)

		t.Setenv("ALLOWED_DOMAINS", "*.example.com,example.org")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if len(cfg.Security.AllowedDomains) != 2 {
			t.Fatalf("Expected 2 allowed domains, got %v", cfg.Security.AllowedDomains)
		}
		if cfg.Security.AllowedDomains[0] != "*.example.com" {
			t.Errorf("Unexpected first pattern: %q", cfg.Security.AllowedDomains[0])
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		clearEnv(t)

		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("Expected error for missing config file")
		}
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		clearEnv(t)

		t.Setenv("BROWSER_POOL_MIN", "7")
		t.Setenv("BROWSER_POOL_MAX", "2")

		if _, err := Load(""); err == nil {
			t.Error("Expected validation error for min > max")
		}
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative pool min", func(c *Config) { c.Pool.MinSize = -1 }},
		{"zero pool max", func(c *Config) { c.Pool.MaxSize = 0 }},
		{"min above max", func(c *Config) { c.Pool.MinSize = 9; c.Pool.MaxSize = 2 }},
		{"zero idle timeout", func(c *Config) { c.Pool.IdleTimeoutMS = 0 }},
		{"zero rate window", func(c *Config) { c.RateLimit.WindowMS = 0 }},
		{"zero rate requests", func(c *Config) { c.RateLimit.MaxRequests = 0 }},
		{"zero cache ttl", func(c *Config) { c.Cache.TTLSeconds = 0 }},
		{"zero cache keys", func(c *Config) { c.Cache.MaxKeys = 0 }},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"tiny viewport", func(c *Config) { c.Browser.Width = 10 }},
		{"huge viewport", func(c *Config) { c.Browser.Height = 9999 }},
		{"zero nav timeout", func(c *Config) { c.Browser.NavTimeoutMS = 0 }},
		{"result limit too high", func(c *Config) { c.Search.ResultLimit = 50 }},
		{"zero extract tokens", func(c *Config) { c.Extract.MaxTokens = 0 }},
		{"zero screenshot cap", func(c *Config) { c.Screenshot.MaxBytes = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()

	if cfg.Pool.IdleTimeout().Milliseconds() != int64(DefaultIdleTimeoutMS) {
		t.Errorf("IdleTimeout mismatch: %v", cfg.Pool.IdleTimeout())
	}
	if cfg.RateLimit.Window().Milliseconds() != int64(DefaultRateWindowMS) {
		t.Errorf("Window mismatch: %v", cfg.RateLimit.Window())
	}
	if cfg.Cache.TTL().Seconds() != float64(DefaultCacheTTLSeconds) {
		t.Errorf("TTL mismatch: %v", cfg.Cache.TTL())
	}
	if cfg.Browser.NavTimeout().Milliseconds() != int64(DefaultNavTimeoutMS) {
		t.Errorf("NavTimeout mismatch: %v", cfg.Browser.NavTimeout())
	}
}
