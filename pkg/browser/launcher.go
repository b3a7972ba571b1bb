// Package browser manages headless Chromium instances for pooled use. A
// Launcher owns the Playwright driver for the process; each Instance it
// creates wraps one launched browser and satisfies the pool's Resource
// contract. Operations open a short-lived Session (context plus page) on a
// borrowed Instance, so every operation starts with clean cookies and
// storage while the expensive browser process is reused.
package browser

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/Claw256/mcp-google-search/pkg/config"
	"github.com/Claw256/mcp-google-search/pkg/logging"
	"github.com/Claw256/mcp-google-search/pkg/pool"
)

// Launcher owns the process-wide Playwright driver.
type Launcher struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	cfg         config.BrowserConfig
	logger      *logging.Logger
	initialized bool
}

// NewLauncher creates a launcher. Initialize must be called before Factory
// resources can be created.
func NewLauncher(cfg config.BrowserConfig, logger *logging.Logger) *Launcher {
	return &Launcher{
		cfg:    cfg,
		logger: logger,
	}
}

// Initialize installs browser binaries if needed and starts the Playwright
// driver. Driver output is discarded: stdout belongs to the MCP transport.
// Calling Initialize again is a no-op.
func (l *Launcher) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	l.pw = pw
	l.initialized = true
	l.logger.Infof("Playwright driver started")
	return nil
}

// Factory returns a pool factory that launches one browser per call.
func (l *Launcher) Factory() pool.Factory {
	return func(ctx context.Context) (pool.Resource, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return l.launch()
	}
}

// launch starts one headless Chromium and wraps it as an Instance.
func (l *Launcher) launch() (*Instance, error) {
	l.mu.Lock()
	pw := l.pw
	initialized := l.initialized
	l.mu.Unlock()

	if !initialized {
		return nil, fmt.Errorf("launcher not initialized")
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	inst := newInstance(browser, l.cfg)
	l.logger.Debugf("Launched browser %s", inst.ID())
	return inst, nil
}

// Shutdown stops the Playwright driver. Close pooled instances first.
func (l *Launcher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized || l.pw == nil {
		return nil
	}

	if err := l.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	l.initialized = false
	l.logger.Infof("Playwright driver stopped")
	return nil
}
