package browser

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/Claw256/mcp-google-search/pkg/config"
	"github.com/Claw256/mcp-google-search/pkg/pool"
)

// Compile-time check: instances are pool resources.
var _ pool.Resource = (*Instance)(nil)

// Instance is one launched browser held by the pool.
type Instance struct {
	id      string
	browser playwright.Browser
	cfg     config.BrowserConfig
}

func newInstance(browser playwright.Browser, cfg config.BrowserConfig) *Instance {
	return &Instance{
		id:      uuid.New().String(),
		browser: browser,
		cfg:     cfg,
	}
}

// ID returns the instance's stable identifier.
func (i *Instance) ID() string {
	return i.id
}

// Close shuts the underlying browser down.
func (i *Instance) Close() error {
	if err := i.browser.Close(); err != nil {
		return fmt.Errorf("failed to close browser %s: %w", i.id, err)
	}
	return nil
}

// NewSession opens a fresh browser context and page on this instance. The
// caller must Close the session when the operation finishes.
func (i *Instance) NewSession() (*Session, error) {
	return i.newSession(i.cfg.Width, i.cfg.Height)
}

// NewSessionWithViewport opens a session whose context uses the given
// viewport instead of the configured one.
func (i *Instance) NewSessionWithViewport(width, height int) (*Session, error) {
	return i.newSession(width, height)
}

func (i *Instance) newSession(width, height int) (*Session, error) {
	context, err := i.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  width,
			Height: height,
		},
		UserAgent: playwright.String(i.cfg.UserAgent),
		Locale:    playwright.String(i.cfg.Locale),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(i.cfg.NavTimeoutMS))

	return &Session{
		context: context,
		page:    page,
	}, nil
}
