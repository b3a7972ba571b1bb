// Package screenshot captures rendered pages as images or PDF documents
// through a pooled browser.
package screenshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/playwright-community/playwright-go"

	"github.com/Claw256/mcp-google-search/pkg/browser"
	"github.com/Claw256/mcp-google-search/pkg/cache"
	"github.com/Claw256/mcp-google-search/pkg/config"
	"github.com/Claw256/mcp-google-search/pkg/gate"
	"github.com/Claw256/mcp-google-search/pkg/logging"
	"github.com/Claw256/mcp-google-search/pkg/pool"
	"github.com/Claw256/mcp-google-search/pkg/security/urlguard"
)

// Format is the capture output type.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatPDF  Format = "pdf"
)

// MIME returns the media type for the format.
func (f Format) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

// defaultJPEGQuality applies when a jpeg request leaves Quality unset.
const defaultJPEGQuality = 80

// Request describes one capture.
type Request struct {
	// URL is the page to capture. Required.
	URL string `json:"url"`

	// FullPage captures the whole scrollable page instead of the viewport.
	FullPage bool `json:"full_page,omitempty"`

	// Selector captures a single element instead of the page. Incompatible
	// with FullPage and with the pdf format.
	Selector string `json:"selector,omitempty"`

	// Format defaults to png.
	Format Format `json:"format,omitempty"`

	// Quality is the jpeg quality (1-100). Jpeg only.
	Quality int `json:"quality,omitempty"`

	// Width and Height override the context viewport. Zero keeps the
	// configured size.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// WaitUntil is the navigation settle state. Defaults to load.
	WaitUntil string `json:"wait_until,omitempty"`

	// Timeout bounds navigation. Zero applies the configured default.
	Timeout time.Duration `json:"-"`
}

// Result is one finished capture.
type Result struct {
	URL    string `json:"url"`
	Format Format `json:"format"`
	MIME   string `json:"mime_type"`
	Data   string `json:"data"`
	Bytes  int    `json:"bytes"`
}

// Config holds capture defaults taken from server configuration.
type Config struct {
	NavTimeout time.Duration
	MaxBytes   int
	Width      int
	Height     int

	// CacheTTL overrides the cache default for captures. Zero keeps the
	// default.
	CacheTTL time.Duration
}

// Capturer runs capture requests through the operation gate.
type Capturer struct {
	runner *gate.Runner
	guard  *urlguard.Guard
	cfg    Config
	logger *logging.Logger
}

// New creates a Capturer.
func New(runner *gate.Runner, guard *urlguard.Guard, cfg Config, logger *logging.Logger) *Capturer {
	return &Capturer{
		runner: runner,
		guard:  guard,
		cfg:    cfg,
		logger: logger,
	}
}

// Capture validates the request, checks the navigation policy, and runs the
// capture as a gated operation.
func (c *Capturer) Capture(ctx context.Context, req Request) (*Result, error) {
	if err := c.normalize(&req); err != nil {
		return nil, err
	}
	if err := c.guard.Check(req.URL); err != nil {
		return nil, err
	}

	key, err := cache.Key("screenshot", map[string]interface{}{
		"url":       req.URL,
		"full_page": req.FullPage,
		"selector":  req.Selector,
		"format":    req.Format,
		"quality":   req.Quality,
		"width":     req.Width,
		"height":    req.Height,
		"wait":      req.WaitUntil,
	})
	if err != nil {
		return nil, gate.AsError(err)
	}

	payload, err := c.runner.Do(ctx, gate.Operation{
		Name:     "take_screenshot",
		CacheKey: key,
		RateKey:  "take_screenshot",
		TTL:      c.cfg.CacheTTL,
		Action: func(ctx context.Context, res pool.Resource) ([]byte, error) {
			result, err := c.perform(ctx, res, req)
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
		return nil, fmt.Errorf("failed to decode capture result: %w", err)
	}
	return &result, nil
}

// normalize applies defaults and rejects invalid combinations.
func (c *Capturer) normalize(req *Request) error {
	if req.URL == "" {
		return gate.Invalid("url is required")
	}

	if req.Format == "" {
		req.Format = FormatPNG
	}
	switch req.Format {
	case FormatPNG, FormatJPEG, FormatPDF:
	default:
		return gate.Invalid("unknown format %q (expected png, jpeg, or pdf)", req.Format)
	}

	if req.Quality != 0 {
		if req.Format != FormatJPEG {
			return gate.Invalid("quality applies to jpeg captures only")
		}
		if req.Quality < 1 || req.Quality > 100 {
			return gate.Invalid("quality must be between 1 and 100, got %d", req.Quality)
		}
	}
	if req.Format == FormatJPEG && req.Quality == 0 {
		req.Quality = defaultJPEGQuality
	}

	if req.Selector != "" {
		if req.Format == FormatPDF {
			return gate.Invalid("selector captures cannot produce pdf")
		}
		if req.FullPage {
			return gate.Invalid("selector and full_page are mutually exclusive")
		}
	}
	if req.Format == FormatPDF && req.FullPage {
		// PDF output always paginates the full document.
		req.FullPage = false
	}

	if req.Width == 0 {
		req.Width = c.cfg.Width
	}
	if req.Height == 0 {
		req.Height = c.cfg.Height
	}
	if req.Width < config.MinViewportDim || req.Width > config.MaxViewportDim {
		return gate.Invalid("width must be between %d and %d, got %d", config.MinViewportDim, config.MaxViewportDim, req.Width)
	}
	if req.Height < config.MinViewportDim || req.Height > config.MaxViewportDim {
		return gate.Invalid("height must be between %d and %d, got %d", config.MinViewportDim, config.MaxViewportDim, req.Height)
	}

	if req.WaitUntil == "" {
		req.WaitUntil = browser.WaitLoad
	}
	if !browser.ValidWaitUntil(req.WaitUntil) {
		return gate.Invalid("unknown wait_until %q", req.WaitUntil)
	}

	if req.Timeout <= 0 {
		req.Timeout = c.cfg.NavTimeout
	}

	return nil
}

// perform renders the page and captures it inside the gate.
func (c *Capturer) perform(ctx context.Context, res pool.Resource, req Request) (*Result, error) {
	inst, ok := res.(*browser.Instance)
	if !ok {
		return nil, fmt.Errorf("unexpected pool resource type %T", res)
	}

	session, err := inst.NewSessionWithViewport(req.Width, req.Height)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if err := session.Navigate(req.URL, req.WaitUntil, req.Timeout); err != nil {
		return nil, err
	}

	data, err := c.capture(session, req)
	if err != nil {
		return nil, err
	}

	if len(data) > c.cfg.MaxBytes {
		return nil, fmt.Errorf("capture size %d exceeds limit of %d bytes", len(data), c.cfg.MaxBytes)
	}

	c.logger.Infof("Captured %s as %s (%d bytes)", req.URL, req.Format, len(data))
	return &Result{
		URL:    session.URL(),
		Format: req.Format,
		MIME:   req.Format.MIME(),
		Data:   base64.StdEncoding.EncodeToString(data),
		Bytes:  len(data),
	}, nil
}

// capture produces the raw bytes for one normalized request.
func (c *Capturer) capture(session *browser.Session, req Request) ([]byte, error) {
	timeout := playwright.Float(float64(req.Timeout.Milliseconds()))

	if req.Format == FormatPDF {
		data, err := session.Page().PDF(playwright.PagePdfOptions{
			PrintBackground: playwright.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("pdf rendering failed: %w", err)
		}
		// Chromium occasionally emits a structurally broken document; a
		// corrupt render must fail the operation rather than get cached.
		if err := api.Validate(bytes.NewReader(data), nil); err != nil {
			return nil, fmt.Errorf("generated pdf failed validation: %w", err)
		}
		return data, nil
	}

	imageType := playwright.ScreenshotTypePng
	var quality *int
	if req.Format == FormatJPEG {
		imageType = playwright.ScreenshotTypeJpeg
		quality = playwright.Int(req.Quality)
	}

	if req.Selector != "" {
		data, err := session.Page().Locator(req.Selector).Screenshot(playwright.LocatorScreenshotOptions{
			Type:    imageType,
			Quality: quality,
			Timeout: timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("element capture failed: %w", err)
		}
		return data, nil
	}

	data, err := session.Page().Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(req.FullPage),
		Type:     imageType,
		Quality:  quality,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("page capture failed: %w", err)
	}
	return data, nil
}
