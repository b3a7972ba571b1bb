// Package server assembles the MCP server and its tool surface.
package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Claw256/mcp-google-search/pkg/extract"
	"github.com/Claw256/mcp-google-search/pkg/logging"
	"github.com/Claw256/mcp-google-search/pkg/screenshot"
	"github.com/Claw256/mcp-google-search/pkg/search"
)

const serverName = "mcp-google-search"

const instructions = `Search Google, extract readable page content, and capture
screenshots through a pooled headless browser. Results are cached; repeated
calls with identical arguments are cheap.`

// Searcher runs web and image searches.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// Extractor returns readable page content.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (*extract.Result, error)
}

// Capturer renders pages to images or PDF.
type Capturer interface {
	Capture(ctx context.Context, req screenshot.Request) (*screenshot.Result, error)
}

// Deps are the domain components behind the tools.
type Deps struct {
	Searcher  Searcher
	Extractor Extractor
	Capturer  Capturer
}

// New builds the MCP server and registers the three tools.
func New(version string, deps Deps, logger *logging.Logger) *server.MCPServer {
	h := &handlers{deps: deps, logger: logger}

	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithInstructions(instructions),
		server.WithRecovery(),
	)

	s.AddTool(searchTool(), h.search)
	s.AddTool(extractTool(), h.extract)
	s.AddTool(screenshotTool(), h.screenshot)

	return s
}

// ServeStdio blocks serving JSON-RPC over stdin/stdout until the stream
// closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func searchTool() mcp.Tool {
	return mcp.NewTool("google_search",
		mcp.WithDescription("Search Google and return structured results as JSON."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search terms."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of results to return."),
			mcp.Min(1), mcp.Max(20),
		),
		mcp.WithNumber("offset",
			mcp.Description("Result offset for pagination."),
			mcp.Min(0),
		),
		mcp.WithString("language",
			mcp.Description("Interface language hint, e.g. \"en\"."),
		),
		mcp.WithBoolean("safe",
			mcp.Description("Apply safe-search filtering."),
			mcp.DefaultBool(true),
		),
		mcp.WithString("type",
			mcp.Description("Search vertical."),
			mcp.Enum("web", "image"),
		),
	)
}

func extractTool() mcp.Tool {
	return mcp.NewTool("extract_webpage",
		mcp.WithDescription("Load a URL and return its readable content."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Page to extract."),
		),
		mcp.WithString("format",
			mcp.Description("Output format. article runs readability extraction."),
			mcp.Enum("markdown", "text", "article"),
		),
		mcp.WithString("mode",
			mcp.Description("browser renders the page; static fetches raw HTML."),
			mcp.Enum("browser", "static"),
		),
		mcp.WithString("selector",
			mcp.Description("CSS selector to wait for before reading (browser mode only)."),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Token budget for the returned content."),
			mcp.Min(1),
		),
	)
}

func screenshotTool() mcp.Tool {
	return mcp.NewTool("take_screenshot",
		mcp.WithDescription("Capture a page as a PNG/JPEG image or a PDF document."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Page to capture."),
		),
		mcp.WithBoolean("full_page",
			mcp.Description("Capture the whole scrollable page instead of the viewport."),
		),
		mcp.WithString("selector",
			mcp.Description("CSS selector of a single element to capture."),
		),
		mcp.WithString("format",
			mcp.Description("Capture output."),
			mcp.Enum("png", "jpeg", "pdf"),
		),
		mcp.WithNumber("quality",
			mcp.Description("JPEG quality."),
			mcp.Min(1), mcp.Max(100),
		),
		mcp.WithNumber("width",
			mcp.Description("Viewport width override in pixels."),
		),
		mcp.WithNumber("height",
			mcp.Description("Viewport height override in pixels."),
		),
		mcp.WithString("wait_until",
			mcp.Description("Navigation settle state before capturing."),
			mcp.Enum("load", "domcontentloaded", "networkidle"),
		),
	)
}
