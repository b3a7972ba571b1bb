package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Claw256/mcp-google-search/pkg/extract"
	"github.com/Claw256/mcp-google-search/pkg/gate"
	"github.com/Claw256/mcp-google-search/pkg/logging"
	"github.com/Claw256/mcp-google-search/pkg/screenshot"
	"github.com/Claw256/mcp-google-search/pkg/search"
)

type handlers struct {
	deps   Deps
	logger *logging.Logger
}

func (h *handlers) search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return invalidArgs(err), nil
	}

	req := search.Request{
		Query:    query,
		Limit:    request.GetInt("limit", 0),
		Offset:   request.GetInt("offset", 0),
		Language: request.GetString("language", ""),
		Safe:     request.GetBool("safe", true),
		Type:     search.Type(request.GetString("type", "")),
	}

	response, err := h.deps.Searcher.Search(ctx, req)
	if err != nil {
		return h.fail("google_search", err), nil
	}

	payload, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return h.fail("google_search", err), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (h *handlers) extract(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageURL, err := request.RequireString("url")
	if err != nil {
		return invalidArgs(err), nil
	}

	req := extract.Request{
		URL:       pageURL,
		Format:    extract.Format(request.GetString("format", "")),
		Mode:      extract.Mode(request.GetString("mode", "")),
		Selector:  request.GetString("selector", ""),
		MaxTokens: request.GetInt("max_tokens", 0),
	}

	result, err := h.deps.Extractor.Extract(ctx, req)
	if err != nil {
		return h.fail("extract_webpage", err), nil
	}
	return mcp.NewToolResultText(renderExtract(result)), nil
}

func (h *handlers) screenshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageURL, err := request.RequireString("url")
	if err != nil {
		return invalidArgs(err), nil
	}

	req := screenshot.Request{
		URL:       pageURL,
		FullPage:  request.GetBool("full_page", false),
		Selector:  request.GetString("selector", ""),
		Format:    screenshot.Format(request.GetString("format", "")),
		Quality:   request.GetInt("quality", 0),
		Width:     request.GetInt("width", 0),
		Height:    request.GetInt("height", 0),
		WaitUntil: request.GetString("wait_until", ""),
	}

	result, err := h.deps.Capturer.Capture(ctx, req)
	if err != nil {
		return h.fail("take_screenshot", err), nil
	}

	caption := fmt.Sprintf("Captured %s as %s (%d bytes)", result.URL, result.Format, result.Bytes)
	if result.Format == screenshot.FormatPDF {
		return mcp.NewToolResultResource(caption, mcp.BlobResourceContents{
			URI:      fmt.Sprintf("capture://%s.pdf", uuid.NewString()),
			MIMEType: result.MIME,
			Blob:     result.Data,
		}), nil
	}
	return mcp.NewToolResultImage(caption, result.Data, result.MIME), nil
}

// fail maps a domain failure onto a tool error result. The typed error's
// string form carries the machine-readable code prefix.
func (h *handlers) fail(tool string, err error) *mcp.CallToolResult {
	e := gate.AsError(err)
	h.logger.Warnf("%s failed: %s", tool, e.Error())
	return mcp.NewToolResultError(e.Error())
}

// invalidArgs reports a missing or mistyped argument under the same code
// prefix scheme as domain validation failures.
func invalidArgs(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(gate.Invalid("%s", err.Error()).Error())
}

func renderExtract(result *extract.Result) string {
	var b strings.Builder
	if result.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", result.Title)
	}
	fmt.Fprintf(&b, "URL: %s\n\n", result.URL)
	b.WriteString(result.Content)
	return b.String()
}
