// Package mcp serves persisted snapraid-runner run records over the Model
// Context Protocol, so an assistant can answer "did last night's sync
// succeed?" without shell access.
package mcp

import (
	"context"
	_ "embed"
	"net/http"

	snapraidrunner "github.com/deixis/snapraid-runner"
	"github.com/deixis/snapraid-runner/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	store report.Store
}

// NewServer creates an MCP server with the run-record tools registered.
func NewServer(store report.Store) *mcp.Server {
	h := &handler{store: store}

	s := mcp.NewServer(&mcp.Implementation{Name: "snapraid-runner", Version: snapraidrunner.Version}, &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	})

	mcp.AddTool(s, &mcp.Tool{
		Name: "snapraid_runs",
		Description: `List recent snapraid-runner runs, newest first.

Each line shows the run ID, start time, outcome, duration and diff counts.
Use snapraid_run with a run ID for per-phase detail.`,
	}, h.runsHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "snapraid_run",
		Description: `Show one snapraid-runner run in detail: outcome, error, diff counts and
the status, exit code and duration of every phase (touch, diff, sync, scrub).`,
	}, h.runHandler)

	return s
}

// Serve runs the server on stdio until ctx is done.
func Serve(ctx context.Context, s *mcp.Server) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler exposes the server over streamable HTTP.
func HTTPHandler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, nil)
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
