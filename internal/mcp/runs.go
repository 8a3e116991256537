package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/snapraid-runner/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultRunsLimit = 10

type runsParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs to list, newest first (default 10)"`
}

func (h *handler) runsHandler(ctx context.Context, req *mcp.CallToolRequest, params runsParams) (*mcp.CallToolResult, any, error) {
	if params.Limit < 0 {
		return errorResult("limit must not be negative")
	}
	limit := params.Limit
	if limit == 0 {
		limit = defaultRunsLimit
	}

	recs, err := h.store.List(limit)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to list runs: %v", err))
	}
	if len(recs) == 0 {
		return textResult("No runs recorded yet.")
	}
	return textResult(formatRuns(recs))
}

func formatRuns(recs []*report.RunRecord) string {
	var b strings.Builder

	failed := 0
	for _, r := range recs {
		if !r.Success {
			failed++
		}
	}
	fmt.Fprintf(&b, "Runs: %d (%d failed)\n\n", len(recs), failed)
	for _, r := range recs {
		fmt.Fprintf(&b, "  %s\n", r.Summary())
	}
	fmt.Fprintf(&b, "\nInspect with snapraid_run(run_id=%q).\n", recs[0].ID)
	return b.String()
}
