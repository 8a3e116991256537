package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/snapraid-runner/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type runParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from snapraid_runs"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	rec, err := h.store.Load(params.RunID)
	if errors.Is(err, report.ErrNotFound) {
		return errorResult(fmt.Sprintf("No run %s. Use snapraid_runs to list recorded runs.", params.RunID))
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	return textResult(formatRun(rec))
}

func formatRun(r *report.RunRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", r.ID)
	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(r.Outcome()))
	fmt.Fprintf(&b, "Started: %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", r.Duration().Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.Error)
	}
	if r.Diff != nil {
		fmt.Fprintf(&b, "Diff: %d added, %d removed, %d moved, %d modified\n",
			r.Diff["add"], r.Diff["remove"], r.Diff["move"], r.Diff["update"])
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Phases:")
	for _, p := range r.Phases {
		switch p.Status {
		case "skipped":
			fmt.Fprintf(&b, "  %-6s skipped", p.Name)
		default:
			d := time.Duration(p.DurationMS * float64(time.Millisecond)).Round(time.Millisecond)
			fmt.Fprintf(&b, "  %-6s %s (exit %d, %s)", p.Name, p.Status, p.ExitCode, d)
		}
		if p.Detail != "" {
			fmt.Fprintf(&b, ": %s", p.Detail)
		}
		fmt.Fprintln(&b)
	}
	return b.String()
}
