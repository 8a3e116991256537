// Package report persists one structured record per run and serves them
// back, newest first, to the MCP tools.
package report

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Load when no record exists for a run ID.
var ErrNotFound = errors.New("run record not found")

// Store persists and retrieves run records.
type Store interface {
	Save(rec *RunRecord) error
	Load(runID string) (*RunRecord, error)
	// List returns at most limit records, newest first. A limit <= 0
	// returns every record.
	List(limit int) ([]*RunRecord, error)
}

// RunRecord is the persisted summary of one run.
type RunRecord struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Diff       map[string]int `json:"diff,omitempty"` // absent when diff never completed
	Phases     []PhaseRecord  `json:"phases"`
}

// PhaseRecord is the persisted outcome of one phase.
type PhaseRecord struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"` // ok, ignored-failure, fatal, skipped
	ExitCode   int     `json:"exit_code"`
	DurationMS float64 `json:"duration_ms"`
	Detail     string  `json:"detail,omitempty"`
}

// Duration returns the wall time of the whole run.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Phase returns the record for the named phase, or nil.
func (r *RunRecord) Phase(name string) *PhaseRecord {
	for i := range r.Phases {
		if r.Phases[i].Name == name {
			return &r.Phases[i]
		}
	}
	return nil
}

// Outcome returns "success" or "failure".
func (r *RunRecord) Outcome() string {
	if r.Success {
		return "success"
	}
	return "failure"
}

// Summary renders a one-line description of the record.
func (r *RunRecord) Summary() string {
	s := fmt.Sprintf("%s %s %s (%s)", r.ID, r.StartedAt.Format(time.RFC3339), r.Outcome(), r.Duration().Round(time.Second))
	if r.Diff != nil {
		s += fmt.Sprintf(" diff: +%d -%d ~%d >%d", r.Diff["add"], r.Diff["remove"], r.Diff["update"], r.Diff["move"])
	}
	if r.Error != "" {
		s += ": " + r.Error
	}
	return s
}
