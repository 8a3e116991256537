// Package workflow runs the snapraid maintenance phases in order and
// decides, from each phase's outcome, whether the next one runs.
package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/deixis/snapraid-runner/internal/config"
	"github.com/deixis/snapraid-runner/internal/runner"
)

// CommandRunner executes one snapraid subcommand.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, command string, args []string, ignoreErrors bool) (*runner.Result, error)
}

// Engine holds shared dependencies for a run. Config is treated as
// read-only for the lifetime of the Engine.
type Engine struct {
	Config *config.Config
	Runner CommandRunner
	Logger *slog.Logger
}

// Phase names one step of a run and doubles as the snapraid subcommand.
type Phase string

const (
	PhaseTouch Phase = "touch"
	PhaseDiff  Phase = "diff"
	PhaseSync  Phase = "sync"
	PhaseScrub Phase = "scrub"
)

// Phases lists every phase in execution order.
var Phases = []Phase{PhaseTouch, PhaseDiff, PhaseSync, PhaseScrub}

// scrubArgs returns the phase-specific arguments for scrub.
func (e *Engine) scrubArgs() []string {
	return []string{
		"--percentage", fmt.Sprint(e.Config.Scrub.Percentage),
		"--older-than", fmt.Sprint(e.Config.Scrub.OlderThan),
	}
}

// preflight verifies the snapraid config file exists before any phase runs.
func (e *Engine) preflight() error {
	path := e.Config.Snapraid.Config
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("snapraid config does not exist at %s", path)
	}
	return nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
