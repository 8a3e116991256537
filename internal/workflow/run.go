package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/snapraid-runner/internal/runner"
	"github.com/google/uuid"
)

// State is a node of the run state machine:
// Start → Touch? → Diff → GateCheck → Sync? → Scrub? → Done, with any
// state able to move to Failed.
type State string

const (
	StateStart     State = "start"
	StateTouch     State = "touch"
	StateDiff      State = "diff"
	StateGateCheck State = "gate-check"
	StateSync      State = "sync"
	StateScrub     State = "scrub"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Phase record statuses beyond runner.Status.
const (
	PhaseSkipped = "skipped"
)

// PhaseRecord holds the outcome of a single phase.
type PhaseRecord struct {
	Phase    Phase
	Status   string // ok, ignored-failure, fatal, skipped
	ExitCode int
	Duration time.Duration
	Detail   string // skip reason or error message
}

// Outcome is the result of a whole run. It is built once by Run and then
// handed to the finalizer.
type Outcome struct {
	RunID      string
	Success    bool
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	Diff       *DiffCounts // nil if diff never completed
	Phases     []PhaseRecord
	States     []State // every state entered, in order
}

// Invoked reports whether the phase reached the external tool.
func (o *Outcome) Invoked(p Phase) bool {
	for _, r := range o.Phases {
		if r.Phase == p && r.Status != PhaseSkipped {
			return true
		}
	}
	return false
}

func (o *Outcome) recorded(p Phase) bool {
	for _, r := range o.Phases {
		if r.Phase == p {
			return true
		}
	}
	return false
}

// State returns the last state entered.
func (o *Outcome) State() State {
	if len(o.States) == 0 {
		return StateStart
	}
	return o.States[len(o.States)-1]
}

// ThresholdError aborts a run whose diff removes more files than allowed.
type ThresholdError struct {
	Threshold int
	Removed   int
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("Deleted files exceed delete threshold of %d, aborting", e.Threshold)
}

// PanicError wraps a value recovered from a panic during a run.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("Run failed due to unhandled exception: %v", e.Value)
}

// Run executes the configured phases in order, stopping at the first
// fatal condition. It never panics and always returns a terminal Outcome:
// Success is true only when the run reached Done.
func (e *Engine) Run(ctx context.Context) (out *Outcome) {
	log := e.logger()
	out = &Outcome{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	out.States = append(out.States, StateStart)

	defer func() {
		if v := recover(); v != nil {
			e.fail(out, &PanicError{Value: v})
		}
		out.FinishedAt = time.Now()
	}()

	banner(log.Info, 60)
	log.Info("Run started", "run_id", out.RunID)
	banner(log.Info, 60)

	if err := e.preflight(); err != nil {
		e.fail(out, err)
		return out
	}

	if e.Config.Snapraid.Touch {
		e.enter(out, StateTouch)
		if _, err := e.runPhase(ctx, out, PhaseTouch, nil, false); err != nil {
			e.fail(out, err)
			return out
		}
	} else {
		e.skip(out, PhaseTouch, "touch disabled")
	}

	e.enter(out, StateDiff)
	res, err := e.runPhase(ctx, out, PhaseDiff, nil, true)
	if err != nil {
		e.fail(out, err)
		return out
	}

	e.enter(out, StateGateCheck)
	counts := ClassifyDiff(res.Lines)
	out.Diff = &counts
	log.Info(strings.Repeat("*", 60))
	log.Info("Diff results: " + counts.String())
	log.Info(strings.Repeat("*", 60))

	if th := e.Config.Snapraid.DeleteThreshold; e.Config.DeleteThresholdEnabled() && counts.Remove > th {
		e.skip(out, PhaseSync, "delete threshold exceeded")
		e.skip(out, PhaseScrub, "run aborted")
		e.fail(out, &ThresholdError{Threshold: th, Removed: counts.Remove})
		return out
	}

	if counts.Total() == 0 {
		log.Info("No changes detected, no sync required")
		e.skip(out, PhaseSync, "no changes")
	} else {
		e.enter(out, StateSync)
		if _, err := e.runPhase(ctx, out, PhaseSync, nil, false); err != nil {
			e.fail(out, err)
			return out
		}
	}

	if e.Config.Scrub.Enabled {
		e.enter(out, StateScrub)
		if _, err := e.runPhase(ctx, out, PhaseScrub, e.scrubArgs(), false); err != nil {
			e.fail(out, err)
			return out
		}
	} else {
		e.skip(out, PhaseScrub, "scrub disabled")
	}

	log.Info("All done")
	e.enter(out, StateDone)
	out.Success = true
	return out
}

// runPhase logs the phase banner, invokes the subcommand and records the
// result. The returned error is non-nil for every fatal condition.
func (e *Engine) runPhase(ctx context.Context, out *Outcome, p Phase, args []string, ignoreErrors bool) (*runner.Result, error) {
	log := e.logger()
	banner(log.Info, 30)
	log.Info(fmt.Sprintf("Running %s...", p))
	banner(log.Info, 30)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s not started: %w", p, err)
	}

	res, err := e.Runner.Run(ctx, string(p), args, ignoreErrors)
	rec := PhaseRecord{Phase: p}
	if res != nil {
		rec.Status = res.Status.String()
		rec.ExitCode = res.ExitCode
		rec.Duration = res.Duration
	}
	if err != nil {
		rec.Status = runner.StatusFatal.String()
		rec.Detail = err.Error()
		var pe *runner.PhaseExecutionError
		if errors.As(err, &pe) {
			rec.ExitCode = pe.ExitCode
		}
	}
	out.Phases = append(out.Phases, rec)

	if err != nil {
		return nil, err
	}
	if res.Status == runner.StatusIgnoredFailure {
		log.Info(fmt.Sprintf("snapraid %s exited with status %d (ignored)", p, res.ExitCode))
	}
	return res, nil
}

func (e *Engine) enter(out *Outcome, s State) {
	out.States = append(out.States, s)
	e.logger().Debug("state", "run_id", out.RunID, "state", s)
}

func (e *Engine) skip(out *Outcome, p Phase, reason string) {
	out.Phases = append(out.Phases, PhaseRecord{Phase: p, Status: PhaseSkipped, Detail: reason})
}

// fail moves the run to Failed and records every phase not reached as
// skipped. Only the first error is kept.
func (e *Engine) fail(out *Outcome, err error) {
	if out.State() == StateFailed {
		return
	}
	e.logger().Error(err.Error())
	out.Err = err
	out.Success = false
	for _, p := range Phases {
		if !out.recorded(p) {
			e.skip(out, p, "run aborted")
		}
	}
	e.enter(out, StateFailed)
}

func banner(logf func(string, ...any), width int) {
	logf(strings.Repeat("=", width))
}
