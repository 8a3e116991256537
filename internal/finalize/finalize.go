// Package finalize is the single exit path of a run: it persists the run
// record, exports metrics, sends the notification and reports the exit
// code. Nothing it does can change the outcome it was given.
package finalize

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/deixis/snapraid-runner/internal/config"
	"github.com/deixis/snapraid-runner/internal/metrics"
	"github.com/deixis/snapraid-runner/internal/notify"
	"github.com/deixis/snapraid-runner/internal/report"
	"github.com/deixis/snapraid-runner/internal/workflow"
)

// Exit codes returned by Finish.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Finalizer completes a run. Only the first call to Finish has effects.
type Finalizer struct {
	Config     *config.Config
	Logger     *slog.Logger
	Transcript func() string   // accumulated log; nil means empty
	Notifier   notify.Notifier // nil disables notification
	Store      report.Store    // nil disables run records

	once sync.Once
	code int
}

// Finish finalizes out and returns the process exit code. Later calls
// return the first code without repeating any side effect.
func (f *Finalizer) Finish(ctx context.Context, out *workflow.Outcome) int {
	f.once.Do(func() {
		f.code = f.finish(context.WithoutCancel(ctx), out)
	})
	return f.code
}

func (f *Finalizer) finish(ctx context.Context, out *workflow.Outcome) int {
	log := f.logger()
	success := out != nil && out.Success

	if out != nil {
		rec := Record(out)
		if f.Store != nil {
			if err := f.Store.Save(rec); err != nil {
				log.Warn("Failed to save run record", "run_id", rec.ID, "err", err)
			}
		}
		if path := f.Config.Metrics.Textfile; path != "" {
			if err := metrics.WriteTextfile(path, rec); err != nil {
				log.Warn("Failed to write metrics", "err", err)
			}
		}
	}

	if f.Notifier != nil && f.Config.NotifyOn(success) {
		f.notify(ctx, success)
	}

	if success {
		banner(log.Info, "Run finished successfully.")
		return ExitSuccess
	}
	banner(log.Error, "Run failed!")
	return ExitFailure
}

// notify sends the transcript. Errors and panics are logged and dropped.
func (f *Finalizer) notify(ctx context.Context, success bool) {
	log := f.logger()
	defer func() {
		if v := recover(); v != nil {
			log.Error("Failed to send email", "panic", v)
		}
	}()

	transcript := ""
	if f.Transcript != nil {
		transcript = f.Transcript()
	}
	err := f.Notifier.Notify(ctx, success, transcript)
	switch {
	case err == nil:
	case errors.Is(err, notify.ErrHostNotSet):
		log.Error("Failed to send email because smtp host is not set")
	default:
		log.Error("Failed to send email", "err", err)
	}
}

func banner(logf func(string, ...any), msg string) {
	logf(strings.Repeat("=", 60))
	logf(msg)
	logf(strings.Repeat("=", 60))
}

func (f *Finalizer) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Record converts a run outcome into its persisted form.
func Record(out *workflow.Outcome) *report.RunRecord {
	rec := &report.RunRecord{
		ID:         out.RunID,
		StartedAt:  out.StartedAt,
		FinishedAt: out.FinishedAt,
		Success:    out.Success,
		Phases:     make([]report.PhaseRecord, 0, len(out.Phases)),
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	if out.Diff != nil {
		rec.Diff = out.Diff.Map()
	}
	for _, p := range out.Phases {
		rec.Phases = append(rec.Phases, report.PhaseRecord{
			Name:       string(p.Phase),
			Status:     p.Status,
			ExitCode:   p.ExitCode,
			DurationMS: float64(p.Duration.Microseconds()) / 1000,
			Detail:     p.Detail,
		})
	}
	return rec
}
