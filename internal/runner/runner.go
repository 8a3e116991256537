// Package runner executes snapraid subcommands, streaming their output to
// the log while it is produced.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/deixis/snapraid-runner/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Runner invokes subcommands of one snapraid executable against one
// snapraid config file.
type Runner struct {
	Executable string
	ConfigPath string
	Timeout    time.Duration // per invocation; zero means no limit
	Settle     time.Duration // pause after both streams drained
	// KillGrace is how long snapraid may take to save its state after an
	// interrupt before it is killed. Zero means DefaultKillGrace.
	KillGrace time.Duration
	Logger    *slog.Logger
}

// DefaultKillGrace applies when Runner.KillGrace is zero.
const DefaultKillGrace = 2 * time.Minute

// Argv builds the full argument vector for command.
func (r *Runner) Argv(command string, args []string) []string {
	argv := make([]string, 0, len(args)+5)
	argv = append(argv, r.Executable, command)
	argv = append(argv, args...)
	argv = append(argv, "--conf", r.ConfigPath, "--verbose")
	return argv
}

// Run executes `snapraid <command> <args> --conf <config> --verbose`.
//
// Stdout lines are logged at OUTPUT and returned in Result.Lines; stderr
// lines are logged at OUTERR only. A non-zero exit yields a
// *PhaseExecutionError unless ignoreErrors is set, in which case the
// result is returned with StatusIgnoredFailure. A missing or unstartable
// executable yields a *StartError and no result.
func (r *Runner) Run(ctx context.Context, command string, args []string, ignoreErrors bool) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	argv := r.Argv(command, args)
	log := r.logger()

	// #nosec G204 -- executable and arguments come from the runner config
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// snapraid saves its progress on SIGINT; SIGKILL would lose it.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = r.killGrace()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	res := &Result{
		ID:      uuid.New().String(),
		Command: command,
		Argv:    argv,
	}
	log.Debug("executing", "invocation", res.ID, "argv", argv)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &StartError{Executable: r.Executable, Err: err}
	}

	// Once the grace period is over, stop reading even if children of a
	// killed snapraid still hold the pipes open.
	drained := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		select {
		case <-drained:
		case <-time.After(r.killGrace()):
			_ = stdout.Close()
			_ = stderr.Close()
		}
	})
	defer stop()

	// Both streams must be drained concurrently: a child blocked on a full
	// stderr pipe would otherwise never close stdout.
	var g errgroup.Group
	g.Go(func() error {
		lines, err := Tee(ctx, stdout, log, logging.LevelOutput, true)
		res.Lines = lines
		return err
	})
	g.Go(func() error {
		_, err := Tee(ctx, stderr, log, logging.LevelOutErr, false)
		return err
	})
	teeErr := g.Wait()
	close(drained)

	waitErr := cmd.Wait()
	res.Duration = time.Since(start)

	if r.Settle > 0 {
		time.Sleep(r.Settle)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("waiting for snapraid %s: %w", command, waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	if teeErr != nil {
		res.Status = StatusFatal
		return res, fmt.Errorf("reading snapraid %s output: %w", command, teeErr)
	}

	if ctxErr := ctx.Err(); ctxErr != nil && res.ExitCode != 0 {
		res.Status = StatusFatal
		return res, fmt.Errorf("snapraid %s aborted: %w", command, ctxErr)
	}

	switch {
	case res.ExitCode == 0:
		res.Status = StatusOK
	case ignoreErrors:
		res.Status = StatusIgnoredFailure
	default:
		res.Status = StatusFatal
		return res, &PhaseExecutionError{Command: command, ExitCode: res.ExitCode}
	}
	return res, nil
}

func (r *Runner) killGrace() time.Duration {
	if r.KillGrace > 0 {
		return r.KillGrace
	}
	return DefaultKillGrace
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
