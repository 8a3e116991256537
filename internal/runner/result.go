package runner

import (
	"fmt"
	"time"
)

// Status classifies a finished invocation.
type Status int

const (
	// StatusOK means the subprocess exited with status 0.
	StatusOK Status = iota
	// StatusIgnoredFailure means a non-zero exit the caller chose to ignore.
	StatusIgnoredFailure
	// StatusFatal means a non-zero exit (or an abort) the caller must act on.
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusIgnoredFailure:
		return "ignored-failure"
	case StatusFatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result holds the outcome of one subcommand invocation.
type Result struct {
	ID       string        // unique identifier for this invocation
	Command  string        // snapraid subcommand, e.g. "diff"
	Argv     []string      // full argument vector
	ExitCode int           // process exit code; -1 when killed
	Lines    []string      // cleaned stdout lines in arrival order
	Status   Status        // classification of ExitCode
	Duration time.Duration // wall time from start to exit
}

// PhaseExecutionError reports a subcommand that exited non-zero when the
// caller did not ask for errors to be ignored.
type PhaseExecutionError struct {
	Command  string
	ExitCode int
}

func (e *PhaseExecutionError) Error() string {
	return fmt.Sprintf("command 'snapraid %s' returned non-zero exit status %d", e.Command, e.ExitCode)
}

// StartError reports that the executable could not be located or started.
type StartError struct {
	Executable string
	Err        error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("the configured snapraid executable %q does not exist or is not a file: %v", e.Executable, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
