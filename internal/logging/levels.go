// Package logging builds the slog logger shared by the runner: console,
// optional rotating log file and an in-memory transcript for notifications.
package logging

import (
	"fmt"
	"log/slog"
)

// Severities for captured subprocess output. They sit between the standard
// levels so that a sink at INFO keeps tool stderr but drops tool stdout.
const (
	LevelOutput slog.Level = -2 // subprocess stdout
	LevelOutErr slog.Level = 2  // subprocess stderr
)

// LevelName returns the fixed-width label used in log lines.
func LevelName(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "DEBUG"
	case LevelOutput:
		return "OUTPUT"
	case slog.LevelInfo:
		return "INFO"
	case LevelOutErr:
		return "OUTERR"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return l.String()
	}
}

func paddedLevel(l slog.Level) string {
	name := LevelName(l)
	if len(name) > 6 {
		name = name[:6]
	}
	return fmt.Sprintf("%-6s", name)
}
