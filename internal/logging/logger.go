package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Config selects the sinks of a Logger.
type Config struct {
	Console io.Writer // defaults to os.Stdout

	File        string // empty disables the log file
	FileMaxSize int64  // bytes; 0 disables rotation
	FileBackups int

	Transcript      bool       // keep an in-memory copy for notifications
	TranscriptLevel slog.Level // minimum level copied into the transcript
}

// Logger is a slog.Logger together with the sinks it owns.
type Logger struct {
	*slog.Logger
	transcript *Transcript
	file       *RotatingFile
}

// New builds the logger. Every sink accepts captured tool output (OUTPUT);
// the transcript may be raised to INFO to leave tool stdout out.
func New(cfg Config) (*Logger, error) {
	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}

	handlers := []slog.Handler{
		NewLineHandler(cfg.Console, LevelOutput, isTerminal(cfg.Console)),
	}

	l := &Logger{}
	if cfg.File != "" {
		backups := cfg.FileBackups
		if backups == 0 {
			backups = DefaultBackups
		}
		f, err := OpenRotatingFile(cfg.File, cfg.FileMaxSize, backups)
		if err != nil {
			return nil, err
		}
		l.file = f
		handlers = append(handlers, NewLineHandler(f, LevelOutput, false))
	}
	if cfg.Transcript {
		l.transcript = &Transcript{}
		level := cfg.TranscriptLevel
		if level < LevelOutput {
			level = LevelOutput
		}
		handlers = append(handlers, NewLineHandler(l.transcript, level, false))
	}

	l.Logger = slog.New(NewMultiHandler(handlers...))
	return l, nil
}

// NewNop creates a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Transcript returns the accumulated notification transcript, or "" when
// the transcript sink is disabled.
func (l *Logger) Transcript() string {
	if l.transcript == nil {
		return ""
	}
	return l.transcript.String()
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
