package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deixis/snapraid-runner/internal/logging"
)

// fakeSnapraid writes an executable shell script standing in for snapraid.
// The script sees the subcommand as $1.
func fakeSnapraid(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapraid")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestRunner(t *testing.T, exe string) (*Runner, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return &Runner{
		Executable: exe,
		ConfigPath: "/etc/snapraid.conf",
		Logger:     slog.New(logging.NewLineHandler(&buf, logging.LevelOutput, false)),
	}, &buf
}

func TestArgv(t *testing.T) {
	r := &Runner{Executable: "/usr/bin/snapraid", ConfigPath: "/etc/snapraid.conf"}
	got := strings.Join(r.Argv("scrub", []string{"--percentage", "12", "--older-than", "10"}), " ")
	want := "/usr/bin/snapraid scrub --percentage 12 --older-than 10 --conf /etc/snapraid.conf --verbose"
	if got != want {
		t.Errorf("Argv = %q, want %q", got, want)
	}
}

func TestRun_Success(t *testing.T) {
	exe := fakeSnapraid(t, `echo "cmd=$1"; echo "$@" ; echo "warn" >&2`)
	r, logs := newTestRunner(t, exe)

	res, err := r.Run(context.Background(), "diff", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 || res.Status != StatusOK {
		t.Errorf("ExitCode = %d, Status = %v", res.ExitCode, res.Status)
	}
	if len(res.Lines) != 2 {
		t.Fatalf("Lines = %q, want 2 stdout lines", res.Lines)
	}
	if res.Lines[0] != "cmd=diff" {
		t.Errorf("Lines[0] = %q", res.Lines[0])
	}
	if res.Lines[1] != "diff --conf /etc/snapraid.conf --verbose" {
		t.Errorf("Lines[1] = %q", res.Lines[1])
	}
	if res.ID == "" {
		t.Error("ID is empty")
	}

	out := logs.String()
	if !strings.Contains(out, "[OUTPUT] cmd=diff") {
		t.Errorf("stdout not logged at OUTPUT:\n%s", out)
	}
	if !strings.Contains(out, "[OUTERR] warn") {
		t.Errorf("stderr not logged at OUTERR:\n%s", out)
	}
}

func TestRun_StderrNotAccumulated(t *testing.T) {
	exe := fakeSnapraid(t, `echo "only stderr" >&2`)
	r, _ := newTestRunner(t, exe)

	res, err := r.Run(context.Background(), "sync", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Lines) != 0 {
		t.Errorf("Lines = %q, want none", res.Lines)
	}
}

func TestRun_NonZeroExitFatal(t *testing.T) {
	exe := fakeSnapraid(t, `echo "partial"; exit 3`)
	r, _ := newTestRunner(t, exe)

	res, err := r.Run(context.Background(), "sync", nil, false)
	var pe *PhaseExecutionError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PhaseExecutionError", err)
	}
	if pe.ExitCode != 3 || pe.Command != "sync" {
		t.Errorf("PhaseExecutionError = %+v", pe)
	}
	if res == nil || res.Status != StatusFatal {
		t.Errorf("result = %+v, want StatusFatal", res)
	}
}

func TestRun_NonZeroExitIgnored(t *testing.T) {
	exe := fakeSnapraid(t, `echo "add a"; echo "remove b"; exit 3`)
	r, _ := newTestRunner(t, exe)

	res, err := r.Run(context.Background(), "diff", nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.Status != StatusIgnoredFailure {
		t.Errorf("Status = %v, want ignored-failure", res.Status)
	}
	if len(res.Lines) != 2 {
		t.Errorf("Lines = %q, want 2", res.Lines)
	}
}

func TestRun_ExecutableNotFound(t *testing.T) {
	r, _ := newTestRunner(t, filepath.Join(t.TempDir(), "nonexistent-snapraid"))

	res, err := r.Run(context.Background(), "diff", nil, true)
	var se *StartError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StartError", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if !strings.Contains(err.Error(), "nonexistent-snapraid") {
		t.Errorf("error = %q, want to mention the executable", err)
	}
}

func TestRun_ProgressRedrawsStripped(t *testing.T) {
	exe := fakeSnapraid(t, `printf '10%%\r50%%\r100%% done\n'; printf 'plain\n'`)
	r, logs := newTestRunner(t, exe)

	res, err := r.Run(context.Background(), "sync", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Lines) != 2 || res.Lines[0] != "100% done" || res.Lines[1] != "plain" {
		t.Errorf("Lines = %q", res.Lines)
	}
	if strings.Contains(logs.String(), "50%") {
		t.Errorf("progress redraw leaked into log:\n%s", logs.String())
	}
}

func TestRun_LargeStderrDoesNotDeadlock(t *testing.T) {
	// 1 MB on stderr before anything on stdout; a sequential drain would
	// block the child on the full stderr pipe.
	exe := fakeSnapraid(t, `i=0; while [ $i -lt 16384 ]; do echo "----------------------------------------------------------------" >&2; i=$((i+1)); done; echo "done"`)
	r, _ := newTestRunner(t, exe)
	r.Timeout = 30 * time.Second

	res, err := r.Run(context.Background(), "scrub", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Lines) != 1 || res.Lines[0] != "done" {
		t.Errorf("Lines = %q", res.Lines)
	}
}

func TestRun_Timeout(t *testing.T) {
	exe := fakeSnapraid(t, `exec sleep 10`)
	r, _ := newTestRunner(t, exe)
	r.Timeout = 100 * time.Millisecond

	res, err := r.Run(context.Background(), "sync", nil, true)
	if err == nil {
		t.Fatal("expected error on timeout, even with ignoreErrors")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if res == nil || res.Status != StatusFatal {
		t.Errorf("result = %+v, want StatusFatal", res)
	}
}

func TestRun_TimeoutInterruptsBeforeKill(t *testing.T) {
	// The script saves state on SIGINT, the way snapraid does.
	exe := fakeSnapraid(t, `trap 'echo "saving state"; exit 130' INT
echo "started"
while :; do sleep 0.05; done`)
	r, logs := newTestRunner(t, exe)
	r.Timeout = 300 * time.Millisecond
	r.KillGrace = 10 * time.Second

	start := time.Now()
	res, err := r.Run(context.Background(), "sync", nil, false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %v; the interrupt should end it well before the kill grace", elapsed)
	}
	if res == nil || res.ExitCode != 130 {
		t.Fatalf("result = %+v, want exit 130 from the INT trap", res)
	}
	if len(res.Lines) != 2 || res.Lines[1] != "saving state" {
		t.Errorf("Lines = %q, want output written after the interrupt", res.Lines)
	}
	if !strings.Contains(logs.String(), "saving state") {
		t.Errorf("log missing post-interrupt output:\n%s", logs.String())
	}
}

func TestRun_KillAfterGrace(t *testing.T) {
	exe := fakeSnapraid(t, `trap '' INT
while :; do sleep 0.05; done`)
	r, _ := newTestRunner(t, exe)
	r.Timeout = 100 * time.Millisecond
	r.KillGrace = 200 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), "scrub", nil, false)
	if err == nil {
		t.Fatal("expected error for a phase that ignores the interrupt")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %v; the phase should be killed after the grace period", elapsed)
	}
}

func TestRun_SettlePause(t *testing.T) {
	exe := fakeSnapraid(t, `true`)
	r, _ := newTestRunner(t, exe)
	r.Settle = 200 * time.Millisecond

	start := time.Now()
	if _, err := r.Run(context.Background(), "touch", nil, false); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < r.Settle {
		t.Errorf("Run returned after %v, want at least %v", elapsed, r.Settle)
	}
}
