package finalize

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deixis/snapraid-runner/internal/config"
	"github.com/deixis/snapraid-runner/internal/logging"
	"github.com/deixis/snapraid-runner/internal/notify"
	"github.com/deixis/snapraid-runner/internal/report"
	"github.com/deixis/snapraid-runner/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	success    bool
	transcript string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []sent
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, success bool, transcript string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, sent{success, transcript})
	return n.err
}

func outcome(success bool) *workflow.Outcome {
	start := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	out := &workflow.Outcome{
		RunID:      "run-" + map[bool]string{true: "ok", false: "bad"}[success],
		Success:    success,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Diff:       &workflow.DiffCounts{Add: 1},
		Phases: []workflow.PhaseRecord{
			{Phase: workflow.PhaseTouch, Status: workflow.PhaseSkipped, Detail: "touch disabled"},
			{Phase: workflow.PhaseDiff, Status: "ok", Duration: 1500 * time.Millisecond},
			{Phase: workflow.PhaseSync, Status: "ok", Duration: 30 * time.Second},
		},
	}
	if !success {
		out.Err = errors.New("command 'snapraid sync' returned non-zero exit status 1")
		out.Phases[2].Status = "fatal"
		out.Phases[2].ExitCode = 1
	}
	return out
}

func newFinalizer(cfg *config.Config, n notify.Notifier) (*Finalizer, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Finalizer{
		Config:     cfg,
		Logger:     slog.New(logging.NewLineHandler(&buf, logging.LevelOutput, false)),
		Transcript: func() string { return "transcript\n" },
		Notifier:   n,
	}, &buf
}

func TestFinish_ExitCodes(t *testing.T) {
	f, logs := newFinalizer(config.Default(), nil)
	assert.Equal(t, ExitSuccess, f.Finish(context.Background(), outcome(true)))
	assert.Contains(t, logs.String(), "[INFO  ] Run finished successfully.")

	f, logs = newFinalizer(config.Default(), nil)
	assert.Equal(t, ExitFailure, f.Finish(context.Background(), outcome(false)))
	assert.Contains(t, logs.String(), "[ERROR ] Run failed!")
	assert.Contains(t, logs.String(), strings.Repeat("=", 60))
}

func TestFinish_BannerLevels(t *testing.T) {
	rule := strings.Repeat("=", 60)

	f, logs := newFinalizer(config.Default(), nil)
	f.Finish(context.Background(), outcome(false))
	assert.Equal(t, 2, strings.Count(logs.String(), "[ERROR ] "+rule))
	assert.NotContains(t, logs.String(), "[INFO  ] "+rule)

	f, logs = newFinalizer(config.Default(), nil)
	f.Finish(context.Background(), outcome(true))
	assert.Equal(t, 2, strings.Count(logs.String(), "[INFO  ] "+rule))
	assert.NotContains(t, logs.String(), "[ERROR ]")
}

func TestFinish_NilOutcomeFails(t *testing.T) {
	f, _ := newFinalizer(config.Default(), nil)
	assert.Equal(t, ExitFailure, f.Finish(context.Background(), nil))
}

func TestFinish_OnlyOnce(t *testing.T) {
	cfg := config.Default()
	cfg.Email.SendOn = []string{config.SendOnSuccess, config.SendOnError}
	n := &recordingNotifier{}
	f, _ := newFinalizer(cfg, n)

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = f.Finish(context.Background(), outcome(false))
		}()
	}
	wg.Wait()
	// a later call with a different outcome still returns the first code
	assert.Equal(t, ExitFailure, f.Finish(context.Background(), outcome(true)))

	for _, c := range codes {
		assert.Equal(t, ExitFailure, c)
	}
	assert.Len(t, n.calls, 1)
}

func TestFinish_NotifyTriggers(t *testing.T) {
	tests := []struct {
		name    string
		sendOn  []string
		success bool
		want    int
	}{
		{"none on success", nil, true, 0},
		{"none on failure", nil, false, 0},
		{"error only, success", []string{"error"}, true, 0},
		{"error only, failure", []string{"error"}, false, 1},
		{"success only, success", []string{"success"}, true, 1},
		{"success only, failure", []string{"success"}, false, 0},
		{"both", []string{"success", "error"}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Email.SendOn = tt.sendOn
			n := &recordingNotifier{}
			f, _ := newFinalizer(cfg, n)

			f.Finish(context.Background(), outcome(tt.success))

			require.Len(t, n.calls, tt.want)
			if tt.want == 1 {
				assert.Equal(t, tt.success, n.calls[0].success)
				assert.Equal(t, "transcript\n", n.calls[0].transcript)
			}
		})
	}
}

func TestFinish_NotifyFailureDoesNotChangeOutcome(t *testing.T) {
	cfg := config.Default()
	cfg.Email.SendOn = []string{config.SendOnSuccess}
	n := &recordingNotifier{err: errors.New("connection refused")}
	f, logs := newFinalizer(cfg, n)

	assert.Equal(t, ExitSuccess, f.Finish(context.Background(), outcome(true)))
	assert.Contains(t, logs.String(), "Failed to send email err=connection refused")
	assert.Contains(t, logs.String(), "Run finished successfully.")
}

func TestFinish_NotifyPanicIsContained(t *testing.T) {
	cfg := config.Default()
	cfg.Email.SendOn = []string{config.SendOnError}
	n := notify.NotifierFunc(func(context.Context, bool, string) error { panic("smtp exploded") })
	f, logs := newFinalizer(cfg, n)

	assert.Equal(t, ExitFailure, f.Finish(context.Background(), outcome(false)))
	assert.Contains(t, logs.String(), "panic=smtp exploded")
}

func TestFinish_MissingSMTPHost(t *testing.T) {
	cfg := config.Default()
	cfg.Email.SendOn = []string{config.SendOnError}
	f, logs := newFinalizer(cfg, notify.NewSMTPNotifier(cfg))

	assert.Equal(t, ExitFailure, f.Finish(context.Background(), outcome(false)))
	assert.Contains(t, logs.String(), "Failed to send email because smtp host is not set")
}

func TestFinish_NotifyRunsAfterCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Email.SendOn = []string{config.SendOnError}
	var ctxErr error
	n := notify.NotifierFunc(func(ctx context.Context, _ bool, _ string) error {
		ctxErr = ctx.Err()
		return nil
	})
	f, _ := newFinalizer(cfg, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Finish(ctx, outcome(false))
	assert.NoError(t, ctxErr)
}

func TestFinish_SavesRecordAndMetrics(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Metrics.Textfile = filepath.Join(dir, "snapraid.prom")
	store := report.NewDiskStore(filepath.Join(dir, "runs"), 5)
	f, _ := newFinalizer(cfg, nil)
	f.Store = store

	f.Finish(context.Background(), outcome(false))

	rec, err := store.Load("run-bad")
	require.NoError(t, err)
	assert.False(t, rec.Success)
	assert.Equal(t, "command 'snapraid sync' returned non-zero exit status 1", rec.Error)
	assert.Equal(t, 1, rec.Diff["add"])
	require.NotNil(t, rec.Phase("sync"))
	assert.Equal(t, "fatal", rec.Phase("sync").Status)

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "snapraid_runner_last_run_success 0")
}

func TestFinish_StoreFailureIsLogged(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	f, logs := newFinalizer(config.Default(), nil)
	f.Store = report.NewDiskStore(filepath.Join(blocker, "runs"), 5)

	assert.Equal(t, ExitSuccess, f.Finish(context.Background(), outcome(true)))
	assert.Contains(t, logs.String(), "Failed to save run record")
}

func TestRecord(t *testing.T) {
	out := outcome(true)
	out.Diff = nil
	rec := Record(out)

	assert.Equal(t, "run-ok", rec.ID)
	assert.True(t, rec.Success)
	assert.Empty(t, rec.Error)
	assert.Nil(t, rec.Diff)
	require.Len(t, rec.Phases, 3)
	assert.Equal(t, "touch", rec.Phases[0].Name)
	assert.Equal(t, "skipped", rec.Phases[0].Status)
	assert.InDelta(t, 1500.0, rec.Phases[1].DurationMS, 0.001)
}
