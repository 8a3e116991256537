// Command snapraid-runner runs SnapRAID maintenance (touch, diff, sync,
// scrub) as one gated job and reports the outcome.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	snapraidrunner "github.com/deixis/snapraid-runner"
	"github.com/deixis/snapraid-runner/internal/config"
	"github.com/deixis/snapraid-runner/internal/finalize"
	"github.com/deixis/snapraid-runner/internal/logging"
	srmcp "github.com/deixis/snapraid-runner/internal/mcp"
	"github.com/deixis/snapraid-runner/internal/notify"
	"github.com/deixis/snapraid-runner/internal/report"
	"github.com/deixis/snapraid-runner/internal/runner"
	"github.com/deixis/snapraid-runner/internal/workflow"
	"github.com/spf13/cobra"
)

// exitSetup is returned for errors before the run starts.
const exitSetup = 2

// exitCode carries a run's exit status out of cobra.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and maps the result to a process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	var code exitCode
	switch {
	case err == nil:
		return finalize.ExitSuccess
	case errors.As(err, &code):
		return int(code)
	default:
		fmt.Fprintf(stderr, "snapraid-runner: %v\n", err)
		return exitSetup
	}
}

type options struct {
	configPath string
	noScrub    bool
	httpAddr   string
}

func newRootCmd() *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:   "snapraid-runner",
		Short: "Run SnapRAID touch, diff, sync and scrub as one gated job",
		Long: `snapraid-runner runs "snapraid diff" and only syncs when something changed,
aborting when more files were removed than the configured delete threshold.
An optional scrub follows a successful sync. The outcome is logged, recorded
and optionally mailed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMain(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath,
		"configuration file")
	root.Flags().BoolVar(&opts.noScrub, "no-scrub", false,
		"do not scrub (overrides config)")

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve recorded runs over the Model Context Protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return mcpMain(cmd.Context(), cmd.ErrOrStderr(), opts)
		},
	}
	mcpCmd.Flags().StringVar(&opts.httpAddr, "http", "",
		"serve streamable HTTP on address (e.g. :9090) instead of stdio")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), snapraidrunner.Version)
		},
	}

	root.AddCommand(mcpCmd, versionCmd)
	return root
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.Apply(config.Override{NoScrub: opts.noScrub})
	return cfg, nil
}

// --- run ---

func runMain(ctx context.Context, stdout io.Writer, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	transcriptLevel := logging.LevelOutput
	if cfg.Email.Short {
		transcriptLevel = slog.LevelInfo
	}
	logger, err := logging.New(logging.Config{
		Console:         stdout,
		File:            cfg.Logging.File,
		FileMaxSize:     cfg.LogMaxBytes(),
		Transcript:      cfg.NotifyEnabled(),
		TranscriptLevel: transcriptLevel,
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := &workflow.Engine{
		Config: cfg,
		Runner: &runner.Runner{
			Executable: cfg.Snapraid.Executable,
			ConfigPath: cfg.Snapraid.Config,
			Timeout:    cfg.Timeout(),
			Settle:     cfg.Settle(),
			KillGrace:  cfg.KillGrace(),
			Logger:     logger.Logger,
		},
		Logger: logger.Logger,
	}

	fin := &finalize.Finalizer{
		Config:     cfg,
		Logger:     logger.Logger,
		Transcript: logger.Transcript,
	}
	if cfg.NotifyEnabled() {
		fin.Notifier = notify.NewSMTPNotifier(cfg)
	}
	if cfg.Report.Dir != "" {
		fin.Store = report.NewDiskStore(cfg.Report.Dir, cfg.ReportKeep())
	}

	if code := fin.Finish(ctx, engine.Run(ctx)); code != finalize.ExitSuccess {
		return exitCode(code)
	}
	return nil
}

// --- mcp ---

func mcpMain(ctx context.Context, stderr io.Writer, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.Report.Dir == "" {
		return errors.New("report.dir is not set; there are no run records to serve")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := report.NewLRUStore(5, report.NewDiskStore(cfg.Report.Dir, cfg.ReportKeep()))
	server := srmcp.NewServer(store)

	if opts.httpAddr != "" {
		return serveHTTP(ctx, stderr, srmcp.HTTPHandler(server), opts.httpAddr)
	}
	return srmcp.Serve(ctx, server)
}

func serveHTTP(ctx context.Context, stderr io.Writer, handler http.Handler, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	fmt.Fprintf(stderr, "snapraid-runner: listening on %s\n", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
