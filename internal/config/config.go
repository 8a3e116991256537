// Package config loads and validates the snapraid-runner YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when -c is not given.
const DefaultPath = "snapraid-runner.yaml"

// Default values for optional settings.
const (
	DefaultSettle          = 300 * time.Millisecond
	DefaultEmailMaxSize    = 500 // KiB
	DefaultSubject         = "[SnapRAID]"
	DefaultScrubPercentage = 12
	DefaultScrubOlderThan  = 10
	DefaultReportKeep      = 30
)

// Notification triggers accepted in email.send_on.
const (
	SendOnSuccess = "success"
	SendOnError   = "error"
)

// ErrNotFound is returned by Load when the configuration file does not exist.
var ErrNotFound = errors.New("configuration file not found")

// Config holds the parsed snapraid-runner configuration.
type Config struct {
	Snapraid SnapraidConfig `yaml:"snapraid"`
	Logging  LoggingConfig  `yaml:"logging"`
	Email    EmailConfig    `yaml:"email"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Scrub    ScrubConfig    `yaml:"scrub"`
	Runner   RunnerConfig   `yaml:"runner"`
	Report   ReportConfig   `yaml:"report"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SnapraidConfig locates the snapraid binary and its own config file.
type SnapraidConfig struct {
	Executable      string `yaml:"executable"`
	Config          string `yaml:"config"`
	DeleteThreshold int    `yaml:"delete_threshold"` // negative disables the check
	Touch           bool   `yaml:"touch"`
}

// LoggingConfig controls the optional log file.
type LoggingConfig struct {
	File    string `yaml:"file"`
	MaxSize int    `yaml:"max_size"` // KiB; 0 disables rotation
}

// EmailConfig controls when and what gets mailed at the end of a run.
type EmailConfig struct {
	SendOn  []string `yaml:"send_on"`
	Subject string   `yaml:"subject"`
	From    string   `yaml:"from"`
	To      string   `yaml:"to"`
	Short   bool     `yaml:"short"`    // leave tool stdout out of the mail
	MaxSize int      `yaml:"max_size"` // KiB; 0 disables truncation
}

// SMTPConfig holds the mail transport settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	SSL      bool   `yaml:"ssl"` // implicit TLS
	TLS      bool   `yaml:"tls"` // STARTTLS
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ScrubConfig controls the scrub phase.
type ScrubConfig struct {
	Enabled    bool `yaml:"enabled"`
	Percentage int  `yaml:"percentage"`
	OlderThan  int  `yaml:"older_than"` // days
}

// RunnerConfig controls subprocess execution.
type RunnerConfig struct {
	RawTimeout string `yaml:"timeout"` // e.g. "6h"; empty means no limit
	RawSettle  string `yaml:"settle"`  // pause after output drains, e.g. "300ms"

	// RawKillGrace is how long an interrupted snapraid may take to save
	// its state before it is killed.
	RawKillGrace string `yaml:"kill_grace"`
}

// ReportConfig controls persisted run records.
type ReportConfig struct {
	Dir  string `yaml:"dir"`
	Keep int    `yaml:"keep"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Override holds command-line settings that take precedence over the file.
type Override struct {
	NoScrub bool
}

// Default returns a Config with every optional field at its default.
func Default() *Config {
	return &Config{
		Snapraid: SnapraidConfig{
			Executable:      "snapraid",
			Config:          "/etc/snapraid.conf",
			DeleteThreshold: -1,
		},
		Email: EmailConfig{
			Subject: DefaultSubject,
			MaxSize: DefaultEmailMaxSize,
		},
		Scrub: ScrubConfig{
			Percentage: DefaultScrubPercentage,
			OlderThan:  DefaultScrubOlderThan,
		},
		Report: ReportConfig{Keep: DefaultReportKeep},
	}
}

// Timeout returns the per-phase timeout, or zero when phases may run forever.
func (c *Config) Timeout() time.Duration {
	if c.Runner.RawTimeout != "" {
		d, err := time.ParseDuration(c.Runner.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// Settle returns the pause applied after both output streams drained.
func (c *Config) Settle() time.Duration {
	if c.Runner.RawSettle != "" {
		d, err := time.ParseDuration(c.Runner.RawSettle)
		if err == nil && d >= 0 {
			return d
		}
	}
	return DefaultSettle
}

// KillGrace returns how long an interrupted phase may run before it is
// killed, or zero for the runner's default.
func (c *Config) KillGrace() time.Duration {
	if c.Runner.RawKillGrace != "" {
		d, err := time.ParseDuration(c.Runner.RawKillGrace)
		if err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// DeleteThresholdEnabled reports whether the remove-count safety valve is armed.
func (c *Config) DeleteThresholdEnabled() bool {
	return c.Snapraid.DeleteThreshold >= 0
}

// NotifyOn reports whether a notification should be sent for the given outcome.
func (c *Config) NotifyOn(success bool) bool {
	want := SendOnError
	if success {
		want = SendOnSuccess
	}
	return slices.Contains(c.Email.SendOn, want)
}

// NotifyEnabled reports whether any outcome triggers a notification.
func (c *Config) NotifyEnabled() bool {
	return len(c.Email.SendOn) > 0
}

// EmailMaxBytes returns the transcript size cap in bytes, or zero for no cap.
func (c *Config) EmailMaxBytes() int {
	if c.Email.MaxSize > 0 {
		return c.Email.MaxSize * 1024
	}
	return 0
}

// LogMaxBytes returns the log file rotation size in bytes, or zero for no rotation.
func (c *Config) LogMaxBytes() int64 {
	if c.Logging.MaxSize > 0 {
		return int64(c.Logging.MaxSize) * 1024
	}
	return 0
}

// ReportKeep returns how many run records to retain.
func (c *Config) ReportKeep() int {
	if c.Report.Keep > 0 {
		return c.Report.Keep
	}
	return DefaultReportKeep
}

// Apply folds command-line overrides into the configuration.
func (c *Config) Apply(o Override) {
	if o.NoScrub {
		c.Scrub.Enabled = false
	}
}

// Validate checks values that would otherwise fail late, mid-run.
func (c *Config) Validate() error {
	if c.Snapraid.Executable == "" {
		return fmt.Errorf("snapraid.executable is required")
	}
	if c.Snapraid.Config == "" {
		return fmt.Errorf("snapraid.config is required")
	}
	if c.Scrub.Percentage < 0 || c.Scrub.Percentage > 100 {
		return fmt.Errorf("scrub.percentage must be between 0 and 100, got %d", c.Scrub.Percentage)
	}
	if c.Scrub.OlderThan < 0 {
		return fmt.Errorf("scrub.older_than must be >= 0, got %d", c.Scrub.OlderThan)
	}
	for _, s := range c.Email.SendOn {
		if s != SendOnSuccess && s != SendOnError {
			return fmt.Errorf("email.send_on: unknown trigger %q (want %q or %q)", s, SendOnSuccess, SendOnError)
		}
	}
	if c.Runner.RawTimeout != "" {
		if _, err := time.ParseDuration(c.Runner.RawTimeout); err != nil {
			return fmt.Errorf("runner.timeout: %w", err)
		}
	}
	if c.Runner.RawSettle != "" {
		if _, err := time.ParseDuration(c.Runner.RawSettle); err != nil {
			return fmt.Errorf("runner.settle: %w", err)
		}
	}
	if c.Runner.RawKillGrace != "" {
		if _, err := time.ParseDuration(c.Runner.RawKillGrace); err != nil {
			return fmt.Errorf("runner.kill_grace: %w", err)
		}
	}
	// net/smtp only sends credentials in the clear to a loopback relay.
	if c.SMTP.User != "" && !c.SMTP.SSL && !c.SMTP.TLS && !isLoopback(c.SMTP.Host) {
		return fmt.Errorf("smtp.user requires smtp.ssl or smtp.tls when smtp.host (%q) is not localhost", c.SMTP.Host)
	}
	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Load reads and validates the configuration file at path.
// Fields missing from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
