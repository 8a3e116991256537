// Package metrics exports the outcome of the last run in the Prometheus
// text format, for pickup by the node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/deixis/snapraid-runner/internal/report"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "snapraid_runner"

// Collectors holds the gauges describing one run.
type Collectors struct {
	LastRunSuccess   prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
	LastRunDuration  prometheus.Gauge
	DiffChanges      *prometheus.GaugeVec
	PhaseExitCode    *prometheus.GaugeVec
	PhaseDuration    *prometheus.GaugeVec
}

// NewCollectors creates the gauges and registers them with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run completed successfully, 0 otherwise.",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		LastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		DiffChanges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "diff_changes",
			Help:      "Changes reported by the last diff, by category.",
		}, []string{"category"}),
		PhaseExitCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_exit_code",
			Help:      "Exit code of each phase invoked by the last run.",
		}, []string{"phase"}),
		PhaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of each phase invoked by the last run.",
		}, []string{"phase"}),
	}
	reg.MustRegister(
		c.LastRunSuccess,
		c.LastRunTimestamp,
		c.LastRunDuration,
		c.DiffChanges,
		c.PhaseExitCode,
		c.PhaseDuration,
	)
	return c
}

// Observe sets every gauge from rec. Skipped phases get no series.
func (c *Collectors) Observe(rec *report.RunRecord) {
	if rec.Success {
		c.LastRunSuccess.Set(1)
	} else {
		c.LastRunSuccess.Set(0)
	}
	c.LastRunTimestamp.Set(float64(rec.FinishedAt.Unix()))
	c.LastRunDuration.Set(rec.Duration().Seconds())

	for category, n := range rec.Diff {
		c.DiffChanges.WithLabelValues(category).Set(float64(n))
	}
	for _, p := range rec.Phases {
		if p.Status == "skipped" {
			continue
		}
		c.PhaseExitCode.WithLabelValues(p.Name).Set(float64(p.ExitCode))
		c.PhaseDuration.WithLabelValues(p.Name).Set(p.DurationMS / 1000)
	}
}

// WriteTextfile writes the gauges for rec to path. The file is replaced
// atomically so a concurrent scrape never sees a partial file.
func WriteTextfile(path string, rec *report.RunRecord) error {
	reg := prometheus.NewRegistry()
	NewCollectors(reg).Observe(rec)
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
