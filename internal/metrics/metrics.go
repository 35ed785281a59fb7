// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// Run outcomes used as the status label.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Collector captures metrics for pipeline runs and live streams.
type Collector struct {
	registry      *prometheus.Registry
	runsTotal     *prometheus.CounterVec
	stepsTotal    *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	alertsTotal   *prometheus.CounterVec
	openStreams   *prometheus.GaugeVec
}

// NewCollector initializes a new metrics registry with Go and process
// collectors.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "housecat_runs_total", Help: "Total number of runs by outcome"},
			[]string{"status", "triggered_by"},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "housecat_steps_total", Help: "Total number of executed steps"},
			[]string{"status"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "housecat_phase_duration_seconds",
				Help:    "Pipeline phase duration in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"phase"},
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "housecat_alerts_total", Help: "Alert webhook deliveries"},
			[]string{"status"},
		),
		openStreams: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "housecat_live_streams", Help: "Open live stream connections"},
			[]string{"transport"},
		),
	}

	registry.MustRegister(
		c.runsTotal, c.stepsTotal, c.phaseDuration, c.alertsTotal, c.openStreams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// PhaseCompleted records how long a pipeline phase took.
func (c *Collector) PhaseCompleted(phase domain.Phase, d time.Duration) {
	c.phaseDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
}

// StepCompleted counts one reconciled step.
func (c *Collector) StepCompleted(passed bool) {
	status := OutcomeFailed
	if passed {
		status = OutcomePassed
	}
	c.stepsTotal.WithLabelValues(status).Inc()
}

// ObserveRun counts a finished, errored or skipped run.
func (c *Collector) ObserveRun(status string, triggeredBy domain.TriggeredBy) {
	c.runsTotal.WithLabelValues(status, string(triggeredBy)).Inc()
}

// ObserveAlert counts a webhook delivery attempt.
func (c *Collector) ObserveAlert(delivered bool) {
	status := "failed"
	if delivered {
		status = "delivered"
	}
	c.alertsTotal.WithLabelValues(status).Inc()
}

// StreamOpened increments the open stream gauge and returns the matching
// decrement.
func (c *Collector) StreamOpened(transport string) func() {
	g := c.openStreams.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}
