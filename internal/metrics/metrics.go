// Package metrics exposes solver activity as Prometheus metrics.
//
// Each Collector owns a private registry so that several runs in one
// process, and parallel tests, never share counters.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/roach88/adrfem/internal/solver"
)

const namespace = "adrfem"

// Step outcome label values.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Collector records solver events. It implements solver.Observer.
type Collector struct {
	registry *prometheus.Registry

	runs             *prometheus.CounterVec
	steps            *prometheus.CounterVec
	newtonIterations prometheus.Histogram
	linearIterations prometheus.Counter
	residual         prometheus.Gauge
	stepSeconds      prometheus.Histogram
	outputs          prometheus.Counter
	simTime          prometheus.Gauge
}

var _ solver.Observer = (*Collector)(nil)

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished runs by status",
			},
			[]string{"status"}, // status: "succeeded|failed"
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Attempted time steps by outcome",
			},
			[]string{"outcome"},
		),
		newtonIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "newton_iterations",
				Help:      "Newton iterations per attempted step",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		linearIterations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "linear_iterations_total",
				Help:      "Krylov iterations summed over all Newton iterations",
			},
		),
		residual: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_residual",
				Help:      "Final Newton residual norm of the last accepted step",
			},
		),
		stepSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_seconds",
				Help:      "Wall time per attempted step",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8), // 100us to 1.6s
			},
		),
		outputs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outputs_total",
				Help:      "Solution snapshots written",
			},
		),
		simTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "simulation_time",
				Help:      "Simulation time of the last output",
			},
		),
	}
	c.registry.MustRegister(c.runs, c.steps, c.newtonIterations, c.linearIterations,
		c.residual, c.stepSeconds, c.outputs, c.simTime)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the collector's metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// BeginRun implements solver.Observer.
func (c *Collector) BeginRun(solver.RunInfo) error { return nil }

// OnStep implements solver.Observer.
func (c *Collector) OnStep(step solver.StepReport) error {
	outcome := OutcomeAccepted
	if !step.Accepted {
		outcome = OutcomeRejected
	}
	c.steps.WithLabelValues(outcome).Inc()
	c.newtonIterations.Observe(float64(step.Newton.Iterations))
	c.linearIterations.Add(float64(step.Newton.LinearIterations))
	c.stepSeconds.Observe(step.Duration.Seconds())
	if step.Accepted {
		c.residual.Set(step.Newton.Residual)
	}
	return nil
}

// OnOutput implements solver.Observer.
func (c *Collector) OnOutput(snap solver.Snapshot) error {
	c.outputs.Inc()
	c.simTime.Set(snap.T)
	return nil
}

// EndRun implements solver.Observer.
func (c *Collector) EndRun(_ solver.Result, runErr error) error {
	status := "succeeded"
	if runErr != nil {
		status = "failed"
	}
	c.runs.WithLabelValues(status).Inc()
	return nil
}

// WriteSummary writes one "name{labels} value" line per sample, sorted by
// name. Histograms contribute their _count and _sum.
func (c *Collector) WriteSummary(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			lines = append(lines, sampleLines(mf.GetName(), mf.GetType(), m)...)
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func sampleLines(name string, typ dto.MetricType, m *dto.Metric) []string {
	labels := formatLabels(m.GetLabel())
	switch typ {
	case dto.MetricType_COUNTER:
		return []string{fmt.Sprintf("%s%s %g", name, labels, m.GetCounter().GetValue())}
	case dto.MetricType_GAUGE:
		return []string{fmt.Sprintf("%s%s %g", name, labels, m.GetGauge().GetValue())}
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return []string{
			fmt.Sprintf("%s_count%s %d", name, labels, h.GetSampleCount()),
			fmt.Sprintf("%s_sum%s %g", name, labels, h.GetSampleSum()),
		}
	default:
		return nil
	}
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s=%q", p.GetName(), p.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
