// Package metrics exposes loop counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

const namespace = "alphaloop"

// Registry holds every alphaloop metric on its own Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	Iterations   *prometheus.CounterVec
	Simulations  *prometheus.CounterVec
	ModelRetries prometheus.Counter
	StepDuration *prometheus.HistogramVec
	LastMetric   *prometheus.GaugeVec
	Evaluations  *prometheus.CounterVec
}

// NewRegistry creates and registers the metrics. Go runtime and process
// collectors are included.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "iterations_total",
				Help:      "Completed loop iterations by verdict",
			},
			[]string{"verdict"},
		),
		Simulations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulations_total",
				Help:      "Platform simulations by outcome",
			},
			[]string{"status"},
		),
		ModelRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_retries_total",
				Help:      "Failed model generation attempts",
			},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of each loop step in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"step", "result"},
		),
		LastMetric: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_metric",
				Help:      "Most recent value of each feedback metric",
			},
			[]string{"label"},
		),
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Result documents evaluated by mode and verdict",
			},
			[]string{"mode", "verdict"},
		),
	}

	r.reg.MustRegister(
		r.Iterations,
		r.Simulations,
		r.ModelRetries,
		r.StepDuration,
		r.LastMetric,
		r.Evaluations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// StepTimer measures one loop step.
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStep begins timing step.
func (r *Registry) StartStep(step string) *StepTimer {
	return &StepTimer{metrics: r, step: step, start: time.Now()}
}

// Stop records the step with result "ok" or "error".
func (st *StepTimer) Stop(err error) time.Duration {
	result := "ok"
	if err != nil {
		result = "error"
	}
	d := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(d.Seconds())

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", d).
		Msg("Loop step completed")
	return d
}

// Verdict labels an iteration outcome.
func Verdict(submittable bool) string {
	if submittable {
		return "submittable"
	}
	return "rejected"
}

// RecordIteration counts an iteration and remembers its feedback metrics.
func (r *Registry) RecordIteration(submittable bool, values map[string]float64) {
	r.Iterations.WithLabelValues(Verdict(submittable)).Inc()
	for label, v := range values {
		r.LastMetric.WithLabelValues(label).Set(v)
	}
}

// LastValue reads the current last_metric gauge for label.
func (r *Registry) LastValue(label string) (float64, bool) {
	g, err := r.LastMetric.GetMetricWithLabelValues(label)
	if err != nil {
		return 0, false
	}
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0, false
	}
	return m.GetGauge().GetValue(), true
}
