package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg      *prometheus.Registry
	requests *prometheus.CounterVec
	stages   *prometheus.CounterVec
	upstream *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medlist",
			Name:      "parse_requests_total",
			Help:      "Parse requests by adapter and outcome.",
		}, []string{"adapter", "outcome"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medlist",
			Name:      "recovery_stage_total",
			Help:      "Recovery stage that located the model JSON.",
		}, []string{"stage"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medlist",
			Name:      "upstream_duration_seconds",
			Help:      "Latency of model calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"engine", "outcome"}),
	}
	m.reg.MustRegister(
		m.requests, m.stages, m.upstream,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Request(adapter, outcome string) {
	m.requests.WithLabelValues(adapter, outcome).Inc()
}

// InitStages pre-creates the stage series so they export as 0 before the first hit.
func (m *Metrics) InitStages(stages ...string) {
	for _, st := range stages {
		m.stages.WithLabelValues(st)
	}
}

func (m *Metrics) Stage(stage string) {
	m.stages.WithLabelValues(stage).Inc()
}

func (m *Metrics) Upstream(engine string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.upstream.WithLabelValues(engine, outcome).Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
