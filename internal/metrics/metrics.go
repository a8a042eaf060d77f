// Package metrics holds the Prometheus collectors of the service. Each
// Registry owns its own prometheus.Registry so tests never collide on the
// global default.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	LLMCalls        *prometheus.CounterVec
	LLMCallDuration *prometheus.HistogramVec
	JSONParse       *prometheus.CounterVec
	LedgerWrites    *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		LLMCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphaseeker_llm_calls_total",
				Help: "Model calls by purpose and result",
			},
			[]string{"purpose", "result"},
		),
		LLMCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alphaseeker_llm_call_seconds",
				Help:    "Model call latency in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"purpose"},
		),
		JSONParse: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphaseeker_json_parse_total",
				Help: "Model output parses by the strategy that succeeded (or failed)",
			},
			[]string{"stage"},
		),
		LedgerWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphaseeker_ledger_writes_total",
				Help: "Ledger writes by mode and result",
			},
			[]string{"mode", "result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphaseeker_http_requests_total",
				Help: "HTTP requests by route and status class",
			},
			[]string{"route", "status"},
		),
	}
	r.reg.MustRegister(
		r.LLMCalls,
		r.LLMCallDuration,
		r.JSONParse,
		r.LedgerWrites,
		r.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ObserveLLMCall(purpose string, took time.Duration, err error) {
	if r == nil {
		return
	}
	r.LLMCalls.WithLabelValues(purpose, result(err)).Inc()
	r.LLMCallDuration.WithLabelValues(purpose).Observe(took.Seconds())
}

func (r *Registry) ObserveParse(stage string) {
	if r == nil {
		return
	}
	if stage == "" {
		stage = "failed"
	}
	r.JSONParse.WithLabelValues(stage).Inc()
}

// ObserveLedgerWrite matches ledger.WriteObserver.
func (r *Registry) ObserveLedgerWrite(mode string, err error) {
	if r == nil {
		return
	}
	r.LedgerWrites.WithLabelValues(mode, result(err)).Inc()
}

func (r *Registry) ObserveHTTP(route string, status int) {
	if r == nil {
		return
	}
	class := "5xx"
	switch {
	case status < 300:
		class = "2xx"
	case status < 400:
		class = "3xx"
	case status < 500:
		class = "4xx"
	}
	r.HTTPRequests.WithLabelValues(route, class).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
