// Package metrics defines the Prometheus instrumentation of the question
// pipeline, ingestion and LLM calls.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/brunobiangulo/fundgraph/llm"
)

const namespace = "fundgraph"

// Question outcomes.
const (
	OutcomeAnswered    = "answered"
	OutcomeNoQuery     = "no_query"
	OutcomeExecFailed  = "execution_failed"
	OutcomeUnavailable = "llm_unavailable"
	OutcomeError       = "error"
)

// Metrics holds the collectors.
type Metrics struct {
	// QuestionsTotal counts questions by outcome.
	QuestionsTotal *prometheus.CounterVec

	// RepairsTotal counts repair rules fired, by rule name.
	RepairsTotal *prometheus.CounterVec

	// QueryDuration measures SPARQL evaluation time.
	// Labels: status (ok, failed)
	QueryDuration *prometheus.HistogramVec

	QueryFailures prometheus.Counter

	// LLMLatency measures chat call latency.
	// Labels: status (ok, unavailable, error)
	LLMLatency *prometheus.HistogramVec

	LLMTokens *prometheus.CounterVec

	IngestedTriples prometheus.Counter

	// GraphTriples is the size of the loaded graph.
	GraphTriples prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		QuestionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ask",
			Name:      "questions_total",
			Help:      "Questions answered by outcome",
		}, []string{"outcome"}),
		RepairsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "rules_total",
			Help:      "Query repair rules fired by rule",
		}, []string{"rule"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sparql",
			Name:      "duration_seconds",
			Help:      "SPARQL evaluation latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"status"}),
		QueryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sparql",
			Name:      "failures_total",
			Help:      "SPARQL executions that failed",
		}),
		LLMLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "LLM chat call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
		}, []string{"status"}),
		LLMTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens used by direction",
		}, []string{"direction"}),
		IngestedTriples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "triples_total",
			Help:      "Triples produced by ingestion",
		}),
		GraphTriples: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "triples",
			Help:      "Triples in the loaded graph",
		}),
	}
}

// Question records the outcome of one Ask.
func (m *Metrics) Question(outcome string) {
	if m == nil {
		return
	}
	m.QuestionsTotal.WithLabelValues(outcome).Inc()
}

// Repairs records each fired repair rule.
func (m *Metrics) Repairs(rules []string) {
	if m == nil {
		return
	}
	for _, r := range rules {
		m.RepairsTotal.WithLabelValues(r).Inc()
	}
}

// Query records one SPARQL execution.
func (m *Metrics) Query(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "failed"
		m.QueryFailures.Inc()
	}
	m.QueryDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Ingested records a completed ingestion.
func (m *Metrics) Ingested(triples int) {
	if m == nil {
		return
	}
	m.IngestedTriples.Add(float64(triples))
}

// GraphLoaded sets the current graph size.
func (m *Metrics) GraphLoaded(triples int) {
	if m == nil {
		return
	}
	m.GraphTriples.Set(float64(triples))
}

// Instrument wraps p so that every chat call is timed and its tokens counted.
func Instrument(p llm.Provider, m *Metrics) llm.Provider {
	if m == nil {
		return p
	}
	return &instrumented{next: p, m: m}
}

type instrumented struct {
	next llm.Provider
	m    *Metrics
}

func (i *instrumented) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := i.next.Chat(ctx, req)
	status := "ok"
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		status = "unavailable"
	case err != nil:
		status = "error"
	}
	i.m.LLMLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if resp != nil {
		i.m.LLMTokens.WithLabelValues("prompt").Add(float64(resp.PromptTokens))
		i.m.LLMTokens.WithLabelValues("completion").Add(float64(resp.CompletionTokens))
	}
	return resp, err
}
