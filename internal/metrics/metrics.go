// Package metrics collects engine counters in a private prometheus
// registry and optionally pushes them to a gateway on a fixed interval.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine reports. A nil *Metrics is
// valid and turns all recording into no-ops, so components can stay
// decoupled from observability wiring in tests.
type Metrics struct {
	registry *prometheus.Registry

	searchesTotal    prometheus.Counter
	queryTypeTotal   *prometheus.CounterVec
	searchLatency    prometheus.Histogram
	promptTokens     *prometheus.CounterVec
	completionTokens *prometheus.CounterVec
	apiErrors        *prometheus.CounterVec
	budgetSpentUSD   prometheus.Gauge
	recallPrecision  prometheus.Gauge
	falsePositives   prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.searchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "code_search_total",
		Help: "Total number of code searches",
	})
	m.queryTypeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "code_query_type_total",
		Help: "Searches by detected question category",
	}, []string{"type"})
	m.searchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "code_search_latency_seconds",
		Help: "Multi-channel search latency",
	})
	m.promptTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "model_tokens_prompt_total",
		Help: "Prompt tokens consumed per model",
	}, []string{"model"})
	m.completionTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "model_tokens_completion_total",
		Help: "Completion tokens consumed per model",
	}, []string{"model"})
	m.apiErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "model_api_errors_total",
		Help: "Remote model API errors by kind",
	}, []string{"type"})
	m.budgetSpentUSD = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "budget_spent_usd",
		Help: "Estimated budget spent (USD)",
	})
	m.recallPrecision = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recall_precision",
		Help: "Share of merged results above the relevance bar",
	})
	m.falsePositives = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "false_positives",
		Help: "Share of merged results below the relevance bar",
	})

	m.registry.MustRegister(
		m.searchesTotal, m.queryTypeTotal, m.searchLatency,
		m.promptTokens, m.completionTokens, m.apiErrors,
		m.budgetSpentUSD, m.recallPrecision, m.falsePositives,
	)
	return m
}

// Registry exposes the private registry for the pusher.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSearch records one search with its category and latency.
func (m *Metrics) ObserveSearch(category string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.searchesTotal.Inc()
	m.queryTypeTotal.WithLabelValues(category).Inc()
	m.searchLatency.Observe(elapsed.Seconds())
}

// AddUsage records token consumption for one remote call.
func (m *Metrics) AddUsage(model string, promptTokens, completionTokens int64) {
	if m == nil {
		return
	}
	m.promptTokens.WithLabelValues(model).Add(float64(promptTokens))
	m.completionTokens.WithLabelValues(model).Add(float64(completionTokens))
}

// APIError counts one remote call failure by kind.
func (m *Metrics) APIError(kind string) {
	if m == nil {
		return
	}
	m.apiErrors.WithLabelValues(kind).Inc()
}

// SetBudgetSpent mirrors the budget tracker's running total.
func (m *Metrics) SetBudgetSpent(usd float64) {
	if m == nil {
		return
	}
	m.budgetSpentUSD.Set(usd)
}

// relevanceBar separates "relevant" from noise when estimating precision.
const relevanceBar = 0.5

// ObserveMergeQuality updates the precision gauges from the final scores
// of one merged result set.
func (m *Metrics) ObserveMergeQuality(scores []float64) {
	if m == nil || len(scores) == 0 {
		return
	}
	relevant := 0
	for _, s := range scores {
		if s > relevanceBar {
			relevant++
		}
	}
	total := float64(len(scores))
	m.recallPrecision.Set(float64(relevant) / total)
	m.falsePositives.Set((total - float64(relevant)) / total)
}
