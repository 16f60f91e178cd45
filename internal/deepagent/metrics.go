package deepagent

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors the engine updates per step
// and per tool call, grounded on the teacher's internal/agent metrics
// registration style (counters/histograms registered once, reused across
// runs).
type Metrics struct {
	StepDuration   prometheus.Histogram
	ToolCallsTotal *prometheus.CounterVec
	StepsTotal     prometheus.Counter
	ErrorsTotal    *prometheus.CounterVec
}

// NewMetrics constructs and registers the engine's collectors against
// reg. Passing a fresh prometheus.NewRegistry() keeps test suites from
// colliding with the default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deepagent_step_duration_seconds",
			Help:    "Wall-clock duration of one engine step (model call plus tool execution).",
			Buckets: prometheus.DefBuckets,
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deepagent_tool_calls_total",
			Help: "Total tool invocations, labeled by tool name and result.",
		}, []string{"tool", "result"}),
		StepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deepagent_steps_total",
			Help: "Total engine steps executed across all runs.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deepagent_errors_total",
			Help: "Total errors emitted, labeled by error kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.StepDuration, m.ToolCallsTotal, m.StepsTotal, m.ErrorsTotal)
	}
	return m
}

// observeToolResult records one tool call outcome.
func (m *Metrics) observeToolResult(tool string, isError bool) {
	if m == nil {
		return
	}
	result := "ok"
	if isError {
		result = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, result).Inc()
}

// observeError records one emitted error event by kind.
func (m *Metrics) observeError(kind ErrorKind) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(kind)).Inc()
}
