package loop

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks decision-loop counters and latencies.
type Metrics struct {
	Iterations         prometheus.Counter
	GoalsFinished      *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	ModelLatency       prometheus.Histogram
}

// NewMetrics registers and returns the loop's metric collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deskagent_loop_iterations_total",
			Help: "Count of decision-loop iterations started.",
		}),
		GoalsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskagent_goals_finished_total",
			Help: "Count of goals finished, by outcome.",
		}, []string{"outcome"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskagent_decision_validation_failures_total",
			Help: "Count of rejected model decisions, by error name.",
		}, []string{"error"}),
		ModelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deskagent_model_latency_seconds",
			Help:    "Latency of model decision calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Iterations, m.GoalsFinished, m.ValidationFailures, m.ModelLatency)
	}
	return m
}
