package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/conduit/pkg/breaker"
	"mercator-hq/conduit/pkg/config"
)

// CircuitMetrics tracks breaker state.
//
// Metrics:
//   - conduit_circuit_state: 0 closed, 1 half-open, 2 open
//   - conduit_circuit_transitions_total: transitions by provider, from and to
type CircuitMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// NewCircuitMetrics creates and registers breaker metrics with the provided registry.
func NewCircuitMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *CircuitMetrics {
	cm := &CircuitMetrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),

		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "circuit_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"provider", "from", "to"},
		),
	}

	registry.MustRegister(cm.state, cm.transitions)
	return cm
}

// SetState sets the state gauge.
func (cm *CircuitMetrics) SetState(provider string, state breaker.State) {
	cm.state.WithLabelValues(provider).Set(stateValue(state))
}

// RecordTransition counts a transition and moves the state gauge.
func (cm *CircuitMetrics) RecordTransition(provider string, from, to breaker.State) {
	cm.transitions.WithLabelValues(provider, from.String(), to.String()).Inc()
	cm.SetState(provider, to)
}

func stateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}
