// Package metrics defines Prometheus metrics for the command dispatch core.
//
// Metrics are registered with the default Prometheus registry and served by
// the intake server on /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeRetry   = "retry"
	OutcomeCached  = "cached"
)

var (
	// CommandsTotal counts dispatched commands by kind and outcome.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevoice_commands_total",
			Help: "Total commands dispatched by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// RequestAttemptsTotal counts individual Home Assistant HTTP attempts.
	RequestAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevoice_ha_request_attempts_total",
			Help: "Total Home Assistant HTTP attempts by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	// EntityRefreshTotal counts entity map fetches by outcome.
	EntityRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevoice_entity_refresh_total",
			Help: "Total entity map fetches by outcome.",
		},
		[]string{"outcome"},
	)

	// IntentRequestsTotal counts LLM intent parses by provider and outcome.
	IntentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevoice_intent_requests_total",
			Help: "Total intent parse requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// IntakeRequestsTotal counts intake HTTP requests by route and status code.
	IntakeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevoice_intake_requests_total",
			Help: "Total intake HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	// EntitiesLoaded is the size of the current entity map.
	EntitiesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "homevoice_entities_loaded",
			Help: "Number of entities in the current entity map.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CommandsTotal,
		RequestAttemptsTotal,
		EntityRefreshTotal,
		IntentRequestsTotal,
		IntakeRequestsTotal,
		EntitiesLoaded,
	)
}

func RecordCommand(kind, outcome string) {
	CommandsTotal.WithLabelValues(kind, outcome).Inc()
}

func RecordAttempt(method, outcome string) {
	RequestAttemptsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordRefresh counts an entity map fetch and updates the loaded gauge.
func RecordRefresh(outcome string, entities int) {
	EntityRefreshTotal.WithLabelValues(outcome).Inc()
	EntitiesLoaded.Set(float64(entities))
}

func RecordIntent(provider, outcome string) {
	IntentRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

func RecordIntake(route string, code int) {
	IntakeRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
