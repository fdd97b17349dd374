package orkestro

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the orchestration
// lifecycle. It is safe for concurrent use.
type MetricsCollector struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	operationsInFlight *prometheus.GaugeVec

	attemptsTotal *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec

	throttlesTotal      *prometheus.CounterVec
	retryBudgetExceeded *prometheus.CounterVec

	identityCacheEvents *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		operationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "orkestro_operations_total",
				Help: "Total number of orchestrated operations",
			},
			[]string{"service", "operation", "status"},
		),
		operationDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orkestro_operation_duration_seconds",
				Help:    "End-to-end duration of orchestrations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
		operationsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orkestro_operations_in_flight",
				Help: "Number of orchestrations currently in flight",
			},
			[]string{"service", "operation"},
		),
		attemptsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "orkestro_attempts_total",
				Help: "Total number of dispatch attempts",
			},
			[]string{"service", "operation"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "orkestro_retries_total",
				Help: "Total number of granted retries",
			},
			[]string{"service", "operation", "attempt"},
		),
		throttlesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "orkestro_throttles_total",
				Help: "Total number of throttling signals observed",
			},
			[]string{"service", "operation"},
		),
		retryBudgetExceeded: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "orkestro_retry_budget_exceeded_total",
				Help: "Retries abandoned because the shared budget was exhausted",
			},
			[]string{"service", "operation"},
		),
		identityCacheEvents: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "orkestro_identity_cache_events_total",
				Help: "Identity cache events by type (hit, miss, refresh)",
			},
			[]string{"event"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orkestro_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "orkestro_errors_total",
				Help: "Total number of classified errors",
			},
			[]string{"service", "operation", "class"},
		),
	}
}

// RecordOperationStart marks an orchestration as in flight.
func (mc *MetricsCollector) RecordOperationStart(service, operation string) {
	mc.operationsInFlight.WithLabelValues(service, operation).Inc()
}

// RecordOperationEnd finalizes in-flight, outcome and duration metrics.
func (mc *MetricsCollector) RecordOperationEnd(service, operation, status string, duration time.Duration) {
	mc.operationsInFlight.WithLabelValues(service, operation).Dec()
	mc.operationsTotal.WithLabelValues(service, operation, status).Inc()
	mc.operationDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordAttempt counts one dispatch attempt.
func (mc *MetricsCollector) RecordAttempt(service, operation string) {
	mc.attemptsTotal.WithLabelValues(service, operation).Inc()
}

// RecordRetry counts a granted retry for the given upcoming attempt number.
func (mc *MetricsCollector) RecordRetry(service, operation string, attempt int) {
	mc.retriesTotal.WithLabelValues(service, operation, strconv.Itoa(attempt)).Inc()
}

// RecordThrottle counts an observed throttling signal.
func (mc *MetricsCollector) RecordThrottle(service, operation string) {
	mc.throttlesTotal.WithLabelValues(service, operation).Inc()
}

// RecordRetryBudgetExceeded counts an abandoned retry.
func (mc *MetricsCollector) RecordRetryBudgetExceeded(service, operation string) {
	mc.retryBudgetExceeded.WithLabelValues(service, operation).Inc()
}

// RecordIdentityCacheEvent counts an identity cache hit, miss or refresh.
// The method satisfies CacheObserver's shape; wire it with
// WithCacheObserver(mc.RecordIdentityCacheEvent).
func (mc *MetricsCollector) RecordIdentityCacheEvent(event string) {
	mc.identityCacheEvents.WithLabelValues(event).Inc()
}

// RecordCircuitBreakerState publishes the circuit breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	mc.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordError counts a classified error.
func (mc *MetricsCollector) RecordError(service, operation string, class ErrorClass) {
	mc.errorsTotal.WithLabelValues(service, operation, string(class)).Inc()
}
