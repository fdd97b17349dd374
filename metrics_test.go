package orkestro

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCollector() (*MetricsCollector, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	return NewMetricsCollectorWithRegistry(registry), registry
}

func TestMetricsCollectorOperationLifecycle(t *testing.T) {
	mc, _ := newTestCollector()

	mc.RecordOperationStart("widgets", "GetWidget")
	if got := testutil.ToFloat64(mc.operationsInFlight.WithLabelValues("widgets", "GetWidget")); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}

	mc.RecordOperationEnd("widgets", "GetWidget", "ok", 20*time.Millisecond)
	if got := testutil.ToFloat64(mc.operationsInFlight.WithLabelValues("widgets", "GetWidget")); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(mc.operationsTotal.WithLabelValues("widgets", "GetWidget", "ok")); got != 1 {
		t.Errorf("operations total = %v, want 1", got)
	}
}

func TestMetricsCollectorCounters(t *testing.T) {
	mc, _ := newTestCollector()

	mc.RecordAttempt("widgets", "GetWidget")
	mc.RecordAttempt("widgets", "GetWidget")
	mc.RecordRetry("widgets", "GetWidget", 2)
	mc.RecordThrottle("widgets", "GetWidget")
	mc.RecordRetryBudgetExceeded("widgets", "GetWidget")
	mc.RecordError("widgets", "GetWidget", ErrClassDispatch)

	if got := testutil.ToFloat64(mc.attemptsTotal.WithLabelValues("widgets", "GetWidget")); got != 2 {
		t.Errorf("attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("widgets", "GetWidget", "2")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.throttlesTotal.WithLabelValues("widgets", "GetWidget")); got != 1 {
		t.Errorf("throttles = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.retryBudgetExceeded.WithLabelValues("widgets", "GetWidget")); got != 1 {
		t.Errorf("budget exceeded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues("widgets", "GetWidget", "DispatchFailure")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestMetricsCollectorCircuitBreakerState(t *testing.T) {
	mc, _ := newTestCollector()

	mc.RecordCircuitBreakerState("default", StateOpen)
	if got := testutil.ToFloat64(mc.circuitBreakerState.WithLabelValues("default")); got != float64(StateOpen) {
		t.Errorf("state gauge = %v, want %v", got, float64(StateOpen))
	}
}

func TestMetricsCollectorObservesIdentityCache(t *testing.T) {
	mc, _ := newTestCollector()
	cached := NewCachedIdentityResolver(
		StaticIdentity(NewIdentity(Token{Value: "t"})),
		WithCacheObserver(mc.RecordIdentityCacheEvent),
	)

	_, _ = cached.ResolveIdentity(context.Background())
	_, _ = cached.ResolveIdentity(context.Background())

	if got := testutil.ToFloat64(mc.identityCacheEvents.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.identityCacheEvents.WithLabelValues("hit")); got != 1 {
		t.Errorf("hit events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.identityCacheEvents.WithLabelValues("refresh")); got != 1 {
		t.Errorf("refresh events = %v, want 1", got)
	}
}

func TestExecuteRecordsMetrics(t *testing.T) {
	mc, _ := newTestCollector()
	rt := NewReplayTransport(
		ReplayExchange{Response: NewStringResponse(503, "busy", nil)},
		ReplayExchange{Response: NewStringResponse(200, `{"id":"w-1"}`, nil)},
	)
	client := newTestClient(t, rt, WithMaxAttempts(3), WithMetricsCollector(mc))

	if _, err := client.Execute(context.Background(), getWidgetOperation(bearerCandidates()...), "w-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := testutil.ToFloat64(mc.operationsTotal.WithLabelValues("widgets", "GetWidget", "ok")); got != 1 {
		t.Errorf("operations ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.attemptsTotal.WithLabelValues("widgets", "GetWidget")); got != 2 {
		t.Errorf("attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("widgets", "GetWidget", "2")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues("widgets", "GetWidget", "ResponseError")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}
