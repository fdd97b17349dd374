package orkestro

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// captureLogger records debug lines for assertions.
type captureLogger struct {
	lines []string
}

func (c *captureLogger) log(msg string, keysAndValues ...any) {
	var b strings.Builder
	b.WriteString(msg)
	for _, kv := range keysAndValues {
		b.WriteByte(' ')
		if s, ok := kv.(string); ok {
			b.WriteString(s)
		}
	}
	c.lines = append(c.lines, b.String())
}

func (c *captureLogger) Debug(msg string, keysAndValues ...any) { c.log(msg, keysAndValues...) }
func (c *captureLogger) Info(msg string, keysAndValues ...any)  { c.log(msg, keysAndValues...) }
func (c *captureLogger) Warn(msg string, keysAndValues ...any)  { c.log(msg, keysAndValues...) }
func (c *captureLogger) Error(msg string, keysAndValues ...any) { c.log(msg, keysAndValues...) }

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()
	if cfg.Enabled {
		t.Error("debug must default to disabled")
	}
	if !cfg.LogAttempts || !cfg.LogRetries || !cfg.LogAuth || !cfg.LogTimeouts || !cfg.LogThrottling {
		t.Error("all event classes should default to selected")
	}
	if cfg.RequestIDGen == nil {
		t.Fatal("no request id generator")
	}
	if a, b := cfg.RequestIDGen(), cfg.RequestIDGen(); a == "" || a == b {
		t.Errorf("request ids not unique: %q, %q", a, b)
	}
}

func TestZapLoggerAdapter(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("attempt started", "attempt", 1)
	logger.Error("dispatch failed", "cause", "connection refused")

	entries := observed.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, want 2", len(entries))
	}
	if entries[0].Message != "attempt started" || entries[0].Level != zapcore.DebugLevel {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("second entry level = %v", entries[1].Level)
	}
	fields := entries[0].ContextMap()
	if fields["attempt"] != int64(1) {
		t.Errorf("attempt field = %v", fields["attempt"])
	}
}

func TestDebugLoggingEmitsRetryEvents(t *testing.T) {
	capture := &captureLogger{}
	rt := NewReplayTransport(
		ReplayExchange{Response: NewStringResponse(503, "busy", nil)},
		ReplayExchange{Response: NewStringResponse(200, `{"id":"w-1"}`, nil)},
	)
	client := newTestClient(t, rt,
		WithMaxAttempts(3),
		WithDebug(),
		WithLogger(capture),
		WithRequestIDGenerator(func() string { return "req-test" }),
	)

	if _, err := client.Execute(context.Background(), getWidgetOperation(bearerCandidates()...), "w-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	joined := strings.Join(capture.lines, "\n")
	for _, want := range []string{"Starting attempt", "Scheduling retry", "Auth scheme selected", "req-test"} {
		if !strings.Contains(joined, want) {
			t.Errorf("debug output missing %q:\n%s", want, joined)
		}
	}
}

func TestDebugDisabledEmitsNothing(t *testing.T) {
	capture := &captureLogger{}
	rt := NewReplayTransport(ReplayExchange{Response: NewStringResponse(200, `{"id":"w-1"}`, nil)})
	client := newTestClient(t, rt, WithLogger(capture))

	if _, err := client.Execute(context.Background(), getWidgetOperation(bearerCandidates()...), "w-1"); err != nil {
		t.Fatal(err)
	}
	if len(capture.lines) != 0 {
		t.Errorf("disabled debug logged %d lines: %v", len(capture.lines), capture.lines)
	}
}

func TestDebugEventClassFiltering(t *testing.T) {
	capture := &captureLogger{}
	cfg := DefaultDebugConfig()
	cfg.Enabled = true
	cfg.LogAttempts = false
	cfg.LogAuth = false
	rt := NewReplayTransport(
		ReplayExchange{Response: NewStringResponse(503, "busy", nil)},
		ReplayExchange{Response: NewStringResponse(200, `{"id":"w-1"}`, nil)},
	)
	client := newTestClient(t, rt,
		WithMaxAttempts(3),
		WithDebugConfig(cfg),
		WithLogger(capture),
	)

	if _, err := client.Execute(context.Background(), getWidgetOperation(bearerCandidates()...), "w-1"); err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(capture.lines, "\n")
	if strings.Contains(joined, "Starting attempt") {
		t.Error("attempt events logged despite LogAttempts=false")
	}
	if strings.Contains(joined, "Auth scheme selected") {
		t.Error("auth events logged despite LogAuth=false")
	}
	if !strings.Contains(joined, "Scheduling retry") {
		t.Errorf("retry events missing:\n%s", joined)
	}
}
