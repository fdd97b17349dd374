package orkestro

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InterceptorContext is the mutable, phase-tagged handle passed to
// interceptor hooks. One context is created per attempt and discarded when
// the attempt ends. It carries the request, response and error for the
// active phase only; hooks may inspect or rewrite them but do not steer
// control flow.
type InterceptorContext struct {
	// Context is the attempt context. A hook may replace it (e.g. to attach
	// a trace span); subsequent phases of the attempt observe the
	// replacement.
	Context context.Context

	Phase     Phase
	Operation *Operation
	Attempt   int

	Request  *http.Request
	Response *http.Response
	Err      error

	values map[string]any
}

// Set stores an attempt-scoped value, typically shared between a Before and
// its matching After hook.
func (c *InterceptorContext) Set(key string, v any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = v
}

// Get returns an attempt-scoped value.
func (c *InterceptorContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Interceptor observes phase boundaries. BeforePhase hooks run in
// registration order before each phase, AfterPhase hooks in reverse order
// after it.
type Interceptor interface {
	Name() string
	BeforePhase(ictx *InterceptorContext)
	AfterPhase(ictx *InterceptorContext)
}

// InterceptorFuncs adapts plain functions to the Interceptor interface.
type InterceptorFuncs struct {
	InterceptorName string
	Before          func(ictx *InterceptorContext)
	After           func(ictx *InterceptorContext)
}

// Name implements the Interceptor interface.
func (i InterceptorFuncs) Name() string { return i.InterceptorName }

// BeforePhase implements the Interceptor interface.
func (i InterceptorFuncs) BeforePhase(ictx *InterceptorContext) {
	if i.Before != nil {
		i.Before(ictx)
	}
}

// AfterPhase implements the Interceptor interface.
func (i InterceptorFuncs) AfterPhase(ictx *InterceptorContext) {
	if i.After != nil {
		i.After(ictx)
	}
}

// runBefore invokes BeforePhase hooks in registration order.
func runBefore(interceptors []Interceptor, ictx *InterceptorContext) {
	for _, i := range interceptors {
		i.BeforePhase(ictx)
	}
}

// runAfter invokes AfterPhase hooks in reverse registration order.
func runAfter(interceptors []Interceptor, ictx *InterceptorContext) {
	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptors[i].AfterPhase(ictx)
	}
}

const tracerName = "github.com/ambiyansyah-risyal/orkestro"

const spanContextKey = "orkestro.trace.span"

// TracingInterceptor emits one OpenTelemetry span per dispatch, annotated
// with the operation, attempt number and response status. The span context
// replaces the attempt context so downstream transports propagate it.
type TracingInterceptor struct {
	tracer trace.Tracer
}

// NewTracingInterceptor creates a tracing interceptor using the global
// tracer provider.
func NewTracingInterceptor() *TracingInterceptor {
	return &TracingInterceptor{tracer: otel.Tracer(tracerName)}
}

// NewTracingInterceptorWithTracer creates a tracing interceptor with an
// explicit tracer.
func NewTracingInterceptorWithTracer(tracer trace.Tracer) *TracingInterceptor {
	return &TracingInterceptor{tracer: tracer}
}

// Name implements the Interceptor interface.
func (*TracingInterceptor) Name() string { return "tracing" }

// BeforePhase implements the Interceptor interface.
func (t *TracingInterceptor) BeforePhase(ictx *InterceptorContext) {
	if ictx.Phase != PhaseDispatch {
		return
	}
	name := ictx.Operation.Name
	if ictx.Operation.ServiceID != "" {
		name = ictx.Operation.ServiceID + "." + name
	}
	ctx, span := t.tracer.Start(ictx.Context, name, trace.WithAttributes(
		attribute.String("rpc.service", ictx.Operation.ServiceID),
		attribute.String("rpc.method", ictx.Operation.Name),
		attribute.Int("rpc.attempt", ictx.Attempt),
	))
	ictx.Context = ctx
	ictx.Set(spanContextKey, span)
}

// AfterPhase implements the Interceptor interface.
func (t *TracingInterceptor) AfterPhase(ictx *InterceptorContext) {
	if ictx.Phase != PhaseDispatch {
		return
	}
	v, ok := ictx.Get(spanContextKey)
	if !ok {
		return
	}
	span := v.(trace.Span)
	if ictx.Response != nil {
		span.SetAttributes(attribute.Int("http.status_code", ictx.Response.StatusCode))
	}
	if ictx.Err != nil {
		span.RecordError(ictx.Err)
		span.SetStatus(codes.Error, fmt.Sprintf("dispatch failed: %v", ictx.Err))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
