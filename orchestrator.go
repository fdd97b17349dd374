package orkestro

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ExecuteOption customizes a single orchestration.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	plugins []Plugin
}

// WithOperationPlugins re-runs the component merge with operation-scoped
// plugins appended after all client plugins, so operation overrides always
// win.
func WithOperationPlugins(plugins ...Plugin) ExecuteOption {
	return func(cfg *executeConfig) {
		cfg.plugins = append(cfg.plugins, plugins...)
	}
}

// WithOperationLayer appends an operation-scoped config override layer.
func WithOperationLayer(layer *ConfigLayer) ExecuteOption {
	return func(cfg *executeConfig) {
		cfg.plugins = append(cfg.plugins, &StaticPlugin{ConfigLayer: layer})
	}
}

// Execute orchestrates one operation end to end: it resolves the endpoint,
// selects an auth scheme, resolves identity, signs, serializes, dispatches
// and deserializes, retrying failed attempts per policy until success,
// exhaustion or timeout. Errors are returned as *OperationError carrying
// the failing phase and, when available, the raw response.
func (c *Client) Execute(ctx context.Context, op *Operation, input any, opts ...ExecuteOption) (any, error) {
	start := time.Now()

	comps := c.components
	pref := c.preference
	if len(opts) > 0 {
		var cfg executeConfig
		for _, opt := range opts {
			opt(&cfg)
		}
		if len(cfg.plugins) > 0 {
			comps = buildComponents(c.allPlugins(), cfg.plugins)
			if err := comps.validate(); err != nil {
				return nil, err
			}
			var err error
			pref, err = resolveAuthSchemePreference(comps, c.configFileBytes)
			if err != nil {
				return nil, &OperationError{
					Class:   ErrClassConfiguration,
					Phase:   PhaseInit,
					Message: "resolving auth scheme preference for operation override",
					Err:     err,
				}
			}
		}
	}

	service, operation := operationLabels(op)
	if c.metrics != nil {
		c.metrics.RecordOperationStart(service, operation)
	}

	out, err := c.orchestrate(ctx, comps, pref, op, input, start)

	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordOperationEnd(service, operation, status, time.Since(start))
	}
	return out, err
}

func (c *Client) orchestrate(ctx context.Context, comps *RuntimeComponents, pref []string, op *Operation, input any, start time.Time) (any, error) {
	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	strategy := comps.RetryStrategy()
	maxAttempts := strategy.MaxAttempts()

	if d := comps.Timeouts().OperationTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	prep := &InterceptorContext{Context: ctx, Operation: op}

	// Init validates the operation descriptor before anything else runs.
	if err := c.runPhase(comps, prep, PhaseInit, func(context.Context) error {
		return validateOperation(op)
	}); err != nil {
		return nil, c.newError(op, PhaseInit, ErrClassConstruction, "invalid operation", err, 0, maxAttempts, requestID, start, nil)
	}

	// BuildInput serializes the typed input once per orchestration; every
	// attempt re-clones its request from this base.
	var baseReq *http.Request
	if err := c.runPhase(comps, prep, PhaseBuildInput, func(pctx context.Context) error {
		req, err := op.Serialize(pctx, input)
		if err != nil {
			return err
		}
		if req == nil || req.URL == nil {
			return errors.New("serializer produced no request")
		}
		baseReq = req
		return nil
	}); err != nil {
		return nil, c.newError(op, PhaseBuildInput, ErrClassConstruction, "serializing input", err, 0, maxAttempts, requestID, start, nil)
	}

	// A body we cannot replay pins the orchestration to a single attempt.
	retryable := !op.HasStreamingInput && (baseReq.Body == nil || baseReq.GetBody != nil)

	service, operation := operationLabels(op)
	var lastErr *OperationError
	for attempt := 1; ; attempt++ {
		if c.metrics != nil {
			c.metrics.RecordAttempt(service, operation)
		}
		c.debugLog("attempts", "Starting attempt",
			"requestID", requestID, "operation", operation, "attempt", attempt, "maxAttempts", maxAttempts)

		out, opErr := c.attempt(ctx, comps, pref, op, baseReq, attempt, maxAttempts, requestID, start)
		if opErr == nil {
			return out, nil
		}
		lastErr = opErr

		if c.metrics != nil {
			c.metrics.RecordError(service, operation, opErr.Class)
			if opErr.Class == ErrClassThrottling {
				c.metrics.RecordThrottle(service, operation)
			}
		}
		if opErr.Class == ErrClassThrottling {
			c.debugLog("throttling", "Throttled by service",
				"requestID", requestID, "operation", operation, "attempt", attempt)
		}

		if ctx.Err() != nil {
			lastErr = c.timeoutError(op, opErr, maxAttempts, requestID, start)
			break
		}
		if !retryable {
			break
		}

		delay, retry := strategy.ShouldRetry(opErr, attempt)
		if !retry {
			break
		}
		if budget := comps.RetryBudget(); budget != nil && !budget.Allow() {
			if c.metrics != nil {
				c.metrics.RecordRetryBudgetExceeded(service, operation)
			}
			c.debugLog("retries", "Retry budget exceeded",
				"requestID", requestID, "operation", operation, "attempt", attempt)
			lastErr.Err = errors.Join(lastErr.Err, ErrRetryBudgetExceeded)
			break
		}
		// Never begin a backoff that cannot complete before the operation
		// deadline: abort now instead of sleeping into the deadline.
		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
			lastErr = c.timeoutError(op, opErr, maxAttempts, requestID, start)
			break
		}
		c.debugLog("retries", "Scheduling retry",
			"requestID", requestID, "operation", operation, "nextAttempt", attempt+1, "backoff", delay)
		if err := comps.Sleeper().Sleep(ctx, delay); err != nil {
			lastErr = c.timeoutError(op, opErr, maxAttempts, requestID, start)
			break
		}
		if c.metrics != nil {
			c.metrics.RecordRetry(service, operation, attempt+1)
		}
	}
	return nil, lastErr
}

// attempt runs one pass through endpoint, auth, sign, serialize, dispatch
// and deserialize. A fresh InterceptorContext brackets every phase; the
// endpoint, scheme, identity and signature are recomputed because their
// validity is time-bound.
func (c *Client) attempt(ctx context.Context, comps *RuntimeComponents, pref []string, op *Operation, baseReq *http.Request, attempt, maxAttempts int, requestID string, start time.Time) (any, *OperationError) {
	req := baseReq.Clone(ctx)
	if baseReq.GetBody != nil {
		body, err := baseReq.GetBody()
		if err != nil {
			return nil, c.newError(op, PhaseBuildInput, ErrClassConstruction, "replaying request body", err, attempt, maxAttempts, requestID, start, nil)
		}
		req.Body = body
	}

	ictx := &InterceptorContext{Context: ctx, Operation: op, Attempt: attempt, Request: req}

	if err := c.runPhase(comps, ictx, PhaseResolveEndpoint, func(pctx context.Context) error {
		ep, err := comps.EndpointResolver().ResolveEndpoint(pctx, op)
		if err != nil {
			return err
		}
		applyEndpoint(req, ep)
		return nil
	}); err != nil {
		return nil, c.newError(op, PhaseResolveEndpoint, ErrClassConstruction, "resolving endpoint", err, attempt, maxAttempts, requestID, start, nil)
	}

	var options []AuthSchemeOption
	if err := c.runPhase(comps, ictx, PhaseResolveAuthScheme, func(context.Context) error {
		options = resolveAuthSchemeOptions(op.AuthSchemes, pref, comps.supportsScheme)
		if len(options) == 0 {
			return errors.New("no candidate auth scheme is supported by this client")
		}
		return nil
	}); err != nil {
		return nil, c.newError(op, PhaseResolveAuthScheme, ErrClassAuthResolution, "resolving auth scheme", err, attempt, maxAttempts, requestID, start, nil)
	}

	var sel *selectedAuth
	if err := c.runPhase(comps, ictx, PhaseResolveIdentity, func(pctx context.Context) error {
		var err error
		sel, err = selectAuthScheme(pctx, comps, options)
		return err
	}); err != nil {
		return nil, c.newError(op, PhaseResolveIdentity, ErrClassAuthResolution, "resolving identity", err, attempt, maxAttempts, requestID, start, nil)
	}
	c.debugLog("auth", "Auth scheme selected",
		"requestID", requestID, "scheme", sel.scheme.SchemeID(), "attempt", attempt)

	if err := c.runPhase(comps, ictx, PhaseSign, func(pctx context.Context) error {
		return sel.scheme.Signer().SignRequest(pctx, sel.identity, req, sel.option.Signing)
	}); err != nil {
		return nil, c.newError(op, PhaseSign, ErrClassSigning, "signing request", err, attempt, maxAttempts, requestID, start, nil)
	}

	if err := c.runPhase(comps, ictx, PhaseSerialize, func(context.Context) error {
		return finalizeRequest(req, op)
	}); err != nil {
		return nil, c.newError(op, PhaseSerialize, ErrClassConstruction, "finalizing request", err, attempt, maxAttempts, requestID, start, nil)
	}

	// The attempt deadline bounds dispatch and response-body read; cancel
	// only after the body has been buffered.
	if d := comps.Timeouts().AttemptTimeout; d > 0 {
		dispatchCtx, cancel := context.WithTimeout(ictx.Context, d)
		defer cancel()
		ictx.Context = dispatchCtx
	}

	var resp *http.Response
	if err := c.runPhase(comps, ictx, PhaseDispatch, func(pctx context.Context) error {
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(pctx); err != nil {
				return err
			}
		}
		if c.breaker != nil {
			if !c.breaker.Allow() {
				return ErrCircuitOpen
			}
			defer func() {
				if c.metrics != nil {
					c.metrics.RecordCircuitBreakerState("default", c.breaker.State())
				}
			}()
		}
		var err error
		resp, err = comps.Transport().RoundTrip(req.WithContext(pctx))
		if c.breaker != nil {
			if err != nil || (resp != nil && resp.StatusCode >= 500) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		ictx.Response = resp
		return err
	}); err != nil {
		class := ErrClassDispatch
		if errors.Is(err, context.DeadlineExceeded) {
			class = ErrClassTimeout
		}
		return nil, c.newError(op, PhaseDispatch, class, "dispatching request", err, attempt, maxAttempts, requestID, start, nil)
	}

	var bodyBytes []byte
	if err := c.runPhase(comps, ictx, PhaseParseResponse, func(context.Context) error {
		if resp.Body == nil {
			return nil
		}
		var err error
		bodyBytes, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		return nil
	}); err != nil {
		return nil, c.newError(op, PhaseParseResponse, ErrClassResponse, "parsing response", err, attempt, maxAttempts, requestID, start, resp)
	}

	var out any
	if err := c.runPhase(comps, ictx, PhaseDeserialize, func(pctx context.Context) error {
		var err error
		out, err = op.Deserialize(pctx, resp)
		return err
	}); err != nil {
		// Give introspection a fresh body reader; the deserializer consumed
		// the buffered one.
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		opErr := c.classifyResponseError(op, err, resp, bodyBytes, attempt, maxAttempts, requestID, start)
		return nil, opErr
	}
	return out, nil
}

// runPhase brackets one state transition with the interceptor chain:
// before-hooks in registration order, the phase body, then after-hooks in
// reverse order. Hooks observe the request/response/error of the active
// phase only.
func (c *Client) runPhase(comps *RuntimeComponents, ictx *InterceptorContext, phase Phase, fn func(ctx context.Context) error) error {
	ictx.Phase = phase
	ictx.Err = nil
	runBefore(comps.Interceptors(), ictx)
	err := fn(ictx.Context)
	ictx.Err = err
	runAfter(comps.Interceptors(), ictx)
	return err
}

// classifyResponseError maps a deserializer failure to a ResponseError or
// its retryable ThrottlingError subtype. When the deserializer could not
// produce a typed error, the raw body is probed for an error envelope,
// including 2xx responses whose body carries one.
func (c *Client) classifyResponseError(op *Operation, err error, resp *http.Response, body []byte, attempt, maxAttempts int, requestID string, start time.Time) *OperationError {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		if code, message, reqID := extractErrorEnvelope(body); code != "" {
			fault := FaultClient
			if resp.StatusCode >= 500 {
				fault = FaultServer
			}
			svcErr = &ServiceError{
				Code:       code,
				Message:    message,
				Fault:      fault,
				StatusCode: resp.StatusCode,
				RequestID:  reqID,
			}
			err = fmt.Errorf("%w (deserializer: %v)", svcErr, err)
		}
	}

	class := ErrClassResponse
	message := "deserializing response"
	if svcErr != nil {
		message = "service returned an error"
		if svcErr.Throttle() {
			class = ErrClassThrottling
		}
	} else if resp.StatusCode == http.StatusTooManyRequests {
		class = ErrClassThrottling
	}

	opErr := c.newError(op, PhaseDeserialize, class, message, err, attempt, maxAttempts, requestID, start, resp)
	if svcErr != nil && svcErr.RequestID != "" {
		opErr.RequestID = svcErr.RequestID
	}
	return opErr
}

func (c *Client) newError(op *Operation, phase Phase, class ErrorClass, message string, err error, attempt, maxAttempts int, requestID string, start time.Time, resp *http.Response) *OperationError {
	service, operation := operationLabels(op)
	opErr := &OperationError{
		Class:       class,
		Phase:       phase,
		Service:     service,
		Operation:   operation,
		Message:     message,
		Err:         err,
		RawResponse: resp,
		RequestID:   requestID,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Timestamp:   time.Now(),
		Duration:    time.Since(start),
	}
	if resp != nil {
		opErr.StatusCode = resp.StatusCode
		opErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return opErr
}

// timeoutError converts the last attempt failure into the terminal
// TimeoutError surfaced when the operation deadline expires.
func (c *Client) timeoutError(op *Operation, last *OperationError, maxAttempts int, requestID string, start time.Time) *OperationError {
	c.debugLog("timeouts", "Operation deadline expired",
		"requestID", requestID, "operation", op.Name, "attempt", last.Attempt)
	opErr := c.newError(op, last.Phase, ErrClassTimeout, "operation timeout expired", last, last.Attempt, maxAttempts, requestID, start, last.RawResponse)
	return opErr
}

func (c *Client) debugLog(event, msg string, keysAndValues ...any) {
	if c.debug == nil || !c.debug.Enabled || c.logger == nil {
		return
	}
	switch event {
	case "attempts":
		if !c.debug.LogAttempts {
			return
		}
	case "retries":
		if !c.debug.LogRetries {
			return
		}
	case "auth":
		if !c.debug.LogAuth {
			return
		}
	case "timeouts":
		if !c.debug.LogTimeouts {
			return
		}
	case "throttling":
		if !c.debug.LogThrottling {
			return
		}
	}
	c.logger.Debug(msg, keysAndValues...)
}

func validateOperation(op *Operation) error {
	if op == nil {
		return errors.New("operation is nil")
	}
	var problems []string
	if op.Name == "" {
		problems = append(problems, "operation name is empty")
	}
	if op.Serialize == nil {
		problems = append(problems, "operation has no serializer")
	}
	if op.Deserialize == nil {
		problems = append(problems, "operation has no deserializer")
	}
	if len(op.AuthSchemes) == 0 {
		problems = append(problems, "operation declares no auth scheme candidates")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// applyEndpoint rewrites the request target onto the resolved endpoint,
// prefixing the endpoint path and merging endpoint headers.
func applyEndpoint(req *http.Request, ep Endpoint) {
	req.URL.Scheme = ep.URL.Scheme
	req.URL.Host = ep.URL.Host
	req.Host = ep.URL.Host
	if p := strings.TrimSuffix(ep.URL.Path, "/"); p != "" {
		req.URL.Path = p + req.URL.Path
	}
	for k, vs := range ep.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}

// finalizeRequest applies the declared content type and sanity-checks the
// wire form before dispatch.
func finalizeRequest(req *http.Request, op *Operation) error {
	if req.URL.Scheme == "" || req.URL.Host == "" {
		return fmt.Errorf("request target incomplete: %q", req.URL.String())
	}
	if op.ContentType != "" && req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", op.ContentType)
	}
	return nil
}

func operationLabels(op *Operation) (service, operation string) {
	if op == nil {
		return "unknown", "unknown"
	}
	service = op.ServiceID
	if service == "" {
		service = "unknown"
	}
	operation = op.Name
	if operation == "" {
		operation = "unknown"
	}
	return service, operation
}
