package orkestro

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrorClass classifies an orchestration failure for retry decisions and
// caller introspection.
type ErrorClass string

const (
	// ErrClassConfiguration marks a missing or invalid mandatory component,
	// detected at construction time before any network activity.
	ErrClassConfiguration ErrorClass = "Configuration"
	// ErrClassAuthResolution marks exhaustion of every eligible auth scheme
	// candidate for an attempt.
	ErrClassAuthResolution ErrorClass = "AuthSchemeResolution"
	// ErrClassIdentityResolution marks a single identity resolver failure;
	// non-fatal while further candidates remain.
	ErrClassIdentityResolution ErrorClass = "IdentityResolution"
	// ErrClassSigning marks a signing transform failure.
	ErrClassSigning ErrorClass = "Signing"
	// ErrClassConstruction marks invalid input detected before dispatch.
	ErrClassConstruction ErrorClass = "ConstructionFailure"
	// ErrClassDispatch marks a transport-level failure.
	ErrClassDispatch ErrorClass = "DispatchFailure"
	// ErrClassResponse marks a malformed or protocol-level error response.
	ErrClassResponse ErrorClass = "ResponseError"
	// ErrClassTimeout marks expiry of an attempt or operation deadline.
	ErrClassTimeout ErrorClass = "TimeoutError"
	// ErrClassThrottling is a retryable subtype of dispatch/response
	// failures signalled by status 429 or a throttling error code.
	ErrClassThrottling ErrorClass = "ThrottlingError"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrMissingEndpointResolver is reported at construction when no
	// endpoint resolver was contributed.
	ErrMissingEndpointResolver = errors.New("orkestro: no endpoint resolver configured")

	// ErrMissingAuthSchemes is reported at construction when no auth scheme
	// with a matching identity resolver was contributed.
	ErrMissingAuthSchemes = errors.New("orkestro: no auth scheme with a matching identity resolver configured")

	// ErrMissingSleeper is reported at construction when retries or
	// timeouts are enabled without a sleep capability.
	ErrMissingSleeper = errors.New("orkestro: retries or timeouts enabled without a sleeper")

	// ErrCircuitOpen is returned when the dispatch circuit breaker is open.
	ErrCircuitOpen = errors.New("orkestro: circuit open")

	// ErrRetryBudgetExceeded is reported when the shared retry budget is
	// exhausted and a granted retry is abandoned.
	ErrRetryBudgetExceeded = errors.New("orkestro: retry budget exceeded")

	// ErrReplayExhausted is returned by ReplayTransport when a request
	// arrives after every scripted exchange was consumed.
	ErrReplayExhausted = errors.New("orkestro: replay transport exhausted")
)

// OperationError is the typed error surfaced by Execute. It carries the
// phase at which the orchestration failed and, when one was received, the
// raw response for introspection.
type OperationError struct {
	Class       ErrorClass
	Phase       Phase
	Service     string
	Operation   string
	Message     string
	Err         error
	RawResponse *http.Response
	StatusCode  int
	RequestID   string
	Attempt     int
	MaxAttempts int
	Timestamp   time.Time
	Duration    time.Duration
	// RetryAfter is the server-prescribed delay, when the response carried
	// a Retry-After header.
	RetryAfter time.Duration
}

// Error implements error interface.
func (e *OperationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	name := e.Operation
	if e.Service != "" {
		name = e.Service + "/" + e.Operation
	}
	msg := fmt.Sprintf("%s: %s", e.Class, e.Message)
	if name != "" {
		msg = fmt.Sprintf("%s %s", name, msg)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Phase != "" {
		msg = fmt.Sprintf("%s (phase %s)", msg, e.Phase)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches by error class so callers can compare with a template:
// errors.Is(err, &OperationError{Class: ErrClassTimeout}).
func (e *OperationError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*OperationError); ok {
		return e.Class == t.Class
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *OperationError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Error Class: %s\n", e.Class)
	fmt.Fprintf(&b, "Message: %s\n", e.Message)
	if e.Phase != "" {
		fmt.Fprintf(&b, "Phase: %s\n", e.Phase)
	}
	if e.Service != "" {
		fmt.Fprintf(&b, "Service: %s\n", e.Service)
	}
	if e.Operation != "" {
		fmt.Fprintf(&b, "Operation: %s\n", e.Operation)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, "Request ID: %s\n", e.RequestID)
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, "Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		fmt.Fprintf(&b, "Attempt: %d/%d\n", e.Attempt, e.MaxAttempts)
	}
	if !e.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %v\n", e.Duration)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, "Retry-After: %v\n", e.RetryAfter)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, "Cause: %v\n", e.Err)
	}
	return b.String()
}

// Fault attributes a service error to the caller or the service.
type Fault string

const (
	FaultClient Fault = "client"
	FaultServer Fault = "server"
)

// ServiceError models a protocol-level error returned by an operation
// deserializer: the service answered, but with an error envelope.
type ServiceError struct {
	Code       string
	Message    string
	Fault      Fault
	StatusCode int
	RequestID  string
}

// Error implements error interface.
func (e *ServiceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("service error %s: %s", e.Code, e.Message)
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request id %s)", msg, e.RequestID)
	}
	return msg
}

// Throttle reports whether the error carries a throttling code or status.
func (e *ServiceError) Throttle() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests || isThrottlingCode(e.Code)
}

// IsRetryable determines whether an error represents a failure that may
// succeed on retry. True for dispatch failures, throttling, per-attempt
// timeouts and 5xx/429 responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		switch opErr.Class {
		case ErrClassDispatch, ErrClassThrottling, ErrClassTimeout:
			return true
		case ErrClassResponse:
			return opErr.StatusCode >= 500 || opErr.StatusCode == http.StatusTooManyRequests
		default:
			return false
		}
	}
	return false
}

// IsThrottle reports whether an error was classified as throttling.
func IsThrottle(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Class == ErrClassThrottling
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Throttle()
	}
	return false
}

// throttlingCodes are error codes that classify as throttling regardless of
// HTTP status, including inside 2xx error envelopes.
var throttlingCodes = map[string]struct{}{
	"Throttling":                {},
	"ThrottlingException":       {},
	"ThrottledException":        {},
	"RequestThrottled":          {},
	"RequestThrottledException": {},
	"TooManyRequests":           {},
	"TooManyRequestsException":  {},
	"SlowDown":                  {},
	"LimitExceeded":             {},
}

func isThrottlingCode(code string) bool {
	_, ok := throttlingCodes[code]
	return ok
}

// extractErrorEnvelope probes a raw response body for an error envelope when
// the deserializer could not produce a typed error. JSON bodies are probed
// tolerantly with gjson; XML bodies with a minimal element scan.
func extractErrorEnvelope(body []byte) (code, message, requestID string) {
	trimmed := strings.TrimLeft(string(body), " \t\r\n")
	if strings.HasPrefix(trimmed, "<") {
		return scanXMLError(trimmed)
	}
	for _, path := range []string{"code", "Code", "__type", "Error.Code", "error.code"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			code = stripTypeNamespace(v.String())
			break
		}
	}
	for _, path := range []string{"message", "Message", "Error.Message", "error.message"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			message = v.String()
			break
		}
	}
	for _, path := range []string{"requestId", "RequestId", "Error.RequestId"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			requestID = v.String()
			break
		}
	}
	return code, message, requestID
}

// stripTypeNamespace reduces "com.example#ThrottlingException" to
// "ThrottlingException".
func stripTypeNamespace(code string) string {
	if i := strings.LastIndexByte(code, '#'); i >= 0 {
		return code[i+1:]
	}
	return code
}

func scanXMLError(body string) (code, message, requestID string) {
	code = xmlElement(body, "Code")
	message = xmlElement(body, "Message")
	requestID = xmlElement(body, "RequestId")
	return code, message, requestID
}

func xmlElement(body, name string) string {
	open := "<" + name + ">"
	closing := "</" + name + ">"
	start := strings.Index(body, open)
	if start < 0 {
		return ""
	}
	start += len(open)
	end := strings.Index(body[start:], closing)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(body[start : start+end])
}
