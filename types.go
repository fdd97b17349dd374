package orkestro

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Phase identifies a step of the orchestration state machine. Phases run
// linearly; interceptor hooks bracket every phase transition.
type Phase string

const (
	PhaseInit              Phase = "Init"
	PhaseBuildInput        Phase = "BuildInput"
	PhaseResolveEndpoint   Phase = "ResolveEndpoint"
	PhaseResolveAuthScheme Phase = "ResolveAuthScheme"
	PhaseResolveIdentity   Phase = "ResolveIdentity"
	PhaseSign              Phase = "Sign"
	PhaseSerialize         Phase = "Serialize"
	PhaseDispatch          Phase = "Dispatch"
	PhaseParseResponse     Phase = "ParseResponse"
	PhaseDeserialize       Phase = "Deserialize"
)

// SerializeFn builds the structured HTTP request for a typed operation
// input. Supplied per operation by generated code; pure.
type SerializeFn func(ctx context.Context, input any) (*http.Request, error)

// DeserializeFn produces the typed output, or a *ServiceError for
// protocol-level failures, from a dispatched response. Supplied per
// operation by generated code; pure.
type DeserializeFn func(ctx context.Context, resp *http.Response) (any, error)

// Operation is the static per-operation metadata computed at generation
// time and treated as constant input at runtime.
type Operation struct {
	// ServiceID names the owning service, used in metrics and errors.
	ServiceID string
	// Name is the operation name.
	Name string
	// AuthSchemes is the ordered list of candidate auth scheme options
	// declared by the model. Resolution preserves this order as the
	// baseline unless a preference reorders it.
	AuthSchemes []AuthSchemeOption
	// ContentType, when non-empty, is applied to requests that do not
	// already carry one.
	ContentType string
	// HasStreamingInput marks operations whose request body cannot be
	// replayed; retries are disabled for them.
	HasStreamingInput bool

	Serialize   SerializeFn
	Deserialize DeserializeFn
}

// Transport turns a fully signed and serialized request into a response.
// *http.Transport and http.DefaultTransport satisfy it directly.
type Transport interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(*http.Request) (*http.Response, error)

func (f TransportFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Endpoint is a resolved dispatch target.
type Endpoint struct {
	URL *url.URL
	// Headers are added to every request dispatched to this endpoint.
	Headers http.Header
}

// EndpointResolver resolves the dispatch endpoint for an operation. Resolved
// once per attempt; may perform I/O.
type EndpointResolver interface {
	ResolveEndpoint(ctx context.Context, op *Operation) (Endpoint, error)
}

// EndpointResolverFunc adapts a function to the EndpointResolver interface.
type EndpointResolverFunc func(ctx context.Context, op *Operation) (Endpoint, error)

func (f EndpointResolverFunc) ResolveEndpoint(ctx context.Context, op *Operation) (Endpoint, error) {
	return f(ctx, op)
}

// StaticEndpoint returns a resolver that always yields the given URL.
func StaticEndpoint(rawURL string) EndpointResolver {
	return EndpointResolverFunc(func(context.Context, *Operation) (Endpoint, error) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return Endpoint{}, err
		}
		return Endpoint{URL: u}, nil
	})
}

// Sleeper provides the async-sleep capability used for backoff delays.
// Constructing a client with retries or timeouts enabled and no Sleeper is a
// construction-time error.
type Sleeper interface {
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// StandardSleeper sleeps on a timer, honoring context cancellation.
type StandardSleeper struct{}

// Sleep implements the Sleeper interface.
func (StandardSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TimeoutConfig bounds orchestration time. OperationTimeout caps the sum of
// all attempts plus backoff delays; AttemptTimeout caps each dispatch. Zero
// values disable the respective bound.
type TimeoutConfig struct {
	OperationTimeout time.Duration
	AttemptTimeout   time.Duration
}

// HasTimeouts reports whether any bound is configured.
func (t TimeoutConfig) HasTimeouts() bool {
	return t.OperationTimeout > 0 || t.AttemptTimeout > 0
}

// Option configures a Client at construction time.
type Option func(*Client)
