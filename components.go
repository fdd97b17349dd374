package orkestro

import "errors"

// RuntimeComponents is the fully merged, read-only snapshot of pluggable
// services used by an orchestration. It is built once per client by folding
// all plugins and shared across concurrent orchestrations; per-operation
// overrides rebuild it with operation-scoped plugins appended.
type RuntimeComponents struct {
	endpointResolver  EndpointResolver
	schemes           []AuthScheme
	identityResolvers map[string]IdentityResolver
	interceptors      []Interceptor
	retryStrategy     RetryStrategy
	retryBudget       *RetryBudget
	timeouts          TimeoutConfig
	transport         Transport
	sleeper           Sleeper
	authPreference    []string
	config            *ConfigBag
}

func newRuntimeComponents(bag *ConfigBag) *RuntimeComponents {
	return &RuntimeComponents{
		identityResolvers: make(map[string]IdentityResolver),
		config:            bag,
	}
}

// EndpointResolver returns the configured endpoint resolver.
func (c *RuntimeComponents) EndpointResolver() EndpointResolver { return c.endpointResolver }

// AuthSchemes returns the supported auth schemes in registration order.
func (c *RuntimeComponents) AuthSchemes() []AuthScheme { return c.schemes }

// AuthScheme returns the supported scheme with the given id.
func (c *RuntimeComponents) AuthScheme(schemeID string) (AuthScheme, bool) {
	for _, s := range c.schemes {
		if s.SchemeID() == schemeID {
			return s, true
		}
	}
	return nil, false
}

// IdentityResolver returns the identity resolver registered for a scheme.
func (c *RuntimeComponents) IdentityResolver(schemeID string) (IdentityResolver, bool) {
	r, ok := c.identityResolvers[schemeID]
	return r, ok
}

// Interceptors returns the interceptor chain in registration order.
func (c *RuntimeComponents) Interceptors() []Interceptor { return c.interceptors }

// RetryStrategy returns the configured retry strategy.
func (c *RuntimeComponents) RetryStrategy() RetryStrategy { return c.retryStrategy }

// RetryBudget returns the shared retry budget, or nil.
func (c *RuntimeComponents) RetryBudget() *RetryBudget { return c.retryBudget }

// Timeouts returns the timeout configuration.
func (c *RuntimeComponents) Timeouts() TimeoutConfig { return c.timeouts }

// Transport returns the configured transport.
func (c *RuntimeComponents) Transport() Transport { return c.transport }

// Sleeper returns the configured sleep capability, or nil.
func (c *RuntimeComponents) Sleeper() Sleeper { return c.sleeper }

// AuthSchemePreference returns the explicitly configured preference list,
// or nil when no plugin or option set one.
func (c *RuntimeComponents) AuthSchemePreference() []string { return c.authPreference }

// Config returns the merged config bag.
func (c *RuntimeComponents) Config() *ConfigBag { return c.config }

// supportsScheme reports whether a scheme is usable for selection: present
// and backed by an identity resolver.
func (c *RuntimeComponents) supportsScheme(schemeID string) bool {
	if _, ok := c.AuthScheme(schemeID); !ok {
		return false
	}
	_, ok := c.identityResolvers[schemeID]
	return ok
}

// toBuilder returns a mutable copy of the snapshot for the next plugin's
// contributions. Slices and maps are cloned so earlier snapshots stay
// frozen.
func (c *RuntimeComponents) toBuilder() *ComponentsBuilder {
	b := &ComponentsBuilder{
		endpointResolver:  c.endpointResolver,
		schemes:           make([]AuthScheme, len(c.schemes)),
		identityResolvers: make(map[string]IdentityResolver, len(c.identityResolvers)),
		interceptors:      make([]Interceptor, len(c.interceptors)),
		retryStrategy:     c.retryStrategy,
		retryBudget:       c.retryBudget,
		timeouts:          c.timeouts,
		transport:         c.transport,
		sleeper:           c.sleeper,
		authPreference:    append([]string(nil), c.authPreference...),
	}
	copy(b.schemes, c.schemes)
	copy(b.interceptors, c.interceptors)
	for k, v := range c.identityResolvers {
		b.identityResolvers[k] = v
	}
	return b
}

// validate checks the mandatory component set after the merge. Failures are
// construction-time ConfigurationErrors; no network activity has happened.
func (c *RuntimeComponents) validate() error {
	var errs []error
	if c.endpointResolver == nil {
		errs = append(errs, ErrMissingEndpointResolver)
	}
	usable := 0
	for _, s := range c.schemes {
		if _, ok := c.identityResolvers[s.SchemeID()]; ok {
			usable++
		}
	}
	if usable == 0 {
		errs = append(errs, ErrMissingAuthSchemes)
	}
	if c.transport == nil {
		errs = append(errs, errors.New("orkestro: no transport configured"))
	}
	if c.retryStrategy == nil {
		errs = append(errs, errors.New("orkestro: no retry strategy configured"))
	}
	needsSleeper := c.timeouts.HasTimeouts() ||
		(c.retryStrategy != nil && c.retryStrategy.MaxAttempts() > 1)
	if needsSleeper && c.sleeper == nil {
		errs = append(errs, ErrMissingSleeper)
	}
	if len(errs) == 0 {
		return nil
	}
	return &OperationError{
		Class:   ErrClassConfiguration,
		Phase:   PhaseInit,
		Message: "mandatory component missing after plugin merge",
		Err:     errors.Join(errs...),
	}
}

// ComponentsBuilder assembles the partial component contributions of one
// plugin on top of the already merged snapshot. All setters overwrite;
// adders append.
type ComponentsBuilder struct {
	endpointResolver  EndpointResolver
	schemes           []AuthScheme
	identityResolvers map[string]IdentityResolver
	interceptors      []Interceptor
	retryStrategy     RetryStrategy
	retryBudget       *RetryBudget
	timeouts          TimeoutConfig
	transport         Transport
	sleeper           Sleeper
	authPreference    []string
}

// SetEndpointResolver replaces the endpoint resolver.
func (b *ComponentsBuilder) SetEndpointResolver(r EndpointResolver) *ComponentsBuilder {
	b.endpointResolver = r
	return b
}

// AddAuthScheme registers an auth scheme and its identity resolver. A
// scheme registered twice keeps its original position; the resolver is
// replaced, letting a later plugin swap credentials for an earlier scheme.
func (b *ComponentsBuilder) AddAuthScheme(s AuthScheme, r IdentityResolver) *ComponentsBuilder {
	seen := false
	for i, existing := range b.schemes {
		if existing.SchemeID() == s.SchemeID() {
			b.schemes[i] = s
			seen = true
			break
		}
	}
	if !seen {
		b.schemes = append(b.schemes, s)
	}
	if r != nil {
		b.identityResolvers[s.SchemeID()] = r
	}
	return b
}

// SetIdentityResolver replaces the identity resolver for a scheme id.
func (b *ComponentsBuilder) SetIdentityResolver(schemeID string, r IdentityResolver) *ComponentsBuilder {
	b.identityResolvers[schemeID] = r
	return b
}

// AddInterceptors appends interceptors to the chain.
func (b *ComponentsBuilder) AddInterceptors(is ...Interceptor) *ComponentsBuilder {
	b.interceptors = append(b.interceptors, is...)
	return b
}

// SetRetryStrategy replaces the retry strategy. A plugin may wrap the
// strategy it observes on current to add instrumentation.
func (b *ComponentsBuilder) SetRetryStrategy(rs RetryStrategy) *ComponentsBuilder {
	b.retryStrategy = rs
	return b
}

// SetRetryBudget replaces the shared retry budget.
func (b *ComponentsBuilder) SetRetryBudget(rb *RetryBudget) *ComponentsBuilder {
	b.retryBudget = rb
	return b
}

// SetTimeouts replaces the timeout configuration.
func (b *ComponentsBuilder) SetTimeouts(t TimeoutConfig) *ComponentsBuilder {
	b.timeouts = t
	return b
}

// SetTransport replaces the transport.
func (b *ComponentsBuilder) SetTransport(t Transport) *ComponentsBuilder {
	b.transport = t
	return b
}

// SetSleeper replaces the sleep capability. Setting nil removes it, which
// is a construction error when retries or timeouts are enabled.
func (b *ComponentsBuilder) SetSleeper(s Sleeper) *ComponentsBuilder {
	b.sleeper = s
	return b
}

// SetAuthSchemePreference sets the explicit auth scheme preference.
func (b *ComponentsBuilder) SetAuthSchemePreference(ids ...string) *ComponentsBuilder {
	b.authPreference = append([]string(nil), ids...)
	return b
}

func (b *ComponentsBuilder) freeze(bag *ConfigBag) *RuntimeComponents {
	return &RuntimeComponents{
		endpointResolver:  b.endpointResolver,
		schemes:           b.schemes,
		identityResolvers: b.identityResolvers,
		interceptors:      b.interceptors,
		retryStrategy:     b.retryStrategy,
		retryBudget:       b.retryBudget,
		timeouts:          b.timeouts,
		transport:         b.transport,
		sleeper:           b.sleeper,
		authPreference:    b.authPreference,
		config:            bag,
	}
}
