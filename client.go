package orkestro

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Client executes RPC-style operations through the orchestration pipeline:
// endpoint resolution, auth scheme selection, identity resolution, signing,
// serialization, dispatch and deserialization under retry and timeout
// policy. A Client is safe for concurrent use; its component snapshot is
// frozen at construction.
type Client struct {
	plugins        []Plugin
	configFilePath string

	// Option-staged components, contributed through the base plugin so
	// user plugins can observe and wrap them.
	endpointResolver   EndpointResolver
	schemeRegs         []schemeRegistration
	interceptors       []Interceptor
	retryStrategy      RetryStrategy
	retryBudget        *RetryBudget
	timeouts           TimeoutConfig
	transport          Transport
	sleeper            Sleeper
	explicitPreference []string

	rateLimiter *rate.Limiter
	breaker     *CircuitBreaker
	metrics     *MetricsCollector
	debug       *DebugConfig
	logger      Logger

	components      *RuntimeComponents
	preference      []string
	configFileBytes []byte
}

type schemeRegistration struct {
	scheme   AuthScheme
	resolver IdentityResolver
}

// New constructs a Client from functional options and plugins. All
// misconfiguration detectable before a request (a missing mandatory
// component, retries without a sleeper, an unreadable config file) fails
// here, never at Execute time.
func New(options ...Option) (*Client, error) {
	c := &Client{
		retryStrategy: NewStandardRetryStrategy(3, 100*time.Millisecond, 20*time.Second, 2.0, 0.2),
		transport:     DefaultTransport(),
		sleeper:       StandardSleeper{},
		debug:         DefaultDebugConfig(),
	}
	for _, option := range options {
		option(c)
	}

	if err := c.ValidateConfiguration(); err != nil {
		return nil, err
	}

	fileBytes, err := readConfigFile(c.configFilePath)
	if err != nil {
		return nil, &OperationError{
			Class:   ErrClassConfiguration,
			Phase:   PhaseInit,
			Message: "loading config file",
			Err:     err,
		}
	}
	c.configFileBytes = fileBytes

	comps := buildComponents(c.allPlugins(), nil)
	if err := comps.validate(); err != nil {
		return nil, err
	}
	pref, err := resolveAuthSchemePreference(comps, fileBytes)
	if err != nil {
		return nil, &OperationError{
			Class:   ErrClassConfiguration,
			Phase:   PhaseInit,
			Message: "resolving auth scheme preference",
			Err:     err,
		}
	}

	c.components = comps
	c.preference = pref
	return c, nil
}

// Components returns the frozen component snapshot built at construction.
func (c *Client) Components() *RuntimeComponents { return c.components }

// AuthSchemePreference returns the effective preference list assembled from
// client config, environment and config file.
func (c *Client) AuthSchemePreference() []string {
	return append([]string(nil), c.preference...)
}

// allPlugins prepends the base plugin carrying option-staged components, so
// every user plugin folds on top of it.
func (c *Client) allPlugins() []Plugin {
	plugins := make([]Plugin, 0, len(c.plugins)+1)
	plugins = append(plugins, &baseConfigPlugin{c: c})
	plugins = append(plugins, c.plugins...)
	return plugins
}

// baseConfigPlugin contributes the components staged by functional options.
// Its order is the minimum so user plugins always observe it in current.
type baseConfigPlugin struct {
	c *Client
}

func (p *baseConfigPlugin) Order() int { return math.MinInt32 }

func (p *baseConfigPlugin) Layer() *ConfigLayer { return nil }

func (p *baseConfigPlugin) Configure(_ *RuntimeComponents, b *ComponentsBuilder) {
	c := p.c
	if c.endpointResolver != nil {
		b.SetEndpointResolver(c.endpointResolver)
	}
	for _, reg := range c.schemeRegs {
		b.AddAuthScheme(reg.scheme, reg.resolver)
	}
	b.AddInterceptors(c.interceptors...)
	b.SetRetryStrategy(c.retryStrategy)
	b.SetRetryBudget(c.retryBudget)
	b.SetTimeouts(c.timeouts)
	b.SetTransport(c.transport)
	b.SetSleeper(c.sleeper)
	if len(c.explicitPreference) > 0 {
		b.SetAuthSchemePreference(c.explicitPreference...)
	}
}
