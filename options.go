package orkestro

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// WithPlugins registers client-level plugins. Plugins fold in stable order
// on top of the components staged by the other options.
func WithPlugins(plugins ...Plugin) Option {
	return func(c *Client) {
		c.plugins = append(c.plugins, plugins...)
	}
}

// WithConfigFile names the YAML config file consulted for the
// auth_scheme_preference key. A missing file is not an error.
func WithConfigFile(path string) Option {
	return func(c *Client) {
		c.configFilePath = path
	}
}

// WithEndpointResolver sets the endpoint resolver.
func WithEndpointResolver(r EndpointResolver) Option {
	return func(c *Client) {
		c.endpointResolver = r
	}
}

// WithEndpoint sets a static endpoint URL.
func WithEndpoint(rawURL string) Option {
	return func(c *Client) {
		c.endpointResolver = StaticEndpoint(rawURL)
	}
}

// WithAuthScheme registers an auth scheme together with the identity
// resolver for its id. Order of registration is the supported-set order.
func WithAuthScheme(scheme AuthScheme, resolver IdentityResolver) Option {
	return func(c *Client) {
		c.schemeRegs = append(c.schemeRegs, schemeRegistration{scheme: scheme, resolver: resolver})
	}
}

// WithAuthSchemePreference sets the explicit preference list. It wins over
// the AUTH_SCHEME_PREFERENCE environment variable and the config file.
func WithAuthSchemePreference(schemeIDs ...string) Option {
	return func(c *Client) {
		c.explicitPreference = append([]string(nil), schemeIDs...)
	}
}

// WithInterceptors appends interceptors to the chain.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, interceptors...)
	}
}

// WithRetryStrategy replaces the retry strategy.
func WithRetryStrategy(rs RetryStrategy) Option {
	return func(c *Client) {
		c.retryStrategy = rs
	}
}

// WithMaxAttempts configures the standard retry strategy with the given
// total attempt budget and default backoff.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.retryStrategy = NewStandardRetryStrategy(n, 100*time.Millisecond, 20*time.Second, 2.0, 0.2)
	}
}

// WithRetryBudget caps granted retries across all concurrent orchestrations
// within a sliding window.
func WithRetryBudget(maxRetries int, perWindow time.Duration) Option {
	return func(c *Client) {
		c.retryBudget = NewRetryBudget(maxRetries, perWindow)
	}
}

// WithTimeouts sets the full timeout configuration.
func WithTimeouts(t TimeoutConfig) Option {
	return func(c *Client) {
		c.timeouts = t
	}
}

// WithOperationTimeout bounds a whole orchestration, attempts plus backoff.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeouts.OperationTimeout = d
	}
}

// WithAttemptTimeout bounds each dispatch.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeouts.AttemptTimeout = d
	}
}

// WithSleeper replaces the sleep capability. Passing nil removes it, which
// fails construction while retries or timeouts are enabled.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.sleeper = s
	}
}

// WithTransport replaces the transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHTTPClient dispatches through an *http.Client, picking up its
// redirect and cookie behavior.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.transport = TransportFunc(hc.Do)
	}
}

// WithRateLimit bounds the dispatch rate with a token bucket.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.rateLimiter = rate.NewLimiter(limit, burst)
	}
}

// WithCircuitBreaker guards dispatch with a circuit breaker.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breaker = NewCircuitBreaker(config)
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging to stderr.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets the request id generator used for debug
// logging and error annotation.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates option-level configuration, returning a
// ConfigurationError listing every violation. New runs it before the plugin
// merge.
func (c *Client) ValidateConfiguration() error {
	var problems []string
	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateTimeoutConfig()...)
	problems = append(problems, c.validateSchemeConfig()...)
	problems = append(problems, c.validatePluginConfig()...)
	problems = append(problems, c.validateDebugConfig()...)

	if len(problems) > 0 {
		return &OperationError{
			Class:   ErrClassConfiguration,
			Phase:   PhaseInit,
			Message: "configuration validation failed",
			Err:     fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}

func (c *Client) validateRetryConfig() []string {
	var problems []string
	if c.retryStrategy == nil {
		problems = append(problems, "retry strategy cannot be nil")
	} else if c.retryStrategy.MaxAttempts() < 1 {
		problems = append(problems, "retry strategy maxAttempts must be at least 1")
	}
	return problems
}

func (c *Client) validateTimeoutConfig() []string {
	var problems []string
	if c.timeouts.OperationTimeout < 0 {
		problems = append(problems, "operationTimeout must be non-negative")
	}
	if c.timeouts.AttemptTimeout < 0 {
		problems = append(problems, "attemptTimeout must be non-negative")
	}
	if c.timeouts.OperationTimeout > 0 && c.timeouts.AttemptTimeout > c.timeouts.OperationTimeout {
		problems = append(problems, "attemptTimeout must not exceed operationTimeout")
	}
	return problems
}

func (c *Client) validateSchemeConfig() []string {
	var problems []string
	for i, reg := range c.schemeRegs {
		if reg.scheme == nil {
			problems = append(problems, fmt.Sprintf("auth scheme[%d] cannot be nil", i))
			continue
		}
		if reg.scheme.SchemeID() == "" {
			problems = append(problems, fmt.Sprintf("auth scheme[%d] has an empty scheme id", i))
		}
		if reg.resolver == nil {
			problems = append(problems, fmt.Sprintf("auth scheme %q has no identity resolver", reg.scheme.SchemeID()))
		}
	}
	return problems
}

func (c *Client) validatePluginConfig() []string {
	var problems []string
	for i, p := range c.plugins {
		if p == nil {
			problems = append(problems, fmt.Sprintf("plugin[%d] cannot be nil", i))
		}
	}
	for i, in := range c.interceptors {
		if in == nil {
			problems = append(problems, fmt.Sprintf("interceptor[%d] cannot be nil", i))
		}
	}
	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string
	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}
	return problems
}
