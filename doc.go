// Package orkestro is a client-side request orchestration runtime for
// RPC-style service operations. Given a typed operation input it resolves
// configuration, selects an auth scheme, resolves identity, signs,
// serializes, dispatches over a transport and deserializes a typed output,
// all under retry and timeout policy:
//
//   - Ordered, immutable config layers folded by plugins into a frozen
//     RuntimeComponents snapshot shared by all concurrent orchestrations
//   - Auth scheme resolution with multi-source preference
//     (client config > AUTH_SCHEME_PREFERENCE env > config file)
//   - Cached identity resolution with single-flight refresh
//   - Deterministic request signing (HMAC canonical-request, bearer,
//     basic, API key, anonymous)
//   - Retries with exponential/decorrelated backoff, Retry-After support,
//     retry budget and per-attempt / whole-operation deadlines
//   - Interceptor hooks bracketing every phase, optional OpenTelemetry
//     tracing, Prometheus metrics and structured debug logging
//
// Design goals:
//   - Small surface area – functional options and plugins configure everything
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via plugins, interceptors and pluggable transports
//
// Typical usage:
//
//	client, err := orkestro.New(
//	    orkestro.WithEndpoint("https://api.example.com"),
//	    orkestro.WithAuthScheme(orkestro.NewBearerTokenScheme(),
//	        orkestro.StaticIdentity(orkestro.NewIdentity(orkestro.Token{Value: "secret"}))),
//	    orkestro.WithMaxAttempts(3),
//	    orkestro.WithOperationTimeout(10*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := client.Execute(ctx, op, input)
//
// Serializer and deserializer functions, per-operation auth candidates and
// content types are supplied by generated code and treated as constants at
// runtime. The library avoids opinionated logging: provide a Logger (e.g.
// via WithSimpleLogger) + enable debug flags selectively (WithDebug /
// WithDebugConfig) for insight without noise.
package orkestro
