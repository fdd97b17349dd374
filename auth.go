package orkestro

import (
	"context"
	"errors"
	"fmt"
)

// Stable scheme ids for the built-in auth schemes.
const (
	SchemeIDSigV4     = "sigv4"
	SchemeIDBearer    = "httpBearerAuth"
	SchemeIDBasic     = "httpBasicAuth"
	SchemeIDAPIKey    = "httpApiKeyAuth"
	SchemeIDAnonymous = "anonymous"
)

// AuthScheme is a named signing mechanism. Schemes form a closed capability
// set: adding one means registering a new implementation of this interface
// together with an identity resolver for its id.
type AuthScheme interface {
	// SchemeID is the stable string identifier of the scheme.
	SchemeID() string
	// Signer returns the signing transform applied for this scheme.
	Signer() Signer
}

// AuthSchemeOption names a candidate scheme for an operation together with
// the scheme-specific signing properties declared by the model.
type AuthSchemeOption struct {
	SchemeID string
	Signing  SigningOptions
}

// resolveAuthSchemeOptions orders the eligible auth scheme candidates for an
// attempt. Candidates are intersected with the supported set, preserving
// candidate order as the baseline. A non-empty preference pulls preferred
// eligible ids to the front in preference order; remaining eligible ids keep
// their baseline order. Preference ids that are not eligible are dropped
// silently.
func resolveAuthSchemeOptions(candidates []AuthSchemeOption, preference []string, supported func(schemeID string) bool) []AuthSchemeOption {
	eligible := make([]AuthSchemeOption, 0, len(candidates))
	for _, c := range candidates {
		if supported(c.SchemeID) {
			eligible = append(eligible, c)
		}
	}
	if len(preference) == 0 || len(eligible) == 0 {
		return eligible
	}

	ordered := make([]AuthSchemeOption, 0, len(eligible))
	taken := make(map[string]bool, len(eligible))
	for _, id := range preference {
		for _, opt := range eligible {
			if opt.SchemeID == id && !taken[id] {
				ordered = append(ordered, opt)
				taken[id] = true
				break
			}
		}
	}
	for _, opt := range eligible {
		if !taken[opt.SchemeID] {
			ordered = append(ordered, opt)
		}
	}
	return ordered
}

// selectedAuth is the outcome of scheme selection for one attempt: exactly
// one scheme, its option and the resolved identity.
type selectedAuth struct {
	scheme   AuthScheme
	option   AuthSchemeOption
	identity *Identity
}

// selectAuthScheme walks the ordered options, resolving identity for each
// candidate in turn. The first candidate whose identity resolves wins;
// candidates whose resolution fails are skipped and not retried within the
// attempt. Each failed resolution is recorded as an IdentityResolution
// cause; exhausting every candidate yields an AuthSchemeResolution error
// joining those causes.
func selectAuthScheme(ctx context.Context, comps *RuntimeComponents, options []AuthSchemeOption) (*selectedAuth, error) {
	if len(options) == 0 {
		return nil, errors.New("no eligible auth scheme for operation")
	}

	var causes []error
	for _, opt := range options {
		scheme, ok := comps.AuthScheme(opt.SchemeID)
		if !ok {
			continue
		}
		resolver, ok := comps.IdentityResolver(opt.SchemeID)
		if !ok {
			continue
		}
		identity, err := resolver.ResolveIdentity(ctx)
		if err != nil {
			causes = append(causes, &OperationError{
				Class:   ErrClassIdentityResolution,
				Phase:   PhaseResolveIdentity,
				Message: fmt.Sprintf("scheme %s", opt.SchemeID),
				Err:     err,
			})
			continue
		}
		return &selectedAuth{scheme: scheme, option: opt, identity: identity}, nil
	}
	return nil, fmt.Errorf("identity resolution failed for every candidate scheme: %w", errors.Join(causes...))
}
