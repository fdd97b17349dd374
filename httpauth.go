package orkestro

import (
	"context"
	"fmt"
	"net/http"
)

// BearerTokenScheme carries a bearer token in the Authorization header.
type BearerTokenScheme struct{}

// NewBearerTokenScheme creates the bearer token auth scheme.
func NewBearerTokenScheme() *BearerTokenScheme { return &BearerTokenScheme{} }

// SchemeID implements the AuthScheme interface.
func (*BearerTokenScheme) SchemeID() string { return SchemeIDBearer }

// Signer implements the AuthScheme interface.
func (*BearerTokenScheme) Signer() Signer { return bearerSigner{} }

type bearerSigner struct{}

func (bearerSigner) SignRequest(_ context.Context, identity *Identity, req *http.Request, _ SigningOptions) error {
	tok, ok := identity.Value().(Token)
	if !ok {
		return fmt.Errorf("bearer signer requires Token identity, got %T", identity.Value())
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	return nil
}

// BasicAuthScheme carries username/password basic credentials.
type BasicAuthScheme struct{}

// NewBasicAuthScheme creates the HTTP basic auth scheme.
func NewBasicAuthScheme() *BasicAuthScheme { return &BasicAuthScheme{} }

// SchemeID implements the AuthScheme interface.
func (*BasicAuthScheme) SchemeID() string { return SchemeIDBasic }

// Signer implements the AuthScheme interface.
func (*BasicAuthScheme) Signer() Signer { return basicSigner{} }

type basicSigner struct{}

func (basicSigner) SignRequest(_ context.Context, identity *Identity, req *http.Request, _ SigningOptions) error {
	up, ok := identity.Value().(UserPassword)
	if !ok {
		return fmt.Errorf("basic signer requires UserPassword identity, got %T", identity.Value())
	}
	req.SetBasicAuth(up.Username, up.Password)
	return nil
}

// APIKeyScheme carries an API key in a configurable header.
type APIKeyScheme struct {
	header string
}

// NewAPIKeyScheme creates the API key scheme. An empty header defaults to
// X-Api-Key.
func NewAPIKeyScheme(header string) *APIKeyScheme {
	if header == "" {
		header = "X-Api-Key"
	}
	return &APIKeyScheme{header: header}
}

// SchemeID implements the AuthScheme interface.
func (*APIKeyScheme) SchemeID() string { return SchemeIDAPIKey }

// Signer implements the AuthScheme interface.
func (s *APIKeyScheme) Signer() Signer { return apiKeySigner{header: s.header} }

type apiKeySigner struct {
	header string
}

func (s apiKeySigner) SignRequest(_ context.Context, identity *Identity, req *http.Request, _ SigningOptions) error {
	key, ok := identity.Value().(APIKey)
	if !ok {
		return fmt.Errorf("api key signer requires APIKey identity, got %T", identity.Value())
	}
	req.Header.Set(s.header, key.Value)
	return nil
}

// AnonymousScheme dispatches without signing. Its identity always resolves,
// so it is a natural last candidate.
type AnonymousScheme struct{}

// NewAnonymousScheme creates the anonymous (no-op) auth scheme.
func NewAnonymousScheme() *AnonymousScheme { return &AnonymousScheme{} }

// SchemeID implements the AuthScheme interface.
func (*AnonymousScheme) SchemeID() string { return SchemeIDAnonymous }

// Signer implements the AuthScheme interface.
func (*AnonymousScheme) Signer() Signer { return anonymousSigner{} }

type anonymousSigner struct{}

func (anonymousSigner) SignRequest(context.Context, *Identity, *http.Request, SigningOptions) error {
	return nil
}

// AnonymousIdentity resolves the empty identity for the anonymous scheme.
func AnonymousIdentity() IdentityResolver {
	return StaticIdentity(NewIdentity(nil))
}
