package orkestro

import (
	"context"
	"net/http"
	"testing"
)

func signWith(t *testing.T, scheme AuthScheme, identity *Identity) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := scheme.Signer().SignRequest(context.Background(), identity, req, SigningOptions{}); err != nil {
		t.Fatalf("SignRequest: %v", err)
	}
	return req
}

func TestBearerTokenScheme(t *testing.T) {
	req := signWith(t, NewBearerTokenScheme(), NewIdentity(Token{Value: "tok-123"}))
	if got := req.Header.Get("Authorization"); got != "Bearer tok-123" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestBasicAuthScheme(t *testing.T) {
	req := signWith(t, NewBasicAuthScheme(), NewIdentity(UserPassword{Username: "u", Password: "p"}))
	user, pass, ok := req.BasicAuth()
	if !ok || user != "u" || pass != "p" {
		t.Errorf("BasicAuth = %q/%q/%v", user, pass, ok)
	}
}

func TestAPIKeyScheme(t *testing.T) {
	t.Run("default header", func(t *testing.T) {
		req := signWith(t, NewAPIKeyScheme(""), NewIdentity(APIKey{Value: "k"}))
		if got := req.Header.Get("X-Api-Key"); got != "k" {
			t.Errorf("X-Api-Key = %q", got)
		}
	})
	t.Run("custom header", func(t *testing.T) {
		req := signWith(t, NewAPIKeyScheme("X-Custom-Key"), NewIdentity(APIKey{Value: "k"}))
		if got := req.Header.Get("X-Custom-Key"); got != "k" {
			t.Errorf("X-Custom-Key = %q", got)
		}
	})
}

func TestAnonymousScheme(t *testing.T) {
	req := signWith(t, NewAnonymousScheme(), NewIdentity(nil))
	if len(req.Header) != 0 {
		t.Errorf("anonymous signer added headers: %v", req.Header)
	}

	id, err := AnonymousIdentity().ResolveIdentity(context.Background())
	if err != nil {
		t.Fatalf("AnonymousIdentity: %v", err)
	}
	if id.Value() != nil {
		t.Errorf("anonymous identity value = %v, want nil", id.Value())
	}
}

func TestSchemesRejectWrongIdentityType(t *testing.T) {
	tests := []struct {
		name   string
		scheme AuthScheme
	}{
		{"bearer", NewBearerTokenScheme()},
		{"basic", NewBasicAuthScheme()},
		{"api key", NewAPIKeyScheme("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/", nil)
			err := tt.scheme.Signer().SignRequest(context.Background(), NewIdentity(struct{}{}), req, SigningOptions{})
			if err == nil {
				t.Error("expected identity type mismatch error")
			}
		})
	}
}
