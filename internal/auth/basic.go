package auth

import "net/http"

// BasicGate authenticates every request with HTTP basic credentials.
type BasicGate struct {
	authenticator BasicAuthenticator
}

// NewBasicGate creates the basic-credential gate.
func NewBasicGate(authenticator BasicAuthenticator) *BasicGate {
	if authenticator == nil {
		panic("authenticator cannot be nil")
	}
	return &BasicGate{authenticator: authenticator}
}

// Authenticate extracts basic credentials and asks the authenticator for
// the caller's scope. Missing credentials fail immediately without
// consulting the authenticator.
func (g *BasicGate) Authenticate(r *http.Request) (*Grant, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, authError("Authenticate", "missing basic credentials")
	}

	repos, ok, err := g.authenticator.Authenticate(r.Context(), username, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, authError("Authenticate", "invalid credentials")
	}

	return &Grant{Username: username, Scope: NewScope(repos)}, nil
}
