package auth

import (
	"net/http"

	"github.com/pullproxy/pullproxy/internal/token"
)

// OAuthGate authenticates protected routes with signed bearer tokens and
// the token endpoint with basic credentials.
type OAuthGate struct {
	codec *token.Codec
	users UserAuthenticator
}

// NewOAuthGate creates the signed-token gate.
func NewOAuthGate(codec *token.Codec, users UserAuthenticator) *OAuthGate {
	if codec == nil {
		panic("codec cannot be nil")
	}
	if users == nil {
		panic("users cannot be nil")
	}
	return &OAuthGate{codec: codec, users: users}
}

// Authenticate verifies an access-kind bearer token and resolves the
// subject's live repository scope. Refresh tokens are never accepted here.
func (g *OAuthGate) Authenticate(r *http.Request) (*Grant, error) {
	raw, err := extractBearerToken(r)
	if err != nil {
		return nil, err
	}

	claims, err := g.codec.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Kind != token.KindAccess {
		return nil, authError("Authenticate", "token is not an access token")
	}

	repos, err := g.users.ResolveRepositories(r.Context(), claims.Subject)
	if err != nil {
		return nil, err
	}

	return &Grant{Username: claims.Subject, Scope: NewScope(repos)}, nil
}

// AuthenticateBasic gates the GET token endpoint, which Docker-CLI-style
// clients call with basic credentials before any token exists.
func (g *OAuthGate) AuthenticateBasic(r *http.Request) (*Grant, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, authError("AuthenticateBasic", "missing basic credentials")
	}

	authenticated, err := g.users.Authenticate(r.Context(), username, password)
	if err != nil {
		return nil, err
	}
	if !authenticated {
		return nil, authError("AuthenticateBasic", "invalid credentials")
	}

	repos, err := g.users.ResolveRepositories(r.Context(), username)
	if err != nil {
		return nil, err
	}

	return &Grant{Username: username, Scope: NewScope(repos)}, nil
}
