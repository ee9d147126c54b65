// Package auth implements the proxy's local authentication gate.
//
// Exactly one of three strategies is active per deployment, chosen at
// startup: static-credential basic auth, signed-bearer-token OAuth, or
// open access with a fixed scope. Every gated request yields a Grant
// carrying the caller's authorized repository scope; nothing about the
// caller outlives the request.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	ierrors "github.com/pullproxy/pullproxy/internal/errors"
	"github.com/pullproxy/pullproxy/pkg/registry"
)

const domainAuth = "auth"

// Scope is the set of repository names a caller may access for the
// duration of one request. Membership is what matters, not order.
type Scope map[string]struct{}

// NewScope builds a scope from a list of repository names.
// A non-nil empty scope is a valid state: authenticated but scopeless.
func NewScope(repos []string) Scope {
	s := make(Scope, len(repos))
	for _, repo := range repos {
		s[repo] = struct{}{}
	}
	return s
}

// Has reports whether the repository is inside the scope.
func (s Scope) Has(repo string) bool {
	_, ok := s[repo]
	return ok
}

// List returns the scope's repositories in sorted order.
func (s Scope) List() []string {
	out := make([]string, 0, len(s))
	for repo := range s {
		out = append(out, repo)
	}
	sort.Strings(out)
	return out
}

// Grant is the result of a successful pass through the gate.
type Grant struct {
	// Username is the authenticated caller, empty for the open strategy.
	Username string

	// Scope is the caller's authorized repository set.
	Scope Scope
}

// Gate authenticates inbound requests. Implementations return
// ErrAuthentication (via internal/errors) when credentials are missing
// or rejected; the transport layer turns that into a 401 with a
// scheme-appropriate challenge.
type Gate interface {
	Authenticate(r *http.Request) (*Grant, error)
}

// BasicAuthenticator validates static credentials for the basic strategy.
//
// ok=false means authentication failed. ok=true with an empty repos slice
// is success with zero accessible repositories; callers rely on this
// "authenticated but scopeless" state being distinct from rejection.
// A non-nil err signals an internal fault, not a credential rejection.
type BasicAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (repos []string, ok bool, err error)
}

// UserAuthenticator backs the OAuth strategy. Authentication and scope
// resolution are separate because authorization may change between token
// issuance and use: the scope is resolved fresh on every request.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
	ResolveRepositories(ctx context.Context, username string) ([]string, error)
}

// authError wraps a reason into the uniform authentication sentinel.
func authError(op string, format string, args ...any) error {
	return ierrors.New(domainAuth, op, ierrors.ErrAuthentication, fmt.Errorf(format, args...))
}

// extractBearerToken extracts the bearer token from the Authorization
// header. The scheme match is case-insensitive per RFC 6750.
func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get(registry.HeaderAuthorization)
	if header == "" {
		return "", authError("extractBearerToken", "missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", authError("extractBearerToken", "bearer token not found")
	}

	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", authError("extractBearerToken", "bearer token not found")
	}
	return raw, nil
}
