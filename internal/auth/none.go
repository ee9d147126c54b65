package auth

import "net/http"

// NoneGate grants every request the statically configured scope.
type NoneGate struct {
	scope Scope
}

// NewNoneGate creates the open gate with a fixed scope.
func NewNoneGate(repos []string) *NoneGate {
	return &NoneGate{scope: NewScope(repos)}
}

// Authenticate never fails; there are no credentials to check.
func (g *NoneGate) Authenticate(r *http.Request) (*Grant, error) {
	return &Grant{Scope: g.scope}, nil
}
