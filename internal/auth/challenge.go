package auth

import "fmt"

// BasicChallenge builds the WWW-Authenticate value for the basic scheme.
func BasicChallenge(realm string) string {
	return fmt.Sprintf("Basic realm=%q", realm)
}

// BearerChallenge builds the WWW-Authenticate value for the OAuth scheme,
// pointing clients at the proxy's own token endpoint.
func BearerChallenge(service string, useHTTPS bool, scope string) string {
	proto := "http"
	if useHTTPS {
		proto = "https"
	}
	realm := fmt.Sprintf("%s://%s/token", proto, service)
	return fmt.Sprintf("Bearer realm=%q,service=%q,scope=%q", realm, service, scope)
}
