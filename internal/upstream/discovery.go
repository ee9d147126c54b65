package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	ierrors "github.com/pullproxy/pullproxy/internal/errors"
	"github.com/pullproxy/pullproxy/pkg/registry"
)

const domainUpstream = "upstream"

// Realm is the token-exchange endpoint learned from a registry's bearer
// challenge.
type Realm struct {
	// Realm is the absolute URL of the token endpoint.
	Realm string

	// Service is the service parameter of the challenge, may be empty.
	Service string

	// Scope is the scope parameter of the challenge, may be empty.
	Scope string
}

// Discover probes the registry's version-check endpoint unauthenticated
// and extracts the bearer challenge. A realm given as a bare host is
// upgraded to https; discovery never downgrades to plaintext.
func Discover(ctx context.Context, client *http.Client, registryURL string) (*Realm, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(registryURL, "/v2/"), nil)
	if err != nil {
		return nil, ierrors.New(domainUpstream, "Discover", ierrors.ErrUpstream, err)
	}
	req.Header.Set(registry.HeaderAccept, registry.ContentTypeJSON)

	resp, err := client.Do(req)
	if err != nil {
		return nil, ierrors.New(domainUpstream, "Discover", ierrors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	header := resp.Header.Get(registry.HeaderWWWAuthenticate)
	if header == "" {
		return nil, ierrors.New(domainUpstream, "Discover", ierrors.ErrUpstream,
			fmt.Errorf("registry sent no www-authenticate challenge"))
	}

	parsed, err := parseChallenge(header)
	if err != nil {
		return nil, ierrors.New(domainUpstream, "Discover", ierrors.ErrUpstream, err)
	}
	if !strings.EqualFold(parsed.Scheme, "bearer") {
		return nil, ierrors.New(domainUpstream, "Discover", ierrors.ErrUpstream,
			fmt.Errorf("expected bearer challenge, got %q", parsed.Scheme))
	}

	realm := parsed.Params["realm"]
	if realm == "" {
		return nil, ierrors.New(domainUpstream, "Discover", ierrors.ErrUpstream,
			fmt.Errorf("challenge has no realm parameter"))
	}
	if !strings.HasPrefix(realm, "http://") && !strings.HasPrefix(realm, "https://") {
		realm = "https://" + realm
	}

	return &Realm{
		Realm:   realm,
		Service: parsed.Params["service"],
		Scope:   parsed.Params["scope"],
	}, nil
}

// joinURL joins a base URL and a path suffix without doubling slashes.
func joinURL(base, suffix string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(suffix, "/")
}
