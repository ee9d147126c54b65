package upstream

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	ierrors "github.com/pullproxy/pullproxy/internal/errors"
	"github.com/pullproxy/pullproxy/pkg/registry"
)

// Fetcher issues requests against the upstream registry with the
// configured remote authentication attached.
type Fetcher interface {
	// Fetch requests method on the upstream base URL plus suffix,
	// forwarding the given headers. The caller owns the response body.
	Fetch(ctx context.Context, suffix, method string, header http.Header) (*http.Response, error)
}

// fetcher is the single Fetcher implementation; the remote authentication
// variant is dispatched once at construction into authorize.
type fetcher struct {
	baseURL   string
	client    *http.Client
	authorize func(ctx context.Context, req *http.Request) error
}

// NewAnonymousFetcher creates a fetcher that forwards requests with no
// upstream authentication.
func NewAnonymousFetcher(baseURL string, client *http.Client) Fetcher {
	return newFetcher(baseURL, client, nil)
}

// NewBasicFetcher creates a fetcher attaching a static basic-auth header
// to every upstream request.
func NewBasicFetcher(baseURL, username, password string, client *http.Client) (Fetcher, error) {
	value, err := BasicAuthValue(username, password)
	if err != nil {
		return nil, err
	}
	return newFetcher(baseURL, client, func(_ context.Context, req *http.Request) error {
		req.Header.Set(registry.HeaderAuthorization, value)
		return nil
	}), nil
}

// NewBearerFetcher creates a fetcher that obtains a bearer token from the
// resolver before each upstream request, refreshing transparently.
func NewBearerFetcher(baseURL string, resolver *Resolver, client *http.Client) Fetcher {
	if resolver == nil {
		panic("resolver cannot be nil")
	}
	return newFetcher(baseURL, client, func(ctx context.Context, req *http.Request) error {
		token, err := resolver.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set(registry.HeaderAuthorization, "Bearer "+token)
		return nil
	})
}

func newFetcher(baseURL string, client *http.Client, authorize func(context.Context, *http.Request) error) *fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &fetcher{
		baseURL:   baseURL,
		client:    client,
		authorize: authorize,
	}
}

// Fetch implements Fetcher. Transport failures are wrapped into the
// upstream sentinel and never leaked raw to clients.
func (f *fetcher) Fetch(ctx context.Context, suffix, method string, header http.Header) (*http.Response, error) {
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, joinURL(f.baseURL, suffix), nil)
	if err != nil {
		return nil, ierrors.New(domainUpstream, "Fetch", ierrors.ErrUpstream, err)
	}
	for name, values := range header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	if f.authorize != nil {
		if err := f.authorize(ctx, req); err != nil {
			return nil, err
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ierrors.New(domainUpstream, "Fetch", ierrors.ErrUpstream, err)
	}
	return resp, nil
}

// BasicAuthValue builds an Authorization header value for a static
// basic-auth credential. Colons are forbidden in either part because the
// wire format cannot represent them unambiguously.
func BasicAuthValue(username, password string) (string, error) {
	if strings.Contains(username, ":") || strings.Contains(password, ":") {
		return "", fmt.Errorf("username and password cannot contain a colon")
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + encoded, nil
}
