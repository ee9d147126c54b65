package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	ierrors "github.com/pullproxy/pullproxy/internal/errors"
	"github.com/pullproxy/pullproxy/pkg/registry"
)

// DefaultClientID identifies the proxy to the upstream token endpoint
// when no client ID is configured.
const DefaultClientID = "registry-proxy"

// defaultFallbackValidity is assumed for tokens obtained via the
// query-parameter exchange, whose response carries no expiry.
const defaultFallbackValidity = time.Hour

// expirySafetyMargin is subtracted from a token's stated validity to
// cover clock skew and in-flight use at the expiry boundary.
const expirySafetyMargin = 10 * time.Second

// OAuth2Config configures the upstream OAuth2 credential exchange.
type OAuth2Config struct {
	Username string
	Password string

	// ForceScope overrides the scope discovered from the challenge.
	ForceScope string

	// ClientID defaults to DefaultClientID when empty.
	ClientID string

	// FallbackValidity bounds tokens from the query-parameter exchange;
	// defaults to one hour when zero.
	FallbackValidity time.Duration
}

// BearerToken is a cached upstream bearer token. Replaced wholesale on
// refresh, never mutated.
type BearerToken struct {
	Token      string
	ValidUntil time.Time
}

// Resolver exchanges the configured upstream credential for bearer tokens
// and caches the result for its validity window. It is safe for
// concurrent use; an expired cache triggers a single in-flight resolution
// shared by all waiters.
type Resolver struct {
	registryURL string
	cfg         OAuth2Config
	client      *http.Client
	logger      *slog.Logger

	mu     sync.Mutex
	cached *BearerToken

	group singleflight.Group

	// now is overridable in tests.
	now func() time.Time
}

// NewResolver creates a resolver for the given registry and credential.
func NewResolver(registryURL string, cfg OAuth2Config, client *http.Client, logger *slog.Logger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		registryURL: registryURL,
		cfg:         cfg,
		client:      client,
		logger:      logger,
		now:         time.Now,
	}
}

// Token returns a bearer token valid at the time of the call, resolving
// or refreshing through the upstream authorization server when needed.
func (r *Resolver) Token(ctx context.Context) (string, error) {
	if tok := r.cachedValid(); tok != nil {
		return tok.Token, nil
	}

	v, err, _ := r.group.Do("token", func() (any, error) {
		// Another waiter may have refreshed while this call queued.
		if tok := r.cachedValid(); tok != nil {
			return tok, nil
		}

		// The exchange serves every queued waiter, so it must not die
		// with the caller that happened to initiate it. The HTTP
		// client's timeout still bounds the detached request.
		tok, err := r.resolve(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cached = tok
		r.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(*BearerToken).Token, nil
}

func (r *Resolver) cachedValid() *BearerToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && r.now().Before(r.cached.ValidUntil) {
		return r.cached
	}
	return nil
}

// resolve attempts the query-parameter exchange first and falls back to
// the form-encoded exchange on any failure. This fallback is a protocol
// negotiation, not a retry: registries implement one variant or the other.
func (r *Resolver) resolve(ctx context.Context) (*BearerToken, error) {
	tok, err := r.exchangeQuery(ctx)
	if err == nil {
		return tok, nil
	}
	r.logger.Debug("query-parameter token exchange failed, trying form exchange", "error", err)

	return r.exchangeForm(ctx)
}

// exchangeQuery performs a GET of the discovered realm with account,
// scope and service as query parameters and the static credential as
// basic auth. The response carries no expiry, so the fallback validity
// window applies from the moment of the call.
func (r *Resolver) exchangeQuery(ctx context.Context) (*BearerToken, error) {
	realm, err := Discover(ctx, r.client, r.registryURL)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("account", r.cfg.Username)
	if scope := r.scope(realm); scope != "" {
		query.Set("scope", scope)
	}
	if realm.Service != "" {
		query.Set("service", realm.Service)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, realm.Realm+"?"+query.Encode(), nil)
	if err != nil {
		return nil, ierrors.New(domainUpstream, "exchangeQuery", ierrors.ErrUpstream, err)
	}
	req.Header.Set(registry.HeaderAccept, registry.ContentTypeJSON)
	req.SetBasicAuth(r.cfg.Username, r.cfg.Password)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, ierrors.New(domainUpstream, "exchangeQuery", ierrors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ierrors.New(domainUpstream, "exchangeQuery", ierrors.ErrUpstream,
			fmt.Errorf("token endpoint returned status %d", resp.StatusCode))
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, ierrors.New(domainUpstream, "exchangeQuery", ierrors.ErrUpstream, err)
	}
	if body.Token == "" {
		return nil, ierrors.New(domainUpstream, "exchangeQuery", ierrors.ErrUpstream,
			fmt.Errorf("token not present in response"))
	}

	validity := r.cfg.FallbackValidity
	if validity <= 0 {
		validity = defaultFallbackValidity
	}

	return &BearerToken{
		Token:      body.Token,
		ValidUntil: r.now().Add(validity),
	}, nil
}

// exchangeForm performs a POST of a password grant to the discovered
// realm. The response states its own validity; a safety margin is
// subtracted to avoid using a token at the edge of expiry.
func (r *Resolver) exchangeForm(ctx context.Context) (*BearerToken, error) {
	realm, err := Discover(ctx, r.client, r.registryURL)
	if err != nil {
		return nil, err
	}
	if realm.Service == "" {
		return nil, ierrors.New(domainUpstream, "exchangeForm", ierrors.ErrUpstream,
			fmt.Errorf("challenge has no service parameter"))
	}

	clientID := r.cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", clientID)
	form.Set("access_type", "online")
	if scope := r.scope(realm); scope != "" {
		form.Set("scope", scope)
	}
	form.Set("service", realm.Service)
	form.Set("username", r.cfg.Username)
	form.Set("password", r.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, realm.Realm, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, ierrors.New(domainUpstream, "exchangeForm", ierrors.ErrUpstream, err)
	}
	req.Header.Set(registry.HeaderAccept, registry.ContentTypeJSON)
	req.Header.Set(registry.HeaderContentType, registry.ContentTypeFormURLEncoded)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, ierrors.New(domainUpstream, "exchangeForm", ierrors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ierrors.New(domainUpstream, "exchangeForm", ierrors.ErrUpstream,
			fmt.Errorf("token endpoint returned status %d", resp.StatusCode))
	}

	var body struct {
		AccessToken string   `json:"access_token"`
		ExpiresIn   *float64 `json:"expires_in"`
		IssuedAt    string   `json:"issued_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, ierrors.New(domainUpstream, "exchangeForm", ierrors.ErrUpstream, err)
	}
	if body.AccessToken == "" {
		return nil, ierrors.New(domainUpstream, "exchangeForm", ierrors.ErrUpstream,
			fmt.Errorf("access_token not present in response"))
	}
	if body.ExpiresIn == nil {
		return nil, ierrors.New(domainUpstream, "exchangeForm", ierrors.ErrUpstream,
			fmt.Errorf("expires_in not present in response"))
	}

	issuedAt := r.now()
	if body.IssuedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, body.IssuedAt); err == nil {
			issuedAt = parsed
		}
	}

	expiresIn := time.Duration(*body.ExpiresIn * float64(time.Second))
	return &BearerToken{
		Token:      body.AccessToken,
		ValidUntil: issuedAt.Add(expiresIn - expirySafetyMargin),
	}, nil
}

func (r *Resolver) scope(realm *Realm) string {
	if r.cfg.ForceScope != "" {
		return r.cfg.ForceScope
	}
	return realm.Scope
}
