// Package transport exposes the proxy's HTTP surface: the registry v2
// pull routes, the local token endpoint, and the boundary that maps
// taxonomy errors onto registry error envelopes.
package transport

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pullproxy/pullproxy/internal/auth"
	"github.com/pullproxy/pullproxy/internal/upstream"
)

// Config wires a Handler. Gate, Fetcher and Responder are required;
// OAuth and Tokens are set together when the OAuth local scheme is
// active, enabling the token endpoint.
type Config struct {
	Gate      auth.Gate
	OAuth     *auth.OAuthGate
	Tokens    *auth.Service
	Fetcher   upstream.Fetcher
	Responder *Responder
	Logger    *slog.Logger
}

// Handler serves the proxy's HTTP surface.
type Handler struct {
	gate      auth.Gate
	oauth     *auth.OAuthGate
	tokens    *auth.Service
	fetcher   upstream.Fetcher
	responder *Responder
	logger    *slog.Logger

	chain http.Handler
}

// NewHandler builds the HTTP surface from its collaborators.
func NewHandler(cfg Config) *Handler {
	if cfg.Gate == nil {
		panic("gate cannot be nil")
	}
	if cfg.Fetcher == nil {
		panic("fetcher cannot be nil")
	}
	if cfg.Responder == nil {
		panic("responder cannot be nil")
	}
	if cfg.Tokens != nil && cfg.OAuth == nil {
		panic("tokens require the oauth gate")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &Handler{
		gate:      cfg.Gate,
		oauth:     cfg.OAuth,
		tokens:    cfg.Tokens,
		fetcher:   cfg.Fetcher,
		responder: cfg.Responder,
		logger:    cfg.Logger,
	}

	var inner http.Handler = http.HandlerFunc(h.dispatch)
	for _, mw := range []middleware{
		loggingMiddleware(cfg.Logger),
		protocolHeadersMiddleware(),
	} {
		inner = mw(inner)
	}
	h.chain = inner
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

// handlerFunc is a route handler that reports failures as errors; the
// boundary maps them onto the registry error vocabulary.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h *Handler) run(w http.ResponseWriter, r *http.Request, fn handlerFunc) {
	if err := fn(w, r); err != nil {
		h.responder.WriteError(w, r, err)
	}
}

// dispatch routes a request. Registry paths embed multi-segment
// repository names in the middle of the pattern, so routing is an
// explicit parse rather than mux patterns.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/token" && h.tokens != nil:
		h.dispatchToken(w, r)

	case r.URL.Path == "/v2" || strings.HasPrefix(r.URL.Path, "/v2/"):
		h.run(w, r, func(w http.ResponseWriter, r *http.Request) error {
			grant, err := h.gate.Authenticate(r)
			if err != nil {
				return err
			}
			return h.dispatchV2(w, r.WithContext(contextWithGrant(r.Context(), grant)))
		})

	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) dispatchToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.run(w, r, h.handleTokenPost)

	case http.MethodGet:
		h.run(w, r, func(w http.ResponseWriter, r *http.Request) error {
			grant, err := h.oauth.AuthenticateBasic(r)
			if err != nil {
				return err
			}
			return h.handleTokenGet(w, r.WithContext(contextWithGrant(r.Context(), grant)))
		})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) dispatchV2(w http.ResponseWriter, r *http.Request) error {
	route, ok := parseV2Path(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return nil
	}

	switch route.kind {
	case routePing:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return nil
		}
		return h.handlePing(w, r)

	case routeCatalog:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return nil
		}
		return h.handleCatalog(w, r)

	case routeTags, routeBlob, routeManifest:
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return nil
		}
		switch route.kind {
		case routeTags:
			return h.handleTags(w, r, route)
		case routeBlob:
			return h.handleBlob(w, r, route)
		default:
			return h.handleManifest(w, r, route)
		}
	}

	http.NotFound(w, r)
	return nil
}

type routeKind int

const (
	routePing routeKind = iota
	routeCatalog
	routeTags
	routeBlob
	routeManifest
)

type route struct {
	kind routeKind

	// repo is the repository name, possibly spanning several path
	// segments. ref is the digest or reference for blob/manifest routes.
	repo string
	ref  string
}

// parseV2Path maps a /v2/... path onto a route. The repository name is
// greedy: the last /blobs/ or /manifests/ marker splits it from the
// reference, matching the registry API's path grammar.
func parseV2Path(path string) (route, bool) {
	if path == "/v2" || path == "/v2/" {
		return route{kind: routePing}, true
	}

	rest := strings.TrimPrefix(path, "/v2/")
	if rest == "_catalog" {
		return route{kind: routeCatalog}, true
	}

	if repo, found := strings.CutSuffix(rest, "/tags/list"); found && repo != "" {
		return route{kind: routeTags, repo: repo}, true
	}

	if i := strings.LastIndex(rest, "/blobs/"); i > 0 {
		repo, ref := rest[:i], rest[i+len("/blobs/"):]
		if ref != "" && !strings.Contains(ref, "/") {
			return route{kind: routeBlob, repo: repo, ref: ref}, true
		}
	}

	if i := strings.LastIndex(rest, "/manifests/"); i > 0 {
		repo, ref := rest[:i], rest[i+len("/manifests/"):]
		if ref != "" && !strings.Contains(ref, "/") {
			return route{kind: routeManifest, repo: repo, ref: ref}, true
		}
	}

	return route{}, false
}
