package transport

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/pullproxy/pullproxy/internal/auth"
	ierrors "github.com/pullproxy/pullproxy/internal/errors"
	"github.com/pullproxy/pullproxy/pkg/registry"
)

// handleTokenPost exchanges a password or refresh-token grant for an
// access token. Only form-encoded bodies are accepted.
func (h *Handler) handleTokenPost(w http.ResponseWriter, r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get(registry.HeaderContentType))
	if err != nil || mediaType != registry.ContentTypeFormURLEncoded {
		return ierrors.New(domainTransport, "handleTokenPost", ierrors.ErrAuthentication,
			fmt.Errorf("content type %q not supported for token requests", mediaType))
	}

	if err := r.ParseForm(); err != nil {
		return ierrors.New(domainTransport, "handleTokenPost", ierrors.ErrAuthentication,
			fmt.Errorf("malformed form body: %w", err))
	}

	req := auth.GrantRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Username:     r.PostForm.Get("username"),
		Password:     r.PostForm.Get("password"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		Service:      r.PostForm.Get("service"),
		Offline:      r.PostForm.Get("access_type") == auth.AccessTypeOffline,
	}

	resp, err := h.tokens.Exchange(r.Context(), req)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
	return nil
}

// handleTokenGet serves the Docker-CLI-style GET token flow. The caller
// was already authenticated with basic credentials by the dispatcher.
func (h *Handler) handleTokenGet(w http.ResponseWriter, r *http.Request) error {
	grant, ok := grantFromContext(r.Context())
	if !ok || grant.Username == "" {
		return ierrors.New(domainTransport, "handleTokenGet", ierrors.ErrAuthentication,
			fmt.Errorf("not authenticated"))
	}

	query := r.URL.Query()
	req := auth.GrantRequest{
		Service: query.Get("service"),
		Offline: strings.EqualFold(query.Get("offline_token"), "true"),
	}

	resp, err := h.tokens.Issue(req, grant.Username)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
	return nil
}
