package transport

import (
	"fmt"
	"io"
	"net/http"

	ierrors "github.com/pullproxy/pullproxy/internal/errors"
	"github.com/pullproxy/pullproxy/pkg/registry"
)

// handlePing answers the version/capability check. Reaching it at all
// means the gate passed.
func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) error {
	w.WriteHeader(http.StatusOK)
	return nil
}

// handleCatalog returns the caller's authorized scope, never the
// upstream catalog.
func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) error {
	grant, ok := grantFromContext(r.Context())
	if !ok {
		return ierrors.New(domainTransport, "handleCatalog", ierrors.ErrAuthentication,
			fmt.Errorf("no grant in context"))
	}

	writeJSON(w, http.StatusOK, registry.CatalogResponse{
		Repositories: grant.Scope.List(),
	}, h.logger)
	return nil
}

// handleTags proxies the tag list of an authorized repository.
func (h *Handler) handleTags(w http.ResponseWriter, r *http.Request, rt route) error {
	if err := validateRepositoryName(rt.repo); err != nil {
		return err
	}
	if err := h.requireInScope(r, rt.repo); err != nil {
		return err
	}

	resp, err := h.fetcher.Fetch(r.Context(), "/v2/"+rt.repo+"/tags/list", r.Method, passthroughHeader(r))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !statusOK(resp.StatusCode) {
		return ierrors.New(domainTransport, "handleTags", ierrors.ErrUpstream,
			fmt.Errorf("upstream returned status %d", resp.StatusCode))
	}

	copyDigestHeaders(w, resp)
	copyContentHeaders(w, resp, registry.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		if _, err := io.Copy(w, resp.Body); err != nil {
			h.logger.Error("streaming tag list failed", "repo", rt.repo, "error", err)
		}
	}
	return nil
}

// handleBlob proxies a blob fetch for an authorized repository.
func (h *Handler) handleBlob(w http.ResponseWriter, r *http.Request, rt route) error {
	if err := validateDigest(rt.ref); err != nil {
		return err
	}
	if err := validateRepositoryName(rt.repo); err != nil {
		return err
	}
	if err := h.requireInScope(r, rt.repo); err != nil {
		return err
	}

	resp, err := h.fetcher.Fetch(r.Context(), "/v2/"+rt.repo+"/blobs/"+rt.ref, r.Method, passthroughHeader(r))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !statusOK(resp.StatusCode) {
		return ierrors.New(domainTransport, "handleBlob", ierrors.ErrUpstream,
			fmt.Errorf("upstream returned status %d", resp.StatusCode))
	}

	copyDigestHeaders(w, resp)
	copyContentHeaders(w, resp, registry.ContentTypeOctetStream)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		if _, err := io.Copy(w, resp.Body); err != nil {
			h.logger.Error("streaming blob failed", "repo", rt.repo, "digest", rt.ref, "error", err)
		}
	}
	return nil
}

// handleManifest proxies a manifest fetch. The reference may be a tag or
// a digest; the tag grammar is tried first.
func (h *Handler) handleManifest(w http.ResponseWriter, r *http.Request, rt route) error {
	if err := validateReference(rt.ref); err != nil {
		return err
	}
	if err := validateRepositoryName(rt.repo); err != nil {
		return err
	}
	if err := h.requireInScope(r, rt.repo); err != nil {
		return err
	}

	resp, err := h.fetcher.Fetch(r.Context(), "/v2/"+rt.repo+"/manifests/"+rt.ref, r.Method, passthroughHeader(r))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !statusOK(resp.StatusCode) {
		return ierrors.New(domainTransport, "handleManifest", ierrors.ErrManifestUnknown,
			fmt.Errorf("upstream returned status %d", resp.StatusCode))
	}

	copyDigestHeaders(w, resp)
	copyContentHeaders(w, resp, registry.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		if _, err := io.Copy(w, resp.Body); err != nil {
			h.logger.Error("streaming manifest failed", "repo", rt.repo, "reference", rt.ref, "error", err)
		}
	}
	return nil
}

// requireInScope rejects repositories outside the caller's grant. The
// rejection is NAME_UNKNOWN regardless of upstream existence so callers
// cannot probe the upstream namespace.
func (h *Handler) requireInScope(r *http.Request, repo string) error {
	grant, ok := grantFromContext(r.Context())
	if !ok {
		return ierrors.New(domainTransport, "requireInScope", ierrors.ErrAuthentication,
			fmt.Errorf("no grant in context"))
	}
	if !grant.Scope.Has(repo) {
		return ierrors.New(domainTransport, "requireInScope", ierrors.ErrNameUnknown,
			fmt.Errorf("repository %q is not in the authorized scope", repo))
	}
	return nil
}

func statusOK(code int) bool {
	return code >= 200 && code < 300
}

// passthroughHeader forwards the client's Accept header to the upstream,
// which content-negotiates manifest formats with it.
func passthroughHeader(r *http.Request) http.Header {
	header := http.Header{}
	if accept := r.Header.Get(registry.HeaderAccept); accept != "" {
		header.Set(registry.HeaderAccept, accept)
	}
	return header
}

// copyDigestHeaders copies the upstream content digest through and
// mirrors it into a strong ETag.
func copyDigestHeaders(w http.ResponseWriter, resp *http.Response) {
	if digest := resp.Header.Get(registry.HeaderDockerContentDigest); digest != "" {
		w.Header().Set(registry.HeaderDockerContentDigest, digest)
		w.Header().Set(registry.HeaderETag, fmt.Sprintf("%q", digest))
	}
}

// copyContentHeaders copies content-type and content-length through,
// falling back to the route's default media type.
func copyContentHeaders(w http.ResponseWriter, resp *http.Response, defaultType string) {
	contentType := resp.Header.Get(registry.HeaderContentType)
	if contentType == "" {
		contentType = defaultType
	}
	w.Header().Set(registry.HeaderContentType, contentType)

	if length := resp.Header.Get(registry.HeaderContentLength); length != "" {
		w.Header().Set(registry.HeaderContentLength, length)
	}
}
