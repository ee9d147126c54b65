package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	ierrors "github.com/pullproxy/pullproxy/internal/errors"
	"github.com/pullproxy/pullproxy/pkg/registry"
)

const domainTransport = "transport"

// Responder renders taxonomy errors as registry v2 error envelopes.
type Responder struct {
	// challenge is the WWW-Authenticate value attached to 401 responses,
	// scheme-appropriate for the active local authentication strategy.
	challenge string

	// development controls whether the envelope's detail field carries
	// diagnostic information. Always empty in production.
	development bool

	logger *slog.Logger
}

// NewResponder creates a responder. challenge may be empty for the open
// local strategy, which can never produce a 401.
func NewResponder(challenge string, development bool, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		challenge:   challenge,
		development: development,
		logger:      logger,
	}
}

// WriteError maps err onto the registry error vocabulary and writes the
// envelope. Errors without a taxonomy kind are an opaque 500.
func (res *Responder) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := ierrors.Kind(err)

	var (
		status int
		code   string
	)
	switch kind {
	case ierrors.ErrAuthentication:
		status, code = http.StatusUnauthorized, registry.ErrorCodeUnauthorized
		if res.challenge != "" {
			w.Header().Set(registry.HeaderWWWAuthenticate, res.challenge)
		}
	case ierrors.ErrDigestInvalid:
		status, code = http.StatusBadRequest, registry.ErrorCodeDigestInvalid
	case ierrors.ErrNameInvalid:
		status, code = http.StatusBadRequest, registry.ErrorCodeNameInvalid
	case ierrors.ErrNameUnknown:
		status, code = http.StatusBadRequest, registry.ErrorCodeNameUnknown
	case ierrors.ErrTagInvalid:
		status, code = http.StatusBadRequest, registry.ErrorCodeTagInvalid
	case ierrors.ErrManifestUnknown:
		status, code = http.StatusNotFound, registry.ErrorCodeManifestUnknown
	default:
		// Upstream and unclassified failures stay opaque.
		res.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	res.logger.Warn("request rejected",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"code", code,
		"error", err,
	)

	detail := ""
	if res.development {
		detail = err.Error()
	}

	writeJSON(w, status, registry.ErrorEnvelope{
		Errors: []registry.ErrorDescriptor{{
			Code:    code,
			Message: kind.Error(),
			Detail:  detail,
		}},
	}, res.logger)
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set(registry.HeaderContentType, registry.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
