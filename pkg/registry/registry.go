// Package registry provides shared registry v2 protocol types and constants
// for the pull proxy.
package registry

// Error codes from the registry v2 error vocabulary. Only the codes the
// proxy can actually emit are listed.
const (
	// ErrorCodeUnauthorized indicates the client failed local authentication.
	ErrorCodeUnauthorized = "UNAUTHORIZED"

	// ErrorCodeDigestInvalid indicates a malformed content digest.
	ErrorCodeDigestInvalid = "DIGEST_INVALID"

	// ErrorCodeNameInvalid indicates a malformed repository name.
	ErrorCodeNameInvalid = "NAME_INVALID"

	// ErrorCodeNameUnknown indicates a repository outside the caller's
	// authorized scope. Deliberately a 400, not a 404, so unauthorized
	// callers learn nothing about upstream existence.
	ErrorCodeNameUnknown = "NAME_UNKNOWN"

	// ErrorCodeManifestUnknown indicates the upstream registry reported
	// the manifest absent.
	ErrorCodeManifestUnknown = "MANIFEST_UNKNOWN"

	// ErrorCodeTagInvalid indicates a malformed tag.
	ErrorCodeTagInvalid = "TAG_INVALID"
)

// Grant types accepted by the local token endpoint.
const (
	// GrantTypePassword exchanges a username/password for an access token.
	GrantTypePassword = "password"

	// GrantTypeRefreshToken exchanges a refresh token for an access token.
	GrantTypeRefreshToken = "refresh_token"
)

// HTTP header names.
const (
	// HeaderAuthorization is the Authorization HTTP header name.
	HeaderAuthorization = "Authorization"

	// HeaderWWWAuthenticate is the WWW-Authenticate HTTP header name.
	HeaderWWWAuthenticate = "WWW-Authenticate"

	// HeaderContentType is the Content-Type HTTP header name.
	HeaderContentType = "Content-Type"

	// HeaderContentLength is the Content-Length HTTP header name.
	HeaderContentLength = "Content-Length"

	// HeaderDockerContentDigest carries the canonical digest of the
	// returned manifest or blob.
	HeaderDockerContentDigest = "Docker-Content-Digest"

	// HeaderDockerAPIVersion advertises registry API conformance.
	HeaderDockerAPIVersion = "Docker-Distribution-Api-Version"

	// HeaderContentTypeOptions is the X-Content-Type-Options header name.
	HeaderContentTypeOptions = "X-Content-Type-Options"

	// HeaderETag is the ETag HTTP header name.
	HeaderETag = "ETag"

	// HeaderAccept is the Accept HTTP header name.
	HeaderAccept = "Accept"
)

// Content type constants.
const (
	// ContentTypeJSON is the application/json content type.
	ContentTypeJSON = "application/json"

	// ContentTypeOctetStream is the application/octet-stream content type.
	ContentTypeOctetStream = "application/octet-stream"

	// ContentTypeFormURLEncoded is the application/x-www-form-urlencoded content type.
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"
)

// APIVersion is the value of the Docker-Distribution-Api-Version header
// attached to every gated response.
const APIVersion = "registry/2.0"

// DefaultTokenScope is the nominal scope string echoed in token responses.
const DefaultTokenScope = "repository:user/image:pull"

// ErrorDescriptor is one entry of the registry v2 error envelope.
type ErrorDescriptor struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// ErrorEnvelope is the registry v2 error response body.
type ErrorEnvelope struct {
	Errors []ErrorDescriptor `json:"errors"`
}

// CatalogResponse is the body of GET /v2/_catalog.
type CatalogResponse struct {
	Repositories []string `json:"repositories"`
}

// TokenResponse is the body of the local token endpoint.
//
// Token duplicates AccessToken on the GET flow because Docker-CLI-style
// clients have historically read either field; it is omitted on the POST
// flow, which predates the duplication.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	Token        string `json:"token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	IssuedAt     string `json:"issued_at"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
