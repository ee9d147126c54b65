// Package errors provides domain-specific error handling infrastructure
// for the registry pull proxy.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the proxy's failure taxonomy. The boundary layer
// maps these onto registry v2 error codes and HTTP statuses.
var (
	// ErrAuthentication indicates local credentials or tokens were rejected.
	// All token verification failures collapse into this sentinel so callers
	// cannot probe why a token was refused.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNameInvalid indicates a malformed repository name.
	ErrNameInvalid = errors.New("invalid repository name")

	// ErrNameUnknown indicates a repository outside the caller's scope.
	ErrNameUnknown = errors.New("repository not found")

	// ErrTagInvalid indicates a malformed tag.
	ErrTagInvalid = errors.New("invalid tag")

	// ErrDigestInvalid indicates a malformed digest.
	ErrDigestInvalid = errors.New("invalid digest")

	// ErrManifestUnknown indicates the upstream reported the manifest absent.
	ErrManifestUnknown = errors.New("manifest unknown")

	// ErrUpstream indicates a failure talking to the upstream registry.
	// The underlying transport error is never exposed to clients.
	ErrUpstream = errors.New("upstream registry request failed")
)

// DomainError represents a domain-specific error with context.
// It wraps an underlying error and records the subsystem and operation
// that produced it.
type DomainError struct {
	// Domain identifies the subsystem where the error occurred
	// (e.g., "auth", "upstream", "transport").
	Domain string

	// Op identifies the operation that failed (e.g., "Verify", "Discover").
	Op string

	// Kind is the sentinel error that categorizes this error.
	Kind error

	// Err is the underlying wrapped error, if any.
	Err error
}

// New creates a new DomainError.
func New(domain, op string, kind, err error) *DomainError {
	return &DomainError{
		Domain: domain,
		Op:     op,
		Kind:   kind,
		Err:    err,
	}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %v: %v", e.Domain, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s.%s: %v", e.Domain, e.Op, e.Kind)
}

// Unwrap returns the underlying wrapped error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches the target error.
// It checks both the Kind field and the wrapped error chain.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// Kind returns the taxonomy sentinel for err, or nil if err carries none.
func Kind(err error) error {
	for _, sentinel := range []error{
		ErrAuthentication,
		ErrNameInvalid,
		ErrNameUnknown,
		ErrTagInvalid,
		ErrDigestInvalid,
		ErrManifestUnknown,
		ErrUpstream,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}
