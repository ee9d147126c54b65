package transport

import (
	"fmt"
	"regexp"
	"strings"

	ierrors "github.com/pullproxy/pullproxy/internal/errors"
)

// Identifier grammars of the registry v2 request surface. Pure string
// checks; each returns the matching taxonomy sentinel on failure.
var (
	digestPattern      = regexp.MustCompile(`^[A-Za-z0-9_+.-]+:[A-Fa-f0-9]+$`)
	tagPattern         = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]*$`)
	nameSegmentPattern = regexp.MustCompile(`^(?i)[a-z0-9]+(?:[._-][a-z0-9]+)*$`)
)

const (
	maxDigestLength     = 1024
	maxTagLength        = 128
	maxRepositoryLength = 255
	minRepositoryLength = 2
)

func validateDigest(digest string) error {
	if len(digest) > maxDigestLength || !digestPattern.MatchString(digest) {
		return ierrors.New(domainTransport, "validateDigest", ierrors.ErrDigestInvalid,
			fmt.Errorf("digest %q does not match algorithm:hex", truncate(digest)))
	}
	return nil
}

func validateTag(tag string) error {
	if len(tag) > maxTagLength || !tagPattern.MatchString(tag) {
		return ierrors.New(domainTransport, "validateTag", ierrors.ErrTagInvalid,
			fmt.Errorf("tag %q is not a valid tag", truncate(tag)))
	}
	return nil
}

func validateRepositoryName(name string) error {
	if len(name) < minRepositoryLength || len(name) > maxRepositoryLength {
		return ierrors.New(domainTransport, "validateRepositoryName", ierrors.ErrNameInvalid,
			fmt.Errorf("repository name %q has invalid length", truncate(name)))
	}
	for _, segment := range strings.Split(name, "/") {
		if !nameSegmentPattern.MatchString(segment) {
			return ierrors.New(domainTransport, "validateRepositoryName", ierrors.ErrNameInvalid,
				fmt.Errorf("repository name %q has an invalid path segment", truncate(name)))
		}
	}
	return nil
}

// validateReference checks a manifest reference, trying the tag grammar
// first and falling back to the digest grammar. Failing both reports a
// digest error, the stricter of the two grammars.
func validateReference(reference string) error {
	if validateTag(reference) == nil {
		return nil
	}
	return validateDigest(reference)
}

// truncate bounds identifier echoes in error details.
func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
