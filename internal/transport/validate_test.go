package transport

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/pullproxy/pullproxy/internal/errors"
)

func TestValidateDigest(t *testing.T) {
	tests := []struct {
		name   string
		digest string
		valid  bool
	}{
		{"full sha256", "sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", true},
		{"short hex", "sha256:abcdef0123456789", true},
		{"uppercase hex", "sha256:ABCDEF0123", true},
		{"sha512", "sha512:deadbeef", true},
		{"algorithm with plus", "sha256+b64:abcdef", true},
		{"empty", "", false},
		{"algorithm only", "sha256", false},
		{"missing hex", "sha256:", false},
		{"non-hex payload", "sha256:not-hex!", false},
		{"letters beyond hex in payload", "sha256:ghijkl", false},
		{"spaces", "sha256 :abcdef", false},
		{"over length", "sha256:" + strings.Repeat("a", 1100), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDigest(tt.digest)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, ierrors.ErrDigestInvalid)
			}
		})
	}
}

func TestValidateTag(t *testing.T) {
	tests := []struct {
		name  string
		tag   string
		valid bool
	}{
		{"latest", "latest", true},
		{"semver", "v1.2.3", true},
		{"underscore start", "_internal", true},
		{"dots and dashes", "release-2024.01", true},
		{"max length", strings.Repeat("a", 128), true},
		{"empty", "", false},
		{"leading dot", ".hidden", false},
		{"leading dash", "-oops", false},
		{"slash", "a/b", false},
		{"over length", strings.Repeat("a", 129), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTag(tt.tag)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, ierrors.ErrTagInvalid)
			}
		})
	}
}

func TestValidateRepositoryName(t *testing.T) {
	tests := []struct {
		name  string
		repo  string
		valid bool
	}{
		{"two segments", "my-org/my-app", true},
		{"single segment", "ubuntu", true},
		{"deeply nested", "org/team/project/app", true},
		{"mixed case", "MyOrg/app", true},
		{"separators inside", "a1/b_2/c.3", true},
		{"too short", "a", false},
		{"empty segment", "MyOrg//app", false},
		{"trailing slash", "org/app/", false},
		{"leading separator in segment", "org/_app", false},
		{"over length", strings.Repeat("a/", 150) + "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRepositoryName(tt.repo)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, ierrors.ErrNameInvalid)
			}
		})
	}
}

func TestValidateReference(t *testing.T) {
	assert.NoError(t, validateReference("latest"))
	assert.NoError(t, validateReference("sha256:abcdef0123456789"))

	// Failing both grammars reports the digest error.
	err := validateReference("not valid either way")
	require.Error(t, err)
	assert.ErrorIs(t, err, ierrors.ErrDigestInvalid)
	assert.False(t, errors.Is(err, ierrors.ErrTagInvalid))
}

func TestParseV2Path(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
		want route
	}{
		{"/v2", true, route{kind: routePing}},
		{"/v2/", true, route{kind: routePing}},
		{"/v2/_catalog", true, route{kind: routeCatalog}},
		{"/v2/ubuntu/tags/list", true, route{kind: routeTags, repo: "ubuntu"}},
		{"/v2/team/app/tags/list", true, route{kind: routeTags, repo: "team/app"}},
		{"/v2/team/app/blobs/sha256:abc123", true, route{kind: routeBlob, repo: "team/app", ref: "sha256:abc123"}},
		{"/v2/team/app/manifests/latest", true, route{kind: routeManifest, repo: "team/app", ref: "latest"}},
		{"/v2/team/app/manifests/sha256:abc123", true, route{kind: routeManifest, repo: "team/app", ref: "sha256:abc123"}},

		// A repository segment may itself be named blobs or manifests;
		// the last marker wins.
		{"/v2/team/blobs/app/blobs/sha256:abc", true, route{kind: routeBlob, repo: "team/blobs/app", ref: "sha256:abc"}},
		{"/v2/team/manifests/latest/manifests/v2", true, route{kind: routeManifest, repo: "team/manifests/latest", ref: "v2"}},

		{"/v2/ubuntu", false, route{}},
		{"/v2/team/app/blobs/", false, route{}},
		{"/v2/team/app/manifests/a/b", false, route{}},
		{"/v2/tags/list", false, route{}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := parseV2Path(tt.path)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
