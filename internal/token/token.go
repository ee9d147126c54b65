// Package token signs and verifies the compact signed tokens used by the
// proxy's local OAuth scheme. Tokens are HS256 JWTs carrying a token kind
// and the authenticated username; they embed no repository scope, which is
// resolved fresh on every request.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	ierrors "github.com/pullproxy/pullproxy/internal/errors"
)

const domainToken = "token"

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	// KindAccess marks a short-lived token accepted on protected routes.
	KindAccess Kind = "access"

	// KindRefresh marks a non-expiring token accepted only by the
	// refresh_token grant. It is never valid as an access credential.
	KindRefresh Kind = "refresh"
)

// Claims is the verified content of a signed token.
type Claims struct {
	// Kind is the token kind, always one of KindAccess or KindRefresh.
	Kind Kind

	// Subject is the authenticated username the token was minted for.
	Subject string

	// IssuedAt is when the token was minted.
	IssuedAt time.Time

	// ExpiresAt is when the token expires. Zero for refresh tokens,
	// which carry no expiry and are revoked only by secret rotation.
	ExpiresAt time.Time
}

// wireClaims is the JWT claim layout on the wire.
type wireClaims struct {
	Kind string `json:"knd"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a shared secret.
// It is stateless and safe for concurrent use.
type Codec struct {
	secret []byte

	// now is overridable in tests.
	now func() time.Time
}

// NewCodec creates a codec signing with the given shared secret.
func NewCodec(secret []byte) *Codec {
	if len(secret) == 0 {
		panic("secret cannot be empty")
	}
	return &Codec{
		secret: secret,
		now:    time.Now,
	}
}

// Sign mints a token of the given kind for subject. A positive lifetime
// embeds an expiry; zero produces a non-expiring token, used only for
// refresh tokens.
func (c *Codec) Sign(subject string, kind Kind, lifetime time.Duration) (string, error) {
	if subject == "" {
		return "", ierrors.New(domainToken, "Sign", ierrors.ErrAuthentication, fmt.Errorf("empty subject"))
	}

	now := c.now()
	claims := wireClaims{
		Kind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if lifetime > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(lifetime))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", ierrors.New(domainToken, "Sign", ierrors.ErrAuthentication, err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token and returns its claims.
// Signature validity alone is not enough: tokens with a missing subject or
// an unknown kind are rejected as well. All failures surface uniformly as
// ErrAuthentication so callers cannot distinguish why a token was refused.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	var claims wireClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, ierrors.New(domainToken, "Verify", ierrors.ErrAuthentication, err)
	}

	if claims.Subject == "" {
		return nil, ierrors.New(domainToken, "Verify", ierrors.ErrAuthentication, fmt.Errorf("missing subject claim"))
	}

	kind := Kind(claims.Kind)
	if kind != KindAccess && kind != KindRefresh {
		return nil, ierrors.New(domainToken, "Verify", ierrors.ErrAuthentication, fmt.Errorf("unknown token kind"))
	}

	out := &Claims{
		Kind:    kind,
		Subject: claims.Subject,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
