package auth

import (
	"context"
	"time"

	"github.com/pullproxy/pullproxy/internal/token"
	"github.com/pullproxy/pullproxy/pkg/registry"
)

// AccessTypeOffline is the access_type value requesting a refresh token.
const AccessTypeOffline = "offline"

// GrantRequest is a parsed token-endpoint request.
type GrantRequest struct {
	GrantType    string
	Username     string
	Password     string
	RefreshToken string
	Service      string

	// Offline is true when the caller requested offline access and
	// therefore a refresh token.
	Offline bool
}

// Service issues access and refresh tokens for the OAuth local scheme.
type Service struct {
	codec    *token.Codec
	users    UserAuthenticator
	service  string
	lifetime time.Duration

	// now is overridable in tests.
	now func() time.Time
}

// NewService creates the token service. lifetime applies to access tokens
// only; refresh tokens never expire and are revoked by secret rotation.
func NewService(codec *token.Codec, users UserAuthenticator, service string, lifetime time.Duration) *Service {
	if codec == nil {
		panic("codec cannot be nil")
	}
	if users == nil {
		panic("users cannot be nil")
	}
	return &Service{
		codec:    codec,
		users:    users,
		service:  service,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Exchange handles a POST grant request. Supported grant types are
// password and refresh_token; anything else, or a service mismatch, is
// an authentication failure.
func (s *Service) Exchange(ctx context.Context, req GrantRequest) (*registry.TokenResponse, error) {
	if req.Service != s.service {
		return nil, authError("Exchange", "service not supported")
	}

	var username, refreshToken string

	switch req.GrantType {
	case registry.GrantTypePassword:
		if req.Username == "" {
			return nil, authError("Exchange", "missing username")
		}
		if req.Password == "" {
			return nil, authError("Exchange", "missing password")
		}

		ok, err := s.users.Authenticate(ctx, req.Username, req.Password)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, authError("Exchange", "invalid credentials")
		}
		username = req.Username

		if req.Offline {
			minted, err := s.codec.Sign(username, token.KindRefresh, 0)
			if err != nil {
				return nil, err
			}
			refreshToken = minted
		}

	case registry.GrantTypeRefreshToken:
		if req.RefreshToken == "" {
			return nil, authError("Exchange", "missing refresh_token")
		}

		claims, err := s.codec.Verify(req.RefreshToken)
		if err != nil {
			return nil, err
		}
		if claims.Kind != token.KindRefresh {
			return nil, authError("Exchange", "token is not a refresh token")
		}
		username = claims.Subject

		// Refresh tokens are not rotated: the caller gets the same one back.
		if req.Offline {
			refreshToken = req.RefreshToken
		}

	default:
		return nil, authError("Exchange", "grant_type not supported")
	}

	return s.issue(username, refreshToken, false)
}

// Issue mints an access token for an already-authenticated user. This
// backs the GET token endpoint, so the response duplicates the access
// token into the legacy token field.
func (s *Service) Issue(req GrantRequest, username string) (*registry.TokenResponse, error) {
	if req.Service != s.service {
		return nil, authError("Issue", "service not supported")
	}
	if username == "" {
		return nil, authError("Issue", "not authenticated")
	}

	var refreshToken string
	if req.Offline {
		minted, err := s.codec.Sign(username, token.KindRefresh, 0)
		if err != nil {
			return nil, err
		}
		refreshToken = minted
	}

	return s.issue(username, refreshToken, true)
}

func (s *Service) issue(username, refreshToken string, legacyTokenField bool) (*registry.TokenResponse, error) {
	accessToken, err := s.codec.Sign(username, token.KindAccess, s.lifetime)
	if err != nil {
		return nil, err
	}

	resp := &registry.TokenResponse{
		AccessToken:  accessToken,
		ExpiresIn:    int(s.lifetime.Seconds()),
		IssuedAt:     s.now().UTC().Format(time.RFC3339),
		RefreshToken: refreshToken,
	}
	if legacyTokenField {
		resp.Token = accessToken
	} else {
		resp.Scope = registry.DefaultTokenScope
	}
	return resp, nil
}
