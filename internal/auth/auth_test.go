package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/pullproxy/pullproxy/internal/errors"
	"github.com/pullproxy/pullproxy/internal/token"
	"github.com/pullproxy/pullproxy/pkg/registry"
)

// mockBasicAuthenticator implements BasicAuthenticator.
type mockBasicAuthenticator struct {
	repos  []string
	ok     bool
	err    error
	called int
}

func (m *mockBasicAuthenticator) Authenticate(_ context.Context, _, _ string) ([]string, bool, error) {
	m.called++
	return m.repos, m.ok, m.err
}

// mockUsers implements UserAuthenticator with a single fixed user.
type mockUsers struct {
	username string
	password string
	repos    []string
	err      error
}

func (m *mockUsers) Authenticate(_ context.Context, username, password string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return username == m.username && password == m.password, nil
}

func (m *mockUsers) ResolveRepositories(_ context.Context, username string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.repos, nil
}

func testRequest(t *testing.T) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, "/v2/", nil)
}

func TestBasicGate_MissingCredentials(t *testing.T) {
	t.Parallel()

	authenticator := &mockBasicAuthenticator{}
	gate := NewBasicGate(authenticator)

	_, err := gate.Authenticate(testRequest(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ierrors.ErrAuthentication)
	assert.Zero(t, authenticator.called, "authenticator must not run without credentials")
}

func TestBasicGate_Rejected(t *testing.T) {
	t.Parallel()

	gate := NewBasicGate(&mockBasicAuthenticator{ok: false})

	r := testRequest(t)
	r.SetBasicAuth("alice", "wrong")
	_, err := gate.Authenticate(r)
	require.Error(t, err)
	assert.ErrorIs(t, err, ierrors.ErrAuthentication)
}

func TestBasicGate_ScopeMatchesAuthenticatorResult(t *testing.T) {
	t.Parallel()

	gate := NewBasicGate(&mockBasicAuthenticator{ok: true, repos: []string{"team/app", "team/db"}})

	r := testRequest(t)
	r.SetBasicAuth("alice", "secret")
	grant, err := gate.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", grant.Username)
	assert.Equal(t, []string{"team/app", "team/db"}, grant.Scope.List())
	assert.True(t, grant.Scope.Has("team/db"))
	assert.False(t, grant.Scope.Has("other/repo"))
}

func TestBasicGate_EmptyScopeIsStillAuthenticated(t *testing.T) {
	t.Parallel()

	gate := NewBasicGate(&mockBasicAuthenticator{ok: true, repos: []string{}})

	r := testRequest(t)
	r.SetBasicAuth("alice", "secret")
	grant, err := gate.Authenticate(r)
	require.NoError(t, err)
	assert.Empty(t, grant.Scope.List())
}

func TestBasicGate_StoreErrorIsNotAuthenticationFailure(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("users file unreadable")
	gate := NewBasicGate(&mockBasicAuthenticator{err: storeErr})

	r := testRequest(t)
	r.SetBasicAuth("alice", "secret")
	_, err := gate.Authenticate(r)
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ierrors.ErrAuthentication)
}

func TestOAuthGate_Authenticate(t *testing.T) {
	t.Parallel()

	codec := token.NewCodec([]byte("gate-secret"))
	users := &mockUsers{username: "alice", password: "secret", repos: []string{"team/app"}}
	gate := NewOAuthGate(codec, users)

	access, err := codec.Sign("alice", token.KindAccess, time.Minute)
	require.NoError(t, err)
	refresh, err := codec.Sign("alice", token.KindRefresh, 0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{name: "valid access token", header: "Bearer " + access},
		{name: "scheme is case-insensitive", header: "bearer " + access},
		{name: "refresh token rejected as access credential", header: "Bearer " + refresh, wantErr: true},
		{name: "garbage token", header: "Bearer nope", wantErr: true},
		{name: "missing header", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := testRequest(t)
			if tt.header != "" {
				r.Header.Set(registry.HeaderAuthorization, tt.header)
			}

			grant, err := gate.Authenticate(r)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ierrors.ErrAuthentication)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", grant.Username)
			assert.Equal(t, []string{"team/app"}, grant.Scope.List())
		})
	}
}

func TestOAuthGate_ScopeIsResolvedFreshPerRequest(t *testing.T) {
	t.Parallel()

	codec := token.NewCodec([]byte("gate-secret"))
	users := &mockUsers{username: "alice", password: "secret", repos: []string{"team/app"}}
	gate := NewOAuthGate(codec, users)

	access, err := codec.Sign("alice", token.KindAccess, time.Minute)
	require.NoError(t, err)

	r := testRequest(t)
	r.Header.Set(registry.HeaderAuthorization, "Bearer "+access)
	grant, err := gate.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"team/app"}, grant.Scope.List())

	// Authorization changed after issuance; the same token now sees it.
	users.repos = []string{"team/app", "team/new"}
	grant, err = gate.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"team/app", "team/new"}, grant.Scope.List())
}

func TestOAuthGate_AuthenticateBasic(t *testing.T) {
	t.Parallel()

	codec := token.NewCodec([]byte("gate-secret"))
	users := &mockUsers{username: "alice", password: "secret", repos: []string{"team/app"}}
	gate := NewOAuthGate(codec, users)

	r := testRequest(t)
	r.SetBasicAuth("alice", "secret")
	grant, err := gate.AuthenticateBasic(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", grant.Username)

	r = testRequest(t)
	r.SetBasicAuth("alice", "wrong")
	_, err = gate.AuthenticateBasic(r)
	assert.ErrorIs(t, err, ierrors.ErrAuthentication)

	_, err = gate.AuthenticateBasic(testRequest(t))
	assert.ErrorIs(t, err, ierrors.ErrAuthentication)
}

func TestNoneGate_StaticScope(t *testing.T) {
	t.Parallel()

	gate := NewNoneGate([]string{"team/app"})
	grant, err := gate.Authenticate(testRequest(t))
	require.NoError(t, err)
	assert.Empty(t, grant.Username)
	assert.Equal(t, []string{"team/app"}, grant.Scope.List())
}

func testService(t *testing.T, users UserAuthenticator) (*Service, *token.Codec) {
	t.Helper()
	codec := token.NewCodec([]byte("service-secret"))
	return NewService(codec, users, "registry.example.com", 15*time.Minute), codec
}

func TestService_Exchange_PasswordGrant(t *testing.T) {
	t.Parallel()

	users := &mockUsers{username: "alice", password: "secret", repos: []string{"team/app"}}
	svc, codec := testService(t, users)

	resp, err := svc.Exchange(context.Background(), GrantRequest{
		GrantType: registry.GrantTypePassword,
		Username:  "alice",
		Password:  "secret",
		Service:   "registry.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, registry.DefaultTokenScope, resp.Scope)
	assert.Empty(t, resp.RefreshToken)
	assert.Empty(t, resp.Token)

	claims, err := codec.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, token.KindAccess, claims.Kind)
	assert.Equal(t, "alice", claims.Subject)

	_, err = time.Parse(time.RFC3339, resp.IssuedAt)
	assert.NoError(t, err)
}

func TestService_Exchange_PasswordGrantOffline(t *testing.T) {
	t.Parallel()

	users := &mockUsers{username: "alice", password: "secret"}
	svc, codec := testService(t, users)

	resp, err := svc.Exchange(context.Background(), GrantRequest{
		GrantType: registry.GrantTypePassword,
		Username:  "alice",
		Password:  "secret",
		Service:   "registry.example.com",
		Offline:   true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)

	claims, err := codec.Verify(resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, token.KindRefresh, claims.Kind)
	assert.True(t, claims.ExpiresAt.IsZero())
}

func TestService_Exchange_RefreshGrant(t *testing.T) {
	t.Parallel()

	users := &mockUsers{username: "alice", password: "secret"}
	svc, codec := testService(t, users)

	refresh, err := codec.Sign("alice", token.KindRefresh, 0)
	require.NoError(t, err)

	resp, err := svc.Exchange(context.Background(), GrantRequest{
		GrantType:    registry.GrantTypeRefreshToken,
		RefreshToken: refresh,
		Service:      "registry.example.com",
		Offline:      true,
	})
	require.NoError(t, err)

	claims, err := codec.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, token.KindAccess, claims.Kind)

	// Refresh tokens are not rotated.
	assert.Equal(t, refresh, resp.RefreshToken)
}

func TestService_Exchange_Failures(t *testing.T) {
	t.Parallel()

	users := &mockUsers{username: "alice", password: "secret"}
	svc, codec := testService(t, users)

	access, err := codec.Sign("alice", token.KindAccess, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  GrantRequest
	}{
		{
			name: "wrong password",
			req: GrantRequest{
				GrantType: registry.GrantTypePassword,
				Username:  "alice", Password: "wrong",
				Service: "registry.example.com",
			},
		},
		{
			name: "missing username",
			req: GrantRequest{
				GrantType: registry.GrantTypePassword,
				Password:  "secret",
				Service:   "registry.example.com",
			},
		},
		{
			name: "missing password",
			req: GrantRequest{
				GrantType: registry.GrantTypePassword,
				Username:  "alice",
				Service:   "registry.example.com",
			},
		},
		{
			name: "access token used as refresh token",
			req: GrantRequest{
				GrantType:    registry.GrantTypeRefreshToken,
				RefreshToken: access,
				Service:      "registry.example.com",
			},
		},
		{
			name: "missing refresh token",
			req: GrantRequest{
				GrantType: registry.GrantTypeRefreshToken,
				Service:   "registry.example.com",
			},
		},
		{
			name: "unknown grant type",
			req: GrantRequest{
				GrantType: "client_credentials",
				Service:   "registry.example.com",
			},
		},
		{
			name: "service mismatch",
			req: GrantRequest{
				GrantType: registry.GrantTypePassword,
				Username:  "alice", Password: "secret",
				Service: "other.example.com",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Exchange(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ierrors.ErrAuthentication)
		})
	}
}

func TestService_Issue_DuplicatesLegacyTokenField(t *testing.T) {
	t.Parallel()

	users := &mockUsers{username: "alice", password: "secret"}
	svc, codec := testService(t, users)

	resp, err := svc.Issue(GrantRequest{Service: "registry.example.com", Offline: true}, "alice")
	require.NoError(t, err)
	assert.Equal(t, resp.AccessToken, resp.Token)
	require.NotEmpty(t, resp.RefreshToken)

	claims, err := codec.Verify(resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, token.KindRefresh, claims.Kind)
}

func TestService_Issue_ServiceMismatch(t *testing.T) {
	t.Parallel()

	users := &mockUsers{username: "alice", password: "secret"}
	svc, _ := testService(t, users)

	_, err := svc.Issue(GrantRequest{Service: "other.example.com"}, "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ierrors.ErrAuthentication)
}

func TestChallenges(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `Basic realm="Registry Proxy"`, BasicChallenge("Registry Proxy"))
	assert.Equal(t,
		`Bearer realm="https://registry.example.com/token",service="registry.example.com",scope="repository:user/image:pull"`,
		BearerChallenge("registry.example.com", true, registry.DefaultTokenScope))
	assert.Equal(t,
		`Bearer realm="http://registry.example.com/token",service="registry.example.com",scope="repository:user/image:pull"`,
		BearerChallenge("registry.example.com", false, registry.DefaultTokenScope))
}
