// Package users provides a file-backed credential store for the proxy's
// local authentication strategies. Users are declared in a YAML file with
// bcrypt password hashes and a per-user repository list; the file can be
// hot-reloaded while the proxy is running.
package users

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// file is the on-disk YAML layout.
//
//	users:
//	  - username: alice
//	    password_hash: $2a$10$...
//	    repositories:
//	      - team/app
type file struct {
	Users []entry `yaml:"users"`
}

type entry struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"`
	Repositories []string `yaml:"repositories"`
}

type record struct {
	passwordHash []byte
	repositories []string
}

// Store holds the parsed user set. It is safe for concurrent use; Reload
// swaps the whole set atomically under the lock.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	users map[string]record
}

// NewStore loads the users file at path. A user entry without a username
// or password hash is a configuration error.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the users file and replaces the in-memory set.
// On failure the previous set stays in effect.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read users file: %w", err)
	}

	var parsed file
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse users file %s: %w", s.path, err)
	}

	users := make(map[string]record, len(parsed.Users))
	for _, e := range parsed.Users {
		if e.Username == "" {
			return fmt.Errorf("users file %s: entry with empty username", s.path)
		}
		if e.PasswordHash == "" {
			return fmt.Errorf("users file %s: user %q has no password_hash", s.path, e.Username)
		}
		if _, dup := users[e.Username]; dup {
			return fmt.Errorf("users file %s: duplicate user %q", s.path, e.Username)
		}
		// An explicitly empty repository list is a valid grant of zero
		// repositories; it must survive as non-nil.
		repos := e.Repositories
		if repos == nil {
			repos = []string{}
		}
		users[e.Username] = record{
			passwordHash: []byte(e.PasswordHash),
			repositories: repos,
		}
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()

	s.logger.Info("users file loaded", "path", s.path, "users", len(users))
	return nil
}

// Authenticate reports whether the username/password pair matches a known
// user. It implements the OAuth gate's authenticator contract.
func (s *Store) Authenticate(_ context.Context, username, password string) (bool, error) {
	s.mu.RLock()
	rec, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	return bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)) == nil, nil
}

// ResolveRepositories returns the repositories granted to username.
// Unknown users resolve to no repositories rather than an error: a token
// may outlive its user, and the resulting empty scope denies everything.
func (s *Store) ResolveRepositories(_ context.Context, username string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[username]
	if !ok {
		return []string{}, nil
	}
	out := make([]string, len(rec.repositories))
	copy(out, rec.repositories)
	return out, nil
}

// BasicAccess adapts a Store to the basic gate's authenticator contract,
// which reports credential rejection and the granted scope in one call.
type BasicAccess struct {
	store *Store
}

// NewBasicAccess wraps store for use by the basic local strategy.
func NewBasicAccess(store *Store) *BasicAccess {
	if store == nil {
		panic("store cannot be nil")
	}
	return &BasicAccess{store: store}
}

// Authenticate validates the credentials and returns the user's scope.
// ok=false means the credentials were rejected; a valid user with an
// empty repository list authenticates successfully with zero scope.
func (a *BasicAccess) Authenticate(ctx context.Context, username, password string) ([]string, bool, error) {
	ok, err := a.store.Authenticate(ctx, username, password)
	if err != nil || !ok {
		return nil, false, err
	}

	repos, err := a.store.ResolveRepositories(ctx, username)
	if err != nil {
		return nil, false, err
	}
	return repos, true, nil
}
