// Package config provides configuration management for the registry pull
// proxy. Configuration is loaded from environment variables with sensible
// defaults.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Local authentication strategy names.
const (
	LocalAuthNone  = "none"
	LocalAuthBasic = "basic"
	LocalAuthOAuth = "oauth"
)

// Upstream authentication variant names.
const (
	UpstreamAuthNone   = "none"
	UpstreamAuthBasic  = "basic"
	UpstreamAuthOAuth2 = "oauth2"
)

// Config holds the complete proxy configuration in a flat structure.
type Config struct {
	// Server settings.
	Addr  string `env:"SERVER_ADDR" envDefault:":8080"`
	Realm string `env:"SERVER_REALM" envDefault:"Registry Proxy"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	// WriteTimeout bounds the whole response, blob streaming included,
	// so it defaults generously.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`

	// Environment controls whether error envelopes carry diagnostic
	// detail; anything but "development" suppresses it.
	Environment string `env:"ENVIRONMENT" envDefault:"production"`

	// Upstream registry settings.
	UpstreamURL     string        `env:"UPSTREAM_URL"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`

	// UpstreamAuth selects how the proxy authenticates to the upstream:
	// none, basic, or oauth2.
	UpstreamAuth             string        `env:"UPSTREAM_AUTH" envDefault:"none"`
	UpstreamUsername         string        `env:"UPSTREAM_USERNAME"`
	UpstreamPassword         string        `env:"UPSTREAM_PASSWORD"`
	UpstreamForceScope       string        `env:"UPSTREAM_FORCE_SCOPE"`
	UpstreamClientID         string        `env:"UPSTREAM_CLIENT_ID"`
	UpstreamFallbackValidity time.Duration `env:"UPSTREAM_FALLBACK_VALIDITY" envDefault:"1h"`

	// LocalAuth selects how clients authenticate to the proxy: none,
	// basic, or oauth.
	LocalAuth string `env:"LOCAL_AUTH" envDefault:"none"`

	// LocalScope is the static scope granted to every caller under the
	// none strategy.
	LocalScope []string `env:"LOCAL_SCOPE"`

	// UsersFile is the YAML credential file backing the basic and oauth
	// strategies.
	UsersFile string `env:"LOCAL_USERS_FILE"`

	// Token settings for the oauth strategy.
	TokenSecret   string        `env:"LOCAL_TOKEN_SECRET"`
	TokenLifetime time.Duration `env:"LOCAL_TOKEN_LIFETIME" envDefault:"15m"`
	Service       string        `env:"LOCAL_SERVICE"`
	UseHTTPS      bool          `env:"LOCAL_USE_HTTPS" envDefault:"true"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Development reports whether diagnostic detail may be exposed.
func (c *Config) Development() bool {
	return c.Environment == "development"
}
