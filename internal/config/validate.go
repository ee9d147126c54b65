package config

import (
	"fmt"
	"net/url"
	"strings"
)

// minSecretLength guards against trivially brute-forceable HMAC secrets.
const minSecretLength = 32

// Validate checks the configuration for completeness and consistency.
func Validate(c *Config) error {
	if c.UpstreamURL == "" {
		return fmt.Errorf("UPSTREAM_URL is required")
	}
	parsed, err := url.Parse(c.UpstreamURL)
	if err != nil {
		return fmt.Errorf("UPSTREAM_URL is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("UPSTREAM_URL must use http or https, got %q", parsed.Scheme)
	}

	if err := validateUpstreamAuth(c); err != nil {
		return err
	}
	return validateLocalAuth(c)
}

func validateUpstreamAuth(c *Config) error {
	switch c.UpstreamAuth {
	case UpstreamAuthNone:
		return nil

	case UpstreamAuthBasic:
		if c.UpstreamUsername == "" || c.UpstreamPassword == "" {
			return fmt.Errorf("UPSTREAM_AUTH=basic requires UPSTREAM_USERNAME and UPSTREAM_PASSWORD")
		}
		if strings.Contains(c.UpstreamUsername, ":") || strings.Contains(c.UpstreamPassword, ":") {
			return fmt.Errorf("upstream basic credentials cannot contain a colon")
		}
		return nil

	case UpstreamAuthOAuth2:
		if c.UpstreamUsername == "" || c.UpstreamPassword == "" {
			return fmt.Errorf("UPSTREAM_AUTH=oauth2 requires UPSTREAM_USERNAME and UPSTREAM_PASSWORD")
		}
		if c.UpstreamFallbackValidity <= 0 {
			return fmt.Errorf("UPSTREAM_FALLBACK_VALIDITY must be positive")
		}
		return nil

	default:
		return fmt.Errorf("UPSTREAM_AUTH must be one of none, basic, oauth2; got %q", c.UpstreamAuth)
	}
}

func validateLocalAuth(c *Config) error {
	switch c.LocalAuth {
	case LocalAuthNone:
		return nil

	case LocalAuthBasic:
		if c.UsersFile == "" {
			return fmt.Errorf("LOCAL_AUTH=basic requires LOCAL_USERS_FILE")
		}
		return nil

	case LocalAuthOAuth:
		if c.UsersFile == "" {
			return fmt.Errorf("LOCAL_AUTH=oauth requires LOCAL_USERS_FILE")
		}
		if len(c.TokenSecret) < minSecretLength {
			return fmt.Errorf("LOCAL_TOKEN_SECRET must be at least %d characters", minSecretLength)
		}
		if c.Service == "" {
			return fmt.Errorf("LOCAL_AUTH=oauth requires LOCAL_SERVICE")
		}
		if c.TokenLifetime <= 0 {
			return fmt.Errorf("LOCAL_TOKEN_LIFETIME must be positive")
		}
		return nil

	default:
		return fmt.Errorf("LOCAL_AUTH must be one of none, basic, oauth; got %q", c.LocalAuth)
	}
}
