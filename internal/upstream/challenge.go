// Package upstream talks to the remote registry on the proxy's behalf:
// it discovers the registry's token realm, exchanges the configured
// credential for a bearer token, and attaches upstream authentication to
// proxied requests.
package upstream

import (
	"fmt"
	"strings"
)

// challenge is a parsed WWW-Authenticate header.
type challenge struct {
	// Scheme is the challenge scheme as sent, e.g. "Bearer".
	Scheme string

	// Params maps lowercased parameter names to their unquoted values.
	Params map[string]string
}

// parseChallenge parses a WWW-Authenticate value: a scheme token followed
// by comma-separated key="value" pairs. Quoted values may contain commas
// and backslash-escaped quotes, which is why this is a real scanner and
// not a regex.
func parseChallenge(header string) (*challenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty challenge header")
	}

	scheme := header
	rest := ""
	if i := strings.IndexAny(header, " \t"); i >= 0 {
		scheme, rest = header[:i], strings.TrimSpace(header[i+1:])
	}
	if scheme == "" {
		return nil, fmt.Errorf("challenge has no scheme")
	}

	params := make(map[string]string)
	for len(rest) > 0 {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed challenge parameter near %q", rest)
		}
		key := strings.ToLower(strings.TrimSpace(rest[:eq]))
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, `"`) {
			unquoted, remainder, err := scanQuoted(rest)
			if err != nil {
				return nil, err
			}
			value, rest = unquoted, remainder
		} else {
			end := strings.IndexByte(rest, ',')
			if end < 0 {
				end = len(rest)
			}
			value, rest = strings.TrimSpace(rest[:end]), rest[end:]
		}

		params[key] = value

		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(rest, ",") {
			rest = strings.TrimSpace(rest[1:])
		} else if rest != "" {
			return nil, fmt.Errorf("expected comma between challenge parameters near %q", rest)
		}
	}

	return &challenge{Scheme: scheme, Params: params}, nil
}

// scanQuoted consumes a leading quoted-string and returns its unescaped
// content plus the unconsumed remainder.
func scanQuoted(s string) (string, string, error) {
	var b strings.Builder
	escaped := false
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	return "", "", fmt.Errorf("unterminated quoted string in challenge")
}
