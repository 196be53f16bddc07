// Package hostport provides scheme-aware authority normalization for
// host[:port] comparison. It is the single source of truth for
// default-port equivalence and for the throttle-table key form.
package hostport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize returns a lowercase, scheme-aware host[:port] with default
// ports stripped. Default ports: :443 for https, :80 for http.
// Internationalized hostnames are folded to their ASCII (punycode)
// form so the same federated host always yields the same key.
//
// Rejects values containing "://" or "/" since all inputs are
// schemeless authorities. Preserves IPv6 bracket form.
func Normalize(authority string, scheme string) (string, error) {
	authority = strings.TrimSpace(authority)
	if authority == "" {
		return "", errors.New("hostport: empty authority")
	}

	if strings.Contains(authority, "://") {
		return "", fmt.Errorf("hostport: authority %q must not contain a scheme", authority)
	}

	if strings.Contains(authority, "/") {
		return "", fmt.Errorf("hostport: authority %q must not contain a path", authority)
	}

	// Use a dummy scheme so url.Parse handles IPv6 brackets and port splitting.
	dummy := "dummy://" + authority
	u, err := url.Parse(dummy)
	if err != nil {
		return "", fmt.Errorf("hostport: invalid authority %q: %w", authority, err)
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return "", fmt.Errorf("hostport: authority %q has no host", authority)
	}

	// IP literals skip IDNA; unicode hostnames fold to punycode.
	if net.ParseIP(hostname) == nil {
		if ascii, err := idna.Lookup.ToASCII(hostname); err == nil {
			hostname = ascii
		}
	}

	port := u.Port()
	scheme = strings.ToLower(scheme)

	if isDefaultPort(port, scheme) {
		port = ""
	}

	if port == "" {
		// IPv6 addresses need brackets when output as standalone authorities.
		if strings.Contains(hostname, ":") {
			return "[" + hostname + "]", nil
		}
		return hostname, nil
	}

	return net.JoinHostPort(hostname, port), nil
}

// FromURL extracts the normalized host[:port] key from a request URL.
func FromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("hostport: invalid url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("hostport: url %q has no host", rawURL)
	}
	return Normalize(u.Host, u.Scheme)
}

func isDefaultPort(port, scheme string) bool {
	switch scheme {
	case "https":
		return port == "443"
	case "http":
		return port == "80"
	default:
		return false
	}
}
