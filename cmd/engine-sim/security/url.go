// Package security decides which request URLs the simulator will pretend to
// call. Rejected URLs make the node fail the way a hardened worker would.
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLValidator checks protocol, host and path of a request URL
type URLValidator struct {
	allowedProtocols map[string]bool
	blockedHostnames map[string]bool
	blockedPatterns  []string
	lookup           func(host string) ([]net.IP, error)
}

// NewURLValidator creates a validator that only inspects the URL text.
// Hostnames are not resolved unless WithLookup is used.
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedProtocols: map[string]bool{"http": true, "https": true},
		blockedHostnames: map[string]bool{
			"localhost":        true,
			"::1":              true,
			"0.0.0.0":          true,
			"::":               true,
			"::ffff:127.0.0.1": true,
		},
		blockedPatterns: []string{
			"../",
			"..\\",
			"/etc/",
			"/proc/",
			"/sys/",
			"c:/",
			"c:\\",
			"%2e%2e/",
			"%2e%2e%2f",
			"..%2f",
			"%2e%2e%5c",
			"..%5c",
		},
	}
}

// WithLookup resolves hostnames and checks every address they map to.
// Lookup failures are not treated as violations.
func (v *URLValidator) WithLookup(lookup func(host string) ([]net.IP, error)) *URLValidator {
	v.lookup = lookup
	return v
}

// Validate returns an error describing the first rule the URL breaks
func (v *URLValidator) Validate(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return fmt.Errorf("protocol scheme is required")
	}
	if !v.allowedProtocols[scheme] {
		return fmt.Errorf("protocol '%s' is not allowed (only http/https permitted)", u.Scheme)
	}

	if err := v.validateHost(u.Hostname()); err != nil {
		return fmt.Errorf("host validation failed: %w", err)
	}

	if err := v.validatePath(u.Path); err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	for key, values := range u.Query() {
		for _, value := range values {
			if err := v.validatePath(value); err != nil {
				return fmt.Errorf("query parameter '%s': %w", key, err)
			}
		}
	}
	return nil
}

func (v *URLValidator) validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("hostname is required")
	}
	host = strings.ToLower(host)
	if v.blockedHostnames[host] {
		return fmt.Errorf("hostname '%s' is blocked", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		return validateIP(ip)
	}
	if v.lookup == nil {
		return nil
	}

	ips, err := v.lookup(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if err := validateIP(ip); err != nil {
			return fmt.Errorf("%s resolves to blocked address: %w", host, err)
		}
	}
	return nil
}

func validateIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("IP %s is blocked (loopback address)", ip)
	case ip.IsPrivate():
		return fmt.Errorf("IP %s is blocked (private network)", ip)
	case ip.IsLinkLocalUnicast():
		return fmt.Errorf("IP %s is blocked (link-local address)", ip)
	case ip.IsMulticast():
		return fmt.Errorf("IP %s is blocked (multicast address)", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("IP %s is blocked (unspecified address)", ip)
	}
	return nil
}

func (v *URLValidator) validatePath(p string) error {
	p = strings.ToLower(p)
	for _, pattern := range v.blockedPatterns {
		if strings.Contains(p, pattern) {
			return fmt.Errorf("path contains blocked pattern '%s'", pattern)
		}
	}
	return nil
}
