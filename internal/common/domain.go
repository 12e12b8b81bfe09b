package common

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain strips a URL's host to its public-suffix+1 form,
// lowercased (e.g. "www.sub.example.co.uk" -> "example.co.uk").
// Domain mappings are keyed on this value.
func RegistrableDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", rawURL, err)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		// Allow bare hosts like "example.com" to be passed directly
		host = strings.ToLower(strings.Split(rawURL, "/")[0])
	}
	if host == "" {
		return "", fmt.Errorf("no host in URL %q", rawURL)
	}

	// IP addresses and localhost have no registrable domain; use them as-is
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return domain, nil
}

// ValidateSiteURL checks that a URL parses as http(s) with a non-empty host.
func ValidateSiteURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}
