package telemetry

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// NormalizeHost lower-cases a hostname and strips any port and trailing dot
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.TrimSuffix(host, ".")
}

// HostOf extracts the normalized hostname of an absolute URL.
// blob: URLs resolve to their nested origin; data: and host-less URLs are errors.
func HostOf(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "data:") {
		return "", fmt.Errorf("data URL has no host")
	}
	rawURL = strings.TrimPrefix(rawURL, "blob:")

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	host := NormalizeHost(parsed.Hostname())
	if parsed.Scheme == "" || host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return host, nil
}
