package auth

import (
	"net/url"
	"strings"
)

// CookieSettings contains cookie security settings derived from base URL.
type CookieSettings struct {
	// Secure indicates whether the cookie should only be sent over HTTPS.
	Secure bool
	// Domain is the cookie domain scope; empty means the exact host.
	Domain string
}

// DeriveCookieSettings determines cookie security settings from the
// console's public base URL:
//   - localhost over http (http://localhost:8080) → Secure: false, Domain: ""
//   - internal network (https://tagging.corpus.internal) → Secure: true, Domain: ".corpus.internal"
//   - anything else → Secure unless http, Domain: "" (host-only)
//
// The configCookieDomain parameter allows explicit override, e.g. to share
// the cookie with the backend's subdomain.
func DeriveCookieSettings(baseURL string, configCookieDomain string) CookieSettings {
	if configCookieDomain != "" {
		return CookieSettings{
			Secure: isHTTPS(baseURL),
			Domain: configCookieDomain,
		}
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		// Safe defaults for invalid URLs
		return CookieSettings{Secure: true, Domain: ""}
	}

	secure := parsedURL.Scheme != "http"
	hostname := parsedURL.Hostname()

	var domain string
	switch {
	case hostname == "localhost" || hostname == "127.0.0.1":
		domain = ""
	case strings.HasSuffix(hostname, ".internal"):
		// share across internal subdomains: drop the first label
		if i := strings.Index(hostname, "."); i >= 0 && strings.Count(hostname, ".") > 1 {
			domain = hostname[i:]
		} else {
			domain = ".internal"
		}
	default:
		domain = ""
	}

	return CookieSettings{
		Secure: secure,
		Domain: domain,
	}
}

// isHTTPS determines if the given base URL uses HTTPS protocol.
// Returns true for HTTPS, false for HTTP, true for empty/invalid URLs (safe default).
func isHTTPS(baseURL string) bool {
	if baseURL == "" {
		return true
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return true
	}

	return parsedURL.Scheme != "http"
}
