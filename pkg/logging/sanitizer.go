// Package logging redacts credentials from values before they are logged.
package logging

import (
	"regexp"
)

const (
	// MaxBodyLogLength is the maximum length of a response body to log
	MaxBodyLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx in form or query encoding
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// "password": "xxx" and token fields in JSON bodies
	jsonSecretPattern = regexp.MustCompile(`(?i)"(password|access_token|refresh_token|token)"\s*:\s*"[^"]*"`)

	// Pattern to match JWT tokens (three base64 segments separated by dots)
	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// session cookies as they appear in Cookie / Set-Cookie headers
	cookiePattern = regexp.MustCompile(`(?i)((?:session|sid|token)[A-Za-z0-9_-]*)=[^;\s]+`)
)

// SanitizeError sanitizes error messages that might contain credentials.
// Use this before logging any error returned by the backend client.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// SanitizeText removes passwords, bearer tokens and session cookies.
func SanitizeText(s string) string {
	if s == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	sanitized = jsonSecretPattern.ReplaceAllString(sanitized, `"${1}":"`+RedactedText+`"`)
	sanitized = jwtPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = cookiePattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return sanitized
}

// SanitizeBody truncates and sanitizes a response body for logging.
func SanitizeBody(body []byte) string {
	return TruncateString(SanitizeText(string(body)), MaxBodyLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
