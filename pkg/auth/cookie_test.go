package auth

import (
	"testing"
)

func TestDeriveCookieSettings(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		override string
		expected CookieSettings
	}{
		{
			name:     "localhost with port",
			baseURL:  "http://localhost:8080",
			expected: CookieSettings{Secure: false, Domain: ""},
		},
		{
			name:     "127.0.0.1",
			baseURL:  "http://127.0.0.1:8080",
			expected: CookieSettings{Secure: false, Domain: ""},
		},
		{
			name:     "internal subdomain",
			baseURL:  "https://tagging.corpus.internal",
			expected: CookieSettings{Secure: true, Domain: ".corpus.internal"},
		},
		{
			name:     "bare internal host",
			baseURL:  "https://tagging.internal",
			expected: CookieSettings{Secure: true, Domain: ".internal"},
		},
		{
			name:     "public host is isolated",
			baseURL:  "https://tag.example.kg",
			expected: CookieSettings{Secure: true, Domain: ""},
		},
		{
			name:     "explicit override",
			baseURL:  "https://tag.example.kg",
			override: ".example.kg",
			expected: CookieSettings{Secure: true, Domain: ".example.kg"},
		},
		{
			name:     "override keeps http",
			baseURL:  "http://localhost:8080",
			override: "localhost",
			expected: CookieSettings{Secure: false, Domain: "localhost"},
		},
		{
			name:     "empty URL",
			baseURL:  "",
			expected: CookieSettings{Secure: true, Domain: ""},
		},
		{
			name:     "invalid URL",
			baseURL:  "://bad",
			expected: CookieSettings{Secure: true, Domain: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DeriveCookieSettings(tt.baseURL, tt.override)
			if result != tt.expected {
				t.Errorf("DeriveCookieSettings(%q, %q) = %+v, want %+v", tt.baseURL, tt.override, result, tt.expected)
			}
		})
	}
}

func TestIsHTTPS(t *testing.T) {
	if isHTTPS("http://localhost") {
		t.Error("expected http to be insecure")
	}
	if !isHTTPS("https://tag.example.kg") {
		t.Error("expected https to be secure")
	}
	if !isHTTPS("") {
		t.Error("expected empty URL to default to secure")
	}
}
