package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read when present; every value can also come from
// the environment.
const DefaultConfigFile = "config.yaml"

// Config holds all configuration for the tagging console.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (session secret, Redis password) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// API is the tagging backend.
	API APIConfig `yaml:"api"`

	// Session cookie and identity resolution.
	Auth AuthConfig `yaml:"auth"`

	// CookieDomain is the domain for the session cookie (optional).
	// If empty, it will be auto-derived from BaseURL.
	CookieDomain string `yaml:"cookie_domain" env:"COOKIE_DOMAIN" env-default:""`

	// Redis holds editor drafts when configured; drafts stay in memory otherwise.
	Redis RedisConfig `yaml:"redis"`

	// UI behaviour
	UI UIConfig `yaml:"ui"`

	// TaxonomyPath overrides the built-in tag taxonomy (optional).
	TaxonomyPath string `yaml:"taxonomy_path" env:"TAXONOMY_PATH" env-default:""`

	// CORSAllowedOriginsStr is a comma-separated origin list for /api/.
	CORSAllowedOriginsStr string   `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:""`
	CORSAllowedOrigins    []string `yaml:"-"`
}

// APIConfig describes the tagging backend.
type APIConfig struct {
	// BaseURL is the backend's REST root, e.g. http://localhost:8000.
	BaseURL string `yaml:"base_url" env:"API_BASE_URL" env-required:"true"`
	// Timeout bounds each backend call. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"0s"`
	// Retries is the number of retries for reads that failed in transport.
	Retries int `yaml:"retries" env:"API_RETRIES" env-default:"2"`
}

// AuthConfig holds session-related configuration.
type AuthConfig struct {
	// SessionSecret signs and encrypts the session cookie. It must be the
	// same across restarts and replicas.
	SessionSecret string `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML

	// SessionMaxAge is the cookie lifetime.
	SessionMaxAge time.Duration `yaml:"session_max_age" env:"SESSION_MAX_AGE" env-default:"24h"`

	// Strategy selects how a stored credential becomes an identity:
	// "whoami" asks the backend on every request, "token" decodes the
	// access token locally.
	Strategy string `yaml:"strategy" env:"AUTH_STRATEGY" env-default:"whoami"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2". Only used by the token strategy.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// RedisConfig holds Redis configuration for the draft store.
type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	DraftTTL time.Duration `yaml:"draft_ttl" env:"DRAFT_TTL" env-default:"12h"`
}

// UIConfig holds list and upload settings.
type UIConfig struct {
	PageSize       int           `yaml:"page_size" env:"PAGE_SIZE" env-default:"20"`
	SearchDebounce time.Duration `yaml:"search_debounce" env:"SEARCH_DEBOUNCE" env-default:"500ms"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"10485760"`
}

// Load reads configuration from config.yaml, when present, with environment
// variable overrides. The version parameter is injected at build time and
// set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigFile, version)
}

// LoadFile is Load with an explicit file. A missing file is not an error;
// configuration then comes from the environment alone.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	// Parse complex fields
	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Validate TLS configuration
	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	// A backend on the host is not "localhost" from inside a container.
	cfg.API.BaseURL = ResolveURLForDocker(cfg.API.BaseURL)

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.CORSAllowedOrigins = splitList(c.CORSAllowedOriginsStr)
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	return nil
}

// validate checks values that have no usable default.
func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api base url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	switch c.Auth.Strategy {
	case "whoami", "token":
	default:
		return fmt.Errorf("auth strategy must be \"whoami\" or \"token\", got %q", c.Auth.Strategy)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api timeout must not be negative")
	}
	if c.API.Retries < 0 {
		return fmt.Errorf("api retries must not be negative")
	}
	if c.UI.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.UI.PageSize)
	}
	if c.UI.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.UI.MaxUploadBytes)
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// IsLocal reports whether the console runs in a local development setup.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "dev"
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Addr returns host:port of the Redis server, or "" when Redis is disabled.
func (c *RedisConfig) Addr() string {
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
