// Package config loads and validates gateway config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds gateway configuration loaded from the environment.
type Config struct {
	// ListenAddr is the address the HTTP server listens on (e.g. :3000).
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	// BackendBaseURL is the scanner backend base URL (e.g. http://backend:8000); the proxy forwards under {base}/api/v1/.
	BackendBaseURL string `mapstructure:"BACKEND_BASE_URL"`
	// SessionSecret protects the encrypted session credential cookie. Must differ from every other secret.
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	// ServiceTokenSecret signs the per-request HS256 service tokens the backend verifies.
	ServiceTokenSecret string `mapstructure:"SERVICE_TOKEN_SECRET"`
	// InternalSyncSecret is the X-Internal-Secret value for the server-to-server /users/sync call.
	InternalSyncSecret string `mapstructure:"INTERNAL_SYNC_SECRET"`
	// SessionMaxAge is the session credential lifetime (e.g. "720h" for 30 days).
	SessionMaxAge string `mapstructure:"SESSION_MAX_AGE"`
	// ServiceTokenTTL is the service token lifetime (e.g. "1h").
	ServiceTokenTTL string `mapstructure:"SERVICE_TOKEN_TTL"`
	// AllowedBackendPrefixes is the comma-separated path allow-list for the proxy.
	AllowedBackendPrefixes string `mapstructure:"ALLOWED_BACKEND_PREFIXES"`
	// PublicBaseURL is the externally visible base URL used to build OAuth redirect URIs.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	// GoogleClientID and GoogleClientSecret enable the Google provider when both are set.
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	// GitHubClientID and GitHubClientSecret enable the GitHub provider when both are set.
	GitHubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`
	// RedisAddr enables the tier sync cache when set (e.g. redis:6379).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// TierCacheTTL is the tier cache entry lifetime (e.g. "5m").
	TierCacheTTL string `mapstructure:"TIER_CACHE_TTL"`
	// OTLPEndpoint enables OTLP telemetry export when set (e.g. http://collector:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// Env is the application environment ("development", "production"). Production tightens secret checks.
	Env string `mapstructure:"APP_ENV"`
}

// minSecretLen is enforced for all three secrets when APP_ENV=production.
const minSecretLen = 32

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required
// fields are missing or the three secrets are not pairwise distinct.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":3000")
	v.SetDefault("BACKEND_BASE_URL", "")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SERVICE_TOKEN_SECRET", "")
	v.SetDefault("INTERNAL_SYNC_SECRET", "")
	v.SetDefault("SESSION_MAX_AGE", "720h") // 30d
	v.SetDefault("SERVICE_TOKEN_TTL", "1h")
	v.SetDefault("ALLOWED_BACKEND_PREFIXES", "users/,scanner/,stats/")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:3000")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GITHUB_CLIENT_ID", "")
	v.SetDefault("GITHUB_CLIENT_SECRET", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("TIER_CACHE_TTL", "5m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.ListenAddr == "" {
		return nil, errors.New("config: LISTEN_ADDR must be set")
	}
	if cfg.BackendBaseURL == "" {
		return nil, errors.New("config: BACKEND_BASE_URL must be set")
	}
	u, err := url.Parse(cfg.BackendBaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("config: BACKEND_BASE_URL %q is not an absolute URL", cfg.BackendBaseURL)
	}

	// The three secrets sit in three different trust domains; a missing or
	// shared value silently collapses those domains, so refuse to start.
	for name, val := range map[string]string{
		"SESSION_SECRET":       cfg.SessionSecret,
		"SERVICE_TOKEN_SECRET": cfg.ServiceTokenSecret,
		"INTERNAL_SYNC_SECRET": cfg.InternalSyncSecret,
	} {
		if val == "" {
			return nil, fmt.Errorf("config: %s must be set", name)
		}
		if cfg.Env == "production" && len(val) < minSecretLen {
			return nil, fmt.Errorf("config: %s must be at least %d bytes in production", name, minSecretLen)
		}
	}
	if cfg.SessionSecret == cfg.ServiceTokenSecret ||
		cfg.SessionSecret == cfg.InternalSyncSecret ||
		cfg.ServiceTokenSecret == cfg.InternalSyncSecret {
		return nil, errors.New("config: SESSION_SECRET, SERVICE_TOKEN_SECRET, and INTERNAL_SYNC_SECRET must be distinct")
	}

	if len(cfg.Providers()) == 0 {
		return nil, errors.New("config: at least one OAuth provider (Google or GitHub) must be configured")
	}

	return &cfg, nil
}

// SessionTTL parses SessionMaxAge as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionMaxAge)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// TokenTTL parses ServiceTokenTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.ServiceTokenTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// CacheTTL parses TierCacheTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.TierCacheTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// AllowedPrefixes returns backend path prefixes from the comma-separated config.
func (c *Config) AllowedPrefixes() []string {
	if c == nil || c.AllowedBackendPrefixes == "" {
		return nil
	}
	parts := strings.Split(c.AllowedBackendPrefixes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Providers returns the names of OAuth providers that have both client ID and secret configured.
func (c *Config) Providers() []string {
	var out []string
	if c.GoogleClientID != "" && c.GoogleClientSecret != "" {
		out = append(out, "google")
	}
	if c.GitHubClientID != "" && c.GitHubClientSecret != "" {
		out = append(out, "github")
	}
	return out
}
