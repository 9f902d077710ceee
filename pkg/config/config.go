// Package config loads application configuration from LEXVAULT_*
// environment variables with validated defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lexvault/lexvault/pkg/observability"
)

// Environments. Cookie and error-detail behavior key off this.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Ghost         GhostConfig
	SSO           SSOConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	Environment    string
	AllowedOrigins []string
}

// Production reports whether the server runs with production hardening
// (Secure cookies, no error detail on the wire).
func (c ServerConfig) Production() bool {
	return c.Environment == EnvProduction
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration. When Addr is empty the service
// falls back to in-process session and revocation stores.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether Redis-backed stores should be used.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AuthConfig holds credential lifetimes and the signing secret
type AuthConfig struct {
	TokenSecret     string
	TokenIssuer     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AdminTokenTTL   time.Duration
	SessionTTL      time.Duration
}

// GhostConfig holds impersonation settings
type GhostConfig struct {
	MaxDuration   time.Duration
	SweepInterval time.Duration
}

// SSOConfig holds OIDC single sign-on settings
type SSOConfig struct {
	Enabled      bool
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("LEXVAULT_HOST", "0.0.0.0"),
			Port:            getEnv("LEXVAULT_PORT", "8080"),
			ReadTimeout:     getEnvDuration("LEXVAULT_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("LEXVAULT_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("LEXVAULT_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("LEXVAULT_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("LEXVAULT_HEALTH_PORT", "9090"),
			Environment:     getEnv("LEXVAULT_ENV", EnvDevelopment),
			AllowedOrigins:  getEnvList("LEXVAULT_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             getEnv("LEXVAULT_POSTGRES_URL", ""),
			MaxOpenConns:    getEnvInt("LEXVAULT_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("LEXVAULT_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("LEXVAULT_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("LEXVAULT_REDIS_ADDR", ""),
			Password: getEnv("LEXVAULT_REDIS_PASSWORD", ""),
			DB:       getEnvInt("LEXVAULT_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			TokenSecret:     getEnv("LEXVAULT_TOKEN_SECRET", ""),
			TokenIssuer:     getEnv("LEXVAULT_TOKEN_ISSUER", "lexvault"),
			AccessTokenTTL:  getEnvDuration("LEXVAULT_ACCESS_TOKEN_TTL", 4*time.Hour),
			RefreshTokenTTL: getEnvDuration("LEXVAULT_REFRESH_TOKEN_TTL", 14*24*time.Hour),
			AdminTokenTTL:   getEnvDuration("LEXVAULT_ADMIN_TOKEN_TTL", 8*time.Hour),
			SessionTTL:      getEnvDuration("LEXVAULT_SESSION_TTL", 12*time.Hour),
		},
		Ghost: GhostConfig{
			MaxDuration:   getEnvDuration("LEXVAULT_GHOST_MAX_DURATION", time.Hour),
			SweepInterval: getEnvDuration("LEXVAULT_GHOST_SWEEP_INTERVAL", 5*time.Minute),
		},
		SSO: SSOConfig{
			Enabled:      getEnvBool("LEXVAULT_SSO_ENABLED", false),
			IssuerURL:    getEnv("LEXVAULT_SSO_ISSUER_URL", ""),
			ClientID:     getEnv("LEXVAULT_SSO_CLIENT_ID", ""),
			ClientSecret: getEnv("LEXVAULT_SSO_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("LEXVAULT_SSO_REDIRECT_URL", ""),
			Scopes:       getEnvList("LEXVAULT_SSO_SCOPES", []string{"openid", "profile", "email"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(strings.ToLower(getEnv("LEXVAULT_LOG_LEVEL", "info"))),
			MetricsEnabled: getEnvBool("LEXVAULT_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.Environment != EnvDevelopment && c.Server.Environment != EnvProduction {
		return fmt.Errorf("invalid environment: %s (must be development or production)", c.Server.Environment)
	}

	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("token secret is required")
	}
	if c.Server.Production() && len(c.Auth.TokenSecret) < 32 {
		return fmt.Errorf("token secret must be at least 32 bytes in production")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 || c.Auth.AdminTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTL {
		return fmt.Errorf("access token lifetime must be shorter than refresh token lifetime")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Ghost.MaxDuration <= 0 {
		return fmt.Errorf("ghost max duration must be positive")
	}

	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" {
			return fmt.Errorf("SSO issuer URL is required when SSO is enabled")
		}
		if c.SSO.ClientID == "" || c.SSO.ClientSecret == "" {
			return fmt.Errorf("SSO client credentials are required when SSO is enabled")
		}
		if c.SSO.RedirectURL == "" {
			return fmt.Errorf("SSO redirect URL is required when SSO is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
