// Package config handles configuration loading for the gateway.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Auth    AuthConfig
	Admin   AdminConfig
	Catalog CatalogConfig
	Redis   RedisConfig
	Logging LoggingConfig
}

// ServerConfig holds the PostgreSQL wire-protocol listener configuration.
type ServerConfig struct {
	BindAddr        string
	Env             string
	ShutdownTimeout time.Duration
	TLSCertFile     string
	TLSKeyFile      string
	TLSCAFile       string
	RequireClientCert bool
	KeepAliveInterval time.Duration
}

// BackendConfig holds historian backend HTTP+JSON API configuration.
type BackendConfig struct {
	GraphQLURL             string
	RequestTimeout         time.Duration
	SessionExtensionPeriod time.Duration
}

// AuthConfig holds gateway authentication configuration.
type AuthConfig struct {
	Method           string // "md5" or "scram-sha-256"
	NoAuthUsername   string
	NoAuthPassword   string
	NoAuthConfigured bool
}

// AdminConfig holds the ambient HTTP admin-plane configuration.
type AdminConfig struct {
	BindAddr string
}

// CatalogConfig holds the pre-built read-only catalog configuration.
type CatalogConfig struct {
	SQLitePath string
}

// RedisConfig holds the optional distributed pattern-resolution cache configuration.
type RedisConfig struct {
	URL string
	TTL time.Duration
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load parses CLI flags and environment variables into a Config.
//
// Flags take precedence over environment variables, which take precedence
// over the defaults below. A .env file in the working directory, if present,
// is loaded before flags are parsed.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Env:               getEnv("ENV", "development"),
			ShutdownTimeout:   getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
			KeepAliveInterval: getDurationEnv("KEEPALIVE_INTERVAL", 45*time.Second),
		},
		Backend: BackendConfig{
			RequestTimeout:         getDurationEnv("BACKEND_REQUEST_TIMEOUT", 30*time.Second),
			SessionExtensionPeriod: getDurationEnv("SESSION_EXTENSION_INTERVAL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
			TTL: getDurationEnv("PATTERN_CACHE_TTL", 5*time.Minute),
		},
	}

	bindAddr := flag.String("bind-addr", getEnv("BIND_ADDR", "127.0.0.1:5432"), "address the PostgreSQL wire listener binds to")
	adminAddr := flag.String("admin-addr", getEnv("ADMIN_ADDR", "127.0.0.1:8090"), "address the HTTP admin plane (health/metrics) binds to")
	graphqlURL := flag.String("graphql-url", getEnv("GRAPHQL_HTTP_URL", ""), "historian backend HTTP+JSON API endpoint")
	debug := flag.Bool("debug", getBoolEnv("DEBUG", false), "enable verbose (debug level) logging")
	noAuthUser := flag.String("no-auth-username", getEnv("NO_AUTH_USERNAME", ""), "skip client authentication and use this backend username")
	noAuthPassword := flag.String("no-auth-password", getEnv("NO_AUTH_PASSWORD", ""), "backend password paired with --no-auth-username")
	tlsCert := flag.String("tls-cert", getEnv("TLS_CERT_FILE", ""), "PEM certificate file for the wire listener")
	tlsKey := flag.String("tls-key", getEnv("TLS_KEY_FILE", ""), "PEM key file for the wire listener")
	tlsCA := flag.String("tls-ca-cert", getEnv("TLS_CA_FILE", ""), "PEM CA bundle used to verify client certificates")
	requireClientCert := flag.Bool("require-client-cert", getBoolEnv("TLS_REQUIRE_CLIENT_CERT", false), "require and verify a client certificate")
	sessionExtension := flag.Duration("session-extension-interval", cfg.Backend.SessionExtensionPeriod, "interval between backend session-extension calls")
	authMethod := flag.String("auth-method", getEnv("AUTH_METHOD", "md5"), "client authentication method: md5 or scram-sha-256")
	catalogPath := flag.String("catalog-sqlite", getEnv("CATALOG_SQLITE_PATH", ""), "path to the pre-built read-only SQLite catalog")

	if !flag.Parsed() {
		flag.Parse()
	}

	cfg.Server.BindAddr = *bindAddr
	cfg.Server.TLSCertFile = *tlsCert
	cfg.Server.TLSKeyFile = *tlsKey
	cfg.Server.TLSCAFile = *tlsCA
	cfg.Server.RequireClientCert = *requireClientCert
	cfg.Admin.BindAddr = *adminAddr
	cfg.Backend.GraphQLURL = *graphqlURL
	cfg.Backend.SessionExtensionPeriod = *sessionExtension
	cfg.Catalog.SQLitePath = *catalogPath
	cfg.Auth.Method = strings.ToLower(*authMethod)

	if *debug {
		cfg.Logging.Level = "debug"
	}

	if (*noAuthUser == "") != (*noAuthPassword == "") {
		return nil, fmt.Errorf("--no-auth-username and --no-auth-password must both be set or neither")
	}
	cfg.Auth.NoAuthUsername = *noAuthUser
	cfg.Auth.NoAuthPassword = *noAuthPassword
	cfg.Auth.NoAuthConfigured = *noAuthUser != ""

	if cfg.Backend.GraphQLURL == "" {
		return nil, fmt.Errorf("backend API URL is required: set --graphql-url or GRAPHQL_HTTP_URL")
	}
	if cfg.Auth.Method != "md5" && cfg.Auth.Method != "scram-sha-256" {
		return nil, fmt.Errorf("unsupported auth method %q: must be md5 or scram-sha-256", cfg.Auth.Method)
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// TLSEnabled returns true if the wire listener should offer TLS.
func (c *Config) TLSEnabled() bool {
	return c.Server.TLSCertFile != "" && c.Server.TLSKeyFile != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
