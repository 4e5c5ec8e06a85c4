// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Database (package registry + checksum index)
	DatabaseURL string

	// Archive
	SourcesDir    string   // archive root, absolute
	SourcesStatic string   // URL prefix raw content is served under
	InternalDirs  []string // bookkeeping directories hidden at package roots
	VersionScheme string   // "debian" or "semver"
	SniffBytes    int      // bounded prefix read for content sniffing
	PTSPrefix     string   // package tracker link prefix
	CacheDir      string   // holds the last-update stamp

	// Read-through caches for version sets and checksum lookups
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Raw content backend ("local" or "s3", default: "local")
	RawBackend  string
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// TLS (optional; if both set, server uses HTTPS)
	TLSCertFile string
	TLSKeyFile  string

	// Admin auth (optional; admin endpoints are disabled when neither is set)
	AdminJWTSecret string
	OIDCIssuerURL  string
	OIDCClientID   string
	OIDCAdminClaim string
	OIDCAdminValue string

	// Rate limiting per client address
	RateLimitRPM int
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:     envOr("METRICS_ADDR", ":9090"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "json"),
		DatabaseURL:     envOr("DATABASE_URL", ""),
		SourcesDir:      envOr("SOURCES_DIR", ""),
		SourcesStatic:   envOr("SOURCES_STATIC", "/data"),
		InternalDirs:    envList("INTERNAL_DIRS", []string{".pc"}),
		VersionScheme:   envOr("VERSION_SCHEME", "debian"),
		SniffBytes:      envInt("SNIFF_BYTES", 512),
		PTSPrefix:       envOr("PTS_PREFIX", "https://tracker.debian.org/pkg/"),
		CacheDir:        envOr("CACHE_DIR", ""),
		CacheTTL:        envDuration("CACHE_TTL", 5*time.Minute),
		CacheMaxEntries: envInt("CACHE_MAX_ENTRIES", 10000),
		RawBackend:      envOr("RAW_BACKEND", "local"),
		S3Endpoint:      envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:        envOr("S3_BUCKET", "debsources"),
		S3AccessKey:     envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:     envOr("S3_SECRET_KEY", ""),
		S3Region:        envOr("S3_REGION", "us-east-1"),
		S3UseSSL:        envBool("S3_USE_SSL", false),
		TLSCertFile:     envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:      envOr("TLS_KEY_FILE", ""),
		AdminJWTSecret:  envOr("ADMIN_JWT_SECRET", ""),
		OIDCIssuerURL:   envOr("OIDC_ISSUER_URL", ""),
		OIDCClientID:    envOr("OIDC_CLIENT_ID", ""),
		OIDCAdminClaim:  envOr("OIDC_ADMIN_CLAIM", "is_admin"),
		OIDCAdminValue:  envOr("OIDC_ADMIN_VALUE", "true"),
		RateLimitRPM:    envInt("RATE_LIMIT_RPM", 0), // 0 = unlimited
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SourcesDir == "" {
		return nil, fmt.Errorf("SOURCES_DIR is required")
	}
	abs, err := filepath.Abs(cfg.SourcesDir)
	if err != nil {
		return nil, fmt.Errorf("resolve SOURCES_DIR: %w", err)
	}
	cfg.SourcesDir = abs

	switch cfg.RawBackend {
	case "local", "s3":
	default:
		return nil, fmt.Errorf("RAW_BACKEND must be local or s3, got %q", cfg.RawBackend)
	}
	if cfg.SniffBytes <= 0 {
		return nil, fmt.Errorf("SNIFF_BYTES must be positive")
	}
	cfg.SourcesStatic = "/" + strings.Trim(cfg.SourcesStatic, "/")

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// envList splits a comma-separated value. An explicitly empty list is
// written as a single comma.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
