// Debsources Server
//
// Features:
// - Prometheus metrics & structured logging (zap)
// - Source archive browsing (packages, directories, file metadata)
// - Raw content with Range support (local or S3 backend)
// - SHA-256 checksum lookup
// - Admin cache purge & log level (JWT/OIDC)
// - Per-client rate limiting
package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/debsources/debsources/internal/api"
	"github.com/debsources/debsources/internal/archive"
	"github.com/debsources/debsources/internal/auth"
	"github.com/debsources/debsources/internal/checksum"
	"github.com/debsources/debsources/internal/config"
	"github.com/debsources/debsources/internal/logging"
	"github.com/debsources/debsources/internal/metrics"
	"github.com/debsources/debsources/internal/ratelimit"
	"github.com/debsources/debsources/internal/registry"
	"github.com/debsources/debsources/internal/registry/postgres"
	"github.com/debsources/debsources/internal/retry"
	"github.com/debsources/debsources/internal/storage"
	"github.com/debsources/debsources/internal/version"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Debsources Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("sources", cfg.SourcesDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL; the database may still be starting.
	logging.Info("connecting to PostgreSQL...")
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 10
	retryCfg.InitialWait = time.Second
	store, err := retry.DoWithResult(ctx, retryCfg, func() (*postgres.Store, error) {
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			logging.Warn("database not ready", zap.Error(err))
		}
		return s, err
	})
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	// Run migrations
	migrationsDir := findMigrationsDir()
	if migrationsDir != "" {
		logging.Info("running migrations...", zap.String("dir", migrationsDir))
		if err := store.Migrate(migrationsDir); err != nil {
			logging.Fatal("migration failed", zap.Error(err))
		}
	}

	// Archive core
	versions, err := version.ForScheme(cfg.VersionScheme)
	if err != nil {
		logging.Fatal("invalid version scheme", zap.Error(err))
	}
	cachedRegistry := registry.NewCached(store, cfg.CacheTTL, cfg.CacheMaxEntries)
	resolver, err := archive.NewResolver(cfg.SourcesDir, cachedRegistry, versions)
	if err != nil {
		logging.Fatal("archive root unavailable", zap.Error(err))
	}
	defer resolver.Close()

	checksums := checksum.NewIndex(store, checksum.WithCache(cfg.CacheTTL, cfg.CacheMaxEntries))
	logging.Info("archive initialized",
		zap.String("version_scheme", cfg.VersionScheme),
		zap.Strings("internal_dirs", cfg.InternalDirs))

	// Raw content backend
	content, err := storage.New(ctx, cfg)
	if err != nil {
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	defer content.Close()
	logging.Info("storage backend initialized", zap.String("type", content.Type()))

	// Initialize auth
	authHandler := auth.New(cfg.AdminJWTSecret)

	// Initialize OIDC provider (optional)
	oidcProvider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
		IssuerURL:  cfg.OIDCIssuerURL,
		ClientID:   cfg.OIDCClientID,
		AdminClaim: cfg.OIDCAdminClaim,
		AdminValue: cfg.OIDCAdminValue,
	})
	if err != nil {
		logging.Fatal("OIDC provider init failed", zap.Error(err))
	}
	if oidcProvider != nil {
		authHandler.SetOIDCProvider(oidcProvider)
	}
	if !authHandler.Enabled() {
		logging.Info("admin endpoints disabled (no ADMIN_JWT_SECRET or OIDC_ISSUER_URL)")
	}

	rateLimiter := ratelimit.New(cfg.RateLimitRPM)

	// Create API server
	srv := api.NewServer(api.Deps{
		Resolver:  resolver,
		Lister:    archive.NewLister(cfg.InternalDirs),
		Inspector: archive.NewInspector(cfg.SourcesStatic, cfg.SniffBytes),
		Checksums: checksums,
		Content:   content,
		Auth:      authHandler,
		Limiter:   rateLimiter,
		Pinger:    store,
		Caches: map[string]api.Purger{
			"versions":  cachedRegistry,
			"checksums": checksums,
		},
		PTSPrefix: cfg.PTSPrefix,
		CacheDir:  cfg.CacheDir,
		RawPrefix: cfg.SourcesStatic,
	})

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP(S) server
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("graceful shutdown failed", zap.Error(err))
			httpServer.Close()
		}
		metricsServer.Close()
	}()

	// Start periodic metrics update
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.UpdateConnectionMetrics()
			}
		}
	}()

	// Start periodic cleanup of idle rate limiter buckets
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rateLimiter.Cleanup(24 * time.Hour); n > 0 {
					logging.Debug("cleaned idle rate limiter buckets", zap.Int("count", n))
				}
			}
		}
	}()

	if useTLS {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		if err := httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	}
}

func findMigrationsDir() string {
	candidates := []string{
		"migrations",
		"../migrations",
		"/usr/share/debsources/migrations",
	}

	exe, _ := os.Executable()
	if exe != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "migrations"))
	}

	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}
