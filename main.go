package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kgcorpus/tagging-console/pkg/audit"
	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/config"
	"github.com/kgcorpus/tagging-console/pkg/drafts"
	"github.com/kgcorpus/tagging-console/pkg/handlers"
	"github.com/kgcorpus/tagging-console/pkg/metrics"
	"github.com/kgcorpus/tagging-console/pkg/middleware"
	"github.com/kgcorpus/tagging-console/pkg/retry"
	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
	"github.com/kgcorpus/tagging-console/ui"
)

// Version is set at build time via ldflags
var Version = "dev"

const draftSweepInterval = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("api_base_url", cfg.API.BaseURL),
		zap.String("auth_strategy", cfg.Auth.Strategy),
		zap.String("redis", cfg.Redis.Addr()),
		zap.Int("page_size", cfg.UI.PageSize))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logConfig := zap.NewProductionConfig()
	if cfg.IsLocal() {
		logConfig = zap.NewDevelopmentConfig()
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)
	return logConfig.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tax, err := loadTaxonomy(cfg)
	if err != nil {
		return err
	}

	m := metrics.New()

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.API.Retries
	client := backend.NewClient(cfg.API.BaseURL, logger,
		backend.WithTimeout(cfg.API.Timeout),
		backend.WithMetrics(m),
		backend.WithRetry(retryCfg))

	resolver, err := auth.NewResolver(ctx, auth.ResolverConfig{
		Strategy:      cfg.Auth.Strategy,
		JWKSEndpoints: cfg.Auth.JWKSEndpoints,
	}, client, logger)
	if err != nil {
		return fmt.Errorf("failed to create session resolver: %w", err)
	}

	secret, err := sessionSecret(cfg, logger)
	if err != nil {
		return err
	}
	cookieSettings := auth.DeriveCookieSettings(cfg.BaseURL, cfg.CookieDomain)
	store := auth.NewStore(secret, cookieSettings, int(cfg.Auth.SessionMaxAge.Seconds()))

	draftStore, err := drafts.Open(ctx, &cfg.Redis, m, logger.Named("drafts"))
	if err != nil {
		return fmt.Errorf("failed to open draft store: %w", err)
	}
	defer func() {
		if err := draftStore.Close(); err != nil {
			logger.Warn("Failed to close draft store", zap.Error(err))
		}
	}()
	if mem, ok := draftStore.(*drafts.MemoryStore); ok {
		mem.StartSweeper(ctx, draftSweepInterval)
	}

	renderer, err := handlers.NewRenderer(ui.FS(), store, logger)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	auditor := audit.NewSecurityAuditor(logger)
	authMiddleware := auth.NewMiddleware(store, resolver, logger)
	authMiddleware.OnDeny = func(w http.ResponseWriter, r *http.Request) {
		auditor.LogAccessDenied(r.Context(), r.URL.Path, r.RemoteAddr)
		renderer.Denied(w, r)
	}

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, client, draftStore, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(client, resolver, draftStore, auditor, store, renderer, logger).RegisterRoutes(mux)
	handlers.NewSentencesHandler(client, cfg.UI.PageSize, cfg.UI.SearchDebounce, store, renderer, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewEditorHandler(client, tax, draftStore, m, store, renderer, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewIngestHandler(client, cfg.UI.MaxUploadBytes, m, store, renderer, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewUsersHandler(client, auditor, store, renderer, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAPIHandler(tax, logger).RegisterRoutes(mux, authMiddleware)

	mux.Handle("GET /metrics", m.Handler())
	mux.Handle("GET /static/", http.FileServerFS(ui.FS()))

	var handler http.Handler = mux
	handler = middleware.APICORS(cfg.CORSAllowedOrigins, logger)(handler)
	handler = authMiddleware.Resolve(handler)
	handler = middleware.RequestLogger(logger.Named("http"), m)(handler)

	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting tagging console",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))
		var err error
		if cfg.TLSCertPath != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadTaxonomy(cfg *config.Config) (*taxonomy.Taxonomy, error) {
	if cfg.TaxonomyPath == "" {
		return taxonomy.Default()
	}
	tax, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy from %s: %w", cfg.TaxonomyPath, err)
	}
	return tax, nil
}

// sessionSecret returns the configured secret. Local setups without one get
// a random secret, so sessions do not survive a restart.
func sessionSecret(cfg *config.Config, logger *zap.Logger) (string, error) {
	if cfg.Auth.SessionSecret != "" {
		return cfg.Auth.SessionSecret, nil
	}
	if !cfg.IsLocal() {
		return "", errors.New("SESSION_SECRET is required outside local environments")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	logger.Warn("SESSION_SECRET not set; using a random secret, sessions end on restart")
	return hex.EncodeToString(buf), nil
}
