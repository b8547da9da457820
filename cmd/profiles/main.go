package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lendgrid/export-profiles/internal/config"
	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/handler"
	"github.com/lendgrid/export-profiles/internal/infra/cache"
	"github.com/lendgrid/export-profiles/internal/infra/memory"
	"github.com/lendgrid/export-profiles/internal/infra/observability"
	"github.com/lendgrid/export-profiles/internal/infra/postgres"
	"github.com/lendgrid/export-profiles/internal/infra/resilience"
	"github.com/lendgrid/export-profiles/internal/infra/supabase"
	"github.com/lendgrid/export-profiles/internal/port"
	"github.com/lendgrid/export-profiles/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// `profiles token <org> <user>` prints a signed access token and exits.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(issueToken(cfg, os.Args[2:]))
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("default_policy", cfg.DefaultPolicy),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Bool("dev_auth", cfg.DevAuth),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "export-profiles")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	ctx := context.Background()

	// --- Profile store ---
	var store port.ProfileStore
	switch cfg.StoreBackend {
	case config.StoreSupabase:
		logger.Info("using Supabase as profile store",
			zap.String("supabase_url", cfg.SupabaseURL),
			zap.String("table", cfg.SupabaseTable),
		)
		store = supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			cfg.SupabaseTable,
			resilience.NewCircuitBreaker("supabase", supabase.IsBreakerSuccess),
			resilienceCfg,
			logger,
		)
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer postgres.Close(pool, logger)

		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("failed to apply schema", zap.Error(err))
		}
		store = postgres.NewProfileStore(pool, logger)
	default:
		logger.Warn("using in-memory profile store, data is lost on restart")
		store = memory.NewProfileStore()
	}

	// --- Resolution cache ---
	var resolved port.Cache[*domain.ResolvedProfile]
	if cfg.CacheBackend == config.CacheRedis {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		resolved = cache.NewRedis[*domain.ResolvedProfile](rdb, "profiles:", cfg.CacheTTL, logger)
		logger.Info("resolution cache backed by redis")
	} else {
		local := cache.New[*domain.ResolvedProfile](cfg.CacheTTL)
		defer local.Close()
		resolved = local
	}

	// --- Services ---
	policy, err := service.ParseDefaultPolicy(cfg.DefaultPolicy)
	if err != nil {
		logger.Fatal("invalid default policy", zap.Error(err))
	}
	resolutionCache := service.NewResolutionCache(resolved)
	profileSvc := service.NewProfileService(store, resolutionCache, metrics, policy, cfg.StoreBackend, logger)
	resolver := service.NewResolver(store, resolutionCache, metrics, logger)

	var authSvc *service.AuthService
	if cfg.JWTSecret != "" {
		authSvc = service.NewAuthService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL)
		logger.Info("token auth enabled", zap.String("issuer", cfg.JWTIssuer))
	}
	if cfg.DevAuth {
		logger.Warn("dev auth enabled: X-Org-Id header is trusted")
	}

	// --- Router ---
	pinger, _ := store.(port.Pinger)
	router := handler.NewRouter(handler.Services{
		Profiles: profileSvc,
		Resolver: resolver,
		Auth:     authSvc,
		Store:    pinger,
		DevAuth:  cfg.DevAuth,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func issueToken(cfg *config.Config, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: profiles token <org-id> <user-id>")
		return 2
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		return 1
	}

	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL)
	token, err := authSvc.IssueAccessToken(args[1], args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(token)
	return 0
}
