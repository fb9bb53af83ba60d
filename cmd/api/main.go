package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"almanac-api/internal/auth"
	"almanac-api/internal/background"
	"almanac-api/internal/config"
	"almanac-api/internal/handlers"
	middlewareCustom "almanac-api/internal/middleware"
	"almanac-api/internal/ratelimit"
	"almanac-api/internal/routes"
	pkghttp "almanac-api/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration. Any configuration error is fatal: the process
	// refuses to serve protected routes rather than starting permissive.
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	hardened := config.IsHardened(cfg.Server.Env)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.Bool("https_required", cfg.Server.RequireHTTPS))

	// Attempt ledger backed by the shared filesystem
	attemptStore, err := ratelimit.NewFileStore(cfg.RateLimit.Dir, logger)
	if err != nil {
		logger.Error("failed to initialize attempt store", slog.Any("error", err))
		os.Exit(1)
	}
	limiter := ratelimit.NewLimiter(attemptStore, cfg.RateLimit, logger)

	// Token service bound to the validated signing configuration
	tokenService := auth.NewTokenService(cfg.Auth.Signing)

	// Credential strategy resolved once at startup
	credentials, err := auth.ResolveCredentials(cfg.Auth, cfg.Server.Env, logger)
	if err != nil {
		logger.Error("failed to resolve credentials", slog.Any("error", err))
		os.Exit(1)
	}
	totpVerifier := auth.NewTOTPVerifier(cfg.Auth.AdminTOTPSecret)
	if totpVerifier != nil {
		logger.Info("TOTP second factor enabled")
	}

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieCfg := auth.CookieConfig{Domain: cfg.Auth.CookieDomain}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(tokenService, credentials, totpVerifier, limiter, cookieCfg, ipConfig, logger)
	maintenanceHandler := handlers.NewMaintenanceHandler(limiter, logger)

	// Background cleanup of aged-out attempt records
	cleanupManager := background.NewCleanupManager(limiter, logger, cfg.Auth.CleanupInterval)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Hardened: hardened}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, maintenanceHandler, tokenService, cfg.Server.RequireHTTPS)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
