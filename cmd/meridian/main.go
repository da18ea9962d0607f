package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-admin/meridian/internal/app"
	"github.com/meridian-admin/meridian/internal/auth"
	"github.com/meridian-admin/meridian/internal/platform/cache"
	"github.com/meridian-admin/meridian/internal/platform/db"
	"github.com/meridian-admin/meridian/internal/rbac"
	"github.com/meridian-admin/meridian/internal/token"
	"github.com/meridian-admin/meridian/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokenService, err := token.NewService(token.Config{Secret: cfg.JWTSecret, AccessTTL: cfg.JWTAccessTTL})
	if err != nil {
		logger.Error("token service", slog.Any("error", err))
		os.Exit(1)
	}

	rbacRepo := rbac.NewRepository(dbpool)
	rbacCache := rbac.NewCache(redisClient, cfg.PermissionCacheTTL)
	rbacService := rbac.NewService(rbacRepo, rbacCache, logger)
	rbacGuard := rbac.Middleware{}

	userRepo := users.NewRepository(dbpool)
	userService := users.NewService(userRepo, rbacService)

	authService := auth.NewService(userRepo, rbacService, tokenService)
	authMiddleware := auth.NewMiddleware(logger, tokenService, userRepo, rbacService)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        auth.NewHandler(logger, authService),
		AuthMiddleware:     authMiddleware,
		RolesHandler:       rbac.NewHandler(logger, rbacService, rbacGuard),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService),
		UsersHandler:       users.NewHandler(logger, userService, rbacGuard),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppRequestTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
