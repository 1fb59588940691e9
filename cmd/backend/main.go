// Package main provides the entry point for the QRLinks service.
//
//	@title			QRLinks API
//	@version		1.0.0
//	@description	Short links behind editable QR codes, with scan analytics.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Authorization header. Format: "Bearer {token}"
package main

import (
	"QRLinks-Backend/internal/analytics"
	"QRLinks-Backend/internal/auth"
	"QRLinks-Backend/internal/cache"
	"QRLinks-Backend/internal/config"
	"QRLinks-Backend/internal/database"
	httpHandler "QRLinks-Backend/internal/handler/http"
	"QRLinks-Backend/internal/qr"
	"QRLinks-Backend/internal/repository"
	"QRLinks-Backend/internal/repository/gormstore"
	"QRLinks-Backend/internal/repository/memory"
	"QRLinks-Backend/internal/service"
	"QRLinks-Backend/pkg/logger"
	"QRLinks-Backend/pkg/useragent"
	"context"
	"errors"
	lg "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "QRLinks-Backend/docs" // swagger docs
)

const version = "1.0.0"

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env, logger.FileSink{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer func() {
		if err := log.Sync(); err != nil {
			lg.Printf("ERROR: failed to sync zap logger: %v\n", err)
		}
	}()

	log.Info("starting QRLinks service",
		zap.String("env", cfg.Env),
		zap.String("storage", cfg.Storage.Kind),
		zap.Bool("multi_tenant", cfg.URLShortener.MultiTenant))

	storage, closeStorage := mustStorage(cfg, log)
	defer closeStorage()

	checks := map[string]httpHandler.Pinger{"store": storage}

	// Destination cache is optional; without it every redirect reads the store
	var registryOpts []service.Option
	var resolverOpts []service.ResolverOption
	if cfg.Cache.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.NewClient(ctx, &cfg.Cache)
		cancel()
		if err != nil {
			log.Fatal("failed to connect to redis", zap.String("addr", cfg.Cache.Addr), zap.Error(err))
		}
		destCache := cache.NewRedis(client, cfg.Cache.TTL)
		defer func() {
			if err := destCache.Close(); err != nil {
				log.Error("failed to close redis client", zap.Error(err))
			}
		}()

		registryOpts = append(registryOpts, service.WithCache(destCache))
		resolverOpts = append(resolverOpts, service.WithResolverCache(destCache))
		checks["cache"] = destCache
		log.Info("destination cache enabled", zap.String("addr", cfg.Cache.Addr), zap.Duration("ttl", cfg.Cache.TTL))
	}

	parser, err := useragent.NewParser(cfg.Analytics.RegexesPath, log)
	if err != nil {
		log.Warn("failed to load User-Agent regexes, using bundled definitions", zap.Error(err))
		parser = useragent.NewDefault(log)
	}

	var recorder service.ScanRecorder
	var stats httpHandler.StatsSource
	if cfg.Analytics.Async {
		pcfg := analytics.DefaultConfig()
		pcfg.WorkerCount = cfg.Analytics.Workers
		pcfg.BufferSize = cfg.Analytics.BufferSize
		pcfg.RetryAttempts = cfg.Analytics.RetryAttempts
		pcfg.RetryDelay = cfg.Analytics.RetryDelay
		pcfg.ShutdownTimeout = cfg.Analytics.ShutdownTimeout

		processor := analytics.NewProcessor(storage, parser, log, pcfg)
		if err := processor.Start(); err != nil {
			log.Fatal("failed to start scan processor", zap.Error(err))
		}
		defer func() {
			if err := processor.Stop(); err != nil {
				log.Error("scan processor did not drain", zap.Error(err))
			}
		}()
		recorder = processor
		stats = processor
	} else {
		recorder = analytics.NewSyncRecorder(storage, parser, log, 0)
	}

	registry := service.NewRegistry(storage, &cfg.URLShortener, log, registryOpts...)
	resolver := service.NewResolver(storage, recorder, log, resolverOpts...)
	renderer := qr.NewRenderer(cfg.QR, qr.NewHTTPLogoFetcher(cfg.QR.LogoTimeout, cfg.QR.LogoMaxBytes), log)

	if cfg.URLShortener.MultiTenant && !registry.OwnershipEnabled() {
		log.Warn("multi_tenant requested but the store does not record owners; running single-tenant")
	}

	jwtService := auth.NewJWTService(&auth.JWTConfig{
		SecretKey:            []byte(cfg.Auth.JWTSecret),
		AccessTokenDuration:  cfg.Auth.AccessTokenTTL,
		RefreshTokenDuration: cfg.Auth.RefreshTokenTTL,
		Issuer:               cfg.Auth.Issuer,
	})

	apiServer, err := httpHandler.NewServer(httpHandler.Deps{
		Registry:  registry,
		Resolver:  resolver,
		Renderer:  renderer,
		Users:     storage,
		JWT:       jwtService,
		Passwords: auth.NewPasswordService(cfg.Auth.BcryptCost),
		Checks:    checks,
		Stats:     stats,
		Version:   version,
	}, cfg, log)
	if err != nil {
		log.Fatal("failed to build HTTP server", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      apiServer.SetupRoutes(),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down QRLinks service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}
	// deferred: scan processor drains, then cache and store close
}

// mustStorage opens the configured backend and returns it with its close function
func mustStorage(cfg *config.Config, log *zap.Logger) (repository.Storage, func()) {
	if cfg.Storage.Kind == config.StorageMemory {
		log.Info("using in-memory storage; data is lost on restart")
		return memory.New(), func() {}
	}

	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		log.Info("running database migrations (auto_migrate: true)")
		if err := database.AutoMigrate(db, log); err != nil {
			log.Fatal("failed to run database migrations", zap.Error(err))
		}
	} else {
		log.Info("skipping database migrations (auto_migrate: false)")
	}

	return gormstore.New(db, log), func() {
		if err := database.Close(db, log); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}
}
